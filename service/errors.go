package service

import "errors"

var (
	ErrClientNotInitialized = errors.New("bigquery client not initialized")
	ErrTableExists          = errors.New("destination table already exists")
	ErrInvalidPolicy        = errors.New("invalid if_exists policy")
	ErrMissingTransferArgs  = errors.New("specify either project and transfer names or a transfer config path")
	ErrProjectNotFound      = errors.New("project name not found in secrets, add it there or pass the transfer config path")
	ErrTransferNotFound     = errors.New("no transfer config with the given display name")
	ErrNoTransferRun        = errors.New("transfer service returned no runs")
)
