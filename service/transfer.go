package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	datatransfer "cloud.google.com/go/bigquery/datatransfer/apiv1"
	"cloud.google.com/go/bigquery/datatransfer/apiv1/datatransferpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// TransferRequest identifies a transfer config either by its full resource
// path or by project name plus display name. ProjectPath wins when set.
type TransferRequest struct {
	ProjectPath  string
	ProjectName  string
	TransferName string
}

type transferClient interface {
	ListTransferConfigs(ctx context.Context, parent string) ([]*datatransferpb.TransferConfig, error)
	StartManualTransferRuns(ctx context.Context, req *datatransferpb.StartManualTransferRunsRequest) (*datatransferpb.StartManualTransferRunsResponse, error)
	Close() error
}

func projectPath(projectID string) string {
	return "projects/" + projectID
}

func transferConfigPath(projectID, transferID string) string {
	return fmt.Sprintf("projects/%s/transferConfigs/%s", projectID, transferID)
}

// StartTransfer triggers a manual run of a transfer config, scheduled for now,
// and returns the state the service reports for the new run.
func (s *BigQueryService) StartTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.ProjectPath == "" && (req.ProjectName == "" || req.TransferName == "") {
		s.log.ErrorContext(ctx, "Cannot start transfer", "error", ErrMissingTransferArgs)
		return "", ErrMissingTransferArgs
	}

	tc, err := s.ensureTransferClient(ctx)
	if err != nil {
		return "", err
	}

	parent := req.ProjectPath
	if parent == "" {
		parent, err = s.resolveTransferPath(ctx, tc, req.ProjectName, req.TransferName)
		if err != nil {
			return "", err
		}
	}

	log := s.log.With("transfer_config", parent)
	resp, err := tc.StartManualTransferRuns(ctx, &datatransferpb.StartManualTransferRunsRequest{
		Parent: parent,
		Time: &datatransferpb.StartManualTransferRunsRequest_RequestedRunTime{
			RequestedRunTime: timestamppb.New(s.now()),
		},
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to start transfer run", "error", err)
		return "", fmt.Errorf("failed to start transfer run for %s: %w", parent, err)
	}

	runs := resp.GetRuns()
	if len(runs) == 0 {
		log.ErrorContext(ctx, "Transfer run not created", "error", ErrNoTransferRun)
		return "", fmt.Errorf("%w: %s", ErrNoTransferRun, parent)
	}

	state := runs[0].GetState().String()
	log.InfoContext(ctx, "Transfer run started", "run", runs[0].GetName(), "state", state)
	return state, nil
}

func (s *BigQueryService) resolveTransferPath(ctx context.Context, tc transferClient, projectName, transferName string) (string, error) {
	projectID, ok := s.projectIDs[projectName]
	if !ok {
		s.log.ErrorContext(ctx, "Project name not found", "project_name", projectName)
		return "", fmt.Errorf("%w: %q", ErrProjectNotFound, projectName)
	}

	configs, err := tc.ListTransferConfigs(ctx, projectPath(projectID))
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list transfer configs", "project_id", projectID, "error", err)
		return "", fmt.Errorf("failed to list transfer configs for project %s: %w", projectID, err)
	}

	for _, cfg := range configs {
		if cfg.GetDisplayName() != transferName {
			continue
		}
		name := cfg.GetName()
		transferID := name[strings.LastIndex(name, "/")+1:]
		return transferConfigPath(projectID, transferID), nil
	}

	s.log.ErrorContext(ctx, "No transfer with the given display name", "project_id", projectID, "transfer_name", transferName)
	return "", fmt.Errorf("%w: %q in project %s", ErrTransferNotFound, transferName, projectID)
}

func (s *BigQueryService) ensureTransferClient(ctx context.Context) (transferClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transfer != nil {
		return s.transfer, nil
	}
	if s.newTransferClient == nil {
		s.log.ErrorContext(ctx, "Data transfer client not initialized")
		return nil, ErrClientNotInitialized
	}

	s.log.DebugContext(ctx, "Initiating data transfer client")
	tc, err := s.newTransferClient(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Error connecting with BigQuery Data Transfer", "error", err)
		return nil, fmt.Errorf("failed to create data transfer client: %w", err)
	}
	s.transfer = tc
	return tc, nil
}

type dataTransferClient struct {
	c *datatransfer.Client
}

func newDataTransferClient(ctx context.Context, opts ...option.ClientOption) (*dataTransferClient, error) {
	c, err := datatransfer.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &dataTransferClient{c: c}, nil
}

func (d *dataTransferClient) ListTransferConfigs(ctx context.Context, parent string) ([]*datatransferpb.TransferConfig, error) {
	it := d.c.ListTransferConfigs(ctx, &datatransferpb.ListTransferConfigsRequest{Parent: parent})

	var out []*datatransferpb.TransferConfig
	for {
		cfg, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
}

func (d *dataTransferClient) StartManualTransferRuns(ctx context.Context, req *datatransferpb.StartManualTransferRunsRequest) (*datatransferpb.StartManualTransferRunsResponse, error) {
	return d.c.StartManualTransferRuns(ctx, req)
}

func (d *dataTransferClient) Close() error {
	return d.c.Close()
}
