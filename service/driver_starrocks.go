package service

import (
	"context"
	"fmt"
)

type StarRocksDriver struct {
	sr *StarRocksService
}

func NewStarRocksDriver(sr *StarRocksService) *StarRocksDriver {
	return &StarRocksDriver{sr: sr}
}

func (d *StarRocksDriver) Execute(ctx context.Context, bq *BigQueryService, params ExportParams) (ExportResult, error) {
	table := params.Table
	if table == "" {
		table = "export"
	}
	if params.Database != "" {
		table = params.Database + "." + table
	}

	data, err := bq.Query(ctx, params.Query)
	if err != nil {
		return ExportResult{}, err
	}

	rows, err := d.sr.Load(ctx, table, data, params.CreateDDL)
	if err != nil {
		return ExportResult{}, fmt.Errorf("failed to load into StarRocks: %w", err)
	}
	return ExportResult{Table: table, Rows: rows}, nil
}
