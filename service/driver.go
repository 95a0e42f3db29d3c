package service

import "context"

type ExportParams struct {
	Query        string
	Output       string
	Filename     string
	UseTimestamp bool
	Table        string
	Database     string
	CreateDDL    string
}

type ExportResult struct {
	GCSPath string
	Table   string
	Rows    int64
}

// ExportDriver moves the result of a warehouse query somewhere else.
type ExportDriver interface {
	Execute(ctx context.Context, bq *BigQueryService, params ExportParams) (ExportResult, error)
}

type GCSDriver struct{}

func NewGCSDriver() *GCSDriver {
	return &GCSDriver{}
}

func (d *GCSDriver) Execute(ctx context.Context, bq *BigQueryService, params ExportParams) (ExportResult, error) {
	path, err := bq.ExportToGCS(ctx, params.Query, params.Output, params.Filename, params.UseTimestamp)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{GCSPath: path}, nil
}
