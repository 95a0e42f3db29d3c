package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/bigquery/datatransfer/apiv1/datatransferpb"
	"google.golang.org/api/iterator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRows struct {
	schema bigquery.Schema
	rows   [][]bigquery.Value
	err    error
	pos    int
}

func (f *fakeRows) Next(dst any) error {
	if f.err != nil {
		return f.err
	}
	if f.pos >= len(f.rows) {
		return iterator.Done
	}
	*(dst.(*[]bigquery.Value)) = f.rows[f.pos]
	f.pos++
	return nil
}

func (f *fakeRows) Schema() bigquery.Schema {
	return f.schema
}

// fakeWarehouse keeps tables in memory and mimics the create-if-needed
// load dispositions Upload uses.
type fakeWarehouse struct {
	tables  map[string]*Table
	result  *fakeRows
	readErr error
	loadErr error

	queries []string
	execs   []string
	deleted []string
	closed  bool
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{tables: map[string]*Table{}}
}

func (f *fakeWarehouse) Read(_ context.Context, sql, _ string) (rowSource, error) {
	f.queries = append(f.queries, sql)
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.result == nil {
		return &fakeRows{}, nil
	}
	return f.result, nil
}

func (f *fakeWarehouse) Exec(_ context.Context, sql, _ string) (string, error) {
	f.execs = append(f.execs, sql)
	return "job-1", f.readErr
}

func (f *fakeWarehouse) TableExists(_ context.Context, dataset, table string) (bool, error) {
	_, ok := f.tables[dataset+"."+table]
	return ok, nil
}

func (f *fakeWarehouse) DeleteTable(_ context.Context, dataset, table string) error {
	key := dataset + "." + table
	f.deleted = append(f.deleted, key)
	delete(f.tables, key)
	return nil
}

func (f *fakeWarehouse) Load(_ context.Context, dataset, table string, data *Table, disposition bigquery.TableWriteDisposition) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	key := dataset + "." + table
	existing, ok := f.tables[key]
	switch {
	case !ok:
		f.tables[key] = &Table{Schema: data.Schema, Rows: append([][]bigquery.Value(nil), data.Rows...)}
	case disposition == bigquery.WriteAppend:
		existing.Rows = append(existing.Rows, data.Rows...)
	default:
		return fmt.Errorf("table %s is not empty", key)
	}
	return nil
}

func (f *fakeWarehouse) Close() error {
	f.closed = true
	return nil
}

type fakeTransferClient struct {
	configs  []*datatransferpb.TransferConfig
	response *datatransferpb.StartManualTransferRunsResponse
	listErr  error
	startErr error

	listedParents []string
	requests      []*datatransferpb.StartManualTransferRunsRequest
	closed        bool
}

func (f *fakeTransferClient) ListTransferConfigs(_ context.Context, parent string) ([]*datatransferpb.TransferConfig, error) {
	f.listedParents = append(f.listedParents, parent)
	return f.configs, f.listErr
}

func (f *fakeTransferClient) StartManualTransferRuns(_ context.Context, req *datatransferpb.StartManualTransferRunsRequest) (*datatransferpb.StartManualTransferRunsResponse, error) {
	f.requests = append(f.requests, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.response, nil
}

func (f *fakeTransferClient) Close() error {
	f.closed = true
	return nil
}
