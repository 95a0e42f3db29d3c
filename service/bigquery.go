package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// IfExists selects what Upload does when the destination table is present.
type IfExists string

const (
	IfExistsFail    IfExists = "fail"
	IfExistsReplace IfExists = "replace"
	IfExistsAppend  IfExists = "append"
)

func ParseIfExists(s string) (IfExists, error) {
	switch p := IfExists(s); p {
	case "":
		return IfExistsFail, nil
	case IfExistsFail, IfExistsReplace, IfExistsAppend:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// warehouse is the slice of the BigQuery SDK the service depends on.
type warehouse interface {
	Read(ctx context.Context, sql, location string) (rowSource, error)
	Exec(ctx context.Context, sql, location string) (string, error)
	TableExists(ctx context.Context, dataset, table string) (bool, error)
	DeleteTable(ctx context.Context, dataset, table string) error
	Load(ctx context.Context, dataset, table string, data *Table, disposition bigquery.TableWriteDisposition) error
	Close() error
}

type rowSource interface {
	Next(dst any) error
	Schema() bigquery.Schema
}

type Options struct {
	ProjectID       string
	CredentialsFile string
	Location        string
	// ProjectIDs maps human-readable project names to project IDs for
	// StartTransfer lookups.
	ProjectIDs    map[string]string
	Logger        *slog.Logger
	ClientOptions []option.ClientOption
}

type BigQueryService struct {
	wh         warehouse
	projectID  string
	location   string
	projectIDs map[string]string
	log        *slog.Logger

	mu                sync.Mutex
	transfer          transferClient
	newTransferClient func(ctx context.Context) (transferClient, error)
	now               func() time.Time
}

func NewBigQueryService(ctx context.Context, opts Options) (*BigQueryService, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	creds, credOpts, err := resolveCredentials(ctx, opts.CredentialsFile)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve credentials", "error", err)
		return nil, err
	}
	clientOpts := append(credOpts, opts.ClientOptions...)

	projectID := opts.ProjectID
	if projectID == "" && creds != nil {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		projectID = bigquery.DetectProjectID
	}

	log.DebugContext(ctx, "Initiating BigQuery client", "project_id", projectID)
	client, err := bigquery.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		log.ErrorContext(ctx, "Error connecting with BigQuery", "error", err)
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	log.DebugContext(ctx, "Connected", "project_id", client.Project())

	s := newService(&bqWarehouse{client: client}, client.Project(), opts.Location, opts.ProjectIDs, log)
	s.newTransferClient = func(ctx context.Context) (transferClient, error) {
		return newDataTransferClient(ctx, clientOpts...)
	}
	return s, nil
}

func newService(wh warehouse, projectID, location string, projectIDs map[string]string, log *slog.Logger) *BigQueryService {
	return &BigQueryService{
		wh:         wh,
		projectID:  projectID,
		location:   location,
		projectIDs: projectIDs,
		log:        log,
		now:        time.Now,
	}
}

func (s *BigQueryService) ProjectID() string {
	return s.projectID
}

func (s *BigQueryService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.transfer != nil {
		errs = append(errs, s.transfer.Close())
		s.transfer = nil
	}
	if s.wh != nil {
		errs = append(errs, s.wh.Close())
	}
	return errors.Join(errs...)
}

// Query runs sqlQuery and returns the full result set.
func (s *BigQueryService) Query(ctx context.Context, sqlQuery string) (*Table, error) {
	if s == nil || s.wh == nil {
		s.logger().ErrorContext(ctx, "BigQuery client not initialized")
		return nil, ErrClientNotInitialized
	}

	s.log.DebugContext(ctx, "Initiating query", "query", sqlQuery)
	it, err := s.wh.Read(ctx, sqlQuery, s.location)
	if err != nil {
		s.log.ErrorContext(ctx, "Query failed", "error", err)
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	table := &Table{}
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			s.log.ErrorContext(ctx, "Query failed while reading rows", "error", err)
			return nil, fmt.Errorf("failed to read query results: %w", err)
		}
		table.Rows = append(table.Rows, values)
	}
	// The schema is only populated once the iterator has fetched a page.
	table.Schema = it.Schema()

	s.log.DebugContext(ctx, "Query returned successfully", "rows", table.Len())
	return table, nil
}

// Upload writes data into dataset.tableName according to policy.
func (s *BigQueryService) Upload(ctx context.Context, data *Table, dataset, tableName string, policy IfExists) error {
	if s == nil || s.wh == nil {
		s.logger().ErrorContext(ctx, "BigQuery client not initialized")
		return ErrClientNotInitialized
	}
	if data == nil {
		s.log.ErrorContext(ctx, "No table to upload", "dataset", dataset, "table", tableName)
		return fmt.Errorf("no table to upload")
	}
	policy, err := ParseIfExists(string(policy))
	if err != nil {
		s.log.ErrorContext(ctx, "Invalid upload policy", "dataset", dataset, "table", tableName, "error", err)
		return err
	}

	destination := dataset + "." + tableName
	log := s.log.With("destination", destination, "if_exists", string(policy))
	log.DebugContext(ctx, "Starting upload", "rows", data.Len())

	exists, err := s.wh.TableExists(ctx, dataset, tableName)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up destination table", "error", err)
		return fmt.Errorf("failed to look up %s: %w", destination, err)
	}

	disposition := bigquery.WriteEmpty
	switch policy {
	case IfExistsFail:
		if exists {
			log.ErrorContext(ctx, "Destination table already exists")
			return fmt.Errorf("%w: %s", ErrTableExists, destination)
		}
	case IfExistsReplace:
		if exists {
			if err := s.wh.DeleteTable(ctx, dataset, tableName); err != nil {
				log.ErrorContext(ctx, "Failed to drop destination table", "error", err)
				return fmt.Errorf("failed to drop %s: %w", destination, err)
			}
		}
	case IfExistsAppend:
		disposition = bigquery.WriteAppend
	}

	if err := s.wh.Load(ctx, dataset, tableName, data, disposition); err != nil {
		log.ErrorContext(ctx, "Upload failed", "error", err)
		return fmt.Errorf("failed to load into %s: %w", destination, err)
	}

	log.InfoContext(ctx, "Upload completed", "rows", data.Len())
	return nil
}

// logger is nil-safe so a nil service can still report misuse.
func (s *BigQueryService) logger() *slog.Logger {
	if s == nil || s.log == nil {
		return slog.Default()
	}
	return s.log
}

type bqWarehouse struct {
	client *bigquery.Client
}

func (w *bqWarehouse) Read(ctx context.Context, sql, location string) (rowSource, error) {
	q := w.client.Query(sql)
	q.Location = location
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	return rowIterator{it}, nil
}

// Exec runs sql as a job and waits for it, returning the job ID.
func (w *bqWarehouse) Exec(ctx context.Context, sql, location string) (string, error) {
	q := w.client.Query(sql)
	q.Location = location
	job, err := q.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return job.ID(), fmt.Errorf("job failed during execution: %w", err)
	}
	if err := status.Err(); err != nil {
		return job.ID(), fmt.Errorf("job completed with error: %w", err)
	}
	return job.ID(), nil
}

func (w *bqWarehouse) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	_, err := w.client.Dataset(dataset).Table(table).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 404 {
		return false, nil
	}
	return false, err
}

func (w *bqWarehouse) DeleteTable(ctx context.Context, dataset, table string) error {
	return w.client.Dataset(dataset).Table(table).Delete(ctx)
}

func (w *bqWarehouse) Load(ctx context.Context, dataset, table string, data *Table, disposition bigquery.TableWriteDisposition) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(data.WriteJSON(pw))
	}()
	defer pr.Close()

	src := bigquery.NewReaderSource(pr)
	src.SourceFormat = bigquery.JSON
	if data.typed() {
		src.Schema = data.Schema
	} else {
		src.AutoDetect = true
	}

	loader := w.client.Dataset(dataset).Table(table).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = disposition

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("load job failed during execution: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job completed with error: %w", err)
	}
	return nil
}

func (w *bqWarehouse) Close() error {
	return w.client.Close()
}

type rowIterator struct {
	it *bigquery.RowIterator
}

func (r rowIterator) Next(dst any) error {
	return r.it.Next(dst)
}

func (r rowIterator) Schema() bigquery.Schema {
	return r.it.Schema
}
