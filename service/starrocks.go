package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/go-sql-driver/mysql"
)

const defaultStarRocksBatchSize = 1000

type StarRocksConfig struct {
	Host      string
	Port      string
	User      string
	Password  string
	Database  string
	BatchSize int
}

func (c StarRocksConfig) Validate() error {
	if c.Host == "" || c.Port == "" || c.User == "" || c.Database == "" {
		return fmt.Errorf("missing StarRocks config: host, port, user and database are required")
	}
	return nil
}

func (c StarRocksConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host + ":" + c.Port
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// StarRocksService writes warehouse query results into StarRocks over the
// MySQL protocol.
type StarRocksService struct {
	db        *sql.DB
	batchSize int
	log       *slog.Logger
}

func NewStarRocksService(ctx context.Context, cfg StarRocksConfig, log *slog.Logger) (*StarRocksService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to StarRocks: %w", err)
	}
	return newStarRocksService(db, cfg.BatchSize, log), nil
}

func newStarRocksService(db *sql.DB, batchSize int, log *slog.Logger) *StarRocksService {
	if batchSize <= 0 {
		batchSize = defaultStarRocksBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &StarRocksService{db: db, batchSize: batchSize, log: log}
}

func (s *StarRocksService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load creates table if needed and inserts every row of data. createDDL, when
// set, replaces the DDL derived from the table's schema.
func (s *StarRocksService) Load(ctx context.Context, table string, data *Table, createDDL string) (int64, error) {
	if table == "" {
		return 0, fmt.Errorf("StarRocks table name is empty")
	}

	ddl := createDDL
	if ddl == "" {
		var err error
		if ddl, err = createTableDDL(table, data.Schema); err != nil {
			return 0, err
		}
	}

	s.log.InfoContext(ctx, "Ensuring StarRocks table", "table", table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("failed to ensure StarRocks table: %w", err)
	}

	n, err := s.insertRows(ctx, table, data)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rows into StarRocks: %w", err)
	}
	s.log.InfoContext(ctx, "Loaded rows into StarRocks", "table", table, "rows", n)
	return n, nil
}

func (s *StarRocksService) insertRows(ctx context.Context, table string, data *Table) (total int64, err error) {
	if data.Len() == 0 {
		return 0, nil
	}

	cols := make([]string, len(data.Schema))
	for i, f := range data.Schema {
		cols[i] = quoteIdent(f.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < data.Len(); start += s.batchSize {
		end := min(start+s.batchSize, data.Len())
		stmt, args := buildBatchInsert(table, cols, data.Schema, data.Rows[start:end])
		if _, err = tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, err
		}
		total += int64(end - start)
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// createTableDDL builds a duplicate-key table keyed and bucketed on the first
// column.
func createTableDDL(table string, schema bigquery.Schema) (string, error) {
	if len(schema) == 0 {
		return "", fmt.Errorf("empty schema for table %s", table)
	}

	cols := make([]string, 0, len(schema))
	for _, f := range schema {
		if f.Repeated || f.Type == bigquery.RecordFieldType {
			return "", fmt.Errorf("unsupported complex type for column %q", f.Name)
		}
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), mapSRType(f)))
	}
	key := quoteIdent(schema[0].Name)

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s
)
ENGINE=OLAP
DUPLICATE KEY (%s)
DISTRIBUTED BY HASH(%s) BUCKETS 8
PROPERTIES (
	"replication_num" = "1"
)`, table, strings.Join(cols, ",\n\t"), key, key), nil
}

func buildBatchInsert(table string, cols []string, schema bigquery.Schema, batch [][]bigquery.Value) (string, []any) {
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	groups := make([]string, len(batch))
	args := make([]any, 0, len(batch)*len(cols))
	for i, row := range batch {
		groups[i] = placeholders
		args = append(args, convertValues(row, schema)...)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(groups, ", "))
	return stmt, args
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// mapSRType maps BigQuery field types to StarRocks types.
func mapSRType(f *bigquery.FieldSchema) string {
	switch f.Type {
	case bigquery.BytesFieldType:
		return "VARBINARY(1024)"
	case bigquery.IntegerFieldType:
		return "BIGINT"
	case bigquery.FloatFieldType:
		return "DOUBLE"
	case bigquery.BooleanFieldType:
		return "BOOLEAN"
	case bigquery.TimestampFieldType, bigquery.DateTimeFieldType:
		return "DATETIME"
	case bigquery.DateFieldType:
		return "DATE"
	case bigquery.TimeFieldType:
		return "VARCHAR(64)"
	case bigquery.NumericFieldType:
		return "DECIMAL(38,9)"
	case bigquery.GeographyFieldType:
		return "VARCHAR(2048)"
	case bigquery.JSONFieldType:
		return "JSON"
	default:
		return "VARCHAR(1024)"
	}
}

// convertValues converts row values into types the MySQL driver accepts.
func convertValues(values []bigquery.Value, schema bigquery.Schema) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch {
		case v == nil:
			out[i] = nil
		case i < len(schema) && schema[i].Type == bigquery.TimestampFieldType:
			if t, ok := v.(time.Time); ok {
				out[i] = t
			} else {
				out[i] = nil
			}
		case i < len(schema) && (schema[i].Type == bigquery.NumericFieldType || schema[i].Type == bigquery.BigNumericFieldType):
			if r, ok := v.(*big.Rat); ok {
				out[i] = r.FloatString(9)
			} else {
				out[i] = v
			}
		case i < len(schema) && (schema[i].Type == bigquery.DateFieldType ||
			schema[i].Type == bigquery.DateTimeFieldType || schema[i].Type == bigquery.TimeFieldType):
			out[i] = fmt.Sprint(v)
		default:
			out[i] = v
		}
	}
	return out
}
