package service

import (
	"bufio"
	"fmt"
	"io"
	"math/big"

	"cloud.google.com/go/bigquery"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Table is an in-memory result set: a schema and the rows that follow it.
// Rows are positional and line up with Schema.
type Table struct {
	Schema bigquery.Schema
	Rows   [][]bigquery.Value
}

// NewTable builds a schema-less table from column names and plain values.
// Loading such a table relies on BigQuery schema auto-detection.
func NewTable(columns []string, rows [][]any) (*Table, error) {
	schema := make(bigquery.Schema, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		schema[i] = &bigquery.FieldSchema{Name: c}
	}

	out := make([][]bigquery.Value, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
		values := make([]bigquery.Value, len(row))
		for j, v := range row {
			values[j] = v
		}
		out[i] = values
	}
	return &Table{Schema: schema, Rows: out}, nil
}

func (t *Table) Columns() []string {
	cols := make([]string, len(t.Schema))
	for i, f := range t.Schema {
		cols[i] = f.Name
	}
	return cols
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Records returns the rows keyed by column name, with values converted to
// their JSON load representation (see JSONValue).
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = recordValue(t.Schema, row)
	}
	return out
}

// JSONRows returns the positional rows with every value converted by
// JSONValue.
func (t *Table) JSONRows() [][]any {
	out := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		vals := make([]any, len(row))
		for j, v := range row {
			var f *bigquery.FieldSchema
			if j < len(t.Schema) {
				f = t.Schema[j]
			}
			vals[j] = JSONValue(f, v)
		}
		out[i] = vals
	}
	return out
}

// JSONValue converts a value read from BigQuery into the form its JSON
// loader accepts for field f. NUMERIC and BIGNUMERIC become decimal strings
// and RECORD values become objects keyed by the nested field names. f may be
// nil for schema-less columns.
func JSONValue(f *bigquery.FieldSchema, v bigquery.Value) any {
	if v == nil {
		return nil
	}
	if f != nil && f.Repeated {
		if vs, ok := v.([]bigquery.Value); ok {
			elem := *f
			elem.Repeated = false
			out := make([]any, len(vs))
			for i, e := range vs {
				out[i] = JSONValue(&elem, e)
			}
			return out
		}
	}

	switch x := v.(type) {
	case *big.Rat:
		if f != nil && f.Type == bigquery.BigNumericFieldType {
			return x.FloatString(bigNumericScale)
		}
		return x.FloatString(numericScale)
	case *bigquery.IntervalValue:
		return x.String()
	case []bigquery.Value:
		if f != nil && f.Type == bigquery.RecordFieldType {
			return recordValue(f.Schema, x)
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = JSONValue(nil, e)
		}
		return out
	case map[string]bigquery.Value:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = JSONValue(nil, e)
		}
		return out
	}
	return v
}

const (
	numericScale    = 9
	bigNumericScale = 38
)

func recordValue(schema bigquery.Schema, row []bigquery.Value) map[string]any {
	rec := make(map[string]any, len(schema))
	for j, f := range schema {
		if j < len(row) {
			rec[f.Name] = JSONValue(f, row[j])
		}
	}
	return rec
}

// typed reports whether every column carries a BigQuery type.
func (t *Table) typed() bool {
	if len(t.Schema) == 0 {
		return false
	}
	for _, f := range t.Schema {
		if f.Type == "" {
			return false
		}
	}
	return true
}

// WriteJSON writes the table as newline-delimited JSON, the format load jobs
// read from a reader source.
func (t *Table) WriteJSON(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, rec := range t.Records() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
	}
	return bw.Flush()
}
