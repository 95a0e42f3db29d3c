package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(wh warehouse) *BigQueryService {
	return newService(wh, "my-project", "US", map[string]string{"A": "123"}, discardLogger())
}

func TestParseIfExists(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want IfExists
	}{
		{"", IfExistsFail},
		{"fail", IfExistsFail},
		{"replace", IfExistsReplace},
		{"append", IfExistsAppend},
	} {
		got, err := ParseIfExists(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseIfExists("truncate")
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestQuery(t *testing.T) {
	wh := newFakeWarehouse()
	wh.result = &fakeRows{
		schema: bigquery.Schema{
			{Name: "id", Type: bigquery.IntegerFieldType},
			{Name: "email", Type: bigquery.StringFieldType},
		},
		rows: [][]bigquery.Value{
			{int64(1), "a@example.com"},
			{int64(2), "b@example.com"},
		},
	}
	s := newTestService(wh)

	table, err := s.Query(context.Background(), "SELECT id, email FROM users")
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT id, email FROM users"}, wh.queries)
	assert.Equal(t, []string{"id", "email"}, table.Columns())
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, wh.result.rows, table.Rows)
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()

	var nilService *BigQueryService
	_, err := nilService.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClientNotInitialized)

	_, err = newTestService(nil).Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClientNotInitialized)

	boom := errors.New("boom")
	wh := newFakeWarehouse()
	wh.readErr = boom
	_, err = newTestService(wh).Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, boom)

	wh = newFakeWarehouse()
	wh.result = &fakeRows{err: boom}
	_, err = newTestService(wh).Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, boom)
}

func testTable(t *testing.T, rows ...[]any) *Table {
	table, err := NewTable([]string{"name", "score"}, rows)
	require.NoError(t, err)
	return table
}

func TestUpload_Fail(t *testing.T) {
	ctx := context.Background()
	wh := newFakeWarehouse()
	s := newTestService(wh)

	require.NoError(t, s.Upload(ctx, testTable(t, []any{"a", 1}), "sandbox", "calls", IfExistsFail))
	assert.Equal(t, 1, wh.tables["sandbox.calls"].Len())

	err := s.Upload(ctx, testTable(t, []any{"b", 2}), "sandbox", "calls", IfExistsFail)
	assert.ErrorIs(t, err, ErrTableExists)
	assert.Equal(t, 1, wh.tables["sandbox.calls"].Len())
}

func TestUpload_Replace(t *testing.T) {
	ctx := context.Background()
	wh := newFakeWarehouse()
	wh.tables["sandbox.calls"] = testTable(t, []any{"old", 0}, []any{"older", -1})
	s := newTestService(wh)

	input := testTable(t, []any{"a", 1})
	require.NoError(t, s.Upload(ctx, input, "sandbox", "calls", IfExistsReplace))
	assert.Equal(t, []string{"sandbox.calls"}, wh.deleted)
	assert.Equal(t, input.Rows, wh.tables["sandbox.calls"].Rows)

	// Replacing a missing table creates it.
	require.NoError(t, s.Upload(ctx, input, "sandbox", "fresh", IfExistsReplace))
	assert.Equal(t, input.Rows, wh.tables["sandbox.fresh"].Rows)
}

func TestUpload_Append(t *testing.T) {
	ctx := context.Background()
	wh := newFakeWarehouse()
	s := newTestService(wh)

	require.NoError(t, s.Upload(ctx, testTable(t, []any{"a", 1}), "sandbox", "calls", IfExistsAppend))
	require.NoError(t, s.Upload(ctx, testTable(t, []any{"b", 2}), "sandbox", "calls", IfExistsAppend))
	assert.Equal(t, [][]bigquery.Value{{"a", 1}, {"b", 2}}, wh.tables["sandbox.calls"].Rows)
}

func TestUpload_Errors(t *testing.T) {
	ctx := context.Background()

	err := newTestService(nil).Upload(ctx, testTable(t), "sandbox", "calls", IfExistsFail)
	assert.ErrorIs(t, err, ErrClientNotInitialized)

	wh := newFakeWarehouse()
	err = newTestService(wh).Upload(ctx, testTable(t), "sandbox", "calls", "upsert")
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	boom := errors.New("quota exceeded")
	wh.loadErr = boom
	err = newTestService(wh).Upload(ctx, testTable(t), "sandbox", "calls", IfExistsAppend)
	assert.ErrorIs(t, err, boom)
}

func TestUpload_LogsRejections(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	s := newService(nil, "my-project", "US", nil, log)
	assert.ErrorIs(t, s.Upload(ctx, testTable(t), "sandbox", "calls", IfExistsFail), ErrClientNotInitialized)
	assert.Contains(t, buf.String(), "BigQuery client not initialized")

	s = newService(newFakeWarehouse(), "my-project", "US", nil, log)
	assert.Error(t, s.Upload(ctx, nil, "sandbox", "calls", IfExistsFail))
	assert.Contains(t, buf.String(), "No table to upload")

	assert.ErrorIs(t, s.Upload(ctx, testTable(t), "sandbox", "calls", "upsert"), ErrInvalidPolicy)
	assert.Contains(t, buf.String(), "Invalid upload policy")

	buf.Reset()
	_, err := newService(nil, "my-project", "US", nil, log).Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClientNotInitialized)
	assert.Contains(t, buf.String(), "BigQuery client not initialized")
}

func TestClose(t *testing.T) {
	wh := newFakeWarehouse()
	tc := &fakeTransferClient{}
	s := newTestService(wh)
	s.transfer = tc

	require.NoError(t, s.Close())
	assert.True(t, wh.closed)
	assert.True(t, tc.closed)
}
