package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportURI(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, tc := range []struct {
		output, filename string
		useTimestamp     bool
		want             string
	}{
		{"gs://bucket/folder/", "", false, "gs://bucket/folder/export-*.parquet"},
		{"gs://bucket/folder", "users", false, "gs://bucket/folder/users-*.parquet"},
		{"gs://bucket/folder/", "users", true, "gs://bucket/folder/users-20240102-030405-*.parquet"},
		{"gs://bucket/folder/data-*.parquet", "users", true, "gs://bucket/folder/data-*.parquet"},
		{"gs://bucket/one.parquet", "", false, "gs://bucket/one.parquet"},
	} {
		assert.Equal(t, tc.want, exportURI(tc.output, tc.filename, now, tc.useTimestamp), tc.output)
	}
}

func TestExportToGCS(t *testing.T) {
	wh := newFakeWarehouse()
	s := newTestService(wh)

	uri, err := s.ExportToGCS(context.Background(), "SELECT 1", "gs://bucket/out", "daily", false)
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/out/daily-*.parquet", uri)
	require.Len(t, wh.execs, 1)
	assert.Contains(t, wh.execs[0], "uri='gs://bucket/out/daily-*.parquet'")
	assert.Contains(t, wh.execs[0], "(SELECT 1)")

	_, err = s.ExportToGCS(context.Background(), "SELECT 1", "/tmp/out", "", false)
	assert.ErrorContains(t, err, "gs://")
}

func TestGCSDriver(t *testing.T) {
	s := newTestService(newFakeWarehouse())
	res, err := NewGCSDriver().Execute(context.Background(), s, ExportParams{Query: "SELECT 1", Output: "gs://b/"})
	require.NoError(t, err)
	assert.Equal(t, "gs://b/export-*.parquet", res.GCSPath)
}
