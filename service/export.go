package service

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ExportToGCS runs sqlQuery as an EXPORT DATA statement writing Parquet files
// under outputURI and returns the URI pattern that was written.
func (s *BigQueryService) ExportToGCS(ctx context.Context, sqlQuery, outputURI, filename string, useTimestamp bool) (string, error) {
	if s == nil || s.wh == nil {
		s.logger().ErrorContext(ctx, "BigQuery client not initialized")
		return "", ErrClientNotInitialized
	}
	if !strings.HasPrefix(outputURI, "gs://") {
		s.log.ErrorContext(ctx, "Export output is not a GCS URI", "output_uri", outputURI)
		return "", fmt.Errorf("output must be a gs:// URI, got %q", outputURI)
	}

	uri := exportURI(outputURI, filename, s.now(), useTimestamp)
	log := s.log.With("output_uri", outputURI, "export_uri", uri)
	log.InfoContext(ctx, "Starting BigQuery export")

	exportSQL := fmt.Sprintf(`
		EXPORT DATA OPTIONS(
			uri='%s',
			format='PARQUET',
			overwrite=true
		) AS
		(%s)
	`, uri, sqlQuery)

	jobID, err := s.wh.Exec(ctx, exportSQL, s.location)
	if err != nil {
		log.ErrorContext(ctx, "Export failed", "job_id", jobID, "error", err)
		return "", fmt.Errorf("failed to export to %s: %w", uri, err)
	}

	log.InfoContext(ctx, "Export job completed successfully", "job_id", jobID)
	return uri, nil
}

// exportURI expands a folder-like output into a sharded Parquet pattern.
// Outputs that already name a .parquet file or carry a wildcard are kept.
func exportURI(outputURI, filename string, now time.Time, useTimestamp bool) string {
	if strings.HasSuffix(outputURI, ".parquet") || strings.Contains(outputURI, "*") {
		return outputURI
	}

	base := filename
	if base == "" {
		base = "export"
	}
	if useTimestamp {
		base += "-" + now.Format("20060102-150405")
	}
	return strings.TrimSuffix(outputURI, "/") + "/" + base + "-*.parquet"
}
