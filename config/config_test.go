package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears keys for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestParse_Defaults(t *testing.T) {
	unsetenv(t, "GCP_PROJECT_ID", "RUN_MODE", "EXPORT_DRIVER", "PORT", "LOG_FILE", "STARROCKS_BATCH_SIZE")

	s, err := Parse([]string{})
	require.NoError(t, err)
	assert.Equal(t, RunModeServer, s.RunMode)
	assert.Equal(t, DriverGCS, s.ExportDriver)
	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, "logs/bigquery_tools.log", s.LogFile)
	assert.Equal(t, 1000, s.StarRocks.BatchSize)
}

func TestParse_EnvAndFlags(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "from-env")
	t.Setenv("BQ_LOCATION", "EU")
	t.Setenv("STARROCKS_HOST", "sr.internal")

	s, err := Parse([]string{"--project-id", "from-flag", "-v"})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", s.ProjectID)
	assert.Equal(t, "EU", s.Location)
	assert.True(t, s.Verbose)
	assert.Equal(t, "sr.internal", s.StarRocks.Host)
}

func TestParse_JobValidation(t *testing.T) {
	t.Setenv("RUN_MODE", "job")
	t.Setenv("JOB_ACTION", "transfer")
	unsetenv(t, "JOB_TRANSFER_PATH", "JOB_TRANSFER_NAME")
	t.Setenv("JOB_PROJECT_NAME", "analytics")

	_, err := Parse([]string{})
	assert.ErrorContains(t, err, "transfer job requires")

	t.Setenv("JOB_TRANSFER_NAME", "nightly")
	s, err := Parse([]string{})
	require.NoError(t, err)
	assert.Equal(t, "nightly", s.Job.TransferName)
}

func TestParse_InvalidChoice(t *testing.T) {
	unsetenv(t, "RUN_MODE", "EXPORT_DRIVER")
	_, err := Parse([]string{"--export-driver", "S3"})
	assert.Error(t, err)
}
