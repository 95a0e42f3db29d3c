package config

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

const (
	RunModeServer = "server"
	RunModeJob    = "job"

	DriverGCS       = "GCS"
	DriverStarRocks = "STARROCKS"
)

type Job struct {
	Action       string `long:"job-action" env:"JOB_ACTION" default:"export" choice:"query" choice:"transfer" choice:"export" description:"what a job run does"`
	Query        string `long:"job-query" env:"JOB_QUERY" description:"SQL for query and export jobs"`
	Output       string `long:"job-output" env:"JOB_OUTPUT" description:"gs:// destination for GCS exports"`
	Filename     string `long:"job-filename" env:"JOB_FILENAME" description:"file name prefix for GCS exports"`
	UseTimestamp bool   `long:"job-use-timestamp" env:"JOB_USE_TIMESTAMP" description:"add a timestamp to exported file names"`
	Table        string `long:"job-table" env:"JOB_TABLE" description:"StarRocks destination table"`
	Database     string `long:"job-database" env:"JOB_DATABASE" description:"StarRocks destination database"`
	CreateDDL    string `long:"job-create-ddl" env:"JOB_CREATE_DDL" description:"DDL used instead of the derived CREATE TABLE"`
	ProjectPath  string `long:"job-transfer-path" env:"JOB_TRANSFER_PATH" description:"transfer config resource path"`
	ProjectName  string `long:"job-project-name" env:"JOB_PROJECT_NAME" description:"project name from the secrets file"`
	TransferName string `long:"job-transfer-name" env:"JOB_TRANSFER_NAME" description:"transfer config display name"`
}

type StarRocks struct {
	Host      string `long:"starrocks-host" env:"STARROCKS_HOST"`
	Port      string `long:"starrocks-port" env:"STARROCKS_PORT" default:"9030"`
	User      string `long:"starrocks-user" env:"STARROCKS_USER"`
	Password  string `long:"starrocks-password" env:"STARROCKS_PASSWORD"`
	Database  string `long:"starrocks-db" env:"STARROCKS_DB"`
	BatchSize int    `long:"starrocks-batch-size" env:"STARROCKS_BATCH_SIZE" default:"1000"`
}

type Settings struct {
	ProjectID       string `long:"project-id" env:"GCP_PROJECT_ID" description:"warehouse project ID"`
	CredentialsFile string `long:"credentials" env:"GOOGLE_APPLICATION_CREDENTIALS" description:"service account JSON file"`
	SecretsFile     string `long:"secrets" env:"SECRETS_FILE" description:"YAML secrets file"`
	Location        string `long:"location" env:"BQ_LOCATION" description:"query location, e.g. US"`

	LogFile   string `long:"log-file" env:"LOG_FILE" default:"logs/bigquery_tools.log" description:"append-only log file, empty to disable"`
	Verbose   bool   `short:"v" long:"verbose" env:"VERBOSE" description:"debug logging"`
	SentryDSN string `long:"sentry-dsn" env:"SENTRY_DSN" description:"report errors to Sentry"`

	RunMode      string `long:"run-mode" env:"RUN_MODE" default:"server" choice:"server" choice:"job"`
	ExportDriver string `long:"export-driver" env:"EXPORT_DRIVER" default:"GCS" choice:"GCS" choice:"STARROCKS"`
	Port         string `long:"port" env:"PORT" default:"8080"`
	APIKey       string `long:"api-key" env:"API_KEY" description:"required X-API-Key header value"`

	Job       Job       `group:"job"`
	StarRocks StarRocks `group:"starrocks"`
}

// Parse loads .env (if present) into the environment and then parses args,
// with flags taking precedence over environment variables.
func Parse(args []string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var s Settings
	if _, err := flags.NewParser(&s, flags.HelpFlag|flags.PassDoubleDash).ParseArgs(args); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) Validate() error {
	if s.RunMode != RunModeJob {
		return nil
	}
	switch s.Job.Action {
	case "query", "export":
		if s.Job.Query == "" {
			return fmt.Errorf("job action %q requires a query", s.Job.Action)
		}
	case "transfer":
		if s.Job.ProjectPath == "" && (s.Job.ProjectName == "" || s.Job.TransferName == "") {
			return fmt.Errorf("transfer job requires a transfer path or project and transfer names")
		}
	}
	return nil
}
