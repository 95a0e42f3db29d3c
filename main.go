package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bq-tools/api"
	"bq-tools/config"
	"bq-tools/logging"
	"bq-tools/secrets"
	"bq-tools/service"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
)

func main() {
	settings, err := config.Parse(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Fprintln(os.Stderr, "Failed to parse settings:", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(logging.Options{
		File:      settings.LogFile,
		Verbose:   settings.Verbose,
		SentryDSN: settings.SentryDSN,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logging:", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx := context.Background()

	opts, err := serviceOptions(ctx, settings, logger)
	if err != nil {
		logging.Fatal("Failed to resolve BigQuery settings", "error", err)
	}

	bqService, err := service.NewBigQueryService(ctx, opts)
	if err != nil {
		logging.Fatal("Failed to initialize BigQuery service", "error", err)
	}
	defer bqService.Close()

	var driver service.ExportDriver
	if settings.ExportDriver == config.DriverStarRocks {
		srService, err := service.NewStarRocksService(ctx, service.StarRocksConfig{
			Host:      settings.StarRocks.Host,
			Port:      settings.StarRocks.Port,
			User:      settings.StarRocks.User,
			Password:  settings.StarRocks.Password,
			Database:  settings.StarRocks.Database,
			BatchSize: settings.StarRocks.BatchSize,
		}, logger)
		if err != nil {
			logging.Fatal("Failed to initialize StarRocks service", "error", err)
		}
		defer srService.Close()
		driver = service.NewStarRocksDriver(srService)
	} else {
		driver = service.NewGCSDriver()
	}

	// Job mode: execute once and exit (for Cloud Run Jobs)
	if settings.RunMode == config.RunModeJob {
		if err := runJob(ctx, settings.Job, bqService, driver); err != nil {
			logging.Fatal("Job execution failed", "action", settings.Job.Action, "error", err)
		}
		return
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: api.NewRouter(api.RouterConfig{APIKey: settings.APIKey}, bqService, bqService, driver),
	}

	go func() {
		slog.Info("Server starting", "port", settings.Port, "project_id", bqService.ProjectID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// Give in-flight requests 5 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}

// serviceOptions resolves credentials and project IDs. An explicit
// credentials setting wins over the secrets file; with neither, Application
// Default Credentials are used.
func serviceOptions(ctx context.Context, settings *config.Settings, logger *slog.Logger) (service.Options, error) {
	opts := service.Options{
		ProjectID:       settings.ProjectID,
		CredentialsFile: settings.CredentialsFile,
		Location:        settings.Location,
		Logger:          logger,
	}

	if settings.SecretsFile != "" {
		store, err := secrets.Load(settings.SecretsFile)
		if err != nil {
			return opts, err
		}

		if opts.CredentialsFile == "" {
			creds, err := store.Credentials()
			switch {
			case err == nil:
				opts.CredentialsFile = creds.Path()
			case errors.Is(err, secrets.ErrNotFound):
				slog.Info("No credentials in secrets file, using default credentials")
			default:
				return opts, err
			}
		}

		ids, err := store.ProjectIDs()
		if err != nil && !errors.Is(err, secrets.ErrNotFound) {
			return opts, err
		}
		opts.ProjectIDs = ids
	}

	if opts.ProjectID == "" && opts.CredentialsFile == "" {
		slog.Info("GCP_PROJECT_ID not set, attempting to detect from credentials...")
		projectID, err := service.DetectProjectID(ctx)
		if err != nil {
			return opts, err
		}
		slog.Info("Detected Project ID", "project_id", projectID)
		opts.ProjectID = projectID
	}
	return opts, nil
}

func runJob(ctx context.Context, job config.Job, bq *service.BigQueryService, driver service.ExportDriver) error {
	switch job.Action {
	case "query":
		table, err := bq.Query(ctx, job.Query)
		if err != nil {
			return err
		}
		slog.Info("Query job completed", "columns", table.Columns(), "rows", table.Len())
	case "transfer":
		state, err := bq.StartTransfer(ctx, service.TransferRequest{
			ProjectPath:  job.ProjectPath,
			ProjectName:  job.ProjectName,
			TransferName: job.TransferName,
		})
		if err != nil {
			return err
		}
		slog.Info("Transfer job completed", "state", state)
	default:
		res, err := driver.Execute(ctx, bq, service.ExportParams{
			Query:        job.Query,
			Output:       job.Output,
			Filename:     job.Filename,
			UseTimestamp: job.UseTimestamp,
			Table:        job.Table,
			Database:     job.Database,
			CreateDDL:    job.CreateDDL,
		})
		if err != nil {
			return err
		}
		slog.Info("Job execution completed", "gcs_path", res.GCSPath, "table", res.Table, "rows", res.Rows)
	}
	return nil
}
