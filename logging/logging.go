package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

type Options struct {
	// File receives JSON records, appended. Empty disables the file sink.
	File      string
	Verbose   bool
	SentryDSN string
	// Console defaults to os.Stderr.
	Console io.Writer

	sentryTransport sentry.Transport
}

// sentryFlushTimeout bounds how long shutdown waits for buffered events.
const sentryFlushTimeout = 2 * time.Second

// New builds the process logger and returns a close func that flushes Sentry
// and closes the file sink.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handlers := []slog.Handler{tint.NewHandler(console, &tint.Options{Level: level})}
	closer := func() error { return nil }

	if opts.File != "" {
		f, err := OpenAppend(opts.File)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f.Close
	}

	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN, Transport: opts.sentryTransport})
		if err != nil {
			slog.New(handlers[0]).Warn("Failed to enable Sentry output", slog.Any("err", err))
		} else {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
			closeFile := closer
			closer = func() error {
				sentry.Flush(sentryFlushTimeout)
				return closeFile()
			}
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer, nil
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// OpenAppend opens path for appending, creating it and its directory.
func OpenAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", path, err)
	}
	return f, nil
}

// Fatal logs at error level, flushes pending Sentry events and exits.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	sentry.Flush(sentryFlushTimeout)
	os.Exit(1)
}
