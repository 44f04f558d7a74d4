// Package cli implements the pdfrag command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"pdfrag/internal/config"
	"pdfrag/internal/logger"
	"pdfrag/internal/server"
	"pdfrag/internal/telemetry"
)

var version = "dev"

var (
	cfgFile string

	appConfig *config.AppConfig
	appLogger *slog.Logger
	pipeline  server.Pipeline

	// cleanups run after the command, last registered first.
	cleanups []func()
)

var rootCmd = &cobra.Command{
	Use:   "pdfrag",
	Short: "Ask questions about your PDF documents",
	Long: `pdfrag extracts the text of PDF documents, indexes it with embeddings
and answers questions from the most relevant passages.

Run "pdfrag ingest" to build the index, then "pdfrag ask" or "pdfrag tui"
to query it, or "pdfrag serve" for the HTTP API.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"path to YAML config file (default ./config.yaml, then ~/.config/pdfrag/config.yaml)")
}

// Execute runs the root command and releases whatever it opened.
func Execute(ctx context.Context) error {
	defer runCleanups()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version reported by the version command and traces.
func SetVersion(v string) {
	version = v
	telemetry.Version = v
}

// SetConfig injects a configuration instead of reading one from disk.
func SetConfig(cfg *config.AppConfig) {
	appConfig = cfg
}

// SetPipeline injects the pipeline the commands drive.
func SetPipeline(p server.Pipeline) {
	pipeline = p
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if appConfig == nil {
		var err error
		if cfgFile != "" {
			appConfig, err = config.Load(cfgFile)
		} else {
			appConfig, _, err = config.LoadDefault()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if appLogger == nil {
		appLogger = logger.Init(appConfig.Log, cmd.ErrOrStderr())
	}
	return nil
}

// requirePipeline builds the pipeline from config unless one was injected.
func requirePipeline(cmd *cobra.Command) (server.Pipeline, error) {
	if pipeline != nil {
		return pipeline, nil
	}
	if appConfig == nil {
		return nil, errors.New("configuration not loaded")
	}

	ctx := ctxOf(cmd)
	shutdown, err := telemetry.InitTracer(ctx, appConfig.Telemetry, appLogger)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { shutdown(context.Background()) })

	app, err := NewApp(ctx, appConfig, appLogger)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() {
		if err := app.Close(); err != nil {
			appLogger.Warn("failed to close providers", "error", err)
		}
	})
	pipeline = app.Pipeline
	return pipeline, nil
}

func runCleanups() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
}

// userError carries the message shown for a pipeline failure.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }

func (e *userError) Unwrap() error { return e.err }

// describe swaps a pipeline error for the message users see. Unclassified
// failures keep their detail.
func describe(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	status, code, msg := server.Classify(err)
	if code == "internal_error" {
		return err
	}
	if status >= http.StatusInternalServerError && appLogger != nil {
		appLogger.Error("command failed", "error", err)
	}
	return &userError{msg: msg, err: err}
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
