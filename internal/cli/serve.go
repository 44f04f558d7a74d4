package cli

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"pdfrag/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the upload form and API:

  GET  /         upload and question form
  POST /upload   multipart field "file", repeatable (also POST /)
  POST /ask      form or JSON field "question"
  GET  /health   index status

Responses are plain text unless the client sends or accepts JSON.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	p, err := requirePipeline(cmd)
	if err != nil {
		return err
	}

	cfg := appConfig.Server
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if !strings.EqualFold(appConfig.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.New(p, cfg, appConfig.Telemetry.ServiceName, appLogger)
	return srv.Run(ctxOf(cmd))
}
