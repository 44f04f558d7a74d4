package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pdfrag/internal/domain"
	"pdfrag/internal/server"
	"pdfrag/internal/service"
)

var ingestJSON bool

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Build the index from PDF files",
	Long: `Extracts the text of every PDF given, splits it into overlapping chunks,
embeds them and replaces the index with the result.

The previous index is kept when nothing could be extracted or the build
fails. Files with other extensions are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the ingestion report as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	p, err := requirePipeline(cmd)
	if err != nil {
		return err
	}

	res, err := p.Ingest(ctxOf(cmd), readDocuments(cmd, args))
	if err != nil {
		return describe(err)
	}

	if ingestJSON {
		return outputIngestJSON(cmd, res)
	}
	outputIngestText(cmd, res)
	return nil
}

// readDocuments loads every path. Unreadable files are logged and passed on
// with no content so the extractor reports them like a corrupt upload.
func readDocuments(cmd *cobra.Command, paths []string) []domain.Document {
	docs := make([]domain.Document, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			if appLogger != nil {
				appLogger.Warn("failed to read file", "path", path, "error", err)
			}
			cmd.PrintErrf("Warning: failed to read %s: %v\n", path, err)
		}
		docs = append(docs, domain.Document{Filename: filepath.Base(path), Content: content})
	}
	return docs
}

func outputIngestJSON(cmd *cobra.Command, res *service.IngestResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputIngestText(cmd *cobra.Command, res *service.IngestResult) {
	cmd.Println(server.MsgIngested)
	cmd.Println()
	for _, d := range res.Documents {
		if d.Characters == 0 {
			cmd.Printf("  %s: no text extracted\n", d.Filename)
			continue
		}
		cmd.Printf("  %s: %d characters\n", d.Filename, d.Characters)
	}
	for _, name := range res.Skipped {
		cmd.Printf("  %s: skipped\n", name)
	}
	cmd.Printf("\nIndexed %d chunks.\n", res.Chunks)
	if res.Summary != "" {
		cmd.Printf("\nSummary:\n  %s\n", res.Summary)
	}
}
