package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pdfrag/internal/server"
	"pdfrag/internal/service"
	"pdfrag/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui [FILE...]",
	Short: "Launch the interactive question prompt",
	Long: `Launch the interactive terminal interface. When files are given they are
ingested first and a short summary of their text is shown.

Controls:
  Enter      - Ask
  Tab        - Switch between answer and sources
  Up/Down    - Browse sources
  PgUp/PgDn  - Scroll
  Ctrl+C     - Quit`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

// describingAsker turns pipeline errors into the messages users see.
type describingAsker struct {
	next server.Pipeline
}

func (a describingAsker) Ask(ctx context.Context, question string) (*service.Answer, error) {
	answer, err := a.next.Ask(ctx, question)
	return answer, describe(err)
}

func runTUI(cmd *cobra.Command, args []string) error {
	p, err := requirePipeline(cmd)
	if err != nil {
		return err
	}

	var summary string
	if len(args) > 0 {
		res, err := p.Ingest(ctxOf(cmd), readDocuments(cmd, args))
		if err != nil {
			return describe(err)
		}
		summary = res.Summary
	}

	m := tui.New(ctxOf(cmd), describingAsker{next: p}, summary)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctxOf(cmd))).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
