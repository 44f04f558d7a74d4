package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pdfrag/internal/service"
)

const snippetLen = 160

var (
	askSources bool
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Answer a question from the indexed documents",
	Long: `Embeds the question, retrieves the closest passages from the index and
asks the language model to answer from those passages only.

When the documents do not contain the answer the model replies with
"answer is not available in the context".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVarP(&askSources, "sources", "s", false, "print the passages the answer was based on")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer and sources as JSON")
	rootCmd.AddCommand(askCmd)
}

type sourceJSON struct {
	Index  int     `json:"index"`
	Offset int     `json:"offset"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

type answerJSON struct {
	Answer  string       `json:"answer"`
	Sources []sourceJSON `json:"sources"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	p, err := requirePipeline(cmd)
	if err != nil {
		return err
	}

	answer, err := p.Ask(ctxOf(cmd), question)
	if err != nil {
		return describe(err)
	}

	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}
	cmd.Println(answer.Text)
	if askSources {
		outputSources(cmd, answer)
	}
	return nil
}

func outputAnswerJSON(cmd *cobra.Command, a *service.Answer) error {
	out := answerJSON{Answer: a.Text, Sources: make([]sourceJSON, 0, len(a.Sources))}
	for _, r := range a.Sources {
		out.Sources = append(out.Sources, sourceJSON{
			Index:  r.Chunk.Index,
			Offset: r.Chunk.Offset,
			Score:  r.Score,
			Text:   r.Chunk.Text,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSources(cmd *cobra.Command, a *service.Answer) {
	if len(a.Sources) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, r := range a.Sources {
		cmd.Printf("  [%d] chunk %d at %d (%.4f)\n", i+1, r.Chunk.Index, r.Chunk.Offset, r.Score)
		cmd.Printf("      %s\n", snippet(r.Chunk.Text, snippetLen))
	}
}

// snippet flattens whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= n {
		return flat
	}
	return string(runes[:n]) + "..."
}
