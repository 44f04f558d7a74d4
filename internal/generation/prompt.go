package generation

import (
	"strings"

	"pdfrag/internal/domain"
)

// RefusalPhrase is what the model is told to answer when the context does
// not contain the answer.
const RefusalPhrase = "answer is not available in the context"

// NoResponse is returned to the user in place of an empty generation.
const NoResponse = "No response generated."

const instruction = "Answer the question as detailed as possible from the provided context, " +
	"make sure to provide all the details. If the answer is not in the provided context, just say, \"" +
	RefusalPhrase + "\", and do not provide a wrong answer."

// BuildPrompt renders the question-answering prompt. Passages appear in
// retrieval order separated by blank lines.
func BuildPrompt(question string, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nContext:\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Chunk.Text)
	}
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:\n")
	return b.String()
}
