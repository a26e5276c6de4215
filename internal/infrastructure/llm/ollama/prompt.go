package ollama

import (
	"fmt"
	"strings"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

func buildAnswerPrompt(question string, sources []domain.ScoredResult) string {
	var contextBuilder strings.Builder
	for idx, source := range sources {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] document=%s score=%.4f\n%s\n\n",
			idx+1,
			source.DocumentID,
			source.Score,
			source.Content,
		))
	}

	return fmt.Sprintf(`Answer user question only from context below.
If context is insufficient, say it directly.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
