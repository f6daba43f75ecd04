package openai

import (
	"fmt"
	"strings"

	"so-summarizer/internal/domain"
)

// maxExcerptLen bounds how much of the answer reaches the summary prompt.
const maxExcerptLen = 1000

const truncationMarker = "…"

func summaryMessages(question, answerExcerpt string) []domain.ChatMessage {
	prompt := fmt.Sprintf(
		"Summarize this Stack Overflow thread in exactly two short bullet points:\n\nQ: %s\nA: %s",
		strings.TrimSpace(question),
		truncateExcerpt(answerExcerpt),
	)
	return []domain.ChatMessage{{Role: "user", Content: prompt}}
}

func chatMessages(pageContent, sourceURL, userQuery string) []domain.ChatMessage {
	system := strings.Join([]string{
		"You are answering questions about a Stack Overflow page.",
		"Use only the page content provided in this request.",
		"If the content does not contain the answer, say so and explain why you cannot answer.",
	}, " ")

	// Full page content goes through verbatim; chat context is never truncated.
	user := fmt.Sprintf(
		"Page content from %s:\n\n%s\n\nQuestion: %s",
		strings.TrimSpace(sourceURL),
		pageContent,
		strings.TrimSpace(userQuery),
	)

	return []domain.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// truncateExcerpt caps the answer text at maxExcerptLen characters, marking
// the cut so the model knows the excerpt is partial.
func truncateExcerpt(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxExcerptLen {
		return s
	}
	return string(runes[:maxExcerptLen]) + truncationMarker
}
