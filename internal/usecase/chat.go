package usecase

import (
	"context"
	"errors"
	"strings"
)

// ChatService answers follow-up questions about previously summarized pages.
type ChatService struct {
	llm LLMClient
}

type ChatInput struct {
	URL         string
	PageContent string
	Query       string
}

func NewChatService(llm LLMClient) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &ChatService{llm: llm}, nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (string, error) {
	if strings.TrimSpace(in.PageContent) == "" || strings.TrimSpace(in.Query) == "" {
		return "", newError(ErrorInvalidInput, "Missing page content or query", nil)
	}

	answer, err := s.llm.Chat(ctx, in.PageContent, in.URL, in.Query)
	if err != nil {
		return "", newError(ErrorUpstream, "Chat completion failed", err)
	}
	return answer, nil
}
