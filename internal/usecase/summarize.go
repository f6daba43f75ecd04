// Package usecase holds the request-scoped services behind the HTTP
// handlers: summarize, chat, and query history.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"so-summarizer/internal/extract"
)

// PageFetcher retrieves raw page markup.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// LLMClient is the summarization client consumed by the services.
type LLMClient interface {
	Summarize(ctx context.Context, question, answerExcerpt string) (string, error)
	Chat(ctx context.Context, pageContent, sourceURL, userQuery string) (string, error)
}

// RateGate is the single-slot limiter in front of summarize.
type RateGate interface {
	TryAcquire() (bool, time.Duration)
	Window() time.Duration
}

// SummarizeService fetches a question page, extracts its content, and asks
// the model for a two-bullet summary.
type SummarizeService struct {
	fetcher PageFetcher
	llm     LLMClient
	limiter RateGate
}

type SummarizeOutput struct {
	Summary     string
	PageContent string
}

func NewSummarizeService(fetcher PageFetcher, llm LLMClient, limiter RateGate) (*SummarizeService, error) {
	if fetcher == nil {
		return nil, errors.New("usecase: page fetcher must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: rate limiter must not be nil")
	}
	return &SummarizeService{fetcher: fetcher, llm: llm, limiter: limiter}, nil
}

func (s *SummarizeService) Summarize(ctx context.Context, url string) (SummarizeOutput, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return SummarizeOutput{}, newError(ErrorInvalidInput, "Please pass a Stack Overflow URL", nil)
	}

	if ok, retryAfter := s.limiter.TryAcquire(); !ok {
		waitErr := &Error{
			Code:       ErrorRateLimited,
			Message:    fmt.Sprintf("Please wait %d seconds between requests", int(s.limiter.Window().Seconds())),
			RetryAfter: retryAfter,
		}
		return SummarizeOutput{}, waitErr
	}

	pageHTML, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return SummarizeOutput{}, newError(ErrorUpstream, "Could not fetch the page", err)
	}

	page, err := extract.Extract(pageHTML)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrMissingTitle):
			return SummarizeOutput{}, newError(ErrorExtraction, "Could not find question title", err)
		case errors.Is(err, extract.ErrMissingAnswerBody):
			return SummarizeOutput{}, newError(ErrorExtraction, "Could not find answer content", err)
		default:
			return SummarizeOutput{}, newError(ErrorExtraction, "Could not parse page content", err)
		}
	}

	summary, err := s.llm.Summarize(ctx, page.QuestionTitle, page.AnswerBody)
	if err != nil {
		return SummarizeOutput{}, newError(ErrorUpstream, "Summarization failed", err)
	}

	return SummarizeOutput{
		Summary: summary,
		// Untruncated; this is what chat mode later feeds back as context.
		PageContent: fmt.Sprintf("Q: %s\n\nA: %s", page.QuestionTitle, page.AnswerBody),
	}, nil
}
