// Package handler is the Lambda HTTP boundary: it routes API Gateway proxy
// events to the services and converts their results and errors into
// CORS-decorated responses.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"so-summarizer/internal/domain"
	"so-summarizer/internal/usecase"
)

type summarizeUseCase interface {
	Summarize(ctx context.Context, url string) (usecase.SummarizeOutput, error)
}

type chatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (string, error)
}

type historyUseCase interface {
	Store(ctx context.Context, in usecase.StoreInput) (domain.QueryHistoryRecord, error)
	Retrieve(ctx context.Context, userID string) ([]domain.QueryHistoryRecord, error)
}

// Handler dispatches the four routes. Handlers are independent; the only
// shared state lives behind the summarize service's rate limiter.
type Handler struct {
	summarize summarizeUseCase
	chat      chatUseCase
	history   historyUseCase
}

func NewHandler(summarize summarizeUseCase, chat chatUseCase, history historyUseCase) (*Handler, error) {
	if summarize == nil {
		return nil, errors.New("handler: summarize use case must not be nil")
	}
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if history == nil {
		return nil, errors.New("handler: history use case must not be nil")
	}
	return &Handler{summarize: summarize, chat: chat, history: history}, nil
}

type summarizeResponse struct {
	Summary     string `json:"summary"`
	PageContent string `json:"pageContent"`
}

type chatRequest struct {
	URL         string `json:"url"`
	PageContent string `json:"pageContent"`
	Query       string `json:"query"`
}

type storeQueryRequest struct {
	UserID      string          `json:"userId"`
	URL         string          `json:"url"`
	PageContent string          `json:"pageContent"`
	Summary     string          `json:"summary"`
	Queries     json.RawMessage `json:"queries,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handle is the single Lambda entry point for all routes.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	route := routePath(req.Path)

	// Pre-flight requests never reach business logic.
	if req.HTTPMethod == http.MethodOptions {
		return respond(http.StatusOK, "", "", corrID), nil
	}

	slog.Info("request", "method", req.HTTPMethod, "path", route, "correlationId", corrID)

	var resp events.APIGatewayProxyResponse
	switch {
	case req.HTTPMethod == http.MethodGet && route == "/summarize":
		resp = h.handleSummarize(ctx, req, corrID)
	case req.HTTPMethod == http.MethodPost && route == "/chat":
		resp = h.handleChat(ctx, req, corrID)
	case req.HTTPMethod == http.MethodPost && route == "/store-query":
		resp = h.handleStoreQuery(ctx, req, corrID)
	case req.HTTPMethod == http.MethodGet && route == "/retrieve-query-history":
		resp = h.handleRetrieveHistory(ctx, req, corrID)
	default:
		resp = respondError(http.StatusNotFound, "Not found", corrID)
	}

	if resp.StatusCode >= 500 {
		slog.Error("request failed", "path", route, "status", resp.StatusCode, "correlationId", corrID)
	}
	return resp, nil
}

func (h *Handler) handleSummarize(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	out, err := h.summarize.Summarize(ctx, req.QueryStringParameters["url"])
	if err != nil {
		return errorToResponse(err, corrID)
	}
	return respondJSON(http.StatusOK, summarizeResponse{Summary: out.Summary, PageContent: out.PageContent}, corrID)
}

func (h *Handler) handleChat(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var body chatRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return respondError(http.StatusBadRequest, "Invalid request body", corrID)
	}

	answer, err := h.chat.Chat(ctx, usecase.ChatInput{
		URL:         body.URL,
		PageContent: body.PageContent,
		Query:       body.Query,
	})
	if err != nil {
		return errorToResponse(err, corrID)
	}
	return respond(http.StatusOK, answer, "text/plain; charset=utf-8", corrID)
}

func (h *Handler) handleStoreQuery(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var body storeQueryRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return respondError(http.StatusBadRequest, "Invalid request body", corrID)
	}

	_, err := h.history.Store(ctx, usecase.StoreInput{
		UserID:      body.UserID,
		URL:         body.URL,
		PageContent: body.PageContent,
		Summary:     body.Summary,
		Queries:     body.Queries,
	})
	if err != nil {
		return errorToResponse(err, corrID)
	}
	return respond(http.StatusOK, "Query history stored successfully", "text/plain; charset=utf-8", corrID)
}

func (h *Handler) handleRetrieveHistory(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	records, err := h.history.Retrieve(ctx, req.QueryStringParameters["userId"])
	if err != nil {
		return errorToResponse(err, corrID)
	}
	if records == nil {
		records = []domain.QueryHistoryRecord{}
	}
	return respondJSON(http.StatusOK, records, corrID)
}

// errorToResponse maps the usecase error taxonomy to HTTP statuses. Anything
// unrecognized is a 500 carrying the error's text.
func errorToResponse(err error, corrID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return respondError(http.StatusInternalServerError, err.Error(), corrID)
	}

	switch ucErr.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorExtraction:
		return respondError(http.StatusBadRequest, ucErr.Message, corrID)
	case usecase.ErrorRateLimited:
		resp := respondError(http.StatusTooManyRequests, ucErr.Message, corrID)
		if ucErr.RetryAfter > 0 {
			resp.Headers["Retry-After"] = fmt.Sprintf("%d", int(ucErr.RetryAfter.Seconds()+0.5))
		}
		return resp
	default:
		return respondError(http.StatusInternalServerError, ucErr.Message, corrID)
	}
}

// baseHeaders is the uniform response decoration: every response, success or
// error, carries the permissive cross-origin headers so browser clients can
// read the body.
func baseHeaders(corrID string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
		"X-Correlation-Id":             corrID,
	}
}

func respond(status int, body, contentType, corrID string) events.APIGatewayProxyResponse {
	headers := baseHeaders(corrID)
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: body}
}

func respondJSON(status int, v any, corrID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return respondError(http.StatusInternalServerError, "Could not encode response", corrID)
	}
	return respond(status, string(body), "application/json", corrID)
}

func respondError(status int, message, corrID string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(errorResponse{Error: message})
	return respond(status, string(body), "application/json", corrID)
}

// routePath strips a leading hosting prefix so /api/summarize and /summarize
// hit the same route.
func routePath(path string) string {
	path = strings.TrimPrefix(path, "/api")
	if path == "" {
		return "/"
	}
	return path
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "X-Correlation-Id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
