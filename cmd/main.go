package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"so-summarizer/handler"
	"so-summarizer/internal/integrations/openai"
	"so-summarizer/internal/integrations/paramstore"
	"so-summarizer/internal/integrations/scraper"
	"so-summarizer/internal/ratelimit"
	"so-summarizer/internal/repository"
	"so-summarizer/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	historyTable := mustEnv("HISTORY_TABLE")
	paramPrefix := strings.TrimRight(mustEnv("PARAM_PREFIX"), "/")
	rateLimitSeconds := envInt("RATE_LIMIT_SECONDS", 20)

	writeMode, err := repository.ParseWriteMode(os.Getenv("HISTORY_WRITE_MODE"))
	if err != nil {
		slog.Error("invalid history write mode", "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), historyTable, writeMode)
	if err != nil {
		slog.Error("failed to create history store", "err", err)
		os.Exit(1)
	}
	if err := store.EnsureTable(ctx); err != nil {
		slog.Error("failed to provision history table", "err", err)
		os.Exit(1)
	}

	model, err := ssmClient.GetParameterWithDefault(ctx, paramPrefix+"/config/openai_model", "")
	if err != nil {
		slog.Error("failed to load model parameter", "err", err)
		os.Exit(1)
	}
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix, openai.WithModel(model))
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	fetcher := scraper.New()
	limiter := ratelimit.New(time.Duration(rateLimitSeconds) * time.Second)

	// ---- Services ----
	summarizeSvc, err := usecase.NewSummarizeService(fetcher, openaiClient, limiter)
	if err != nil {
		slog.Error("failed to create summarize service", "err", err)
		os.Exit(1)
	}
	chatSvc, err := usecase.NewChatService(openaiClient)
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}
	historySvc, err := usecase.NewHistoryService(store)
	if err != nil {
		slog.Error("failed to create history service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(summarizeSvc, chatSvc, historySvc)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
