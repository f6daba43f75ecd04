// Command local runs the handler as a plain HTTP server for development,
// mirroring the hosted runtime on the port the frontend expects.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"so-summarizer/handler"
	"so-summarizer/internal/integrations/openai"
	"so-summarizer/internal/integrations/paramstore"
	"so-summarizer/internal/integrations/scraper"
	"so-summarizer/internal/ratelimit"
	"so-summarizer/internal/repository"
	"so-summarizer/internal/usecase"
)

type localConfig struct {
	Port             string `env:"PORT" envDefault:"7071"`
	HistoryTable     string `env:"HISTORY_TABLE" envDefault:"query-history"`
	ParamPrefix      string `env:"PARAM_PREFIX" envDefault:"/so-summarizer"`
	WriteMode        string `env:"HISTORY_WRITE_MODE" envDefault:"upsert"`
	RateLimitSeconds int    `env:"RATE_LIMIT_SECONDS" envDefault:"20"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
}

func main() {
	ctx := context.Background()

	var cfg localConfig
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "err", err)
		os.Exit(1)
	}

	h, err := buildHandler(ctx, cfg)
	if err != nil {
		slog.Error("failed to build handler", "err", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Correlation-Id"},
	}))
	r.HandleFunc("/*", proxyToLambda(h))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("local server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(timeoutCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

func buildHandler(ctx context.Context, cfg localConfig) (*handler.Handler, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}

	writeMode, err := repository.ParseWriteMode(cfg.WriteMode)
	if err != nil {
		return nil, err
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.HistoryTable, writeMode)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureTable(ctx); err != nil {
		return nil, err
	}

	prefix := strings.TrimRight(cfg.ParamPrefix, "/")
	model, err := ssmClient.GetParameterWithDefault(ctx, prefix+"/config/openai_model", "")
	if err != nil {
		return nil, err
	}
	opts := []openai.Option{openai.WithModel(model)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	openaiClient, err := openai.NewClient(ssmClient, prefix, opts...)
	if err != nil {
		return nil, err
	}

	summarizeSvc, err := usecase.NewSummarizeService(scraper.New(), openaiClient, ratelimit.New(time.Duration(cfg.RateLimitSeconds)*time.Second))
	if err != nil {
		return nil, err
	}
	chatSvc, err := usecase.NewChatService(openaiClient)
	if err != nil {
		return nil, err
	}
	historySvc, err := usecase.NewHistoryService(store)
	if err != nil {
		return nil, err
	}

	return handler.NewHandler(summarizeSvc, chatSvc, historySvc)
}

// proxyToLambda adapts a plain HTTP request to the API Gateway proxy event
// the Lambda handler consumes, so both runtimes share one code path.
func proxyToLambda(h *handler.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}
		query := make(map[string]string)
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}

		resp, err := h.Handle(r.Context(), events.APIGatewayProxyRequest{
			HTTPMethod:            r.Method,
			Path:                  r.URL.Path,
			Headers:               headers,
			QueryStringParameters: query,
			Body:                  string(body),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(resp.Body))
	}
}
