package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"so-summarizer/internal/domain"
	"so-summarizer/internal/repository"
)

// HistoryService persists and retrieves per-user query history.
type HistoryService struct {
	store repository.HistoryStore
	now   func() time.Time
}

type StoreInput struct {
	UserID      string
	URL         string
	PageContent string
	Summary     string
	Queries     json.RawMessage
}

func NewHistoryService(store repository.HistoryStore) (*HistoryService, error) {
	if store == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	return &HistoryService{store: store, now: time.Now}, nil
}

// Store validates the input, derives the record id, stamps the write time,
// and appends the record. Duplicate handling follows the store's configured
// write mode.
func (s *HistoryService) Store(ctx context.Context, in StoreInput) (domain.QueryHistoryRecord, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.URL) == "" ||
		strings.TrimSpace(in.PageContent) == "" || strings.TrimSpace(in.Summary) == "" {
		return domain.QueryHistoryRecord{}, newError(ErrorInvalidInput, "Missing required fields", nil)
	}
	if len(in.Queries) > 0 {
		if !json.Valid(in.Queries) || !isJSONArray(in.Queries) {
			return domain.QueryHistoryRecord{}, newError(ErrorInvalidInput, "queries must be a JSON array", nil)
		}
	}

	record := domain.QueryHistoryRecord{
		ID:          RecordID(in.UserID, in.URL),
		UserID:      in.UserID,
		URL:         in.URL,
		PageContent: in.PageContent,
		Summary:     in.Summary,
		Queries:     in.Queries,
		Timestamp:   s.now().UTC().Format(time.RFC3339),
	}

	if err := s.store.Append(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			return domain.QueryHistoryRecord{}, newError(ErrorInvalidInput, "A record for this URL already exists", err)
		}
		return domain.QueryHistoryRecord{}, newError(ErrorInternal, "Could not store query history", err)
	}
	return record, nil
}

// Retrieve returns the user's records newest first. An unknown user gets an
// empty slice.
func (s *HistoryService) Retrieve(ctx context.Context, userID string) ([]domain.QueryHistoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(ErrorInvalidInput, "Please pass a userId", nil)
	}

	records, err := s.store.QueryByUser(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "Could not retrieve query history", err)
	}
	return records, nil
}

// RecordID derives the deterministic per-(userId, url) record id. The same
// pair always maps to the same id, making it the dedup key.
func RecordID(userID, url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(userID+"|"+url)).String()
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "[")
}
