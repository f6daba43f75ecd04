package domain

import "encoding/json"

// QueryHistoryRecord is one persisted summarize-and-chat session for a user.
// JSON tags match the wire format served by the retrieve endpoint.
type QueryHistoryRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	URL         string          `json:"url"`
	PageContent string          `json:"pageContent"`
	Summary     string          `json:"summary"`
	Queries     json.RawMessage `json:"queries,omitempty"`
	Timestamp   string          `json:"timestamp"`
}
