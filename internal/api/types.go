package api

import (
	"encoding/json"
)

// ---------------------------------------------------------------------------
// Change pipeline  GET /v1/pipeline/...
// ---------------------------------------------------------------------------

// ChangeRecord is the wire format for a single change-data-capture record,
// both on the streaming channel and in snapshot responses. The envelope is
// produced by the upstream pipeline and consumed as-is: before, after, and
// source are opaque to the console.
type ChangeRecord struct {
	ID     string          `json:"id,omitempty"`
	Op     string          `json:"op"`
	Table  string          `json:"table,omitempty"`
	TsMs   int64           `json:"ts_ms,omitempty"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
	Source json.RawMessage `json:"source,omitempty"`
}

// RecentChangesResponse is the snapshot of recent records for one topic.
type RecentChangesResponse struct {
	Topic   string         `json:"topic"`
	Records []ChangeRecord `json:"records"`
}

// TopicInfo describes one subscribable pipeline topic.
type TopicInfo struct {
	Name      string `json:"name"`
	Connector string `json:"connector"`
	Table     string `json:"table,omitempty"`
}

// TopicsResponse lists the pipeline topics available for subscription.
type TopicsResponse struct {
	Topics []TopicInfo `json:"topics"`
}
