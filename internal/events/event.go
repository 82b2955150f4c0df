// Package events holds the in-memory representation of live pipeline
// activity: the normalized change event and the bounded buffer the watch
// view reads from.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telcoflow/console/internal/api"
)

// Operation is the normalized change operation.
type Operation string

const (
	OpInsert  Operation = "insert"
	OpUpdate  Operation = "update"
	OpDelete  Operation = "delete"
	OpRead    Operation = "read"
	OpUnknown Operation = "unknown"
)

// ParseOperation maps pipeline op codes to the normalized operation. The
// connector emits single-letter Debezium codes; snapshot endpoints may spell
// the words out.
func ParseOperation(s string) Operation {
	switch s {
	case "c", "create", "insert":
		return OpInsert
	case "u", "update":
		return OpUpdate
	case "d", "delete":
		return OpDelete
	case "r", "read", "snapshot":
		return OpRead
	default:
		return OpUnknown
	}
}

// ChangeEvent is one normalized change record as held in the buffer. Before,
// After, and Source stay opaque: the console renders them, it never
// interprets them.
type ChangeEvent struct {
	ID        string
	Timestamp int64 // epoch ms, producer change time or receipt time
	Operation Operation
	Topic     string
	Table     string
	Before    json.RawMessage
	After     json.RawMessage
	Source    json.RawMessage
}

// Time returns the event timestamp as a time.Time.
func (e ChangeEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// FromRecord normalizes one wire record. Records without an id get a fresh
// uuid so every buffered event is individually addressable. Timestamp
// deliberately prefers the producer ts_ms over the receipt time: the
// producer clock orders events the way the pipeline saw them, and receipt
// time is used only when the envelope carries no timestamp at all.
func FromRecord(topic string, rec api.ChangeRecord) ChangeEvent {
	ev := ChangeEvent{
		ID:        rec.ID,
		Timestamp: rec.TsMs,
		Operation: ParseOperation(rec.Op),
		Topic:     topic,
		Table:     rec.Table,
		Before:    rec.Before,
		After:     rec.After,
		Source:    rec.Source,
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	return ev
}

// FromEnvelope decodes a raw streaming payload into a normalized event.
func FromEnvelope(topic string, payload json.RawMessage) (ChangeEvent, error) {
	var rec api.ChangeRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return ChangeEvent{}, fmt.Errorf("events: decode envelope: %w", err)
	}
	return FromRecord(topic, rec), nil
}
