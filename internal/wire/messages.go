// Package wire defines the WebSocket protocol for live report analytics.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/reportcore/internal/aggregate"
	"github.com/matthewbaird/reportcore/internal/filter"
	"github.com/matthewbaird/reportcore/internal/insight"
)

// Message types.
const (
	TypeAggregate   = "aggregate"
	TypeCompare     = "compare"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"

	TypeSession     = "session"
	TypeResult      = "result"
	TypeComparison  = "comparison"
	TypeInvalidated = "invalidated"
	TypeError       = "error"
	TypePong        = "pong"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "aggregate", "compare", "unsubscribe", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// AggregateData is the payload for "aggregate" messages. The session is subscribed
// to the report's invalidations once the query succeeds.
type AggregateData struct {
	ReportID string              `json:"report_id"`
	Filters  filter.Active       `json:"filters,omitempty"`
	GroupBy  aggregate.Dimension `json:"group_by,omitempty"`
	Insights []insight.Config    `json:"insights,omitempty"`
	Universe []string            `json:"universe,omitempty"`
}

// CompareData is the payload for "compare" messages.
type CompareData struct {
	ReportID        string              `json:"report_id"`
	Filters         filter.Active       `json:"filters,omitempty"`
	PreviousFilters filter.Active       `json:"previous_filters,omitempty"`
	GroupBy         aggregate.Dimension `json:"group_by,omitempty"`
	Universe        []string            `json:"universe,omitempty"`
}

// UnsubscribeData is the payload for "unsubscribe" messages.
type UnsubscribeData struct {
	ReportID string `json:"report_id"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "result", "comparison", "invalidated", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// InvalidatedData tells a subscribed session that a report has new documents.
type InvalidatedData struct {
	ReportID    string   `json:"report_id"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID string `json:"session_id"`
}
