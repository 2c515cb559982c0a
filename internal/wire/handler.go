package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/matthewbaird/reportcore/internal/aggregate"
	"github.com/matthewbaird/reportcore/internal/analytics"
	"github.com/matthewbaird/reportcore/internal/catalog"
	"github.com/matthewbaird/reportcore/internal/eventbus"
	"github.com/matthewbaird/reportcore/internal/filter"
	"github.com/matthewbaird/reportcore/internal/insight"
)

const (
	defaultIdleTimeout = 30 * time.Minute
	writeTimeout       = 5 * time.Second
)

// Querier runs analytics queries.
type Querier interface {
	Run(ctx context.Context, q analytics.Query) (analytics.Result, error)
	Compare(ctx context.Context, q analytics.Query, previous filter.Active) (aggregate.Comparison, error)
}

// Handler manages WebSocket connections for live analytics.
type Handler struct {
	sessions    *Manager
	engine      Querier
	idleTimeout time.Duration
	logger      zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithIdleTimeout closes connections that send nothing for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.idleTimeout = d
		}
	}
}

// WithLogger sets the handler's logger.
func WithLogger(l zerolog.Logger) Option { return func(h *Handler) { h.logger = l } }

// NewHandler creates a WebSocket handler.
func NewHandler(sessions *Manager, engine Querier, opts ...Option) *Handler {
	h := &Handler{
		sessions:    sessions,
		engine:      engine,
		idleTimeout: defaultIdleTimeout,
		logger:      log.Logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades to WebSocket and runs the message loop.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("wire: websocket accept")
		return
	}
	defer conn.CloseNow()

	sess := h.sessions.Create(conn)
	defer h.sessions.Remove(sess.ID)
	ctx := r.Context()

	h.send(ctx, sess, ServerMessage{
		Type: TypeSession,
		Data: SessionData{SessionID: sess.ID},
	})

	for {
		var msg ClientMessage
		readCtx, cancel := context.WithTimeout(ctx, h.idleTimeout)
		err := wsjson.Read(readCtx, conn, &msg)
		cancel()
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				h.logger.Debug().Str("session_id", sess.ID).Int("status", int(status)).Msg("wire: connection closed")
			} else if errors.Is(err, context.DeadlineExceeded) {
				h.logger.Debug().Str("session_id", sess.ID).Msg("wire: idle timeout")
			}
			return
		}
		sess.Touch()

		switch msg.Type {
		case TypeAggregate:
			h.handleAggregate(ctx, sess, msg)
		case TypeCompare:
			h.handleCompare(ctx, sess, msg)
		case TypeUnsubscribe:
			var data UnsubscribeData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				h.sendError(ctx, sess, msg.ID, "invalid_data", "invalid unsubscribe data")
				continue
			}
			sess.Unsubscribe(data.ReportID)
		case TypePing:
			h.send(ctx, sess, ServerMessage{Type: TypePong, RequestID: msg.ID})
		default:
			h.sendError(ctx, sess, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Handler) handleAggregate(ctx context.Context, sess *Session, msg ClientMessage) {
	var data AggregateData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.ReportID == "" {
		h.sendError(ctx, sess, msg.ID, "invalid_data", "invalid aggregate data")
		return
	}

	res, err := h.engine.Run(ctx, analytics.Query{
		ReportID: data.ReportID,
		Filters:  data.Filters,
		GroupBy:  data.GroupBy,
		Insights: data.Insights,
		Universe: data.Universe,
	})
	if err != nil {
		h.queryError(ctx, sess, msg.ID, err)
		return
	}
	sess.Subscribe(data.ReportID)
	h.send(ctx, sess, ServerMessage{Type: TypeResult, RequestID: msg.ID, Data: res})
}

func (h *Handler) handleCompare(ctx context.Context, sess *Session, msg ClientMessage) {
	var data CompareData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.ReportID == "" {
		h.sendError(ctx, sess, msg.ID, "invalid_data", "invalid compare data")
		return
	}

	cmp, err := h.engine.Compare(ctx, analytics.Query{
		ReportID: data.ReportID,
		Filters:  data.Filters,
		GroupBy:  data.GroupBy,
		Insights: []insight.Config{},
		Universe: data.Universe,
	}, data.PreviousFilters)
	if err != nil {
		h.queryError(ctx, sess, msg.ID, err)
		return
	}
	sess.Subscribe(data.ReportID)
	h.send(ctx, sess, ServerMessage{Type: TypeComparison, RequestID: msg.ID, Data: cmp})
}

func (h *Handler) queryError(ctx context.Context, sess *Session, requestID string, err error) {
	if errors.Is(err, catalog.ErrReportNotFound) {
		h.sendError(ctx, sess, requestID, "not_found", err.Error())
		return
	}
	h.logger.Error().Err(err).Str("session_id", sess.ID).Msg("wire: query failed")
	h.sendError(ctx, sess, requestID, "query_error", "query failed")
}

// HandleEvent implements eventbus.Handler, notifying the sessions watching an
// imported report.
func (h *Handler) HandleEvent(ctx context.Context, evt eventbus.Event) error {
	if evt.Type != eventbus.DocumentsImported {
		return nil
	}
	for _, sess := range h.sessions.Watching(evt.ReportID) {
		h.send(ctx, sess, ServerMessage{
			Type: TypeInvalidated,
			Data: InvalidatedData{ReportID: evt.ReportID, DocumentIDs: evt.DocumentIDs},
		})
	}
	return nil
}

func (h *Handler) send(ctx context.Context, sess *Session, msg ServerMessage) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, sess.conn, msg); err != nil {
		h.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("wire: write error")
	}
}

func (h *Handler) sendError(ctx context.Context, sess *Session, requestID, code, message string) {
	h.send(ctx, sess, ServerMessage{
		Type:      TypeError,
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}
