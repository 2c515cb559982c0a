package wire

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/reportcore/internal/analytics"
	"github.com/matthewbaird/reportcore/internal/catalog"
	"github.com/matthewbaird/reportcore/internal/eventbus"
	"github.com/matthewbaird/reportcore/internal/fields"
	"github.com/matthewbaird/reportcore/internal/store"
	"github.com/matthewbaird/reportcore/internal/types"
)

type received struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type fixture struct {
	engine  *analytics.Engine
	handler *Handler
	conn    *websocket.Conn
	session string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	report := catalog.Report{
		ID:   "r1",
		Name: "Informe",
		Fields: fields.MustSet(
			fields.Definition{ID: "asis", Key: "asistentes", Label: "Asistentes", Type: fields.Number, Order: 1},
		),
	}
	engine := analytics.New(catalog.NewMemory(report), store.NewMemoryStore(), analytics.WithLocation(time.UTC))
	h := NewHandler(NewManager(), engine)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws://"+strings.TrimPrefix(srv.URL, "http://"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	f := &fixture{engine: engine, handler: h, conn: conn}
	msg := f.read(t)
	require.Equal(t, TypeSession, msg.Type)
	var sd SessionData
	require.NoError(t, json.Unmarshal(msg.Data, &sd))
	require.NotEmpty(t, sd.SessionID)
	f.session = sd.SessionID
	return f
}

func (f *fixture) write(t *testing.T, typ, id string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, f.conn, ClientMessage{Type: typ, ID: id, Data: raw}))
}

func (f *fixture) read(t *testing.T) received {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg received
	require.NoError(t, wsjson.Read(ctx, f.conn, &msg))
	return msg
}

func TestHandler_PingPong(t *testing.T) {
	f := setup(t)
	f.write(t, TypePing, "p1", nil)
	msg := f.read(t)
	assert.Equal(t, TypePong, msg.Type)
	assert.Equal(t, "p1", msg.RequestID)
}

func TestHandler_AggregateSubscribesToInvalidations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.engine.Import(ctx, "r1", []types.Document{
		{ID: "d1", Values: types.RawBag{"asis": json.RawMessage(`7`)}, Context: types.Context{EntityName: "Célula 1"}},
	})
	require.NoError(t, err)

	f.write(t, TypeAggregate, "q1", AggregateData{ReportID: "r1"})
	msg := f.read(t)
	require.Equal(t, TypeResult, msg.Type)
	assert.Equal(t, "q1", msg.RequestID)
	var res analytics.Result
	require.NoError(t, json.Unmarshal(msg.Data, &res))
	assert.Equal(t, 1, res.EntryCount)
	assert.Equal(t, 7.0, res.Totals.Values["asis"])

	sess := f.handler.sessions.Get(f.session)
	require.NotNil(t, sess)
	assert.Equal(t, []string{"r1"}, sess.Reports())

	require.NoError(t, f.handler.HandleEvent(ctx, eventbus.Event{
		Type:        eventbus.DocumentsImported,
		ReportID:    "r1",
		DocumentIDs: []string{"d2"},
	}))
	msg = f.read(t)
	require.Equal(t, TypeInvalidated, msg.Type)
	var inv InvalidatedData
	require.NoError(t, json.Unmarshal(msg.Data, &inv))
	assert.Equal(t, InvalidatedData{ReportID: "r1", DocumentIDs: []string{"d2"}}, inv)

	f.write(t, TypeUnsubscribe, "u1", UnsubscribeData{ReportID: "r1"})
	f.write(t, TypePing, "p2", nil)
	require.Equal(t, TypePong, f.read(t).Type)
	assert.Empty(t, f.handler.sessions.Watching("r1"))
}

func TestHandler_Compare(t *testing.T) {
	f := setup(t)
	f.write(t, TypeCompare, "c1", CompareData{ReportID: "r1"})
	msg := f.read(t)
	require.Equal(t, TypeComparison, msg.Type)
	assert.Equal(t, "c1", msg.RequestID)
}

func TestHandler_Errors(t *testing.T) {
	f := setup(t)
	cases := []struct {
		typ  string
		data any
		code string
	}{
		{"explode", nil, "unknown_type"},
		{TypeAggregate, map[string]string{}, "invalid_data"},
		{TypeAggregate, AggregateData{ReportID: "missing"}, "not_found"},
		{TypeCompare, "nope", "invalid_data"},
	}
	for i, tc := range cases {
		id := "e" + strconv.Itoa(i)
		f.write(t, tc.typ, id, tc.data)
		msg := f.read(t)
		require.Equal(t, TypeError, msg.Type, tc.typ)
		assert.Equal(t, id, msg.RequestID)
		var e ErrorData
		require.NoError(t, json.Unmarshal(msg.Data, &e))
		assert.Equal(t, tc.code, e.Code, tc.typ)
	}
	assert.Empty(t, f.handler.sessions.Watching("missing"))
}

func TestManager(t *testing.T) {
	m := NewManager()
	s := m.Create(nil)
	assert.Equal(t, 1, m.Len())
	assert.Same(t, s, m.Get(s.ID))

	s.Subscribe("b")
	s.Subscribe("a")
	assert.Equal(t, []string{"a", "b"}, s.Reports())
	assert.Len(t, m.Watching("a"), 1)
	assert.Empty(t, m.Watching("c"))

	m.Remove(s.ID)
	assert.Nil(t, m.Get(s.ID))
	assert.Equal(t, 0, m.Len())
}
