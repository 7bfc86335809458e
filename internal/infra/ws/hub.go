package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/domain/notify"
)

// Conn is one client's delivery channel.
type Conn interface {
	// Send enqueues ev without blocking; false means it was dropped.
	Send(ev notify.Event) bool
	Close()
}

// Counters receives connection and drop counts; optional.
type Counters interface {
	ConnOpened()
	ConnClosed()
	EventDropped()
}

// Hub multiplexes events to the clients subscribed to a change set.
// All methods are safe for concurrent use.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
	subs  *Registry

	Log      logrus.FieldLogger
	Counters Counters
}

var _ notify.Publisher = (*Hub)(nil)

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		conns: make(map[string]Conn),
		subs:  NewRegistry(),
		Log:   log,
	}
}

// Connect registers conn for client. A previous connection is closed and the
// subscription set starts empty.
func (h *Hub) Connect(client string, conn Conn) {
	h.mu.Lock()
	prev, had := h.conns[client]
	h.conns[client] = conn
	h.subs.Reset(client)
	h.mu.Unlock()

	switch {
	case had && prev != conn:
		prev.Close()
		h.Log.WithField("client_id", client).Info("ws: connection superseded")
	case !had && h.Counters != nil:
		h.Counters.ConnOpened()
	}
}

// Disconnect removes client's connection and subscriptions. Idempotent.
func (h *Hub) Disconnect(client string) {
	h.mu.Lock()
	conn, ok := h.conns[client]
	delete(h.conns, client)
	h.subs.Drop(client)
	h.mu.Unlock()

	if ok {
		conn.Close()
		if h.Counters != nil {
			h.Counters.ConnClosed()
		}
	}
}

// Release is Disconnect for the transport: it only acts if conn is still the
// registered connection, so a superseded read loop cannot evict its successor.
func (h *Hub) Release(client string, conn Conn) {
	h.mu.Lock()
	cur, ok := h.conns[client]
	if !ok || cur != conn {
		h.mu.Unlock()
		return
	}
	delete(h.conns, client)
	h.subs.Drop(client)
	h.mu.Unlock()

	conn.Close()
	if h.Counters != nil {
		h.Counters.ConnClosed()
	}
}

// Subscribe is a no-op for clients that are not connected.
func (h *Hub) Subscribe(client, cs string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs.Add(client, cs)
}

func (h *Hub) Unsubscribe(client, cs string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs.Remove(client, cs)
}

// Subscriptions returns a copy of client's subscription set.
func (h *Hub) Subscriptions(client string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subs.Of(client)
}

// Connected reports whether client has a live connection.
func (h *Hub) Connected(client string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[client]
	return ok
}

// SendTo delivers ev to one client; dropped silently if absent or backed up.
func (h *Hub) SendTo(client string, ev notify.Event) {
	h.mu.RLock()
	conn, ok := h.conns[client]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.send(client, conn, ev)
}

// Publish delivers ev to every subscriber of cs.
func (h *Hub) Publish(cs string, ev notify.Event) {
	h.mu.RLock()
	clients := h.subs.Subscribers(cs)
	targets := make(map[string]Conn, len(clients))
	for _, c := range clients {
		if conn, ok := h.conns[c]; ok {
			targets[c] = conn
		}
	}
	h.mu.RUnlock()

	for client, conn := range targets {
		h.send(client, conn, ev)
	}
}

func (h *Hub) send(client string, conn Conn, ev notify.Event) {
	if conn.Send(ev) {
		return
	}
	if h.Counters != nil {
		h.Counters.EventDropped()
	}
	h.Log.WithFields(logrus.Fields{"client_id": client, "type": ev.Type}).Debug("ws: event dropped")
}

// Close closes every connection (process shutdown).
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]Conn)
	h.subs = NewRegistry()
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
		if h.Counters != nil {
			h.Counters.ConnClosed()
		}
	}
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandleInbound dispatches one client message. Messages without a pr_id (or
// with an empty one: null, false, 0, "", [], {}) and unknown types are ignored;
// malformed input yields an error event to the sender.
func (h *Hub) HandleInbound(client string, raw []byte) {
	if err := h.handleInbound(client, raw); err != nil {
		h.Log.WithField("client_id", client).WithError(err).Debug("ws: bad inbound message")
		h.SendTo(client, notify.Event{
			Type:    notify.TypeError,
			Payload: map[string]string{"message": err.Error()},
		})
	}
}

func (h *Hub) handleInbound(client string, raw []byte) error {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	switch msg.Type {
	case notify.TypeSubscribePR, notify.TypeUnsubscribePR, notify.TypeNewComment, notify.TypeSuggestionStatus:
	default:
		return nil
	}

	var body map[string]json.RawMessage
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &body); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}
	rawID, ok := body["pr_id"]
	if !ok || falsy(rawID) {
		return nil
	}
	var cs analysis.ChangeSetID
	if err := json.Unmarshal(rawID, &cs); err != nil {
		return err
	}
	id := string(cs)

	switch msg.Type {
	case notify.TypeSubscribePR:
		h.Subscribe(client, id)
		h.SendTo(client, notify.Event{Type: notify.TypeSubscribed, Payload: map[string]json.RawMessage{"pr_id": rawID}})
	case notify.TypeUnsubscribePR:
		h.Unsubscribe(client, id)
		h.SendTo(client, notify.Event{Type: notify.TypeUnsubscribed, Payload: map[string]json.RawMessage{"pr_id": rawID}})
	case notify.TypeNewComment:
		h.Publish(id, notify.Event{Type: notify.TypeCommentAdded, Payload: msg.Payload})
	case notify.TypeSuggestionStatus:
		h.Publish(id, notify.Event{Type: notify.TypeSuggestionUpdated, Payload: msg.Payload})
	}
	return nil
}

func falsy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}
