package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/automaton-review/internal/domain/notify"
)

const (
	maxMessageSize = 64 << 10
	writeWait      = 10 * time.Second
)

// Options tune a websocket connection.
type Options struct {
	SendBuffer        int
	HeartbeatInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 1000
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	return o
}

// WSConn is a Conn backed by a gorilla websocket. Events are written by a
// single write pump in enqueue order.
type WSConn struct {
	ws        *websocket.Conn
	send      chan notify.Event
	done      chan struct{}
	closeOnce sync.Once
	heartbeat time.Duration
	log       logrus.FieldLogger
}

func NewWSConn(ws *websocket.Conn, opts Options, log logrus.FieldLogger) *WSConn {
	opts = opts.withDefaults()
	return &WSConn{
		ws:        ws,
		send:      make(chan notify.Event, opts.SendBuffer),
		done:      make(chan struct{}),
		heartbeat: opts.HeartbeatInterval,
		log:       log,
	}
}

func (c *WSConn) Send(ev notify.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the socket.
func (c *WSConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *WSConn) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.log.WithError(err).Debug("ws: write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *WSConn) readPump(h *Hub, client string) {
	pongWait := 2 * c.heartbeat
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("ws: read failed")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		h.HandleInbound(client, data)
	}
}

// Serve registers ws for client and blocks until the connection ends.
func Serve(h *Hub, client string, ws *websocket.Conn, opts Options) {
	log := h.Log.WithField("client_id", client)
	c := NewWSConn(ws, opts, log)
	h.Connect(client, c)
	log.Info("ws: client connected")

	go c.writePump()
	c.readPump(h, client)

	h.Release(client, c)
	c.Close()
	log.Info("ws: client disconnected")
}
