package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/display"
	"github.com/Dlizzz/catspaw/internal/infrastructure/config"
	"github.com/Dlizzz/catspaw/internal/infrastructure/logging"
)

// WebSocket constants.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64
)

// Broadcast channels.
const (
	ChannelAVRState = "avr.state"
	ChannelAVRPopup = "avr.popup"
)

// channelSet is a client's subscriptions, one bit per channel.
type channelSet uint8

const (
	chanState channelSet = 1 << iota
	chanPopup
)

func channelBit(name string) (channelSet, bool) {
	switch name {
	case ChannelAVRState:
		return chanState, true
	case ChannelAVRPopup:
		return chanPopup, true
	}
	return 0, false
}

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// StateEvent is the avr.state payload.
type StateEvent struct {
	Event   string    `json:"event"`
	Command string    `json:"command,omitempty"`
	State   avr.State `json:"state"`
}

// encodeMessage stamps and marshals msg.
func encodeMessage(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(msg)
}

// Hub fans controller events and popup visibility out to the connected
// presentation clients.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one presentation client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// mu guards subs and closed; send is closed only with closed set.
	mu     sync.RWMutex
	subs   channelSet
	closed bool
}

// keepalive holds the ping cadence and the read/write deadlines derived
// from the websocket config.
type keepalive struct {
	ping      time.Duration
	readWait  time.Duration
	writeWait time.Duration
	readLimit int64
}

func newKeepalive(cfg config.WebSocketConfig) keepalive {
	// Non-positive values fall back to the defaults; a zero ticker panics.
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return keepalive{
		ping:      ping,
		readWait:  ping + pong,
		writeWait: pong,
		readLimit: int64(cfg.MaxMessageSize),
	}
}

const (
	defaultPingInterval   = 30
	defaultPongTimeout    = 10
	defaultMaxMessageSize = 4096
)

// Origin checks are left to the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client and closes its outbound queue. Safe to
// call more than once and concurrently with closeAll.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	client.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast queues payload for every client subscribed to channel.
// Slow clients whose queue is full miss the message.
func (h *Hub) Broadcast(channel string, payload any) {
	bit, ok := channelBit(channel)
	if !ok {
		h.logger.Error("broadcast on unknown channel", "channel", channel)
		return
	}

	data, err := encodeMessage(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.deliver(bit, data)
	}
}

// Observe is an avr.Controller subscriber broadcasting on avr.state.
func (h *Hub) Observe(ev avr.Event) {
	h.Broadcast(ChannelAVRState, StateEvent{
		Event:   string(ev.Type),
		Command: ev.Command.String(),
		State:   ev.State,
	})
}

// PublishPopup is a display.Sink broadcasting on avr.popup.
func (h *Hub) PublishPopup(v display.Visibility) {
	h.Broadcast(ChannelAVRPopup, v)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client; their pumps exit on the closed
// queue and connection.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// handleWebSocket upgrades the request. With auth enabled a ticket from
// POST /auth/ws-ticket is required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.secCfg.JWT.Secret != "" {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		if !s.tickets.consume(ticket) {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	s.hub.Register(client)

	ka := newKeepalive(s.wsCfg)
	go client.writePump(ka)
	go client.readPump(ka, s.controller.State)
}

// readPump handles inbound messages until the connection fails, then
// unregisters the client.
func (c *WSClient) readPump(ka keepalive, snapshot func() avr.State) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ka.readWait)) }
	c.conn.SetReadLimit(ka.readLimit)
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handleMessage(data, snapshot)
	}
}

// writePump drains the outbound queue and pings on the keepalive cadence.
func (c *WSClient) writePump(ka keepalive) {
	ticker := time.NewTicker(ka.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(ka.writeWait)) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte, snapshot func() avr.State) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg, snapshot)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// parseChannels decodes a (un)subscribe payload into channel bits.
func parseChannels(payload any) ([]string, channelSet, string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, "invalid payload"
	}
	var p WSSubscribePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, 0, "invalid payload"
	}
	var set channelSet
	for _, name := range p.Channels {
		bit, ok := channelBit(name)
		if !ok {
			return nil, 0, "unknown channel: " + name
		}
		set |= bit
	}
	return p.Channels, set, ""
}

// subscribe adds channels; a new avr.state subscriber gets a snapshot
// right after the response.
func (c *WSClient) subscribe(msg WSMessage, snapshot func() avr.State) {
	names, set, problem := parseChannels(msg.Payload)
	if problem != "" {
		c.sendError(msg.ID, problem)
		return
	}

	c.mu.Lock()
	c.subs |= set
	c.mu.Unlock()
	c.hub.logger.Debug("websocket client subscribed", "channels", names)

	c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": names})

	if set&chanState != 0 && snapshot != nil {
		data, err := encodeMessage(WSMessage{
			Type:      WSTypeEvent,
			EventType: ChannelAVRState,
			Payload:   StateEvent{Event: "snapshot", State: snapshot()},
		})
		if err == nil {
			c.deliver(chanState, data)
		}
	}
}

func (c *WSClient) unsubscribe(msg WSMessage) {
	names, set, problem := parseChannels(msg.Payload)
	if problem != "" {
		c.sendError(msg.ID, problem)
		return
	}

	c.mu.Lock()
	c.subs &^= set
	c.mu.Unlock()

	c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": names})
}

// deliver queues data when the client follows bit; 0 means always.
func (c *WSClient) deliver(bit channelSet, data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || (bit != 0 && c.subs&bit == 0) {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// shutdown closes the outbound queue once.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := encodeMessage(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.deliver(0, data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
