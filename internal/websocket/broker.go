// Package websocket streams exchange events to subscribed clients. Clients
// subscribe to the token topic an event belongs to, or to AllTopics.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 512 * 1024 // 512 KB
	defaultSendBuf      = 256
	defaultPublishBuf   = 4096
	maxConsecutiveDrops = 50
)

// AllTopics receives every event.
const AllTopics = "*"

// Message is what a subscriber receives for one event.
type Message struct {
	Type  string      `json:"type"`
	Seq   uint64      `json:"seq"`
	Event model.Event `json:"event"`
}

func subscribedAck(topic string) []byte {
	b, _ := json.Marshal(struct {
		Type  string `json:"type"`
		Topic string `json:"topic"`
	}{"subscribed", topic})
	return b
}

type publishMsg struct {
	Topic string
	Data  []byte
}

type subscription struct {
	client *Client
	topic  string
}

// Hub manages clients, subscriptions and publishes.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan publishMsg
	done        chan struct{}

	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}

	sendBuf int
	seq     sequencer

	publishDrops uint64
	clientCount  int64

	logger log.Logger
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subscribed map[string]struct{}

	// consecutive drops; the client is evicted past maxConsecutiveDrops
	drops int
}

func NewHub(logger log.Logger) *Hub {
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan publishMsg, defaultPublishBuf),
		done:        make(chan struct{}),
		clients:     make(map[*Client]struct{}),
		topics:      make(map[string]map[*Client]struct{}),
		sendBuf:     defaultSendBuf,
		logger:      logger.With("module", "websocket"),
	}
}

// Run runs the hub event loop until ctx is cancelled. Call as: go hub.Run(ctx).
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			atomic.AddInt64(&h.clientCount, 1)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			subs := h.topics[sub.topic]
			if subs == nil {
				subs = make(map[*Client]struct{})
				h.topics[sub.topic] = subs
			}
			subs[sub.client] = struct{}{}
			sub.client.subscribed[sub.topic] = struct{}{}
			h.deliver(sub.client, subscribedAck(sub.topic))

		case sub := <-h.unsubscribe:
			h.leave(sub.client, sub.topic)

		case p := <-h.publish:
			sent := make(map[*Client]struct{})
			for _, topic := range []string{p.Topic, AllTopics} {
				for c := range h.topics[topic] {
					if _, ok := sent[c]; ok {
						continue
					}
					sent[c] = struct{}{}
					h.deliver(c, p.Data)
				}
			}

		case <-ctx.Done():
			h.logger.Info("ws hub shutting down")
			close(h.done)
			for c := range h.clients {
				h.drop(c)
				_ = c.conn.Close()
			}
			return
		}
	}
}

// request hands sub to the event loop. It reports false once the hub has
// stopped.
func (h *Hub) request(ch chan subscription, sub subscription) bool {
	select {
	case ch <- sub:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client, topic string) {
	if subs := h.topics[topic]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(c.subscribed, topic)
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	atomic.AddInt64(&h.clientCount, -1)
	for t := range c.subscribed {
		h.leave(c, t)
	}
	close(c.send)
}

func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
		c.drops = 0
	default:
		atomic.AddUint64(&h.publishDrops, 1)
		c.drops++
		if c.drops > maxConsecutiveDrops {
			h.logger.Info("evicting slow client", "drops", c.drops)
			h.drop(c)
			_ = c.conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client. Initial topics may be
// passed as ?topics=<3,0>/01000000,<3,0>/02000000.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		subscribed: make(map[string]struct{}),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	if s := r.URL.Query().Get("topics"); s != "" {
		for _, topic := range strings.Split(s, ",") {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				continue
			}
			h.request(h.subscribe, subscription{client: client, topic: topic})
		}
	}

	go client.writePump()
	go client.readPump()
}

// readPump turns client commands into subscribe/unsubscribe requests.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read failed", "err", err)
			}
			return
		}

		var cmd struct {
			Type  string `json:"type"` // "subscribe" | "unsubscribe"
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Debug("invalid client message", "err", err)
			continue
		}
		if cmd.Topic == "" {
			continue
		}

		ok := true
		switch cmd.Type {
		case "subscribe":
			ok = c.hub.request(c.hub.subscribe, subscription{client: c, topic: cmd.Topic})
		case "unsubscribe":
			ok = c.hub.request(c.hub.unsubscribe, subscription{client: c, topic: cmd.Topic})
		}
		if !ok {
			return
		}
	}
}

// writePump serializes all writes to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish sends event to the subscribers of its token topic. It never blocks:
// when the publish buffer is full the event is dropped.
func (h *Hub) Publish(event model.Event) {
	b, err := json.Marshal(Message{Type: "event", Seq: h.seq.next(event.Token), Event: event})
	if err != nil {
		h.logger.Error("marshal event", "err", err)
		return
	}

	select {
	case h.publish <- publishMsg{Topic: event.Token, Data: b}:
	default:
		atomic.AddUint64(&h.publishDrops, 1)
		h.logger.Error("publish channel full, dropping event", "kind", event.Kind, "token", event.Token)
	}
}

// Stats returns the number of connected clients and dropped messages.
func (h *Hub) Stats() (clients int, drops uint64) {
	return int(atomic.LoadInt64(&h.clientCount)), atomic.LoadUint64(&h.publishDrops)
}
