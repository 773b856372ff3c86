package controller

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/cesa-network/cesavote/pkg/redis"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const recentOnSubscribe = 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the frontend origin once it is configurable
		return true
	},
}

// ClientMessage is sent by WebSocket clients.
type ClientMessage struct {
	Action     string `json:"action"`     // "subscribe" or "unsubscribe"
	ElectionID string `json:"electionId"` // election id, or "*" for every election
}

// ServerMessage is sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"` // "vote.recorded", "subscribed", "unsubscribed", "error", "info"
	Payload interface{} `json:"payload"`
}

// clientSubscriptions tracks the elections a client follows.
type clientSubscriptions struct {
	mu        sync.RWMutex
	elections map[string]bool
}

func NewClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{elections: make(map[string]bool)}
}

func (cs *clientSubscriptions) Subscribe(electionID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.elections[electionID] = true
}

func (cs *clientSubscriptions) Unsubscribe(electionID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.elections, electionID)
}

// IsSubscribed reports whether events of electionID should be forwarded. The
// wildcard "*" matches every election.
func (cs *clientSubscriptions) IsSubscribed(electionID string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.elections["*"] || cs.elections[electionID]
}

// HandleWebSocket streams vote events published to Redis.
//
// Client sends: {"action": "subscribe", "electionId": "3"} or "*" for all.
// Server sends: {"type": "vote.recorded", "payload": {...}} plus
// subscribed/unsubscribed/error/info control messages. Payloads never carry
// a voter.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}()

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := NewClientSubscriptions()
	send := make(chan ServerMessage, 256)

	guard := func(name string, fn func()) func() {
		return func() {
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in WebSocket goroutine",
						zap.String("goroutine", name),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					cancel()
				}
			}()
			fn()
		}
	}

	// Producers stop before send is closed; the writer drains it last.
	var producers, writer sync.WaitGroup
	producers.Add(2)
	go func() {
		defer producers.Done()
		guard("redis", func() { c.subscribeToRedis(ctx, send, subs) })()
	}()
	go func() {
		defer producers.Done()
		guard("ping", func() { c.sendPings(ctx, conn) })()
	}()
	writer.Add(1)
	go func() {
		defer writer.Done()
		guard("writer", func() { c.writeMessages(conn, send) })()
	}()

	c.readClientMessages(ctx, conn, cancel, subs, send)

	cancel()
	producers.Wait()
	close(send)
	writer.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis keeps a pattern subscription alive, reconnecting with
// jittered exponential backoff until ctx ends.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := c.attemptRedisSubscription(ctx, send, subs)
		if ctx.Err() != nil {
			return
		}
		c.App.Logger.Warn("Redis subscription ended, will retry",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		select {
		case send <- ServerMessage{Type: "error", Payload: map[string]interface{}{
			"message":     "Redis connection lost, attempting to reconnect...",
			"retryIn":     backoff.Seconds(),
			"recoverable": true,
		}}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

func (c *Controller) attemptRedisSubscription(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, redis.VotePattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	return c.processRedisMessages(ctx, pubsub, send, subs)
}

func (c *Controller) processRedisMessages(ctx context.Context, pubsub *goredis.PubSub, send chan<- ServerMessage, subs *clientSubscriptions) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			electionID, ok := redis.ElectionFromChannel(msg.Channel)
			if !ok || !subs.IsSubscribed(strconv.FormatInt(electionID, 10)) {
				continue
			}
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Warn("Failed to parse Redis message", zap.Error(err), zap.String("channel", msg.Channel))
				continue
			}
			select {
			case send <- ServerMessage{Type: "vote.recorded", Payload: payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// recentEvents reads the newest stream entries for electionID ("*" for all),
// oldest first.
func (c *Controller) recentEvents(ctx context.Context, electionID string) []map[string]interface{} {
	entries, err := c.App.RedisClient.XRevRange(ctx, redis.VoteStream, recentOnSubscribe*5)
	if err != nil {
		c.App.Logger.Debug("Failed to read recent vote events", zap.Error(err))
		return nil
	}
	var out []map[string]interface{}
	for i := len(entries) - 1; i >= 0; i-- {
		values := entries[i].Values
		if electionID != "*" && fmt.Sprint(values["election_id"]) != electionID {
			continue
		}
		raw, _ := values["event"].(string)
		var ev map[string]interface{}
		if json.Unmarshal([]byte(raw), &ev) == nil {
			out = append(out, ev)
		}
	}
	if len(out) > recentOnSubscribe {
		out = out[len(out)-recentOnSubscribe:]
	}
	return out
}

// CalculateNextBackoff grows current by factor up to max, with jitter.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}
	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	next = time.Duration(float64(next) + jitter)
	if next < current {
		next = current
	}
	if next > max {
		next = max
	}
	return next
}

// sendPings sends ping frames; the pong handler extends the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
			// keep draining so producers never block on a dead connection
			for range send {
			}
			return
		}
	}
}

func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	resetDeadline := func() error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) }
	if err := resetDeadline(); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error { return resetDeadline() })

	reply := func(m ServerMessage) {
		select {
		case send <- m:
		case <-ctx.Done():
		}
	}

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := resetDeadline(); err != nil {
			cancel()
			return
		}

		if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
			reply(ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}})
			continue
		}
		if msg.ElectionID == "" {
			reply(ServerMessage{Type: "error", Payload: map[string]string{"message": "electionId is required"}})
			continue
		}
		if msg.ElectionID != "*" {
			if _, err := strconv.ParseInt(msg.ElectionID, 10, 64); err != nil {
				reply(ServerMessage{Type: "error", Payload: map[string]string{"message": "electionId must be a number or *"}})
				continue
			}
		}

		if msg.Action == "unsubscribe" {
			subs.Unsubscribe(msg.ElectionID)
			reply(ServerMessage{Type: "unsubscribed", Payload: map[string]string{"electionId": msg.ElectionID}})
			continue
		}
		subs.Subscribe(msg.ElectionID)
		reply(ServerMessage{Type: "subscribed", Payload: map[string]interface{}{
			"electionId": msg.ElectionID,
			"recent":     c.recentEvents(ctx, msg.ElectionID),
		}})
	}
}
