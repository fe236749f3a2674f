package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"cdpledger/core/events"
	"cdpledger/core/types"
	"cdpledger/observability"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsSubscriberBuf = 64
	wsSlowConsumer  = "slow_consumer"
	wsMetricsModule = "ws"
)

// EventHub fans ledger events out to websocket subscribers. It implements
// events.Emitter. Subscribers that fall behind lose events rather than
// blocking the ledger.
type EventHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
}

type subscription struct {
	eventType string
	ch        chan []byte
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[uint64]*subscription)}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	rendered := events.Render(evt)
	data, err := json.Marshal(rendered)
	if err != nil {
		return
	}
	h.broadcast(rendered, data)
}

func (h *EventHub) broadcast(evt *types.Event, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.eventType != "" && sub.eventType != evt.Type {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			observability.ModuleMetrics().RecordThrottle(wsMetricsModule, wsSlowConsumer)
		}
	}
}

// Subscribe registers a listener for events of eventType, or all events when
// eventType is empty. The returned cancel function must be called.
func (h *EventHub) Subscribe(eventType string) (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	sub := &subscription{eventType: eventType, ch: make(chan []byte, wsSubscriberBuf)}
	h.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "event stream disabled", http.StatusServiceUnavailable)
		return
	}
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.hub.Subscribe(eventType)
	defer cancel()
	observability.ModuleMetrics().StreamOpened()
	defer observability.ModuleMetrics().StreamClosed()
	// Inbound frames are ignored; CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	s.logger.Debug("event stream opened", slog.String("type", eventType), slog.String("request_id", requestIDFrom(r.Context())))

	if err := streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-updates:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
