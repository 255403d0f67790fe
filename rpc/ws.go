package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"bountyexchange/storage/eventlog"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsSubscriberSize = 64
	wsBacklogPage    = 200
)

// Hub fans committed event records out to websocket subscribers. A subscriber
// that falls behind is dropped and reconnects with its last cursor.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan eventlog.Record]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan eventlog.Record]struct{})}
}

// Publish delivers rec to every subscriber without blocking.
func (h *Hub) Publish(rec eventlog.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- rec:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function is safe
// to call more than once.
func (h *Hub) Subscribe() (<-chan eventlog.Record, func()) {
	ch := make(chan eventlog.Record, wsSubscriberSize)
	h.mu.Lock()
	if h.closed {
		close(ch)
		h.mu.Unlock()
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// handleEventsWS streams committed events. Clients pass ?cursor=<sequence> to
// resume after the last record they saw and ?type=<event type> to filter.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	var cursor int64
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor, eventType); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusTryAgainLater, "stream interrupted")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor int64, eventType string) error {
	// Subscribe before reading the backlog so nothing committed in between is
	// missed; duplicates are skipped by sequence.
	updates, cancel := s.hub.Subscribe()
	defer cancel()

	last := cursor
	if s.events != nil {
		for {
			page, err := s.events.List(ctx, eventlog.Filter{After: last, Type: eventType, Limit: wsBacklogPage})
			if err != nil {
				return err
			}
			for _, rec := range page {
				if err := writeRecord(ctx, conn, rec); err != nil {
					return err
				}
				last = rec.Sequence
			}
			if len(page) < wsBacklogPage {
				break
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber lagging")
			}
			if rec.Sequence <= last {
				continue
			}
			if eventType != "" && rec.Type != eventType {
				continue
			}
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
			last = rec.Sequence
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec eventlog.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
