package feed

import (
	"log/slog"
	"sync"
	"time"

	"kodbank/cmd/internal/ledger"
)

// Hub fans committed transfers out to subscribed clients, keyed by account
// id. One account may hold several concurrent subscriptions (one per open
// connection).
type Hub struct {
	log *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]map[*Client]struct{}
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:         log,
		subscribers: make(map[string]map[*Client]struct{}),
	}
}

// Subscribe registers a client for its account's events.
func (h *Hub) Subscribe(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subscribers[c.AccountID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subscribers[c.AccountID] = set
	}
	set[c] = struct{}{}
}

// Unsubscribe removes a client. Safe to call more than once.
func (h *Hub) Unsubscribe(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subscribers[c.AccountID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subscribers, c.AccountID)
	}
}

// PublishTransfer pushes one event to each party of a committed transfer.
// Never blocks: a full client queue drops the event.
func (h *Hub) PublishTransfer(res ledger.Result) {
	events := transferEvents(res, time.Now().UTC())
	for _, ev := range events {
		h.publish(ev)
	}
}

func (h *Hub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.subscribers[ev.AccountID] {
		select {
		case <-c.Done():
			continue
		default:
		}
		select {
		case c.Send <- ev:
		default:
			h.log.Info("feed.drop", "account_id", ev.AccountID)
		}
	}
}
