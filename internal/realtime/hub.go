// Package realtime keeps one logical push channel per identity over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/baharkarakas/transferflow/internal/metrics"
	"github.com/baharkarakas/transferflow/internal/notify"
)

var errBuffersFull = errors.New("every connection buffer is full")

type Stats struct {
	Identities  int `json:"identities"`
	Connections int `json:"connections"`
}

// Hub maps an identity to the set of its live connections. A user may be
// connected from several devices; all of them receive every event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: make(map[string]map[*Client]struct{}), log: log}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.identity.ID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.identity.ID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	metrics.RealtimeConnections.Inc()
	h.log.Debug("ws connected", "owner_id", c.identity.ID, "client_id", c.id, "connections", n)
}

// Remove unregisters c and closes its send queue. The identity entry goes away with its last connection.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.identity.ID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.identity.ID)
	}
	close(c.send)
	h.mu.Unlock()

	metrics.RealtimeConnections.Dec()
	h.log.Debug("ws disconnected", "owner_id", c.identity.ID, "client_id", c.id)
}

// Lookup returns a snapshot of the connections registered for ownerID.
func (h *Hub) Lookup(ownerID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients[ownerID]))
	for c := range h.clients[ownerID] {
		out = append(out, c)
	}
	return out
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Stats{Identities: len(h.clients)}
	for _, set := range h.clients {
		s.Connections += len(set)
	}
	return s
}

// Notify queues ev on every connection of ownerID without blocking. A connection
// whose buffer is full misses the event and catches up by polling.
func (h *Hub) Notify(_ context.Context, ownerID string, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.clients[ownerID]
	if len(set) == 0 {
		return notify.ErrNoSubscribers
	}
	queued := 0
	for c := range set {
		select {
		case c.send <- data:
			queued++
		default:
			h.log.Warn("ws send buffer full, skipping client", "owner_id", ownerID, "client_id", c.id)
		}
	}
	if queued == 0 {
		return errBuffersFull
	}
	return nil
}

// Close drops every connection; used on shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.Remove(c)
	}
}
