package realtime

import (
	"sync"

	"Aegis/internal/domain/models"
	drepo "Aegis/internal/domain/repository"
	"Aegis/pkg/logger"
)

// Hub indexes open authenticated connections by user. Anonymous connections
// are tracked for shutdown only.
type Hub struct {
	mu      sync.RWMutex
	byUser  map[string]map[*Conn]struct{}
	all     map[*Conn]struct{}
	lgr     *logger.Logger
	metrics drepo.Metrics
}

func NewHub(lgr *logger.Logger, metrics drepo.Metrics) *Hub {
	return &Hub{
		byUser:  make(map[string]map[*Conn]struct{}),
		all:     make(map[*Conn]struct{}),
		lgr:     lgr,
		metrics: metrics,
	}
}

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
	if c.UserID() == "" {
		return
	}
	set, ok := h.byUser[c.UserID()]
	if !ok {
		set = make(map[*Conn]struct{})
		h.byUser[c.UserID()] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.all, c)
	if set, ok := h.byUser[c.UserID()]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.UserID())
		}
	}
}

// BroadcastSignal pushes a signal frame to every open connection of userID.
func (h *Hub) BroadcastSignal(userID string, e models.SignalEvent) int {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.byUser[userID]))
	for c := range h.byUser[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	frame := SignalFrame{Type: TypeSignal, Signal: e}
	n := 0
	for _, c := range conns {
		if c.Send(frame) {
			h.metrics.RecordRealtimeMessage("out", TypeSignal)
			n++
		}
	}
	return n
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// Close closes every registered connection.
func (h *Hub) Close() error {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.all))
	for c := range h.all {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	if len(conns) > 0 {
		h.lgr.Info("realtime connections closed", logger.Int("count", len(conns)))
	}
	return nil
}
