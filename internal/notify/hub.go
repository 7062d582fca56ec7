// Package notify fans render progress out to live subscribers of a job.
package notify

import (
	"log/slog"
	"sync"
)

// Message types.
const (
	TypeProgress = "progress"
	TypeComplete = "complete"
	TypeError    = "error"
	TypePing     = "ping"
	TypePong     = "pong"
)

// subscriberBuffer is how many messages a subscriber may lag behind before it is dropped.
const subscriberBuffer = 64

// Message is one update sent to job subscribers.
type Message struct {
	Type           string `json:"type"`
	JobID          string `json:"jobId"`
	Progress       int    `json:"progress"`
	Status         string `json:"status,omitempty"`
	CurrentStep    string `json:"currentStep,omitempty"`
	EngineProgress *int   `json:"engineProgress,omitempty"`
	VideoURL       string `json:"videoUrl,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Final reports whether no further messages follow m for its job.
func (m Message) Final() bool {
	return m.Type == TypeComplete || m.Type == TypeError
}

type subscriber struct {
	ch chan Message
}

// Hub keeps the subscribers of every job.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]map[*subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[string]map[*subscriber]struct{}),
	}
}

// Subscribe registers interest in jobID. The returned channel is closed when cancel is
// called, after a final message, or when the subscriber falls too far behind.
func (h *Hub) Subscribe(jobID string) (<-chan Message, func()) {
	s := &subscriber{ch: make(chan Message, subscriberBuffer)}

	h.mu.Lock()
	if h.clients[jobID] == nil {
		h.clients[jobID] = make(map[*subscriber]struct{})
	}
	h.clients[jobID][s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscriber registered", slog.String("job_id", jobID))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.remove(jobID, s)
		})
	}
	return s.ch, cancel
}

// Publish delivers m to every subscriber of jobID without blocking. Subscribers whose
// buffer is full are dropped.
func (h *Hub) Publish(jobID string, m Message) {
	m.JobID = jobID

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.clients[jobID] {
		select {
		case s.ch <- m:
		default:
			h.logger.Warn("dropping slow subscriber", slog.String("job_id", jobID))
			h.remove(jobID, s)
			continue
		}
		if m.Final() {
			h.remove(jobID, s)
		}
	}
}

// Subscribers returns the number of live subscribers of jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[jobID])
}

// remove must be called with h.mu held.
func (h *Hub) remove(jobID string, s *subscriber) {
	clients, ok := h.clients[jobID]
	if !ok {
		return
	}
	if _, ok := clients[s]; !ok {
		return
	}
	delete(clients, s)
	close(s.ch)
	if len(clients) == 0 {
		delete(h.clients, jobID)
	}
}
