package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maauso/memory-images/internal/job"
	"github.com/maauso/memory-images/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// newUpgrader accepts websocket handshakes from the allowed origins.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(allowedOrigins, origin)
		},
	}
}

// snapshot converts the current job state into the first message a subscriber sees.
func snapshot(j *job.Job) notify.Message {
	m := notify.Message{
		Type:        notify.TypeProgress,
		JobID:       j.ID,
		Progress:    j.Progress,
		Status:      string(j.Status),
		CurrentStep: j.StatusText,
	}
	if j.EngineProgress >= 0 {
		pct := j.EngineProgress
		m.EngineProgress = &pct
	}
	switch j.Status {
	case job.StatusCompleted:
		m.Type = notify.TypeComplete
		m.VideoURL = j.VideoURL
		if m.VideoURL == "" {
			m.VideoURL = job.VideoPath(j.ID)
		}
	case job.StatusFailed, job.StatusCancelled:
		m.Type = notify.TypeError
		m.Error = j.Error
		if m.Error == "" {
			m.Error = string(j.Status)
		}
	}
	return m
}

// Events handles GET /renders/{id}/events by upgrading to a websocket and streaming
// progress messages until the job finishes or the client goes away.
func (h *Handlers) Events(upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.hub == nil {
			writeError(w, http.StatusNotImplemented, "live progress is not enabled", "EVENTS_DISABLED")
			return
		}
		foundJob, ok := h.findJob(w, r)
		if !ok {
			return
		}

		// Subscribe before reading the snapshot so no update falls in between.
		updates, cancel := h.hub.Subscribe(foundJob.ID)
		defer cancel()

		current, err := h.service.GetJob(r.Context(), foundJob.ID)
		if err != nil {
			current = foundJob
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed",
				slog.String("job_id", foundJob.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		defer func() { _ = conn.Close() }()

		h.logger.Debug("progress subscriber connected", slog.String("job_id", foundJob.ID))

		first := snapshot(current)
		if err := writeMessage(conn, first); err != nil || first.Final() {
			closeNormal(conn)
			return
		}

		pongs, done := readPump(conn)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case m, open := <-updates:
				if !open {
					closeNormal(conn)
					return
				}
				if err := writeMessage(conn, m); err != nil {
					return
				}
				if m.Final() {
					closeNormal(conn)
					return
				}
			case <-pongs:
				if err := writeMessage(conn, notify.Message{Type: notify.TypePong, JobID: foundJob.ID}); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

// readPump consumes client frames. Client ping messages are signalled on the first
// channel; the second is closed when the connection fails or the client closes it.
func readPump(conn *websocket.Conn) (<-chan struct{}, <-chan struct{}) {
	pongs := make(chan struct{}, 1)
	done := make(chan struct{})

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer close(done)
		for {
			var m notify.Message
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			if m.Type == notify.TypePing {
				select {
				case pongs <- struct{}{}:
				default:
				}
			}
		}
	}()
	return pongs, done
}

func writeMessage(conn *websocket.Conn, m notify.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m)
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
