// Package watch fans progress updates out to websocket subscribers.
// It is the subscription side of the progress write-back path: every
// saved record is pushed to everyone watching that course.
package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/simon-b64/study-questions/internal/progress"
)

const (
	subscriberBuffer = 8
	writeTimeout     = 5 * time.Second
)

type subscriber struct {
	courseID string
	msgs     chan []byte
}

// Hub tracks subscribers per course id. It implements reconcile.Notifier.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// ProgressUpdated broadcasts a progress snapshot to all subscribers of its
// course. Slow subscribers drop messages instead of blocking the caller.
func (h *Hub) ProgressUpdated(p progress.CourseProgress) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("failed to serialize progress update", "course_id", p.CourseID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.courseID != p.CourseID {
			continue
		}
		select {
		case s.msgs <- data:
		default:
			slog.Warn("dropping progress update for slow watcher", "course_id", p.CourseID)
		}
	}
}

// Subscribers returns how many watchers are registered for a course.
func (h *Hub) Subscribers(courseID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for s := range h.subs {
		if s.courseID == courseID {
			n++
		}
	}
	return n
}

func (h *Hub) subscribe(courseID string) *subscriber {
	s := &subscriber{courseID: courseID, msgs: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Serve upgrades the request to a websocket and streams progress snapshots
// for the given course until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, courseID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "course_id", courseID, "error", err)
		return
	}

	s := h.subscribe(courseID)
	defer h.unsubscribe(s)
	defer conn.CloseNow()

	// CloseRead keeps the read side drained and cancels the context when
	// the client goes away; this side only ever writes.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-s.msgs:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				slog.Debug("watcher write failed, closing", "course_id", courseID, "error", err)
				return
			}
		}
	}
}
