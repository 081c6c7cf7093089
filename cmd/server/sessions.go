package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/simon-b64/study-questions/internal/session"
)

const maxActiveSessions = 1024

// sessionRegistry holds the active study sessions. A Session is driven by
// one actor at a time, so the registry mutex stays held for the whole
// handler operation rather than just the lookup.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session.Session)}
}

func (reg *sessionRegistry) add(s *session.Session) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.sessions) >= maxActiveSessions {
		return false
	}
	reg.sessions[s.ID()] = s
	return true
}

// sessionOptions is the create-session request body.
type sessionOptions struct {
	Group string `json:"group"`
	Limit int    `json:"limit"`
}

// questionView is the current question as shown to the client. Correct
// flags and the reason stay hidden until the answer is submitted.
type questionView struct {
	ID       string   `json:"id"`
	Group    string   `json:"group"`
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
	Hint     string   `json:"hint,omitempty"`
	Selected []int    `json:"selected"`
}

type sessionView struct {
	SessionID   string        `json:"sessionId"`
	State       session.State `json:"state"`
	QueueLength int           `json:"queueLength"`
	Remaining   int           `json:"remaining"`
	Answered    int           `json:"answered"`
	Correct     int           `json:"correct"`
	Incorrect   int           `json:"incorrect"`
	Accuracy    int           `json:"accuracy"`
	Question    *questionView `json:"question,omitempty"`
}

// submitView is the grading result: only here do the correct indices and
// the reason become visible.
type submitView struct {
	Correct        bool        `json:"correct"`
	CorrectIndices []int       `json:"correctIndices"`
	Reason         string      `json:"reason,omitempty"`
	Session        sessionView `json:"session"`
}

func viewOf(s *session.Session) sessionView {
	stats := s.Stats()
	v := sessionView{
		SessionID:   s.ID(),
		State:       s.State(),
		QueueLength: s.QueueLength(),
		Remaining:   s.Remaining(),
		Answered:    stats.TotalAnswered,
		Correct:     stats.CorrectAnswers,
		Incorrect:   stats.IncorrectAnswers,
		Accuracy:    s.Accuracy(),
	}

	current, ok := s.Current()
	if !ok {
		return v
	}
	q := questionView{
		ID:       current.Question.ID,
		Group:    current.GroupName,
		Question: current.Question.Question,
		Answers:  make([]string, 0, len(current.Question.Answers)),
		Selected: s.Selected(),
	}
	for _, a := range current.Question.Answers {
		q.Answers = append(q.Answers, a.Text)
	}
	if s.HintVisible() {
		q.Hint = current.Question.Hint
	}
	v.Question = &q
	return v
}

// withSession runs fn on the named session under the registry lock.
// Finished sessions are dropped from the registry on the way out, so the
// final advance response is the last anyone sees of them.
func (a *app) withSession(w http.ResponseWriter, r *http.Request, fn func(s *session.Session) (int, any)) {
	id := r.PathValue("sessionID")

	a.sessions.mu.Lock()
	s, ok := a.sessions.sessions[id]
	if !ok {
		a.sessions.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	status, body := fn(s)
	if s.State() == session.StateFinished {
		delete(a.sessions.sessions, id)
	}
	a.sessions.mu.Unlock()

	writeJSON(w, status, body)
}

// handleCreateSession loads the course, resolves the caller's progress,
// and starts a session over it. The resolver doubles as the session's
// write-back path, so every submitted answer lands in both stores.
func (a *app) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathCourseID(w, r)
	if !ok {
		return
	}

	var opts sessionOptions
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session options"})
			return
		}
	}

	c, err := a.loader.Fetch(r.Context(), courseID)
	if err != nil {
		writeLoadError(w, err)
		return
	}

	meta := a.catalog.Lookup(courseID)
	p := a.resolver.Resolve(r.Context(), *c, meta, ownerID(r))

	s, err := session.New(session.Config{
		Course:      *c,
		Progress:    p,
		OwnerID:     ownerID(r),
		GroupFilter: opts.Group,
		Limit:       opts.Limit,
		Rand:        a.newRand(),
		Saver:       a.resolver,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if !a.sessions.add(s) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "too many active sessions"})
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(s))
}

func (a *app) handleGetSession(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *session.Session) (int, any) {
		return http.StatusOK, viewOf(s)
	})
}

func (a *app) handleSelectAnswer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index *int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Index == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "index is required"})
		return
	}

	a.withSession(w, r, func(s *session.Session) (int, any) {
		s.SelectAnswer(*body.Index)
		return http.StatusOK, viewOf(s)
	})
}

func (a *app) handleRevealHint(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *session.Session) (int, any) {
		s.RevealHint()
		return http.StatusOK, viewOf(s)
	})
}

func (a *app) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *session.Session) (int, any) {
		current, hasCurrent := s.Current()
		correct, ok := s.Submit(r.Context())
		if !ok || !hasCurrent {
			return http.StatusConflict, map[string]string{"error": "nothing selected or question already answered"}
		}
		return http.StatusOK, submitView{
			Correct:        correct,
			CorrectIndices: current.Question.CorrectIndices(),
			Reason:         current.Question.Reason,
			Session:        viewOf(s),
		}
	})
}

func (a *app) handleAdvanceSession(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *session.Session) (int, any) {
		s.Advance()
		return http.StatusOK, viewOf(s)
	})
}
