package main

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/simon-b64/study-questions/internal/progress"
	"github.com/simon-b64/study-questions/internal/session"
)

func decodeSessionView(t *testing.T, data []byte) sessionView {
	t.Helper()
	var v sessionView
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decoding session view: %v", err)
	}
	return v
}

func createSession(t *testing.T, a *app, body []byte) sessionView {
	t.Helper()
	rec := doRequest(t, a, http.MethodPost, "/api/courses/go-basics/sessions", body,
		map[string]string{"X-User-Id": "user-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decodeSessionView(t, rec.Body.Bytes())
}

func TestCreateSession(t *testing.T) {
	a, _, _ := testApp(t)
	v := createSession(t, a, nil)

	if v.SessionID == "" {
		t.Error("session id is empty")
	}
	if v.State != session.StateInProgress {
		t.Errorf("state = %q, want in_progress", v.State)
	}
	if v.QueueLength != 1 || v.Remaining != 1 {
		t.Errorf("queue = %d/%d, want 1/1", v.QueueLength, v.Remaining)
	}
	if v.Question == nil {
		t.Fatal("no current question in view")
	}
	if v.Question.ID != "q1" || len(v.Question.Answers) != 2 {
		t.Errorf("question view = %+v", v.Question)
	}
	if v.Question.Hint != "" {
		t.Error("hint visible before being revealed")
	}

	// The view must not leak which answers are correct.
	rec := doRequest(t, a, http.MethodGet, "/api/sessions/"+v.SessionID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d", rec.Code)
	}
	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	q := raw["question"].(map[string]any)
	if _, leaked := q["correctIndices"]; leaked {
		t.Error("correct indices leaked before submit")
	}
}

func TestCreateSession_UnknownCourse(t *testing.T) {
	a, _, _ := testApp(t)
	rec := doRequest(t, a, http.MethodPost, "/api/courses/no-such-course/sessions", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateSession_UnmatchedGroupFilter(t *testing.T) {
	a, _, _ := testApp(t)
	body, _ := json.Marshal(sessionOptions{Group: "No Such Group"})
	rec := doRequest(t, a, http.MethodPost, "/api/courses/go-basics/sessions", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSessionLoop_AnswerWritesBackToBothStores(t *testing.T) {
	a, local, remote := testApp(t)
	v := createSession(t, a, nil)
	base := "/api/sessions/" + v.SessionID

	// Select the correct answer (index 0) and submit.
	body, _ := json.Marshal(map[string]int{"index": 0})
	rec := doRequest(t, a, http.MethodPost, base+"/select", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d", rec.Code)
	}
	selected := decodeSessionView(t, rec.Body.Bytes())
	if len(selected.Question.Selected) != 1 || selected.Question.Selected[0] != 0 {
		t.Errorf("selected = %v, want [0]", selected.Question.Selected)
	}

	rec = doRequest(t, a, http.MethodPost, base+"/submit", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result submitView
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Correct {
		t.Error("correct answer graded wrong")
	}
	if len(result.CorrectIndices) != 1 || result.CorrectIndices[0] != 0 {
		t.Errorf("correctIndices = %v, want [0]", result.CorrectIndices)
	}
	if result.Session.State != session.StateAnswered {
		t.Errorf("state = %q, want answered", result.Session.State)
	}
	if result.Session.Answered != 1 || result.Session.Correct != 1 {
		t.Errorf("stats = %d answered / %d correct, want 1/1", result.Session.Answered, result.Session.Correct)
	}

	// The answer must have gone through the write-back path.
	a.resolver.Wait()
	cached, ok := local.Load("go-basics")
	if !ok {
		t.Fatal("no local record after an answered question")
	}
	qp := cached.Group("Basics").Question("q1")
	if qp == nil || qp.TotalAttempts != 1 || qp.CorrectAttempts != 1 {
		t.Errorf("local attempt record = %+v", qp)
	}
	stored, err := remote.LoadProgress(t.Context(), "user-1", "go-basics")
	if err != nil || stored == nil {
		t.Fatal("answer did not reach the remote store")
	}

	// Advancing past the only question finishes and forgets the session.
	rec = doRequest(t, a, http.MethodPost, base+"/advance", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("advance status = %d", rec.Code)
	}
	final := decodeSessionView(t, rec.Body.Bytes())
	if final.State != session.StateFinished {
		t.Errorf("state = %q, want finished", final.State)
	}
	if final.Question != nil {
		t.Error("finished session still shows a question")
	}

	rec = doRequest(t, a, http.MethodGet, base, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("finished session still retrievable, status = %d", rec.Code)
	}
}

func TestSubmit_WithoutSelection(t *testing.T) {
	a, _, _ := testApp(t)
	v := createSession(t, a, nil)

	rec := doRequest(t, a, http.MethodPost, "/api/sessions/"+v.SessionID+"/submit", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSelectAnswer_RequiresIndex(t *testing.T) {
	a, _, _ := testApp(t)
	v := createSession(t, a, nil)

	rec := doRequest(t, a, http.MethodPost, "/api/sessions/"+v.SessionID+"/select", []byte(`{}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRevealHint_ShowsHintInView(t *testing.T) {
	a, _, _ := testApp(t)
	v := createSession(t, a, nil)

	rec := doRequest(t, a, http.MethodPost, "/api/sessions/"+v.SessionID+"/hint", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeSessionView(t, rec.Body.Bytes())
	if got.Question == nil || got.Question.Hint == "" {
		t.Error("hint not visible after reveal")
	}

	a.resolver.Wait()
	p := sessionProgressFor(t, a, got.SessionID)
	if qp := p.Group("Basics").Question("q1"); qp == nil || qp.HintUsedCount != 1 {
		t.Errorf("HintUsedCount not tracked: %+v", qp)
	}
}

func TestSessionOps_UnknownSession(t *testing.T) {
	a, _, _ := testApp(t)
	for _, target := range []string{
		"/api/sessions/nope",
		"/api/sessions/nope/hint",
		"/api/sessions/nope/submit",
		"/api/sessions/nope/advance",
	} {
		method := http.MethodPost
		if target == "/api/sessions/nope" {
			method = http.MethodGet
		}
		rec := doRequest(t, a, method, target, nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", method, target, rec.Code)
		}
	}
}

// sessionProgressFor reads the live in-memory progress of a registered
// session.
func sessionProgressFor(t *testing.T, a *app, id string) progress.CourseProgress {
	t.Helper()
	a.sessions.mu.Lock()
	defer a.sessions.mu.Unlock()
	s, ok := a.sessions.sessions[id]
	if !ok {
		t.Fatalf("session %s not registered", id)
	}
	return s.Progress()
}
