package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/simon-b64/study-questions/internal/course"
	"github.com/simon-b64/study-questions/internal/progress"
	"github.com/simon-b64/study-questions/internal/reconcile"
)

var courseIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// conflictChoiceKey carries the caller's sync-conflict preference through
// the resolver.
type conflictChoiceKey struct{}

// requestArbiter resolves sync conflicts from the request's
// conflict=cloud|local query parameter. Absent or anything else keeps
// local data.
type requestArbiter struct{}

func (requestArbiter) Choose(ctx context.Context, _ reconcile.Conflict) reconcile.Choice {
	if v, _ := ctx.Value(conflictChoiceKey{}).(string); v == "cloud" {
		return reconcile.ChoiceCloud
	}
	return reconcile.ChoiceLocal
}

func (a *app) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.HandleFunc("GET /api/courses/{courseID}", a.handleGetCourse)
	mux.HandleFunc("DELETE /api/courses/{courseID}/progress", a.handleResetProgress)
	mux.HandleFunc("GET /api/courses/{courseID}/progress/export", a.handleExportProgress)
	mux.HandleFunc("POST /api/courses/{courseID}/progress/import", a.handleImportProgress)
	mux.HandleFunc("GET /api/courses/{courseID}/watch", a.handleWatch)
	mux.HandleFunc("POST /api/courses/{courseID}/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{sessionID}", a.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{sessionID}/select", a.handleSelectAnswer)
	mux.HandleFunc("POST /api/sessions/{sessionID}/hint", a.handleRevealHint)
	mux.HandleFunc("POST /api/sessions/{sessionID}/submit", a.handleSubmitAnswer)
	mux.HandleFunc("POST /api/sessions/{sessionID}/advance", a.handleAdvanceSession)
	return mux
}

func (a *app) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *app) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		if err := a.db.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
			return
		}
	}
	if a.rdb != nil {
		if err := a.rdb.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "cache unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleGetCourse loads a course and resolves the caller's progress record
// for it in one step. The signed-in owner comes from the X-User-Id header;
// no header means signed out.
func (a *app) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathCourseID(w, r)
	if !ok {
		return
	}

	c, err := a.loader.Fetch(r.Context(), courseID)
	if err != nil {
		writeLoadError(w, err)
		return
	}

	ctx := r.Context()
	if choice := r.URL.Query().Get("conflict"); choice != "" {
		ctx = context.WithValue(ctx, conflictChoiceKey{}, choice)
	}

	meta := a.catalog.Lookup(courseID)
	p := a.resolver.Resolve(ctx, *c, meta, ownerID(r))

	writeJSON(w, http.StatusOK, map[string]any{
		"metadata": meta,
		"course":   c,
		"progress": p,
	})
}

func (a *app) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathCourseID(w, r)
	if !ok {
		return
	}

	if err := a.resolver.ClearProgress(r.Context(), ownerID(r), courseID); err != nil {
		slog.Error("progress reset failed", "course_id", courseID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to clear remote progress"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleExportProgress(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathCourseID(w, r)
	if !ok {
		return
	}

	c, err := a.loader.Fetch(r.Context(), courseID)
	if err != nil {
		writeLoadError(w, err)
		return
	}

	meta := a.catalog.Lookup(courseID)
	p := a.resolver.Resolve(r.Context(), *c, meta, ownerID(r))

	data, name, err := progress.Export(p, time.Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

// handleImportProgress accepts an exported progress file. A file for a
// different course is rejected unless force=true, which stands in for the
// explicit user confirmation.
func (a *app) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathCourseID(w, r)
	if !ok {
		return
	}

	raw, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable request body"})
		return
	}

	force := r.URL.Query().Get("force") == "true"
	p, err := progress.Import(raw, courseID, func(string) bool { return force })
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrCourseMismatch):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, progress.ErrInvalidFile):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "import failed"})
		}
		return
	}

	// Imported records go through the same repair and write-back path as
	// any other progress mutation.
	if c, err := a.loader.Fetch(r.Context(), courseID); err == nil {
		synced, _ := progress.Synchronize(*p, *c)
		*p = synced
	}
	saved := a.resolver.SaveProgress(r.Context(), ownerID(r), *p)

	writeJSON(w, http.StatusOK, saved)
}

func (a *app) handleWatch(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathCourseID(w, r)
	if !ok {
		return
	}
	a.hub.Serve(w, r, courseID)
}

func pathCourseID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("courseID")
	if !courseIDPattern.MatchString(id) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid course id"})
		return "", false
	}
	return id, true
}

func ownerID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 10<<20))
}

func writeLoadError(w http.ResponseWriter, err error) {
	var loadErr *course.LoadError
	if errors.As(err, &loadErr) {
		switch loadErr.Kind {
		case course.LoadNotFound:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "course not found"})
		case course.LoadInvalid:
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "course content is invalid"})
		default:
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "course content unavailable"})
		}
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "course load failed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
