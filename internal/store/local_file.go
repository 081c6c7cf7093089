package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/simon-b64/study-questions/internal/progress"
)

const localKeyPrefix = "study-questions-progress-"

// FileLocal is a file-backed Local: one JSON file per course id under a
// namespaced directory, dates serialized as RFC 3339 strings.
type FileLocal struct {
	dir string
}

// NewFileLocal creates a file-backed local cache rooted at dir.
func NewFileLocal(dir string) (*FileLocal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress cache dir: %w", err)
	}
	return &FileLocal{dir: dir}, nil
}

func (f *FileLocal) path(courseID string) string {
	// Course ids come from route parameters; keep them out of parent dirs.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(courseID)
	return filepath.Join(f.dir, localKeyPrefix+safe+".json")
}

func (f *FileLocal) Save(p progress.CourseProgress) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("failed to serialize progress for local cache", "course_id", p.CourseID, "error", err)
		return
	}
	if err := os.WriteFile(f.path(p.CourseID), data, 0o644); err != nil {
		slog.Error("failed to save progress to local cache", "course_id", p.CourseID, "error", err)
	}
}

func (f *FileLocal) Load(courseID string) (progress.CourseProgress, bool) {
	data, err := os.ReadFile(f.path(courseID))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read progress from local cache", "course_id", courseID, "error", err)
		}
		return progress.CourseProgress{}, false
	}

	var p progress.CourseProgress
	if err := json.Unmarshal(data, &p); err != nil {
		// Corrupt entries count as absent.
		slog.Warn("discarding corrupt local progress entry", "course_id", courseID, "error", err)
		return progress.CourseProgress{}, false
	}
	return p, true
}

func (f *FileLocal) Clear(courseID string) {
	if err := os.Remove(f.path(courseID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to clear progress from local cache", "course_id", courseID, "error", err)
	}
}
