// Package course loads and validates immutable course documents.
package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// courseSchema is the JSON Schema every course document must satisfy.
// A document that fails validation never partially populates a Course.
const courseSchema = `{
	"type": "object",
	"required": ["questionGroups"],
	"properties": {
		"questionGroups": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "questions"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"questions": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["id", "question", "answers"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"question": {"type": "string", "minLength": 1},
								"hint": {"type": "string"},
								"reason": {"type": "string"},
								"answers": {
									"type": "array",
									"minItems": 1,
									"items": {
										"type": "object",
										"required": ["text", "correct"],
										"properties": {
											"text": {"type": "string"},
											"correct": {"type": "boolean"}
										}
									}
								}
							}
						}
					}
				}
			}
		}
	}
}`

// LoadErrorKind classifies course load failures.
type LoadErrorKind string

const (
	LoadNotFound    LoadErrorKind = "not_found"
	LoadUnavailable LoadErrorKind = "unavailable"
	LoadInvalid     LoadErrorKind = "invalid"
)

// LoadError is a typed course load failure. No progress resolution is
// attempted on a failed load.
type LoadError struct {
	CourseID string
	Kind     LoadErrorKind
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading course %s: %s: %v", e.CourseID, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader fetches course documents from a content source and caches them.
// The source is either an HTTP base URL or a local directory; either way
// a course lives at <source>/<courseID>.json.
type Loader struct {
	source string
	client *http.Client
	schema *gojsonschema.Schema

	mu      sync.RWMutex
	courses map[string]*Course
}

// NewLoader creates a loader for the given content source.
func NewLoader(source string) (*Loader, error) {
	if source == "" {
		return nil, fmt.Errorf("course content source is empty")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(courseSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling course schema: %w", err)
	}

	return &Loader{
		source:  strings.TrimRight(source, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		schema:  schema,
		courses: make(map[string]*Course),
	}, nil
}

// Fetch returns the course with the given id, loading it from the content
// source on first use. Failures are reported as *LoadError.
func (l *Loader) Fetch(ctx context.Context, courseID string) (*Course, error) {
	l.mu.RLock()
	c, ok := l.courses[courseID]
	l.mu.RUnlock()
	if ok {
		return c, nil
	}

	data, err := l.read(ctx, courseID)
	if err != nil {
		return nil, err
	}

	c, err = Parse(data)
	if err != nil {
		return nil, &LoadError{CourseID: courseID, Kind: LoadInvalid, Err: err}
	}

	l.mu.Lock()
	l.courses[courseID] = c
	l.mu.Unlock()

	slog.Info("course loaded", "course_id", courseID, "groups", len(c.QuestionGroups), "questions", c.TotalQuestions())
	return c, nil
}

// Parse validates raw course JSON against the course schema and decodes it.
func Parse(data []byte) (*Course, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(courseSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validating course document: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("course document does not match schema: %s", schemaErrors(result))
	}

	var c Course
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding course document: %w", err)
	}

	if dup := duplicateQuestionID(c); dup != "" {
		return nil, fmt.Errorf("duplicate question id %q", dup)
	}

	return &c, nil
}

func (l *Loader) read(ctx context.Context, courseID string) ([]byte, error) {
	if strings.HasPrefix(l.source, "http://") || strings.HasPrefix(l.source, "https://") {
		return l.readHTTP(ctx, courseID)
	}
	return l.readFile(courseID)
}

func (l *Loader) readHTTP(ctx context.Context, courseID string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s.json", l.source, courseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &LoadError{CourseID: courseID, Kind: LoadUnavailable, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &LoadError{CourseID: courseID, Kind: LoadUnavailable, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &LoadError{CourseID: courseID, Kind: LoadNotFound, Err: fmt.Errorf("course not found")}
	case resp.StatusCode != http.StatusOK:
		return nil, &LoadError{CourseID: courseID, Kind: LoadUnavailable, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LoadError{CourseID: courseID, Kind: LoadUnavailable, Err: err}
	}
	return data, nil
}

func (l *Loader) readFile(courseID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.source, courseID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{CourseID: courseID, Kind: LoadNotFound, Err: err}
		}
		return nil, &LoadError{CourseID: courseID, Kind: LoadUnavailable, Err: err}
	}
	return data, nil
}

func schemaErrors(result *gojsonschema.Result) string {
	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

func duplicateQuestionID(c Course) string {
	seen := make(map[string]bool)
	for _, g := range c.QuestionGroups {
		for _, q := range g.Questions {
			if seen[q.ID] {
				return q.ID
			}
			seen[q.ID] = true
		}
	}
	return ""
}
