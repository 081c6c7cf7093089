package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFile reports an import file that is not a progress export:
// unparseable JSON or a missing required field.
var ErrInvalidFile = errors.New("invalid progress file")

// ErrCourseMismatch reports an import file for a different course that the
// user declined to load anyway.
var ErrCourseMismatch = errors.New("progress file is for a different course")

// Export serializes a progress record for download and returns the file
// content together with a deterministic filename.
func Export(p CourseProgress, now time.Time) ([]byte, string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("serializing progress: %w", err)
	}
	name := fmt.Sprintf("%s-progress-%s.json", p.CourseID, now.Format("2006-01-02"))
	return data, name, nil
}

// Import parses an exported progress file. The minimal shape
// {courseId: string, groupsProgress: array} must be present. A file whose
// courseId differs from currentCourseID is only accepted when
// confirmMismatch approves it; the confirm callback may be nil to always
// reject mismatches.
func Import(raw []byte, currentCourseID string, confirmMismatch func(fileCourseID string) bool) (*CourseProgress, error) {
	var shape struct {
		CourseID       *string           `json:"courseId"`
		GroupsProgress []json.RawMessage `json:"groupsProgress"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if shape.CourseID == nil || *shape.CourseID == "" {
		return nil, fmt.Errorf("%w: missing courseId", ErrInvalidFile)
	}
	if shape.GroupsProgress == nil {
		return nil, fmt.Errorf("%w: missing groupsProgress", ErrInvalidFile)
	}

	if *shape.CourseID != currentCourseID {
		if confirmMismatch == nil || !confirmMismatch(*shape.CourseID) {
			return nil, fmt.Errorf("%w: file is for %q", ErrCourseMismatch, *shape.CourseID)
		}
	}

	var p CourseProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return &p, nil
}
