// Package store persists course progress records. Two physical stores of
// record exist: a best-effort local cache that is always available, and an
// optional remote store that is authoritative for signed-in users.
package store

import (
	"context"
	"sync"

	"github.com/simon-b64/study-questions/internal/progress"
)

// Local is the synchronous, best-effort local cache holding one progress
// record per course id. Failures (corruption, quota, IO) are logged and
// treated as absence; no Local operation ever returns an error.
type Local interface {
	Save(p progress.CourseProgress)
	Load(courseID string) (progress.CourseProgress, bool)
	Clear(courseID string)
}

// Remote is the asynchronous remote store holding one progress record per
// (owner, course) pair. Unlike Local, failures propagate so the caller can
// degrade to local-only behavior. LoadProgress returns (nil, nil) when no
// record exists.
type Remote interface {
	Available() bool
	SaveProgress(ctx context.Context, ownerID string, p progress.CourseProgress) error
	LoadProgress(ctx context.Context, ownerID, courseID string) (*progress.CourseProgress, error)
	ClearProgress(ctx context.Context, ownerID, courseID string) error
}

// MemoryLocal is an in-memory Local for tests.
type MemoryLocal struct {
	mu      sync.RWMutex
	records map[string]progress.CourseProgress
	SaveLog []string
}

// NewMemoryLocal creates an empty in-memory local cache.
func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{records: make(map[string]progress.CourseProgress)}
}

func (m *MemoryLocal) Save(p progress.CourseProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[p.CourseID] = p.Clone()
	m.SaveLog = append(m.SaveLog, p.CourseID)
}

func (m *MemoryLocal) Load(courseID string) (progress.CourseProgress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[courseID]
	if !ok {
		return progress.CourseProgress{}, false
	}
	return p.Clone(), true
}

func (m *MemoryLocal) Clear(courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, courseID)
}

// MemoryRemote is an in-memory Remote for tests and store-less runs. The
// Fail* fields inject errors into the corresponding calls.
type MemoryRemote struct {
	mu      sync.RWMutex
	records map[string]map[string]progress.CourseProgress

	FailSave  error
	FailLoad  error
	FailClear error
	Saves     int
}

// NewMemoryRemote creates an empty in-memory remote store.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		records: make(map[string]map[string]progress.CourseProgress),
	}
}

func (m *MemoryRemote) Available() bool { return true }

func (m *MemoryRemote) SaveProgress(_ context.Context, ownerID string, p progress.CourseProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return m.FailSave
	}
	if m.records[ownerID] == nil {
		m.records[ownerID] = make(map[string]progress.CourseProgress)
	}
	m.records[ownerID][p.CourseID] = p.Clone()
	m.Saves++
	return nil
}

func (m *MemoryRemote) LoadProgress(_ context.Context, ownerID, courseID string) (*progress.CourseProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailLoad != nil {
		return nil, m.FailLoad
	}
	p, ok := m.records[ownerID][courseID]
	if !ok {
		return nil, nil
	}
	clone := p.Clone()
	return &clone, nil
}

func (m *MemoryRemote) ClearProgress(_ context.Context, ownerID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailClear != nil {
		return m.FailClear
	}
	delete(m.records[ownerID], courseID)
	return nil
}
