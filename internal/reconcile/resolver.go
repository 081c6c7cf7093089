// Package reconcile decides, on every course load, which copy of a user's
// progress record wins — local cache, remote store, or a fresh one — and
// keeps both stores consistent afterwards.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/simon-b64/study-questions/internal/course"
	"github.com/simon-b64/study-questions/internal/progress"
	"github.com/simon-b64/study-questions/internal/store"
)

const remotePushTimeout = 10 * time.Second

// Notifier receives the recalculated progress record after every
// write-back. Implementations must not block.
type Notifier interface {
	ProgressUpdated(p progress.CourseProgress)
}

// Resolver merges the local cache, the remote store, and current course
// content into one canonical progress record, and owns the write-back path
// used after every answer.
type Resolver struct {
	local    store.Local
	remote   store.Remote
	arbiter  Arbiter
	notifier Notifier
	now      func() time.Time

	pushes sync.WaitGroup
}

// Config holds Resolver dependencies. Remote and Notifier are optional;
// a nil Arbiter defaults to keeping local data on conflict.
type Config struct {
	Local    store.Local
	Remote   store.Remote
	Arbiter  Arbiter
	Notifier Notifier
	Now      func() time.Time
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	arbiter := cfg.Arbiter
	if arbiter == nil {
		arbiter = StaticArbiter{Decision: ChoiceLocal}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		local:    cfg.Local,
		remote:   cfg.Remote,
		arbiter:  arbiter,
		notifier: cfg.Notifier,
		now:      now,
	}
}

// Resolve returns the single progress record to use for a freshly loaded
// course. ownerID is empty when no user is signed in. The returned record
// always has consistent derived fields.
//
// Remote failures degrade to local-only behavior; Resolve itself never
// fails.
func (r *Resolver) Resolve(ctx context.Context, c course.Course, meta course.Metadata, ownerID string) progress.CourseProgress {
	local, hasLocal := r.local.Load(meta.ID)
	if hasLocal {
		local, _ = progress.Synchronize(local, c)
	}

	// Signed out: the remote store is never touched.
	if ownerID == "" || r.remote == nil || !r.remote.Available() {
		return r.resolveLocalOnly(c, meta, local, hasLocal)
	}

	remote, err := r.remote.LoadProgress(ctx, ownerID, meta.ID)
	if err != nil {
		slog.Warn("remote store unavailable, falling back to local cache", "course_id", meta.ID, "error", err)
		return r.resolveLocalOnly(c, meta, local, hasLocal)
	}
	hasRemote := remote != nil
	var remoteP progress.CourseProgress
	if hasRemote {
		remoteP, _ = progress.Synchronize(*remote, c)
		remoteP = progress.Recalculate(remoteP)
	}

	switch {
	case !hasLocal && !hasRemote:
		fresh := progress.Initialize(c, meta, r.now())
		r.local.Save(fresh)
		r.pushRemoteSync(ctx, ownerID, fresh)
		return fresh

	case !hasLocal:
		r.local.Save(remoteP)
		return remoteP

	case !hasRemote:
		local = progress.Recalculate(local)
		r.pushRemoteSync(ctx, ownerID, local)
		return local
	}

	local = progress.Recalculate(local)
	localTime := activityTime(local.LastActivityAt)
	remoteTime := activityTime(remoteP.LastActivityAt)

	switch {
	case localTime.After(remoteTime):
		r.pushRemoteSync(ctx, ownerID, local)
		return local

	case remoteTime.After(localTime):
		// Accepting remote discards any not-yet-synced local activity the
		// timestamp comparison cannot see, so the user decides.
		conflict := Conflict{
			CourseID:           meta.ID,
			LocalLastActivity:  localTime,
			RemoteLastActivity: remoteTime,
		}
		if r.arbiter.Choose(ctx, conflict) == ChoiceCloud {
			r.local.Save(remoteP)
			return remoteP
		}
		r.pushRemoteSync(ctx, ownerID, local)
		return local

	default:
		// Equal timestamps: remote is authoritative at parity.
		return remoteP
	}
}

func (r *Resolver) resolveLocalOnly(c course.Course, meta course.Metadata, local progress.CourseProgress, hasLocal bool) progress.CourseProgress {
	if !hasLocal {
		fresh := progress.Initialize(c, meta, r.now())
		r.local.Save(fresh)
		return fresh
	}
	local = progress.Recalculate(local)
	r.local.Save(local)
	return local
}

// SaveProgress is the write-back path used after every answer and by
// import/reset operations: recompute derived metrics, persist locally,
// then push to the remote store without blocking the caller. A failed push
// is logged and abandoned; the local copy stays the freshest known-good
// one until the next successful sync.
func (r *Resolver) SaveProgress(ctx context.Context, ownerID string, p progress.CourseProgress) progress.CourseProgress {
	p = progress.Recalculate(p)
	r.local.Save(p)

	if ownerID != "" && r.remote != nil && r.remote.Available() {
		snapshot := p.Clone()
		r.pushes.Add(1)
		go func() {
			defer r.pushes.Done()
			pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remotePushTimeout)
			defer cancel()
			if err := r.remote.SaveProgress(pushCtx, ownerID, snapshot); err != nil {
				slog.Warn("remote progress push failed", "course_id", snapshot.CourseID, "error", err)
			}
		}()
	}

	if r.notifier != nil {
		r.notifier.ProgressUpdated(p)
	}
	return p
}

// ClearProgress removes the record from both stores (explicit reset).
func (r *Resolver) ClearProgress(ctx context.Context, ownerID, courseID string) error {
	r.local.Clear(courseID)
	if ownerID != "" && r.remote != nil && r.remote.Available() {
		if err := r.remote.ClearProgress(ctx, ownerID, courseID); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until all in-flight remote pushes have finished. Used on
// shutdown and in tests.
func (r *Resolver) Wait() {
	r.pushes.Wait()
}

// pushRemoteSync pushes during resolution. Resolution already holds the
// winning record, so a failure only costs the mirror write.
func (r *Resolver) pushRemoteSync(ctx context.Context, ownerID string, p progress.CourseProgress) {
	if err := r.remote.SaveProgress(ctx, ownerID, p); err != nil {
		slog.Warn("remote progress save failed during resolution", "course_id", p.CourseID, "error", err)
	}
}

func activityTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
