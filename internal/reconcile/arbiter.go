package reconcile

import (
	"context"
	"time"
)

// Choice is the user's side in a sync conflict.
type Choice int

const (
	// ChoiceLocal keeps the local record and pushes it to the remote store.
	// It is the conservative default: local data is never silently
	// discarded.
	ChoiceLocal Choice = iota
	// ChoiceCloud adopts the remote record and overwrites the local cache.
	ChoiceCloud
)

// Conflict describes a resolution where the remote record is strictly
// newer than the local one.
type Conflict struct {
	CourseID           string
	LocalLastActivity  time.Time
	RemoteLastActivity time.Time
}

// Arbiter is the user decision point for sync conflicts. Implementations
// that cannot reach the user must return ChoiceLocal.
type Arbiter interface {
	Choose(ctx context.Context, c Conflict) Choice
}

// StaticArbiter always returns a fixed decision. Used headless and in
// tests.
type StaticArbiter struct {
	Decision Choice
}

func (a StaticArbiter) Choose(context.Context, Conflict) Choice {
	return a.Decision
}

// FuncArbiter adapts a function to the Arbiter interface.
type FuncArbiter func(ctx context.Context, c Conflict) Choice

func (f FuncArbiter) Choose(ctx context.Context, c Conflict) Choice {
	return f(ctx, c)
}
