package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simon-b64/study-questions/internal/course"
	"github.com/simon-b64/study-questions/internal/progress"
	"github.com/simon-b64/study-questions/internal/reconcile"
	"github.com/simon-b64/study-questions/internal/store"
)

var (
	t1 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)
)

func testCourse() course.Course {
	return course.Course{
		QuestionGroups: []course.QuestionGroup{{
			Name: "Basics",
			Questions: []course.Question{
				{ID: "a", Question: "A?", Answers: []course.Answer{{Text: "yes", Correct: true}}},
				{ID: "b", Question: "B?", Answers: []course.Answer{{Text: "no", Correct: true}}},
			},
		}},
	}
}

func testMeta() course.Metadata {
	return course.Metadata{ID: "test-course", Name: "Test Course"}
}

// recordWith builds a consistent progress record with the given activity
// timestamp and streak marker (the streak doubles as a fingerprint for
// telling records apart in assertions).
func recordWith(t *testing.T, lastActivity *time.Time, streak int) progress.CourseProgress {
	t.Helper()
	p := progress.Initialize(testCourse(), testMeta(), t1)
	p.LastActivityAt = lastActivity
	p.CurrentStreak = streak
	return progress.Recalculate(p)
}

func newResolver(local store.Local, remote store.Remote, arbiter reconcile.Arbiter) *reconcile.Resolver {
	return reconcile.New(reconcile.Config{
		Local:   local,
		Remote:  remote,
		Arbiter: arbiter,
		Now:     func() time.Time { return t1 },
	})
}

func TestResolve_SignedOut_InitializesAndPersistsLocally(t *testing.T) {
	local := store.NewMemoryLocal()
	remote := store.NewMemoryRemote()
	r := newResolver(local, remote, nil)

	got := r.Resolve(context.Background(), testCourse(), testMeta(), "")

	if got.TotalQuestions != 2 || got.NotStartedCount != 2 {
		t.Errorf("fresh record inconsistent: %+v", got)
	}
	if _, ok := local.Load("test-course"); !ok {
		t.Error("fresh record not persisted to local cache")
	}
	if remote.Saves != 0 {
		t.Error("remote store touched while signed out")
	}
}

func TestResolve_SignedOut_UsesExistingLocal(t *testing.T) {
	local := store.NewMemoryLocal()
	local.Save(recordWith(t, &t1, 5))
	r := newResolver(local, store.NewMemoryRemote(), nil)

	got := r.Resolve(context.Background(), testCourse(), testMeta(), "")
	if got.CurrentStreak != 5 {
		t.Errorf("CurrentStreak = %d, want local record's 5", got.CurrentStreak)
	}
}

func TestResolve_SignedOut_SynchronizesLocalAgainstCourse(t *testing.T) {
	local := store.NewMemoryLocal()
	stale := recordWith(t, &t1, 0)
	// The stored record references a question that no longer exists.
	stale.GroupsProgress[0].QuestionsProgress = append(stale.GroupsProgress[0].QuestionsProgress,
		progress.QuestionProgress{QuestionID: "gone", MasteryLevel: progress.MasteryLearning})
	local.Save(stale)

	r := newResolver(local, nil, nil)
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "")

	if got.Group("Basics").Question("gone") != nil {
		t.Error("orphaned entry survived resolution")
	}
	if got.TotalQuestions != 2 {
		t.Errorf("TotalQuestions = %d, want 2", got.TotalQuestions)
	}
}

func TestResolve_RemoteLoadFailure_FallsBackToLocal(t *testing.T) {
	local := store.NewMemoryLocal()
	local.Save(recordWith(t, &t1, 3))
	remote := store.NewMemoryRemote()
	remote.FailLoad = errors.New("permission denied")

	r := newResolver(local, remote, nil)
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.CurrentStreak != 3 {
		t.Errorf("CurrentStreak = %d, want local record's 3", got.CurrentStreak)
	}
	if remote.Saves != 0 {
		t.Error("resolver pushed to a failing remote store")
	}
}

func TestResolve_NeitherExists_PersistsToBoth(t *testing.T) {
	local := store.NewMemoryLocal()
	remote := store.NewMemoryRemote()
	r := newResolver(local, remote, nil)

	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.NotStartedCount != 2 {
		t.Errorf("fresh record inconsistent: %+v", got)
	}
	if _, ok := local.Load("test-course"); !ok {
		t.Error("fresh record not in local cache")
	}
	stored, err := remote.LoadProgress(context.Background(), "user-1", "test-course")
	if err != nil || stored == nil {
		t.Error("fresh record not in remote store")
	}
}

func TestResolve_OnlyRemote_AdoptedAndCachedLocally(t *testing.T) {
	local := store.NewMemoryLocal()
	remote := store.NewMemoryRemote()
	remoteRecord := recordWith(t, &t1, 4)
	if err := remote.SaveProgress(context.Background(), "user-1", remoteRecord); err != nil {
		t.Fatal(err)
	}

	r := newResolver(local, remote, nil)
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.CurrentStreak != 4 {
		t.Errorf("CurrentStreak = %d, want remote record's 4", got.CurrentStreak)
	}
	cached, ok := local.Load("test-course")
	if !ok || cached.CurrentStreak != 4 {
		t.Error("adopted remote record not written to local cache")
	}
}

func TestResolve_OnlyLocal_PushedToRemote(t *testing.T) {
	local := store.NewMemoryLocal()
	local.Save(recordWith(t, &t1, 2))
	remote := store.NewMemoryRemote()

	r := newResolver(local, remote, nil)
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.CurrentStreak != 2 {
		t.Errorf("CurrentStreak = %d, want local record's 2", got.CurrentStreak)
	}
	stored, err := remote.LoadProgress(context.Background(), "user-1", "test-course")
	if err != nil || stored == nil || stored.CurrentStreak != 2 {
		t.Error("local record not pushed to remote store")
	}
}

func TestResolve_LocalNewer_WinsSilentlyWithOnePush(t *testing.T) {
	local := store.NewMemoryLocal()
	local.Save(recordWith(t, &t2, 8))
	remote := store.NewMemoryRemote()
	if err := remote.SaveProgress(context.Background(), "user-1", recordWith(t, &t1, 1)); err != nil {
		t.Fatal(err)
	}
	remote.Saves = 0

	prompted := false
	arbiter := reconcile.FuncArbiter(func(context.Context, reconcile.Conflict) reconcile.Choice {
		prompted = true
		return reconcile.ChoiceLocal
	})

	r := newResolver(local, remote, arbiter)
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.CurrentStreak != 8 {
		t.Errorf("CurrentStreak = %d, want local record's 8", got.CurrentStreak)
	}
	if prompted {
		t.Error("user prompted although local was strictly newer")
	}
	if remote.Saves != 1 {
		t.Errorf("remote pushes = %d, want exactly 1", remote.Saves)
	}
}

func TestResolve_RemoteNewer_UserPicksCloud(t *testing.T) {
	local := store.NewMemoryLocal()
	local.Save(recordWith(t, &t1, 1))
	remote := store.NewMemoryRemote()
	if err := remote.SaveProgress(context.Background(), "user-1", recordWith(t, &t2, 6)); err != nil {
		t.Fatal(err)
	}

	r := newResolver(local, remote, reconcile.StaticArbiter{Decision: reconcile.ChoiceCloud})
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.CurrentStreak != 6 {
		t.Errorf("CurrentStreak = %d, want remote record's 6", got.CurrentStreak)
	}
	cached, ok := local.Load("test-course")
	if !ok || cached.CurrentStreak != 6 {
		t.Error("local cache not overwritten with adopted remote record")
	}
}

func TestResolve_RemoteNewer_UserKeepsLocal(t *testing.T) {
	local := store.NewMemoryLocal()
	local.Save(recordWith(t, &t1, 1))
	remote := store.NewMemoryRemote()
	if err := remote.SaveProgress(context.Background(), "user-1", recordWith(t, &t2, 6)); err != nil {
		t.Fatal(err)
	}

	r := newResolver(local, remote, reconcile.StaticArbiter{Decision: reconcile.ChoiceLocal})
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want local record's 1", got.CurrentStreak)
	}
	stored, err := remote.LoadProgress(context.Background(), "user-1", "test-course")
	if err != nil || stored == nil || stored.CurrentStreak != 1 {
		t.Error("kept local record not pushed to remote store")
	}
}

func TestResolve_EqualTimestamps_RemoteWins(t *testing.T) {
	local := store.NewMemoryLocal()
	local.Save(recordWith(t, &t1, 1))
	remote := store.NewMemoryRemote()
	if err := remote.SaveProgress(context.Background(), "user-1", recordWith(t, &t1, 6)); err != nil {
		t.Fatal(err)
	}

	prompted := false
	arbiter := reconcile.FuncArbiter(func(context.Context, reconcile.Conflict) reconcile.Choice {
		prompted = true
		return reconcile.ChoiceLocal
	})

	r := newResolver(local, remote, arbiter)
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.CurrentStreak != 6 {
		t.Errorf("CurrentStreak = %d, want remote record's 6 at parity", got.CurrentStreak)
	}
	if prompted {
		t.Error("user prompted on equal timestamps")
	}
}

func TestResolve_AbsentTimestampsCountAsEpoch(t *testing.T) {
	local := store.NewMemoryLocal()
	local.Save(recordWith(t, &t1, 3)) // has activity
	remote := store.NewMemoryRemote()
	if err := remote.SaveProgress(context.Background(), "user-1", recordWith(t, nil, 9)); err != nil {
		t.Fatal(err)
	}

	r := newResolver(local, remote, nil)
	got := r.Resolve(context.Background(), testCourse(), testMeta(), "user-1")

	if got.CurrentStreak != 3 {
		t.Errorf("CurrentStreak = %d, want local record's 3 (remote has no activity)", got.CurrentStreak)
	}
}

func TestSaveProgress_LocalSyncRemoteAsync(t *testing.T) {
	local := store.NewMemoryLocal()
	remote := store.NewMemoryRemote()
	r := newResolver(local, remote, nil)

	p := recordWith(t, &t1, 2)
	saved := r.SaveProgress(context.Background(), "user-1", p)
	r.Wait()

	if saved.NotStartedCount+saved.LearningCount+saved.ReviewingCount+saved.MasteredCount != saved.TotalQuestions {
		t.Error("write-back did not recompute derived fields")
	}
	if _, ok := local.Load("test-course"); !ok {
		t.Error("write-back skipped the local cache")
	}
	stored, err := remote.LoadProgress(context.Background(), "user-1", "test-course")
	if err != nil || stored == nil {
		t.Error("write-back did not reach the remote store")
	}
}

func TestSaveProgress_RemotePushFailureKeepsLocal(t *testing.T) {
	local := store.NewMemoryLocal()
	remote := store.NewMemoryRemote()
	remote.FailSave = errors.New("network down")
	r := newResolver(local, remote, nil)

	r.SaveProgress(context.Background(), "user-1", recordWith(t, &t1, 2))
	r.Wait()

	if _, ok := local.Load("test-course"); !ok {
		t.Error("failed remote push rolled back the local write")
	}
}

func TestSaveProgress_SignedOutSkipsRemote(t *testing.T) {
	local := store.NewMemoryLocal()
	remote := store.NewMemoryRemote()
	r := newResolver(local, remote, nil)

	r.SaveProgress(context.Background(), "", recordWith(t, &t1, 2))
	r.Wait()

	if remote.Saves != 0 {
		t.Error("remote store touched while signed out")
	}
}

func TestClearProgress_RemovesFromBothStores(t *testing.T) {
	local := store.NewMemoryLocal()
	remote := store.NewMemoryRemote()
	local.Save(recordWith(t, &t1, 1))
	if err := remote.SaveProgress(context.Background(), "user-1", recordWith(t, &t1, 1)); err != nil {
		t.Fatal(err)
	}

	r := newResolver(local, remote, nil)
	if err := r.ClearProgress(context.Background(), "user-1", "test-course"); err != nil {
		t.Fatalf("ClearProgress() error = %v", err)
	}

	if _, ok := local.Load("test-course"); ok {
		t.Error("local record survived reset")
	}
	stored, err := remote.LoadProgress(context.Background(), "user-1", "test-course")
	if err != nil || stored != nil {
		t.Error("remote record survived reset")
	}
}

func TestResolve_NotifierNotRequired(t *testing.T) {
	// A resolver without remote store, arbiter, or notifier still works.
	local := store.NewMemoryLocal()
	r := reconcile.New(reconcile.Config{Local: local})

	got := r.Resolve(context.Background(), testCourse(), testMeta(), "")
	if got.TotalQuestions != 2 {
		t.Errorf("TotalQuestions = %d, want 2", got.TotalQuestions)
	}
}
