// Package session runs a single study session: it orders the working set
// of questions by learning priority and folds each answer into the mastery
// model.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/simon-b64/study-questions/internal/course"
	"github.com/simon-b64/study-questions/internal/progress"
)

// State is the session state machine position.
type State string

const (
	StateIdle       State = "idle"
	StateInProgress State = "in_progress"
	StateAnswered   State = "answered"
	StateFinished   State = "finished"
)

// Priority score bands. Lower score = shown sooner.
const (
	bandNotStartedMin = 0.0
	bandLearningMin   = 10.0
	bandReviewingMin  = 20.0
	bandMasteredMin   = 30.0
	bandWidth         = 10.0
	scoreFallback     = 40.0
)

// Saver is the write-back path invoked after every answer. The returned
// record carries the recomputed derived fields.
type Saver interface {
	SaveProgress(ctx context.Context, ownerID string, p progress.CourseProgress) progress.CourseProgress
}

// Candidate is one question in the session queue together with its group.
type Candidate struct {
	Question  course.Question
	GroupName string
}

// Stats counts answers within this session only.
type Stats struct {
	TotalAnswered    int
	CorrectAnswers   int
	IncorrectAnswers int
}

// Config holds everything needed to start a session. Rand must be set so
// the queue ordering is reproducible under test. Saver may be nil, in
// which case answers only update the in-memory record.
type Config struct {
	Course      course.Course
	Progress    progress.CourseProgress
	OwnerID     string
	GroupFilter string // restrict to one group name; empty = whole course
	Limit       int    // truncate the ordered queue; <= 0 = no limit
	Rand        *rand.Rand
	Saver       Saver
	Now         func() time.Time
}

// Session is a single study session. It is not safe for concurrent use;
// one logical actor drives it, matching the one-answer-at-a-time ordering
// guarantee.
type Session struct {
	id       string
	ownerID  string
	state    State
	queue    []Candidate
	index    int
	selected map[int]bool
	hint     bool
	stats    Stats
	progress progress.CourseProgress
	saver    Saver
	now      func() time.Time
}

// New builds the session queue from (course, progress) and enters
// StateInProgress. Resolution must have completed first: any question
// without a progress entry is a data-consistency defect and is skipped
// with a warning.
func New(cfg Config) (*Session, error) {
	if cfg.Rand == nil {
		return nil, fmt.Errorf("session needs a random source")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		id:       uuid.NewString(),
		ownerID:  cfg.OwnerID,
		state:    StateIdle,
		selected: make(map[int]bool),
		progress: cfg.Progress,
		saver:    cfg.Saver,
		now:      now,
	}

	candidates := collect(cfg.Course, cfg.Progress, cfg.GroupFilter)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no questions available for session")
	}

	orderByPriority(candidates, cfg.Progress, cfg.Rand)

	queue := make([]Candidate, len(candidates))
	for i, c := range candidates {
		queue[i] = c.Candidate
	}
	if cfg.Limit > 0 && cfg.Limit < len(queue) {
		queue = queue[:cfg.Limit]
	}

	s.queue = queue
	s.state = StateInProgress
	return s, nil
}

type scored struct {
	Candidate
	score  float64
	jitter float64
}

func collect(c course.Course, p progress.CourseProgress, groupFilter string) []scored {
	var out []scored
	for _, g := range c.QuestionGroups {
		if groupFilter != "" && g.Name != groupFilter {
			continue
		}
		gp := p.Group(g.Name)
		for _, q := range g.Questions {
			if gp == nil || gp.Question(q.ID) == nil {
				slog.Warn("no progress entry for question, skipping", "question_id", q.ID, "group", g.Name)
				continue
			}
			out = append(out, scored{Candidate: Candidate{Question: q, GroupName: g.Name}})
		}
	}
	return out
}

func orderByPriority(candidates []scored, p progress.CourseProgress, rng *rand.Rand) {
	for i := range candidates {
		qp := p.Group(candidates[i].GroupName).Question(candidates[i].Question.ID)
		candidates[i].score = priorityScore(*qp, rng)
		candidates[i].jitter = rng.Float64()
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		// Same-band ties interleave instead of sorting stably.
		return candidates[i].jitter < candidates[j].jitter
	})
}

// priorityScore maps a question's mastery state to a non-overlapping score
// band; lower scores are shown sooner.
func priorityScore(qp progress.QuestionProgress, rng *rand.Rand) float64 {
	switch qp.MasteryLevel {
	case progress.MasteryNotStarted:
		return bandNotStartedMin + rng.Float64()*bandWidth

	case progress.MasteryLearning:
		// Higher incorrect ratio sorts earlier within the band.
		attempts := qp.TotalAttempts
		if attempts < 1 {
			attempts = 1
		}
		incorrectRatio := float64(qp.IncorrectAttempts) / float64(attempts)
		return bandLearningMin + (1-incorrectRatio)*bandWidth

	case progress.MasteryReviewing:
		return bandReviewingMin + float64(qp.ConsecutiveCorrect)*3

	case progress.MasteryMastered:
		// Occasional resurfacing for retention.
		return bandMasteredMin + rng.Float64()*bandWidth

	default:
		return scoreFallback
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current state machine position.
func (s *Session) State() State { return s.state }

// Remaining returns how many questions are left, including the current one.
func (s *Session) Remaining() int { return len(s.queue) - s.index }

// QueueLength returns the total queue length.
func (s *Session) QueueLength() int { return len(s.queue) }

// Stats returns the session counters.
func (s *Session) Stats() Stats { return s.stats }

// Progress returns the live progress record.
func (s *Session) Progress() progress.CourseProgress { return s.progress }

// Accuracy returns the session accuracy in whole percent.
func (s *Session) Accuracy() int {
	if s.stats.TotalAnswered == 0 {
		return 0
	}
	return int(float64(s.stats.CorrectAnswers)/float64(s.stats.TotalAnswered)*100 + 0.5)
}

// Current returns the question being shown.
func (s *Session) Current() (Candidate, bool) {
	if s.index >= len(s.queue) {
		return Candidate{}, false
	}
	return s.queue[s.index], true
}

// SelectAnswer toggles membership of an answer index in the multi-select
// set. It is a no-op once the question has been answered.
func (s *Session) SelectAnswer(index int) {
	if s.state != StateInProgress {
		return
	}
	current, ok := s.Current()
	if !ok || index < 0 || index >= len(current.Question.Answers) {
		return
	}
	if s.selected[index] {
		delete(s.selected, index)
	} else {
		s.selected[index] = true
	}
}

// Selected returns the currently selected answer indices in ascending
// order.
func (s *Session) Selected() []int {
	indices := make([]int, 0, len(s.selected))
	for i := range s.selected {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// RevealHint marks the hint as shown and counts its use. The count is
// persisted with the next answer write-back.
func (s *Session) RevealHint() {
	if s.state != StateInProgress || s.hint {
		return
	}
	current, ok := s.Current()
	if !ok {
		return
	}
	s.hint = true
	if qp := s.questionProgress(current); qp != nil {
		qp.HintUsedCount++
	}
}

// HintVisible reports whether the hint is shown for the current question.
func (s *Session) HintVisible() bool { return s.hint }

// Submit freezes the selection, grades it, folds the result into the
// mastery model, and persists via the write-back path. It is a no-op when
// nothing is selected or the question was already answered; ok reports
// whether an answer was actually submitted.
func (s *Session) Submit(ctx context.Context) (correct, ok bool) {
	if s.state != StateInProgress || len(s.selected) == 0 {
		return false, false
	}
	current, okC := s.Current()
	if !okC {
		return false, false
	}

	correct = s.isCorrect(current.Question)
	s.state = StateAnswered

	s.stats.TotalAnswered++
	if correct {
		s.stats.CorrectAnswers++
	} else {
		s.stats.IncorrectAnswers++
	}

	s.applyAnswer(ctx, current, correct)
	return correct, true
}

// isCorrect requires an exact set match between selected indices and the
// answers flagged correct: missing a correct option fails just like
// including a wrong one.
func (s *Session) isCorrect(q course.Question) bool {
	correctIndices := q.CorrectIndices()
	if len(s.selected) != len(correctIndices) {
		return false
	}
	for _, i := range correctIndices {
		if !s.selected[i] {
			return false
		}
	}
	return true
}

func (s *Session) applyAnswer(ctx context.Context, current Candidate, correct bool) {
	now := s.now()

	group := s.progress.Group(current.GroupName)
	if group == nil {
		slog.Error("progress group missing during answer fold", "group", current.GroupName)
		return
	}
	qp := group.Question(current.Question.ID)
	if qp == nil {
		slog.Error("question progress missing during answer fold", "question_id", current.Question.ID)
		return
	}

	*qp = progress.ApplyAttempt(*qp, correct, now)

	if group.StartedAt == nil {
		t := now
		group.StartedAt = &t
	}
	t := now
	group.LastActivityAt = &t
	s.progress.LastActivityAt = &t

	if correct {
		s.progress.CurrentStreak++
	} else {
		s.progress.CurrentStreak = 0
	}
	if s.progress.CurrentStreak > s.progress.LongestStreak {
		s.progress.LongestStreak = s.progress.CurrentStreak
	}

	if s.saver != nil {
		s.progress = s.saver.SaveProgress(ctx, s.ownerID, s.progress)
	} else {
		s.progress = progress.Recalculate(s.progress)
	}
}

func (s *Session) questionProgress(c Candidate) *progress.QuestionProgress {
	group := s.progress.Group(c.GroupName)
	if group == nil {
		return nil
	}
	return group.Question(c.Question.ID)
}

// Advance moves to the next question with a cleared selection and hidden
// hint, or finishes the session when none remain. It returns false once
// the session is finished.
func (s *Session) Advance() bool {
	if s.state != StateAnswered {
		return s.state == StateInProgress
	}
	s.index++
	s.selected = make(map[int]bool)
	s.hint = false
	if s.index >= len(s.queue) {
		s.state = StateFinished
		return false
	}
	s.state = StateInProgress
	return true
}
