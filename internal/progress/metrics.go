package progress

import (
	"log/slog"
	"time"

	"github.com/simon-b64/study-questions/internal/course"
)

// Initialize builds a fresh all-zero progress record for a course.
func Initialize(c course.Course, meta course.Metadata, now time.Time) CourseProgress {
	groups := make([]GroupProgress, 0, len(c.QuestionGroups))
	for _, g := range c.QuestionGroups {
		groups = append(groups, newGroupProgress(g))
	}

	total := c.TotalQuestions()
	return CourseProgress{
		CourseID:            meta.ID,
		CourseName:          meta.Name,
		TotalQuestions:      total,
		TotalQuestionGroups: len(c.QuestionGroups),
		GroupsProgress:      groups,
		CreatedAt:           now,
		NotStartedCount:     total,
	}
}

func newGroupProgress(g course.QuestionGroup) GroupProgress {
	questions := make([]QuestionProgress, 0, len(g.Questions))
	for _, q := range g.Questions {
		questions = append(questions, newQuestionProgress(q.ID))
	}
	return GroupProgress{
		GroupName:         g.Name,
		TotalQuestions:    len(g.Questions),
		QuestionsProgress: questions,
		NotStartedCount:   len(g.Questions),
	}
}

func newQuestionProgress(id string) QuestionProgress {
	return QuestionProgress{
		QuestionID:   id,
		MasteryLevel: MasteryNotStarted,
	}
}

// Synchronize reconciles an existing progress record against current course
// content. Groups are joined by name: a course group without a matching
// progress group gets a fresh all-zero one; progress entries whose question
// id no longer exists in the group are dropped (an edited question counts as
// a new question, its history is discarded); new question ids get zeroed
// entries. Progress groups whose name no longer exists in the course are
// dropped with them. Returns the input untouched and false when no
// structural drift is detected.
func Synchronize(p CourseProgress, c course.Course) (CourseProgress, bool) {
	changed := len(p.GroupsProgress) != len(c.QuestionGroups)
	orphaned := 0

	groups := make([]GroupProgress, 0, len(c.QuestionGroups))
	for _, courseGroup := range c.QuestionGroups {
		existing := p.Group(courseGroup.Name)
		if existing == nil {
			slog.Info("adding missing progress group", "group", courseGroup.Name)
			changed = true
			groups = append(groups, newGroupProgress(courseGroup))
			continue
		}

		currentIDs := make(map[string]bool, len(courseGroup.Questions))
		for _, q := range courseGroup.Questions {
			currentIDs[q.ID] = true
		}

		valid := make([]QuestionProgress, 0, len(existing.QuestionsProgress))
		kept := make(map[string]bool, len(existing.QuestionsProgress))
		for _, qp := range existing.QuestionsProgress {
			if !currentIDs[qp.QuestionID] {
				slog.Info("removing orphaned question progress", "question_id", qp.QuestionID, "group", courseGroup.Name)
				orphaned++
				changed = true
				continue
			}
			valid = append(valid, qp)
			kept[qp.QuestionID] = true
		}

		added := 0
		for _, q := range courseGroup.Questions {
			if !kept[q.ID] {
				valid = append(valid, newQuestionProgress(q.ID))
				added++
			}
		}
		if added > 0 {
			slog.Info("adding new question progress", "count", added, "group", courseGroup.Name)
			changed = true
		}

		group := *existing
		group.QuestionsProgress = valid
		if group.TotalQuestions != len(courseGroup.Questions) {
			changed = true
		}
		group.TotalQuestions = len(courseGroup.Questions)
		groups = append(groups, group)
	}

	if !changed {
		return p, false
	}

	if orphaned > 0 {
		slog.Info("progress synchronized", "orphaned_entries_removed", orphaned)
	}

	p.GroupsProgress = groups
	p.TotalQuestions = c.TotalQuestions()
	p.TotalQuestionGroups = len(c.QuestionGroups)
	return p, true
}

// Recalculate recomputes every derived field from the per-question attempt
// history. It must run after every mutation of QuestionsProgress before the
// record is considered valid.
func Recalculate(p CourseProgress) CourseProgress {
	groups := make([]GroupProgress, len(p.GroupsProgress))
	for i, g := range p.GroupsProgress {
		groups[i] = recalculateGroup(g)
	}

	var notStarted, learning, reviewing, mastered int
	var attempts, correct int
	for _, g := range groups {
		notStarted += g.NotStartedCount
		learning += g.LearningCount
		reviewing += g.ReviewingCount
		mastered += g.MasteredCount
		for _, q := range g.QuestionsProgress {
			attempts += q.TotalAttempts
			correct += q.CorrectAttempts
		}
	}

	p.GroupsProgress = groups
	p.NotStartedCount = notStarted
	p.LearningCount = learning
	p.ReviewingCount = reviewing
	p.MasteredCount = mastered
	p.OverallCompletionPercentage = percentage(mastered, p.TotalQuestions)
	p.OverallAccuracy = percentage(correct, attempts)
	return p
}

func recalculateGroup(g GroupProgress) GroupProgress {
	var notStarted, learning, reviewing, mastered int
	var attempts, correct int
	for _, q := range g.QuestionsProgress {
		switch q.MasteryLevel {
		case MasteryNotStarted:
			notStarted++
		case MasteryLearning:
			learning++
		case MasteryReviewing:
			reviewing++
		case MasteryMastered:
			mastered++
		}
		attempts += q.TotalAttempts
		correct += q.CorrectAttempts
	}

	g.NotStartedCount = notStarted
	g.LearningCount = learning
	g.ReviewingCount = reviewing
	g.MasteredCount = mastered
	g.CompletionPercentage = percentage(mastered, g.TotalQuestions)
	g.AverageAccuracy = percentage(correct, attempts)
	return g
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
