// Package progress holds the mastery model for a course and the pure
// functions that build, repair, and recompute it.
package progress

import "time"

// MasteryLevel is the ordered learning progression for a single question.
// Transitions are only ever produced by ApplyAttempt.
type MasteryLevel string

const (
	MasteryNotStarted MasteryLevel = "not_started"
	MasteryLearning   MasteryLevel = "learning"
	MasteryReviewing  MasteryLevel = "reviewing"
	MasteryMastered   MasteryLevel = "mastered"
)

// QuestionProgress tracks one question's attempt history.
// TotalAttempts always equals CorrectAttempts + IncorrectAttempts, and at
// most one of ConsecutiveCorrect/ConsecutiveIncorrect is non-zero after an
// attempt. MasteredAt is set the first time the question reaches
// MasteryMastered and is never cleared afterwards.
type QuestionProgress struct {
	QuestionID           string       `json:"questionId"`
	TotalAttempts        int          `json:"totalAttempts"`
	CorrectAttempts      int          `json:"correctAttempts"`
	IncorrectAttempts    int          `json:"incorrectAttempts"`
	ConsecutiveCorrect   int          `json:"consecutiveCorrect"`
	ConsecutiveIncorrect int          `json:"consecutiveIncorrect"`
	MasteryLevel         MasteryLevel `json:"masteryLevel"`
	LastAttemptedAt      *time.Time   `json:"lastAttemptedAt,omitempty"`
	FirstCorrectAt       *time.Time   `json:"firstCorrectAt,omitempty"`
	MasteredAt           *time.Time   `json:"masteredAt,omitempty"`
	HintUsedCount        int          `json:"hintUsedCount"`
}

// GroupProgress tracks one question group. The count, percentage and
// accuracy fields are derived from QuestionsProgress by Recalculate and are
// never set directly.
type GroupProgress struct {
	GroupName            string             `json:"groupName"`
	TotalQuestions       int                `json:"totalQuestions"`
	QuestionsProgress    []QuestionProgress `json:"questionsProgress"`
	StartedAt            *time.Time         `json:"startedAt,omitempty"`
	LastActivityAt       *time.Time         `json:"lastActivityAt,omitempty"`
	NotStartedCount      int                `json:"notStartedCount"`
	LearningCount        int                `json:"learningCount"`
	ReviewingCount       int                `json:"reviewingCount"`
	MasteredCount        int                `json:"masteredCount"`
	CompletionPercentage float64            `json:"completionPercentage"`
	AverageAccuracy      float64            `json:"averageAccuracy"`
}

// CourseProgress is the aggregate progress record for one (owner, course)
// pair. Groups are keyed by GroupName, not by position. Overall counts are
// derived sums over the groups.
type CourseProgress struct {
	CourseID                    string          `json:"courseId"`
	CourseName                  string          `json:"courseName"`
	TotalQuestions              int             `json:"totalQuestions"`
	TotalQuestionGroups         int             `json:"totalQuestionGroups"`
	GroupsProgress              []GroupProgress `json:"groupsProgress"`
	CreatedAt                   time.Time       `json:"createdAt"`
	LastActivityAt              *time.Time      `json:"lastActivityAt,omitempty"`
	OverallCompletionPercentage float64         `json:"overallCompletionPercentage"`
	OverallAccuracy             float64         `json:"overallAccuracy"`
	NotStartedCount             int             `json:"notStartedCount"`
	LearningCount               int             `json:"learningCount"`
	ReviewingCount              int             `json:"reviewingCount"`
	MasteredCount               int             `json:"masteredCount"`
	CurrentStreak               int             `json:"currentStreak"`
	LongestStreak               int             `json:"longestStreak"`
}

// Group returns a pointer to the group progress with the given name.
func (p *CourseProgress) Group(name string) *GroupProgress {
	for i := range p.GroupsProgress {
		if p.GroupsProgress[i].GroupName == name {
			return &p.GroupsProgress[i]
		}
	}
	return nil
}

// Question returns a pointer to the progress entry for a question id.
func (g *GroupProgress) Question(questionID string) *QuestionProgress {
	for i := range g.QuestionsProgress {
		if g.QuestionsProgress[i].QuestionID == questionID {
			return &g.QuestionsProgress[i]
		}
	}
	return nil
}

// Clone returns a deep copy. Time pointers are shared: they are replaced,
// never mutated in place.
func (p CourseProgress) Clone() CourseProgress {
	out := p
	out.GroupsProgress = make([]GroupProgress, len(p.GroupsProgress))
	for i, g := range p.GroupsProgress {
		gg := g
		gg.QuestionsProgress = append([]QuestionProgress(nil), g.QuestionsProgress...)
		out.GroupsProgress[i] = gg
	}
	return out
}
