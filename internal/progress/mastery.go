package progress

import "time"

// masteryThreshold is the consecutive-correct streak that promotes a
// question to MasteryMastered.
const masteryThreshold = 3

// ApplyAttempt folds one answer attempt into a question's progress and
// returns the updated entry. FirstCorrectAt is set on the first correct
// attempt only; MasteredAt is set on the transition into MasteryMastered
// and kept on later demotions ("first time mastered" semantics).
func ApplyAttempt(qp QuestionProgress, correct bool, now time.Time) QuestionProgress {
	if correct {
		qp.ConsecutiveCorrect++
		qp.ConsecutiveIncorrect = 0
		qp.CorrectAttempts++
		if qp.FirstCorrectAt == nil {
			t := now
			qp.FirstCorrectAt = &t
		}
	} else {
		qp.ConsecutiveCorrect = 0
		qp.ConsecutiveIncorrect++
		qp.IncorrectAttempts++
	}
	qp.TotalAttempts++

	t := now
	qp.LastAttemptedAt = &t

	previous := qp.MasteryLevel
	qp.MasteryLevel = levelFor(qp.ConsecutiveCorrect, qp.TotalAttempts)
	if qp.MasteryLevel == MasteryMastered && previous != MasteryMastered && qp.MasteredAt == nil {
		m := now
		qp.MasteredAt = &m
	}

	return qp
}

func levelFor(consecutiveCorrect, totalAttempts int) MasteryLevel {
	switch {
	case totalAttempts == 0:
		return MasteryNotStarted
	case consecutiveCorrect >= masteryThreshold:
		return MasteryMastered
	case consecutiveCorrect > 0:
		return MasteryReviewing
	default:
		return MasteryLearning
	}
}
