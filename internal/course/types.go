package course

// Metadata identifies a course independent of its content.
type Metadata struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Course is an immutable course document. Content may change between
// deployments: question ids can disappear, new ones can appear, and groups
// can be renamed or added.
type Course struct {
	QuestionGroups []QuestionGroup `json:"questionGroups"`
}

// QuestionGroup is a named set of questions.
type QuestionGroup struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// Question is a multiple-choice question. ID is stable and unique within
// the course; progress is keyed on it.
type Question struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Hint     string   `json:"hint"`
	Reason   string   `json:"reason"`
	Answers  []Answer `json:"answers"`
}

// Answer is a single answer option. A question may flag more than one
// answer as correct (multi-select).
type Answer struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// TotalQuestions returns the number of questions across all groups.
func (c Course) TotalQuestions() int {
	total := 0
	for _, g := range c.QuestionGroups {
		total += len(g.Questions)
	}
	return total
}

// Group returns the question group with the given name.
func (c Course) Group(name string) (QuestionGroup, bool) {
	for _, g := range c.QuestionGroups {
		if g.Name == name {
			return g, true
		}
	}
	return QuestionGroup{}, false
}

// CorrectIndices returns the indices of all answers flagged correct,
// in ascending order.
func (q Question) CorrectIndices() []int {
	var indices []int
	for i, a := range q.Answers {
		if a.Correct {
			indices = append(indices, i)
		}
	}
	return indices
}
