package course

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook layout: one sheet per question group (the sheet name becomes the
// group name), a header row, then one question per row with columns
// id | question | hint | reason | answer... where a leading "*" marks a
// correct answer.
const importHeaderRows = 1

// ImportResult summarizes a workbook import.
type ImportResult struct {
	Groups    int
	Questions int
	Skipped   []string
}

// ReadWorkbook converts an authored xlsx workbook into a course document.
func ReadWorkbook(path string) (*Course, *ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	result := &ImportResult{}
	c := &Course{}
	seen := make(map[string]bool)

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
		}

		group := QuestionGroup{Name: sheet}
		for i, row := range rows {
			if i < importHeaderRows {
				continue
			}
			q, err := parseQuestionRow(row)
			if err != nil {
				result.Skipped = append(result.Skipped, fmt.Sprintf("%s row %d: %v", sheet, i+1, err))
				continue
			}
			if seen[q.ID] {
				result.Skipped = append(result.Skipped, fmt.Sprintf("%s row %d: duplicate id %q", sheet, i+1, q.ID))
				continue
			}
			seen[q.ID] = true
			group.Questions = append(group.Questions, q)
		}

		if len(group.Questions) == 0 {
			continue
		}
		c.QuestionGroups = append(c.QuestionGroups, group)
		result.Groups++
		result.Questions += len(group.Questions)
	}

	if len(c.QuestionGroups) == 0 {
		return nil, nil, fmt.Errorf("workbook contains no questions")
	}

	return c, result, nil
}

func parseQuestionRow(row []string) (Question, error) {
	if len(row) < 5 {
		return Question{}, fmt.Errorf("expected at least 5 columns, got %d", len(row))
	}

	q := Question{
		ID:       strings.TrimSpace(row[0]),
		Question: strings.TrimSpace(row[1]),
		Hint:     strings.TrimSpace(row[2]),
		Reason:   strings.TrimSpace(row[3]),
	}
	if q.ID == "" {
		return Question{}, fmt.Errorf("missing question id")
	}
	if q.Question == "" {
		return Question{}, fmt.Errorf("missing question text")
	}

	hasCorrect := false
	for _, cell := range row[4:] {
		text := strings.TrimSpace(cell)
		if text == "" {
			continue
		}
		correct := strings.HasPrefix(text, "*")
		if correct {
			text = strings.TrimSpace(strings.TrimPrefix(text, "*"))
			hasCorrect = true
		}
		q.Answers = append(q.Answers, Answer{Text: text, Correct: correct})
	}

	if len(q.Answers) == 0 {
		return Question{}, fmt.Errorf("question has no answers")
	}
	if !hasCorrect {
		return Question{}, fmt.Errorf("question has no correct answer")
	}

	return q, nil
}
