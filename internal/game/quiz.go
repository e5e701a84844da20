// internal/game/quiz.go
package game

import (
	"fmt"
	"strings"

	"quiz-battle/internal/models"
)

// ValidateQuiz checks a generated question list: exactly QuizLength questions,
// each with text, ChoiceCount non-empty choices, an answer index inside the
// choices and an id unique within the list.
func ValidateQuiz(questions []models.QuizQuestion) error {
	if len(questions) != models.QuizLength {
		return fmt.Errorf("expected exactly %d questions, got %d", models.QuizLength, len(questions))
	}

	seen := make(map[string]bool, len(questions))
	for i, q := range questions {
		if strings.TrimSpace(q.ID) == "" {
			return fmt.Errorf("question %d: missing id", i)
		}
		if seen[q.ID] {
			return fmt.Errorf("question %d: duplicate id %q", i, q.ID)
		}
		seen[q.ID] = true

		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("question %d: missing text", i)
		}
		if len(q.Choices) != models.ChoiceCount {
			return fmt.Errorf("question %d: expected %d choices, got %d", i, models.ChoiceCount, len(q.Choices))
		}
		for j, choice := range q.Choices {
			if strings.TrimSpace(choice) == "" {
				return fmt.Errorf("question %d: choice %d is empty", i, j)
			}
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= models.ChoiceCount {
			return fmt.Errorf("question %d: answer index %d out of range", i, q.AnswerIndex)
		}
	}
	return nil
}
