// internal/generation/content.go
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quiz-battle/internal/game"
	"quiz-battle/internal/models"
	"quiz-battle/pkg/ai"
	"quiz-battle/pkg/logger"
)

// Provider is the generative model behind the pipeline.
type Provider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, schema *ai.Schema) (string, error)
}

// LectureData is validated lecture and quiz content.
type LectureData struct {
	Topic    string
	Lecture  string
	QuizList []models.QuizQuestion
}

// ValidationError means the model answered with content that cannot be used.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid generated content: " + e.Reason
}

const combinePrompt = `Given these two topics, create a single, focused topic that combines or chooses the best one for a quiz battle:

Host Topic: %q
Guest Topic: %q

Return only the combined topic as a single sentence, no additional text.`

const lecturePrompt = `You are a quiz battle assistant. Given this topic, generate a short lecture (2-5 min read) and exactly %d multiple-choice questions.
Questions should have %d answer choices, with one correct answer. The questions should be challenging but fair, testing key concepts from the lecture.
Questions should scale in difficulty, starting easier and getting harder.
The lecture should not contain any introductory or concluding remarks, just the educational content.

Topic: %q

Represent all mathematical formulas, equations and expressions using LaTeX syntax.
Only output the JSON object that conforms to the provided schema.`

var quizSchema = &ai.Schema{
	Type: ai.TypeObject,
	Properties: map[string]*ai.Schema{
		"topic": {
			Type:        ai.TypeString,
			Description: "The topic of the quiz and lecture.",
		},
		"lecture": {
			Type:        ai.TypeString,
			Description: "The short lecture content (2-5 minute read) without introductory or concluding remarks.",
		},
		"quizList": {
			Type:        ai.TypeArray,
			Description: fmt.Sprintf("An array of exactly %d multiple-choice questions.", models.QuizLength),
			Items: &ai.Schema{
				Type: ai.TypeObject,
				Properties: map[string]*ai.Schema{
					"question": {Type: ai.TypeString, Description: "The question text."},
					"choices": {
						Type:        ai.TypeArray,
						Description: fmt.Sprintf("Exactly %d answer choices.", models.ChoiceCount),
						Items:       &ai.Schema{Type: ai.TypeString},
					},
					"answerIndex": {
						Type:        ai.TypeInteger,
						Description: fmt.Sprintf("The zero-based index of the correct choice (0 to %d).", models.ChoiceCount-1),
					},
					"id": {Type: ai.TypeString, Description: "A unique identifier for the question, e.g. 'q1'."},
				},
				Required: []string{"question", "choices", "answerIndex", "id"},
			},
		},
	},
	Required: []string{"topic", "lecture", "quizList"},
}

// CombineTopics merges both players' topics into one. It never fails: any
// provider error or blank answer falls back to joining the two topics.
func CombineTopics(ctx context.Context, provider Provider, hostTopic, guestTopic string) string {
	fallback := fmt.Sprintf("%s and %s", hostTopic, guestTopic)

	text, err := provider.GenerateText(ctx, fmt.Sprintf(combinePrompt, hostTopic, guestTopic))
	if err != nil {
		logger.Warn("combine topics failed, using fallback", zap.Error(err))
		return fallback
	}
	if combined := strings.TrimSpace(text); combined != "" {
		return combined
	}
	return fallback
}

type rawQuestion struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex *int     `json:"answerIndex"`
}

type rawLecture struct {
	Topic    string        `json:"topic"`
	Lecture  string        `json:"lecture"`
	QuizList []rawQuestion `json:"quizList"`
}

// GenerateLectureAndQuiz requests lecture and quiz content for topic. The
// answer is rejected as a whole if any part of it is malformed.
func GenerateLectureAndQuiz(ctx context.Context, provider Provider, topic string) (*LectureData, error) {
	prompt := fmt.Sprintf(lecturePrompt, models.QuizLength, models.ChoiceCount, topic)
	text, err := provider.GenerateJSON(ctx, prompt, quizSchema)
	if err != nil {
		return nil, err
	}
	return ParseLecture(text)
}

// ParseLecture decodes and validates a model answer.
func ParseLecture(text string) (*LectureData, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Reason: "empty response"}
	}

	var raw rawLecture
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &ValidationError{Reason: "response is not valid JSON: " + err.Error()}
	}
	if strings.TrimSpace(raw.Topic) == "" {
		return nil, &ValidationError{Reason: "missing topic"}
	}
	if strings.TrimSpace(raw.Lecture) == "" {
		return nil, &ValidationError{Reason: "missing lecture"}
	}

	questions := make([]models.QuizQuestion, len(raw.QuizList))
	for i, q := range raw.QuizList {
		if q.AnswerIndex == nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("question %d: missing answer index", i)}
		}
		questions[i] = models.QuizQuestion{
			ID:          q.ID,
			Question:    q.Question,
			Choices:     q.Choices,
			AnswerIndex: *q.AnswerIndex,
		}
	}
	if err := game.ValidateQuiz(questions); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	return &LectureData{
		Topic:    raw.Topic,
		Lecture:  raw.Lecture,
		QuizList: questions,
	}, nil
}
