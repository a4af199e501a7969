// Package scoring validates question definitions and scores answers.
// Everything here is pure: no I/O, no clocks.
package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
)

// Policy carries the per-quiz grading switches that affect scoring.
type Policy struct {
	// ShortAnswerManual routes short answers to a human even when the
	// automatic match succeeds.
	ShortAnswerManual bool
}

func PolicyFor(quiz *models.Quiz) Policy {
	return Policy{ShortAnswerManual: quiz.ShortAnswerManual}
}

type Result struct {
	IsCorrect          bool
	PointsEarned       float64
	NeedsManualGrading bool
	// SuggestedPoints is the automatic match a grader can accept.
	SuggestedPoints *float64
}

// Question is a decoded question. The set of implementations is closed:
// every supported type has exactly one concrete type in this package.
type Question interface {
	ID() string
	Points() float64
	Type() models.QuestionType

	validate() []fieldError
	decodeAnswer(raw json.RawMessage) (any, error)
	score(answer any, policy Policy) Result
}

type fieldError struct {
	field   string
	message string
	value   any
}

type base struct {
	id     string
	points float64
}

func (b base) ID() string      { return b.id }
func (b base) Points() float64 { return b.points }

type MultipleChoiceQuestion struct {
	base
	Options       []string
	CorrectAnswer string
}

type TrueFalseQuestion struct {
	base
	Options       []string
	CorrectAnswer string
}

type ShortAnswerQuestion struct {
	base
	CorrectAnswer string
}

type EssayQuestion struct {
	base
}

type FillBlankQuestion struct {
	base
	CorrectAnswers []string
}

type MatchingQuestion struct {
	base
	Pairs []models.MatchPair
}

func (MultipleChoiceQuestion) Type() models.QuestionType { return models.MultipleChoice }
func (TrueFalseQuestion) Type() models.QuestionType      { return models.TrueFalse }
func (ShortAnswerQuestion) Type() models.QuestionType    { return models.ShortAnswer }
func (EssayQuestion) Type() models.QuestionType          { return models.Essay }
func (FillBlankQuestion) Type() models.QuestionType      { return models.FillInBlank }
func (MatchingQuestion) Type() models.QuestionType       { return models.Matching }

// Decode turns a stored question into its typed form.
func Decode(q models.Question) (Question, error) {
	b := base{id: q.ID, points: q.Points}
	switch q.Type {
	case models.MultipleChoice:
		return MultipleChoiceQuestion{base: b, Options: q.Options, CorrectAnswer: q.CorrectAnswer}, nil
	case models.TrueFalse:
		return TrueFalseQuestion{base: b, Options: q.Options, CorrectAnswer: q.CorrectAnswer}, nil
	case models.ShortAnswer:
		return ShortAnswerQuestion{base: b, CorrectAnswer: q.CorrectAnswer}, nil
	case models.Essay:
		return EssayQuestion{base: b}, nil
	case models.FillInBlank:
		return FillBlankQuestion{base: b, CorrectAnswers: q.CorrectAnswers}, nil
	case models.Matching:
		return MatchingQuestion{base: b, Pairs: q.Pairs}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestionType, q.Type)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsNormalized(options []string, value string) bool {
	want := normalize(value)
	for _, option := range options {
		if normalize(option) == want {
			return true
		}
	}
	return false
}
