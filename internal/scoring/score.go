package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
)

var (
	ErrUnknownQuestionType = errors.New("unknown question type")
	ErrMalformedAnswer     = errors.New("malformed answer")
)

// Score grades one submitted answer. A payload that does not decode into
// the shape the question expects earns nothing, though manual questions
// still go to a grader.
func Score(q models.Question, raw []byte, policy Policy) Result {
	typed, err := Decode(q)
	if err != nil {
		return Result{}
	}
	answer, err := typed.decodeAnswer(raw)
	if err != nil {
		return Result{NeedsManualGrading: manualFor(typed, policy)}
	}
	return typed.score(answer, policy)
}

// RequiresManualGrading reports whether a question always goes to a human
// under the given policy, answered or not.
func RequiresManualGrading(q models.Question, policy Policy) bool {
	typed, err := Decode(q)
	if err != nil {
		return false
	}
	return manualFor(typed, policy)
}

func manualFor(typed Question, policy Policy) bool {
	switch typed.(type) {
	case EssayQuestion:
		return true
	case ShortAnswerQuestion:
		return policy.ShortAnswerManual
	default:
		return false
	}
}

// ValidateAnswer checks that a payload has the shape its question type expects.
func ValidateAnswer(q models.Question, raw []byte) error {
	typed, err := Decode(q)
	if err != nil {
		return err
	}
	if _, err := typed.decodeAnswer(raw); err != nil {
		return err
	}
	return nil
}

func fraction(points float64, correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return points * float64(correct) / float64(total)
}

func malformed(expected string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: expected %s: %v", ErrMalformedAnswer, expected, err)
	}
	return fmt.Errorf("%w: expected %s", ErrMalformedAnswer, expected)
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", malformed("a string", err)
	}
	return s, nil
}

// multiple choice

func (q MultipleChoiceQuestion) decodeAnswer(raw json.RawMessage) (any, error) {
	return decodeString(raw)
}

func (q MultipleChoiceQuestion) score(answer any, _ Policy) Result {
	if normalize(answer.(string)) == normalize(q.CorrectAnswer) {
		return Result{IsCorrect: true, PointsEarned: q.points}
	}
	return Result{}
}

// true / false

func (q TrueFalseQuestion) decodeAnswer(raw json.RawMessage) (any, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	s, err := decodeString(raw)
	if err != nil {
		return nil, malformed("a boolean or string", nil)
	}
	return s, nil
}

func (q TrueFalseQuestion) score(answer any, _ Policy) Result {
	if normalize(answer.(string)) == normalize(q.CorrectAnswer) {
		return Result{IsCorrect: true, PointsEarned: q.points}
	}
	return Result{}
}

// short answer

func (q ShortAnswerQuestion) decodeAnswer(raw json.RawMessage) (any, error) {
	return decodeString(raw)
}

func (q ShortAnswerQuestion) score(answer any, policy Policy) Result {
	matched := normalize(answer.(string)) == normalize(q.CorrectAnswer)
	if policy.ShortAnswerManual {
		suggested := 0.0
		if matched {
			suggested = q.points
		}
		return Result{NeedsManualGrading: true, SuggestedPoints: &suggested}
	}
	if matched {
		return Result{IsCorrect: true, PointsEarned: q.points}
	}
	return Result{}
}

// essay

func (q EssayQuestion) decodeAnswer(raw json.RawMessage) (any, error) {
	return decodeString(raw)
}

func (q EssayQuestion) score(_ any, _ Policy) Result {
	return Result{NeedsManualGrading: true}
}

// fill in the blank

func (q FillBlankQuestion) decodeAnswer(raw json.RawMessage) (any, error) {
	var blanks []string
	if err := json.Unmarshal(raw, &blanks); err != nil {
		return nil, malformed("a list of strings", err)
	}
	return blanks, nil
}

func (q FillBlankQuestion) score(answer any, _ Policy) Result {
	submitted := answer.([]string)
	correct := 0
	for i, expected := range q.CorrectAnswers {
		if i < len(submitted) && normalize(submitted[i]) == normalize(expected) {
			correct++
		}
	}
	total := len(q.CorrectAnswers)
	return Result{
		IsCorrect:    total > 0 && correct == total,
		PointsEarned: fraction(q.points, correct, total),
	}
}

// matching

func (q MatchingQuestion) decodeAnswer(raw json.RawMessage) (any, error) {
	var pairs map[string]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, malformed("an object mapping left items to right items", err)
	}
	return pairs, nil
}

func (q MatchingQuestion) score(answer any, _ Policy) Result {
	submitted := make(map[string]string)
	for left, right := range answer.(map[string]string) {
		submitted[normalize(left)] = right
	}

	correct := 0
	for _, pair := range q.Pairs {
		right, ok := submitted[normalize(pair.Left)]
		if ok && normalize(right) == normalize(pair.Right) {
			correct++
		}
	}
	total := len(q.Pairs)
	return Result{
		IsCorrect:    total > 0 && correct == total,
		PointsEarned: fraction(q.points, correct, total),
	}
}
