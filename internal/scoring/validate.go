package scoring

import (
	"fmt"
	"strings"

	apperrors "github.com/SAP-F-2025/quiz-engine/internal/errors"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
)

// Validate checks question definitions before a quiz is saved. Problems
// are reported per field and never corrected.
func Validate(questions []models.Question) error {
	var errs apperrors.ValidationErrors
	seen := make(map[string]bool, len(questions))

	for i, q := range questions {
		prefix := fmt.Sprintf("questions[%d]", i)

		if strings.TrimSpace(q.ID) == "" {
			errs = errs.Add(prefix+".id", "is required", q.ID)
		} else if seen[q.ID] {
			errs = errs.Add(prefix+".id", "must be unique within the quiz", q.ID)
		}
		seen[q.ID] = true

		if strings.TrimSpace(q.Text) == "" {
			errs = errs.Add(prefix+".text", "is required", nil)
		}
		if q.Points <= 0 {
			errs = errs.Add(prefix+".points", "must be greater than 0", q.Points)
		}

		typed, err := Decode(q)
		if err != nil {
			errs = errs.Add(prefix+".type", err.Error(), q.Type)
			continue
		}
		for _, fe := range typed.validate() {
			errs = errs.Add(prefix+"."+fe.field, fe.message, fe.value)
		}
	}

	return errs.OrNil()
}

func (q MultipleChoiceQuestion) validate() []fieldError {
	var errs []fieldError
	if len(q.Options) < 2 {
		errs = append(errs, fieldError{"options", "must have at least 2 options", len(q.Options)})
	}
	if strings.TrimSpace(q.CorrectAnswer) == "" {
		errs = append(errs, fieldError{"correct_answer", "is required", nil})
	} else if len(q.Options) > 0 && !containsNormalized(q.Options, q.CorrectAnswer) {
		errs = append(errs, fieldError{"correct_answer", "must be one of the options", q.CorrectAnswer})
	}
	return errs
}

func (q TrueFalseQuestion) validate() []fieldError {
	var errs []fieldError
	if len(q.Options) != 2 {
		errs = append(errs, fieldError{"options", "must have exactly 2 options", len(q.Options)})
	}
	if strings.TrimSpace(q.CorrectAnswer) == "" {
		errs = append(errs, fieldError{"correct_answer", "is required", nil})
	} else if len(q.Options) > 0 && !containsNormalized(q.Options, q.CorrectAnswer) {
		errs = append(errs, fieldError{"correct_answer", "must be one of the options", q.CorrectAnswer})
	}
	return errs
}

func (q ShortAnswerQuestion) validate() []fieldError {
	if strings.TrimSpace(q.CorrectAnswer) == "" {
		return []fieldError{{"correct_answer", "is required", nil}}
	}
	return nil
}

func (q EssayQuestion) validate() []fieldError {
	return nil
}

func (q FillBlankQuestion) validate() []fieldError {
	if len(q.CorrectAnswers) == 0 {
		return []fieldError{{"correct_answers", "must have at least 1 blank", 0}}
	}
	var errs []fieldError
	for i, answer := range q.CorrectAnswers {
		if strings.TrimSpace(answer) == "" {
			errs = append(errs, fieldError{fmt.Sprintf("correct_answers[%d]", i), "cannot be empty", nil})
		}
	}
	return errs
}

func (q MatchingQuestion) validate() []fieldError {
	if len(q.Pairs) == 0 {
		return []fieldError{{"pairs", "must have at least 1 pair", 0}}
	}
	var errs []fieldError
	lefts := make(map[string]bool, len(q.Pairs))
	for i, pair := range q.Pairs {
		field := fmt.Sprintf("pairs[%d]", i)
		if strings.TrimSpace(pair.Left) == "" || strings.TrimSpace(pair.Right) == "" {
			errs = append(errs, fieldError{field, "must have both left and right items", nil})
			continue
		}
		key := normalize(pair.Left)
		if lefts[key] {
			errs = append(errs, fieldError{field + ".left", "must be unique", pair.Left})
		}
		lefts[key] = true
	}
	return errs
}
