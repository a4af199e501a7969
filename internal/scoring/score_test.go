package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/SAP-F-2025/quiz-engine/internal/errors"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		question models.Question
		answer   string
		policy   Policy
		want     Result
	}{
		{
			name:     "multiple choice ignores case and whitespace",
			question: models.Question{ID: "q1", Type: models.MultipleChoice, Points: 2, Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris"},
			answer:   `"  paris "`,
			want:     Result{IsCorrect: true, PointsEarned: 2},
		},
		{
			name:     "multiple choice wrong option earns nothing",
			question: models.Question{ID: "q1", Type: models.MultipleChoice, Points: 2, Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris"},
			answer:   `"Rome"`,
			want:     Result{},
		},
		{
			name:     "true false accepts a boolean",
			question: models.Question{ID: "q2", Type: models.TrueFalse, Points: 1, Options: []string{"True", "False"}, CorrectAnswer: "True"},
			answer:   `true`,
			want:     Result{IsCorrect: true, PointsEarned: 1},
		},
		{
			name:     "true false accepts a string",
			question: models.Question{ID: "q2", Type: models.TrueFalse, Points: 1, Options: []string{"True", "False"}, CorrectAnswer: "True"},
			answer:   `"FALSE"`,
			want:     Result{},
		},
		{
			name:     "short answer auto graded",
			question: models.Question{ID: "q3", Type: models.ShortAnswer, Points: 3, CorrectAnswer: "Photosynthesis"},
			answer:   `" photosynthesis"`,
			want:     Result{IsCorrect: true, PointsEarned: 3},
		},
		{
			name:     "essay always needs a grader",
			question: models.Question{ID: "q4", Type: models.Essay, Points: 10},
			answer:   `"A long essay"`,
			want:     Result{NeedsManualGrading: true},
		},
		{
			name:     "fill blank partial credit",
			question: models.Question{ID: "q5", Type: models.FillInBlank, Points: 4, CorrectAnswers: []string{"red", "blue"}},
			answer:   `["red","green"]`,
			want:     Result{PointsEarned: 2},
		},
		{
			name:     "fill blank missing positions count as wrong",
			question: models.Question{ID: "q5", Type: models.FillInBlank, Points: 4, CorrectAnswers: []string{"red", "blue"}},
			answer:   `["RED"]`,
			want:     Result{PointsEarned: 2},
		},
		{
			name:     "fill blank fully correct",
			question: models.Question{ID: "q5", Type: models.FillInBlank, Points: 4, CorrectAnswers: []string{"red", "blue"}},
			answer:   `[" Red ","blue"]`,
			want:     Result{IsCorrect: true, PointsEarned: 4},
		},
		{
			name:     "malformed payload earns nothing",
			question: models.Question{ID: "q5", Type: models.FillInBlank, Points: 4, CorrectAnswers: []string{"red", "blue"}},
			answer:   `"red blue"`,
			want:     Result{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.question, []byte(tt.answer), tt.policy)
			assert.Equal(t, tt.want.IsCorrect, got.IsCorrect)
			assert.InDelta(t, tt.want.PointsEarned, got.PointsEarned, 1e-9)
			assert.Equal(t, tt.want.NeedsManualGrading, got.NeedsManualGrading)
		})
	}
}

func TestScoreMatchingPartialCredit(t *testing.T) {
	question := models.Question{
		ID:     "m1",
		Type:   models.Matching,
		Points: 6,
		Pairs: []models.MatchPair{
			{Left: "A", Right: "1"},
			{Left: "B", Right: "2"},
			{Left: "C", Right: "3"},
		},
	}

	got := Score(question, []byte(`{"A":"1","B":"2","C":"9"}`), Policy{})
	assert.False(t, got.IsCorrect)
	assert.InDelta(t, 6.0*2/3, got.PointsEarned, 1e-9)

	got = Score(question, []byte(`{"A":"1","B":"2","C":"3"}`), Policy{})
	assert.True(t, got.IsCorrect)
	assert.InDelta(t, 6.0, got.PointsEarned, 1e-9)
}

func TestScoreShortAnswerManualPolicy(t *testing.T) {
	question := models.Question{ID: "s1", Type: models.ShortAnswer, Points: 5, CorrectAnswer: "mitochondria"}

	got := Score(question, []byte(`"Mitochondria"`), Policy{ShortAnswerManual: true})
	assert.True(t, got.NeedsManualGrading)
	assert.False(t, got.IsCorrect)
	assert.Zero(t, got.PointsEarned)
	require.NotNil(t, got.SuggestedPoints)
	assert.Equal(t, 5.0, *got.SuggestedPoints)

	got = Score(question, []byte(`"ribosome"`), Policy{ShortAnswerManual: true})
	require.NotNil(t, got.SuggestedPoints)
	assert.Zero(t, *got.SuggestedPoints)
}

func TestRequiresManualGrading(t *testing.T) {
	essay := models.Question{ID: "e", Type: models.Essay, Points: 5}
	short := models.Question{ID: "s", Type: models.ShortAnswer, Points: 5, CorrectAnswer: "x"}
	mc := models.Question{ID: "m", Type: models.MultipleChoice, Points: 1, Options: []string{"a", "b"}, CorrectAnswer: "a"}

	assert.True(t, RequiresManualGrading(essay, Policy{}))
	assert.False(t, RequiresManualGrading(short, Policy{}))
	assert.True(t, RequiresManualGrading(short, Policy{ShortAnswerManual: true}))
	assert.False(t, RequiresManualGrading(mc, Policy{ShortAnswerManual: true}))
	assert.False(t, RequiresManualGrading(models.Question{ID: "o", Type: "ordering"}, Policy{}))

	got := Score(short, []byte(`["not","a","string"]`), Policy{ShortAnswerManual: true})
	assert.True(t, got.NeedsManualGrading)
}

func TestValidateAnswer(t *testing.T) {
	matching := models.Question{ID: "m1", Type: models.Matching, Points: 1, Pairs: []models.MatchPair{{Left: "A", Right: "1"}}}

	assert.NoError(t, ValidateAnswer(matching, []byte(`{"A":"1"}`)))
	assert.ErrorIs(t, ValidateAnswer(matching, []byte(`["A","1"]`)), ErrMalformedAnswer)

	unknown := models.Question{ID: "x", Type: "ordering", Points: 1}
	assert.ErrorIs(t, ValidateAnswer(unknown, []byte(`"a"`)), ErrUnknownQuestionType)
}

func TestValidate(t *testing.T) {
	t.Run("accepts every well formed type", func(t *testing.T) {
		questions := []models.Question{
			{ID: "1", Type: models.MultipleChoice, Text: "Capital?", Points: 1, Options: []string{"Paris", "Rome"}, CorrectAnswer: "Paris"},
			{ID: "2", Type: models.TrueFalse, Text: "Sky is blue", Points: 1, Options: []string{"true", "false"}, CorrectAnswer: "true"},
			{ID: "3", Type: models.ShortAnswer, Text: "Organelle?", Points: 1, CorrectAnswer: "nucleus"},
			{ID: "4", Type: models.Essay, Text: "Discuss", Points: 10},
			{ID: "5", Type: models.FillInBlank, Text: "Colors", Points: 2, CorrectAnswers: []string{"red", "blue"}},
			{ID: "6", Type: models.Matching, Text: "Match", Points: 3, Pairs: []models.MatchPair{{Left: "A", Right: "1"}, {Left: "B", Right: "2"}}},
		}
		assert.NoError(t, Validate(questions))
	})

	t.Run("rejects malformed definitions", func(t *testing.T) {
		questions := []models.Question{
			{ID: "1", Type: models.MultipleChoice, Text: "Capital?", Points: 1, Options: []string{"Paris"}, CorrectAnswer: "Paris"},
			{ID: "2", Type: models.TrueFalse, Text: "Sky", Points: 1, Options: []string{"true", "false", "maybe"}, CorrectAnswer: "true"},
			{ID: "2", Type: models.Essay, Text: "dup", Points: 0},
		}

		err := Validate(questions)
		require.Error(t, err)

		fields := map[string]bool{}
		for _, fe := range apperrors.ToValidationErrors(err) {
			fields[fe.Field] = true
		}
		assert.True(t, fields["questions[0].options"])
		assert.True(t, fields["questions[1].options"])
		assert.True(t, fields["questions[2].id"])
		assert.True(t, fields["questions[2].points"])
	})

	t.Run("rejects unknown types", func(t *testing.T) {
		err := Validate([]models.Question{{ID: "1", Type: "ordering", Text: "x", Points: 1}})
		require.Error(t, err)
		assert.Equal(t, "questions[0].type", apperrors.ToValidationErrors(err)[0].Field)
	})
}
