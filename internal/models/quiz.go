package models

import (
	"time"

	"gorm.io/gorm"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
	FillInBlank    QuestionType = "fill_blank"
	Matching       QuestionType = "matching"
)

// QuestionTypes lists every supported question type.
var QuestionTypes = []QuestionType{
	MultipleChoice,
	TrueFalse,
	ShortAnswer,
	Essay,
	FillInBlank,
	Matching,
}

type MatchPair struct {
	Left  string `json:"left" validate:"required"`
	Right string `json:"right" validate:"required"`
}

// Question is embedded in its quiz and persisted as part of the quiz row.
// Which correctness fields are meaningful depends on Type.
type Question struct {
	ID             string       `json:"id" validate:"required,max=64"`
	Type           QuestionType `json:"type" validate:"required,question_type"`
	Text           string       `json:"text" validate:"required,max=5000"`
	Points         float64      `json:"points" validate:"gt=0,max=1000"`
	Explanation    string       `json:"explanation,omitempty" validate:"max=5000"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswer  string       `json:"correct_answer,omitempty"`
	CorrectAnswers []string     `json:"correct_answers,omitempty"`
	Pairs          []MatchPair  `json:"pairs,omitempty" validate:"dive"`
}

type Schedule struct {
	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until"`
	DueDate        *time.Time `json:"due_date"`
}

type Quiz struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	CourseID    string `json:"course_id" gorm:"not null;size:64;index"`
	BranchID    string `json:"branch_id" gorm:"size:64;index"`
	Title       string `json:"title" gorm:"not null;size:200"`
	Description string `json:"description" gorm:"type:text"`

	Questions []Question `json:"questions" gorm:"type:jsonb;serializer:json"`

	TimeLimit    int     `json:"time_limit" gorm:"default:0"` // minutes, 0 = unlimited
	MaxAttempts  int     `json:"attempts" gorm:"column:max_attempts;default:0"`
	PassingScore float64 `json:"passing_score" gorm:"default:0"`

	// Schedule
	AvailableFrom  *time.Time `json:"available_from" gorm:"index"`
	AvailableUntil *time.Time `json:"available_until" gorm:"index"`
	DueDate        *time.Time `json:"due_date"`

	IsPublished bool `json:"is_published" gorm:"default:false;index"`

	// Grading policy
	ShortAnswerManual bool `json:"short_answer_manual" gorm:"default:false"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;size:64;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Version int `json:"version" gorm:"default:1"`
}

func (q *Quiz) Schedule() Schedule {
	return Schedule{
		AvailableFrom:  q.AvailableFrom,
		AvailableUntil: q.AvailableUntil,
		DueDate:        q.DueDate,
	}
}

func (q *Quiz) SetSchedule(s Schedule) {
	q.AvailableFrom = s.AvailableFrom
	q.AvailableUntil = s.AvailableUntil
	q.DueDate = s.DueDate
}

// TotalPoints sums the points of every question.
func (q *Quiz) TotalPoints() float64 {
	var total float64
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

func (q *Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// TimeLimitDuration returns zero when the quiz is untimed.
func (q *Quiz) TimeLimitDuration() time.Duration {
	return time.Duration(q.TimeLimit) * time.Minute
}

// Clone returns a copy that shares no slices with q.
func (q *Quiz) Clone() *Quiz {
	if q == nil {
		return nil
	}
	c := *q
	c.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		question.CorrectAnswers = append([]string(nil), question.CorrectAnswers...)
		question.Pairs = append([]MatchPair(nil), question.Pairs...)
		c.Questions[i] = question
	}
	return &c
}
