package models

import "time"

// QuizAnalytics is recomputed from scratch from the quiz's attempts.
type QuizAnalytics struct {
	QuizID uint `json:"quiz_id" gorm:"primaryKey"`

	// Attempt statistics
	AttemptCount        int `json:"attempt_count"`
	CompletionCount     int `json:"completion_count"`
	GradedCount         int `json:"graded_count"`
	PendingGradingCount int `json:"pending_grading_count"`
	AbandonedCount      int `json:"abandoned_count"`
	InProgressCount     int `json:"in_progress_count"`

	// Score statistics, percentages
	AverageScore float64 `json:"average_score"`
	HighestScore float64 `json:"highest_score"`
	LowestScore  float64 `json:"lowest_score"`

	AverageTimeSpent int `json:"average_time_spent"` // seconds

	// Pass statistics over submitted attempts
	PassCount int     `json:"pass_count"`
	PassRate  float64 `json:"pass_rate"` // 0.0 - 1.0

	LastCalculatedAt time.Time `json:"last_calculated_at"`
}

func (QuizAnalytics) TableName() string {
	return "quiz_analytics"
}
