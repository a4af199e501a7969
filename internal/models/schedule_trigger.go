package models

import "time"

type ScheduleEdge string

const (
	EdgeStart ScheduleEdge = "start"
	EdgeEnd   ScheduleEdge = "end"
)

type TriggerStatus string

const (
	TriggerPending TriggerStatus = "pending"
	TriggerFired   TriggerStatus = "fired"
	TriggerRetry   TriggerStatus = "retry"
)

// ScheduleTrigger is the persisted next-fire instant of one quiz edge.
// It lets a poller pick up fires missed while the process was down.
type ScheduleTrigger struct {
	QuizID    uint          `json:"quiz_id" gorm:"primaryKey"`
	Edge      ScheduleEdge  `json:"edge" gorm:"primaryKey;size:8"`
	FireAt    time.Time     `json:"fire_at" gorm:"not null;index"`
	Status    TriggerStatus `json:"status" gorm:"not null;size:16;index"`
	FireCount int           `json:"fire_count" gorm:"default:0"`
	LastError string        `json:"last_error,omitempty" gorm:"type:text"`
	FiredAt   *time.Time    `json:"fired_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (t ScheduleTrigger) Due(now time.Time) bool {
	return t.Status != TriggerFired && !t.FireAt.After(now)
}
