package domain

import "time"

// Timeline row statuses
const (
	StatusDue                = "due"
	StatusOverdue            = "overdue"
	StatusCompleted          = "completed"
	StatusExpired            = "expired"
	StatusWithdrawn          = "withdrawn"
	StatusPartiallyCompleted = "partially_completed"
	StatusInProgress         = "in_progress"
)

// TimelineRow is the materialized availability window of one instrument
// within one bank occurrence. At is when the status takes effect,
// ExpiresAt when the row yields to the next.
type TimelineRow struct {
	SubjectID   string    `json:"subject_id" gorm:"primaryKey"`
	StudyID     uint64    `json:"study_id" gorm:"primaryKey"`
	BankID      uint64    `json:"bank_id" gorm:"primaryKey"`
	QBIteration int       `json:"qb_iteration" gorm:"primaryKey;column:qb_iteration"`
	Instrument  string    `json:"instrument" gorm:"primaryKey"`
	Status      string    `json:"status"`
	At          time.Time `json:"at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Generation  uint64    `json:"generation"`
}

func (TimelineRow) TableName() string {
	return "qb_timeline"
}

// TimelineState carries the per-(subject, study) generation counters.
// ReservedGeneration is bumped by every invalidation; a build whose
// reservation no longer matches at replace time is discarded.
type TimelineState struct {
	SubjectID          string `json:"subject_id" gorm:"primaryKey"`
	StudyID            uint64 `json:"study_id" gorm:"primaryKey"`
	CurrentGeneration  uint64 `json:"current_generation"`
	ReservedGeneration uint64 `json:"reserved_generation"`
	Valid              bool   `json:"valid"`
}

func (TimelineState) TableName() string {
	return "qb_timeline_state"
}
