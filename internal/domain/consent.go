package domain

import (
	"time"
)

// Consent event statuses
const (
	ConsentConsented = "consented"
	ConsentSuspended = "suspended"
	ConsentWithdrawn = "withdrawn"
	ConsentDeleted   = "deleted"
)

// ConsentEvent is one entry in a subject's append-only consent history
// for a study. AcceptanceDate may be missing on legacy rows; the
// timeline defers until a dated consent appears.
type ConsentEvent struct {
	ID                 uint64     `json:"id"`
	SubjectID          string     `json:"subject_id" gorm:"index:idx_consent_subject_study"`
	StudyID            uint64     `json:"study_id" gorm:"index:idx_consent_subject_study"`
	AcceptanceDate     *time.Time `json:"acceptance_date"`
	Status             string     `json:"status"`
	ResearchProtocolID uint64     `json:"research_protocol_id"`
	CreatedAt          time.Time  `json:"created_at"`
}

// SuspensionWindow pairs a suspended event with the next non-suspended
// event. Resume is nil while the suspension is still open.
type SuspensionWindow struct {
	SuspendAt time.Time
	ResumeAt  *time.Time
}

// Contains reports whether t falls inside the window
func (w SuspensionWindow) Contains(t time.Time) bool {
	if t.Before(w.SuspendAt) {
		return false
	}
	return w.ResumeAt == nil || t.Before(*w.ResumeAt)
}
