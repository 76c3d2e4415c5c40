package domain

import "time"

// QuestionnaireResponse records a submitted instrument. BankID and
// QBIteration stay nil until the timeline builder links the response to
// an occurrence; an unlinkable response never influences status.
type QuestionnaireResponse struct {
	ID          uint64     `json:"id"`
	SubjectID   string     `json:"subject_id" gorm:"index:idx_response_subject_study"`
	StudyID     uint64     `json:"study_id" gorm:"index:idx_response_subject_study"`
	Instrument  string     `json:"instrument"`
	AuthoredAt  time.Time  `json:"authored_at"`
	BankID      *uint64    `json:"bank_id"`
	QBIteration *int       `json:"qb_iteration" gorm:"column:qb_iteration"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-" gorm:"index"`
}
