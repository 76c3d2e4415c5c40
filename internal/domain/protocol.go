package domain

import "time"

// Questionnaire bank classifications
const (
	ClassificationBaseline   = "baseline"
	ClassificationRecurring  = "recurring"
	ClassificationIndefinite = "indefinite"
)

// ResearchProtocol groups the questionnaire banks a study administers.
// StudyID 0 is the migration-era placeholder study and gets no special
// treatment anywhere.
type ResearchProtocol struct {
	ID          uint64              `json:"id"`
	StudyID     uint64              `json:"study_id" gorm:"index"`
	Name        string              `json:"name"`
	RetiredAsOf *time.Time          `json:"retired_as_of"`
	Banks       []QuestionnaireBank `json:"banks"`
}

// QuestionnaireBank schedules a group of instruments. Offsets are
// integer days added to the consent anchor date.
type QuestionnaireBank struct {
	ID                 uint64           `json:"id"`
	ResearchProtocolID uint64           `json:"research_protocol_id" gorm:"index"`
	Name               string           `json:"name"`
	Classification     string           `json:"classification"`
	StartOffsetDays    int              `json:"start_offset_days"`
	DueOffsetDays      int              `json:"due_offset_days"`
	OverdueOffsetDays  int              `json:"overdue_offset_days"`
	ExpiredOffsetDays  int              `json:"expired_offset_days"`
	RecurrenceID       *uint64          `json:"recurrence_id"`
	Recurrence         *Recurrence      `json:"recurrence,omitempty"`
	Instruments        []BankInstrument `json:"instruments" gorm:"foreignKey:BankID"`
}

// InstrumentNames returns the bank's instrument names in stored order
func (b QuestionnaireBank) InstrumentNames() []string {
	names := make([]string, 0, len(b.Instruments))
	for _, i := range b.Instruments {
		names = append(names, i.Instrument)
	}
	return names
}

// Recurrence is a value type identified by its triple; equality is
// structural, never by row id.
type Recurrence struct {
	ID                  uint64 `json:"id"`
	DaysToStart         int    `json:"days_to_start" gorm:"uniqueIndex:idx_recurrence_triple"`
	DaysInCycle         int    `json:"days_in_cycle" gorm:"uniqueIndex:idx_recurrence_triple"`
	DaysTillTermination int    `json:"days_till_termination" gorm:"uniqueIndex:idx_recurrence_triple"`
}

// Equal compares the defining triple only
func (r Recurrence) Equal(other Recurrence) bool {
	return r.DaysToStart == other.DaysToStart &&
		r.DaysInCycle == other.DaysInCycle &&
		r.DaysTillTermination == other.DaysTillTermination
}

// BankInstrument links an instrument (leaf questionnaire) to a bank
type BankInstrument struct {
	ID         uint64 `json:"id"`
	BankID     uint64 `json:"bank_id" gorm:"index"`
	Instrument string `json:"instrument"`
}
