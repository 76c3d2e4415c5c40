package timeline

import (
	"sort"
	"time"

	"github.com/uwcirg/truenth-portal-sub002/internal/consent"
	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
	"github.com/uwcirg/truenth-portal-sub002/internal/schedule"
)

// Indefinite banks with no expiry offset stay open this long
const indefiniteWindowYears = 50

// BuildInput carries everything a build reads. The builder performs no
// I/O: load the inputs, call Build, persist the output.
type BuildInput struct {
	SubjectID  string
	StudyID    uint64
	Consents   []domain.ConsentEvent
	Banks      []domain.QuestionnaireBank
	Responses  []domain.QuestionnaireResponse
	Now        time.Time
	Generation uint64
}

// occurrence is one scheduled appearance of a bank on the timeline
type occurrence struct {
	BankID      uint64
	Iteration   int
	Instruments []string
	At          time.Time
	DueAt       time.Time
	OverdueAt   time.Time
	ExpiredAt   time.Time
}

// Build derives the full ordered timeline for one (subject, study).
// Deterministic: the same inputs always yield the same rows.
func Build(in BuildInput) ([]domain.TimelineRow, error) {
	if err := validateBanks(in.Banks); err != nil {
		return nil, err
	}

	if consent.Deleted(in.Consents) {
		return nil, nil
	}

	active := consent.Active(in.Consents)
	withdrawal := consent.WithdrawalDate(in.Consents)
	if active == nil && withdrawal == nil {
		return nil, nil
	}

	anchor := consent.Anchor(in.Consents)
	if anchor == nil {
		// consent exists but carries no acceptance date; defer emission
		// until the anchor resolves
		return nil, nil
	}

	// Inside a suspension window, statuses freeze at the value they
	// held when the suspension started.
	now := in.Now
	for _, w := range consent.SuspensionWindows(in.Consents) {
		if w.Contains(now) {
			now = w.SuspendAt
			break
		}
	}

	occurrences := expandOccurrences(*anchor, in.Banks)
	linked := linkResponses(occurrences, in.Responses)

	var rows []domain.TimelineRow
	for _, occ := range occurrences {
		completed := completedInstruments(occ, linked[occ.key()])
		anyResponse := len(linked[occ.key()]) > 0

		for _, instrument := range occ.Instruments {
			status := instrumentStatus(occ, instrument, completed, anyResponse, now)
			if withdrawal != nil && occ.At.After(*withdrawal) {
				status = domain.StatusWithdrawn
			}
			rows = append(rows, domain.TimelineRow{
				SubjectID:   in.SubjectID,
				StudyID:     in.StudyID,
				BankID:      occ.BankID,
				QBIteration: occ.Iteration,
				Instrument:  instrument,
				Status:      status,
				At:          occ.At,
				ExpiresAt:   occ.ExpiredAt,
				Generation:  in.Generation,
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].At.Equal(rows[j].At) {
			return rows[i].At.Before(rows[j].At)
		}
		if rows[i].BankID != rows[j].BankID {
			return rows[i].BankID < rows[j].BankID
		}
		if rows[i].Instrument != rows[j].Instrument {
			return rows[i].Instrument < rows[j].Instrument
		}
		return rows[i].QBIteration < rows[j].QBIteration
	})

	if err := assertUniqueKeys(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func validateBanks(banks []domain.QuestionnaireBank) error {
	for _, b := range banks {
		if b.ExpiredOffsetDays < 0 || b.DueOffsetDays < 0 {
			return errors.InputShape("bank %d has negative window offsets", b.ID)
		}
		if b.Classification == domain.ClassificationRecurring {
			if b.Recurrence == nil {
				return errors.InputShape("recurring bank %d lacks a recurrence", b.ID)
			}
			if b.Recurrence.DaysInCycle <= 0 {
				return errors.InputShape("recurrence for bank %d has non-positive cycle %d",
					b.ID, b.Recurrence.DaysInCycle)
			}
		}
	}
	return nil
}

func expandOccurrences(anchor time.Time, banks []domain.QuestionnaireBank) []occurrence {
	var occurrences []occurrence
	for _, bank := range banks {
		var starts []time.Time
		if bank.Classification == domain.ClassificationRecurring {
			starts = schedule.Expand(anchor, *bank.Recurrence)
		} else {
			starts = []time.Time{schedule.AddDays(anchor, bank.StartOffsetDays)}
		}

		for iteration, at := range starts {
			expiredAt := schedule.AddDays(at, bank.ExpiredOffsetDays)
			if bank.Classification == domain.ClassificationIndefinite && bank.ExpiredOffsetDays == 0 {
				expiredAt = at.AddDate(indefiniteWindowYears, 0, 0)
			}
			occurrences = append(occurrences, occurrence{
				BankID:      bank.ID,
				Iteration:   iteration,
				Instruments: bank.InstrumentNames(),
				At:          at,
				DueAt:       schedule.AddDays(at, bank.DueOffsetDays),
				OverdueAt:   schedule.AddDays(at, bank.OverdueOffsetDays),
				ExpiredAt:   expiredAt,
			})
		}
	}
	return occurrences
}

func (o occurrence) key() linkKey {
	return linkKey{BankID: o.BankID, Iteration: o.Iteration}
}

func (o occurrence) holdsInstrument(name string) bool {
	for _, i := range o.Instruments {
		if i == name {
			return true
		}
	}
	return false
}

// completedInstruments names the occurrence's instruments that have a
// linked response authored inside the availability window
func completedInstruments(occ occurrence, linked []domain.QuestionnaireResponse) map[string]bool {
	done := make(map[string]bool)
	for _, r := range linked {
		if occ.holdsInstrument(r.Instrument) && !r.AuthoredAt.After(occ.ExpiredAt) {
			done[r.Instrument] = true
		}
	}
	return done
}

func instrumentStatus(occ occurrence, instrument string, completed map[string]bool, anyResponse bool, now time.Time) string {
	if completed[instrument] {
		return domain.StatusCompleted
	}

	if now.After(occ.DueAt) {
		if len(completed) > 0 && len(completed) < len(occ.Instruments) {
			return domain.StatusPartiallyCompleted
		}
		if !now.After(occ.ExpiredAt) {
			return domain.StatusOverdue
		}
		return domain.StatusExpired
	}

	// now at or before the due checkpoint; future occurrences fall
	// through here too, surfacing as due with their own At
	if anyResponse {
		return domain.StatusInProgress
	}
	return domain.StatusDue
}

func assertUniqueKeys(rows []domain.TimelineRow) error {
	type rowKey struct {
		BankID      uint64
		QBIteration int
		Instrument  string
	}
	seen := make(map[rowKey]bool, len(rows))
	for _, r := range rows {
		k := rowKey{r.BankID, r.QBIteration, r.Instrument}
		if seen[k] {
			return errors.Invariant("duplicate row for bank %d iteration %d instrument %s",
				r.BankID, r.QBIteration, r.Instrument)
		}
		seen[k] = true
	}
	return nil
}
