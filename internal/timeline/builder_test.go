package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func consented(id uint64, at time.Time) domain.ConsentEvent {
	return domain.ConsentEvent{ID: id, Status: domain.ConsentConsented, AcceptanceDate: &at}
}

func baselineBank(id uint64, instruments ...string) domain.QuestionnaireBank {
	bank := domain.QuestionnaireBank{
		ID:                id,
		Name:              "baseline",
		Classification:    domain.ClassificationBaseline,
		StartOffsetDays:   0,
		DueOffsetDays:     30,
		OverdueOffsetDays: 60,
		ExpiredOffsetDays: 90,
	}
	for _, name := range instruments {
		bank.Instruments = append(bank.Instruments, domain.BankInstrument{BankID: id, Instrument: name})
	}
	return bank
}

func recurringBank(id uint64, recurrence domain.Recurrence, instruments ...string) domain.QuestionnaireBank {
	bank := baselineBank(id, instruments...)
	bank.Name = "recurring"
	bank.Classification = domain.ClassificationRecurring
	bank.Recurrence = &recurrence
	return bank
}

func TestBuildBaselineOverdue(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID:  "S1",
		StudyID:    1,
		Consents:   []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks:      []domain.QuestionnaireBank{baselineBank(5, "instrument_i")},
		Now:        date(2020, 2, 15),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "S1", row.SubjectID)
	assert.Equal(t, uint64(1), row.StudyID)
	assert.Equal(t, uint64(5), row.BankID)
	assert.Equal(t, 0, row.QBIteration)
	assert.Equal(t, "instrument_i", row.Instrument)
	assert.Equal(t, domain.StatusOverdue, row.Status)
	assert.Equal(t, date(2020, 1, 1), row.At)
	assert.Equal(t, date(2020, 3, 31), row.ExpiresAt)
	assert.Equal(t, uint64(1), row.Generation)
}

func TestBuildBaselineCompleted(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID: "S1",
		StudyID:   1,
		Consents:  []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks:     []domain.QuestionnaireBank{baselineBank(5, "instrument_i")},
		Responses: []domain.QuestionnaireResponse{
			{ID: 1, SubjectID: "S1", StudyID: 1, Instrument: "instrument_i", AuthoredAt: date(2020, 1, 20)},
		},
		Now:        date(2020, 2, 15),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusCompleted, rows[0].Status)
}

func TestBuildRecurringOccurrences(t *testing.T) {
	recurrence := domain.Recurrence{DaysToStart: 90, DaysInCycle: 90, DaysTillTermination: 365}
	rows, err := Build(BuildInput{
		SubjectID:  "S2",
		StudyID:    1,
		Consents:   []domain.ConsentEvent{consented(1, date(2021, 3, 1))},
		Banks:      []domain.QuestionnaireBank{recurringBank(7, recurrence, "epic26")},
		Now:        date(2022, 1, 1),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, date(2021, 5, 30), rows[0].At)
	assert.Equal(t, date(2021, 8, 28), rows[1].At)
	assert.Equal(t, date(2021, 11, 26), rows[2].At)
	assert.Equal(t, date(2022, 2, 24), rows[3].At)

	// now = 2022-01-01: first expired, second expired, third overdue,
	// fourth not yet started
	assert.Equal(t, domain.StatusExpired, rows[0].Status)
	assert.Equal(t, domain.StatusExpired, rows[1].Status)
	assert.Equal(t, domain.StatusOverdue, rows[2].Status)
	assert.Equal(t, domain.StatusDue, rows[3].Status)

	for i, row := range rows {
		assert.Equal(t, i, row.QBIteration)
	}
}

func TestBuildWithdrawalSupersedesLaterOccurrences(t *testing.T) {
	recurrence := domain.Recurrence{DaysToStart: 90, DaysInCycle: 90, DaysTillTermination: 720}
	withdrawnAt := date(2022, 6, 1)
	rows, err := Build(BuildInput{
		SubjectID: "S3",
		StudyID:   1,
		Consents: []domain.ConsentEvent{
			consented(1, date(2022, 1, 1)),
			{ID: 2, Status: domain.ConsentWithdrawn, AcceptanceDate: &withdrawnAt},
		},
		Banks:      []domain.QuestionnaireBank{recurringBank(7, recurrence, "epic26")},
		Now:        date(2023, 6, 1),
		Generation: 1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	for _, row := range rows {
		if row.At.After(withdrawnAt) {
			assert.Equal(t, domain.StatusWithdrawn, row.Status, "occurrence at %s", row.At)
		} else {
			assert.NotEqual(t, domain.StatusWithdrawn, row.Status, "occurrence at %s", row.At)
		}
	}
}

func TestBuildSuspensionFreezesTransitions(t *testing.T) {
	// suspension starts while the bank is still due; now is far past
	// the expiry date but the row must stay frozen at due
	suspendedAt := date(2020, 1, 15)
	rows, err := Build(BuildInput{
		SubjectID: "S5",
		StudyID:   1,
		Consents: []domain.ConsentEvent{
			consented(1, date(2020, 1, 1)),
			{ID: 2, Status: domain.ConsentSuspended, AcceptanceDate: &suspendedAt},
		},
		Banks:      []domain.QuestionnaireBank{baselineBank(5, "epic26")},
		Now:        date(2020, 8, 1),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusDue, rows[0].Status)
}

func TestBuildResumedSuspensionUnfreezes(t *testing.T) {
	suspendedAt := date(2020, 1, 15)
	resumedAt := date(2020, 2, 10)
	rows, err := Build(BuildInput{
		SubjectID: "S5",
		StudyID:   1,
		Consents: []domain.ConsentEvent{
			consented(1, date(2020, 1, 1)),
			{ID: 2, Status: domain.ConsentSuspended, AcceptanceDate: &suspendedAt},
			consented(3, resumedAt),
		},
		Banks:      []domain.QuestionnaireBank{baselineBank(5, "epic26")},
		Now:        date(2020, 8, 1),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	// resumption re-anchors on the new consent date; now is past its
	// expiry window
	assert.Equal(t, domain.StatusExpired, rows[0].Status)
}

func TestBuildPartiallyCompleted(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID: "S6",
		StudyID:   1,
		Consents:  []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks:     []domain.QuestionnaireBank{baselineBank(5, "epic26", "eproms_add")},
		Responses: []domain.QuestionnaireResponse{
			{ID: 1, SubjectID: "S6", StudyID: 1, Instrument: "epic26", AuthoredAt: date(2020, 1, 20)},
		},
		Now:        date(2020, 2, 15),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byInstrument := map[string]string{}
	for _, r := range rows {
		byInstrument[r.Instrument] = r.Status
	}
	assert.Equal(t, domain.StatusCompleted, byInstrument["epic26"])
	assert.Equal(t, domain.StatusPartiallyCompleted, byInstrument["eproms_add"])
}

func TestBuildInProgressBeforeDue(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID: "S6",
		StudyID:   1,
		Consents:  []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks:     []domain.QuestionnaireBank{baselineBank(5, "epic26", "eproms_add")},
		Responses: []domain.QuestionnaireResponse{
			{ID: 1, SubjectID: "S6", StudyID: 1, Instrument: "epic26", AuthoredAt: date(2020, 1, 10)},
		},
		Now:        date(2020, 1, 15),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byInstrument := map[string]string{}
	for _, r := range rows {
		byInstrument[r.Instrument] = r.Status
	}
	assert.Equal(t, domain.StatusCompleted, byInstrument["epic26"])
	assert.Equal(t, domain.StatusInProgress, byInstrument["eproms_add"])
}

func TestBuildResponseBeforeAnchorUnlinked(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID: "S7",
		StudyID:   1,
		Consents:  []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks:     []domain.QuestionnaireBank{baselineBank(5, "epic26")},
		Responses: []domain.QuestionnaireResponse{
			{ID: 1, SubjectID: "S7", StudyID: 1, Instrument: "epic26", AuthoredAt: date(2019, 12, 1)},
		},
		Now:        date(2020, 1, 15),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusDue, rows[0].Status)
}

func TestBuildNoConsentEmitsNothing(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID:  "S8",
		StudyID:    1,
		Banks:      []domain.QuestionnaireBank{baselineBank(5, "epic26")},
		Now:        date(2020, 1, 15),
		Generation: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuildUndatedConsentDefers(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID:  "S9",
		StudyID:    1,
		Consents:   []domain.ConsentEvent{{ID: 1, Status: domain.ConsentConsented}},
		Banks:      []domain.QuestionnaireBank{baselineBank(5, "epic26")},
		Now:        date(2020, 1, 15),
		Generation: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuildDeletedConsentTombstones(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID: "S9",
		StudyID:   1,
		Consents: []domain.ConsentEvent{
			consented(1, date(2020, 1, 1)),
			{ID: 2, Status: domain.ConsentDeleted, AcceptanceDate: datePtr(2021, 1, 1)},
		},
		Banks:      []domain.QuestionnaireBank{baselineBank(5, "epic26")},
		Now:        date(2021, 6, 1),
		Generation: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuildNonPositiveCycleRejected(t *testing.T) {
	bad := recurringBank(7, domain.Recurrence{DaysToStart: 0, DaysInCycle: -30, DaysTillTermination: 365}, "epic26")
	_, err := Build(BuildInput{
		SubjectID:  "S10",
		StudyID:    1,
		Consents:   []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks:      []domain.QuestionnaireBank{bad},
		Now:        date(2020, 6, 1),
		Generation: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.IsInputShape(err))
}

func TestBuildTerminationBeforeStartEmitsNoOccurrences(t *testing.T) {
	short := recurringBank(7, domain.Recurrence{DaysToStart: 90, DaysInCycle: 30, DaysTillTermination: 10}, "epic26")
	rows, err := Build(BuildInput{
		SubjectID:  "S11",
		StudyID:    1,
		Consents:   []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks:      []domain.QuestionnaireBank{short},
		Now:        date(2020, 6, 1),
		Generation: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuildDeterministicAndOrdered(t *testing.T) {
	recurrence := domain.Recurrence{DaysToStart: 0, DaysInCycle: 90, DaysTillTermination: 365}
	input := BuildInput{
		SubjectID: "S12",
		StudyID:   1,
		Consents:  []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks: []domain.QuestionnaireBank{
			recurringBank(9, recurrence, "epic26"),
			baselineBank(3, "eproms_add", "comorb"),
		},
		Now:        date(2020, 6, 1),
		Generation: 4,
	}

	first, err := Build(input)
	require.NoError(t, err)
	second, err := Build(input)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		ordered := prev.At.Before(cur.At) ||
			(prev.At.Equal(cur.At) && prev.BankID < cur.BankID) ||
			(prev.At.Equal(cur.At) && prev.BankID == cur.BankID && prev.Instrument < cur.Instrument)
		assert.True(t, ordered, "rows %d and %d out of order", i-1, i)
	}
	for _, r := range first {
		assert.Equal(t, uint64(4), r.Generation)
	}
}

func TestBuildPlaceholderStudyZero(t *testing.T) {
	rows, err := Build(BuildInput{
		SubjectID:  "S13",
		StudyID:    0,
		Consents:   []domain.ConsentEvent{consented(1, date(2020, 1, 1))},
		Banks:      []domain.QuestionnaireBank{baselineBank(5, "epic26")},
		Now:        date(2020, 2, 15),
		Generation: 1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(0), rows[0].StudyID)
}
