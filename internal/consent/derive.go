package consent

import (
	"time"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
)

// Pure derivations over an ordered consent history. The timeline
// builder and the rebuild coordinator share these; none of them touch
// storage.

// Active returns the latest consented event, or nil. A withdrawn
// subject still has an "active" consent in this sense: the withdrawal
// date gates statuses, but the old consent keeps anchoring the
// timeline.
func Active(events []domain.ConsentEvent) *domain.ConsentEvent {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Status == domain.ConsentConsented {
			return &events[i]
		}
	}
	return nil
}

// ActiveCount counts trailing consented events, i.e. consented events
// not yet superseded by any suspension or withdrawal. Historical data
// repair left some subjects with duplicated trailing consents; a count
// above one forces a from-scratch rebuild on every read.
func ActiveCount(events []domain.ConsentEvent) int {
	count := 0
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Status != domain.ConsentConsented {
			break
		}
		count++
	}
	return count
}

// Anchor resolves the date the timeline hangs off: the active consent's
// acceptance date, falling back to the first dated consented event when
// no consent is active. Nil means the anchor is unknown and row
// emission is deferred.
func Anchor(events []domain.ConsentEvent) *time.Time {
	if active := Active(events); active != nil {
		return active.AcceptanceDate
	}
	for _, e := range events {
		if e.Status == domain.ConsentConsented && e.AcceptanceDate != nil {
			return e.AcceptanceDate
		}
	}
	return nil
}

// WithdrawalDate returns the earliest withdrawal following a consented
// event, or nil if the subject never withdrew.
func WithdrawalDate(events []domain.ConsentEvent) *time.Time {
	consented := false
	for _, e := range events {
		switch e.Status {
		case domain.ConsentConsented:
			consented = true
		case domain.ConsentWithdrawn:
			if consented && e.AcceptanceDate != nil {
				return e.AcceptanceDate
			}
		}
	}
	return nil
}

// SuspensionWindows pairs each suspended event with the next
// non-suspended event; the last window stays open when nothing follows.
func SuspensionWindows(events []domain.ConsentEvent) []domain.SuspensionWindow {
	var windows []domain.SuspensionWindow
	var open *domain.SuspensionWindow

	for _, e := range events {
		if e.AcceptanceDate == nil {
			continue
		}
		if e.Status == domain.ConsentSuspended {
			if open == nil {
				open = &domain.SuspensionWindow{SuspendAt: *e.AcceptanceDate}
			}
			continue
		}
		if open != nil {
			resume := *e.AcceptanceDate
			open.ResumeAt = &resume
			windows = append(windows, *open)
			open = nil
		}
	}
	if open != nil {
		windows = append(windows, *open)
	}
	return windows
}

// Deleted reports whether the history ends in a deleted tombstone
func Deleted(events []domain.ConsentEvent) bool {
	if len(events) == 0 {
		return false
	}
	return events[len(events)-1].Status == domain.ConsentDeleted
}
