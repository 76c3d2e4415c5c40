package timeline

import (
	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
)

// linkKey identifies one bank occurrence
type linkKey struct {
	BankID    uint64
	Iteration int
}

// linkResponses assigns each response to at most one occurrence:
//
//  1. candidates are occurrences whose [at, expired_at] contains the
//     authored time
//  2. prefer a candidate whose instrument set holds the response's
//     instrument
//  3. remaining ties break on smallest (bank id, iteration)
//
// Responses that keep a pre-existing link to a known occurrence stay
// put. A response with no candidate remains unlinked and is ignored by
// status derivation.
func linkResponses(occurrences []occurrence, responses []domain.QuestionnaireResponse) map[linkKey][]domain.QuestionnaireResponse {
	known := make(map[linkKey]occurrence, len(occurrences))
	for _, o := range occurrences {
		known[o.key()] = o
	}

	linked := make(map[linkKey][]domain.QuestionnaireResponse)
	for _, r := range responses {
		if r.BankID != nil && r.QBIteration != nil {
			k := linkKey{BankID: *r.BankID, Iteration: *r.QBIteration}
			if _, ok := known[k]; ok {
				linked[k] = append(linked[k], r)
				continue
			}
			// stale link: the occurrence no longer exists, relink
		}

		if best, ok := bestCandidate(occurrences, r); ok {
			linked[best] = append(linked[best], r)
		}
	}
	return linked
}

func bestCandidate(occurrences []occurrence, r domain.QuestionnaireResponse) (linkKey, bool) {
	var best *occurrence
	bestHolds := false

	for i := range occurrences {
		o := &occurrences[i]
		if r.AuthoredAt.Before(o.At) || r.AuthoredAt.After(o.ExpiredAt) {
			continue
		}
		holds := o.holdsInstrument(r.Instrument)
		switch {
		case best == nil:
		case holds && !bestHolds:
		case holds == bestHolds && lessKey(o.key(), best.key()):
		default:
			continue
		}
		best = o
		bestHolds = holds
	}

	if best == nil {
		return linkKey{}, false
	}
	return best.key(), true
}

func lessKey(a, b linkKey) bool {
	if a.BankID != b.BankID {
		return a.BankID < b.BankID
	}
	return a.Iteration < b.Iteration
}
