package sources

import (
	"sort"

	"github.com/jasper-companion/jasper/internal/domain"
)

// defaultEventSeconds is the assumed duration for events without an end,
// used for overlap detection only — never for storage.
const defaultEventSeconds = 3600

// OverlapPair is one detected conflict between two events.
type OverlapPair struct {
	First  domain.Event
	Second domain.Event
}

// DetectOverlaps finds all pairs of overlapping events with a sort plus
// forward scan: after ordering by start, the inner scan for event i stops
// at the first event starting at or after i's end, so clustered overlaps
// stay near O(n log n) instead of the naive all-pairs quadratic.
func DetectOverlaps(events []domain.Event) []OverlapPair {
	if len(events) < 2 {
		return nil
	}

	sorted := make([]domain.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	var pairs []OverlapPair
	for i := 0; i < len(sorted); i++ {
		iEnd := effectiveEnd(sorted[i])
		for j := i + 1; j < len(sorted) && sorted[j].StartTime < iEnd; j++ {
			jEnd := effectiveEnd(sorted[j])
			if sorted[i].StartTime < jEnd && sorted[j].StartTime < iEnd {
				pairs = append(pairs, OverlapPair{First: sorted[i], Second: sorted[j]})
			}
		}
	}
	return pairs
}

func effectiveEnd(ev domain.Event) int64 {
	if ev.EndTime != nil {
		return *ev.EndTime
	}
	return ev.StartTime + defaultEventSeconds
}
