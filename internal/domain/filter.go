package domain

// MaxEventsPerCycle caps how many events a tenant processes in one pass.
const MaxEventsPerCycle = 25

// SelectEvents picks the events worth dispatching from one feed fetch:
// magnitude at or above threshold, the first MaxEventsPerCycle in feed order,
// minus every source id already present in the ledger (delivered or not),
// capped again. Feed order is preserved; no sort is applied.
func SelectEvents(events []SeismicEvent, threshold float64, known map[string]struct{}) []SeismicEvent {
	selected := make([]SeismicEvent, 0, min(len(events), MaxEventsPerCycle))
	for _, e := range events {
		if e.Magnitude < threshold {
			continue
		}
		selected = append(selected, e)
		if len(selected) == MaxEventsPerCycle {
			break
		}
	}

	if len(known) == 0 {
		return selected
	}

	fresh := selected[:0]
	for _, e := range selected {
		if _, seen := known[e.SourceID]; seen {
			continue
		}
		fresh = append(fresh, e)
	}
	if len(fresh) > MaxEventsPerCycle {
		fresh = fresh[:MaxEventsPerCycle]
	}
	return fresh
}
