package sim

import "metro-simulator/internal/transit"

// Resolve returns the first period of the day type whose inclusive
// [Start, End] window contains sec. Periods are scanned in stored order and
// need not be sorted. No match means no service, not an error.
func Resolve(s transit.Schedule, dt transit.DayType, sec float64) (transit.ServicePeriod, bool) {
	for _, p := range s[dt] {
		if p.Contains(sec) {
			return p, true
		}
	}
	return transit.ServicePeriod{}, false
}
