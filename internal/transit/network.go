package transit

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var ErrInvalidNetwork = errors.New("invalid network")

type Schedule map[DayType][]ServicePeriod

// Network holds the static data a simulation runs against. It is built once
// by a loader and treated as read-only afterwards.
type Network struct {
	Lines       map[string]Line
	Stations    map[string]Station
	Sequences   map[string]StopSequence // by line-direction key
	TravelTimes map[SegmentKey]float64  // seconds
	Schedule    Schedule
}

func NewNetwork() *Network {
	return &Network{
		Lines:       make(map[string]Line),
		Stations:    make(map[string]Station),
		Sequences:   make(map[string]StopSequence),
		TravelTimes: make(map[SegmentKey]float64),
		Schedule:    make(Schedule),
	}
}

// AddSequence registers seq and, when reverse is non-empty, its exact reverse
// under the reverse direction.
func (n *Network) AddSequence(seq StopSequence, reverse Direction) {
	n.Sequences[seq.Key()] = seq
	if reverse != "" {
		rev := seq.Reverse(reverse)
		n.Sequences[rev.Key()] = rev
	}
}

// TravelTime returns the seconds between two consecutive stations, or def
// when the pair is not known.
func (n *Network) TravelTime(from, to string, def float64) float64 {
	if v, ok := n.TravelTimes[SegmentKey{From: from, To: to}]; ok {
		return v
	}
	return def
}

// ServiceStart returns the earliest period start for the day type.
func (n *Network) ServiceStart(dt DayType) (float64, bool) {
	periods := n.Schedule[dt]
	if len(periods) == 0 {
		return 0, false
	}
	start := periods[0].Start
	for _, p := range periods[1:] {
		if p.Start < start {
			start = p.Start
		}
	}
	return start, true
}

func (n *Network) LineIDs() []string {
	ids := make([]string, 0, len(n.Lines))
	for id := range n.Lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PrimarySequence returns the sequence used to lay out stations on a line:
// the first by key among those drawn in the path's direction.
func (n *Network) PrimarySequence(lineID string) (StopSequence, bool) {
	var keys []string
	for k, s := range n.Sequences {
		if s.LineID == lineID {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return StopSequence{}, false
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !n.Sequences[k].Reversed {
			return n.Sequences[k], true
		}
	}
	return n.Sequences[keys[0]], true
}

// Validate reports every configuration problem at once. A schedule that
// refers to a line-direction without a stop sequence is an error here rather
// than a silently empty line at run time.
func (n *Network) Validate() error {
	var errs []error

	for id, st := range n.Stations {
		if _, ok := n.Lines[st.LineID]; !ok {
			errs = append(errs, fmt.Errorf("station %q: unknown line %q", id, st.LineID))
		}
	}

	for key, seq := range n.Sequences {
		if len(seq.Stations) < 2 {
			errs = append(errs, fmt.Errorf("sequence %q: needs at least 2 stations, has %d", key, len(seq.Stations)))
		}
		if _, ok := n.Lines[seq.LineID]; !ok {
			errs = append(errs, fmt.Errorf("sequence %q: unknown line %q", key, seq.LineID))
		}
		for _, sid := range seq.Stations {
			if _, ok := n.Stations[sid]; !ok {
				errs = append(errs, fmt.Errorf("sequence %q: unknown station %q", key, sid))
			}
		}
	}

	for seg, sec := range n.TravelTimes {
		if sec < 0 {
			errs = append(errs, fmt.Errorf("travel time %s_%s: negative (%v)", seg.From, seg.To, sec))
		}
	}

	for dt, periods := range n.Schedule {
		for _, p := range periods {
			if p.End < p.Start {
				errs = append(errs, fmt.Errorf("schedule %s/%s: ends before it starts", dt, p.Name))
			}
			for key, mins := range p.Headways {
				if _, ok := n.Sequences[key]; !ok {
					errs = append(errs, fmt.Errorf("schedule %s/%s: no stop sequence for %q", dt, p.Name, key))
				}
				if mins <= 0 {
					errs = append(errs, fmt.Errorf("schedule %s/%s: headway for %q must be positive", dt, p.Name, key))
				}
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	sortErrors(errs)
	return fmt.Errorf("%w: %w", ErrInvalidNetwork, errors.Join(errs...))
}

func sortErrors(errs []error) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
}

// OwningLine picks the first line, by ID, whose stop sequences include the
// station. Interchange stations therefore belong to one line only.
func (n *Network) OwningLine(stationID string) string {
	owner := ""
	for _, seq := range n.Sequences {
		if owner != "" && seq.LineID >= owner {
			continue
		}
		for _, id := range seq.Stations {
			if id == stationID {
				owner = seq.LineID
				break
			}
		}
	}
	return owner
}
