package publisher

import (
	"sort"
	"sync"

	"metro-simulator/internal/transit"
)

// Handle identifies one rendered train marker for as long as its trip stays
// on the map.
type Handle uint64

// Diff describes how the set of rendered trains changed between two ticks.
type Diff struct {
	Added   []string
	Moved   []string
	Removed []string
	Handles map[string]Handle // every trip above, removed ones included

	next Handle
}

// Registry maps trip IDs to render handles. Handles are never reused once
// committed. A sink calls Plan, writes the tick, and calls Commit only when
// the write succeeded, so a failed tick is planned again in full next time.
type Registry struct {
	mu      sync.Mutex
	next    Handle
	handles map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Plan compares the trains of one tick with the committed state. Trips seen
// for the first time get a provisional handle; trips no longer present are
// listed as removed. The registry itself is not changed.
func (r *Registry) Plan(trains []transit.TrainPosition) Diff {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := Diff{Handles: make(map[string]Handle, len(trains)), next: r.next}
	seen := make(map[string]struct{}, len(trains))
	for _, t := range trains {
		if _, dup := seen[t.TripID]; dup {
			continue
		}
		seen[t.TripID] = struct{}{}
		if h, ok := r.handles[t.TripID]; ok {
			d.Moved = append(d.Moved, t.TripID)
			d.Handles[t.TripID] = h
			continue
		}
		d.next++
		d.Handles[t.TripID] = d.next
		d.Added = append(d.Added, t.TripID)
	}
	for id, h := range r.handles {
		if _, ok := seen[id]; !ok {
			d.Removed = append(d.Removed, id)
			d.Handles[id] = h
		}
	}
	sort.Strings(d.Removed)
	return d
}

// Commit applies a diff returned by Plan.
func (r *Registry) Commit(d Diff) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range d.Added {
		r.handles[id] = d.Handles[id]
	}
	for _, id := range d.Removed {
		delete(r.handles, id)
	}
	if d.next > r.next {
		r.next = d.next
	}
}

func (r *Registry) Handle(tripID string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[tripID]
	return h, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
