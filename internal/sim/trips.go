package sim

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"metro-simulator/internal/transit"
)

// Jitter delays each departure by a fixed pseudo-random share of its
// headway. The offset depends only on Seed and the trip ID, so a trip keeps
// the same start time on every tick.
type Jitter struct {
	Fraction float64 // 0 disables; capped at 1
	Seed     uint64
}

func (j Jitter) Offset(tripID string, headway float64) float64 {
	if j.Fraction <= 0 || headway <= 0 {
		return 0
	}
	f := math.Min(j.Fraction, 1)
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], j.Seed)
	h := xxhash.New()
	_, _ = h.Write(seed[:])
	_, _ = h.WriteString(tripID)
	u := float64(h.Sum64()>>11) / (1 << 53) // [0, 1)
	return u * f * headway
}

type TripOptions struct {
	// ServiceStart is the first departure of the day, shared by every period.
	ServiceStart float64
	// MaxTimeOnMap bounds how long ago a live trip may have started.
	MaxTimeOnMap float64
	Jitter       Jitter
}

// GenerateTrips lists the trips of period that have started before now and
// are still within MaxTimeOnMap. Departures run from ServiceStart in
// headway steps; keys without a stop sequence are ignored.
func GenerateTrips(period transit.ServicePeriod, seqs map[string]transit.StopSequence, now float64, opts TripOptions) []transit.Trip {
	keys := make([]string, 0, len(period.Headways))
	for k := range period.Headways {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var trips []transit.Trip
	for _, key := range keys {
		seq, ok := seqs[key]
		if !ok {
			continue
		}
		headway := period.Headways[key] * 60
		if headway <= 0 {
			continue
		}

		// Skip departures that have certainly left the map, even with the
		// maximum jitter applied.
		k := 0
		if lo := now - opts.MaxTimeOnMap - headway - opts.ServiceStart; lo > 0 {
			k = int(lo / headway)
		}
		for ; ; k++ {
			base := opts.ServiceStart + float64(k)*headway
			if base >= now {
				break
			}
			id := fmt.Sprintf("%s-%d", key, int64(math.Round(base)))
			start := base + opts.Jitter.Offset(id, headway)
			if start >= now || now-start >= opts.MaxTimeOnMap {
				continue
			}
			trips = append(trips, transit.Trip{
				ID:        id,
				LineID:    seq.LineID,
				Direction: seq.Direction,
				Key:       key,
				Step:      k,
				StartTime: start,
			})
		}
	}
	return trips
}
