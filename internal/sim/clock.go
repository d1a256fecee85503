package sim

import "time"

type Clock interface {
	Now() time.Time
}

// ScaledClock runs simulated time from a chosen start at a multiple of wall
// clock speed.
type ScaledClock struct {
	origin   time.Time
	simStart time.Time
	speed    float64
	wall     func() time.Time
}

// NewScaledClock starts simulated time at simStart now. A zero simStart
// means the current wall time.
func NewScaledClock(simStart time.Time, speed float64) *ScaledClock {
	return newScaledClock(simStart, speed, time.Now)
}

func newScaledClock(simStart time.Time, speed float64, wall func() time.Time) *ScaledClock {
	origin := wall()
	if simStart.IsZero() {
		simStart = origin
	}
	if speed <= 0 {
		speed = 1
	}
	return &ScaledClock{origin: origin, simStart: simStart, speed: speed, wall: wall}
}

func (c *ScaledClock) Now() time.Time {
	elapsed := c.wall().Sub(c.origin)
	return c.simStart.Add(time.Duration(float64(elapsed) * c.speed))
}

// StartOfDayAt returns the instant sec seconds after midnight on the day of
// ref, in ref's location.
func StartOfDayAt(ref time.Time, sec float64) time.Time {
	y, m, d := ref.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, ref.Location())
	return midnight.Add(time.Duration(sec * float64(time.Second)))
}
