package transit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses HH:MM[:SS] into seconds since midnight. Hours may exceed
// 23 for service running past midnight.
func ParseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
		vals[i] = v
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return float64(vals[0]*3600 + vals[1]*60 + vals[2]), nil
}

func FormatClock(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// SecondsOfDay returns the time elapsed since local midnight of t, keeping
// sub-second precision so positions move smoothly between whole seconds.
func SecondsOfDay(t time.Time) float64 {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return t.Sub(midnight).Seconds()
}
