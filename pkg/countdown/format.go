// Package countdown renders certificate expiration as a live relative time.
package countdown

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the absolute part of a formatted countdown.
const DateLayout = "02/01/2006 15:04"

// Format renders expiration relative to now, e.g.
// "31/12/2026 23:59 (in 3 days)". The unit is days from 24h, hours from 60
// minutes, minutes from 60 seconds and seconds below that, with the count
// rounded half up. A zero or non-positive expiration renders as "".
func Format(expiration, now time.Time) string {
	if expiration.IsZero() || expiration.Unix() <= 0 {
		return ""
	}

	delta := expiration.Sub(now)
	past := delta < 0
	if past {
		delta = -delta
	}

	var n int64
	var unit string
	switch {
	case delta >= 24*time.Hour:
		n, unit = round(delta.Hours()/24), "day"
	case delta >= time.Hour:
		n, unit = round(delta.Hours()), "hour"
	case delta >= time.Minute:
		n, unit = round(delta.Minutes()), "minute"
	default:
		n, unit = round(delta.Seconds()), "second"
	}
	if n != 1 {
		unit += "s"
	}

	if past {
		return fmt.Sprintf("%s (%d %s ago)", expiration.Format(DateLayout), n, unit)
	}
	return fmt.Sprintf("%s (in %d %s)", expiration.Format(DateLayout), n, unit)
}

func round(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
