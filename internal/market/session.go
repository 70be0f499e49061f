package market

import (
	"sync"
	"time"
)

var (
	nyOnce sync.Once
	nyLoc  *time.Location
)

func newYork() *time.Location {
	nyOnce.Do(func() {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("ET", -5*3600)
		}
		nyLoc = loc
	})
	return nyLoc
}

// SessionFor maps a wall-clock instant to its trading session, using the
// exchange clock in New York.
func SessionFor(t time.Time) Session {
	et := t.In(newYork())
	h, m := et.Hour(), et.Minute()
	mins := h*60 + m

	switch {
	case mins >= 4*60 && mins < 9*60+30:
		return PreMarket
	case mins >= 9*60+30 && mins < 10*60:
		return OpenRush
	case mins >= 10*60 && mins < 11*60+30:
		return PowerOpen
	case mins >= 11*60+30 && mins < 15*60:
		return Midday
	case mins >= 15*60 && mins < 16*60:
		return PowerHour
	case mins >= 16*60 && mins < 20*60:
		return AfterHours
	default:
		return Overnight
	}
}
