// Package window decides when it is acceptable to push a notification to a
// recipient, based on the local clock in their timezone.
//
// All functions are pure: "now" is always a parameter, never read from the
// wall clock, so callers and tests get deterministic answers.
package window

import "time"

// Notifications are permitted while the local hour is within
// [OptimalStartHour, OptimalEndHour] inclusive.
const (
	OptimalStartHour = 8
	OptimalEndHour   = 22
)

// IsOptimalTime reports whether now falls inside the notification window in
// the given IANA timezone. An unknown or invalid timezone fails closed.
func IsOptimalTime(tz string, now time.Time) bool {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false
	}
	h := now.In(loc).Hour()
	return h >= OptimalStartHour && h <= OptimalEndHour
}

// NextOptimalTime returns from unchanged when it is already inside the
// window, otherwise the next 08:00 local time: same day when the local hour
// is before 08, next day when it is past the window. An invalid timezone
// falls back to UTC so the result is always usable.
func NextOptimalTime(tz string, from time.Time) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	local := from.In(loc)
	h := local.Hour()
	if h >= OptimalStartHour && h <= OptimalEndHour {
		return from
	}
	day := local
	if h > OptimalEndHour {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), OptimalStartHour, 0, 0, 0, loc)
}

// ScheduleDelayed computes the send time for a notification delayed by d:
// the delay is applied first, then the result is rolled forward to the next
// acceptable window.
func ScheduleDelayed(tz string, d time.Duration, now time.Time) time.Time {
	return NextOptimalTime(tz, now.Add(d))
}
