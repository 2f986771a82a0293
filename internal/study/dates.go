package study

import "time"

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AddDays moves t by n calendar days, keeping the wall clock across DST shifts.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DaysBetween counts whole calendar days from a to b, comparing civil dates in
// each value's own location. The result is negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ac := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bc := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bc.Sub(ac).Hours() / 24)
}
