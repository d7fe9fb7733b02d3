// Package period computes the fixed settlement windows the commission and
// rebate engines run over.
package period

import "time"

// DayStart returns 00:00 of the day containing now, in now's location.
func DayStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// PreviousISOWeek returns [Monday 00:00, next Monday 00:00) of the ISO week
// before the one containing now, in now's location.
func PreviousISOWeek(now time.Time) (time.Time, time.Time) {
	offset := (int(now.Weekday()) + 6) % 7 // Monday = 0
	thisMonday := DayStart(now).AddDate(0, 0, -offset)
	return thisMonday.AddDate(0, 0, -7), thisMonday
}

// PreviousDay returns [00:00, 24:00) of the day before the one containing now.
func PreviousDay(now time.Time) (time.Time, time.Time) {
	today := DayStart(now)
	return today.AddDate(0, 0, -1), today
}
