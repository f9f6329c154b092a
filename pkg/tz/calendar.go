package tz

import "time"

var daysPerMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// MakeTime returns the Unix epoch of a UTC calendar instant.
func MakeTime(year int, month time.Month, day, hour, minute, second int) int64 {
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC).Unix()
}

func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysInMonth returns 0 for a month outside January..December.
func DaysInMonth(month time.Month, year int) int {
	if month < time.January || month > time.December {
		return 0
	}
	if month == time.February && IsLeapYear(year) {
		return 29
	}
	return daysPerMonth[month-1]
}

// Format renders epoch on the UTC calendar with a Go layout string.
func Format(epoch int64, layout string) string {
	return time.Unix(epoch, 0).UTC().Format(layout)
}
