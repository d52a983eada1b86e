package schedule

import "time"

// Weekday numbering follows the configuration convention Monday=0..Sunday=6,
// not time.Weekday which starts the week on Sunday.

func weekdayOf(year int, month time.Month, day int) int {
	return (int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Weekday()) + 6) % 7
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// firstOccurrenceDay returns the day of the month on which the given weekday
// occurs for the first time.
func firstOccurrenceDay(weekday int, year int, month time.Month) int {
	first := weekdayOf(year, month, 1)
	return 1 + ((weekday-first)%7+7)%7
}

// lastOccurrenceDay returns the day of the month on which the given weekday
// occurs for the last time, by advancing from the first occurrence in steps
// of a week while staying within the month.
func lastOccurrenceDay(weekday int, year int, month time.Month) int {
	day := firstOccurrenceDay(weekday, year, month)
	days := daysInMonth(year, month)
	for day+7 <= days {
		day += 7
	}
	return day
}
