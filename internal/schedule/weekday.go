package schedule

import (
	"strconv"
	"strings"
	"time"
)

var weekdayNames = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

const (
	weekdayOccurrenceChar = "#"
	weekdayLastChar       = "L"
)

// NewWeekdaySetBuilder creates a builder for weekday expressions, 0-6 or
// Mon-Sun. Expressions using the nth-occurrence (mon#2) or last-occurrence
// (friL) forms need a date context, use NewWeekdaySetBuilderForDate for
// those.
func NewWeekdaySetBuilder() *SetBuilder {
	return newWeekdayBuilder(0, 0, 0, false)
}

// NewWeekdaySetBuilderForDate creates a weekday builder that evaluates the
// nth-occurrence and last-occurrence forms against the given date. The
// resulting set is a membership probe for that single day: it holds the
// weekday if the date is the requested occurrence and is empty otherwise.
func NewWeekdaySetBuilderForDate(year int, month time.Month, day int) *SetBuilder {
	return newWeekdayBuilder(year, month, day, true)
}

func newWeekdayBuilder(year int, month time.Month, day int, hasDate bool) *SetBuilder {
	b := newNamedSetBuilder(weekdayNames, 0, 3, true)
	b.lastWildcard = weekdayLastChar
	b.custom = []customParser{
		weekdayOccurrenceParser(b, year, month, day, hasDate),
		weekdayLastParser(b, year, month, day, hasDate),
	}
	return b
}

// weekdayOccurrenceParser handles the name#n and value#n forms.
func weekdayOccurrenceParser(b *SetBuilder, year int, month time.Month, day int, hasDate bool) customParser {
	return func(item string) (Set, bool, error) {
		dayStr, numStr, found := strings.Cut(item, weekdayOccurrenceChar)
		if !found {
			return nil, false, nil
		}
		n, err := strconv.Atoi(numStr)
		if err != nil {
			return nil, true, parseErrorf(item, "occurrence %q is not a number", numStr)
		}
		if n < 1 || n > 5 {
			return nil, true, parseErrorf(item, "occurrence %d is outside range 1-5", n)
		}
		if !hasDate {
			return nil, true, parseErrorf(item, "a date context is required for the %q form", weekdayOccurrenceChar)
		}
		weekday, ok := b.resolveToken(dayStr)
		if !ok {
			return nil, true, parseErrorf(item, "unknown weekday %q", dayStr)
		}
		if day == firstOccurrenceDay(weekday, year, month)+(n-1)*7 {
			return NewSet(weekday), true, nil
		}
		return NewSet(), true, nil
	}
}

// weekdayLastParser handles the nameL and valueL forms.
func weekdayLastParser(b *SetBuilder, year int, month time.Month, day int, hasDate bool) customParser {
	return func(item string) (Set, bool, error) {
		if len(item) < 2 || !strings.EqualFold(item[len(item)-1:], weekdayLastChar) {
			return nil, false, nil
		}
		weekday, ok := b.resolveToken(item[:len(item)-1])
		if !ok {
			return nil, false, nil
		}
		if !hasDate {
			return nil, true, parseErrorf(item, "a date context is required for the %q form", weekdayLastChar)
		}
		if day == lastOccurrenceDay(weekday, year, month) {
			return NewSet(weekday), true, nil
		}
		return NewSet(), true, nil
	}
}
