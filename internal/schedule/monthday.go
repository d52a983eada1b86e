package schedule

import (
	"strings"
	"time"
)

const monthdayWorkdayChar = "W"

// NewMonthdaySetBuilder creates a builder for day-of-month expressions for
// the given month. "L" is the last day of the month and "nW" resolves to the
// workday nearest to day n within the month. Day ranges do not wrap.
func NewMonthdaySetBuilder(year int, month time.Month) *SetBuilder {
	days := daysInMonth(year, month)
	b := newValueSetBuilder(1, days, false)
	b.lastWildcard = "L"
	b.custom = []customParser{monthdayWorkdayParser(b, year, month, days)}
	return b
}

// monthdayWorkdayParser handles the nW form. Days falling on a Saturday move
// to the Friday before (or the Monday after for day 1), days falling on a
// Sunday move to the Monday after (or the Friday before at the end of the
// month).
func monthdayWorkdayParser(b *SetBuilder, year int, month time.Month, days int) customParser {
	return func(item string) (Set, bool, error) {
		if len(item) < 2 || !strings.EqualFold(item[len(item)-1:], monthdayWorkdayChar) {
			return nil, false, nil
		}
		day, ok := b.resolveToken(item[:len(item)-1])
		if !ok {
			return nil, true, parseErrorf(item, "unknown day %q", item[:len(item)-1])
		}
		switch weekdayOf(year, month, day) {
		case 5: // Saturday
			if day > 1 {
				day--
			} else {
				day += 2
			}
		case 6: // Sunday
			if day < days {
				day++
			} else {
				day -= 2
			}
		}
		return NewSet(day), true, nil
	}
}
