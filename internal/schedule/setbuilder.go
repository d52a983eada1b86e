package schedule

import (
	"strconv"
	"strings"
)

const (
	wildcardAll   = "*"
	wildcardAny   = "?"
	wildcardFirst = "^"
	wildcardLast  = "$"

	rangeChar     = "-"
	incrementChar = "/"
)

// customParser handles a dimension-specific expression form. It reports
// whether it recognized the item; a recognized item may still fail with an
// error.
type customParser func(item string) (Set, bool, error)

// SetBuilder resolves expressions for one temporal dimension into a Set.
// Expressions are comma separated lists of names, numeric values, inclusive
// ranges, increments and wildcards. Builders for the concrete dimensions are
// created with NewWeekdaySetBuilder, NewMonthSetBuilder and
// NewMonthdaySetBuilder.
type SetBuilder struct {
	names        []string
	offset       int
	wrap         bool
	sigChars     int
	lastWildcard string
	custom       []customParser
}

// newNamedSetBuilder creates a builder for a dimension whose values have
// names, such as weekdays and months. Names are matched case-insensitively
// on the first sigChars characters (0 = full name).
func newNamedSetBuilder(names []string, offset, sigChars int, wrap bool) *SetBuilder {
	b := &SetBuilder{
		names:        make([]string, len(names)),
		offset:       offset,
		wrap:         wrap,
		sigChars:     sigChars,
		lastWildcard: wildcardLast,
	}
	for i, name := range names {
		b.names[i] = truncate(strings.ToLower(name), sigChars)
	}
	return b
}

// newValueSetBuilder creates a builder for a purely numeric dimension with
// values min..max.
func newValueSetBuilder(min, max int, wrap bool) *SetBuilder {
	names := make([]string, 0, max-min+1)
	for v := min; v <= max; v++ {
		names = append(names, strconv.Itoa(v))
	}
	return &SetBuilder{
		names:        names,
		offset:       min,
		wrap:         wrap,
		lastWildcard: wildcardLast,
	}
}

func truncate(s string, n int) string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// Build resolves a comma separated expression into the set of matching
// values. It fails with a *ParseError for unknown tokens, invalid ranges and
// invalid increments.
func (b *SetBuilder) Build(expression string) (Set, error) {
	result := NewSet()
	for _, item := range strings.Split(expression, ",") {
		item = strings.TrimSpace(item)
		values, err := b.parseItem(item)
		if err != nil {
			return nil, err
		}
		for v := range values {
			result[v] = struct{}{}
		}
	}
	return result, nil
}

func (b *SetBuilder) parseItem(item string) (Set, error) {
	for _, parse := range b.custom {
		values, handled, err := parse(item)
		if err != nil {
			return nil, err
		}
		if handled {
			return values, nil
		}
	}

	if item == wildcardAll || item == wildcardAny {
		return b.all(), nil
	}

	if base, incrStr, found := strings.Cut(item, incrementChar); found {
		incr, err := strconv.Atoi(incrStr)
		if err != nil {
			return nil, parseErrorf(item, "increment %q is not a number", incrStr)
		}
		if incr <= 0 {
			return nil, parseErrorf(item, "increment must be greater than 0")
		}
		return b.parseRange(item, base, incr)
	}

	return b.parseRange(item, item, 1)
}

// parseRange handles single tokens, "start-end" ranges and the combination
// with an increment. A single token with an increment runs to the end of the
// domain.
func (b *SetBuilder) parseRange(item, base string, incr int) (Set, error) {
	start, end := base, base
	if s, e, found := strings.Cut(base, rangeChar); found {
		start, end = s, e
	} else if incr > 1 {
		end = b.lastWildcard
	}

	startVal, ok := b.resolveToken(start)
	if !ok {
		return nil, parseErrorf(item, "unknown value %q", start)
	}
	endVal, ok := b.resolveToken(end)
	if !ok {
		return nil, parseErrorf(item, "unknown value %q", end)
	}

	if startVal > endVal && !b.wrap {
		return nil, parseErrorf(item, "start %q is after end %q and values do not wrap", start, end)
	}

	values := NewSet()
	size := len(b.names)
	steps := (endVal - startVal + size) % size
	for i := 0; i <= steps; i += incr {
		values[(startVal-b.offset+i)%size+b.offset] = struct{}{}
	}
	return values, nil
}

// resolveToken maps a single name, numeric value or first/last wildcard to
// its value in the dimension.
func (b *SetBuilder) resolveToken(token string) (int, bool) {
	if token == wildcardFirst {
		return b.offset, true
	}
	if token == wildcardLast || strings.EqualFold(token, b.lastWildcard) {
		return b.offset + len(b.names) - 1, true
	}

	name := truncate(strings.ToLower(token), b.sigChars)
	for i, n := range b.names {
		if n == name {
			return i + b.offset, true
		}
	}

	// numeric value, leading zeros allowed
	if v, err := strconv.Atoi(token); err == nil {
		if v >= b.offset && v < b.offset+len(b.names) {
			return v, true
		}
	}
	return 0, false
}

func (b *SetBuilder) all() Set {
	values := NewSet()
	for i := range b.names {
		values[i+b.offset] = struct{}{}
	}
	return values
}
