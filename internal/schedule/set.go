// Package schedule implements the time-based scheduling rules: temporal set
// expressions, running periods, instance schedules and maintenance window
// schedules. It is a pure library with no AWS dependencies.
package schedule

import (
	"fmt"
	"sort"
	"strings"
)

// Set holds the valid values of one temporal dimension (weekdays 0-6,
// months 1-12 or days of the month 1-31). A nil Set means the dimension
// is unrestricted.
type Set map[int]struct{}

// NewSet creates a set from the given values.
func NewSet(values ...int) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Contains reports whether v is in the set. A nil set matches every value.
func (s Set) Contains(v int) bool {
	if s == nil {
		return true
	}
	_, ok := s[v]
	return ok
}

// Values returns the values of the set in ascending order.
func (s Set) Values() []int {
	values := make([]int, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	sort.Ints(values)
	return values
}

func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, v := range s.Values() {
		parts = append(parts, fmt.Sprintf("%d", v))
	}
	return strings.Join(parts, ",")
}

// ParseError is returned when a temporal set expression cannot be resolved.
type ParseError struct {
	Expression string
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expression, e.Reason)
}

func parseErrorf(expression, format string, args ...any) error {
	return &ParseError{Expression: expression, Reason: fmt.Sprintf(format, args...)}
}
