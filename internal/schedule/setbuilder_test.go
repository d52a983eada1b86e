package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdaySetBuilder_Names(t *testing.T) {
	b := NewWeekdaySetBuilder()

	tests := []struct {
		expr string
		want []int
	}{
		{"mon", []int{0}},
		{"Wednesday", []int{2}},
		{"WED", []int{2}},
		{"wednes", []int{2}},
		{"0", []int{0}},
		{"6", []int{6}},
		{"mon-fri", []int{0, 1, 2, 3, 4}},
		{"mon,wed,fri", []int{0, 2, 4}},
		{"*", []int{0, 1, 2, 3, 4, 5, 6}},
		{"?", []int{0, 1, 2, 3, 4, 5, 6}},
	}
	for _, tt := range tests {
		got, err := b.Build(tt.expr)
		require.NoError(t, err, "expression %q", tt.expr)
		assert.Equal(t, tt.want, got.Values(), "expression %q", tt.expr)
	}
}

func TestWeekdaySetBuilder_WrappingRange(t *testing.T) {
	b := NewWeekdaySetBuilder()

	got, err := b.Build("fri-mon")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 5, 6}, got.Values())
}

func TestWeekdaySetBuilder_Increments(t *testing.T) {
	b := NewWeekdaySetBuilder()

	got, err := b.Build("mon/2")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4, 6}, got.Values())

	got, err = b.Build("mon-fri/2")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, got.Values())
}

func TestWeekdaySetBuilder_Errors(t *testing.T) {
	b := NewWeekdaySetBuilder()

	for _, expr := range []string{"funday", "mon/0", "mon/x", "8", "mon#2", "friL"} {
		_, err := b.Build(expr)
		require.Error(t, err, "expression %q", expr)
		var perr *ParseError
		assert.ErrorAs(t, err, &perr, "expression %q", expr)
	}
}

func TestWeekdaySetBuilder_NthOccurrence(t *testing.T) {
	// June 2025 starts on a Sunday, so the second Monday is June 9.
	b := NewWeekdaySetBuilderForDate(2025, time.June, 9)

	got, err := b.Build("mon#2")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got.Values())

	got, err = b.Build("mon#1")
	require.NoError(t, err)
	assert.Empty(t, got.Values())

	got, err = b.Build("0#2")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got.Values())

	_, err = b.Build("mon#6")
	require.Error(t, err)
	_, err = b.Build("mon#0")
	require.Error(t, err)
}

func TestWeekdaySetBuilder_LastOccurrence(t *testing.T) {
	// The last Friday of June 2025 is June 27.
	b := NewWeekdaySetBuilderForDate(2025, time.June, 27)
	got, err := b.Build("friL")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got.Values())

	got, err = b.Build("fril")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got.Values())

	b = NewWeekdaySetBuilderForDate(2025, time.June, 20)
	got, err = b.Build("friL")
	require.NoError(t, err)
	assert.Empty(t, got.Values())
}

func TestWeekdaySetBuilder_BareLIsSunday(t *testing.T) {
	// A bare "L" is the last value of the dimension, not an occurrence form.
	b := NewWeekdaySetBuilder()
	got, err := b.Build("L")
	require.NoError(t, err)
	assert.Equal(t, []int{6}, got.Values())
}

func TestMonthSetBuilder(t *testing.T) {
	b := NewMonthSetBuilder()

	got, err := b.Build("jan,jul")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 7}, got.Values())

	got, err = b.Build("jan/3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 7, 10}, got.Values())

	got, err = b.Build("mar-dec/3")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 6, 9, 12}, got.Values())

	// months wrap across the year boundary
	got, err = b.Build("nov-feb")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 11, 12}, got.Values())
}

func TestMonthdaySetBuilder(t *testing.T) {
	b := NewMonthdaySetBuilder(2025, time.June)

	got, err := b.Build("1-5")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got.Values())

	got, err = b.Build("L")
	require.NoError(t, err)
	assert.Equal(t, []int{30}, got.Values())

	// day ranges do not wrap
	_, err = b.Build("20-5")
	require.Error(t, err)

	_, err = b.Build("31")
	require.Error(t, err, "June has no day 31")
}

func TestMonthdaySetBuilder_NearestWorkday(t *testing.T) {
	// March 2025: the 1st and the 15th are Saturdays, the 30th is a Sunday.
	b := NewMonthdaySetBuilder(2025, time.March)

	got, err := b.Build("15W")
	require.NoError(t, err)
	assert.Equal(t, []int{14}, got.Values())

	// day 1 on a Saturday moves forward to stay within the month
	got, err = b.Build("1W")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, got.Values())

	got, err = b.Build("30W")
	require.NoError(t, err)
	assert.Equal(t, []int{31}, got.Values())

	// a weekday stays put
	got, err = b.Build("14W")
	require.NoError(t, err)
	assert.Equal(t, []int{14}, got.Values())
}

func TestMonthdaySetBuilder_LastDayOfFebruary(t *testing.T) {
	b := NewMonthdaySetBuilder(2024, time.February)
	got, err := b.Build("L")
	require.NoError(t, err)
	assert.Equal(t, []int{29}, got.Values())

	b = NewMonthdaySetBuilder(2025, time.February)
	got, err = b.Build("L")
	require.NoError(t, err)
	assert.Equal(t, []int{28}, got.Values())
}
