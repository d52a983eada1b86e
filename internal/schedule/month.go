package schedule

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// NewMonthSetBuilder creates a builder for month expressions, 1-12 or
// Jan-Dec. Month ranges wrap at the end of the year, so "nov-feb" is valid.
func NewMonthSetBuilder() *SetBuilder {
	return newNamedSetBuilder(monthNames, 1, 3, true)
}
