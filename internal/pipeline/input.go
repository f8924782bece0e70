package pipeline

// Period names one life period of the raw input, in chronological order.
type Period string

const (
	PeriodEarlyChildhood Period = "early_childhood"
	PeriodElementary     Period = "elementary"
	PeriodMiddleSchool   Period = "middle_school"
	PeriodHighSchool     Period = "high_school"
)

// Periods returns the life periods in chronological order.
func Periods() []Period {
	return []Period{PeriodEarlyChildhood, PeriodElementary, PeriodMiddleSchool, PeriodHighSchool}
}

// Fragment is one remembered event.
type Fragment struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Polarity    string `json:"polarity" validate:"required,oneof=positive negative"`
	Rating      int    `json:"rating" validate:"required,min=1,max=5"`
}

// RawInput groups fragments by life period.
type RawInput map[Period][]Fragment

// Empty reports whether no period has any fragment.
func (r RawInput) Empty() bool {
	for _, frags := range r {
		if len(frags) > 0 {
			return false
		}
	}
	return true
}
