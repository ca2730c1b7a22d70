package portfolio

// Range is a period of dates, both bounds included.
type Range struct{ From, To Date }

// reportRange resolves the period of a report read at asOf: a zero from is
// the Inception, a zero to is asOf, and to never goes past asOf.
func reportRange(from, to, asOf Date) (Range, error) {
	if from.IsZero() {
		from = Inception
	}
	if to.IsZero() {
		to = asOf
	}
	to = MinDate(to, asOf)
	if from.After(to) {
		return Range{}, invalid("from", "%s is after %s", from, to)
	}
	return Range{From: from, To: to}, nil
}

// Contains reports whether date is within r.
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }
