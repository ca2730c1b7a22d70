package portfolio

// Split is a share split (or reverse split) of an asset: every held share
// becomes Numerator/Denominator shares. The cost basis is unchanged.
type Split struct {
	ID          string `json:"id"`
	Seq         int64  `json:"seq"`
	Portfolio   string `json:"portfolio_id"`
	Asset       string `json:"asset_id"`
	Date        Date   `json:"date"`
	Numerator   int64  `json:"numerator"`
	Denominator int64  `json:"denominator"`
}

func (s Split) Validate() error {
	switch {
	case s.Portfolio == "":
		return invalid("portfolio_id", "is required")
	case s.Asset == "":
		return invalid("asset_id", "is required")
	case s.Date.IsZero():
		return invalid("date", "is required")
	case s.Numerator <= 0:
		return invalid("numerator", "must be positive, got %d", s.Numerator)
	case s.Denominator <= 0:
		return invalid("denominator", "must be positive, got %d", s.Denominator)
	}
	return nil
}

// Ratio returns the number of new shares per old share.
func (s Split) Ratio() Quantity {
	return Q(s.Numerator).Div(Q(s.Denominator))
}
