package portfolio

import (
	"encoding/json"
	"strings"
)

// CostMethod defines the method for calculating cost basis.
// It is fixed per portfolio when the portfolio is created.
type CostMethod int

const (
	// AverageCost calculates the cost basis by averaging the cost of all shares.
	AverageCost CostMethod = iota
	// FIFO (First-In, First-Out) calculates the cost basis by assuming the first shares purchased are the first ones sold.
	FIFO
)

func (m CostMethod) String() string {
	switch m {
	case AverageCost:
		return "AVG"
	case FIFO:
		return "FIFO"
	default:
		return "unknown"
	}
}

// ParseCostMethod parses a string into a CostMethod.
func ParseCostMethod(s string) (CostMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AVG", "AVERAGE":
		return AverageCost, nil
	case "FIFO":
		return FIFO, nil
	default:
		return 0, invalid("cost_method", "unknown cost basis method %q", s)
	}
}

// replay returns the replay function implementing the method.
func (m CostMethod) replay() replayFunc {
	switch m {
	case FIFO:
		return replayFIFO
	default:
		return replayAverage
	}
}

func (m CostMethod) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

func (m *CostMethod) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseCostMethod(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
