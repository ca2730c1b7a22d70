package portfolio

// Lot is an open FIFO tax lot: shares bought together and their total cost,
// fees and taxes included.
type Lot struct {
	Date     Date     `json:"date"`
	Quantity Quantity `json:"quantity"`
	Cost     Money    `json:"cost"`
}

type lots []Lot

// total returns the number of shares and the total cost of the lots.
func (l lots) total() (q Quantity, cost Money) {
	for _, lot := range l {
		q = q.Add(lot.Quantity)
		cost = cost.Add(lot.Cost)
	}
	return q, cost
}

// consume removes quantityToSell shares oldest-first. It returns the lots
// left and the slices consumed. A partially consumed lot keeps its original
// cost minus the consumed portion, so the costs are conserved exactly.
//
// The receiver is not modified.
func (l lots) consume(quantityToSell Quantity) (remaining lots, consumed lots) {
	for _, currentLot := range l {
		if quantityToSell.IsZero() {
			remaining = append(remaining, currentLot)
			continue
		}

		if currentLot.Quantity.GreaterThan(quantityToSell) {
			// Partial sale from this lot
			costOfSoldPortion := currentLot.Cost.Mul(quantityToSell).Div(currentLot.Quantity)
			consumed = append(consumed, Lot{Date: currentLot.Date, Quantity: quantityToSell, Cost: costOfSoldPortion})
			remaining = append(remaining, Lot{
				Date:     currentLot.Date,
				Quantity: currentLot.Quantity.Sub(quantityToSell),
				Cost:     currentLot.Cost.Sub(costOfSoldPortion),
			})
			quantityToSell = Quantity{}
		} else {
			// Full sale of this lot
			consumed = append(consumed, currentLot)
			quantityToSell = quantityToSell.Sub(currentLot.Quantity)
		}
	}
	return remaining, consumed
}

// split multiplies every lot quantity by num/den. Costs are unchanged.
func (l lots) split(num, den int64) lots {
	res := make(lots, len(l))
	for i, lot := range l {
		lot.Quantity = lot.Quantity.Mul(Q(num)).Div(Q(den))
		res[i] = lot
	}
	return res
}
