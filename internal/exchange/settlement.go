package exchange

import (
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// Share is the part of a payout owed to one recipient.
type Share struct {
	Recipient model.AccountAddress
	Amount    model.Amount
}

// Distribution splits a payout between recipients.
type Distribution []Share

// Total sums the shares. A distribution whose total does not fit an Amount
// reports false.
func (d Distribution) Total() (model.Amount, bool) {
	var total model.Amount
	for _, s := range d {
		var ok bool
		if total, ok = total.CheckedAdd(s.Amount); !ok {
			return 0, false
		}
	}
	return total, true
}

// CalculateAmounts attributes the whole payout to owner. Any replacement must
// keep Total equal to total.
func CalculateAmounts(total model.Amount, owner model.AccountAddress) Distribution {
	return Distribution{{Recipient: owner, Amount: total}}
}

func checkDistribution(d Distribution, total model.Amount) bool {
	sum, ok := d.Total()
	return ok && sum == total
}
