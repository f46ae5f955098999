package model

import (
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"
)

const microCCDExp = 6

// Amount is a currency amount in micro CCD.
type Amount uint64

// CCD renders the amount in whole CCD.
func (a Amount) CCD() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -microCCDExp)
}

func (a Amount) String() string {
	return a.CCD().StringFixed(microCCDExp) + " CCD"
}

// CheckedAdd returns a+b and false when the sum does not fit.
func (a Amount) CheckedAdd(b Amount) (Amount, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	return Amount(sum), carry == 0
}

// TotalPrice returns price*quantity and false when the product overflows.
func TotalPrice[A TokenAmount](price Amount, quantity A) (Amount, bool) {
	hi, lo := bits.Mul64(uint64(price), uint64(quantity))
	return Amount(lo), hi == 0
}
