// Package util converts between TigerBeetle ids and the decimal strings they
// are stored as.
package util

import (
	"fmt"
	"math/big"

	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

func StringToUint128(s string) (tbtypes.Uint128, error) {
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok || bi.Sign() < 0 || bi.BitLen() > 128 {
		return tbtypes.Uint128{}, fmt.Errorf("invalid uint128 string: %s", s)
	}
	return tbtypes.BigIntToUint128(*bi), nil
}

func Uint128ToString(id tbtypes.Uint128) string {
	bi := id.BigInt()
	return bi.String()
}

// Uint128ToUint64 narrows v, reporting false when it does not fit.
func Uint128ToUint64(v tbtypes.Uint128) (uint64, bool) {
	bi := v.BigInt()
	if !bi.IsUint64() {
		return 0, false
	}
	return bi.Uint64(), true
}
