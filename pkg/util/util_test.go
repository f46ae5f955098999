package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

func TestUint128Strings(t *testing.T) {
	id := tbtypes.ToUint128(1234567890123)
	s := Uint128ToString(id)
	assert.Equal(t, "1234567890123", s)

	back, err := StringToUint128(s)
	require.NoError(t, err)
	assert.Equal(t, id, back)

	max := "340282366920938463463374607431768211455"
	v, err := StringToUint128(max)
	require.NoError(t, err)
	assert.Equal(t, max, Uint128ToString(v))

	for _, bad := range []string{"", "abc", "-1", "340282366920938463463374607431768211456"} {
		_, err := StringToUint128(bad)
		assert.Error(t, err, bad)
	}
}

func TestUint128ToUint64(t *testing.T) {
	v, ok := Uint128ToUint64(tbtypes.ToUint128(42))
	require.True(t, ok)
	assert.EqualValues(t, 42, v)

	big, err := StringToUint128("18446744073709551616")
	require.NoError(t, err)
	_, ok = Uint128ToUint64(big)
	assert.False(t, ok)
}
