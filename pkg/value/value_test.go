package value

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/ais-go/pkg/numeric"
)

func TestValueJSONRoundTrip(t *testing.T) {
	big128, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	cases := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Str("hello"),
		IntFromInt64(42),
		Int(big128),
		Dec(numeric.MustParse("1.5")),
		List([]Value{IntFromInt64(1), Str("two"), Bool(true)}),
		Map(map[string]Value{"a": IntFromInt64(1), "b": Str("x")}),
	}

	for _, v := range cases {
		raw, err := json.Marshal(v)
		require.NoError(t, err)

		var out Value
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.True(t, Equal(v, out), "round trip mismatch for %#v: got %#v", v, out)
	}
}

func TestValueJSONPreservesBigIntPrecision(t *testing.T) {
	big128, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	v := Int(big128)

	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var out Value
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 0, big128.Cmp(out.AsInt()))
}

func TestValueJSONEmbeddedInStruct(t *testing.T) {
	type wrapper struct {
		Runtime Value            `json:"runtime"`
		Params  map[string]Value `json:"params"`
	}

	in := wrapper{
		Runtime: Map(map[string]Value{"chain": Str("ethereum")}),
		Params:  map[string]Value{"amount": Dec(numeric.MustParse("10.25"))},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out wrapper
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, Equal(in.Runtime, out.Runtime))
	assert.True(t, Equal(in.Params["amount"], out.Params["amount"]))
}
