package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/ais-go/pkg/value"
)

func TestEvaluateLit(t *testing.T) {
	rctx := NewContext()
	ref := ValueRef{Kind: KindLit, Lit: value.IntFromInt64(42)}
	v, err := Evaluate(ref, rctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, "42", v.AsInt().String())
}

func TestEvaluateRefDotAndIndex(t *testing.T) {
	rctx := WithRuntime(value.Map(map[string]value.Value{
		"nodes": value.Map(map[string]value.Value{
			"foo": value.Map(map[string]value.Value{
				"outputs": value.Map(map[string]value.Value{
					"x": value.List([]value.Value{value.IntFromInt64(1), value.IntFromInt64(2)}),
				}),
			}),
		}),
	}))
	v, err := Evaluate(ValueRef{Kind: KindRef, Ref: "nodes.foo.outputs.x[1]"}, rctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, "2", v.AsInt().String())
}

func TestEvaluateRefMissing(t *testing.T) {
	rctx := NewContext()
	_, err := Evaluate(ValueRef{Kind: KindRef, Ref: "nodes.foo.outputs"}, rctx, Options{})
	var missing *MissingRefError
	assert.ErrorAs(t, err, &missing)
}

func TestEvaluateRefRootOverride(t *testing.T) {
	rctx := NewContext()
	opts := Options{RootOverrides: map[string]value.Value{
		"params": value.Map(map[string]value.Value{"amount": value.IntFromInt64(7)}),
	}}
	v, err := Evaluate(ValueRef{Kind: KindRef, Ref: "params.amount"}, rctx, opts)
	require.NoError(t, err)
	assert.Equal(t, "7", v.AsInt().String())
}

func TestEvaluateCel(t *testing.T) {
	rctx := WithRuntime(value.Map(map[string]value.Value{
		"nodes": value.Map(map[string]value.Value{
			"until1": value.Map(map[string]value.Value{
				"outputs": value.Map(map[string]value.Value{"ready": value.Bool(true)}),
			}),
		}),
	}))
	v, err := Evaluate(ValueRef{Kind: KindCel, Cel: "nodes.until1.outputs.ready == true"}, rctx, Options{})
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestEvaluateDetectNeedsDetect(t *testing.T) {
	rctx := NewContext()
	_, err := Evaluate(ValueRef{Kind: KindDetect, Detect: DetectSpec{Kind: "contract"}}, rctx, Options{})
	var nd *NeedDetectError
	assert.ErrorAs(t, err, &nd)
}

func TestEvaluateObjectAndArray(t *testing.T) {
	rctx := NewContext()
	ref := ValueRef{Kind: KindObject, Object: map[string]ValueRef{
		"a": {Kind: KindLit, Lit: value.IntFromInt64(1)},
		"b": {Kind: KindArray, Array: []ValueRef{{Kind: KindLit, Lit: value.Str("x")}}},
	}}
	v, err := Evaluate(ref, rctx, Options{})
	require.NoError(t, err)
	av, _ := v.Get("a")
	assert.Equal(t, "1", av.AsInt().String())
	bv, _ := v.Get("b")
	item, _ := bv.Index(0)
	assert.Equal(t, "x", item.AsString())
}

func TestSetRefAndGetRef(t *testing.T) {
	rctx := NewContext()
	require.NoError(t, rctx.SetRef("nodes.foo.outputs", value.Map(map[string]value.Value{"x": value.IntFromInt64(1)})))
	v, err := rctx.GetRef("nodes.foo.outputs.x")
	require.NoError(t, err)
	assert.Equal(t, "1", v.AsInt().String())
}

func TestParseValueRefLikeRecognizesWrapper(t *testing.T) {
	v := value.Map(map[string]value.Value{"ref": value.Str("nodes.a.outputs")})
	ref, ok, err := ParseValueRefLike(v)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindRef, ref.Kind)

	plain := value.Map(map[string]value.Value{"a": value.IntFromInt64(1), "b": value.IntFromInt64(2)})
	_, ok2, err := ParseValueRefLike(plain)
	require.NoError(t, err)
	assert.False(t, ok2)
}

func TestCalculatedOverrideOrderFromMap(t *testing.T) {
	overrides := map[string]ValueRef{
		"b": {Kind: KindRef, Ref: "calculated.a"},
		"a": {Kind: KindLit, Lit: value.IntFromInt64(1)},
	}
	order, err := CalculatedOverrideOrderFromMap(overrides)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestCalculatedOverrideOrderCycle(t *testing.T) {
	overrides := map[string]ValueRef{
		"a": {Kind: KindRef, Ref: "calculated.b"},
		"b": {Kind: KindRef, Ref: "calculated.a"},
	}
	_, err := CalculatedOverrideOrderFromMap(overrides)
	require.Error(t, err)
}
