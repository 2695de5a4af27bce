package cel

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/smilemakc/ais-go/pkg/numeric"
	"github.com/smilemakc/ais-go/pkg/value"
)

// Evaluation errors.
var (
	ErrUndefinedIdentifier = errors.New("undefined identifier")
	ErrInvalidMemberAccess = errors.New("invalid member access")
	ErrInvalidIndexAccess  = errors.New("invalid index access")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrUnknownBuiltin      = errors.New("unknown builtin")
	ErrWrongArgCount       = errors.New("wrong argument count")
)

// Context is the identifier lookup scope for evaluation: a single
// string-keyed map, consulted for bare identifiers.
type Context map[string]value.Value

// Eval evaluates a parsed AST against a context.
func Eval(n *Node, ctx Context) (value.Value, error) {
	switch n.Kind {
	case NodeNull:
		return value.Null(), nil
	case NodeBool:
		return value.Bool(n.BoolValue), nil
	case NodeInteger:
		i := new(big.Int)
		if _, ok := i.SetString(n.IntDigits, 10); !ok {
			return value.Value{}, fmt.Errorf("%w: %q", numeric.ErrInvalidDecimalLiteral, n.IntDigits)
		}
		return value.Int(i), nil
	case NodeDecimal:
		d, err := numeric.Parse(n.DecimalText)
		if err != nil {
			return value.Value{}, err
		}
		return value.Dec(d), nil
	case NodeString:
		return value.Str(n.StringValue), nil
	case NodeIdentifier:
		v, ok := ctx[n.Name]
		if !ok {
			return value.Value{}, fmt.Errorf("%w: %q", ErrUndefinedIdentifier, n.Name)
		}
		return v, nil
	case NodeList:
		items := make([]value.Value, len(n.Children))
		for i, c := range n.Children {
			v, err := Eval(c, ctx)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.List(items), nil
	case NodeUnary:
		return evalUnary(n, ctx)
	case NodeBinary:
		return evalBinary(n, ctx)
	case NodeTernary:
		cond, err := Eval(n.Cond, ctx)
		if err != nil {
			return value.Value{}, err
		}
		if cond.Truthy() {
			return Eval(n.Then, ctx)
		}
		return Eval(n.Else, ctx)
	case NodeMember:
		obj, err := Eval(n.Object, ctx)
		if err != nil {
			return value.Value{}, err
		}
		if obj.Kind() != value.KindMap {
			return value.Value{}, fmt.Errorf("%w: member %q on non-map", ErrInvalidMemberAccess, n.Property)
		}
		v, ok := obj.Get(n.Property)
		if !ok {
			return value.Value{}, fmt.Errorf("%w: missing key %q", ErrInvalidMemberAccess, n.Property)
		}
		return v, nil
	case NodeIndex:
		return evalIndex(n, ctx)
	case NodeCall:
		return evalCall(n, ctx)
	default:
		return value.Value{}, fmt.Errorf("%w: unknown node kind", ErrTypeMismatch)
	}
}

func evalUnary(n *Node, ctx Context) (value.Value, error) {
	v, err := Eval(n.Operand, ctx)
	if err != nil {
		return value.Value{}, err
	}
	switch n.UnaryOp {
	case UnaryNot:
		return value.Bool(!v.Truthy()), nil
	case UnaryNeg:
		switch v.Kind() {
		case value.KindInt:
			return value.Int(new(big.Int).Neg(v.AsInt())), nil
		case value.KindDecimal:
			return value.Dec(v.AsDecimal().Neg()), nil
		default:
			return value.Value{}, fmt.Errorf("%w: cannot negate %s", ErrTypeMismatch, v.Kind())
		}
	default:
		return value.Value{}, fmt.Errorf("%w: unknown unary op", ErrTypeMismatch)
	}
}

func evalIndex(n *Node, ctx Context) (value.Value, error) {
	obj, err := Eval(n.Object, ctx)
	if err != nil {
		return value.Value{}, err
	}
	idx, err := Eval(n.IndexOp, ctx)
	if err != nil {
		return value.Value{}, err
	}
	switch obj.Kind() {
	case value.KindList:
		if idx.Kind() != value.KindInt {
			return value.Value{}, fmt.Errorf("%w: list index must be integer", ErrTypeMismatch)
		}
		i := idx.AsInt()
		if i.Sign() < 0 || !i.IsInt64() {
			return value.Value{}, fmt.Errorf("%w: index out of range", ErrInvalidIndexAccess)
		}
		v, ok := obj.Index(int(i.Int64()))
		if !ok {
			return value.Value{}, fmt.Errorf("%w: index out of range", ErrInvalidIndexAccess)
		}
		return v, nil
	case value.KindMap:
		if idx.Kind() != value.KindString {
			return value.Value{}, fmt.Errorf("%w: map index must be string", ErrTypeMismatch)
		}
		v, ok := obj.Get(idx.AsString())
		if !ok {
			return value.Value{}, fmt.Errorf("%w: missing key %q", ErrInvalidIndexAccess, idx.AsString())
		}
		return v, nil
	default:
		return value.Value{}, fmt.Errorf("%w: cannot index %s", ErrTypeMismatch, obj.Kind())
	}
}

func evalBinary(n *Node, ctx Context) (value.Value, error) {
	left, err := Eval(n.Left, ctx)
	if err != nil {
		return value.Value{}, err
	}
	right, err := Eval(n.Right, ctx)
	if err != nil {
		return value.Value{}, err
	}
	switch n.BinOp {
	case BinAnd:
		return value.Bool(left.Truthy() && right.Truthy()), nil
	case BinOr:
		return value.Bool(left.Truthy() || right.Truthy()), nil
	case BinEq:
		return value.Bool(value.Equal(left, right)), nil
	case BinNe:
		return value.Bool(!value.Equal(left, right)), nil
	case BinLt, BinLe, BinGt, BinGe:
		return compareOp(n.BinOp, left, right)
	case BinIn:
		return evalIn(left, right)
	case BinAdd:
		return evalAdd(left, right)
	case BinSub, BinMul, BinDiv, BinMod:
		return evalArith(n.BinOp, left, right)
	default:
		return value.Value{}, fmt.Errorf("%w: unknown binary op", ErrTypeMismatch)
	}
}

func evalIn(left, right value.Value) (value.Value, error) {
	if right.Kind() != value.KindList {
		return value.Value{}, fmt.Errorf("%w: right side of 'in' must be a list", ErrTypeMismatch)
	}
	for _, item := range right.AsList() {
		if value.Equal(left, item) {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

// asNumeric attempts to interpret v as an integer or decimal, including
// parsing numeric strings. ok is false if v is not numeric.
func asNumeric(v value.Value) (isInt bool, i *big.Int, d numeric.Decimal, ok bool) {
	switch v.Kind() {
	case value.KindInt:
		return true, v.AsInt(), numeric.Decimal{}, true
	case value.KindDecimal:
		return false, nil, v.AsDecimal(), true
	case value.KindString:
		n := new(big.Int)
		if _, good := n.SetString(v.AsString(), 10); good {
			return true, n, numeric.Decimal{}, true
		}
		if dec, err := numeric.Parse(v.AsString()); err == nil {
			return false, nil, dec, true
		}
		return false, nil, numeric.Decimal{}, false
	default:
		return false, nil, numeric.Decimal{}, false
	}
}

func toDecimal(isInt bool, i *big.Int, d numeric.Decimal) numeric.Decimal {
	if isInt {
		return numeric.FromAtomicInt(i, 0)
	}
	return d
}

func compareOp(op BinaryOp, left, right value.Value) (value.Value, error) {
	lIsInt, lInt, lDec, lOk := asNumeric(left)
	rIsInt, rInt, rDec, rOk := asNumeric(right)
	var cmp int
	if lOk && rOk {
		if lIsInt && rIsInt {
			cmp = lInt.Cmp(rInt)
		} else {
			cmp = toDecimal(lIsInt, lInt, lDec).Cmp(toDecimal(rIsInt, rInt, rDec))
		}
	} else if left.Kind() == value.KindString && right.Kind() == value.KindString {
		cmp = strings.Compare(left.AsString(), right.AsString())
	} else {
		return value.Value{}, fmt.Errorf("%w: cannot compare %s and %s", ErrTypeMismatch, left.Kind(), right.Kind())
	}
	switch op {
	case BinLt:
		return value.Bool(cmp < 0), nil
	case BinLe:
		return value.Bool(cmp <= 0), nil
	case BinGt:
		return value.Bool(cmp > 0), nil
	case BinGe:
		return value.Bool(cmp >= 0), nil
	default:
		return value.Value{}, fmt.Errorf("%w: unknown comparison op", ErrTypeMismatch)
	}
}

func evalAdd(left, right value.Value) (value.Value, error) {
	if left.Kind() == value.KindString && right.Kind() == value.KindString {
		return value.Str(left.AsString() + right.AsString()), nil
	}
	return evalArith(BinAdd, left, right)
}

func evalArith(op BinaryOp, left, right value.Value) (value.Value, error) {
	lIsInt, lInt, lDec, lOk := asNumeric(left)
	rIsInt, rInt, rDec, rOk := asNumeric(right)
	if !lOk || !rOk {
		return value.Value{}, fmt.Errorf("%w: arithmetic requires numeric operands", ErrTypeMismatch)
	}
	if lIsInt && rIsInt {
		switch op {
		case BinAdd:
			return value.Int(new(big.Int).Add(lInt, rInt)), nil
		case BinSub:
			return value.Int(new(big.Int).Sub(lInt, rInt)), nil
		case BinMul:
			return value.Int(new(big.Int).Mul(lInt, rInt)), nil
		case BinDiv:
			if rInt.Sign() == 0 {
				return value.Value{}, numeric.ErrDivisionByZero
			}
			q, r := new(big.Int), new(big.Int)
			q.QuoRem(lInt, rInt, r)
			if r.Sign() == 0 {
				return value.Int(q), nil
			}
			ld := numeric.FromAtomicInt(lInt, 0)
			rd := numeric.FromAtomicInt(rInt, 0)
			res, err := ld.DivExact(rd)
			if err != nil {
				return value.Value{}, err
			}
			return value.Dec(res), nil
		case BinMod:
			if rInt.Sign() == 0 {
				return value.Value{}, numeric.ErrDivisionByZero
			}
			r := new(big.Int)
			r.Rem(lInt, rInt)
			return value.Int(r), nil
		}
	}
	ld := toDecimal(lIsInt, lInt, lDec)
	rd := toDecimal(rIsInt, rInt, rDec)
	switch op {
	case BinAdd:
		return value.Dec(ld.Add(rd)), nil
	case BinSub:
		return value.Dec(ld.Sub(rd)), nil
	case BinMul:
		return value.Dec(ld.Mul(rd)), nil
	case BinDiv:
		res, err := ld.DivExact(rd)
		if err != nil {
			return value.Value{}, err
		}
		return value.Dec(res), nil
	case BinMod:
		return value.Value{}, numeric.ErrUnsupportedDecimalOperation
	default:
		return value.Value{}, fmt.Errorf("%w: unknown arithmetic op", ErrTypeMismatch)
	}
	return value.Value{}, fmt.Errorf("%w: unreachable", ErrTypeMismatch)
}

func evalCall(n *Node, ctx Context) (value.Value, error) {
	name := n.Name
	var receiver *value.Value
	if n.Object != nil {
		rv, err := Eval(n.Object, ctx)
		if err != nil {
			return value.Value{}, err
		}
		receiver = &rv
	}
	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := Eval(a, ctx)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}
	// receiver is passed separately; callBuiltin prepends it to args, so
	// x.f(y) and f(x, y) reach the same builtin with the same arguments.
	return callBuiltin(name, receiver, args)
}

var regexCache = map[string]*regexp.Regexp{}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache[pattern] = re
	return re, nil
}

func callBuiltin(name string, receiver *value.Value, args []value.Value) (value.Value, error) {
	all := args
	if receiver != nil {
		all = append([]value.Value{*receiver}, args...)
	}
	switch name {
	case "size":
		return builtinSize(arg(all, 0))
	case "contains":
		return builtinContains(arg(all, 0), arg(all, 1))
	case "startsWith":
		return requireStrings2(all, strings.HasPrefix)
	case "endsWith":
		return requireStrings2(all, strings.HasSuffix)
	case "matches":
		return builtinMatches(arg(all, 0), arg(all, 1))
	case "lower":
		return value.Str(strings.ToLower(arg(all, 0).AsString())), nil
	case "upper":
		return value.Str(strings.ToUpper(arg(all, 0).AsString())), nil
	case "trim":
		return value.Str(strings.TrimSpace(arg(all, 0).AsString())), nil
	case "abs":
		return builtinAbs(arg(all, 0))
	case "min":
		return builtinMinMax(all, false)
	case "max":
		return builtinMinMax(all, true)
	case "ceil":
		return builtinRound(arg(all, 0), (numeric.Decimal).Ceil)
	case "floor":
		return builtinRound(arg(all, 0), (numeric.Decimal).Floor)
	case "round":
		return builtinRound(arg(all, 0), (numeric.Decimal).Round)
	case "mul_div":
		return builtinMulDiv(all)
	case "int":
		return builtinInt(arg(all, 0))
	case "uint":
		return builtinUint(arg(all, 0))
	case "double":
		return builtinDouble(arg(all, 0))
	case "string":
		return builtinString(arg(all, 0))
	case "bool":
		return value.Bool(arg(all, 0).Truthy()), nil
	case "type":
		return value.Str(arg(all, 0).TypeName()), nil
	case "exists":
		return builtinExistsAll(arg(all, 0), false)
	case "all":
		return builtinExistsAll(arg(all, 0), true)
	case "to_atomic":
		return builtinToAtomic(all)
	case "to_human":
		return builtinToHuman(all)
	default:
		return value.Value{}, fmt.Errorf("%w: %q", ErrUnknownBuiltin, name)
	}
}

func arg(all []value.Value, i int) value.Value {
	if i < len(all) {
		return all[i]
	}
	return value.Null()
}

func requireStrings2(all []value.Value, f func(string, string) bool) (value.Value, error) {
	if len(all) < 2 {
		return value.Value{}, fmt.Errorf("%w: expected 2 string args", ErrWrongArgCount)
	}
	return value.Bool(f(all[0].AsString(), all[1].AsString())), nil
}

func builtinSize(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindString:
		return value.IntFromInt64(int64(len([]rune(v.AsString())))), nil
	case value.KindList:
		return value.IntFromInt64(int64(len(v.AsList()))), nil
	case value.KindMap:
		return value.IntFromInt64(int64(len(v.AsMap()))), nil
	default:
		return value.Value{}, fmt.Errorf("%w: size() requires string/list/map", ErrTypeMismatch)
	}
}

func builtinContains(container, item value.Value) (value.Value, error) {
	switch container.Kind() {
	case value.KindString:
		return value.Bool(strings.Contains(container.AsString(), item.AsString())), nil
	case value.KindList:
		for _, e := range container.AsList() {
			if value.Equal(e, item) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	default:
		return value.Value{}, fmt.Errorf("%w: contains() requires string or list", ErrTypeMismatch)
	}
}

func builtinMatches(s, pattern value.Value) (value.Value, error) {
	re, err := compileRegex("^(?:" + pattern.AsString() + ")$")
	if err != nil {
		return value.Value{}, err
	}
	return value.Bool(re.MatchString(s.AsString())), nil
}

func builtinAbs(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindInt:
		return value.Int(new(big.Int).Abs(v.AsInt())), nil
	case value.KindDecimal:
		return value.Dec(v.AsDecimal().Abs()), nil
	default:
		return value.Value{}, fmt.Errorf("%w: abs() requires numeric", ErrTypeMismatch)
	}
}

func builtinMinMax(all []value.Value, wantMax bool) (value.Value, error) {
	if len(all) == 0 {
		return value.Value{}, fmt.Errorf("%w: min/max require at least 1 arg", ErrWrongArgCount)
	}
	best := all[0]
	for _, v := range all[1:] {
		cmpResult, err := compareOp(BinGt, v, best)
		if err != nil {
			return value.Value{}, err
		}
		if cmpResult.AsBool() == wantMax {
			best = v
		}
	}
	return best, nil
}

func builtinRound(v value.Value, f func(numeric.Decimal) numeric.Decimal) (value.Value, error) {
	switch v.Kind() {
	case value.KindInt:
		return v, nil
	case value.KindDecimal:
		return value.Dec(f(v.AsDecimal())), nil
	default:
		return value.Value{}, fmt.Errorf("%w: requires numeric", ErrTypeMismatch)
	}
}

func builtinMulDiv(all []value.Value) (value.Value, error) {
	if len(all) != 3 {
		return value.Value{}, fmt.Errorf("%w: mul_div() requires 3 args", ErrWrongArgCount)
	}
	a, b, d := all[0], all[1], all[2]
	if a.Kind() != value.KindInt || b.Kind() != value.KindInt || d.Kind() != value.KindInt {
		return value.Value{}, fmt.Errorf("%w: mul_div() is integer-only", ErrTypeMismatch)
	}
	if d.AsInt().Sign() == 0 {
		return value.Value{}, numeric.ErrDivisionByZero
	}
	prod := new(big.Int).Mul(a.AsInt(), b.AsInt())
	q := new(big.Int).Quo(prod, d.AsInt())
	return value.Int(q), nil
}

func builtinInt(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindInt:
		return v, nil
	case value.KindBool:
		if v.AsBool() {
			return value.IntFromInt64(1), nil
		}
		return value.IntFromInt64(0), nil
	case value.KindDecimal:
		d := v.AsDecimal()
		if d.Scale() == 0 {
			return value.Int(d.Mantissa()), nil
		}
		return value.Value{}, numeric.ErrNonExactDivision
	case value.KindString:
		n := new(big.Int)
		if _, ok := n.SetString(v.AsString(), 10); ok {
			return value.Int(n), nil
		}
		return value.Value{}, fmt.Errorf("%w: %q is not an integer", numeric.ErrInvalidDecimalLiteral, v.AsString())
	default:
		return value.Value{}, fmt.Errorf("%w: cannot coerce %s to int", ErrTypeMismatch, v.Kind())
	}
}

func builtinUint(v value.Value) (value.Value, error) {
	iv, err := builtinInt(v)
	if err != nil {
		return value.Value{}, err
	}
	return value.Int(new(big.Int).Abs(iv.AsInt())), nil
}

func builtinDouble(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindDecimal:
		return v, nil
	case value.KindInt:
		return value.Dec(numeric.FromAtomicInt(v.AsInt(), 0)), nil
	case value.KindString:
		d, err := numeric.Parse(v.AsString())
		if err != nil {
			return value.Value{}, err
		}
		return value.Dec(d), nil
	default:
		return value.Value{}, fmt.Errorf("%w: cannot coerce %s to decimal", ErrTypeMismatch, v.Kind())
	}
}

func builtinString(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindString:
		return v, nil
	case value.KindInt:
		return value.Str(v.AsInt().String()), nil
	case value.KindDecimal:
		return value.Str(v.AsDecimal().String()), nil
	case value.KindBool:
		if v.AsBool() {
			return value.Str("true"), nil
		}
		return value.Str("false"), nil
	case value.KindNull:
		return value.Str("null"), nil
	default:
		return value.Value{}, fmt.Errorf("%w: cannot coerce %s to string", ErrTypeMismatch, v.Kind())
	}
}

func builtinExistsAll(v value.Value, wantAll bool) (value.Value, error) {
	if v.Kind() != value.KindList {
		return value.Value{}, fmt.Errorf("%w: exists/all require a list", ErrTypeMismatch)
	}
	items := v.AsList()
	if wantAll {
		for _, item := range items {
			if !item.Truthy() {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil
	}
	for _, item := range items {
		if item.Truthy() {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

func builtinToAtomic(all []value.Value) (value.Value, error) {
	if len(all) != 2 {
		return value.Value{}, fmt.Errorf("%w: to_atomic() requires 2 args", ErrWrongArgCount)
	}
	amount := all[0]
	decimals, err := decimalsFromArg(all[1])
	if err != nil {
		return value.Value{}, err
	}
	var d numeric.Decimal
	switch amount.Kind() {
	case value.KindString:
		d, err = numeric.Parse(amount.AsString())
		if err != nil {
			return value.Value{}, err
		}
	case value.KindDecimal:
		d = amount.AsDecimal()
	case value.KindInt:
		d = numeric.FromAtomicInt(amount.AsInt(), 0)
	default:
		return value.Value{}, fmt.Errorf("%w: to_atomic() amount must be numeric", ErrTypeMismatch)
	}
	atomic, err := d.ToAtomicInt(decimals)
	if err != nil {
		return value.Value{}, err
	}
	return value.Int(atomic), nil
}

func builtinToHuman(all []value.Value) (value.Value, error) {
	if len(all) != 2 {
		return value.Value{}, fmt.Errorf("%w: to_human() requires 2 args", ErrWrongArgCount)
	}
	atomicV := all[0]
	decimals, err := decimalsFromArg(all[1])
	if err != nil {
		return value.Value{}, err
	}
	var atomic *big.Int
	switch atomicV.Kind() {
	case value.KindInt:
		atomic = atomicV.AsInt()
	case value.KindString:
		atomic = new(big.Int)
		if _, ok := atomic.SetString(atomicV.AsString(), 10); !ok {
			return value.Value{}, fmt.Errorf("%w: %q is not an integer", numeric.ErrInvalidDecimalLiteral, atomicV.AsString())
		}
	default:
		return value.Value{}, fmt.Errorf("%w: to_human() atomic must be int or numeric string", ErrTypeMismatch)
	}
	d := numeric.FromAtomicInt(atomic, decimals)
	return value.Str(d.String()), nil
}

func decimalsFromArg(v value.Value) (int, error) {
	switch v.Kind() {
	case value.KindInt:
		return int(v.AsInt().Int64()), nil
	case value.KindMap:
		dv, ok := v.Get("decimals")
		if !ok || dv.Kind() != value.KindInt {
			return 0, fmt.Errorf("%w: expected {decimals: int}", ErrTypeMismatch)
		}
		return int(dv.AsInt().Int64()), nil
	default:
		return 0, fmt.Errorf("%w: decimals must be int or asset object", ErrTypeMismatch)
	}
}
