package resolver

import (
	"fmt"

	"github.com/smilemakc/ais-go/pkg/value"
)

// ParseValueRefLike recognizes a value.Value as a ValueRef if it is a
// map with exactly one key drawn from {lit, ref, cel, detect, object,
// array}. This mirrors compile_workflow.rs's collect_ref_paths_and_cel
// / readiness.rs's parse_value_ref_like: only genuine ValueRef-shaped
// wrappers are recognized, not arbitrary nested objects.
func ParseValueRefLike(v value.Value) (ValueRef, bool, error) {
	if v.Kind() != value.KindMap {
		return ValueRef{}, false, nil
	}
	m := v.AsMap()
	if len(m) != 1 {
		return ValueRef{}, false, nil
	}
	for k, inner := range m {
		switch k {
		case "lit":
			return ValueRef{Kind: KindLit, Lit: inner}, true, nil
		case "ref":
			if inner.Kind() != value.KindString {
				return ValueRef{}, false, fmt.Errorf("resolver: ref must be a string")
			}
			return ValueRef{Kind: KindRef, Ref: inner.AsString()}, true, nil
		case "cel":
			if inner.Kind() != value.KindString {
				return ValueRef{}, false, fmt.Errorf("resolver: cel must be a string")
			}
			return ValueRef{Kind: KindCel, Cel: inner.AsString()}, true, nil
		case "detect":
			spec, err := parseDetectSpec(inner)
			if err != nil {
				return ValueRef{}, false, err
			}
			return ValueRef{Kind: KindDetect, Detect: spec}, true, nil
		case "object":
			if inner.Kind() != value.KindMap {
				return ValueRef{}, false, fmt.Errorf("resolver: object must be a map")
			}
			out := make(map[string]ValueRef, len(inner.AsMap()))
			for ok, ov := range inner.AsMap() {
				child, isRef, err := ParseValueRefLike(ov)
				if err != nil {
					return ValueRef{}, false, err
				}
				if !isRef {
					child = ValueRef{Kind: KindLit, Lit: ov}
				}
				out[ok] = child
			}
			return ValueRef{Kind: KindObject, Object: out}, true, nil
		case "array":
			if inner.Kind() != value.KindList {
				return ValueRef{}, false, fmt.Errorf("resolver: array must be a list")
			}
			items := inner.AsList()
			out := make([]ValueRef, len(items))
			for i, item := range items {
				child, isRef, err := ParseValueRefLike(item)
				if err != nil {
					return ValueRef{}, false, err
				}
				if !isRef {
					child = ValueRef{Kind: KindLit, Lit: item}
				}
				out[i] = child
			}
			return ValueRef{Kind: KindArray, Array: out}, true, nil
		default:
			return ValueRef{}, false, nil
		}
	}
	return ValueRef{}, false, nil
}

func parseDetectSpec(v value.Value) (DetectSpec, error) {
	if v.Kind() != value.KindMap {
		return DetectSpec{}, fmt.Errorf("resolver: detect must be a map")
	}
	m := v.AsMap()
	spec := DetectSpec{}
	if kv, ok := m["kind"]; ok {
		spec.Kind = kv.AsString()
	}
	if pv, ok := m["provider"]; ok {
		spec.Provider = pv.AsString()
	}
	if cv, ok := m["candidates"]; ok && cv.Kind() == value.KindList {
		for _, c := range cv.AsList() {
			spec.Candidates = append(spec.Candidates, c.AsString())
		}
	}
	if con, ok := m["constraints"]; ok && con.Kind() == value.KindMap {
		spec.Constraints = con.AsMap()
	}
	return spec, nil
}

// WalkCollectValueRefs recursively collects every embedded ValueRef in a
// value tree, invoking visit for each. It only recurses into genuine
// ValueRef wrapper structures (object/array variants) and plain
// map/list containers, matching collect_value_refs_deep's behavior of
// treating non-ValueRef maps/lists as plain containers to keep walking.
func WalkCollectValueRefs(v value.Value, visit func(ValueRef)) error {
	ref, ok, err := ParseValueRefLike(v)
	if err != nil {
		return err
	}
	if ok {
		visit(ref)
		return walkValueRefChildren(ref, visit)
	}
	switch v.Kind() {
	case value.KindMap:
		for _, k := range v.SortedKeys() {
			child, _ := v.Get(k)
			if err := WalkCollectValueRefs(child, visit); err != nil {
				return err
			}
		}
	case value.KindList:
		for _, child := range v.AsList() {
			if err := WalkCollectValueRefs(child, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkValueRefChildren(ref ValueRef, visit func(ValueRef)) error {
	switch ref.Kind {
	case KindObject:
		for _, child := range ref.Object {
			visit(child)
			if err := walkValueRefChildren(child, visit); err != nil {
				return err
			}
		}
	case KindArray:
		for _, child := range ref.Array {
			visit(child)
			if err := walkValueRefChildren(child, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

// MaterializeValueRefs recursively walks a raw value tree (typically a
// node's execution block), replacing every embedded ValueRef with its
// resolved value while leaving plain containers and scalars untouched.
// This is the Go port of runner.rs's materialize_value_refs.
func MaterializeValueRefs(v value.Value, rctx *Context, opts Options) (value.Value, error) {
	ref, ok, err := ParseValueRefLike(v)
	if err != nil {
		return value.Value{}, err
	}
	if ok {
		return Evaluate(ref, rctx, opts)
	}
	switch v.Kind() {
	case value.KindMap:
		out := make(map[string]value.Value, len(v.AsMap()))
		for k, child := range v.AsMap() {
			cv, err := MaterializeValueRefs(child, rctx, opts)
			if err != nil {
				return value.Value{}, err
			}
			out[k] = cv
		}
		return value.Map(out), nil
	case value.KindList:
		items := v.AsList()
		out := make([]value.Value, len(items))
		for i, child := range items {
			cv, err := MaterializeValueRefs(child, rctx, opts)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = cv
		}
		return value.List(out), nil
	default:
		return v, nil
	}
}
