package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smilemakc/ais-go/pkg/cel"
	"github.com/smilemakc/ais-go/pkg/value"
)

// ValueRefKind tags the ValueRef variant. Exactly one variant is
// populated per ValueRef, matching the document model's untagged-union
// wire shape: {lit|ref|cel|detect|object|array}.
type ValueRefKind int

const (
	KindLit ValueRefKind = iota
	KindRef
	KindCel
	KindDetect
	KindObject
	KindArray
)

// DetectSpec describes a provider-detection stub that requires an async
// resolver to complete.
type DetectSpec struct {
	Kind        string
	Provider    string
	Candidates  []string
	Constraints map[string]value.Value
}

// ValueRef is the typed sum-type wrapper for literals, runtime
// references, CEL expressions, detect stubs, and nested object/array
// builds (spec §3).
type ValueRef struct {
	Kind ValueRefKind

	Lit  value.Value
	Ref  string
	Cel  string

	Detect DetectSpec

	Object map[string]ValueRef
	Array  []ValueRef
}

// Eval error sentinels.
var (
	ErrCelEvaluationFailed = errors.New("cel evaluation failed")
	ErrNeedDetect          = errors.New("needs detect")
)

// MissingRefError reports a ref-path lookup failure, preserving the
// path and the underlying resolver error for Readiness' accounting.
type MissingRefError struct {
	Path   string
	Source error
}

func (e *MissingRefError) Error() string {
	return fmt.Sprintf("missing ref %q: %v", e.Path, e.Source)
}
func (e *MissingRefError) Unwrap() error { return e.Source }

// NeedDetectError signals that a Detect variant requires the async
// resolver path.
type NeedDetectError struct{ Kind string }

func (e *NeedDetectError) Error() string { return fmt.Sprintf("%v: %s", ErrNeedDetect, e.Kind) }
func (e *NeedDetectError) Unwrap() error { return ErrNeedDetect }

// CelEvaluationError wraps a CEL parse/eval failure.
type CelEvaluationError struct {
	Expression string
	Reason     string
}

func (e *CelEvaluationError) Error() string {
	return fmt.Sprintf("%v: %q: %s", ErrCelEvaluationFailed, e.Expression, e.Reason)
}
func (e *CelEvaluationError) Unwrap() error { return ErrCelEvaluationFailed }

// Options carries root overrides that shadow the first path segment of
// a Ref/Cel lookup — used to inject resolved params when evaluating
// nested ValueRefs (e.g. "params" during readiness/materialization).
type Options struct {
	RootOverrides map[string]value.Value

	// Cache, when set, parses condition/assert/until expressions
	// through a shared cel.Cache instead of reparsing them on every
	// evaluation. Nil preserves the uncached behavior.
	Cache *cel.Cache
}

// DetectResolver resolves a Detect stub asynchronously.
type DetectResolver interface {
	Resolve(ctx context.Context, spec DetectSpec, rctx *Context, opts Options) (value.Value, error)
}

// Evaluate synchronously resolves a ValueRef; Detect fails with
// NeedDetectError.
func Evaluate(ref ValueRef, rctx *Context, opts Options) (value.Value, error) {
	switch ref.Kind {
	case KindLit:
		return ref.Lit, nil
	case KindRef:
		return resolveRefWithOverrides(ref.Ref, rctx, opts)
	case KindCel:
		return evaluateCel(ref.Cel, rctx, opts)
	case KindDetect:
		return value.Value{}, &NeedDetectError{Kind: ref.Detect.Kind}
	case KindObject:
		out := make(map[string]value.Value, len(ref.Object))
		for k, child := range ref.Object {
			v, err := Evaluate(child, rctx, opts)
			if err != nil {
				return value.Value{}, err
			}
			out[k] = v
		}
		return value.Map(out), nil
	case KindArray:
		out := make([]value.Value, len(ref.Array))
		for i, child := range ref.Array {
			v, err := Evaluate(child, rctx, opts)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = v
		}
		return value.List(out), nil
	default:
		return value.Value{}, fmt.Errorf("resolver: unknown ValueRef kind")
	}
}

// EvaluateAsync resolves a ValueRef, delegating Detect to resolver.
func EvaluateAsync(ctx context.Context, ref ValueRef, rctx *Context, opts Options, resolver DetectResolver) (value.Value, error) {
	switch ref.Kind {
	case KindDetect:
		if resolver == nil {
			return value.Value{}, &NeedDetectError{Kind: ref.Detect.Kind}
		}
		return resolver.Resolve(ctx, ref.Detect, rctx, opts)
	case KindObject:
		out := make(map[string]value.Value, len(ref.Object))
		for k, child := range ref.Object {
			v, err := EvaluateAsync(ctx, child, rctx, opts, resolver)
			if err != nil {
				return value.Value{}, err
			}
			out[k] = v
		}
		return value.Map(out), nil
	case KindArray:
		out := make([]value.Value, len(ref.Array))
		for i, child := range ref.Array {
			v, err := EvaluateAsync(ctx, child, rctx, opts, resolver)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = v
		}
		return value.List(out), nil
	default:
		return Evaluate(ref, rctx, opts)
	}
}

func splitFirstSegment(path string) (string, string) {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	i := strings.IndexAny(path, ".[")
	if i < 0 {
		return path, ""
	}
	if path[i] == '[' {
		return path[:i], path[i:]
	}
	return path[:i], path[i+1:]
}

// resolveRefWithOverrides shadows the first path segment with
// RootOverrides before delegating to the context.
func resolveRefWithOverrides(path string, rctx *Context, opts Options) (value.Value, error) {
	head, rest := splitFirstSegment(path)
	if root, ok := opts.RootOverrides[head]; ok {
		if rest == "" {
			return root, nil
		}
		segments, err := parseRestSegments(rest)
		if err != nil {
			return value.Value{}, &MissingRefError{Path: path, Source: err}
		}
		v, err := walkValueByPath(root, segments)
		if err != nil {
			return value.Value{}, &MissingRefError{Path: path, Source: err}
		}
		return v, nil
	}
	v, err := rctx.GetRef(path)
	if err != nil {
		return value.Value{}, &MissingRefError{Path: path, Source: err}
	}
	return v, nil
}

// parseRestSegments parses a path remainder that may begin with a
// bracket index (e.g. "[0].x") or a plain dotted continuation.
func parseRestSegments(rest string) ([]PathSegment, error) {
	if rest == "" {
		return nil, nil
	}
	if rest[0] == '[' {
		segs, err := parseTokenWithIndexes(rest)
		if err != nil {
			return nil, err
		}
		return segs, nil
	}
	return splitRefPath(rest)
}

// buildCelContext merges the runtime's top-level map with root
// overrides into a cel.Context for expression evaluation.
func buildCelContext(rctx *Context, opts Options) cel.Context {
	ctx := cel.Context{}
	if rctx.runtime.Kind() == value.KindMap {
		for k, v := range rctx.runtime.AsMap() {
			ctx[k] = v
		}
	}
	keys := make([]string, 0, len(opts.RootOverrides))
	for k := range opts.RootOverrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ctx[k] = opts.RootOverrides[k]
	}
	return ctx
}

func evaluateCel(expr string, rctx *Context, opts Options) (value.Value, error) {
	parse := cel.Parse
	if opts.Cache != nil {
		parse = opts.Cache.ParseCached
	}
	ast, err := parse(expr)
	if err != nil {
		return value.Value{}, &CelEvaluationError{Expression: expr, Reason: err.Error()}
	}
	ctx := buildCelContext(rctx, opts)
	v, err := cel.Eval(ast, ctx)
	if err != nil {
		return value.Value{}, &CelEvaluationError{Expression: expr, Reason: err.Error()}
	}
	return v, nil
}
