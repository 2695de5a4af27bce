package planner

import (
	"errors"
	"sort"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/resolver"
	"github.com/smilemakc/ais-go/pkg/value"
)

// DependencyStatus is the closed set of states a dependency node can be
// in from the perspective of a downstream readiness check.
type DependencyStatus int

const (
	DependencyPending DependencyStatus = iota
	DependencySucceeded
	DependencySkipped
	DependencyFailed
)

// ReadinessState is the closed set of outcomes get_node_readiness can
// produce for a single node on a given sweep.
type ReadinessState int

const (
	NotReady ReadinessState = iota
	Ready
	Skip
	Blocked
	NeedsDetect
)

func (s ReadinessState) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Skip:
		return "skip"
	case Blocked:
		return "blocked"
	case NeedsDetect:
		return "needs_detect"
	default:
		return "unknown"
	}
}

// Readiness is the result of evaluating a single node against the
// current runtime state.
type Readiness struct {
	State       ReadinessState
	MissingRefs []string
	DetectKinds []string
	Err         error
}

var ErrDependencyFailed = errors.New("planner: upstream dependency failed")

// GetNodeReadiness runs the two-phase readiness check from spec §4.G
// step b: first every dependency must have resolved (phase 1), then the
// node's condition and every ValueRef embedded in its params and
// execution block must resolve without a missing reference or pending
// detect stub (phase 2).
func GetNodeReadiness(node documents.PlanNode, depStatus map[string]DependencyStatus, rctx *resolver.Context) Readiness {
	for _, dep := range node.Deps {
		switch depStatus[dep] {
		case DependencyPending:
			return Readiness{State: NotReady}
		case DependencyFailed:
			return Readiness{State: Blocked, Err: ErrDependencyFailed}
		}
	}

	if documents.HasField(node.Condition) {
		ref, ok, err := resolver.ParseValueRefLike(node.Condition)
		if err != nil {
			return Readiness{State: Blocked, Err: err}
		}
		if ok {
			v, err := resolver.Evaluate(ref, rctx, resolver.Options{})
			if err != nil {
				if missing := asMissing(err); missing != "" {
					return Readiness{State: Blocked, MissingRefs: []string{missing}}
				}
				var nd *resolver.NeedDetectError
				if errors.As(err, &nd) {
					return Readiness{State: NeedsDetect, DetectKinds: []string{nd.Kind}}
				}
				return Readiness{State: Blocked, Err: err}
			}
			if !v.Truthy() {
				return Readiness{State: Skip}
			}
		}
	}

	missing := map[string]bool{}
	detect := map[string]bool{}
	var walkErr error
	visit := func(tree value.Value) {
		if walkErr != nil {
			return
		}
		walkErr = resolver.WalkCollectValueRefs(tree, func(ref resolver.ValueRef) {
			_, err := resolver.Evaluate(ref, rctx, resolver.Options{})
			if err == nil {
				return
			}
			if m := asMissing(err); m != "" {
				missing[m] = true
				return
			}
			var nd *resolver.NeedDetectError
			if errors.As(err, &nd) {
				detect[nd.Kind] = true
			}
		})
	}
	for _, v := range node.BindingsParams {
		visit(v)
	}
	visit(node.Execution)
	if walkErr != nil {
		return Readiness{State: Blocked, Err: walkErr}
	}

	if len(detect) > 0 {
		kinds := make([]string, 0, len(detect))
		for k := range detect {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		return Readiness{State: NeedsDetect, DetectKinds: kinds}
	}
	if len(missing) > 0 {
		paths := make([]string, 0, len(missing))
		for p := range missing {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		return Readiness{State: Blocked, MissingRefs: paths}
	}
	return Readiness{State: Ready}
}

func asMissing(err error) string {
	var missing *resolver.MissingRefError
	if errors.As(err, &missing) {
		return missing.Path
	}
	return ""
}
