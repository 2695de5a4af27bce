// Package solver recommends what the engine runner should do about a
// node readiness reported Blocked or NeedsDetect: propose runtime
// patches from known candidates, hand off to a single detected
// provider, or defer to a human via NeedUserConfirm (spec §4.I).
package solver

import (
	"sort"
	"strings"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/planner"
	"github.com/smilemakc/ais-go/pkg/value"
)

// Decision is the closed set of actions a Solver can recommend for a
// single node on a single sweep (spec §4.I).
type Decision string

const (
	DecisionNoop            Decision = "noop"
	DecisionApplyPatches    Decision = "apply_patches"
	DecisionNeedUserConfirm Decision = "need_user_confirm"
	DecisionSelectProvider  Decision = "select_provider"
)

// Patch is a single runtime write the solver proposes; the runner
// applies it through the same apply_patches guard a command uses.
type Patch struct {
	Path  string
	Value value.Value
}

// Context carries whatever candidate data a Solver needs to resolve a
// node's missing refs or detect stubs.
type Context struct {
	// ContractCandidates maps a bare contract name (the segment after
	// "contracts." in a missing ref path) to the value a patch should
	// write there.
	ContractCandidates map[string]value.Value
	// DetectProviderCandidates holds the provider ids a node's detect
	// stub narrowed down to, already filtered by the caller's own
	// provider-eligibility rules.
	DetectProviderCandidates []string
}

// Result is the solver's recommendation for a single node.
type Result struct {
	Decision Decision
	Patches  []Patch
	Reason   string
	Provider string
}

// Solver picks what the runner should do about a node whose readiness
// this sweep is not simply Ready (spec §4.G step c).
type Solver interface {
	Solve(node documents.PlanNode, readiness planner.Readiness, sctx Context) (Result, error)
}

// DefaultSolver implements the spec's default decision tree. The spec's
// literal wording phrases the entry condition as "if readiness.state !=
// Blocked, Noop", which reads as a binary Ready/Blocked readiness model.
// planner.ReadinessState instead carries NeedsDetect as a distinct state
// alongside Blocked (pkg/planner/readiness.go), so this adapts the tree
// to route both Blocked and NeedsDetect into solver consultation while
// preserving the spec's missing-ref-patch -> detect -> confirm/apply
// decision order for the Blocked case.
type DefaultSolver struct{}

func (DefaultSolver) Solve(node documents.PlanNode, readiness planner.Readiness, sctx Context) (Result, error) {
	switch readiness.State {
	case planner.NeedsDetect:
		return resolveDetect(sctx)
	case planner.Blocked:
		return resolveBlocked(readiness, sctx)
	default: // NotReady, Ready, Skip
		return Result{Decision: DecisionNoop}, nil
	}
}

func resolveBlocked(readiness planner.Readiness, sctx Context) (Result, error) {
	var patches []Patch
	var unresolved []string
	for _, ref := range readiness.MissingRefs {
		name, ok := contractNameFromRef(ref)
		if !ok {
			unresolved = append(unresolved, ref)
			continue
		}
		candidate, ok := sctx.ContractCandidates[name]
		if !ok {
			unresolved = append(unresolved, ref)
			continue
		}
		patches = append(patches, Patch{Path: ref, Value: candidate})
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return Result{Decision: DecisionNeedUserConfirm, Reason: "unresolved_refs:" + strings.Join(unresolved, ",")}, nil
	}
	if len(readiness.DetectKinds) > 0 {
		return resolveDetect(sctx)
	}
	if len(patches) > 0 {
		return Result{Decision: DecisionApplyPatches, Patches: patches}, nil
	}
	return Result{Decision: DecisionNeedUserConfirm, Reason: "blocked_no_safe_solver_action"}, nil
}

func resolveDetect(sctx Context) (Result, error) {
	switch len(sctx.DetectProviderCandidates) {
	case 0:
		return Result{Decision: DecisionNeedUserConfirm, Reason: "blocked_no_safe_solver_action"}, nil
	case 1:
		return Result{Decision: DecisionSelectProvider, Provider: sctx.DetectProviderCandidates[0]}, nil
	default:
		sorted := append([]string(nil), sctx.DetectProviderCandidates...)
		sort.Strings(sorted)
		return Result{Decision: DecisionNeedUserConfirm, Reason: "ambiguous_detect_providers:" + strings.Join(sorted, ",")}, nil
	}
}

// contractNameFromRef extracts name from a missing-ref path shaped
// "contracts.<name>..." — the only missing-ref family the default
// solver knows how to patch from known contract candidates. Any other
// shape is left unresolved so the runner falls back to NeedUserConfirm.
func contractNameFromRef(ref string) (string, bool) {
	const prefix = "contracts."
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	rest := ref[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '.' || rest[i] == '[' {
			return rest[:i], true
		}
	}
	return rest, true
}
