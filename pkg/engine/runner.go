// Package engine implements the command-driven plan runner: a single
// sweep over a compiled documents.Plan that resolves each node's
// readiness against the live resolver.Context, consults the solver and
// policy gate for anything not simply Ready, dispatches ready nodes to
// an executor.Executor, and folds their outputs back into the runtime
// tree (spec §4.G). RunPlanOnce performs exactly one sweep per call —
// the caller is responsible for looping and sleeping interval_ms
// between invocations (spec §1, §5, §9: "no wall-clock sleeping in
// core").
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smilemakc/ais-go/pkg/cel"
	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/executor"
	"github.com/smilemakc/ais-go/pkg/planner"
	"github.com/smilemakc/ais-go/pkg/policy"
	"github.com/smilemakc/ais-go/pkg/resolver"
	"github.com/smilemakc/ais-go/pkg/solver"
	"github.com/smilemakc/ais-go/pkg/value"
)

// ErrAssertFailed is the default assert-failure message when a node
// declares no assert_message.
var ErrAssertFailed = errors.New("engine: node assertion failed")

// RunStatus is the closed three-way outcome a single RunPlanOnce call
// reports (spec §4.G).
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusPaused    RunStatus = "paused"
	StatusStopped   RunStatus = "stopped"
)

// Report summarizes the sweep a single RunPlanOnce call performed.
type Report struct {
	RunID  string
	Status RunStatus
	Events []EventRecord
}

// Runner drives one sweep of a plan execution: it owns the executor
// dispatch target, the solver consulted on Blocked/NeedsDetect nodes,
// and the policy gate enforced before dispatch.
type Runner struct {
	Exec          executor.Executor
	Solver        solver.Solver
	PolicyOptions policy.EnforcementOptions
	SolverContext solver.Context

	// Cache, when set, is shared across every node's condition/assert/
	// until evaluation for the run instead of reparsing each expression
	// per sweep. Nil (the NewRunner default) reparses every time.
	Cache *cel.Cache

	// Clock supplies each emitted event's timestamp. It defaults to
	// time.Now in NewRunner; tests inject a fixed clock so golden-file
	// comparisons stay deterministic (spec §4.J, §9).
	Clock func() time.Time
}

// NewRunner builds a Runner dispatching to exec, with the default
// solver and a real wall clock.
func NewRunner(exec executor.Executor) *Runner {
	return &Runner{Exec: exec, Solver: solver.DefaultSolver{}, Clock: time.Now}
}

type sweepSignal int

const (
	signalContinue sweepSignal = iota
	signalProgressed
	signalPause
	signalStop
)

type emitFunc func(t EventType, nodeID string, data map[string]any, err error)

// RunPlanOnce performs exactly one sweep (spec §4.G): apply any pending
// commands, walk every not-yet-completed node once in document order,
// then report Completed/Paused/Stopped. Each call builds a fresh
// EventStream seeded from state.NextSeq and returns its records in
// Report.Events (spec §4.J): the runner keeps no event log of its own
// across invocations.
func (r *Runner) RunPlanOnce(ctx context.Context, state *RunnerState, cmds []CommandEnvelope) Report {
	clock := r.Clock
	if clock == nil {
		clock = time.Now
	}
	stream := NewEventStream(state.RunID, state.NextSeq)
	emit := func(t EventType, nodeID string, data map[string]any, err error) {
		stream.Emit(EventRecord{Timestamp: clock(), Type: t, NodeID: nodeID, Data: data, Err: err})
	}
	dedup := NewCommandDeduper(state.SeenCommandIDs)
	finalize := func(status RunStatus) Report {
		state.SeenCommandIDs = dedup.SeenIDs()
		state.NextSeq = stream.NextSeq()
		return Report{RunID: state.RunID, Status: status, Events: stream.Records()}
	}

	if err := ctx.Err(); err != nil {
		state.PausedReason = "context_cancelled"
		emit(EventEnginePaused, "", map[string]any{"reason": state.PausedReason}, err)
		return finalize(StatusPaused)
	}

	// Phase 1: apply commands.
	for _, cmd := range cmds {
		if !dedup.Admit(cmd.ID) {
			emit(EventCommandRejected, cmd.NodeID, map[string]any{"command_id": cmd.ID, "type": string(cmd.Type)}, nil)
			continue
		}
		emit(EventCommandAccepted, cmd.NodeID, map[string]any{"command_id": cmd.ID, "type": string(cmd.Type)}, nil)

		switch cmd.Type {
		case CommandApplyPatches:
			for _, p := range cmd.Patches {
				if err := applyPatch(state, p); err != nil {
					emit(EventError, "", map[string]any{"phase": "apply_patches", "path": p.Path}, err)
				}
			}
		case CommandUserConfirm:
			if cmd.Decision == "approve" {
				state.AddApproved(cmd.NodeID)
			} else {
				state.PausedReason = "user_confirm_denied"
			}
		case CommandCancel:
			state.PausedReason = "cancelled_by_command"
			emit(EventEnginePaused, "", map[string]any{"reason": state.PausedReason}, nil)
			return finalize(StatusPaused)
		case CommandSelectProvider:
			// Reserved: provider selection is driven by the solver
			// within a sweep, not by a standalone command.
		}
	}

	// Phase 2: node sweep, document order.
	progress := false
	for _, node := range state.Plan.Nodes {
		if state.IsCompleted(node.ID) {
			continue
		}
		switch r.processNode(ctx, state, node, emit) {
		case signalPause:
			return finalize(StatusPaused)
		case signalStop:
			return finalize(StatusStopped)
		case signalProgressed:
			progress = true
		}
	}

	// Phase 3: termination.
	if state.AllCompleted() {
		state.PausedReason = ""
		return finalize(StatusCompleted)
	}
	if !progress {
		state.PausedReason = "no_progress"
		emit(EventEnginePaused, "", map[string]any{"reason": state.PausedReason}, nil)
		return finalize(StatusPaused)
	}
	state.PausedReason = ""
	return finalize(StatusPaused)
}

// processNode evaluates one node's readiness and, if Ready, drives it
// through simulate/policy-gate/dispatch/assert/until (spec §4.G steps
// b-l). It never touches the command phase.
func (r *Runner) processNode(ctx context.Context, state *RunnerState, node documents.PlanNode, emit emitFunc) sweepSignal {
	readiness := planner.GetNodeReadiness(node, state.DependencyStatuses(), state.Rctx)

	switch readiness.State {
	case planner.NotReady:
		return signalContinue
	case planner.Skip:
		state.MarkCompleted(node.ID, NodeStatusSkipped)
		emit(EventSkipped, node.ID, map[string]any{"reason": "condition_false"}, nil)
		return signalProgressed
	case planner.Blocked:
		if len(readiness.MissingRefs) == 0 && readiness.Err != nil {
			reason := fmt.Sprintf("condition_failed:%s", node.ID)
			if errors.Is(readiness.Err, planner.ErrDependencyFailed) {
				reason = fmt.Sprintf("dependency_failed:%s", node.ID)
			}
			state.PausedReason = reason
			emit(EventError, node.ID, map[string]any{"phase": "readiness"}, readiness.Err)
			emit(EventEnginePaused, "", map[string]any{"reason": reason}, nil)
			return signalPause
		}
		emit(EventNodeBlocked, node.ID, map[string]any{"missing_refs": readiness.MissingRefs}, nil)
		return r.consultSolver(state, node, readiness, emit)
	case planner.NeedsDetect:
		emit(EventNodeBlocked, node.ID, map[string]any{"needs_detect": readiness.DetectKinds}, nil)
		return r.consultSolver(state, node, readiness, emit)
	case planner.Ready:
	default:
		return signalContinue
	}

	emit(EventNodeReady, node.ID, nil, nil)
	return r.dispatchReadyNode(ctx, state, node, emit)
}

// consultSolver runs the configured Solver against a Blocked or
// NeedsDetect node (spec §4.G step c) and applies its decision.
func (r *Runner) consultSolver(state *RunnerState, node documents.PlanNode, readiness planner.Readiness, emit emitFunc) sweepSignal {
	sv := r.Solver
	if sv == nil {
		sv = solver.DefaultSolver{}
	}
	result, err := sv.Solve(node, readiness, r.SolverContext)
	if err != nil {
		reason := fmt.Sprintf("solver_error:%s", node.ID)
		state.PausedReason = reason
		emit(EventError, node.ID, map[string]any{"phase": "solver"}, err)
		emit(EventEnginePaused, "", map[string]any{"reason": reason}, nil)
		return signalPause
	}
	switch result.Decision {
	case solver.DecisionApplyPatches:
		for _, p := range result.Patches {
			if perr := applyPatch(state, Patch{Path: p.Path, Value: p.Value}); perr != nil {
				emit(EventError, node.ID, map[string]any{"phase": "solver_apply_patches", "path": p.Path}, perr)
			}
		}
		emit(EventSolverApplied, node.ID, map[string]any{"decision": string(result.Decision)}, nil)
		return signalProgressed
	case solver.DecisionSelectProvider:
		emit(EventSolverApplied, node.ID, map[string]any{"decision": string(result.Decision), "provider": result.Provider}, nil)
		return signalProgressed
	case solver.DecisionNeedUserConfirm:
		reason := fmt.Sprintf("need_user_confirm:%s", node.ID)
		state.PausedReason = reason
		emit(EventNeedUserConfirm, node.ID, map[string]any{"reason": result.Reason}, nil)
		emit(EventEnginePaused, "", map[string]any{"reason": reason}, nil)
		return signalPause
	default: // solver.DecisionNoop
		return signalContinue
	}
}

// dispatchReadyNode runs steps e-l of spec §4.G for a node readiness
// already reported Ready: preflight simulate, policy gate, dispatch,
// writes, assert, until/retry.
func (r *Runner) dispatchReadyNode(ctx context.Context, state *RunnerState, node documents.PlanNode, emit emitFunc) sweepSignal {
	if err := applyCalculatedOverrides(node, state.Rctx, r.Cache); err != nil {
		return r.pauseExecutorError(state, node, "calculated_overrides", err, emit)
	}

	params, err := materializeParams(node, state.Rctx)
	if err != nil {
		return r.pauseExecutorError(state, node, "params", err, emit)
	}

	simulate := shouldSimulateNode(node, state.Plan)

	var output value.Value
	if simulate {
		output = value.Map(map[string]value.Value{
			"simulated": value.Bool(true),
			"node_id":   value.Str(node.ID),
		})
		if err := applyWrites(node, output, state.Rctx); err != nil {
			return r.pauseExecutorError(state, node, "write", err, emit)
		}
		emit(EventSkipped, node.ID, map[string]any{"reason": "preflight_simulate"}, nil)
	} else {
		execution, err := resolver.MaterializeValueRefs(node.Execution, state.Rctx, resolver.Options{RootOverrides: map[string]value.Value{"params": value.Map(params)}})
		if err != nil {
			return r.pauseExecutorError(state, node, "execution", err, emit)
		}

		req := executor.Request{NodeID: node.ID, Kind: node.Kind, Chain: node.Chain, Execution: execution, Params: params}

		gateIn := policy.ExtractGateInput(node, req)
		gateOut := policy.EnforceGate(gateIn, r.PolicyOptions)
		switch gateOut.Verdict {
		case policy.HardBlock:
			state.PausedReason = "hard_block"
			emit(EventError, node.ID, map[string]any{"reasons": gateOut.Reasons}, gateOut)
			emit(EventEnginePaused, "", map[string]any{"reason": state.PausedReason}, nil)
			return signalPause
		case policy.NeedUserConfirm:
			if !state.IsApproved(node.ID) {
				reason := fmt.Sprintf("need_user_confirm:%s", node.ID)
				state.PausedReason = reason
				emit(EventNeedUserConfirm, node.ID, map[string]any{"reasons": gateOut.Reasons}, nil)
				emit(EventEnginePaused, "", map[string]any{"reason": reason}, nil)
				return signalPause
			}
		}

		result, err := r.Exec.Execute(ctx, req)
		if err != nil {
			return r.pauseExecutorError(state, node, "dispatch", err, emit)
		}
		if err := applyWrites(node, result.Output, state.Rctx); err != nil {
			return r.pauseExecutorError(state, node, "write", err, emit)
		}
		if node.Kind == "action_ref" {
			emit(EventTxConfirmed, node.ID, map[string]any{"meta": result.Meta}, nil)
		}
		output = result.Output
	}

	return r.evaluateAssertAndUntil(node, state, output, outputStatus(simulate), emit)
}

func (r *Runner) pauseExecutorError(state *RunnerState, node documents.PlanNode, phase string, err error, emit emitFunc) sweepSignal {
	reason := fmt.Sprintf("executor_error:%s", node.ID)
	state.PausedReason = reason
	emit(EventError, node.ID, map[string]any{"phase": phase}, err)
	emit(EventEnginePaused, "", map[string]any{"reason": reason}, nil)
	return signalPause
}

// evaluateAssertAndUntil runs spec §4.G steps j-l against a node's
// freshly produced output (real or simulated).
func (r *Runner) evaluateAssertAndUntil(node documents.PlanNode, state *RunnerState, output value.Value, successStatus NodeRunStatus, emit emitFunc) sweepSignal {
	assertOK, assertErr := evalBoolRef(node.Assert, state.Rctx, map[string]value.Value{"output": output}, r.Cache)
	if assertErr != nil || !assertOK {
		msg := node.AssertMessage
		if msg == "" {
			msg = ErrAssertFailed.Error()
		}
		emit(EventError, node.ID, map[string]any{"phase": "assert", "message": msg, "assert": node.Assert.ToInterface()}, ErrAssertFailed)
		if onFailStop(node) {
			state.MarkCompleted(node.ID, NodeStatusFailed)
			emit(EventNodePaused, node.ID, map[string]any{"reason": "assert_failed_stop"}, nil)
			return signalStop
		}
		state.PausedReason = "assert_failed"
		emit(EventEnginePaused, "", map[string]any{"reason": state.PausedReason}, nil)
		return signalPause
	}

	untilOK, untilErr := evalBoolRef(node.Until, state.Rctx, map[string]value.Value{"output": output}, r.Cache)
	if untilErr != nil {
		state.PausedReason = "until_failed"
		emit(EventError, node.ID, map[string]any{"phase": "until"}, untilErr)
		emit(EventEnginePaused, "", map[string]any{"reason": state.PausedReason}, nil)
		return signalPause
	}
	if untilOK {
		delete(state.PendingRetries, node.ID)
		state.MarkCompleted(node.ID, successStatus)
		return signalProgressed
	}

	cfg, ok, cfgErr := ParseRetryConfig(node.Retry)
	if !ok || cfgErr != nil {
		state.PausedReason = "until_not_met"
		errForEvent := error(ErrRetryMissingConfig)
		if cfgErr != nil {
			errForEvent = cfgErr
		}
		emit(EventError, node.ID, map[string]any{"phase": "until"}, errForEvent)
		emit(EventEnginePaused, "", map[string]any{"reason": state.PausedReason}, nil)
		return signalPause
	}

	timeoutMs := int64(0)
	if node.TimeoutMs.Kind() == value.KindInt {
		timeoutMs = node.TimeoutMs.AsInt().Int64()
	}
	next, attemptErr := NextAttempt(state.PendingRetries[node.ID], cfg, timeoutMs)
	if attemptErr != nil {
		reason := "retry_exhausted"
		if errors.Is(attemptErr, ErrRetryTimeout) {
			reason = "retry_timeout"
		}
		state.PausedReason = reason
		emit(EventError, node.ID, map[string]any{"phase": "until", "attempt": next.Attempt}, attemptErr)
		emit(EventEnginePaused, "", map[string]any{"reason": reason}, nil)
		return signalPause
	}

	state.PendingRetries[node.ID] = next
	data := map[string]any{
		"reason":      "until_retry",
		"attempt":     next.Attempt,
		"interval_ms": next.IntervalMs,
		"waited_ms":   next.WaitedMs,
		"backoff":     next.Backoff,
	}
	if next.MaxAttempts != nil {
		data["max_attempts"] = *next.MaxAttempts
	}
	if timeoutMs > 0 {
		data["timeout_ms"] = timeoutMs
	}
	emit(EventNodeWaiting, node.ID, data, nil)
	return signalProgressed
}

func onFailStop(node documents.PlanNode) bool {
	return node.OnFail.Kind() == value.KindString && node.OnFail.AsString() == "stop"
}

func outputStatus(simulate bool) NodeRunStatus {
	if simulate {
		return NodeStatusSimulated
	}
	return NodeStatusSucceeded
}

// patchForbiddenPrefixes guards the runtime namespaces the engine owns:
// a command or solver patch targeting a node's own output or calculated
// override namespace would silently corrupt bookkeeping the next sweep
// depends on, so it is rejected rather than applied.
var patchForbiddenPrefixes = []string{"nodes.", "calculated."}

func runtimePatchAllowed(path string) bool {
	for _, prefix := range patchForbiddenPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// applyPatch merges p into the runtime tree under the runtime-patch
// guard (spec §4.G phase 1 apply_patches): a forbidden path fails this
// patch only, the caller decides whether that is fatal to the sweep.
func applyPatch(state *RunnerState, p Patch) error {
	if !runtimePatchAllowed(p.Path) {
		return fmt.Errorf("engine: patch to %q targets a reserved runtime namespace", p.Path)
	}
	return state.Rctx.MergeRef(p.Path, p.Value)
}

// shouldSimulateNode resolves the effective dry-run flag for a node: an
// explicit per-node `simulate` wins, otherwise the plan-level
// `meta.preflight.simulate` applies, otherwise false. Only these two
// boolean flags are read: node.Preflight, node or plan Extensions, and
// map-valued (per-node-id) simulate settings are not consulted.
func shouldSimulateNode(node documents.PlanNode, plan *documents.Plan) bool {
	if documents.HasField(node.Simulate) {
		if node.Simulate.Kind() == value.KindBool {
			return node.Simulate.AsBool()
		}
	}
	if plan != nil && documents.HasField(plan.Meta.Preflight) {
		if sim, ok := plan.Meta.Preflight.Get("simulate"); ok && sim.Kind() == value.KindBool {
			return sim.AsBool()
		}
	}
	return false
}

// applyCalculatedOverrides evaluates node's calculated_overrides in
// their precomputed dependency order, writing each result to
// "calculated.<name>" in the runtime tree so later overrides and the
// node's own execution block can reference earlier ones.
func applyCalculatedOverrides(node documents.PlanNode, rctx *resolver.Context, cache *cel.Cache) error {
	for _, name := range node.CalculatedOverrideOrder {
		entry, ok := node.CalculatedOverrides[name]
		if !ok {
			continue
		}
		exprField, _ := entry.Get("expr")
		ref, ok, err := resolver.ParseValueRefLike(exprField)
		if err != nil {
			return fmt.Errorf("calculated_overrides[%s]: %w", name, err)
		}
		if !ok {
			continue
		}
		v, err := resolver.Evaluate(ref, rctx, resolver.Options{Cache: cache})
		if err != nil {
			return fmt.Errorf("calculated_overrides[%s]: %w", name, err)
		}
		if err := rctx.SetRef("calculated."+name, v); err != nil {
			return fmt.Errorf("calculated_overrides[%s]: %w", name, err)
		}
	}
	return nil
}

// applyWrites projects output into the runtime tree according to
// node.Writes, defaulting to a single "set" at nodes.<id>.outputs. For a
// query node writing to that default path, an "outputs" key in the
// result is written one level up, so consumers read
// nodes.<id>.outputs.<key> directly.
func applyWrites(node documents.PlanNode, output value.Value, rctx *resolver.Context) error {
	writes := node.Writes
	if len(writes) == 0 {
		writes = documents.DefaultWrites(node.ID)
	}
	isQuery := node.Kind == "query_ref" || node.Source.Query != ""
	for _, w := range writes {
		out := output
		if isQuery && w.Path == "nodes."+node.ID+".outputs" {
			if inner, ok := output.Get("outputs"); ok {
				out = inner
			}
		}
		if w.Mode == "merge" {
			if err := rctx.MergeRef(w.Path, out); err != nil {
				return err
			}
			continue
		}
		if err := rctx.SetRef(w.Path, out); err != nil {
			return err
		}
	}
	return nil
}

// evalBoolRef evaluates a ValueRef-shaped condition/assert/until field,
// treating an absent field as true (vacuously satisfied). overrides
// shadows root path segments the same way resolver.Options.RootOverrides
// does — used to expose a node's just-produced output to its own
// assert/until expressions before it has been written anywhere in the
// runtime tree.
func evalBoolRef(field value.Value, rctx *resolver.Context, overrides map[string]value.Value, cache *cel.Cache) (bool, error) {
	if !documents.HasField(field) {
		return true, nil
	}
	ref, ok, err := resolver.ParseValueRefLike(field)
	if err != nil {
		return false, err
	}
	if !ok {
		return field.Truthy(), nil
	}
	v, err := resolver.Evaluate(ref, rctx, resolver.Options{RootOverrides: overrides, Cache: cache})
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

func materializeParams(node documents.PlanNode, rctx *resolver.Context) (map[string]value.Value, error) {
	params := make(map[string]value.Value, len(node.BindingsParams))
	for k, v := range node.BindingsParams {
		rv, err := resolver.MaterializeValueRefs(v, rctx, resolver.Options{})
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		params[k] = rv
	}
	return params, nil
}
