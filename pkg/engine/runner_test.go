package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/executor"
	"github.com/smilemakc/ais-go/pkg/resolver"
	"github.com/smilemakc/ais-go/pkg/value"
)

func litRef(v value.Value) value.Value {
	return value.Map(map[string]value.Value{"lit": v})
}

func refRef(path string) value.Value {
	return value.Map(map[string]value.Value{"ref": value.Str(path)})
}

func echoExecutor() executor.Executor {
	return executor.ExecutorFunc(func(ctx context.Context, req executor.Request) (executor.Result, error) {
		amount := req.Params["amount"]
		return executor.Result{Output: value.Map(map[string]value.Value{"amount": amount})}, nil
	})
}

func freshRuntime() *resolver.Context {
	return resolver.WithRuntime(value.Map(map[string]value.Value{"nodes": value.Map(map[string]value.Value{})}))
}

func TestRunPlanOnce_CompletesInDependencyOrder_WithinOneSweep(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil),
			BindingsParams: map[string]value.Value{"amount": litRef(value.IntFromInt64(1))}},
		{ID: "b", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil), Deps: []string{"a"},
			BindingsParams: map[string]value.Value{"amount": refRef("nodes.a.outputs.amount")}},
	}}
	state := NewRunnerState("run-1", plan, freshRuntime())
	runner := NewRunner(echoExecutor())

	report := runner.RunPlanOnce(context.Background(), state, nil)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, NodeStatusSucceeded, state.Status("a"))
	assert.Equal(t, NodeStatusSucceeded, state.Status("b"))
}

func TestRunPlanOnce_SkipsOnFalseCondition(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil),
			Condition: litRef(value.Bool(false))},
	}}
	state := NewRunnerState("run-2", plan, freshRuntime())
	runner := NewRunner(echoExecutor())

	report := runner.RunPlanOnce(context.Background(), state, nil)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, NodeStatusSkipped, state.Status("a"))
}

func TestRunPlanOnce_PausesOnAssertFailure_WhenOnFailIsNotStop(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil),
			BindingsParams: map[string]value.Value{"amount": litRef(value.IntFromInt64(0))},
			Assert:         refRef("output.amount"), AssertMessage: "amount must be truthy"},
	}}
	state := NewRunnerState("run-3", plan, freshRuntime())
	runner := NewRunner(echoExecutor())

	report := runner.RunPlanOnce(context.Background(), state, nil)
	assert.Equal(t, StatusPaused, report.Status)
	assert.Equal(t, "assert_failed", state.PausedReason)
	assert.False(t, state.IsCompleted("a"))
}

func TestRunPlanOnce_StopsOnAssertFailure_WhenOnFailIsStop(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil),
			BindingsParams: map[string]value.Value{"amount": litRef(value.IntFromInt64(0))},
			Assert:         refRef("output.amount"), AssertMessage: "amount must be truthy",
			OnFail: value.Str("stop")},
	}}
	state := NewRunnerState("run-3b", plan, freshRuntime())
	runner := NewRunner(echoExecutor())

	report := runner.RunPlanOnce(context.Background(), state, nil)
	assert.Equal(t, StatusStopped, report.Status)
	assert.Equal(t, NodeStatusFailed, state.Status("a"))
}

func TestRunPlanOnce_PausesViaSolverNeedUserConfirm_OnUnresolvedMissingRef(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil),
			BindingsParams: map[string]value.Value{"amount": refRef("nodes.ghost.outputs.amount")}},
	}}
	state := NewRunnerState("run-4", plan, freshRuntime())
	runner := NewRunner(echoExecutor())

	report := runner.RunPlanOnce(context.Background(), state, nil)
	assert.Equal(t, StatusPaused, report.Status)
	assert.Equal(t, "need_user_confirm:a", state.PausedReason)
	assert.Equal(t, NodeStatusPending, state.Status("a"))
}

func TestRunPlanOnce_SimulatesWithoutMarkingSucceeded(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil), Simulate: value.Bool(true),
			BindingsParams: map[string]value.Value{"amount": litRef(value.IntFromInt64(1))}},
	}}
	state := NewRunnerState("run-5", plan, freshRuntime())
	runner := NewRunner(echoExecutor())

	report := runner.RunPlanOnce(context.Background(), state, nil)
	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, NodeStatusSimulated, state.Status("a"))
}

func TestRunPlanOnce_CancelCommandPausesImmediately(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil),
			BindingsParams: map[string]value.Value{"amount": litRef(value.IntFromInt64(1))}},
	}}
	state := NewRunnerState("run-6", plan, freshRuntime())
	runner := NewRunner(echoExecutor())

	report := runner.RunPlanOnce(context.Background(), state, []CommandEnvelope{NewCancelCommand("operator abort")})
	assert.Equal(t, StatusPaused, report.Status)
	assert.Equal(t, "cancelled_by_command", state.PausedReason)
	assert.False(t, state.IsCompleted("a"))
}

// TestRunPlanOnce_UntilRetryRequiresASecondSweep exercises seed test #4
// (spec §8): a node whose until condition is unmet on its first attempt
// must pause with node_waiting recorded, leaving the node incomplete, and
// only completes once a second RunPlanOnce call observes until true -
// RunPlanOnce never loops internally to retry within one call.
func TestRunPlanOnce_UntilRetryRequiresASecondSweep(t *testing.T) {
	var calls int32
	exec := executor.ExecutorFunc(func(ctx context.Context, req executor.Request) (executor.Result, error) {
		n := atomic.AddInt32(&calls, 1)
		return executor.Result{Output: value.Map(map[string]value.Value{"ready": value.Bool(n >= 2)})}, nil
	})

	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil),
			Until: refRef("output.ready"),
			Retry: value.Map(map[string]value.Value{"interval_ms": value.IntFromInt64(10)})},
	}}
	state := NewRunnerState("run-7", plan, freshRuntime())
	runner := NewRunner(exec)

	first := runner.RunPlanOnce(context.Background(), state, nil)
	assert.Equal(t, StatusPaused, first.Status)
	assert.False(t, state.IsCompleted("a"))
	pr, ok := state.PendingRetries["a"]
	require.True(t, ok)
	assert.Equal(t, 1, pr.Attempt)
	assert.EqualValues(t, 1, calls)

	second := runner.RunPlanOnce(context.Background(), state, nil)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.True(t, state.IsCompleted("a"))
	assert.EqualValues(t, 2, calls)
	_, stillPending := state.PendingRetries["a"]
	assert.False(t, stillPending)
}

func TestRunPlanOnce_EventsUseInjectedClock(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{
		{ID: "a", Kind: "action_ref", Chain: "eth:1", Execution: value.Map(nil),
			BindingsParams: map[string]value.Value{"amount": litRef(value.IntFromInt64(1))}},
	}}
	state := NewRunnerState("run-8", plan, freshRuntime())
	runner := NewRunner(echoExecutor())
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runner.Clock = func() time.Time { return fixed }

	report := runner.RunPlanOnce(context.Background(), state, nil)
	require.NotEmpty(t, report.Events)
	for _, rec := range report.Events {
		assert.Equal(t, "run-8", rec.RunID)
		assert.True(t, rec.Timestamp.Equal(fixed))
	}
}
