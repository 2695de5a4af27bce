// Package engine wires pkg/engine's single-sweep runner against
// persistence: it compiles and stores plans, drives one run_plan_once
// sweep per call, and checkpoints/replays state through the run
// repository. It plays the role the teacher's own application/engine
// package plays for its DAG executor, adapted to a sweep-based runner
// instead of a wave-based one — StartRun and AdvanceRun each perform
// exactly one sweep; the caller (a client of cmd/server's
// POST /runs/:id/advance route) is responsible for re-invoking
// AdvanceRun on an interval while a run
// stays Paused (spec §1, §5, §9).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/ais-go/internal/domain/repository"
	"github.com/smilemakc/ais-go/internal/infrastructure/storage/models"
	"github.com/smilemakc/ais-go/pkg/cel"
	"github.com/smilemakc/ais-go/pkg/documents"
	pkgengine "github.com/smilemakc/ais-go/pkg/engine"
	"github.com/smilemakc/ais-go/pkg/executor"
	"github.com/smilemakc/ais-go/pkg/planner"
	"github.com/smilemakc/ais-go/pkg/policy"
	"github.com/smilemakc/ais-go/pkg/resolver"
	"github.com/smilemakc/ais-go/pkg/solver"
	"github.com/smilemakc/ais-go/pkg/trace"
	"github.com/smilemakc/ais-go/pkg/value"
)

// CompileOptions is re-exported so callers need only import this
// package to drive a compile; it is identical to planner.CompileOptions.
type CompileOptions = planner.CompileOptions

// ConditionCacheSize bounds the shared cel.Cache every Manager-driven
// run evaluates Condition/Until/Assert expressions against. Sized the
// same as the teacher's ConditionCache default capacity.
const ConditionCacheSize = 100

// Manager is the single place cmd/server's REST handlers go through to
// compile, sweep, and inspect plans. It owns no per-run state of its
// own beyond the shared expression cache; everything else round-trips
// through the repositories via a checkpoint between calls.
type Manager struct {
	plans     repository.PlanRepository
	runs      repository.RunRepository
	router    *executor.Router
	exprCache *cel.Cache
	redaction trace.Mode

	policyOptions policy.EnforcementOptions
	solverContext solver.Context
}

// NewManager builds a Manager over the given repositories and executor
// router, enforcing policyOptions and consulting the solver with
// solverContext on every sweep it drives.
func NewManager(plans repository.PlanRepository, runs repository.RunRepository, router *executor.Router, redaction trace.Mode, policyOptions policy.EnforcementOptions, solverContext solver.Context) *Manager {
	return &Manager{
		plans:         plans,
		runs:          runs,
		router:        router,
		exprCache:     cel.NewCache(ConditionCacheSize),
		redaction:     redaction,
		policyOptions: policyOptions,
		solverContext: solverContext,
	}
}

// CompilePlan compiles a workflow document against the given protocol
// registry and persists the result, returning the stored PlanModel.
func (m *Manager) CompilePlan(ctx context.Context, sourceName string, doc documents.WorkflowDocument, opts CompileOptions) (*models.PlanModel, *documents.Plan, error) {
	plan, err := planner.CompileWorkflow(doc, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("compile workflow: %w", err)
	}

	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal compiled plan: %w", err)
	}

	row := &models.PlanModel{
		Schema:     plan.Schema,
		SourceName: sourceName,
		NodeCount:  len(plan.Nodes),
		Document:   raw,
	}
	if err := m.plans.Create(ctx, row); err != nil {
		return nil, nil, err
	}
	return row, plan, nil
}

// GetPlan loads a previously compiled plan by ID.
func (m *Manager) GetPlan(ctx context.Context, id uuid.UUID) (*models.PlanModel, *documents.Plan, error) {
	row, err := m.plans.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	plan := &documents.Plan{}
	if err := json.Unmarshal(row.Document, plan); err != nil {
		return nil, nil, fmt.Errorf("decode stored plan %s: %w", id, err)
	}
	return row, plan, nil
}

func (m *Manager) newRunner() *pkgengine.Runner {
	runner := pkgengine.NewRunner(m.router)
	runner.Cache = m.exprCache
	runner.PolicyOptions = m.policyOptions
	runner.SolverContext = m.solverContext
	return runner
}

// StartRun creates a run row and performs its first sweep (spec §4.G).
// The returned Report.Status is Completed, Paused, or Stopped; a Paused
// run is left with its checkpoint persisted and FinishedAt unset, ready
// for a later AdvanceRun call.
func (m *Manager) StartRun(ctx context.Context, planID uuid.UUID, plan *documents.Plan, runtime value.Value) (*models.RunModel, pkgengine.Report, error) {
	run := &models.RunModel{PlanID: planID, Status: "running"}
	if err := m.runs.Create(ctx, run); err != nil {
		return nil, pkgengine.Report{}, err
	}

	rctx := resolver.WithRuntime(runtime)
	state := pkgengine.NewRunnerState(run.ID.String(), plan, rctx)

	report, err := m.sweep(ctx, run, plan, state, nil)
	return run, report, err
}

// AdvanceRun loads a Paused run's latest checkpoint, restores its state
// against plan, optionally applies cmds (e.g. a user_confirm approving a
// NeedUserConfirm node), and performs exactly one more sweep. Calling
// this repeatedly on an interval is how a run that paused on a policy
// gate, a solver NeedUserConfirm, or an until/retry wait makes further
// progress — the spec's "no wall-clock sleeping in core" means the
// interval is the caller's responsibility, not the runner's.
func (m *Manager) AdvanceRun(ctx context.Context, runID uuid.UUID, plan *documents.Plan, cmds []pkgengine.CommandEnvelope) (*models.RunModel, pkgengine.Report, error) {
	run, doc, err := m.GetCheckpoint(ctx, runID)
	if err != nil {
		return nil, pkgengine.Report{}, err
	}
	if run.FinishedAt != nil {
		return run, pkgengine.Report{}, fmt.Errorf("application/engine: run %s already finished with status %q", runID, run.Status)
	}

	state, err := trace.RestoreRunnerState(runID.String(), plan, doc)
	if err != nil {
		return run, pkgengine.Report{}, fmt.Errorf("restore run %s: %w", runID, err)
	}

	report, err := m.sweep(ctx, run, plan, state, cmds)
	return run, report, err
}

// sweep performs one RunPlanOnce call, then persists the resulting
// checkpoint and appends the sweep's events, shared by StartRun and
// AdvanceRun.
func (m *Manager) sweep(ctx context.Context, run *models.RunModel, plan *documents.Plan, state *pkgengine.RunnerState, cmds []pkgengine.CommandEnvelope) (pkgengine.Report, error) {
	runner := m.newRunner()
	report := runner.RunPlanOnce(ctx, state, cmds)

	redactor := trace.Redactor{Mode: m.redaction}
	checkpoint, err := trace.BuildCheckpoint(state, time.Now(), redactor)
	if err != nil {
		return report, fmt.Errorf("build checkpoint: %w", err)
	}
	raw, err := trace.MarshalCheckpoint(checkpoint)
	if err != nil {
		return report, fmt.Errorf("marshal checkpoint: %w", err)
	}

	status := string(report.Status)
	if err := m.runs.UpdateCheckpoint(ctx, run.ID, raw, status); err != nil {
		return report, err
	}
	if report.Status == pkgengine.StatusCompleted || report.Status == pkgengine.StatusStopped {
		if err := m.runs.Finish(ctx, run.ID, status); err != nil {
			return report, err
		}
	}

	events := make([]*models.RunEventModel, 0, len(report.Events))
	for _, rec := range report.Events {
		dataRaw, err := json.Marshal(rec.Data)
		if err != nil {
			return report, fmt.Errorf("marshal event data: %w", err)
		}
		ev := &models.RunEventModel{
			RunID:     run.ID,
			Seq:       rec.Seq,
			Type:      string(rec.Type),
			NodeID:    rec.NodeID,
			Data:      dataRaw,
			Timestamp: rec.Timestamp,
		}
		if rec.Err != nil {
			ev.ErrorText = rec.Err.Error()
		}
		events = append(events, ev)
	}
	if len(events) > 0 {
		if err := m.runs.AppendEvents(ctx, events); err != nil {
			return report, err
		}
	}

	run.Status = status
	run.Checkpoint = raw
	return report, nil
}

// GetCheckpoint loads and decodes the latest checkpoint for a run.
func (m *Manager) GetCheckpoint(ctx context.Context, runID uuid.UUID) (*models.RunModel, trace.CheckpointDocument, error) {
	row, err := m.runs.Get(ctx, runID)
	if err != nil {
		return nil, trace.CheckpointDocument{}, err
	}
	if len(row.Checkpoint) == 0 {
		return row, trace.CheckpointDocument{}, nil
	}
	doc, err := trace.UnmarshalCheckpoint(row.Checkpoint)
	if err != nil {
		return row, trace.CheckpointDocument{}, fmt.Errorf("decode checkpoint for run %s: %w", runID, err)
	}
	return row, doc, nil
}

// ListEvents returns the stored event log for a run.
func (m *Manager) ListEvents(ctx context.Context, runID uuid.UUID) ([]*models.RunEventModel, error) {
	return m.runs.ListEvents(ctx, runID)
}
