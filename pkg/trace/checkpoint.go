package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/engine"
	"github.com/smilemakc/ais-go/pkg/resolver"
	"github.com/smilemakc/ais-go/pkg/value"
)

// CheckpointSchemaVersion is bumped whenever CheckpointDocument's shape
// changes in a way that breaks older checkpoints.
const CheckpointSchemaVersion = 2

var ErrCheckpointSchemaMismatch = errors.New("trace: checkpoint schema mismatch")

// PendingRetryDoc is the serializable form of engine.PendingRetry.
type PendingRetryDoc struct {
	Attempt     int    `json:"attempt"`
	IntervalMs  int64  `json:"interval_ms"`
	WaitedMs    int64  `json:"waited_ms"`
	MaxAttempts *int   `json:"max_attempts,omitempty"`
	Backoff     string `json:"backoff,omitempty"`
}

// CheckpointDocument is the serializable snapshot a run can be resumed
// from (spec §3 EngineRunnerState, §6 checkpoint format): the plan hash
// it was taken against, the runtime tree at the moment of the snapshot,
// and every field run_plan_once needs restored before its next sweep.
//
// ApprovedNodeIDs is not one of the spec's four named checkpoint
// invariants (plan_hash, paused_reason, seen_command_ids,
// pending_retries) but is carried anyway: without it, a NeedUserConfirm
// approval recorded by a user_confirm command would not survive a
// restore, breaking the approve-then-resume round trip (seed test #5).
type CheckpointDocument struct {
	SchemaVersion int       `json:"schema_version"`
	RunID         string    `json:"run_id"`
	TakenAt       time.Time `json:"taken_at"`
	PlanSchema    string    `json:"plan_schema"`
	PlanHash      string    `json:"plan_hash"`
	Runtime       any       `json:"runtime"`

	CompletedNodeIDs []string                   `json:"completed_node_ids"`
	ApprovedNodeIDs  []string                   `json:"approved_node_ids"`
	SeenCommandIDs   []string                   `json:"seen_command_ids"`
	PausedReason     string                     `json:"paused_reason"`
	PendingRetries   map[string]PendingRetryDoc `json:"pending_retries"`
	NextSeq          uint64                     `json:"next_seq"`
}

// HashPlan computes the hex SHA-256 of plan's canonical JSON encoding.
// encoding/json sorts map keys alphabetically, including the maps inside
// the value.Value trees that value.Value.MarshalJSON encodes, so this
// hash is stable across repeated compiles of the same document (spec §6).
func HashPlan(plan *documents.Plan) (string, error) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("trace: hash plan: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// BuildCheckpoint snapshots a RunnerState into a CheckpointDocument,
// redacting the runtime tree with r before it leaves process memory.
func BuildCheckpoint(state *engine.RunnerState, takenAt time.Time, r Redactor) (CheckpointDocument, error) {
	planHash, err := HashPlan(state.Plan)
	if err != nil {
		return CheckpointDocument{}, err
	}
	redacted := r.Redact(state.Rctx.Runtime())

	retries := make(map[string]PendingRetryDoc, len(state.PendingRetries))
	for id, pr := range state.PendingRetries {
		retries[id] = PendingRetryDoc{
			Attempt:     pr.Attempt,
			IntervalMs:  pr.IntervalMs,
			WaitedMs:    pr.WaitedMs,
			MaxAttempts: pr.MaxAttempts,
			Backoff:     pr.Backoff,
		}
	}

	return CheckpointDocument{
		SchemaVersion:    CheckpointSchemaVersion,
		RunID:            state.RunID,
		TakenAt:          takenAt,
		PlanSchema:       state.Plan.Schema,
		PlanHash:         planHash,
		Runtime:          redacted.ToInterface(),
		CompletedNodeIDs: append([]string(nil), state.CompletedNodeIDs...),
		ApprovedNodeIDs:  append([]string(nil), state.ApprovedNodeIDs...),
		SeenCommandIDs:   append([]string(nil), state.SeenCommandIDs...),
		PausedReason:     state.PausedReason,
		PendingRetries:   retries,
		NextSeq:          state.NextSeq,
	}, nil
}

// MarshalCheckpoint serializes doc as JSON.
func MarshalCheckpoint(doc CheckpointDocument) ([]byte, error) {
	return json.Marshal(doc)
}

// UnmarshalCheckpoint parses raw JSON into a CheckpointDocument,
// rejecting a schema version newer than this package understands.
func UnmarshalCheckpoint(raw []byte) (CheckpointDocument, error) {
	var doc CheckpointDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return CheckpointDocument{}, fmt.Errorf("trace: decode checkpoint: %w", err)
	}
	if doc.SchemaVersion > CheckpointSchemaVersion {
		return CheckpointDocument{}, fmt.Errorf("%w: checkpoint version %d, support up to %d", ErrCheckpointSchemaMismatch, doc.SchemaVersion, CheckpointSchemaVersion)
	}
	return doc, nil
}

// ErrPlanHashMismatch is returned by RestoreRunnerState when the plan
// passed in was not compiled from the same source as the one the
// checkpoint was taken against.
var ErrPlanHashMismatch = errors.New("trace: plan hash does not match checkpoint")

// RestoreRunnerState rebuilds a RunnerState from a checkpoint against
// plan, restoring the runtime tree, completed/approved node sets,
// dedup'd command ids, paused_reason, and pending_retries. It refuses to
// restore against a plan whose hash does not match doc.PlanHash — plan
// nodes are keyed by id, so a stale or edited plan would otherwise
// silently restore nonsensical node state.
func RestoreRunnerState(runID string, plan *documents.Plan, doc CheckpointDocument) (*engine.RunnerState, error) {
	if doc.PlanHash != "" {
		gotHash, err := HashPlan(plan)
		if err != nil {
			return nil, err
		}
		if gotHash != doc.PlanHash {
			return nil, ErrPlanHashMismatch
		}
	}

	runtimeValue, err := value.FromInterface(doc.Runtime)
	if err != nil {
		return nil, fmt.Errorf("trace: restore runtime: %w", err)
	}
	rctx := resolver.WithRuntime(runtimeValue)

	retries := make(map[string]engine.PendingRetry, len(doc.PendingRetries))
	for id, pr := range doc.PendingRetries {
		retries[id] = engine.PendingRetry{
			Attempt:     pr.Attempt,
			IntervalMs:  pr.IntervalMs,
			WaitedMs:    pr.WaitedMs,
			MaxAttempts: pr.MaxAttempts,
			Backoff:     pr.Backoff,
		}
	}

	state := engine.RestoreRunnerState(
		runID, plan, rctx,
		doc.CompletedNodeIDs, doc.ApprovedNodeIDs, doc.SeenCommandIDs,
		doc.PausedReason, retries, doc.NextSeq,
	)
	return state, nil
}
