package engine

import (
	"sort"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/planner"
	"github.com/smilemakc/ais-go/pkg/resolver"
)

// NodeRunStatus is the closed set of terminal states a plan node can be
// reported in (spec §4.G). It drives DependencyStatuses/Snapshot
// reporting; sweep control itself is driven by RunnerState's
// completed-node set.
type NodeRunStatus string

const (
	NodeStatusPending   NodeRunStatus = "pending"
	NodeStatusSucceeded NodeRunStatus = "succeeded"
	NodeStatusFailed    NodeRunStatus = "failed"
	NodeStatusSkipped   NodeRunStatus = "skipped"
	NodeStatusSimulated NodeRunStatus = "simulated"
)

// PendingRetry is one node's outstanding until/retry bookkeeping (spec
// §3 EngineRunnerState.pending_retries).
type PendingRetry struct {
	Attempt     int
	IntervalMs  int64
	WaitedMs    int64
	MaxAttempts *int
	Backoff     string
}

// RunnerState holds the full mutable state of one plan execution (spec
// §3 "EngineRunnerState"): the resolved runtime tree plus the
// bookkeeping a caller persists to a checkpoint and restores on the
// next run_plan_once invocation. The core runner is single-threaded and
// cooperative (spec §5: "no internal task queue"), so unlike the old
// multi-sweep implementation this carries no mutex.
type RunnerState struct {
	RunID string
	Plan  *documents.Plan
	Rctx  *resolver.Context

	CompletedNodeIDs []string
	ApprovedNodeIDs  []string
	SeenCommandIDs   []string
	PausedReason     string
	PendingRetries   map[string]PendingRetry
	NextSeq          uint64

	completed map[string]bool
	approved  map[string]bool
	status    map[string]NodeRunStatus
}

// NewRunnerState builds fresh run state for plan: no nodes completed, no
// commands seen, next_seq starting at zero.
func NewRunnerState(runID string, plan *documents.Plan, rctx *resolver.Context) *RunnerState {
	s := &RunnerState{
		RunID:          runID,
		Plan:           plan,
		Rctx:           rctx,
		PendingRetries: map[string]PendingRetry{},
		completed:      map[string]bool{},
		approved:       map[string]bool{},
		status:         map[string]NodeRunStatus{},
	}
	for _, n := range plan.Nodes {
		s.status[n.ID] = NodeStatusPending
	}
	return s
}

// RestoreRunnerState reconstructs run state from persisted checkpoint
// fields (spec §3/§6), rebuilding the internal completed/approved sets
// from CompletedNodeIDs/ApprovedNodeIDs. The checkpoint's field list
// carries no per-node status breakdown, so every restored completed node
// is reported Succeeded; a node actually skipped or simulated before
// checkpointing loses that distinction across a restore. This is a
// property of the spec's own checkpoint shape, not of this restore step.
func RestoreRunnerState(
	runID string,
	plan *documents.Plan,
	rctx *resolver.Context,
	completedNodeIDs, approvedNodeIDs, seenCommandIDs []string,
	pausedReason string,
	pendingRetries map[string]PendingRetry,
	nextSeq uint64,
) *RunnerState {
	s := NewRunnerState(runID, plan, rctx)
	s.SeenCommandIDs = append([]string(nil), seenCommandIDs...)
	s.PausedReason = pausedReason
	if pendingRetries != nil {
		s.PendingRetries = pendingRetries
	}
	s.NextSeq = nextSeq
	for _, id := range completedNodeIDs {
		s.MarkCompleted(id, NodeStatusSucceeded)
	}
	for _, id := range approvedNodeIDs {
		s.AddApproved(id)
	}
	return s
}

// IsCompleted reports whether id is in the completed-node set.
func (s *RunnerState) IsCompleted(id string) bool { return s.completed[id] }

// IsApproved reports whether id has a recorded user_confirm approval.
func (s *RunnerState) IsApproved(id string) bool { return s.approved[id] }

// MarkCompleted records id as completed with the given terminal status
// and inserts it into CompletedNodeIDs (sorted, deduplicated).
func (s *RunnerState) MarkCompleted(id string, status NodeRunStatus) {
	s.status[id] = status
	if s.completed[id] {
		return
	}
	s.completed[id] = true
	s.CompletedNodeIDs = insertSorted(s.CompletedNodeIDs, id)
}

// AddApproved records id as approved (user_confirm decision=="approve")
// and inserts it into ApprovedNodeIDs (sorted, deduplicated).
func (s *RunnerState) AddApproved(id string) {
	if s.approved[id] {
		return
	}
	s.approved[id] = true
	s.ApprovedNodeIDs = insertSorted(s.ApprovedNodeIDs, id)
}

// Status returns id's last-reported NodeRunStatus, Pending if unknown.
func (s *RunnerState) Status(id string) NodeRunStatus {
	if st, ok := s.status[id]; ok {
		return st
	}
	return NodeStatusPending
}

// DependencyStatuses builds the planner.DependencyStatus map the
// readiness check needs, translating each node's NodeRunStatus.
func (s *RunnerState) DependencyStatuses() map[string]planner.DependencyStatus {
	out := make(map[string]planner.DependencyStatus, len(s.status))
	for id, st := range s.status {
		switch st {
		case NodeStatusSucceeded, NodeStatusSimulated:
			out[id] = planner.DependencySucceeded
		case NodeStatusSkipped:
			out[id] = planner.DependencySkipped
		case NodeStatusFailed:
			out[id] = planner.DependencyFailed
		default:
			out[id] = planner.DependencyPending
		}
	}
	return out
}

// AllCompleted reports whether every plan node has been marked
// completed (spec §4.G phase 3, the "Completed" case).
func (s *RunnerState) AllCompleted() bool {
	for _, n := range s.Plan.Nodes {
		if !s.completed[n.ID] {
			return false
		}
	}
	return true
}

// Snapshot returns a read-only copy of every node's reported status, for
// checkpointing and diagnostics.
func (s *RunnerState) Snapshot() map[string]NodeRunStatus {
	out := make(map[string]NodeRunStatus, len(s.status))
	for id, st := range s.status {
		out[id] = st
	}
	return out
}

// FailedNodes returns the sorted ids of every node currently reported
// Failed.
func (s *RunnerState) FailedNodes() []string {
	var ids []string
	for id, st := range s.status {
		if st == NodeStatusFailed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func insertSorted(list []string, id string) []string {
	i := sort.SearchStrings(list, id)
	if i < len(list) && list[i] == id {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = id
	return list
}
