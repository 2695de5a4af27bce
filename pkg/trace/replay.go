package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/engine"
)

// eventRecordJSON is EventRecord's wire shape: error values don't round
// trip through JSON on their own, so Err is carried as a message string.
type eventRecordJSON struct {
	Seq       uint64           `json:"seq"`
	RunID     string           `json:"run_id"`
	Type      engine.EventType `json:"type"`
	NodeID    string           `json:"node_id"`
	Data      map[string]any   `json:"data,omitempty"`
	ErrMsg    string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func toJSONRecord(rec engine.EventRecord) eventRecordJSON {
	out := eventRecordJSON{
		Seq: rec.Seq, RunID: rec.RunID, Type: rec.Type,
		NodeID: rec.NodeID, Data: rec.Data, Timestamp: rec.Timestamp,
	}
	if rec.Err != nil {
		out.ErrMsg = rec.Err.Error()
	}
	return out
}

func fromJSONRecord(in eventRecordJSON) engine.EventRecord {
	rec := engine.EventRecord{
		Seq: in.Seq, RunID: in.RunID, Type: in.Type,
		NodeID: in.NodeID, Data: in.Data, Timestamp: in.Timestamp,
	}
	if in.ErrMsg != "" {
		rec.Err = errors.New(in.ErrMsg)
	}
	return rec
}

// WriteTraceJSONL writes records to w as newline-delimited JSON, one
// EventRecord per line, in Seq order.
func WriteTraceJSONL(w io.Writer, records []engine.EventRecord) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(toJSONRecord(rec)); err != nil {
			return fmt.Errorf("trace: encode event: %w", err)
		}
	}
	return nil
}

// ReplayTraceJSONL reads a newline-delimited JSON trace produced by
// WriteTraceJSONL back into an ordered slice of EventRecords.
func ReplayTraceJSONL(r io.Reader) ([]engine.EventRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out []engine.EventRecord
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var in eventRecordJSON
		if err := json.Unmarshal(line, &in); err != nil {
			return nil, fmt.Errorf("trace: decode event line: %w", err)
		}
		out = append(out, fromJSONRecord(in))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trace: scan trace: %w", err)
	}
	return out, nil
}

// NodeTimeline is the reconstructed lifecycle of a single node, derived
// purely from a run's event log — no re-execution involved.
type NodeTimeline struct {
	NodeID       string
	FinalStatus  engine.NodeRunStatus
	Attempts     int
	FirstEventAt time.Time
	LastEventAt  time.Time
	Errors       []string
}

// ReplayTraceEvents reconstructs each node's terminal status and attempt
// count from an ordered EventRecord log, for audit and post-mortem use
// without re-running the plan.
func ReplayTraceEvents(records []engine.EventRecord) map[string]*NodeTimeline {
	out := map[string]*NodeTimeline{}
	get := func(id string) *NodeTimeline {
		tl, ok := out[id]
		if !ok {
			tl = &NodeTimeline{NodeID: id}
			out[id] = tl
		}
		return tl
	}
	for _, rec := range records {
		if rec.NodeID == "" {
			continue
		}
		tl := get(rec.NodeID)
		if tl.FirstEventAt.IsZero() {
			tl.FirstEventAt = rec.Timestamp
		}
		tl.LastEventAt = rec.Timestamp
		switch rec.Type {
		case engine.EventNodeReady:
			tl.Attempts++
		case engine.EventNodeWaiting:
			tl.Attempts++
		case engine.EventTxConfirmed:
			tl.FinalStatus = engine.NodeStatusSucceeded
		case engine.EventSkipped:
			if reason, _ := rec.Data["reason"].(string); reason == "preflight_simulate" {
				tl.FinalStatus = engine.NodeStatusSimulated
			} else {
				tl.FinalStatus = engine.NodeStatusSkipped
			}
		case engine.EventNodePaused:
			tl.FinalStatus = engine.NodeStatusFailed
			if rec.Err != nil {
				tl.Errors = append(tl.Errors, rec.Err.Error())
			}
		case engine.EventError:
			if rec.Err != nil {
				tl.Errors = append(tl.Errors, rec.Err.Error())
			}
		}
	}
	return out
}

// DefaultMaxReplaySteps bounds ReplayFromCheckpoint's sweep loop when the
// caller supplies no explicit max_steps (spec §4.J, seed test #6).
const DefaultMaxReplaySteps = 128

// ReplayResult is the reason ReplayFromCheckpoint's sweep loop stopped.
type ReplayResult string

const (
	ReplayCompleted        ReplayResult = "completed"
	ReplayStopped          ReplayResult = "stopped"
	ReplayReachedUntilNode ReplayResult = "reached_until_node"
	ReplayStalled          ReplayResult = "stalled"
	ReplayMaxStepsReached  ReplayResult = "max_steps_reached"
)

// ReachedUntilNode reports that the replay loop stopped because the
// requested node reached a terminal status, as distinct from the run
// itself reaching a terminal status or stalling.
type ReachedUntilNode struct {
	NodeID string
	Status engine.NodeRunStatus
}

func (r ReachedUntilNode) Error() string {
	return fmt.Sprintf("trace: reached until_node %q (status=%s)", r.NodeID, r.Status)
}

// ReplayOutcome is what ReplayFromCheckpoint's loop produced.
type ReplayOutcome struct {
	Result ReplayResult
	Steps  int
	Events []engine.EventRecord
	Status engine.RunStatus

	// UntilNode is set only when Result == ReplayReachedUntilNode.
	UntilNode *ReachedUntilNode
}

// ReplayFromCheckpoint restores a RunnerState from doc against plan and
// resumes it by repeatedly calling runner.RunPlanOnce with no commands
// (spec §4.J, seed test #6), stopping as soon as one of:
//   - untilNode (if non-empty) reaches a terminal status -> ReplayReachedUntilNode
//   - the run itself reaches Completed or Stopped
//   - a sweep's paused_reason repeats unchanged from the previous sweep,
//     meaning no commands could possibly unstick it -> ReplayStalled
//   - maxSteps sweeps have run with none of the above -> ReplayMaxStepsReached
//
// maxSteps <= 0 defaults to DefaultMaxReplaySteps.
func ReplayFromCheckpoint(ctx context.Context, doc CheckpointDocument, plan *documents.Plan, runner *engine.Runner, untilNode string, maxSteps int) (*engine.RunnerState, ReplayOutcome, error) {
	if doc.PlanSchema != plan.Schema {
		return nil, ReplayOutcome{}, fmt.Errorf("trace: checkpoint plan schema %q does not match resumed plan %q", doc.PlanSchema, plan.Schema)
	}
	state, err := RestoreRunnerState(doc.RunID, plan, doc)
	if err != nil {
		return nil, ReplayOutcome{}, err
	}

	if maxSteps <= 0 {
		maxSteps = DefaultMaxReplaySteps
	}

	var allEvents []engine.EventRecord
	lastPausedReason := state.PausedReason
	firstSweep := true

	for step := 0; step < maxSteps; step++ {
		report := runner.RunPlanOnce(ctx, state, nil)
		allEvents = append(allEvents, report.Events...)

		if untilNode != "" && state.IsCompleted(untilNode) {
			return state, ReplayOutcome{
				Result: ReplayReachedUntilNode, Steps: step + 1, Events: allEvents, Status: report.Status,
				UntilNode: &ReachedUntilNode{NodeID: untilNode, Status: state.Status(untilNode)},
			}, nil
		}

		switch report.Status {
		case engine.StatusCompleted:
			return state, ReplayOutcome{Result: ReplayCompleted, Steps: step + 1, Events: allEvents, Status: report.Status}, nil
		case engine.StatusStopped:
			return state, ReplayOutcome{Result: ReplayStopped, Steps: step + 1, Events: allEvents, Status: report.Status}, nil
		}

		if !firstSweep && state.PausedReason != "" && state.PausedReason == lastPausedReason {
			return state, ReplayOutcome{Result: ReplayStalled, Steps: step + 1, Events: allEvents, Status: report.Status}, nil
		}
		lastPausedReason = state.PausedReason
		firstSweep = false
	}

	return state, ReplayOutcome{Result: ReplayMaxStepsReached, Steps: maxSteps, Events: allEvents, Status: engine.StatusPaused}, nil
}
