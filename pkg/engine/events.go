package engine

import "time"

// EventType is the closed set of lifecycle events a sweep emits
// (spec §4.J). Go identifiers are PascalCase; wire values stay
// snake_case for JSONL/trace compatibility.
type EventType string

const (
	EventCommandAccepted EventType = "command_accepted"
	EventCommandRejected EventType = "command_rejected"
	EventNodeBlocked     EventType = "node_blocked"
	EventNodeReady       EventType = "node_ready"
	EventNodeWaiting     EventType = "node_waiting"
	EventNodePaused      EventType = "node_paused"
	EventSkipped         EventType = "skipped"
	EventNeedUserConfirm EventType = "need_user_confirm"
	EventError           EventType = "error"
	EventSolverApplied   EventType = "solver_applied"
	EventEnginePaused    EventType = "engine_paused"
	EventTxConfirmed     EventType = "tx_confirmed"
)

// EventRecord is one entry in a run's append-only event log. Seq is
// monotonically increasing within a run and is the ordering key replay
// consumers rely on. Timestamp is wall-clock-agnostic: it is stamped by
// the caller (Runner.Clock) before Emit is called, never by the stream
// itself, so golden-file tests stay deterministic (spec §9).
type EventRecord struct {
	RunID     string
	Seq       uint64
	Timestamp time.Time
	Type      EventType
	NodeID    string
	Data      map[string]any
	Err       error
}

// EventStream is an append-only, monotonically sequenced log of
// EventRecords for a single sweep. Spec §4.J: "each invocation of the
// runner creates a fresh stream seeded with state.next_seq" — RunPlanOnce
// builds one of these per call rather than reusing one across
// invocations, so it carries no lock (the core is single-threaded,
// spec §5).
type EventStream struct {
	runID   string
	seq     uint64
	records []EventRecord
}

// NewEventStream builds a stream for runID whose first Emit produces
// seq startSeq (state.next_seq carried over from the prior sweep).
func NewEventStream(runID string, startSeq uint64) *EventStream {
	return &EventStream{runID: runID, seq: startSeq}
}

// Emit appends rec (stamping RunID and Seq; Timestamp must already be
// set by the caller) and returns the stamped record.
func (s *EventStream) Emit(rec EventRecord) EventRecord {
	rec.RunID = s.runID
	rec.Seq = s.seq
	s.seq++
	s.records = append(s.records, rec)
	return rec
}

// Records returns every event emitted so far, in emission order.
func (s *EventStream) Records() []EventRecord {
	out := make([]EventRecord, len(s.records))
	copy(out, s.records)
	return out
}

// NextSeq returns the sequence number the next Emit call will assign,
// i.e. the value to persist as state.next_seq.
func (s *EventStream) NextSeq() uint64 { return s.seq }
