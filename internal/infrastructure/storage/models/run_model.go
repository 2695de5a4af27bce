package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RunModel tracks one plan execution and its latest checkpoint.
type RunModel struct {
	bun.BaseModel `bun:"table:runs,alias:r"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	PlanID     uuid.UUID  `bun:"plan_id,notnull"`
	Status     string     `bun:"status,notnull"` // "running" | "paused" | "completed" | "stopped"
	Checkpoint []byte     `bun:"checkpoint,type:jsonb"` // json-encoded trace.CheckpointDocument, redacted
	StartedAt  time.Time  `bun:"started_at,notnull,default:current_timestamp"`
	FinishedAt *time.Time `bun:"finished_at"`
}

// RunEventModel is one redacted engine.EventRecord persisted for replay.
type RunEventModel struct {
	bun.BaseModel `bun:"table:run_events,alias:re"`

	ID        int64     `bun:"id,pk,autoincrement"`
	RunID     uuid.UUID `bun:"run_id,notnull"`
	Seq       uint64    `bun:"seq,notnull"`
	Type      string    `bun:"type,notnull"`
	NodeID    string    `bun:"node_id"`
	Data      []byte    `bun:"data,type:jsonb"`
	ErrorText string    `bun:"error_text"`
	Timestamp time.Time `bun:"timestamp,notnull"`
}
