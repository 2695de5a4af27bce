package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PlanModel persists a compiled documents.Plan as opaque JSON alongside
// the identifiers a catalog query needs without deserializing it.
type PlanModel struct {
	bun.BaseModel `bun:"table:plans,alias:p"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Schema     string    `bun:"schema,notnull"`
	SourceName string    `bun:"source_name"`
	NodeCount  int       `bun:"node_count,notnull"`
	Document   []byte    `bun:"document,type:jsonb,notnull"` // json-encoded documents.Plan
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
