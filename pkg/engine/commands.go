package engine

import (
	"sort"

	"github.com/google/uuid"

	"github.com/smilemakc/ais-go/pkg/value"
)

// CommandType is the closed set of external commands a caller can feed
// into a sweep (spec §4.G phase 1).
type CommandType string

const (
	CommandApplyPatches   CommandType = "apply_patches"
	CommandUserConfirm    CommandType = "user_confirm"
	CommandCancel         CommandType = "cancel"
	CommandSelectProvider CommandType = "select_provider"
)

// Patch is a single runtime write proposed by a command or the solver:
// Path is a resolver ref path, Value the tree to merge/set at that path.
type Patch struct {
	Path  string
	Value value.Value
}

// CommandEnvelope is a single external command, identified by a stable
// id so CommandDeduper can discard a duplicate delivery idempotently.
// The fields populated depend on Type: apply_patches uses Patches,
// user_confirm uses NodeID/Decision/Reason, cancel uses Reason,
// select_provider uses NodeID/Provider.
type CommandEnvelope struct {
	ID       string
	Type     CommandType
	Patches  []Patch
	NodeID   string
	Decision string // user_confirm: "approve" | "deny"
	Reason   string
	Provider string
}

// NewApplyPatchesCommand builds an apply_patches envelope with a fresh id.
func NewApplyPatchesCommand(patches []Patch) CommandEnvelope {
	return CommandEnvelope{ID: uuid.NewString(), Type: CommandApplyPatches, Patches: patches}
}

// NewUserConfirmCommand builds a user_confirm envelope with a fresh id.
func NewUserConfirmCommand(nodeID, decision, reason string) CommandEnvelope {
	return CommandEnvelope{ID: uuid.NewString(), Type: CommandUserConfirm, NodeID: nodeID, Decision: decision, Reason: reason}
}

// NewCancelCommand builds a cancel envelope with a fresh id.
func NewCancelCommand(reason string) CommandEnvelope {
	return CommandEnvelope{ID: uuid.NewString(), Type: CommandCancel, Reason: reason}
}

// NewSelectProviderCommand builds a select_provider envelope with a fresh id.
// select_provider is reserved: phase 1 accepts and dedupes it but takes no
// runtime action (solver decisions drive provider selection within a sweep).
func NewSelectProviderCommand(nodeID, provider string) CommandEnvelope {
	return CommandEnvelope{ID: uuid.NewString(), Type: CommandSelectProvider, NodeID: nodeID, Provider: provider}
}

// CommandDeduper tracks which command ids have already been applied, so
// resubmitting the same envelope (e.g. after a transport retry, or
// replaying state.seen_command_ids across invocations) is a no-op rather
// than a second mutation. The core runner is single-threaded (spec §5),
// so this carries no lock.
type CommandDeduper struct {
	seen map[string]bool
}

// NewCommandDeduper seeds a deduper from state.seen_command_ids so a
// command already applied in a prior sweep is rejected again.
func NewCommandDeduper(seeded []string) *CommandDeduper {
	seen := make(map[string]bool, len(seeded))
	for _, id := range seeded {
		if id != "" {
			seen[id] = true
		}
	}
	return &CommandDeduper{seen: seen}
}

// Admit reports whether id has not been seen before, marking it seen as a
// side effect. A command with an empty id is never deduped.
func (d *CommandDeduper) Admit(id string) bool {
	if id == "" {
		return true
	}
	if d.seen[id] {
		return false
	}
	d.seen[id] = true
	return true
}

// SeenIDs returns every id admitted so far, sorted, for persisting back
// into state.seen_command_ids.
func (d *CommandDeduper) SeenIDs() []string {
	ids := make([]string, 0, len(d.seen))
	for id := range d.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
