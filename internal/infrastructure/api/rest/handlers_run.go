package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appengine "github.com/smilemakc/ais-go/internal/application/engine"
	pkgengine "github.com/smilemakc/ais-go/pkg/engine"
	"github.com/smilemakc/ais-go/pkg/value"
)

// RunHandlers exposes start/advance/checkpoint/events over a plan run.
type RunHandlers struct {
	manager *appengine.Manager
}

func NewRunHandlers(manager *appengine.Manager) *RunHandlers {
	return &RunHandlers{manager: manager}
}

type startRunRequest struct {
	PlanID  string      `json:"plan_id"`
	Runtime interface{} `json:"runtime"`
}

// Start runs an already compiled plan: it loads the named plan and performs its
// first sweep (spec §4.G), returning Completed/Paused/Stopped. A Paused
// run is resumed with POST /runs/:id/advance.
func (h *RunHandlers) Start(c *gin.Context) {
	var req startRunRequest
	if !bindJSON(c, &req) {
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		respondAPIError(c, NewAPIError("INVALID_ID", "plan_id must be a valid uuid", http.StatusBadRequest))
		return
	}

	_, plan, err := h.manager.GetPlan(c.Request.Context(), planID)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	runtime := value.Null()
	if req.Runtime != nil {
		runtime, err = value.FromInterface(req.Runtime)
		if err != nil {
			respondAPIError(c, NewAPIError("INVALID_RUNTIME", err.Error(), http.StatusBadRequest))
			return
		}
	}

	run, report, err := h.manager.StartRun(c.Request.Context(), planID, plan, runtime)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"run_id": run.ID,
		"status": report.Status,
		"events": len(report.Events),
	})
}

type patchRequest struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

type commandRequest struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	NodeID   string         `json:"node_id"`
	Decision string         `json:"decision"`
	Reason   string         `json:"reason"`
	Provider string         `json:"provider"`
	Patches  []patchRequest `json:"patches"`
}

type advanceRunRequest struct {
	Commands []commandRequest `json:"commands"`
}

// Advance applies any submitted commands (e.g. a user_confirm approving
// a node the previous sweep paused on NeedUserConfirm) and performs one
// more sweep of a Paused run (spec §4.G). Seed test #5's approve-then-
// resume round trip goes through this endpoint.
func (h *RunHandlers) Advance(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req advanceRunRequest
	if !bindJSON(c, &req) {
		return
	}

	row, _, err := h.manager.GetCheckpoint(c.Request.Context(), id)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	_, plan, err := h.manager.GetPlan(c.Request.Context(), row.PlanID)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	cmds := make([]pkgengine.CommandEnvelope, 0, len(req.Commands))
	for _, cr := range req.Commands {
		env := pkgengine.CommandEnvelope{
			ID:       cr.ID,
			Type:     pkgengine.CommandType(cr.Type),
			NodeID:   cr.NodeID,
			Decision: cr.Decision,
			Reason:   cr.Reason,
			Provider: cr.Provider,
		}
		if env.ID == "" {
			env.ID = uuid.NewString()
		}
		for _, p := range cr.Patches {
			v, err := value.FromInterface(p.Value)
			if err != nil {
				respondAPIError(c, NewAPIError("INVALID_PATCH", err.Error(), http.StatusBadRequest))
				return
			}
			env.Patches = append(env.Patches, pkgengine.Patch{Path: p.Path, Value: v})
		}
		cmds = append(cmds, env)
	}

	run, report, err := h.manager.AdvanceRun(c.Request.Context(), id, plan, cmds)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"run_id": run.ID,
		"status": report.Status,
		"events": len(report.Events),
	})
}

// GetCheckpoint returns the latest checkpoint document for a run.
func (h *RunHandlers) GetCheckpoint(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	row, doc, err := h.manager.GetCheckpoint(c.Request.Context(), id)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"run_id":      row.ID,
		"status":      row.Status,
		"started_at":  row.StartedAt,
		"finished_at": row.FinishedAt,
		"checkpoint":  doc,
	})
}

// ListEvents returns a run's append-only event log.
func (h *RunHandlers) ListEvents(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	events, err := h.manager.ListEvents(c.Request.Context(), id)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	respondList(c, http.StatusOK, events, len(events), len(events), 0)
}
