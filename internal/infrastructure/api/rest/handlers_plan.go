package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appengine "github.com/smilemakc/ais-go/internal/application/engine"
	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/planner"
)

// PlanHandlers exposes compile/get over a compiled plan.
type PlanHandlers struct {
	manager *appengine.Manager
}

func NewPlanHandlers(manager *appengine.Manager) *PlanHandlers {
	return &PlanHandlers{manager: manager}
}

// compilePlanRequest is the REST wire shape for a compile request: the
// workflow document and its supporting protocol documents, all as raw
// YAML text, matching the format documents.LoadWorkflowYAML/
// LoadProtocolYAML already parse.
type compilePlanRequest struct {
	SourceName   string   `json:"source_name"`
	WorkflowYAML string   `json:"workflow_yaml"`
	ProtocolYAML []string `json:"protocol_yaml"`
}

// Compile parses and compiles a workflow document against its
// supporting protocols, persisting the result.
func (h *PlanHandlers) Compile(c *gin.Context) {
	var req compilePlanRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.WorkflowYAML == "" {
		respondAPIError(c, NewAPIError("MISSING_PARAMETER", "workflow_yaml is required", http.StatusBadRequest))
		return
	}

	doc, err := documents.LoadWorkflowYAML([]byte(req.WorkflowYAML))
	if err != nil {
		respondAPIError(c, NewAPIError("INVALID_WORKFLOW", err.Error(), http.StatusBadRequest))
		return
	}

	registry := planner.ProtocolRegistry{}
	for _, raw := range req.ProtocolYAML {
		proto, err := documents.LoadProtocolYAML([]byte(raw))
		if err != nil {
			respondAPIError(c, NewAPIError("INVALID_PROTOCOL", err.Error(), http.StatusBadRequest))
			return
		}
		registry[proto.ID+"@"+proto.Version] = proto
	}

	row, plan, err := h.manager.CompilePlan(c.Request.Context(), req.SourceName, doc, planner.CompileOptions{Protocols: registry})
	if err != nil {
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, gin.H{
		"id":         row.ID,
		"schema":     plan.Schema,
		"node_count": len(plan.Nodes),
		"node_order": nodeIDs(plan),
	})
}

func nodeIDs(plan *documents.Plan) []string {
	ids := make([]string, len(plan.Nodes))
	for i, n := range plan.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Get loads a previously compiled plan's stored metadata.
func (h *PlanHandlers) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	row, plan, err := h.manager.GetPlan(c.Request.Context(), id)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"id":          row.ID,
		"schema":      row.Schema,
		"source_name": row.SourceName,
		"node_count":  row.NodeCount,
		"created_at":  row.CreatedAt,
		"node_order":  nodeIDs(plan),
	})
}
