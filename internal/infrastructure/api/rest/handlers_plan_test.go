package rest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appengine "github.com/smilemakc/ais-go/internal/application/engine"
	"github.com/smilemakc/ais-go/internal/infrastructure/storage/models"
	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/executor"
	"github.com/smilemakc/ais-go/pkg/policy"
	"github.com/smilemakc/ais-go/pkg/solver"
	"github.com/smilemakc/ais-go/pkg/trace"
)

// fakePlanRepo/fakeRunRepo are the rest package's own in-memory
// repository stand-ins, mirroring the ones internal/application/engine
// uses for its own Manager tests.

type fakePlanRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*models.PlanModel
}

func newFakePlanRepo() *fakePlanRepo { return &fakePlanRepo{plans: map[uuid.UUID]*models.PlanModel{}} }

func (r *fakePlanRepo) Create(ctx context.Context, plan *models.PlanModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	r.plans[plan.ID] = plan
	return nil
}

func (r *fakePlanRepo) Get(ctx context.Context, id uuid.UUID) (*models.PlanModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (r *fakePlanRepo) List(ctx context.Context, limit, offset int) ([]*models.PlanModel, error) {
	return nil, nil
}

type fakeRunRepo struct{}

func (fakeRunRepo) Create(ctx context.Context, run *models.RunModel) error { return nil }
func (fakeRunRepo) UpdateCheckpoint(ctx context.Context, runID uuid.UUID, checkpoint []byte, status string) error {
	return nil
}
func (fakeRunRepo) Finish(ctx context.Context, runID uuid.UUID, status string) error { return nil }
func (fakeRunRepo) Get(ctx context.Context, id uuid.UUID) (*models.RunModel, error) {
	return nil, sql.ErrNoRows
}
func (fakeRunRepo) AppendEvents(ctx context.Context, events []*models.RunEventModel) error {
	return nil
}
func (fakeRunRepo) ListEvents(ctx context.Context, runID uuid.UUID) ([]*models.RunEventModel, error) {
	return nil, nil
}

func newTestPlanHandlers() (*PlanHandlers, *fakePlanRepo) {
	plans := newFakePlanRepo()
	router := executor.NewRouter()
	router.Register("default", "*", &executor.EVMCallExecutor{ChainID: "eth:1"})
	manager := appengine.NewManager(plans, fakeRunRepo{}, router, trace.Default, policy.EnforcementOptions{}, solver.Context{})
	return NewPlanHandlers(manager), plans
}

const testWorkflowYAML = `
schema: v1
name: swap
version: "1"
nodes:
  - id: a
    type: action_ref
    protocol: erc20@1
    action: transfer
    chain: "eth:1"
    args:
      amount: {lit: 1}
`

const testProtocolYAML = `
id: erc20
version: "1"
actions:
  transfer:
    execution:
      "*":
        method: transfer
`

func TestNodeIDs_ShouldReturnNodeIDsInPlanOrder(t *testing.T) {
	plan := &documents.Plan{Nodes: []documents.PlanNode{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, []string{"a", "b"}, nodeIDs(plan))
}

func TestPlanHandlers_Compile_ShouldPersistPlan_WhenWorkflowIsValid(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handlers, _ := newTestPlanHandlers()
	engine := gin.New()
	engine.POST("/api/v1/plans", handlers.Compile)

	body, _ := json.Marshal(compilePlanRequest{
		SourceName:   "swap.yaml",
		WorkflowYAML: testWorkflowYAML,
		ProtocolYAML: []string{testProtocolYAML},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
}

func TestPlanHandlers_Compile_ShouldReject_WhenWorkflowYAMLMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handlers, _ := newTestPlanHandlers()
	engine := gin.New()
	engine.POST("/api/v1/plans", handlers.Compile)

	body, _ := json.Marshal(compilePlanRequest{SourceName: "swap.yaml"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlanHandlers_Get_ShouldReturnNotFound_WhenPlanUnknown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handlers, _ := newTestPlanHandlers()
	engine := gin.New()
	engine.GET("/api/v1/plans/:id", handlers.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
