// Package executor defines the pluggable interface the engine runner
// uses to dispatch a compiled node's resolved execution spec to a
// chain, plus a chain/executor-type-keyed router implementation.
//
// Executors are responsible for carrying out a single node's action or
// query against a concrete chain. Custom executors (new chains, new
// executor types) are registered at runtime using Router.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smilemakc/ais-go/pkg/value"
)

// Request is the materialized execution spec (every ValueRef already
// resolved against the runtime) the engine hands to an Executor.
type Request struct {
	NodeID    string
	Kind      string // "action_ref" | "query_ref"
	Chain     string
	Execution value.Value
	Params    map[string]value.Value
	DryRun    bool
}

// Result is what an Executor returns for a single node execution.
type Result struct {
	Output value.Value
	Meta   map[string]value.Value
}

// Executor dispatches a single node's resolved execution request.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// ExecutorFunc adapts an ordinary function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// ExecutionContext carries run-scoped identifiers through to an
// Executor implementation that needs them for logging or tracing.
type ExecutionContext struct {
	RunID      string
	CommandID  string
	NodeID     string
	WorkflowID string
	Metadata   map[string]any
}

var ErrNoExecutorForChain = errors.New("executor: no executor registered for chain/type")

// chainExecutorKey pairs an executor_type with a chain selector.
type chainExecutorKey struct {
	ExecutorType string
	Chain        string
}

// Router dispatches to a registered Executor keyed by
// (executor_type, chain), falling back to a namespace wildcard
// ("<namespace>:*") and then a global wildcard ("*") registration —
// the same fallback order the planner applies when selecting a
// protocol's chain-scoped execution spec.
type Router struct {
	mu        sync.RWMutex
	executors map[chainExecutorKey]Executor
}

// NewRouter builds an empty Router.
func NewRouter() *Router { return &Router{executors: map[chainExecutorKey]Executor{}} }

// Register binds an Executor to an (executorType, chain) pair. chain
// may be an exact selector, a namespace wildcard, or "*".
func (r *Router) Register(executorType, chain string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[chainExecutorKey{executorType, chain}] = exec
}

func namespaceOf(chain string) string {
	for i := 0; i < len(chain); i++ {
		if chain[i] == ':' {
			return chain[:i]
		}
	}
	return chain
}

// Resolve finds the executor for executorType/chain.
func (r *Router) Resolve(executorType, chain string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.executors[chainExecutorKey{executorType, chain}]; ok {
		return e, true
	}
	if e, ok := r.executors[chainExecutorKey{executorType, namespaceOf(chain) + ":*"}]; ok {
		return e, true
	}
	if e, ok := r.executors[chainExecutorKey{executorType, "*"}]; ok {
		return e, true
	}
	return nil, false
}

// Execute implements Executor by resolving req's executor_type (read
// from req.Execution's "executor_type" field, default "default") and
// chain, then delegating to the registered Executor.
func (r *Router) Execute(ctx context.Context, req Request) (Result, error) {
	executorType := "default"
	if req.Execution.Kind() == value.KindMap {
		if et, ok := req.Execution.Get("executor_type"); ok && et.Kind() == value.KindString {
			executorType = et.AsString()
		}
	}
	exec, ok := r.Resolve(executorType, req.Chain)
	if !ok {
		return Result{}, fmt.Errorf("%w: type=%s chain=%s", ErrNoExecutorForChain, executorType, req.Chain)
	}
	return exec.Execute(ctx, req)
}
