package executor

import (
	"context"
	"fmt"

	"github.com/smilemakc/ais-go/pkg/value"
)

// EVMCallExecutor is a minimal stand-in EVM executor used by tests and
// as a template for a real RPC-backed implementation: it echoes its
// chain id, the method name it was asked to invoke, and the resolved
// params back as output, without touching a network.
type EVMCallExecutor struct {
	ChainID string
}

func (e *EVMCallExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	method := "unknown"
	if m, ok := req.Execution.Get("method"); ok && m.Kind() == value.KindString {
		method = m.AsString()
	}
	out := map[string]value.Value{
		"chain_id": value.Str(e.ChainID),
		"method":   value.Str(method),
		"params":   value.Map(req.Params),
	}
	if req.DryRun {
		out["simulated"] = value.Bool(true)
	}
	return Result{Output: value.Map(out)}, nil
}

// SolanaCallExecutor is the Solana-side counterpart of EVMCallExecutor,
// echoing the requested program instruction instead of a method name.
type SolanaCallExecutor struct {
	Cluster string
}

func (e *SolanaCallExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	instruction := "unknown"
	if m, ok := req.Execution.Get("instruction"); ok && m.Kind() == value.KindString {
		instruction = m.AsString()
	}
	out := map[string]value.Value{
		"cluster":     value.Str(e.Cluster),
		"instruction": value.Str(instruction),
		"params":      value.Map(req.Params),
	}
	if req.DryRun {
		out["simulated"] = value.Bool(true)
	}
	return Result{Output: value.Map(out)}, nil
}

// unsupportedExecutor always fails; useful as an explicit placeholder
// registration for a chain that is declared but not yet wired.
type unsupportedExecutor struct{ reason string }

func (e *unsupportedExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	return Result{}, fmt.Errorf("executor: unsupported: %s", e.reason)
}

// Unsupported builds an Executor that always fails with reason.
func Unsupported(reason string) Executor { return &unsupportedExecutor{reason: reason} }
