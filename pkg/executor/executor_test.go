package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/ais-go/pkg/value"
)

func echoExecutor(tag string) Executor {
	return ExecutorFunc(func(ctx context.Context, req Request) (Result, error) {
		return Result{Output: value.Map(map[string]value.Value{"via": value.Str(tag)})}, nil
	})
}

func TestRouterExactMatch(t *testing.T) {
	r := NewRouter()
	r.Register("default", "eth:1", echoExecutor("eth-mainnet"))
	r.Register("default", "*", echoExecutor("fallback"))

	res, err := r.Execute(context.Background(), Request{Chain: "eth:1", Execution: value.Map(nil)})
	require.NoError(t, err)
	v, _ := res.Output.Get("via")
	assert.Equal(t, "eth-mainnet", v.AsString())
}

func TestRouterNamespaceFallback(t *testing.T) {
	r := NewRouter()
	r.Register("default", "eth:*", echoExecutor("eth-any"))

	res, err := r.Execute(context.Background(), Request{Chain: "eth:42", Execution: value.Map(nil)})
	require.NoError(t, err)
	v, _ := res.Output.Get("via")
	assert.Equal(t, "eth-any", v.AsString())
}

func TestRouterGlobalFallback(t *testing.T) {
	r := NewRouter()
	r.Register("default", "*", echoExecutor("fallback"))

	res, err := r.Execute(context.Background(), Request{Chain: "sol:mainnet", Execution: value.Map(nil)})
	require.NoError(t, err)
	v, _ := res.Output.Get("via")
	assert.Equal(t, "fallback", v.AsString())
}

func TestRouterNoMatch(t *testing.T) {
	r := NewRouter()
	_, err := r.Execute(context.Background(), Request{Chain: "sol:mainnet", Execution: value.Map(nil)})
	require.Error(t, err)
}

func TestRouterRespectsExecutorType(t *testing.T) {
	r := NewRouter()
	r.Register("evm_call", "eth:1", echoExecutor("evm"))
	execution := value.Map(map[string]value.Value{"executor_type": value.Str("evm_call")})
	res, err := r.Execute(context.Background(), Request{Chain: "eth:1", Execution: execution})
	require.NoError(t, err)
	v, _ := res.Output.Get("via")
	assert.Equal(t, "evm", v.AsString())
}
