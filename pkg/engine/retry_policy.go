package engine

import (
	"errors"
	"fmt"

	"github.com/smilemakc/ais-go/pkg/value"
)

// RetryConfig is a node's resolved `retry` block (spec §4.G step k).
// interval_ms is mandatory and must be positive; max_attempts is an
// optional cap; the only backoff the spec names is "fixed" (a constant
// interval between attempts).
type RetryConfig struct {
	IntervalMs  int64
	MaxAttempts *int
	Backoff     string
}

var (
	// ErrRetryMissingConfig is returned when an until condition is
	// unmet but the node declares no usable retry block.
	ErrRetryMissingConfig = errors.New("engine: until not met and no retry config present")
	// ErrRetryExhausted is returned once retry.max_attempts is reached.
	ErrRetryExhausted = errors.New("engine: retry attempts exhausted")
	// ErrRetryTimeout is returned once the node's timeout_ms budget
	// would be exceeded by the next attempt's waited_ms.
	ErrRetryTimeout = errors.New("engine: retry timeout exceeded")
)

// ParseRetryConfig reads a node's resolved `retry` tree. ok is false
// when v is absent or lacks a positive interval_ms, in which case the
// caller treats the node as having no retry config at all.
func ParseRetryConfig(v value.Value) (cfg RetryConfig, ok bool, err error) {
	if v.Kind() != value.KindMap {
		return RetryConfig{}, false, nil
	}
	iv, present := v.Get("interval_ms")
	if !present || iv.Kind() != value.KindInt {
		return RetryConfig{}, false, nil
	}
	interval := iv.AsInt().Int64()
	if interval <= 0 {
		return RetryConfig{}, false, nil
	}
	cfg = RetryConfig{IntervalMs: interval, Backoff: "fixed"}
	if mv, present := v.Get("max_attempts"); present && mv.Kind() == value.KindInt {
		n := int(mv.AsInt().Int64())
		if n > 0 {
			cfg.MaxAttempts = &n
		}
	}
	if bv, present := v.Get("backoff"); present && bv.Kind() == value.KindString {
		b := bv.AsString()
		if b != "fixed" {
			return RetryConfig{}, false, fmt.Errorf("engine: retry.backoff %q is not supported, only \"fixed\"", b)
		}
		cfg.Backoff = b
	}
	return cfg, true, nil
}

// NextAttempt computes the bookkeeping for a node's next until/retry
// wait (spec §4.G step k): attempt := previous.Attempt+1, waited_ms :=
// previous.WaitedMs+interval_ms. It returns ErrRetryExhausted once the
// computed attempt exceeds cfg.MaxAttempts, or ErrRetryTimeout once the
// computed waited_ms would exceed timeoutMs (0 means no timeout budget).
// The returned PendingRetry reflects the attempt that was evaluated even
// when an error is returned, so the caller can report it in the pause
// event.
func NextAttempt(previous PendingRetry, cfg RetryConfig, timeoutMs int64) (PendingRetry, error) {
	next := PendingRetry{
		Attempt:     previous.Attempt + 1,
		IntervalMs:  cfg.IntervalMs,
		WaitedMs:    previous.WaitedMs + cfg.IntervalMs,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
	}
	if cfg.MaxAttempts != nil && next.Attempt > *cfg.MaxAttempts {
		return next, ErrRetryExhausted
	}
	if timeoutMs > 0 && next.WaitedMs > timeoutMs {
		return next, ErrRetryTimeout
	}
	return next, nil
}
