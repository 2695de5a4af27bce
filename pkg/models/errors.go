// Package models defines shared error types and structured diagnostics
// used across the numeric, expression, resolver, planner, and engine
// packages.
package models

import (
	"errors"
	"sort"
)

// Common sentinel errors. Components wrap these with fmt.Errorf("%w: ...")
// so callers can still errors.Is against them.
var (
	ErrInvalidWorkflow = errors.New("invalid workflow")
	ErrCyclicDependency = errors.New("cyclic dependency detected")
	ErrNodeNotFound     = errors.New("node not found")

	ErrExecutionFailed     = errors.New("execution failed")
	ErrNodeExecutionFailed = errors.New("node execution failed")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidOutput       = errors.New("invalid output")

	ErrExecutorNotFound = errors.New("executor not found")
	ErrExecutorFailed   = errors.New("executor failed")
	ErrInvalidConfig    = errors.New("invalid configuration")

	ErrValidationFailed = errors.New("validation failed")
	ErrRequired         = errors.New("required field is missing")

	ErrCheckpointMismatch = errors.New("checkpoint schema mismatch")
	ErrUnknownCommandType = errors.New("unknown command type")
	ErrPlanInvalid        = errors.New("plan invalid")
)

// WorkflowError represents an error that occurred while compiling or
// validating a workflow document.
type WorkflowError struct {
	WorkflowID string
	Operation  string
	Err        error
}

func (e *WorkflowError) Error() string {
	return "workflow " + e.WorkflowID + " " + e.Operation + ": " + e.Err.Error()
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// ExecutionError represents an error that occurred during a run, scoped
// to a run id and optionally to one node.
type ExecutionError struct {
	ExecutionID string
	NodeID      string
	Err         error
}

func (e *ExecutionError) Error() string {
	msg := "execution " + e.ExecutionID
	if e.NodeID != "" {
		msg += " node " + e.NodeID
	}
	msg += ": " + e.Err.Error()
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ValidationError represents a single validation error with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}

// Severity of a StructuredIssue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IssueKind is the closed set of diagnostic kinds produced across the
// planner, resolver, and readiness layers (spec §7).
type IssueKind string

const (
	KindParseError        IssueKind = "parse_error"
	KindSemanticError     IssueKind = "semantic_error"
	KindWorkflowError     IssueKind = "workflow_error"
	KindWorkspaceError    IssueKind = "workspace_error"
	KindReferenceError    IssueKind = "reference_error"
	KindPlanBuildError    IssueKind = "plan_build_error"
	KindDagError          IssueKind = "dag_error"
	KindReadinessBlocked  IssueKind = "readiness_blocked"
	KindReadinessError    IssueKind = "readiness_error"
	KindNumericError      IssueKind = "numeric_error"
	KindExecutorError     IssueKind = "executor_error"
	KindRunnerConfigError IssueKind = "runner_config_error"
	KindDryRunError       IssueKind = "dry_run_error"
)

// StructuredIssue is a user-facing diagnostic produced by the planner or
// readiness layer, referencing a stable machine-readable id.
type StructuredIssue struct {
	Kind      IssueKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	NodeID    string    `json:"node_id,omitempty"`
	FieldPath string    `json:"field_path"`
	Message   string    `json:"message"`
	Reference string    `json:"reference,omitempty"`
	Related   []string  `json:"related,omitempty"`
}

// SortIssues orders issues by (field_path, reference) for determinism.
func SortIssues(issues []StructuredIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].FieldPath != issues[j].FieldPath {
			return issues[i].FieldPath < issues[j].FieldPath
		}
		return issues[i].Reference < issues[j].Reference
	})
}
