// Package documents defines the in-memory typed shapes for the
// Protocol, Pack, Workflow, Plan, Skeleton, and Catalog document model
// (spec §4.D). The typed shapes hold already-parsed value.Value trees;
// the only parsing in this package is load.go's YAML decoding of
// workflow and protocol documents.
package documents

import (
	"fmt"

	"github.com/smilemakc/ais-go/pkg/value"
)

// Write describes a single projection of an execution result into the
// runtime tree.
type Write struct {
	Path string `json:"path"`
	Mode string `json:"mode"` // "set" | "merge"
}

// DefaultWrites builds the default single-write list used when a node
// declares no explicit `writes`.
func DefaultWrites(nodeID string) []Write {
	return []Write{{Path: "nodes." + nodeID + ".outputs", Mode: "set"}}
}

// SourceRecord captures provenance for a compiled plan node: which
// workflow/skeleton document, node id, and protocol action/query it was
// compiled from.
type SourceRecord struct {
	WorkflowName    string `json:"workflow_name,omitempty"`
	WorkflowVersion string `json:"workflow_version,omitempty"`
	NodeID          string `json:"node_id"`
	Protocol        string `json:"protocol,omitempty"`
	Action          string `json:"action,omitempty"`
	Query           string `json:"query,omitempty"`
}

// PlanNode is the compiled, executable unit the engine runner sweeps
// over (spec §3 "Plan node").
type PlanNode struct {
	ID        string
	Kind      string // "action_ref" | "query_ref"
	Chain     string
	Execution value.Value // raw execution tree; ValueRefs resolved at runtime

	Deps []string // explicit first (in order), then sorted implicit, never self

	Condition     value.Value // ValueRef-shaped, or Null if absent
	Assert        value.Value
	AssertMessage string
	OnFail        value.Value // "stop" | "pause", or Null (defaults to pause)
	Until         value.Value
	Retry         value.Value
	TimeoutMs     value.Value

	BindingsParams map[string]value.Value // name -> ValueRef-shaped tree

	Writes []Write

	Simulate  value.Value // bool, map, or Null
	Preflight value.Value

	CalculatedOverrides     map[string]value.Value // name -> {expr: ValueRef}
	CalculatedOverrideOrder []string

	Extensions value.Value
	Source     SourceRecord
}

// HasField reports whether a dynamic field is present (non-null).
func HasField(v value.Value) bool { return !v.IsNull() }

// PlanMeta carries plan-wide metadata, including the optional preflight
// simulate flag consulted by shouldSimulateNode.
type PlanMeta struct {
	Preflight value.Value
	Raw       map[string]value.Value
}

// Plan is the compiled DAG of executable nodes produced by the planner.
type Plan struct {
	Schema     string
	Meta       PlanMeta
	Nodes      []PlanNode
	Extensions value.Value
}

// NodeByID returns the node with the given id, or false if absent.
func (p *Plan) NodeByID(id string) (*PlanNode, bool) {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i], true
		}
	}
	return nil, false
}

// WorkflowNode is a single node in an uncompiled WorkflowDocument.
type WorkflowNode struct {
	ID       string
	Type     string // "action_ref" | "query_ref"
	Protocol string // "<id>@<version>"
	Action   string
	Query    string
	Chain    string

	Args value.Value // map of param name -> ValueRef-shaped tree

	Deps []string

	Condition     value.Value
	Assert        value.Value
	AssertMessage string
	OnFail        value.Value
	Until         value.Value
	Retry         value.Value
	TimeoutMs     value.Value

	CalculatedOverrides value.Value // map of name -> {expr: ValueRef}

	DocumentIndex int // original position, for stable topological tie-break
}

// WorkflowDocument is the compiler's input shape: a named, versioned
// tree of nodes referencing registered protocols.
type WorkflowDocument struct {
	Schema  string
	Name    string
	Version string
	Nodes   []WorkflowNode
	Meta    map[string]value.Value
}

// ProtocolActionOrQuery holds one named action/query's chain-scoped
// execution specs.
type ProtocolActionOrQuery struct {
	Name         string
	ExecutionMap map[string]value.Value // chain selector -> raw execution spec
}

// Protocol is a registered protocol document: a set of named actions
// and queries, each with chain-scoped execution specs.
type Protocol struct {
	ID      string
	Version string
	Actions map[string]ProtocolActionOrQuery
	Queries map[string]ProtocolActionOrQuery
}

// SelectExecutionForChain resolves the execution spec for chain,
// falling back exact -> "<namespace>:*" -> "*" (spec §4.E step 4,
// §6 chain selector fallback).
func SelectExecutionForChain(spec ProtocolActionOrQuery, chain string) (value.Value, bool) {
	if v, ok := spec.ExecutionMap[chain]; ok {
		return v, true
	}
	ns := chain
	for i := 0; i < len(chain); i++ {
		if chain[i] == ':' {
			ns = chain[:i]
			break
		}
	}
	if v, ok := spec.ExecutionMap[ns+":*"]; ok {
		return v, true
	}
	if v, ok := spec.ExecutionMap["*"]; ok {
		return v, true
	}
	return value.Value{}, false
}

// PlanSkeletonNode is the leaner per-node shape accepted by the
// plan-skeleton compiler.
type PlanSkeletonNode struct {
	ID        string
	Kind      string
	Chain     string
	Execution value.Value
	Deps      []string

	Condition     value.Value
	Assert        value.Value
	AssertMessage string
	OnFail        value.Value
	Until         value.Value
	Retry         value.Value
	TimeoutMs     value.Value

	Writes                  []Write
	CalculatedOverrides     value.Value
	DocumentIndex           int
}

// PlanSkeletonDocument is a leaner alternative to WorkflowDocument: its
// nodes already carry a resolved execution tree instead of a
// protocol/action reference, so plan-skeleton compile skips protocol
// lookup but still performs the same graph validation as workflow
// compile.
type PlanSkeletonDocument struct {
	Schema string
	Nodes  []PlanSkeletonNode
	Meta   map[string]value.Value
}

// CatalogEntry is one named, chain-scoped protocol surface entry used
// by external catalog-building tooling (out of core scope, but the
// shape is needed so the planner and dry-run report can cross-reference
// it).
type CatalogEntry struct {
	Protocol string
	Kind     string // "action" | "query"
	Name     string
	Chains   []string
}

// ErrUnknownDocumentField is returned when a typed accessor encounters
// a value of the wrong dynamic kind.
var ErrUnknownDocumentField = fmt.Errorf("documents: unexpected field shape")
