package planner

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/resolver"
	"github.com/smilemakc/ais-go/pkg/value"
)

// nodeRefRegexp matches a `nodes.<id>` prefix inside either a plain ref
// path or a CEL expression, used to discover the implicit dependency
// edges a node's args/condition/until/calculated_overrides introduce.
var nodeRefRegexp = regexp.MustCompile(`\bnodes\.([A-Za-z_][A-Za-z0-9_-]*)\b`)

// ProtocolRegistry looks up a registered protocol by "<id>@<version>".
type ProtocolRegistry map[string]documents.Protocol

// CompileOptions configures workflow compilation.
type CompileOptions struct {
	Protocols ProtocolRegistry
}

// CompileWorkflow compiles a WorkflowDocument into an executable Plan,
// validating node identity, resolving protocol actions/queries per
// node's chain, and computing a stable topological node order (spec
// §4.E).
func CompileWorkflow(doc documents.WorkflowDocument, opts CompileOptions) (*documents.Plan, error) {
	ids := make([]string, 0, len(doc.Nodes))
	byID := make(map[string]documents.WorkflowNode, len(doc.Nodes))
	indexByID := make(map[string]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if _, dup := byID[n.ID]; dup {
			return nil, &CompileError{NodeID: n.ID, Reason: ErrDuplicateNodeID}
		}
		byID[n.ID] = n
		indexByID[n.ID] = i
		ids = append(ids, n.ID)
	}

	edges := make(map[string][]string, len(ids))
	for _, n := range doc.Nodes {
		deps, err := dependenciesFor(n, byID)
		if err != nil {
			return nil, err
		}
		edges[n.ID] = deps
	}

	order, cyclic, err := stableTopologicalOrder(ids, edges, indexByID)
	if err != nil {
		return nil, err
	}
	if len(cyclic) > 0 {
		return nil, &CyclicDependencyError{NodeIDs: cyclic}
	}

	plan := &documents.Plan{Schema: doc.Schema, Nodes: make([]documents.PlanNode, 0, len(order))}
	for _, id := range order {
		wn := byID[id]
		pn, err := compileNode(wn, edges[id], doc, opts)
		if err != nil {
			return nil, err
		}
		plan.Nodes = append(plan.Nodes, *pn)
	}
	return plan, nil
}

// dependenciesFor returns wn's explicit deps (declared order, deduped)
// followed by its implicit deps (sorted, excluding self and explicit
// duplicates) discovered by scanning args/condition/assert/until/
// calculated_overrides for `nodes.<id>` references.
func dependenciesFor(wn documents.WorkflowNode, byID map[string]documents.WorkflowNode) ([]string, error) {
	seen := map[string]bool{wn.ID: true}
	var explicit []string
	for _, d := range wn.Deps {
		if d == wn.ID {
			return nil, &CompileError{NodeID: wn.ID, Reason: ErrSelfDependency}
		}
		if _, ok := byID[d]; !ok {
			return nil, &CompileError{NodeID: wn.ID, Reason: fmt.Errorf("%w: %s", ErrUnknownDependency, d)}
		}
		if !seen[d] {
			seen[d] = true
			explicit = append(explicit, d)
		}
	}

	implicitSet := map[string]bool{}
	collect := func(v value.Value) {
		_ = resolver.WalkCollectValueRefs(v, func(ref resolver.ValueRef) {
			switch ref.Kind {
			case resolver.KindRef:
				for _, m := range nodeRefRegexp.FindAllStringSubmatch(ref.Ref, -1) {
					implicitSet[m[1]] = true
				}
			case resolver.KindCel:
				for _, m := range nodeRefRegexp.FindAllStringSubmatch(ref.Cel, -1) {
					implicitSet[m[1]] = true
				}
			}
		})
	}
	collect(wn.Args)
	collect(wn.Condition)
	collect(wn.Assert)
	collect(wn.Until)
	collect(wn.CalculatedOverrides)

	var implicit []string
	for id := range implicitSet {
		if id == wn.ID || seen[id] {
			continue
		}
		if _, ok := byID[id]; !ok {
			continue // dangling ref inside an expression is a readiness concern, not a compile error
		}
		implicit = append(implicit, id)
	}
	sort.Strings(implicit)

	return append(explicit, implicit...), nil
}

func compileNode(wn documents.WorkflowNode, deps []string, doc documents.WorkflowDocument, opts CompileOptions) (*documents.PlanNode, error) {
	proto, ok := opts.Protocols[wn.Protocol]
	if !ok {
		return nil, &CompileError{NodeID: wn.ID, Reason: fmt.Errorf("%w: %s", ErrProtocolNotFound, wn.Protocol)}
	}

	var (
		spec documents.ProtocolActionOrQuery
		kind string
		name string
	)
	switch wn.Type {
	case "query_ref":
		kind, name = "query_ref", wn.Query
		s, ok := proto.Queries[name]
		if !ok {
			return nil, &CompileError{NodeID: wn.ID, Reason: fmt.Errorf("%w: %s", ErrQueryNotFound, name)}
		}
		spec = s
	default:
		kind, name = "action_ref", wn.Action
		s, ok := proto.Actions[name]
		if !ok {
			return nil, &CompileError{NodeID: wn.ID, Reason: fmt.Errorf("%w: %s", ErrActionNotFound, name)}
		}
		spec = s
	}

	execution, ok := documents.SelectExecutionForChain(spec, wn.Chain)
	if !ok {
		return nil, &CompileError{NodeID: wn.ID, Reason: fmt.Errorf("%w: %s", ErrNoExecutionForChain, wn.Chain)}
	}

	overrides, order, err := compileCalculatedOverrides(wn)
	if err != nil {
		return nil, &CompileError{NodeID: wn.ID, Reason: err}
	}

	bindings := map[string]value.Value{}
	if wn.Args.Kind() == value.KindMap {
		bindings = wn.Args.AsMap()
	}

	return &documents.PlanNode{
		ID:                      wn.ID,
		Kind:                    kind,
		Chain:                   wn.Chain,
		Execution:               execution,
		Deps:                    deps,
		Condition:               wn.Condition,
		Assert:                  wn.Assert,
		AssertMessage:           wn.AssertMessage,
		OnFail:                  wn.OnFail,
		Until:                   wn.Until,
		Retry:                   wn.Retry,
		TimeoutMs:               wn.TimeoutMs,
		BindingsParams:          bindings,
		Writes:                  documents.DefaultWrites(wn.ID),
		CalculatedOverrides:     overrides,
		CalculatedOverrideOrder: order,
		Source: documents.SourceRecord{
			WorkflowName:    doc.Name,
			WorkflowVersion: doc.Version,
			NodeID:          wn.ID,
			Protocol:        wn.Protocol,
			Action:          wn.Action,
			Query:           wn.Query,
		},
	}, nil
}

func compileCalculatedOverrides(wn documents.WorkflowNode) (map[string]value.Value, []string, error) {
	if wn.CalculatedOverrides.Kind() != value.KindMap {
		return nil, nil, nil
	}
	m := wn.CalculatedOverrides.AsMap()
	refs := make(map[string]resolver.ValueRef, len(m))
	for name, entry := range m {
		exprField, _ := entry.Get("expr")
		ref, ok, err := resolver.ParseValueRefLike(exprField)
		if err != nil {
			return nil, nil, fmt.Errorf("calculated_overrides[%s]: %w", name, err)
		}
		if !ok {
			return nil, nil, fmt.Errorf("calculated_overrides[%s]: missing expr", name)
		}
		refs[name] = ref
	}
	order, err := resolver.CalculatedOverrideOrderFromMap(refs)
	if err != nil {
		return nil, nil, err
	}
	return m, order, nil
}
