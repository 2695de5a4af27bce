package visualization

import (
	"fmt"
	"strings"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/value"
)

// MermaidRenderer renders a compiled plan as a Mermaid flowchart diagram.
type MermaidRenderer struct{}

// NewMermaidRenderer creates a new Mermaid renderer.
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// Format returns the format identifier.
func (r *MermaidRenderer) Format() string {
	return "mermaid"
}

// Render converts a compiled plan into Mermaid flowchart syntax. Node
// shape follows the node's Kind (action vs. query); edges are the
// plan's resolved dependency list, since a compiled Plan has no
// separate edge list of its own.
func (r *MermaidRenderer) Render(plan *documents.Plan, opts *RenderOptions) (string, error) {
	if plan == nil {
		return "", fmt.Errorf("plan is nil")
	}
	if opts == nil {
		opts = DefaultRenderOptions()
	}

	var sb strings.Builder

	if len(opts.ThemeVariables) > 0 || opts.Direction == "elk" {
		sb.WriteString("---\n")
		sb.WriteString("config:\n")
		if opts.Direction == "elk" {
			sb.WriteString("  layout: elk\n")
		}
		if len(opts.ThemeVariables) > 0 {
			sb.WriteString("  theme: base\n")
			sb.WriteString("  themeVariables:\n")
			for key, value := range opts.ThemeVariables {
				sb.WriteString(fmt.Sprintf("    %s: \"%s\"\n", key, value))
			}
		}
		sb.WriteString("---\n")
	}

	sb.WriteString("flowchart ")
	if opts.Direction != "elk" {
		sb.WriteString(opts.Direction)
	} else {
		sb.WriteString("TB")
	}
	sb.WriteString("\n")

	for _, node := range plan.Nodes {
		sb.WriteString("    ")
		sb.WriteString(r.renderNode(node, opts))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	for _, node := range plan.Nodes {
		if len(node.Deps) == 0 {
			continue
		}
		sb.WriteString("    ")
		for i, dep := range node.Deps {
			if i > 0 {
				sb.WriteString(" & ")
			}
			sb.WriteString(dep)
		}
		sb.WriteString(" --> ")
		sb.WriteString(node.ID)
		sb.WriteString("\n")
	}

	sb.WriteString(r.renderNodeStyles())
	sb.WriteString("\n")
	sb.WriteString(r.applyNodeClasses(plan))

	return sb.String(), nil
}

// renderNode formats a single node based on its kind.
func (r *MermaidRenderer) renderNode(node documents.PlanNode, opts *RenderOptions) string {
	label := r.buildNodeLabel(node, opts)
	if node.Kind == "query_ref" {
		// Stadium shape for read-only queries.
		return fmt.Sprintf(`%s(["%s"])`, node.ID, label)
	}
	// Rectangle for mutating actions (the common case).
	return fmt.Sprintf(`%s["%s"]`, node.ID, label)
}

// buildNodeLabel constructs the node label with chain prefix and any
// requested condition/until annotations.
func (r *MermaidRenderer) buildNodeLabel(node documents.PlanNode, opts *RenderOptions) string {
	var parts []string
	if opts.ShowExecution && node.Chain != "" {
		parts = append(parts, node.Chain+": "+node.ID)
	} else {
		parts = append(parts, node.ID)
	}

	if opts.ShowConditions {
		if documents.HasField(node.Condition) {
			parts = append(parts, "if: "+r.summarizeValue(node.Condition))
		}
		if documents.HasField(node.Until) {
			parts = append(parts, "until: "+r.summarizeValue(node.Until))
		}
	}

	label := strings.Join(parts, "<br/>")
	label = strings.ReplaceAll(label, `"`, "&quot;")
	return label
}

// summarizeValue renders a ValueRef-shaped tree as a short label
// fragment without pulling in the full resolver.
func (r *MermaidRenderer) summarizeValue(v value.Value) string {
	switch v.Kind() {
	case value.KindString:
		return v.AsString()
	case value.KindMap:
		if expr, ok := v.Get("expr"); ok && expr.Kind() == value.KindString {
			return expr.AsString()
		}
		if ref, ok := v.Get("ref"); ok && ref.Kind() == value.KindString {
			return ref.AsString()
		}
	}
	return v.TypeName()
}

// renderNodeStyles generates CSS styling for action vs. query nodes.
func (r *MermaidRenderer) renderNodeStyles() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString("    %% node kind styles\n")
	sb.WriteString("    classDef actionNode fill:#D0E6FF,stroke:#1A73E8,stroke-width:2px,color:#000\n")
	sb.WriteString("    classDef queryNode fill:#DFF7E3,stroke:#34A853,stroke-width:2px,color:#000\n")
	return sb.String()
}

// applyNodeClasses applies CSS classes to nodes based on their kind.
func (r *MermaidRenderer) applyNodeClasses(plan *documents.Plan) string {
	var sb strings.Builder
	nodesByClass := make(map[string][]string)
	for _, node := range plan.Nodes {
		class := "actionNode"
		if node.Kind == "query_ref" {
			class = "queryNode"
		}
		nodesByClass[class] = append(nodesByClass[class], node.ID)
	}

	for _, class := range []string{"actionNode", "queryNode"} {
		ids := nodesByClass[class]
		if len(ids) == 0 {
			continue
		}
		sb.WriteString("    class ")
		sb.WriteString(strings.Join(ids, ","))
		sb.WriteString(" ")
		sb.WriteString(class)
		sb.WriteString("\n")
	}
	return sb.String()
}
