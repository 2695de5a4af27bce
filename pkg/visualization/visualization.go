// Package visualization renders a compiled documents.Plan as a diagram.
//
// Example usage:
//
//	renderer := visualization.NewMermaidRenderer()
//	opts := visualization.DefaultRenderOptions()
//	diagram, err := renderer.Render(plan, opts)
package visualization

import (
	"github.com/smilemakc/ais-go/pkg/documents"
)

// Renderer is the interface for rendering plans in different formats.
type Renderer interface {
	// Render converts a compiled plan into the target format.
	Render(plan *documents.Plan, opts *RenderOptions) (string, error)

	// Format returns the format identifier (e.g., "mermaid").
	Format() string
}

// RenderOptions configures how a plan is rendered.
type RenderOptions struct {
	// ShowExecution controls whether each node's chain is prefixed to its
	// label. A node's kind is always shown through its shape.
	ShowExecution bool

	// ShowConditions controls whether condition/until expressions are displayed.
	ShowConditions bool

	// Direction sets the diagram flow direction.
	// Valid values: "TB" (top-bottom), "LR" (left-right), "RL" (right-left), "BT" (bottom-top).
	Direction string

	// ThemeVariables allows customizing the Mermaid theme.
	ThemeVariables map[string]string
}

// DefaultRenderOptions returns the default rendering options.
func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{
		ShowExecution:  true,
		ShowConditions: true,
		Direction:      "TB",
		ThemeVariables: nil,
	}
}
