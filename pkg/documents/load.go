package documents

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/smilemakc/ais-go/pkg/value"
)

// LoadWorkflowYAML decodes a workflow document from YAML bytes into the
// typed WorkflowDocument shape. Parsing lives here, outside pkg/documents'
// core, because the package itself only ever handles already-parsed
// value.Value trees; loading from disk is an external collaborator's
// job that cmd/cli and cmd/server both need, so it is implemented once.
func LoadWorkflowYAML(raw []byte) (WorkflowDocument, error) {
	var root map[string]interface{}
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return WorkflowDocument{}, fmt.Errorf("documents: parse workflow yaml: %w", err)
	}
	return workflowFromMap(root)
}

// LoadProtocolYAML decodes a protocol document from YAML bytes.
func LoadProtocolYAML(raw []byte) (Protocol, error) {
	var root map[string]interface{}
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return Protocol{}, fmt.Errorf("documents: parse protocol yaml: %w", err)
	}
	return protocolFromMap(root)
}

func workflowFromMap(root map[string]interface{}) (WorkflowDocument, error) {
	doc := WorkflowDocument{
		Schema:  str(root, "schema"),
		Name:    str(root, "name"),
		Version: str(root, "version"),
	}

	if rawNodes, ok := root["nodes"].([]interface{}); ok {
		for i, rn := range rawNodes {
			nm, ok := rn.(map[string]interface{})
			if !ok {
				return WorkflowDocument{}, fmt.Errorf("documents: node %d is not a mapping", i)
			}
			wn, err := workflowNodeFromMap(nm, i)
			if err != nil {
				return WorkflowDocument{}, err
			}
			doc.Nodes = append(doc.Nodes, wn)
		}
	}

	if rawMeta, ok := root["meta"].(map[string]interface{}); ok {
		doc.Meta = make(map[string]value.Value, len(rawMeta))
		for k, v := range rawMeta {
			cv, err := value.FromInterface(v)
			if err != nil {
				return WorkflowDocument{}, fmt.Errorf("documents: meta.%s: %w", k, err)
			}
			doc.Meta[k] = cv
		}
	}

	return doc, nil
}

func workflowNodeFromMap(m map[string]interface{}, index int) (WorkflowNode, error) {
	wn := WorkflowNode{
		ID:            str(m, "id"),
		Type:          str(m, "type"),
		Protocol:      str(m, "protocol"),
		Action:        str(m, "action"),
		Query:         str(m, "query"),
		Chain:         str(m, "chain"),
		AssertMessage: str(m, "assert_message"),
		DocumentIndex: index,
	}
	if wn.ID == "" {
		return WorkflowNode{}, fmt.Errorf("documents: node at index %d is missing id", index)
	}

	if rawDeps, ok := m["deps"].([]interface{}); ok {
		for _, d := range rawDeps {
			if s, ok := d.(string); ok {
				wn.Deps = append(wn.Deps, s)
			}
		}
	}

	var err error
	if wn.Args, err = valueField(m, "args"); err != nil {
		return WorkflowNode{}, err
	}
	if wn.Condition, err = valueField(m, "condition"); err != nil {
		return WorkflowNode{}, err
	}
	if wn.Assert, err = valueField(m, "assert"); err != nil {
		return WorkflowNode{}, err
	}
	if wn.OnFail, err = valueField(m, "on_fail"); err != nil {
		return WorkflowNode{}, err
	}
	if wn.Until, err = valueField(m, "until"); err != nil {
		return WorkflowNode{}, err
	}
	if wn.Retry, err = valueField(m, "retry"); err != nil {
		return WorkflowNode{}, err
	}
	if wn.TimeoutMs, err = valueField(m, "timeout_ms"); err != nil {
		return WorkflowNode{}, err
	}
	if wn.CalculatedOverrides, err = valueField(m, "calculated_overrides"); err != nil {
		return WorkflowNode{}, err
	}

	return wn, nil
}

func protocolFromMap(root map[string]interface{}) (Protocol, error) {
	p := Protocol{
		ID:      str(root, "id"),
		Version: str(root, "version"),
		Actions: map[string]ProtocolActionOrQuery{},
		Queries: map[string]ProtocolActionOrQuery{},
	}
	if actions, ok := root["actions"].(map[string]interface{}); ok {
		for name, raw := range actions {
			spec, err := actionOrQueryFromMap(name, raw)
			if err != nil {
				return Protocol{}, fmt.Errorf("documents: protocol action %s: %w", name, err)
			}
			p.Actions[name] = spec
		}
	}
	if queries, ok := root["queries"].(map[string]interface{}); ok {
		for name, raw := range queries {
			spec, err := actionOrQueryFromMap(name, raw)
			if err != nil {
				return Protocol{}, fmt.Errorf("documents: protocol query %s: %w", name, err)
			}
			p.Queries[name] = spec
		}
	}
	return p, nil
}

func actionOrQueryFromMap(name string, raw interface{}) (ProtocolActionOrQuery, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return ProtocolActionOrQuery{}, fmt.Errorf("expected mapping")
	}
	execRaw, ok := m["execution"].(map[string]interface{})
	if !ok {
		return ProtocolActionOrQuery{Name: name, ExecutionMap: map[string]value.Value{}}, nil
	}
	execMap := make(map[string]value.Value, len(execRaw))
	for chain, spec := range execRaw {
		cv, err := value.FromInterface(spec)
		if err != nil {
			return ProtocolActionOrQuery{}, err
		}
		execMap[chain] = cv
	}
	return ProtocolActionOrQuery{Name: name, ExecutionMap: execMap}, nil
}

func valueField(m map[string]interface{}, key string) (value.Value, error) {
	raw, ok := m[key]
	if !ok {
		return value.Null(), nil
	}
	return value.FromInterface(normalizeYAML(raw))
}

// normalizeYAML recursively converts map[interface{}]interface{} nodes
// (what some yaml decoders produce for nested mappings) into
// map[string]interface{} so value.FromInterface can walk the tree.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
