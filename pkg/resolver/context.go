// Package resolver implements the ValueRef sum type and the
// ResolverContext that runtime lookups and CEL evaluation run against.
package resolver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smilemakc/ais-go/pkg/value"
)

// Errors returned by path resolution.
var (
	ErrInvalidPath          = errors.New("invalid path")
	ErrNotFound             = errors.New("not found")
	ErrNonObjectIntermediate = errors.New("non-object intermediate")
)

// PathSegment is either a map key or a list index.
type PathSegment struct {
	Key      string
	IsIndex  bool
	Index    int
}

// ProtocolDocument is an opaque, already-parsed protocol document
// registered in a ResolverContext, keyed by "<id>@<version>".
type ProtocolDocument struct {
	ID      string
	Version string
	Raw     value.Value
}

func protocolKey(id, version string) string { return id + "@" + version }

// Context holds the runtime value tree and the registered protocol
// documents that ValueRef/CEL evaluation consult.
type Context struct {
	runtime   value.Value
	protocols map[string]ProtocolDocument
}

// NewContext builds an empty context with an empty-map runtime.
func NewContext() *Context {
	return &Context{runtime: value.Map(nil), protocols: map[string]ProtocolDocument{}}
}

// WithRuntime builds a context rooted at runtime; non-map runtimes are
// coerced to an empty object, matching the original's defensive
// behavior.
func WithRuntime(runtime value.Value) *Context {
	if runtime.Kind() != value.KindMap {
		runtime = value.Map(nil)
	}
	return &Context{runtime: runtime, protocols: map[string]ProtocolDocument{}}
}

// Runtime returns the current runtime tree.
func (c *Context) Runtime() value.Value { return c.runtime }

// SetRuntime replaces the runtime tree wholesale.
func (c *Context) SetRuntime(v value.Value) { c.runtime = v }

// RegisterProtocol stores a protocol document keyed by id@version.
func (c *Context) RegisterProtocol(doc ProtocolDocument) {
	c.protocols[protocolKey(doc.ID, doc.Version)] = doc
}

// Protocol looks up a registered protocol document.
func (c *Context) Protocol(id, version string) (ProtocolDocument, bool) {
	doc, ok := c.protocols[protocolKey(id, version)]
	return doc, ok
}

// splitRefPath parses a dot/bracket path into typed segments. Both
// get/set share this exact tokenizer.
func splitRefPath(path string) ([]PathSegment, error) {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil, nil
	}
	var segments []PathSegment
	for _, token := range strings.Split(path, ".") {
		segs, err := parseTokenWithIndexes(token)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segs...)
	}
	return segments, nil
}

// parseTokenWithIndexes splits "key[0][1]" into a Key segment followed
// by Index segments.
func parseTokenWithIndexes(token string) ([]PathSegment, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty path segment", ErrInvalidPath)
	}
	i := strings.IndexByte(token, '[')
	if i < 0 {
		return []PathSegment{{Key: token}}, nil
	}
	key := token[:i]
	var segments []PathSegment
	if key != "" {
		segments = append(segments, PathSegment{Key: key})
	}
	rest := token[i:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return nil, fmt.Errorf("%w: malformed index in %q", ErrInvalidPath, token)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated index in %q", ErrInvalidPath, token)
		}
		idxStr := rest[1:end]
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: bad index %q", ErrInvalidPath, idxStr)
		}
		segments = append(segments, PathSegment{IsIndex: true, Index: idx})
		rest = rest[end+1:]
	}
	return segments, nil
}

// GetRef walks the runtime tree by path, returning ErrNotFound for a
// missing segment and ErrNonObjectIntermediate for a key segment
// applied to a non-map value.
func (c *Context) GetRef(path string) (value.Value, error) {
	segments, err := splitRefPath(path)
	if err != nil {
		return value.Value{}, err
	}
	return walkValueByPath(c.runtime, segments)
}

func walkValueByPath(root value.Value, segments []PathSegment) (value.Value, error) {
	cur := root
	for _, seg := range segments {
		if seg.IsIndex {
			if cur.Kind() != value.KindList {
				return value.Value{}, fmt.Errorf("%w: index on non-list", ErrNonObjectIntermediate)
			}
			v, ok := cur.Index(seg.Index)
			if !ok {
				return value.Value{}, fmt.Errorf("%w: index %d", ErrNotFound, seg.Index)
			}
			cur = v
			continue
		}
		if cur.Kind() != value.KindMap {
			return value.Value{}, fmt.Errorf("%w: key %q on non-map", ErrNonObjectIntermediate, seg.Key)
		}
		v, ok := cur.Get(seg.Key)
		if !ok {
			return value.Value{}, fmt.Errorf("%w: key %q", ErrNotFound, seg.Key)
		}
		cur = v
	}
	return cur, nil
}

// SetRef writes v at path, creating intermediate maps on demand. A
// trailing or intermediate Index segment, or a non-map intermediate, is
// an error: the core only ever builds map trees through SetRef.
func (c *Context) SetRef(path string, v value.Value) error {
	segments, err := splitRefPath(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	newRoot, err := setValueByPath(c.runtime, segments, v)
	if err != nil {
		return err
	}
	c.runtime = newRoot
	return nil
}

func setValueByPath(root value.Value, segments []PathSegment, v value.Value) (value.Value, error) {
	if len(segments) == 0 {
		return v, nil
	}
	seg := segments[0]
	if seg.IsIndex {
		return value.Value{}, fmt.Errorf("%w: cannot create index paths", ErrInvalidPath)
	}
	m := root.AsMap()
	if root.Kind() != value.KindMap {
		if root.Kind() != value.KindNull {
			return value.Value{}, fmt.Errorf("%w: key %q on non-map", ErrNonObjectIntermediate, seg.Key)
		}
		m = map[string]value.Value{}
	}
	if m == nil {
		m = map[string]value.Value{}
	}
	if len(segments) == 1 {
		m[seg.Key] = v
		return value.Map(m), nil
	}
	child, ok := m[seg.Key]
	if !ok {
		child = value.Map(nil)
	}
	newChild, err := setValueByPath(child, segments[1:], v)
	if err != nil {
		return value.Value{}, err
	}
	m[seg.Key] = newChild
	return value.Map(m), nil
}

// MergeRef shallow-merges an object at path into the existing value; a
// non-object target is overwritten, matching the runner's write
// semantics (spec's Invariants §3).
func (c *Context) MergeRef(path string, v value.Value) error {
	segments, err := splitRefPath(path)
	if err != nil {
		return err
	}
	existing, err := walkValueByPath(c.runtime, segments)
	if err == nil && existing.Kind() == value.KindMap && v.Kind() == value.KindMap {
		merged := existing.AsMap()
		for k, val := range v.AsMap() {
			merged[k] = val
		}
		v = value.Map(merged)
	}
	return c.SetRef(path, v)
}
