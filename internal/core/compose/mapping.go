package compose

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Mapping - Ordered Map
// =============================================================================

// Mapping is a string-keyed map that remembers the order keys were first set.
// Decoding from YAML keeps document order. Null values decode to the zero value.
type Mapping[V any] struct {
	keys   []string
	values map[string]V
}

// Set stores value under key. A new key is appended to the order.
func (m *Mapping[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m Mapping[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m Mapping[V]) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns the keys in order.
func (m Mapping[V]) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of keys.
func (m Mapping[V]) Len() int {
	return len(m.keys)
}

// IsZero reports whether the mapping is empty.
func (m Mapping[V]) IsZero() bool {
	return len(m.keys) == 0
}

// Each calls fn for every entry in order.
func (m Mapping[V]) Each(fn func(key string, value V)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Clone returns a shallow copy. Values are shared.
func (m Mapping[V]) Clone() Mapping[V] {
	var out Mapping[V]
	m.Each(out.Set)
	return out
}

// UnmarshalYAML decodes a YAML mapping node keeping key order.
func (m *Mapping[V]) UnmarshalYAML(node *yaml.Node) error {
	if isNull(node) {
		*m = Mapping[V]{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return NewParseError("", fmt.Sprintf("expected a mapping, got %s", kindName(node)), ErrInvalidShape)
	}

	var out Mapping[V]
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var v V
		if !isNull(value) {
			if err := value.Decode(&v); err != nil {
				return fieldError(key.Value, err)
			}
		}
		out.Set(key.Value, v)
	}
	*m = out
	return nil
}

// MarshalYAML encodes the mapping in key order.
func (m Mapping[V]) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		var value yaml.Node
		if err := value.Encode(m.values[k]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&value,
		)
	}
	return node, nil
}

// =============================================================================
// Node Helpers
// =============================================================================

func isNull(node *yaml.Node) bool {
	if node == nil {
		return true
	}
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		return isNull(node.Alias)
	}
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar " + node.ShortTag()
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown node"
	}
}

// scalarValues decodes a sequence of scalars into strings regardless of their tag.
func scalarValues(node *yaml.Node) ([]string, error) {
	out := make([]string, 0, len(node.Content))
	for i, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, NewParseError(fmt.Sprintf("[%d]", i), fmt.Sprintf("expected a scalar, got %s", kindName(item)), ErrInvalidShape)
		}
		out = append(out, item.Value)
	}
	return out, nil
}
