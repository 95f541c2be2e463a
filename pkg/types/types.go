// Package types implements the small type language used by particle
// connections and recipe views: entity types identified by schema name and
// collections of other types.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind distinguishes entity types from collection types.
type Kind int

const (
	// KindEntity is a single entity with a named schema.
	KindEntity Kind = iota
	// KindCollection is a list of another type.
	KindCollection
)

// Type is an immutable connection or view type. A nil *Type means "not yet known".
type Type struct {
	kind   Kind
	schema string
	elem   *Type
}

// Entity returns the entity type for the given schema name.
func Entity(schema string) *Type {
	return &Type{kind: KindEntity, schema: schema}
}

// CollectionOf returns the collection type whose elements are elem.
func CollectionOf(elem *Type) *Type {
	return &Type{kind: KindCollection, elem: elem}
}

// Kind returns the type kind.
func (t *Type) Kind() Kind { return t.kind }

// IsCollection reports whether t is a collection type.
func (t *Type) IsCollection() bool { return t != nil && t.kind == KindCollection }

// Elem returns the element type of a collection, or nil for entities.
func (t *Type) Elem() *Type { return t.elem }

// Schema returns the schema name of an entity, or of the innermost element of a collection.
func (t *Type) Schema() string {
	for t != nil && t.kind == KindCollection {
		t = t.elem
	}
	if t == nil {
		return ""
	}
	return t.schema
}

// String renders the type literal: Foo or [Foo].
func (t *Type) String() string {
	if t == nil {
		return "?"
	}
	if t.kind == KindCollection {
		return "[" + t.elem.String() + "]"
	}
	return t.schema
}

// Key returns the store registry key: the schema name for entities and
// list:<schema> for collections.
func (t *Type) Key() string {
	if t == nil {
		return ""
	}
	if t.kind == KindCollection {
		return "list:" + t.elem.Key()
	}
	return t.schema
}

// Equal reports structural equality.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.kind != o.kind {
		return false
	}
	if t.kind == KindCollection {
		return t.elem.Equal(o.elem)
	}
	return t.schema == o.schema
}

// Unify returns the most specific common type of a and b. A nil operand
// unifies with anything. Entities unify only under the same schema, and a
// collection unifies only with a collection whose elements unify.
func Unify(a, b *Type) (*Type, bool) {
	switch {
	case a == nil:
		return b, true
	case b == nil:
		return a, true
	case a.kind != b.kind:
		return nil, false
	case a.kind == KindEntity:
		if a.schema != b.schema {
			return nil, false
		}
		return a, true
	}

	elem, ok := Unify(a.elem, b.elem)
	if !ok {
		return nil, false
	}
	if elem == a.elem {
		return a, true
	}
	return CollectionOf(elem), true
}

// Parse parses a type literal such as "Product" or "[Product]".
func Parse(literal string) (*Type, error) {
	s := strings.TrimSpace(literal)
	if s == "" {
		return nil, fmt.Errorf("empty type literal")
	}
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("unterminated collection type %q", literal)
		}
		elem, err := Parse(s[1 : len(s)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid collection type %q: %w", literal, err)
		}
		return CollectionOf(elem), nil
	}
	for _, r := range s {
		if !(r == '_' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return nil, fmt.Errorf("invalid character %q in type %q", r, literal)
		}
	}
	return Entity(s), nil
}

// MustParse is like Parse but panics on error. Intended for tests and literals.
func MustParse(literal string) *Type {
	t, err := Parse(literal)
	if err != nil {
		panic(err)
	}
	return t
}

// MarshalText implements encoding.TextMarshaler.
func (t *Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// MarshalJSON renders the type as its literal string.
func (t *Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
