package fdt

import (
	"iter"
	"strings"

	"github.com/elliotchance/orderedmap/v3"
)

// Properties maps property names to decoded values in on-disk order. It is
// built fresh by every PropertiesAt call and owned by the caller.
//
// If a node repeats a property name (a format violation), the later value
// replaces the earlier one but keeps its position.
type Properties struct {
	m *orderedmap.OrderedMap[string, Value]
}

func newProperties() *Properties {
	return &Properties{orderedmap.NewOrderedMap[string, Value]()}
}

func (p *Properties) set(name string, v Value) {
	p.m.Set(name, v)
}

func (p *Properties) Len() int {
	return p.m.Len()
}

func (p *Properties) Get(name string) (Value, bool) {
	return p.m.Get(name)
}

func (p *Properties) Has(name string) bool {
	_, ok := p.m.Get(name)
	return ok
}

// Names returns the property names in order.
func (p *Properties) Names() []string {
	names := make([]string, 0, p.m.Len())
	for el := p.m.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
	}
	return names
}

// All iterates over name/value pairs in order.
func (p *Properties) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for el := p.m.Front(); el != nil; el = el.Next() {
			if !yield(el.Key, el.Value) {
				return
			}
		}
	}
}

// Equal reports whether both maps hold the same names, in the same order,
// with equal values.
func (p *Properties) Equal(o *Properties) bool {
	if p.Len() != o.Len() {
		return false
	}
	a, b := p.m.Front(), o.m.Front()
	for ; a != nil && b != nil; a, b = a.Next(), b.Next() {
		if a.Key != b.Key || !a.Value.Equal(b.Value) {
			return false
		}
	}
	return a == nil && b == nil
}

func (p *Properties) String() string {
	var buf strings.Builder
	buf.WriteByte('{')
	for el := p.m.Front(); el != nil; el = el.Next() {
		if el != p.m.Front() {
			buf.WriteString(", ")
		}
		buf.WriteString(el.Key)
		buf.WriteString(": ")
		buf.WriteString(el.Value.String())
	}
	buf.WriteByte('}')
	return buf.String()
}
