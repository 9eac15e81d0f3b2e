// Package property implements the three-level namespace → property →
// attribute dictionary that lets application code refer to resource
// attributes by label instead of by raw identifier.
package property

import "github.com/authlyhq/authly-go/id128"

// AttributeMappings is the innermost layer: attribute label to AttrId.
type AttributeMappings struct {
	attrs map[string]id128.AttrId
}

func newAttributeMappings() *AttributeMappings {
	return &AttributeMappings{attrs: make(map[string]id128.AttrId)}
}

// Get looks up an attribute by label.
func (m *AttributeMappings) Get(attribute string) (id128.AttrId, bool) {
	id, ok := m.attrs[attribute]
	return id, ok
}

// Labels returns the attribute labels defined in this mapping, in no
// particular order.
func (m *AttributeMappings) Labels() []string {
	out := make([]string, 0, len(m.attrs))
	for k := range m.attrs {
		out = append(out, k)
	}
	return out
}

func (m *AttributeMappings) put(attribute string, id id128.AttrId) {
	m.attrs[attribute] = id
}

// NamespaceMappings is the middle layer: property label to its attribute
// dictionary.
type NamespaceMappings struct {
	properties map[string]*AttributeMappings
}

func newNamespaceMappings() *NamespaceMappings {
	return &NamespaceMappings{properties: make(map[string]*AttributeMappings)}
}

// Property returns the attribute dictionary for a property label, if any.
func (m *NamespaceMappings) Property(property string) (*AttributeMappings, bool) {
	p, ok := m.properties[property]
	return p, ok
}

// Properties returns the property labels defined in this namespace.
func (m *NamespaceMappings) Properties() []string {
	out := make([]string, 0, len(m.properties))
	for k := range m.properties {
		out = append(out, k)
	}
	return out
}

func (m *NamespaceMappings) propertyMut(property string) *AttributeMappings {
	p, ok := m.properties[property]
	if !ok {
		p = newAttributeMappings()
		m.properties[property] = p
	}
	return p
}

// Mapping is the full namespace → property → attribute dictionary for one
// snapshot of the authority's reply. A Mapping value is immutable once
// built: readers never observe a partially-populated snapshot. Building a
// new one and swapping the pointer is how reconciliation refreshes it.
type Mapping struct {
	namespaces map[string]*NamespaceMappings
}

// NewMapping returns an empty mapping, ready for Put calls during
// construction. Once handed to a reader it should not be mutated further;
// callers needing a refreshed mapping build a new one.
func NewMapping() *Mapping {
	return &Mapping{namespaces: make(map[string]*NamespaceMappings)}
}

// Namespace returns the property dictionary for a namespace label, if any.
func (m *Mapping) Namespace(namespace string) (*NamespaceMappings, bool) {
	n, ok := m.namespaces[namespace]
	return n, ok
}

// Namespaces returns the namespace labels defined in this mapping.
func (m *Mapping) Namespaces() []string {
	out := make([]string, 0, len(m.namespaces))
	for k := range m.namespaces {
		out = append(out, k)
	}
	return out
}

// Put inserts or updates a single (namespace, property, attribute) entry.
func (m *Mapping) Put(namespace, property, attribute string, id id128.AttrId) {
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = newNamespaceMappings()
		m.namespaces[namespace] = ns
	}
	ns.propertyMut(property).put(attribute, id)
}

// AttributeID resolves a single (namespace, property, attribute) triple to
// its AttrId.
func (m *Mapping) AttributeID(namespace, property, attribute string) (id128.AttrId, bool) {
	ns, ok := m.namespaces[namespace]
	if !ok {
		return id128.Id128{}, false
	}
	prop, ok := ns.properties[property]
	if !ok {
		return id128.Id128{}, false
	}
	return prop.Get(attribute)
}

// Triple names a single (namespace, property, attribute) entry to resolve.
type Triple struct {
	Namespace, Property, Attribute string
}

// Translate resolves each triple to an AttrId, silently skipping any triple
// that is not present in the mapping, and returns the resolved set.
func (m *Mapping) Translate(triples []Triple) id128.AttrSet {
	out := make(id128.AttrSet, len(triples))
	for _, t := range triples {
		if id, ok := m.AttributeID(t.Namespace, t.Property, t.Attribute); ok {
			out[id] = struct{}{}
		}
	}
	return out
}
