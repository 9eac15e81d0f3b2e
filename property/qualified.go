package property

import (
	"fmt"
	"strings"
)

// QualifiedAttribute is a "<namespace>:<property>:<attribute>" label as it
// appears in policy-binding.attributes within a declarative document.
type QualifiedAttribute struct {
	Namespace, Property, Attribute string
}

// String renders the qualified form.
func (q QualifiedAttribute) String() string {
	return q.Namespace + ":" + q.Property + ":" + q.Attribute
}

// ParseQualifiedAttribute splits a "<ns>:<prop>:<attr>" label into its
// three segments.
func ParseQualifiedAttribute(s string) (QualifiedAttribute, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return QualifiedAttribute{}, fmt.Errorf("property: %q is not a qualified attribute name (want ns:prop:attr)", s)
	}
	for _, p := range parts {
		if p == "" {
			return QualifiedAttribute{}, fmt.Errorf("property: %q has an empty segment", s)
		}
	}
	return QualifiedAttribute{Namespace: parts[0], Property: parts[1], Attribute: parts[2]}, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so documents using a
// TOML/JSON decoder can parse QualifiedAttribute fields directly.
func (q *QualifiedAttribute) UnmarshalText(text []byte) error {
	parsed, err := ParseQualifiedAttribute(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (q QualifiedAttribute) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}
