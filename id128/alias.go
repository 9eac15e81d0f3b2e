package id128

// EntityId, AttrId, PropId and PolicyId are Id128 values whose kind is
// expected (by convention, not the compiler) to lie in the corresponding
// subset. They exist so call sites read naturally; constructors below are
// the only supported way to produce a freshly-kinded value and they do
// enforce the kind.
type (
	EntityId = Id128
	AttrId   = Id128
	PropId   = Id128
	PolicyId = Id128
)

// NewPolicyId wraps a raw payload as a PolicyId.
func NewPolicyId(raw [16]byte) PolicyId { return FromRawArray(Policy, raw) }

// NewAttrId wraps a raw payload as an AttrId.
func NewAttrId(raw [16]byte) AttrId { return FromRawArray(Attribute, raw) }

// NewPropId wraps a raw payload as a PropId.
func NewPropId(raw [16]byte) PropId { return FromRawArray(Property, raw) }

// AttrSet is a small, unordered set of AttrId used throughout the policy
// engine and property mapping. Map-backed rather than a slice so
// membership and union are O(1)/O(n) without duplicate bookkeeping.
type AttrSet map[AttrId]struct{}

// NewAttrSet builds a set from the given attributes.
func NewAttrSet(attrs ...AttrId) AttrSet {
	s := make(AttrSet, len(attrs))
	for _, a := range attrs {
		s[a] = struct{}{}
	}
	return s
}

// Has reports set membership.
func (s AttrSet) Has(a AttrId) bool {
	_, ok := s[a]
	return ok
}

// Union returns a new set containing every element of s and other.
func (s AttrSet) Union(other AttrSet) AttrSet {
	out := make(AttrSet, len(s)+len(other))
	for a := range s {
		out[a] = struct{}{}
	}
	for a := range other {
		out[a] = struct{}{}
	}
	return out
}

// Intersects reports whether s and other share at least one element.
func (s AttrSet) Intersects(other AttrSet) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for a := range small {
		if big.Has(a) {
			return true
		}
	}
	return false
}

// SupersetOf reports whether s contains every element of other.
func (s AttrSet) SupersetOf(other AttrSet) bool {
	for a := range other {
		if !s.Has(a) {
			return false
		}
	}
	return true
}
