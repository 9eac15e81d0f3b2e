// Package id128 implements the typed 128-bit identifier algebra: a runtime
// "kind" tag over a 16-byte payload, text and binary encodings, and the
// subset/upcast/downcast relations used to keep entity, property and
// attribute identifiers from being mixed up across call sites.
package id128

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// reservedMax is the upper bound (inclusive) of the low-value range set
// aside for builtin IDs. Random generation must never produce a value in
// this range; parsing rejects it outside of the builtin constant table.
const reservedMax = 32767

var (
	// ErrMalformed means the text or binary encoding could not be parsed.
	ErrMalformed = errors.New("id128: malformed encoding")
	// ErrWrongKind means the value parsed fine but its kind is not a
	// member of the caller's accepted subset. Distinct from ErrMalformed
	// so callers can tell "bad encoding" from "wrong kind" apart.
	ErrWrongKind = errors.New("id128: kind not in accepted subset")
	// ErrReservedValue means a low value in the builtin reservation range
	// was supplied where only a random or builtin ID is acceptable.
	ErrReservedValue = errors.New("id128: value in reserved builtin range")
)

// Id128 is an opaque 128-bit value carrying a runtime Kind tag. The zero
// value is not a valid identifier.
type Id128 struct {
	kind Kind
	b    [16]byte
}

// Kind reports the identifier's kind tag.
func (id Id128) Kind() Kind { return id.kind }

// IsZero reports whether id is the unset zero value.
func (id Id128) IsZero() bool { return id == Id128{} }

// In reports whether id's kind belongs to set.
func (id Id128) In(set Set) bool { return set.Has(id.kind) }

// Upcast asserts that id's kind belongs to set, returning id unchanged. It
// is the "infallible upcast" the identifier algebra specifies for callers
// that already know, by construction, that the kind is a member; callers
// that are not sure should check the ok return instead of ignoring it.
func (id Id128) Upcast(set Set) (Id128, bool) {
	return id, id.In(set)
}

// Downcast requires id's kind to equal exactly k, distinguishing "wrong
// kind" from a decoding failure (which never reaches this far).
func (id Id128) Downcast(k Kind) (Id128, error) {
	if id.kind != k {
		return Id128{}, fmt.Errorf("%w: have %s, want %s", ErrWrongKind, id.kind, k)
	}
	return id, nil
}

// FromUint builds an identifier of the given kind from a 64-bit value
// placed in the low 8 bytes, high bytes zero. Used for builtin IDs and in
// tests; it does not enforce the reservation range, since builtins live
// inside it by design.
func FromUint(k Kind, v uint64) Id128 {
	var b [16]byte
	binary.BigEndian.PutUint64(b[8:], v)
	return Id128{kind: k, b: b}
}

// FromRawArray builds an identifier of the given kind from a raw 16-byte
// payload, with no range checking. Used when the payload is already known
// to be well-formed (e.g. round-tripping a stored value).
func FromRawArray(k Kind, raw [16]byte) Id128 {
	return Id128{kind: k, b: raw}
}

// ToRawArray returns the raw 16-byte payload, kind stripped.
func (id Id128) ToRawArray() [16]byte { return id.b }

// Random generates a fresh identifier of the given kind, rejecting and
// retrying any value that lands in the reserved builtin range when
// interpreted as a big-endian uint128 low-order check (the low 8 bytes as
// a uint64, since 128-bit random space makes a full-width collision with
// the reserved range astronomically unlikely but the low-order check is
// cheap and exact for the common case of near-zero values).
func Random(k Kind) (Id128, error) {
	for range 8 {
		var b [16]byte
		if _, err := rand.Read(b[:]); err != nil {
			return Id128{}, fmt.Errorf("id128: random: %w", err)
		}
		if isReserved(b) {
			continue
		}
		return Id128{kind: k, b: b}, nil
	}
	return Id128{}, fmt.Errorf("id128: random: %w", ErrReservedValue)
}

func isReserved(b [16]byte) bool {
	for _, c := range b[:8] {
		if c != 0 {
			return false
		}
	}
	return binary.BigEndian.Uint64(b[8:]) <= reservedMax
}

// TryFromBytesDynamic decodes the 17-byte dynamic binary form: a leading
// kind discriminant byte followed by the 16-byte payload.
func TryFromBytesDynamic(raw *[17]byte) (Id128, error) {
	k := Kind(raw[0])
	if k >= numKinds {
		return Id128{}, fmt.Errorf("%w: unknown kind discriminant %d", ErrMalformed, raw[0])
	}
	var b [16]byte
	copy(b[:], raw[1:])
	return Id128{kind: k, b: b}, nil
}

// ToArrayDynamic encodes the 17-byte dynamic binary form.
func (id Id128) ToArrayDynamic() [17]byte {
	var out [17]byte
	out[0] = byte(id.kind)
	copy(out[1:], id.b[:])
	return out
}

// String renders the text form "<prefix>.<32 hex chars>".
func (id Id128) String() string {
	return id.kind.prefix() + "." + hex.EncodeToString(id.b[:])
}

// Parse parses the text form, requiring the resulting kind to be a member
// of accepted. Low values in the reserved range are rejected unless they
// match a known builtin constant.
func Parse(s string, accepted Set) (Id128, error) {
	dot := -1
	for i, c := range s {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return Id128{}, fmt.Errorf("%w: missing prefix separator", ErrMalformed)
	}
	prefix, tail := s[:dot], s[dot+1:]
	k, ok := kindFromPrefix(prefix)
	if !ok {
		return Id128{}, fmt.Errorf("%w: unknown prefix %q", ErrMalformed, prefix)
	}
	if !accepted.Has(k) {
		return Id128{}, fmt.Errorf("%w: %s not accepted here", ErrWrongKind, k)
	}
	if len(tail) != 32 {
		return Id128{}, fmt.Errorf("%w: expected 32 hex chars, got %d", ErrMalformed, len(tail))
	}
	raw, err := hex.DecodeString(tail)
	if err != nil {
		return Id128{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var b [16]byte
	copy(b[:], raw)
	id := Id128{kind: k, b: b}
	if isReserved(b) && !isBuiltin(id) {
		return Id128{}, fmt.Errorf("%w: %s", ErrReservedValue, id)
	}
	return id, nil
}

// MarshalText implements encoding.TextMarshaler using the text form.
func (id Id128) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return nil, errors.New("id128: cannot marshal zero value")
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting any kind.
// Callers that must restrict the kind should use Parse directly.
func (id *Id128) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text), Any)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Compare orders identifiers kind-first, then by raw bytes, matching the
// invariant that equality and ordering both consider (kind, bytes).
func Compare(a, b Id128) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	for i := range a.b {
		if a.b[i] != b.b[i] {
			if a.b[i] < b.b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
