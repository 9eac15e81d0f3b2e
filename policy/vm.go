package policy

import (
	"fmt"

	"github.com/authlyhq/authly-go/id128"
)

// Params is the access-control request the PDP evaluates against: the
// subject and resource sides of the request, each as a PropId→EntityId
// lookup table (for LoadSubjectId/LoadResourceId) plus an attribute set.
type Params struct {
	SubjectIDs    map[id128.PropId]id128.EntityId
	SubjectAttrs  id128.AttrSet
	ResourceIDs   map[id128.PropId]id128.EntityId
	ResourceAttrs id128.AttrSet
}

type svKind uint8

const (
	svID svKind = iota
	svSet
	svBool
)

type stackValue struct {
	kind svKind
	id   id128.Id128
	set  id128.AttrSet
	b    bool
}

// evalBytecode interprets the raw bytecode against params, returning the
// boolean a Return instruction produced. It never surfaces a partial
// stack state on error; any malformed encoding is ErrProgram, any
// operand-shape or missing-lookup problem is ErrType.
func evalBytecode(code []byte, params *Params) (bool, error) {
	stack := make([]stackValue, 0, 16)
	pc := code

	pop := func() (stackValue, bool) {
		if len(stack) == 0 {
			return stackValue{}, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}

	for len(pc) > 0 {
		op := OpCode(pc[0])
		pc = pc[1:]

		switch op {
		case OpLoadSubjectId, OpLoadResourceId:
			raw, rest, err := decodeVarint128(pc)
			if err != nil {
				return false, err
			}
			pc = rest
			prop := id128.FromRawArray(id128.Property, raw)
			table := params.SubjectIDs
			if op == OpLoadResourceId {
				table = params.ResourceIDs
			}
			eid, ok := table[prop]
			if !ok {
				return false, fmt.Errorf("%w: unknown PropId in request", ErrType)
			}
			stack = append(stack, stackValue{kind: svID, id: eid})

		case OpLoadSubjectAttrs:
			stack = append(stack, stackValue{kind: svSet, set: params.SubjectAttrs})

		case OpLoadResourceAttrs:
			stack = append(stack, stackValue{kind: svSet, set: params.ResourceAttrs})

		case OpLoadConstAttrId:
			raw, rest, err := decodeVarint128(pc)
			if err != nil {
				return false, err
			}
			pc = rest
			stack = append(stack, stackValue{kind: svID, id: id128.FromRawArray(id128.Attribute, raw)})

		case OpLoadConstEntityId:
			if len(pc) < 1 {
				return false, fmt.Errorf("%w: truncated entity kind byte", ErrProgram)
			}
			kind := id128.Kind(pc[0])
			pc = pc[1:]
			raw, rest, err := decodeVarint128(pc)
			if err != nil {
				return false, err
			}
			pc = rest
			stack = append(stack, stackValue{kind: svID, id: id128.FromRawArray(kind, raw)})

		case OpIsEq:
			b, ok1 := pop()
			a, ok2 := pop()
			if !ok1 || !ok2 {
				return false, fmt.Errorf("%w: stack underflow in IsEq", ErrType)
			}
			eq, err := evalIsEq(a, b)
			if err != nil {
				return false, err
			}
			stack = append(stack, stackValue{kind: svBool, b: eq})

		case OpSupersetOf:
			b, ok1 := pop()
			a, ok2 := pop()
			if !ok1 || !ok2 || a.kind != svSet || b.kind != svSet {
				return false, fmt.Errorf("%w: SupersetOf requires two sets", ErrType)
			}
			stack = append(stack, stackValue{kind: svBool, b: a.set.SupersetOf(b.set)})

		case OpIdSetContains:
			id, ok1 := pop()
			set, ok2 := pop()
			if !ok1 || !ok2 || set.kind != svSet || id.kind != svID {
				return false, fmt.Errorf("%w: IdSetContains requires (set, id)", ErrType)
			}
			stack = append(stack, stackValue{kind: svBool, b: set.set.Has(id.id)})

		case OpAnd:
			b, ok1 := pop()
			a, ok2 := pop()
			if !ok1 || !ok2 || a.kind != svBool || b.kind != svBool {
				return false, fmt.Errorf("%w: And requires two bools", ErrType)
			}
			stack = append(stack, stackValue{kind: svBool, b: a.b && b.b})

		case OpOr:
			b, ok1 := pop()
			a, ok2 := pop()
			if !ok1 || !ok2 || a.kind != svBool || b.kind != svBool {
				return false, fmt.Errorf("%w: Or requires two bools", ErrType)
			}
			stack = append(stack, stackValue{kind: svBool, b: a.b || b.b})

		case OpNot:
			a, ok := pop()
			if !ok || a.kind != svBool {
				return false, fmt.Errorf("%w: Not requires a bool", ErrType)
			}
			stack = append(stack, stackValue{kind: svBool, b: !a.b})

		case OpReturn:
			top, ok := pop()
			if !ok || top.kind != svBool {
				return false, fmt.Errorf("%w: Return requires a bool", ErrType)
			}
			return top.b, nil

		default:
			return false, fmt.Errorf("%w: unknown opcode %d", ErrProgram, op)
		}
	}
	return false, fmt.Errorf("%w: missing Return", ErrProgram)
}

// evalIsEq implements IsEq's mixed-type operand acceptance: two ids of any
// kind compare by value; a set against an id is a membership test in
// either position. Any other combination is a type error.
func evalIsEq(a, b stackValue) (bool, error) {
	switch {
	case a.kind == svID && b.kind == svID:
		return a.id == b.id, nil
	case a.kind == svSet && b.kind == svID:
		return a.set.Has(b.id), nil
	case a.kind == svID && b.kind == svSet:
		return b.set.Has(a.id), nil
	default:
		return false, fmt.Errorf("%w: IsEq operand combination not supported", ErrType)
	}
}
