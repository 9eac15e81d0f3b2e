package policy

import (
	"fmt"

	"github.com/authlyhq/authly-go/id128"
)

// Compile encodes a sequence of Ops into the on-wire bytecode form: one
// opcode byte, followed by a varint128 immediate for the Load* forms.
// LoadConstEntityId additionally prefixes its immediate with one kind
// byte, since an EntityId's kind is not fixed the way PropId and AttrId
// are.
func Compile(ops []Op) []byte {
	out := make([]byte, 0, len(ops)*2)
	for _, op := range ops {
		out = append(out, byte(op.Code))
		switch op.Code {
		case OpLoadSubjectId, OpLoadResourceId:
			out = append(out, encodeVarint128(op.PropID.ToRawArray())...)
		case OpLoadConstAttrId:
			out = append(out, encodeVarint128(op.AttrID.ToRawArray())...)
		case OpLoadConstEntityId:
			out = append(out, byte(op.EntityID.Kind()))
			out = append(out, encodeVarint128(op.EntityID.ToRawArray())...)
		}
	}
	return out
}

// Decode reverses Compile, returning the exact Op sequence that produced
// the given bytecode. It exists for round-trip verification and tooling;
// the evaluator in vm.go walks the raw bytes directly instead of going
// through Decode.
func Decode(code []byte) ([]Op, error) {
	var ops []Op
	pc := code
	for len(pc) > 0 {
		opcode := OpCode(pc[0])
		pc = pc[1:]
		switch opcode {
		case OpLoadSubjectId, OpLoadResourceId:
			raw, rest, err := decodeVarint128(pc)
			if err != nil {
				return nil, err
			}
			pc = rest
			prop := id128.FromRawArray(id128.Property, raw)
			if opcode == OpLoadSubjectId {
				ops = append(ops, LoadSubjectId(prop))
			} else {
				ops = append(ops, LoadResourceId(prop))
			}
		case OpLoadSubjectAttrs:
			ops = append(ops, LoadSubjectAttrs)
		case OpLoadResourceAttrs:
			ops = append(ops, LoadResourceAttrs)
		case OpLoadConstAttrId:
			raw, rest, err := decodeVarint128(pc)
			if err != nil {
				return nil, err
			}
			pc = rest
			ops = append(ops, LoadConstAttrId(id128.FromRawArray(id128.Attribute, raw)))
		case OpLoadConstEntityId:
			if len(pc) < 1 {
				return nil, fmt.Errorf("%w: truncated entity kind byte", ErrProgram)
			}
			kind := id128.Kind(pc[0])
			pc = pc[1:]
			raw, rest, err := decodeVarint128(pc)
			if err != nil {
				return nil, err
			}
			pc = rest
			ops = append(ops, LoadConstEntityId(id128.FromRawArray(kind, raw)))
		case OpIsEq:
			ops = append(ops, IsEq)
		case OpSupersetOf:
			ops = append(ops, SupersetOf)
		case OpIdSetContains:
			ops = append(ops, IdSetContains)
		case OpAnd:
			ops = append(ops, And)
		case OpOr:
			ops = append(ops, Or)
		case OpNot:
			ops = append(ops, Not)
		case OpReturn:
			ops = append(ops, Return)
		default:
			return nil, fmt.Errorf("%w: unknown opcode %d", ErrProgram, opcode)
		}
	}
	return ops, nil
}
