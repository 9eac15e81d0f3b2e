// Package policy implements the policy bytecode instruction set and the
// trigger-indexed policy decision point described for Authly's
// access-control evaluation.
package policy

import "github.com/authlyhq/authly-go/id128"

// OpCode is the stable, append-only numeric opcode. Existing values must
// never be renumbered; new instructions are added at the end.
type OpCode uint8

const (
	OpLoadSubjectId OpCode = iota
	OpLoadSubjectAttrs
	OpLoadResourceId
	OpLoadResourceAttrs
	OpLoadConstAttrId
	OpLoadConstEntityId
	OpIsEq
	OpSupersetOf
	OpIdSetContains
	OpAnd
	OpOr
	OpNot
	OpReturn
)

// Op is a single instruction in source form, as produced by a policy
// compiler and consumed by Compile. Only the fields relevant to Code are
// populated; the rest are zero.
type Op struct {
	Code     OpCode
	PropID   id128.PropId
	AttrID   id128.AttrId
	EntityID id128.EntityId
}

func LoadSubjectId(prop id128.PropId) Op   { return Op{Code: OpLoadSubjectId, PropID: prop} }
func LoadResourceId(prop id128.PropId) Op  { return Op{Code: OpLoadResourceId, PropID: prop} }
func LoadConstAttrId(attr id128.AttrId) Op { return Op{Code: OpLoadConstAttrId, AttrID: attr} }
func LoadConstEntityId(eid id128.EntityId) Op {
	return Op{Code: OpLoadConstEntityId, EntityID: eid}
}

var (
	LoadSubjectAttrs  = Op{Code: OpLoadSubjectAttrs}
	LoadResourceAttrs = Op{Code: OpLoadResourceAttrs}
	IsEq              = Op{Code: OpIsEq}
	SupersetOf        = Op{Code: OpSupersetOf}
	IdSetContains     = Op{Code: OpIdSetContains}
	And               = Op{Code: OpAnd}
	Or                = Op{Code: OpOr}
	Not               = Op{Code: OpNot}
	Return            = Op{Code: OpReturn}
)
