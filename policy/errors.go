package policy

import "errors"

// ErrProgram means the bytecode buffer was truncated, used an unknown
// opcode, or never reached a Return instruction.
var ErrProgram = errors.New("policy: malformed program")

// ErrType means evaluation hit a stack underflow or an operand
// combination the instruction does not accept, or a Load*Id instruction
// referenced a PropId absent from the supplied params.
var ErrType = errors.New("policy: type error")
