package policy

import "github.com/authlyhq/authly-go/id128"

// Tracer observes evaluation without influencing the outcome: it exists
// purely for diagnostics (e.g. attaching evaluation detail to an access
// log or a trace span).
type Tracer interface {
	// Applicable reports the policies an evaluation selected for one
	// class (Allow or Deny) before any of them ran.
	Applicable(class Outcome, policies []id128.PolicyId)
	// PolicyStart fires immediately before a single policy's bytecode
	// runs.
	PolicyStart(id id128.PolicyId)
	// PolicyEnd fires after a single policy's bytecode ran, carrying its
	// result or evaluation error.
	PolicyEnd(id id128.PolicyId, allowed bool, err error)
}

// NoopTracer discards every event. It is the default when Eval is called
// with a nil Tracer.
type NoopTracer struct{}

func (NoopTracer) Applicable(Outcome, []id128.PolicyId)   {}
func (NoopTracer) PolicyStart(id128.PolicyId)             {}
func (NoopTracer) PolicyEnd(id128.PolicyId, bool, error)  {}
