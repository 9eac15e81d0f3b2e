package policy

import (
	"log/slog"
	"sort"

	"github.com/authlyhq/authly-go/id128"
)

type policyEntry struct {
	class    Outcome
	bytecode []byte
}

// Trigger ties a required attribute set to the policies it activates when
// that set is contained in the union of a request's subject and resource
// attributes.
type Trigger struct {
	Required id128.AttrSet
	Targets  []id128.PolicyId
}

// Engine holds a set of compiled policies and the trigger index that
// selects which of them apply to a given request. It is built once (or
// rebuilt wholesale on a ReloadCache-style event) and evaluated many
// times; Eval never mutates Engine state.
type Engine struct {
	policies map[id128.PolicyId]policyEntry
	triggers map[id128.AttrId][]Trigger
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{
		policies: make(map[id128.PolicyId]policyEntry),
		triggers: make(map[id128.AttrId][]Trigger),
	}
}

// AddPolicy registers a compiled policy under id with the given class.
func (e *Engine) AddPolicy(id id128.PolicyId, class Outcome, bytecode []byte) {
	e.policies[id] = policyEntry{class: class, bytecode: bytecode}
}

// AddTrigger indexes a trigger under the smallest attribute of its
// required set (by Compare order, a stable, arbitrary representative —
// any single member would do, per the trigger index's own contract).
func (e *Engine) AddTrigger(required id128.AttrSet, targets []id128.PolicyId) {
	if len(required) == 0 {
		return
	}
	key := firstAttr(required)
	e.triggers[key] = append(e.triggers[key], Trigger{Required: required, Targets: targets})
}

func firstAttr(set id128.AttrSet) id128.AttrId {
	attrs := make([]id128.AttrId, 0, len(set))
	for a := range set {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool { return id128.Compare(attrs[i], attrs[j]) < 0 })
	return attrs[0]
}

// Eval runs the full access-control evaluation algorithm: scan the union
// of subject and resource attributes for applicable triggers, sort their
// target policies into Allow/Deny buckets, evaluate each bucket
// disjunctively, and combine per the four-row table. tracer may be nil.
func (e *Engine) Eval(params *Params, tracer Tracer) (Outcome, error) {
	if tracer == nil {
		tracer = NoopTracer{}
	}
	union := params.SubjectAttrs.Union(params.ResourceAttrs)

	var allowCandidates, denyCandidates []id128.PolicyId
	seenTrigger := make(map[*Trigger]struct{})

	for attr := range union {
		for i := range e.triggers[attr] {
			trig := &e.triggers[attr][i]
			if _, done := seenTrigger[trig]; done {
				continue
			}
			seenTrigger[trig] = struct{}{}

			if len(trig.Required) > 1 && !union.SupersetOf(trig.Required) {
				continue
			}

			for _, pid := range trig.Targets {
				entry, ok := e.policies[pid]
				if !ok {
					slog.Warn("policy: trigger targets missing policy", "policy_id", pid.String())
					continue
				}
				if entry.class == Allow {
					allowCandidates = append(allowCandidates, pid)
				} else {
					denyCandidates = append(denyCandidates, pid)
				}
			}
		}
	}

	tracer.Applicable(Allow, allowCandidates)
	tracer.Applicable(Deny, denyCandidates)

	evaluated := make(map[id128.PolicyId]bool, len(allowCandidates)+len(denyCandidates))
	evalOnce := func(pid id128.PolicyId) (bool, error) {
		if v, ok := evaluated[pid]; ok {
			return v, nil
		}
		tracer.PolicyStart(pid)
		v, err := evalBytecode(e.policies[pid].bytecode, params)
		tracer.PolicyEnd(pid, v, err)
		if err != nil {
			slog.Warn("policy: evaluation error, treating as non-applicable", "policy_id", pid.String(), "error", err)
			v = false
		}
		evaluated[pid] = v
		return v, nil
	}

	bucketTrue := func(candidates []id128.PolicyId) bool {
		for _, pid := range candidates {
			v, _ := evalOnce(pid)
			if v {
				return true
			}
		}
		return false
	}

	switch {
	case len(allowCandidates) == 0 && len(denyCandidates) == 0:
		if params.SubjectAttrs.Intersects(params.ResourceAttrs) {
			return Allow, nil
		}
		return Deny, nil
	case len(allowCandidates) > 0 && len(denyCandidates) == 0:
		return OutcomeFromBool(bucketTrue(allowCandidates)), nil
	case len(allowCandidates) == 0 && len(denyCandidates) > 0:
		if bucketTrue(denyCandidates) {
			return Deny, nil
		}
		return Allow, nil
	default:
		if !bucketTrue(allowCandidates) {
			return Deny, nil
		}
		if bucketTrue(denyCandidates) {
			return Deny, nil
		}
		return Allow, nil
	}
}
