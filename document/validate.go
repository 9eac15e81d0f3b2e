package document

import "fmt"

// Validate checks a single document for internal consistency: duplicate
// entity/domain/policy labels, policies declaring both or neither of
// Allow/Deny, and policy bindings with no attributes or no policies.
// Qualified attribute names are checked earlier, by Parse, which fails on
// a name that does not parse. It does not check cross-document duplicates
// — that is Store's job, since it requires state carried across repeated
// `document apply` runs.
func (d *Document) Validate() error {
	seen := make(map[string]string) // label -> kind, for a useful message
	addLabel := func(kind, label string) error {
		if label == "" {
			return fmt.Errorf("document: %s has an empty label", kind)
		}
		if prior, ok := seen[label]; ok {
			return fmt.Errorf("document: label %q declared by both %s and %s", label, prior, kind)
		}
		seen[label] = kind
		return nil
	}

	for _, e := range d.Entity {
		if err := addLabel("entity", e.Label); err != nil {
			return err
		}
	}
	for _, e := range d.ServiceEntity {
		if err := addLabel("service-entity", e.Label); err != nil {
			return err
		}
	}
	for _, dom := range d.Domain {
		if err := addLabel("domain", dom.Label); err != nil {
			return err
		}
	}
	for _, dom := range d.ServiceDomain {
		if err := addLabel("service-domain", dom.Label); err != nil {
			return err
		}
	}
	for _, p := range d.Policy {
		key := p.Service + ":" + p.Label
		if _, ok := seen[key]; ok {
			return fmt.Errorf("document: duplicate policy %q in service %q", p.Label, p.Service)
		}
		seen[key] = "policy"
		if (p.Allow == "") == (p.Deny == "") {
			return fmt.Errorf("document: policy %q must set exactly one of allow or deny", p.Label)
		}
	}
	for _, b := range d.PolicyBinding {
		if len(b.Attributes) == 0 {
			return fmt.Errorf("document: policy-binding in service %q has no attributes", b.Service)
		}
		if len(b.Policies) == 0 {
			return fmt.Errorf("document: policy-binding in service %q targets no policies", b.Service)
		}
	}
	return nil
}
