// Package document parses and validates Authly's declarative off-line
// manifest format: a TOML document describing entities, properties,
// policies and bindings, as consumed by an offline authority apply/sync
// step. The core client runtime never reads this format at request time;
// it is consumed here only by the cmd/authlyctl `validate`/`apply
// --dry-run` tooling.
package document

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/authlyhq/authly-go/id128"
	"github.com/authlyhq/authly-go/property"
)

// Document is the root of one manifest file: a required `authly-document`
// header, optional `[local-settings]`, and the repeated entity/property/
// policy tables.
type Document struct {
	AuthlyDocument AuthlyDocument `toml:"authly-document"`
	LocalSettings  LocalSettings  `toml:"local-settings"`

	Entity        []Entity `toml:"entity"`
	ServiceEntity []Entity `toml:"service-entity"`

	Domain        []Domain `toml:"domain"`
	ServiceDomain []Domain `toml:"service-domain"`

	Email                     []Email                     `toml:"email"`
	PasswordHash              []PasswordHash              `toml:"password-hash"`
	Members                   []Members                   `toml:"members"`
	EntityProperty            []EntityProperty            `toml:"entity-property"`
	EntityAttributeAssignment []EntityAttributeAssignment `toml:"entity-attribute-assignment"`
	ResourceProperty          []ResourceProperty           `toml:"resource-property"`
	Policy                    []Policy                    `toml:"policy"`
	PolicyBinding             []PolicyBinding              `toml:"policy-binding"`
}

// AuthlyDocument is the mandatory `[authly-document]` header identifying
// this manifest as an authority for the entities it declares.
type AuthlyDocument struct {
	ID uuid.UUID `toml:"id"`
}

// LocalSettings is the optional `[local-settings]` table: settings that
// apply only when this document is applied to the local authority
// instance, never synced onward.
type LocalSettings struct {
	Hostname string `toml:"hostname"`
	PortHTTP int    `toml:"port_http"`
}

// Entity declares a persona, group, or service by its stable ID and an
// optional label. Email and password-hash entries nested directly under an
// `[[entity]]` table are flattened into the Email/PasswordHash tables
// during Parse; a nested kubernetes-account table stays on the Entity.
type Entity struct {
	EID               id128.EntityId     `toml:"eid"`
	Label             string             `toml:"label"`
	Attributes        []string           `toml:"attributes"`
	Username          string             `toml:"username"`
	Email             []string           `toml:"email"`
	PasswordHash      []string           `toml:"password-hash"`
	KubernetesAccount *KubernetesAccount `toml:"kubernetes-account"`
}

// KubernetesAccount binds a service entity to a workload-orchestrator
// service account, the same linkage the CSR-exchange bootstrap
// (identity.Infer) authenticates against.
type KubernetesAccount struct {
	Namespace string `toml:"namespace"`
	Name      string `toml:"name"`
}

// Domain declares a resource domain (or, under `[[service-domain]]`, a
// domain scoped to a service) by its stable ID and label.
type Domain struct {
	DID   id128.Id128 `toml:"did"`
	Label string      `toml:"label"`
}

// Email binds a login email address to an entity, either declared
// directly or flattened out of an Entity.Email field.
type Email struct {
	Entity string `toml:"entity"`
	Value  string `toml:"value"`
}

// PasswordHash binds a password hash to an entity, either declared
// directly or flattened out of an Entity.PasswordHash field.
type PasswordHash struct {
	Entity string `toml:"entity"`
	Hash   string `toml:"hash"`
}

// Members declares a group's member entities by label.
type Members struct {
	Entity  string   `toml:"entity"`
	Members []string `toml:"members"`
}

// EntityProperty declares a property label (optionally scoped to a
// service) under which entity-attribute-assignment values are namespaced.
type EntityProperty struct {
	Service    string   `toml:"service"`
	Label      string   `toml:"label"`
	Attributes []string `toml:"attributes"`
}

// EntityAttributeAssignment assigns a qualified attribute to a named
// entity, independent of the entity's own inline `attributes` list.
type EntityAttributeAssignment struct {
	Entity     string                        `toml:"entity"`
	Attributes []property.QualifiedAttribute `toml:"attributes"`
}

// ResourceProperty declares a resource-attribute property under a
// service, mirroring EntityProperty for the resource side of the
// property mapping.
type ResourceProperty struct {
	Service    string   `toml:"service"`
	Label      string   `toml:"label"`
	Attributes []string `toml:"attributes"`
}

// Policy declares one compiled-policy source expression under a service,
// with exactly one of Allow or Deny populated, matching the bytecode
// engine's Allow/Deny class.
type Policy struct {
	Service string `toml:"service"`
	Label   string `toml:"label"`
	Allow   string `toml:"allow"`
	Deny    string `toml:"deny"`
}

// PolicyBinding ties a set of qualified attributes (the trigger's
// required-attribute-set) to the policies it activates, under a service.
type PolicyBinding struct {
	Service    string                        `toml:"service"`
	Attributes []property.QualifiedAttribute `toml:"attributes"`
	Policies   []string                      `toml:"policies"`
}

// Parse decodes a TOML manifest and flattens inline entity fields: inline
// email/password-hash entries on an `[[entity]]` table become top-level
// Email/PasswordHash rows keyed by the entity's label, and an entity with
// no explicit label is assigned a generated one.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("document: parse: %w", err)
	}
	if doc.AuthlyDocument.ID == uuid.Nil {
		return nil, fmt.Errorf("document: missing or invalid [authly-document] id")
	}
	preprocess(&doc)
	return &doc, nil
}

func preprocess(doc *Document) {
	flatten := func(entities []Entity) {
		for i := range entities {
			e := &entities[i]
			if e.Label == "" {
				e.Label = uuid.New().String()
			}
			for _, addr := range e.Email {
				doc.Email = append(doc.Email, Email{Entity: e.Label, Value: addr})
			}
			e.Email = nil
			for _, hash := range e.PasswordHash {
				doc.PasswordHash = append(doc.PasswordHash, PasswordHash{Entity: e.Label, Hash: hash})
			}
			e.PasswordHash = nil
		}
	}
	flatten(doc.Entity)
	flatten(doc.ServiceEntity)
}

// Policies returns the declared `[[policy]]` entries as parsed, in file
// order.
func (d *Document) Policies() []Policy {
	return d.Policy
}
