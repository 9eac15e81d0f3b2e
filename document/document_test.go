package document

import (
	"strings"
	"testing"
)

const testManifest = `
[authly-document]
id = "83648f1e-e6ac-4492-87f7-43d5e5805d60"

[[entity]]
eid = "p.aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"
label = "alice"
email = ["alice@example.com"]
password-hash = ["$argon2id$..."]

[[entity]]
eid = "p.aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa2"

[[resource-property]]
service = "billing"
label = "role"
attributes = ["admin", "viewer"]

[[policy]]
service = "billing"
label = "admin-only"
allow = "subject.attrs.contains(billing:role:admin)"

[[policy-binding]]
service = "billing"
attributes = ["billing:role:admin"]
policies = ["admin-only"]
`

func TestParse(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(testManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.AuthlyDocument.ID.String() != "83648f1e-e6ac-4492-87f7-43d5e5805d60" {
		t.Errorf("document id = %s", doc.AuthlyDocument.ID)
	}
	if len(doc.Entity) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(doc.Entity))
	}
	if doc.Entity[1].Label == "" {
		t.Error("entity with no explicit label should get a generated one")
	}

	if len(doc.Email) != 1 || doc.Email[0].Entity != "alice" || doc.Email[0].Value != "alice@example.com" {
		t.Errorf("email flattening failed: %+v", doc.Email)
	}
	if len(doc.PasswordHash) != 1 || doc.PasswordHash[0].Entity != "alice" {
		t.Errorf("password-hash flattening failed: %+v", doc.PasswordHash)
	}
	if len(doc.Entity[0].Email) != 0 || len(doc.Entity[0].PasswordHash) != 0 {
		t.Errorf("entity inline email/password-hash should be cleared after flattening")
	}

	if len(doc.PolicyBinding) != 1 || doc.PolicyBinding[0].Attributes[0].String() != "billing:role:admin" {
		t.Errorf("policy binding attributes = %+v", doc.PolicyBinding)
	}
}

func TestParseMissingDocumentID(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("[[entity]]\neid = \"p.aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1\"\n"))
	if err == nil {
		t.Fatal("expected an error for a missing [authly-document] table")
	}
}

func TestValidateDuplicateLabel(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`
[authly-document]
id = "83648f1e-e6ac-4492-87f7-43d5e5805d60"

[[entity]]
eid = "p.aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"
label = "dup"

[[entity]]
eid = "p.aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa2"
label = "dup"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := doc.Validate(); err == nil || !strings.Contains(err.Error(), "dup") {
		t.Fatalf("Validate() = %v, want a duplicate-label error", err)
	}
}

func TestValidatePolicyRequiresExactlyOneClass(t *testing.T) {
	t.Parallel()

	doc := &Document{Policy: []Policy{{Service: "svc", Label: "p1"}}}
	if err := doc.Validate(); err == nil {
		t.Fatal("expected an error when neither allow nor deny is set")
	}

	doc = &Document{Policy: []Policy{{Service: "svc", Label: "p1", Allow: "true", Deny: "true"}}}
	if err := doc.Validate(); err == nil {
		t.Fatal("expected an error when both allow and deny are set")
	}
}
