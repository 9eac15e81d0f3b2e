package document

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestStoreCheckAndRecord(t *testing.T) {
	t.Parallel()

	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	doc1 := &Document{Entity: []Entity{{Label: "alice"}}}
	doc1.AuthlyDocument.ID = mustUUID(t, "83648f1e-e6ac-4492-87f7-43d5e5805d60")

	if err := store.CheckAndRecord(ctx, "doc1.toml", doc1); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	// Re-applying the same document (same id) must not conflict with itself.
	if err := store.CheckAndRecord(ctx, "doc1.toml", doc1); err != nil {
		t.Fatalf("re-apply of same document: %v", err)
	}

	doc2 := &Document{Entity: []Entity{{Label: "alice"}}}
	doc2.AuthlyDocument.ID = mustUUID(t, "11111111-1111-1111-1111-111111111111")
	err = store.CheckAndRecord(ctx, "doc2.toml", doc2)
	if err == nil || !strings.Contains(err.Error(), "alice") {
		t.Fatalf("expected a label collision error, got %v", err)
	}
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse uuid fixture: %v", err)
	}
	return id
}
