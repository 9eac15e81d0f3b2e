package property

import (
	"context"
	"testing"

	"github.com/authlyhq/authly-go/id128"
)

func TestMappingPutAndTranslate(t *testing.T) {
	t.Parallel()

	m := NewMapping()
	want := id128.FromUint(id128.Attribute, 1)
	m.Put("ns1", "prop1", "attr1", want)

	got, ok := m.AttributeID("ns1", "prop1", "attr1")
	if !ok || got != want {
		t.Fatalf("AttributeID = (%v, %v), want (%v, true)", got, ok, want)
	}

	triples := []Triple{
		{Namespace: "ns1", Property: "prop1", Attribute: "attr1"},
		{Namespace: "ns1", Property: "prop1", Attribute: "missing"},
		{Namespace: "missing-ns", Property: "p", Attribute: "a"},
	}
	set := m.Translate(triples)
	if len(set) != 1 || !set.Has(want) {
		t.Fatalf("Translate should silently drop unknown triples, got %v", set)
	}
}

func TestParseQualifiedAttribute(t *testing.T) {
	t.Parallel()

	q, err := ParseQualifiedAttribute("authly:role:authenticate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Namespace != "authly" || q.Property != "role" || q.Attribute != "authenticate" {
		t.Fatalf("parsed = %+v", q)
	}
	if got := q.String(); got != "authly:role:authenticate" {
		t.Errorf("String() = %q", got)
	}

	for _, bad := range []string{"only-two:parts", "too:many:parts:here", "", "a::c"} {
		if _, err := ParseQualifiedAttribute(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestCacheRefreshSwapsSnapshot(t *testing.T) {
	t.Parallel()

	calls := 0
	c := NewCache(func(ctx context.Context) (*Mapping, error) {
		calls++
		m := NewMapping()
		m.Put("ns", "p", "a", id128.FromUint(id128.Attribute, uint64(calls)))
		return m, nil
	})

	first := c.Current()
	if len(first.Namespaces()) != 0 {
		t.Fatal("initial cache should be empty until Refresh")
	}

	refreshed, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if c.Current() != refreshed {
		t.Error("Current() should return the just-refreshed snapshot")
	}
	id, ok := refreshed.AttributeID("ns", "p", "a")
	if !ok || id != id128.FromUint(id128.Attribute, 1) {
		t.Fatalf("unexpected refreshed content: %v %v", id, ok)
	}
}
