package upstreamtab

import "testing"

func TestNewTable_RejectsEmptyName(t *testing.T) {
	_, err := NewTable([]*Descriptor{{Name: "", Weight: 1}})
	if err == nil {
		t.Fatalf("expected an error for an empty upstream name")
	}
}

func TestNewTable_RejectsDuplicateName(t *testing.T) {
	_, err := NewTable([]*Descriptor{
		{Name: "svc-a", Weight: 1},
		{Name: "svc-a", Weight: 2},
	})
	if err == nil {
		t.Fatalf("expected an error for a duplicate upstream name")
	}
}

func TestTable_NamesPreservesDeclarationOrder(t *testing.T) {
	tbl, err := NewTable([]*Descriptor{
		{Name: "svc-b", Weight: 1},
		{Name: "svc-a", Weight: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := tbl.Names()
	if len(names) != 2 || names[0] != "svc-b" || names[1] != "svc-a" {
		t.Fatalf("expected declaration order preserved, got %v", names)
	}
}

func TestTable_GetKnownAndUnknown(t *testing.T) {
	tbl, err := NewTable([]*Descriptor{{Name: "svc-a", Weight: 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := tbl.Get("svc-a"); !ok {
		t.Fatalf("expected svc-a to be present")
	}
	if _, ok := tbl.Get("svc-missing"); ok {
		t.Fatalf("expected svc-missing to be absent")
	}
}
