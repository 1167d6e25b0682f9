package ledger

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAppendAndCurrent(t *testing.T) {
	l := New("v1")
	if l.Current() != "v1" || l.Len() != 1 {
		t.Fatalf("fresh ledger: current=%q len=%d", l.Current(), l.Len())
	}
	l.Append("v2")
	l.Append("v3")
	if l.Current() != "v3" || l.Len() != 3 {
		t.Fatalf("after appends: current=%q len=%d", l.Current(), l.Len())
	}
}

func TestRollback(t *testing.T) {
	l := New("v1")
	l.Append("v2")
	dropped, err := l.Rollback()
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if dropped != "v2" {
		t.Fatalf("dropped = %q, want v2", dropped)
	}
	if l.Current() != "v1" || l.Len() != 1 {
		t.Fatalf("after rollback: current=%q len=%d", l.Current(), l.Len())
	}
}

func TestRollbackAtOriginalFails(t *testing.T) {
	l := New("v1")
	_, err := l.Rollback()
	if !errors.Is(err, ErrNoPreviousVersion) {
		t.Fatalf("err = %v, want ErrNoPreviousVersion", err)
	}
	if l.Len() != 1 || l.Current() != "v1" {
		t.Fatalf("failed rollback mutated ledger: len=%d current=%q", l.Len(), l.Current())
	}
}

func TestFromVersions(t *testing.T) {
	if _, err := FromVersions(nil); err == nil {
		t.Fatal("expected error for empty version list")
	}
	l, err := FromVersions([]string{"a", "b"})
	if err != nil {
		t.Fatalf("FromVersions: %v", err)
	}
	if l.Current() != "b" {
		t.Fatalf("current = %q", l.Current())
	}
	if diff := cmp.Diff([]string{"a", "b"}, l.Versions()); diff != "" {
		t.Fatalf("versions mismatch:\n%s", diff)
	}
	// Versions returns a copy.
	l.Versions()[0] = "mutated"
	if l.Versions()[0] != "a" {
		t.Fatal("Versions leaked internal slice")
	}
}
