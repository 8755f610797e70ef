package session

import "testing"

func TestAbortRegistry_UnknownSession(t *testing.T) {
	r := NewAbortRegistry()

	if r.ShouldAbort("missing") {
		t.Error("unknown session should not be marked for abort")
	}
}

func TestAbortRegistry_RequestAndClear(t *testing.T) {
	r := NewAbortRegistry()

	r.RequestAbort("s1")
	if !r.ShouldAbort("s1") {
		t.Error("expected session to be marked for abort")
	}
	if r.ShouldAbort("s2") {
		t.Error("unrelated session should not be marked")
	}

	r.Clear("s1")
	if r.ShouldAbort("s1") {
		t.Error("cleared session should not be marked for abort")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d entries", r.Len())
	}
}

func TestAbortRegistry_Idempotent(t *testing.T) {
	r := NewAbortRegistry()

	r.RequestAbort("s1")
	r.RequestAbort("s1")
	if !r.ShouldAbort("s1") {
		t.Error("double abort request should still mark the session")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 entry after duplicate requests, got %d", r.Len())
	}

	r.Clear("s1")
	r.Clear("s1") // second clear is a no-op
	r.Clear("never-existed")
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d entries", r.Len())
	}
}
