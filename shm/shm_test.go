package shm

import "testing"

func TestOpenAttachVisibility(t *testing.T) {
	m := NewManager(4, 4)
	id, err := m.Open(1, -1, 100, OwnerAndChildrenWrite)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ownerPages, canWrite, err := m.Attach(id, 1, 0)
	if err != nil {
		t.Fatalf("owner attach: %v", err)
	}
	if !canWrite {
		t.Fatalf("expected owner attach to be writable")
	}
	childPages, canWrite, err := m.Attach(id, 2, 1) // pid 2 is a direct child of owner pid 1
	if err != nil {
		t.Fatalf("child attach: %v", err)
	}
	if !canWrite {
		t.Fatalf("expected direct child to be granted write under flag=1")
	}
	ownerPages[0][0] = 0x42
	if childPages[0][0] != 0x42 {
		t.Fatalf("expected child to observe owner's write through shared pages")
	}
	if ok, err := m.CanWrite(id, 2); err != nil || !ok {
		t.Fatalf("expected child to be allowed to write under flag=1, got ok=%v err=%v", ok, err)
	}
}

// TestOwnerWriteOnlyGrantsNonOwnerReadOnly confirms flag=0 still lets a
// non-owner attach (spec.md §4.5: "flags == 0 and caller is not owner ->
// read-only"), rather than denying the attach outright.
func TestOwnerWriteOnlyGrantsNonOwnerReadOnly(t *testing.T) {
	m := NewManager(4, 4)
	id, err := m.Open(1, -1, 100, OwnerWriteOnly)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, canWrite, err := m.Attach(id, 2, 1); err != nil {
		t.Fatalf("expected non-owner attach to succeed read-only under flag=0, got err=%v", err)
	} else if canWrite {
		t.Fatalf("expected non-owner attach to be read-only under flag=0")
	}
	if _, canWrite, err := m.Attach(id, 1, 0); err != nil || !canWrite {
		t.Fatalf("owner attach should succeed writable: canWrite=%v err=%v", canWrite, err)
	}
}

// TestChildrenWriteFlagDeniesNonChildren confirms flag=1 only grants
// attach to the owner or a direct child — any other pid is denied
// outright, per spec.md §4.5's "else panic access denied".
func TestChildrenWriteFlagDeniesNonChildren(t *testing.T) {
	m := NewManager(4, 4)
	id, err := m.Open(1, -1, 100, OwnerAndChildrenWrite)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := m.Attach(id, 3, 99); err != ErrAccessDenied {
		t.Fatalf("expected ErrAccessDenied for a non-child under flag=1, got %v", err)
	}
	if _, canWrite, err := m.Attach(id, 2, 1); err != nil || !canWrite {
		t.Fatalf("expected direct child attach to succeed writable: canWrite=%v err=%v", canWrite, err)
	}
}

func TestCloseDoesNotUnmapOtherAttachers(t *testing.T) {
	m := NewManager(4, 4)
	id, _ := m.Open(1, -1, 100, OwnerAndChildrenWrite)
	ownerPages, _, _ := m.Attach(id, 1, 0)
	childPages, _, _ := m.Attach(id, 2, 1)

	if err := m.Close(id, 1); err != nil {
		t.Fatalf("owner close: %v", err)
	}
	// The documented limitation: the block is still live for the
	// remaining attacher, and the backing pages are still the same
	// array, even though the owner has "closed" its handle.
	ownerPages[0][1] = 0x7
	if childPages[0][1] != 0x7 {
		t.Fatalf("expected shm_close to leave the block mapped for other attachers")
	}
	if _, err := m.find(id); err != nil {
		t.Fatalf("expected block to remain live after only one of two attachers closed: %v", err)
	}
}

func TestCloseFreesSlotOnceAllAttachersGone(t *testing.T) {
	m := NewManager(4, 4)
	id, _ := m.Open(1, -1, 100, OwnerWriteOnly)
	m.Attach(id, 1, 0)
	if err := m.Close(id, 1); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.find(id); err != ErrNotFound {
		t.Fatalf("expected slot to be freed once the last attacher closed, got %v", err)
	}
}

func TestAttachUnknownIDReturnsCleanError(t *testing.T) {
	m := NewManager(2, 4)
	if _, _, err := m.Attach(0, 1, 0); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound attaching an unopened id, got %v", err)
	}
}
