package ingest

import "testing"

func TestAncestryParentSkipsLevels(t *testing.T) {
	t.Parallel()
	a := NewAncestry()

	if _, _, ok := a.Parent(0); ok {
		t.Fatalf("empty ancestry should have no parent")
	}
	if _, _, ok := a.Parent(3); ok {
		t.Fatalf("empty ancestry should have no parent at any level")
	}

	a.Advance(0, 10)
	id, level, ok := a.Parent(3)
	if !ok || id != 10 || level != 0 {
		t.Fatalf("Parent(3): got id=%d level=%d ok=%v", id, level, ok)
	}

	a.Advance(1, 20)
	id, level, ok = a.Parent(3)
	if !ok || id != 20 || level != 1 {
		t.Fatalf("Parent(3) after level 1: got id=%d level=%d ok=%v", id, level, ok)
	}

	// A row at the same level is a sibling, not a child: its parent comes
	// from strictly above.
	id, level, ok = a.Parent(1)
	if !ok || id != 10 || level != 0 {
		t.Fatalf("Parent(1): got id=%d level=%d ok=%v", id, level, ok)
	}
}

func TestAncestryAdvanceClearsDeeperSlots(t *testing.T) {
	t.Parallel()
	a := NewAncestry()

	a.Advance(0, 10)
	a.Advance(1, 20)
	a.Advance(2, 30)

	// Climbing back to level 1 starts a new branch; the old level-2 slot
	// must not leak into it.
	a.Advance(1, 21)
	if id, ok := a.At(2); ok {
		t.Fatalf("level 2 slot survived branch switch: id=%d", id)
	}
	id, level, ok := a.Parent(2)
	if !ok || id != 21 || level != 1 {
		t.Fatalf("Parent(2) on new branch: got id=%d level=%d ok=%v", id, level, ok)
	}

	a.Reset()
	if _, _, ok := a.Parent(5); ok {
		t.Fatalf("reset ancestry should be empty")
	}
}
