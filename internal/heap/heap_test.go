package heap

import (
	"testing"

	"piscript/internal/value"
)

func TestAddIsIdempotent(t *testing.T) {
	h := New()
	obj := value.NewString("x")
	h.Add(obj)
	h.Add(obj)
	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after adding the same object twice", h.Count())
	}
}

func TestCountWalksList(t *testing.T) {
	h := New()
	for i := 0; i < 5; i++ {
		h.Add(value.NewString("x"))
	}
	if h.Count() != 5 {
		t.Fatalf("Count() = %d, want 5", h.Count())
	}
}

func TestTickFiresAtThreshold(t *testing.T) {
	h := New()
	for i := 0; i < minNextGC-1; i++ {
		if h.Tick() {
			t.Fatalf("Tick() fired early at iteration %d", i)
		}
	}
	if !h.Tick() {
		t.Fatal("Tick() should fire once the counter reaches nextGC")
	}
}

// fakeRoots lets a test control exactly what the collector considers live.
type fakeRoots struct{ roots []value.Value }

func (f fakeRoots) Roots(out []value.Value) []value.Value { return append(out, f.roots...) }

func TestCollectSweepsUnreachable(t *testing.T) {
	h := New()
	live := h.Add(value.NewString("live"))
	h.Add(value.NewString("garbage"))

	h.Collect(fakeRoots{roots: []value.Value{value.Obj(live)}})

	if h.Count() != 1 {
		t.Fatalf("Count() = %d after collect, want 1 (only the rooted object survives)", h.Count())
	}
}

func TestCollectMarksTransitiveChildren(t *testing.T) {
	h := New()
	inner := h.Add(value.NewString("inner"))
	outer := h.Add(value.NewList([]value.Value{value.Obj(inner)}))
	h.Add(value.NewString("garbage"))

	h.Collect(fakeRoots{roots: []value.Value{value.Obj(outer)}})

	if h.Count() != 2 {
		t.Fatalf("Count() = %d after collect, want 2 (outer list plus its referenced string)", h.Count())
	}
}

func TestCollectRetunesThreshold(t *testing.T) {
	h := New()
	for i := 0; i < 200; i++ {
		h.Add(value.NewString("garbage"))
	}
	// Start above the floor so that halving is observable despite the clamp.
	h.nextGC = 4 * minNextGC
	before := h.nextGC
	h.Collect(fakeRoots{})
	if h.nextGC >= before {
		t.Fatalf("nextGC = %d, want less than %d after freeing >= freedThreshold objects", h.nextGC, before)
	}
	if h.nextGC < minNextGC || h.nextGC > maxNextGC {
		t.Fatalf("nextGC = %d, want within [%d, %d]", h.nextGC, minNextGC, maxNextGC)
	}
}
