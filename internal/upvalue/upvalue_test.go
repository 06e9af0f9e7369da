package upvalue

import (
	"testing"

	"piscript/internal/value"
)

func TestCaptureSharesSameSlot(t *testing.T) {
	r := &Registry{}
	stack := []value.Value{value.Num(1), value.Num(2)}

	a := r.Capture(0, stack)
	b := r.Capture(0, stack)
	if a != b {
		t.Fatal("two captures of the same slot should alias one UpvalueRef")
	}
}

func TestLoadReadsThroughOpenSlot(t *testing.T) {
	r := &Registry{}
	stack := []value.Value{value.Num(42)}
	ref := r.Capture(0, stack)

	stack[0] = value.Num(99)
	if got := Load(ref, stack); got.Num != 99 {
		t.Fatalf("Load() = %v, want 99 (open upvalue reads live stack)", got.Num)
	}
}

func TestStoreWritesThroughOpenSlot(t *testing.T) {
	r := &Registry{}
	stack := []value.Value{value.Num(1)}
	ref := r.Capture(0, stack)

	Store(ref, stack, value.Num(7))
	if stack[0].Num != 7 {
		t.Fatalf("stack[0] = %v, want 7", stack[0].Num)
	}
}

func TestCloseSlotFreezesValueAndUnlinks(t *testing.T) {
	r := &Registry{}
	stack := []value.Value{value.Num(5)}
	ref := r.Capture(0, stack)

	r.CloseSlot(0, stack)
	if ref.Index != -1 {
		t.Fatalf("ref.Index = %d, want -1 after close", ref.Index)
	}
	if ref.Closed.Num != 5 {
		t.Fatalf("ref.Closed = %v, want 5", ref.Closed.Num)
	}

	stack[0] = value.Num(1000)
	if got := Load(ref, stack); got.Num != 5 {
		t.Fatalf("Load() after close = %v, want frozen value 5", got.Num)
	}
}

func TestCloseSlotAffectsAllAliases(t *testing.T) {
	r := &Registry{}
	stack := []value.Value{value.Num(3)}
	a := r.Capture(0, stack)
	b := r.Capture(0, stack)

	r.CloseSlot(0, stack)
	if a.Index != -1 || b.Index != -1 {
		t.Fatal("closing the slot must close every alias")
	}
}

func TestCloseFromClosesEverySlotAtOrAbove(t *testing.T) {
	r := &Registry{}
	stack := []value.Value{value.Num(1), value.Num(2), value.Num(3)}
	refs := []*value.UpvalueRef{r.Capture(0, stack), r.Capture(1, stack), r.Capture(2, stack)}

	r.CloseFrom(1, stack)
	if refs[0].Index != 0 {
		t.Fatal("slot below the cutoff should remain open")
	}
	if refs[1].Index != -1 || refs[2].Index != -1 {
		t.Fatal("every slot at or above the cutoff should be closed")
	}
}
