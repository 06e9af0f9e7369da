package bytecode

import (
	"testing"

	"piscript/internal/value"
)

func TestAddConstantReturnsIndex(t *testing.T) {
	c := NewCode()
	i0 := c.AddConstant(value.Num(1))
	i1 := c.AddConstant(value.Num(2))
	if i0 != 0 || i1 != 1 {
		t.Fatalf("AddConstant indices = %d, %d; want 0, 1", i0, i1)
	}
}

func TestAddNameInterns(t *testing.T) {
	c := NewCode()
	i0 := c.AddName("x")
	i1 := c.AddName("y")
	i2 := c.AddName("x")
	if i0 != 0 || i1 != 1 {
		t.Fatalf("AddName fresh indices = %d, %d; want 0, 1", i0, i1)
	}
	if i2 != i0 {
		t.Fatalf("AddName(\"x\") again = %d, want %d (reused)", i2, i0)
	}
	if len(c.Names) != 2 {
		t.Fatalf("len(Names) = %d, want 2", len(c.Names))
	}
}

func TestEmitShortIsBigEndian(t *testing.T) {
	c := NewCode()
	c.EmitShort(0x1234)
	if len(c.Code) != 2 || c.Code[0] != 0x12 || c.Code[1] != 0x34 {
		t.Fatalf("EmitShort(0x1234) wrote %x, want [12 34]", c.Code)
	}
}

func TestReadShortRoundTrips(t *testing.T) {
	c := NewCode()
	c.EmitShort(4660) // 0x1234
	if got := ReadShort(c.Code, 0); got != 4660 {
		t.Fatalf("ReadShort() = %d, want 4660", got)
	}
}

func TestReadSignedShortNegative(t *testing.T) {
	c := NewCode()
	c.EmitShort(-5 & 0xFFFF)
	if got := ReadSignedShort(c.Code, 0); got != -5 {
		t.Fatalf("ReadSignedShort() = %d, want -5", got)
	}
}

func TestEmitJumpPatchJumpLandsAtCurrentEnd(t *testing.T) {
	c := NewCode()
	pos := c.EmitJump(OpJump)
	c.Emit(OpNo)
	c.Emit(OpNo)
	c.PatchJump(pos)

	offset := ReadSignedShort(c.Code, pos)
	// §4.6: offset is relative to the operand's own start (pos), so a taken
	// jump lands at pos+offset-1 directly — the dispatch loop does not add a
	// further +2 for the operand width on the taken-branch path.
	landedAt := pos + offset - 1
	if landedAt != len(c.Code) {
		t.Fatalf("patched jump lands at %d, want %d (end of code)", landedAt, len(c.Code))
	}
}
