package value

import (
	"math"
	"testing"
)

func TestAsBool(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"nil", Nil(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero", Num(0), true},
		{"nan", NaN(), true},
		{"string", Obj(NewString("")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.AsBool(); got != tt.want {
				t.Errorf("AsBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAsNumber(t *testing.T) {
	if got := Bool(true).AsNumber(); got != 1 {
		t.Errorf("true.AsNumber() = %v, want 1", got)
	}
	if got := Obj(NewString("3.5")).AsNumber(); got != 3.5 {
		t.Errorf("\"3.5\".AsNumber() = %v, want 3.5", got)
	}
	if got := Obj(NewString("nope")).AsNumber(); got != 0 {
		t.Errorf("unparsable string.AsNumber() = %v, want 0", got)
	}
}

func TestEqualsNumeric(t *testing.T) {
	if !Equals(Num(1), Num(1)) {
		t.Error("Num(1) should equal Num(1)")
	}
	if Equals(NaN(), NaN()) {
		t.Error("nan should never equal nan")
	}
}

func TestEqualsString(t *testing.T) {
	a := Obj(NewString("hi"))
	b := Obj(NewString("hi"))
	if !Equals(a, b) {
		t.Error("distinct string objects with equal content should be Equals")
	}
}

func TestEqualsImpliesCompareZero(t *testing.T) {
	pairs := []struct{ a, b Value }{
		{Num(4), Num(4)},
		{Obj(NewString("x")), Obj(NewString("x"))},
		{Nil(), Nil()},
		{Bool(true), Bool(true)},
	}
	for _, p := range pairs {
		if Equals(p.a, p.b) && Compare(p.a, p.b) != 0 {
			t.Errorf("Equals(%v,%v) but Compare != 0", p.a, p.b)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	if Compare(Num(1), Num(2)) >= 0 {
		t.Error("1 should compare less than 2")
	}
	if Compare(Obj(NewString("a")), Obj(NewString("b"))) >= 0 {
		t.Error("\"a\" should compare less than \"b\"")
	}
}

func TestAsStringRendersEveryKind(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Nil(), "nil"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Num(3), "3"},
		{NaN(), "nan"},
		{Obj(NewString("hi")), "hi"},
	}
	for _, tt := range tests {
		if got := tt.v.AsString(); got != tt.want {
			t.Errorf("AsString() = %q, want %q", got, tt.want)
		}
	}
}

func TestFormatNumberInfinities(t *testing.T) {
	if got := Num(math.Inf(1)).AsString(); got != "inf" {
		t.Errorf("+Inf.AsString() = %q, want %q", got, "inf")
	}
	if got := Num(math.Inf(-1)).AsString(); got != "-inf" {
		t.Errorf("-Inf.AsString() = %q, want %q", got, "-inf")
	}
}
