// Package value defines the tagged-union Value representation shared by the
// VM, the garbage collector, and the ordered hash map.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the variants of Value. Objects carry their own,
// finer-grained discriminator (ObjType) on the heap.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNum
	KindNaN
	KindObj
)

// Value is a small tagged union: nil, bool, num(f64), nan, or a pointer to a
// heap-allocated Object. Num doubles as the bool payload (0/1) so Value needs
// no separate bool field.
type Value struct {
	Kind Kind
	Num  float64
	Obj  *Object
}

func Nil() Value                { return Value{Kind: KindNil} }
func Bool(b bool) Value         { if b { return Value{Kind: KindBool, Num: 1} }; return Value{Kind: KindBool} }
func Num(f float64) Value       { return Value{Kind: KindNum, Num: f} }
func NaN() Value                { return Value{Kind: KindNaN, Num: math.NaN()} }
func Obj(o *Object) Value       { return Value{Kind: KindObj, Obj: o} }

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNum() bool    { return v.Kind == KindNum }
func (v Value) IsNaN() bool    { return v.Kind == KindNaN }
func (v Value) IsObj() bool    { return v.Kind == KindObj }

// IsNumeric is true for both num and nan, since arithmetic on nan propagates
// rather than errors (§3, §7).
func (v Value) IsNumeric() bool { return v.Kind == KindNum || v.Kind == KindNaN }

func (v Value) IsObjType(t ObjType) bool { return v.Kind == KindObj && v.Obj.Type == t }
func (v Value) IsString() bool           { return v.IsObjType(ObjString) }
func (v Value) IsList() bool             { return v.IsObjType(ObjList) }
func (v Value) IsMap() bool              { return v.IsObjType(ObjMap) }
func (v Value) IsRange() bool            { return v.IsObjType(ObjRange) }
func (v Value) IsFunction() bool         { return v.IsObjType(ObjFunction) }
func (v Value) IsNative() bool           { return v.IsObjType(ObjNative) }
func (v Value) IsCode() bool             { return v.IsObjType(ObjCode) }
func (v Value) IsIterator() bool         { return v.IsObjType(ObjIterator) }

// IsCallable covers everything OP_CALL_FUNCTION accepts directly (maps are
// callable too, via construction, but are checked separately by the VM).
func (v Value) IsCallable() bool { return v.IsFunction() || v.IsNative() }

// IsSequence covers slice/index targets (§4.6 PUSH_SLICE, GET_ITEM).
func (v Value) IsSequence() bool { return v.IsList() || v.IsString() }

// IsCollection covers the '#' size operator's operand set.
func (v Value) IsCollection() bool { return v.IsList() || v.IsString() || v.IsMap() }

// AsBool treats nil and false as false; everything else is true.
func (v Value) AsBool() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.Num != 0
	default:
		return true
	}
}

// AsNumber coerces bool -> 0/1, string -> parsed (0 on failure), nil -> 0.
func (v Value) AsNumber() float64 {
	switch v.Kind {
	case KindNum:
		return v.Num
	case KindNaN:
		return math.NaN()
	case KindBool:
		return v.Num
	case KindNil:
		return 0
	case KindObj:
		if v.Obj.Type == ObjString {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.Obj.AsString().Data), 64); err == nil {
				return f
			}
		}
		return 0
	}
	return 0
}

// AsString renders any Value as its textual form.
func (v Value) AsString() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Num != 0 {
			return "true"
		}
		return "false"
	case KindNum:
		return formatNumber(v.Num)
	case KindNaN:
		return "nan"
	case KindObj:
		return v.Obj.String()
	}
	return "<invalid>"
}

func formatNumber(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equals defines value equality: numeric kinds compare by numeric value,
// strings by content, nil equals nil, objects other than strings compare by
// identity.
func Equals(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		if a.IsNaN() || b.IsNaN() {
			return false
		}
		return a.Num == b.Num
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Num == b.Num
	case KindObj:
		if a.Obj.Type == ObjString && b.Obj.Type == ObjString {
			return a.Obj.AsString().Data == b.Obj.AsString().Data
		}
		return a.Obj == b.Obj
	}
	return false
}

// Compare defines a total ordering over numbers and strings: -1, 0, 1.
// Any other pairing compares as 1 unless Equals reports it equal (0).
func Compare(a, b Value) int {
	if a.IsNumeric() && b.IsNumeric() {
		af, bf := a.Num, b.Num
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if a.IsString() && b.IsString() {
		return strings.Compare(a.Obj.AsString().Data, b.Obj.AsString().Data)
	}
	if Equals(a, b) {
		return 0
	}
	return 1
}

func (v Value) GoString() string {
	return fmt.Sprintf("Value{%s}", v.AsString())
}
