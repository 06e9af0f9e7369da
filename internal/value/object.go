package value

import (
	"fmt"
	"strings"

	"piscript/internal/hashmap"
)

// ObjType discriminates the payload carried by an Object.
type ObjType uint8

const (
	ObjString ObjType = iota
	ObjList
	ObjMap
	ObjRange
	ObjFunction
	ObjNative
	ObjCode
	ObjIterator
)

func (t ObjType) String() string {
	switch t {
	case ObjString:
		return "string"
	case ObjList:
		return "list"
	case ObjMap:
		return "map"
	case ObjRange:
		return "range"
	case ObjFunction:
		return "function"
	case ObjNative:
		return "function"
	case ObjCode:
		return "code"
	case ObjIterator:
		return "iterator"
	}
	return "object"
}

// GCColor is the tri-color mark-sweep state of an Object (§4.2).
type GCColor uint8

const (
	White GCColor = iota
	Gray
	Black
)

// Object is the common heap-object header (§3): every heap value carries a
// type discriminator, GC bookkeeping, and an intrusive "next" link so the GC
// can walk every live object without a side table.
type Object struct {
	Type     ObjType
	Color    GCColor
	InGCList bool
	Next     *Object

	str  *StringData
	list *ListData
	mp   *MapData
	rng  *RangeData
	fn   *FunctionData
	nat  *NativeData
	code *CodeData
	iter *IteratorData
}

func (o *Object) AsString() *StringData   { return o.str }
func (o *Object) AsList() *ListData       { return o.list }
func (o *Object) AsMap() *MapData         { return o.mp }
func (o *Object) AsRange() *RangeData     { return o.rng }
func (o *Object) AsFunction() *FunctionData { return o.fn }
func (o *Object) AsNative() *NativeData   { return o.nat }
func (o *Object) AsCode() *CodeData       { return o.code }
func (o *Object) AsIterator() *IteratorData { return o.iter }

func (o *Object) String() string {
	switch o.Type {
	case ObjString:
		return o.str.Data
	case ObjList:
		parts := make([]string, len(o.list.Items))
		for i, it := range o.list.Items {
			parts[i] = it.AsString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ObjMap:
		parts := make([]string, 0, len(o.mp.Table.Keys()))
		for _, k := range o.mp.Table.Keys() {
			v, _ := o.mp.Table.Get(k)
			parts = append(parts, fmt.Sprintf("%s: %s", k, v.AsString()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ObjRange:
		return fmt.Sprintf("%g..%g", o.rng.Start, o.rng.End)
	case ObjFunction:
		if o.fn.Name != "" {
			return fmt.Sprintf("<function %s>", o.fn.Name)
		}
		return "<function>"
	case ObjNative:
		return fmt.Sprintf("<native %s>", o.nat.Name)
	case ObjCode:
		return "<code>"
	case ObjIterator:
		return "<iterator>"
	}
	return "<object>"
}

// StringData is immutable; slicing/indexing/concatenation always produce a
// new Object.
type StringData struct {
	Data string
}

func NewString(s string) *Object {
	return &Object{Type: ObjString, str: &StringData{Data: s}}
}

// ListData is an ordered sequence of Value plus opportunistically-maintained
// matrix metadata (§3, invariant 5).
type ListData struct {
	Items     []Value
	IsNumeric bool
	IsMatrix  bool
	Rows      int
	Cols      int
	// IterCursor is not used by the VM: PUSH_ITER keeps the cursor in a
	// separate iterator object (IteratorData.Index).
	IterCursor int
}

func NewList(items []Value) *Object {
	return &Object{Type: ObjList, list: &ListData{Items: items, Rows: -1, Cols: -1}}
}

// MapData is the backing object for map literals and for instances; Proto
// links to the prototype map when IsInstance is set.
type MapData struct {
	Table      *hashmap.OrderedMap[Value]
	Proto      *Object // nil or an Object with Type == ObjMap
	IsInstance bool
	IterCursor int
}

func NewMap(table *hashmap.OrderedMap[Value]) *Object {
	return &Object{Type: ObjMap, mp: &MapData{Table: table}}
}

// RangeData iterates numbers from Start to End (exclusive) by Step.
type RangeData struct {
	Start, End, Step float64
	Current          float64
	started          bool
}

func NewRange(start, end, step float64) *Object {
	return &Object{Type: ObjRange, rng: &RangeData{Start: start, End: end, Step: step}}
}

// UpvalueRef is a single shared binding: open while Index >= 0 (authoritative
// storage lives on the stack at Index), closed once Index == -1 (storage is
// Closed) — §4.3.
type UpvalueRef struct {
	Index  int
	Closed Value
}

// FunctionData backs both plain functions and closures: Upvalues is nil for
// a plain PUSH_FUNCTION result, populated for PUSH_CLOSURE. A bound method
// is a clone with Receiver set and IsMethod true (§4.5's bind()).
type FunctionData struct {
	Name          string
	Body          *Object // Type == ObjCode
	ParamDefaults []Value
	Upvalues      []*UpvalueRef
	Receiver      *Object // nil, or an Object with Type == ObjMap
	IsMethod      bool
}

func NewFunction(name string, body *Object, defaults []Value, upvalues []*UpvalueRef, receiver *Object) *Object {
	return &Object{Type: ObjFunction, fn: &FunctionData{
		Name: name, Body: body, ParamDefaults: defaults, Upvalues: upvalues, Receiver: receiver,
	}}
}

// Clone returns a shallow copy of the function, used to bind a method to an
// instance without mutating the prototype's function.
func (f *FunctionData) Clone() *FunctionData {
	c := *f
	return &c
}

// NativeFn is the signature every native (built-in) function presents (§6).
type NativeFn func(argv []Value) (Value, error)

type NativeData struct {
	Name string
	Fn   NativeFn
}

func NewNative(name string, fn NativeFn) *Object {
	return &Object{Type: ObjNative, nat: &NativeData{Name: name, Fn: fn}}
}

// InstrRecord attributes a bytecode offset to a source line/column within a
// named function, for error reporting (§4.6, §6).
type InstrRecord struct {
	Offset int
	Line   int
	Column int
	Func   string
}

// CodeData is the bytecode container a compiler hands the VM (§6).
type CodeData struct {
	Code      []byte
	Constants []Value
	Names     []string
	// Instrs maps a function name ("" for the top level) to its ordered
	// instruction table, used to attribute a pc to a source line.
	Instrs map[string][]InstrRecord
}

func NewCode(data *CodeData) *Object {
	return &Object{Type: ObjCode, code: data}
}

// IteratorData is the iteration state over a list/map/range object; the VM
// creates a fresh one, with Index 0, on every PUSH_ITER (§3, §4.6).
type IteratorData struct {
	Collection Value
	Index      int
	// MapKeys snapshots the insertion order of a map's keys at PUSH_ITER time
	// so mutation during iteration cannot desync the cursor from the table.
	MapKeys []string
}

func NewIterator(collection Value) *Object {
	return &Object{Type: ObjIterator, iter: &IteratorData{Collection: collection}}
}
