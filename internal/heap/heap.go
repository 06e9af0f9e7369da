// Package heap owns the VM's object list and the tracing garbage collector
// (spec §3, §4.2): an intrusive singly linked list of heap objects plus a
// tri-color mark-sweep collector with adaptive triggering, grounded in
// _examples/original_source/pi_vm.c's add_obj/count_objs and the trailing
// GC-threshold block of run().
package heap

import "piscript/internal/value"

const (
	minNextGC = 1024
	maxNextGC = 1 << 20
	// freedThreshold mirrors pi_vm.c: if a cycle freed at least this many
	// objects, the collector was effective and next_gc is halved; otherwise
	// it is doubled.
	freedThreshold = 128
)

// Heap is the VM's object list head plus the adaptive GC trigger state.
type Heap struct {
	objects *value.Object
	count   int

	counter int
	nextGC  int
}

// New returns an empty heap with the initial GC threshold.
func New() *Heap {
	return &Heap{nextGC: minNextGC}
}

// Add links obj at the head of the object list if it isn't already linked
// (idempotent — pi_vm.c's add_obj).
func (h *Heap) Add(obj *value.Object) *value.Object {
	if obj.InGCList {
		return obj
	}
	obj.InGCList = true
	obj.Color = value.White
	obj.Next = h.objects
	h.objects = obj
	h.count++
	return obj
}

// Count walks the object list and returns its length (debugging parity with
// pi_vm.c's count_objs).
func (h *Heap) Count() int {
	n := 0
	for o := h.objects; o != nil; o = o.Next {
		n++
	}
	return n
}

// Tick advances the per-opcode dispatch counter and reports whether a GC
// cycle should run now.
func (h *Heap) Tick() bool {
	h.counter++
	return h.counter >= h.nextGC
}

// RootSource supplies every GC root the collector must mark from, keeping
// the heap package decoupled from the VM's frame/stack/iterator layout.
type RootSource interface {
	// Roots appends every directly-reachable Value root (stack slots,
	// globals, constants, the currently executing function, etc.) to out
	// and returns the result.
	Roots(out []value.Value) []value.Value
}

// Collect runs one mark-sweep cycle: mark every object reachable from roots,
// then sweep whites, then adaptively retune the trigger threshold.
func (h *Heap) Collect(roots RootSource) {
	before := h.Count()

	var gray []*value.Object
	mark := func(v value.Value) {
		if v.Kind == value.KindObj && v.Obj != nil && v.Obj.Color == value.White {
			v.Obj.Color = value.Gray
			gray = append(gray, v.Obj)
		}
	}

	for _, v := range roots.Roots(nil) {
		mark(v)
	}

	for len(gray) > 0 {
		obj := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		if obj.Color == value.Black {
			continue
		}
		for _, child := range children(obj) {
			mark(child)
		}
		obj.Color = value.Black
	}

	h.sweep()

	freed := before - h.count
	if freed >= freedThreshold {
		h.nextGC /= 2
	} else {
		h.nextGC *= 2
	}
	if h.nextGC < minNextGC {
		h.nextGC = minNextGC
	} else if h.nextGC > maxNextGC {
		h.nextGC = maxNextGC
	}
	h.counter = 0
}

// sweep unlinks and drops every white object, resetting survivors to white
// for the next cycle.
func (h *Heap) sweep() {
	var head, tail *value.Object
	survivors := 0
	for o := h.objects; o != nil; {
		next := o.Next
		if o.Color == value.White {
			o.InGCList = false
			o.Next = nil
		} else {
			o.Color = value.White
			o.Next = nil
			if head == nil {
				head = o
			} else {
				tail.Next = o
			}
			tail = o
			survivors++
		}
		o = next
	}
	h.objects = head
	h.count = survivors
}

// children returns every Value an object directly references, grayed before
// the parent recurses (§4.2, §9: color gray before recursing to tolerate
// cycles).
func children(obj *value.Object) []value.Value {
	switch obj.Type {
	case value.ObjList:
		return obj.AsList().Items
	case value.ObjMap:
		m := obj.AsMap()
		out := make([]value.Value, 0, m.Table.Len())
		it := m.Table.Iterator()
		for it.HasNext() {
			_, v := it.Next()
			out = append(out, v)
		}
		if m.Proto != nil {
			out = append(out, value.Obj(m.Proto))
		}
		return out
	case value.ObjFunction:
		fn := obj.AsFunction()
		out := make([]value.Value, 0, len(fn.ParamDefaults)+2)
		out = append(out, fn.ParamDefaults...)
		if fn.Body != nil {
			out = append(out, value.Obj(fn.Body))
		}
		if fn.Receiver != nil {
			out = append(out, value.Obj(fn.Receiver))
		}
		for _, uv := range fn.Upvalues {
			if uv.Index < 0 {
				out = append(out, uv.Closed)
			}
		}
		return out
	case value.ObjCode:
		code := obj.AsCode()
		return code.Constants
	case value.ObjIterator:
		return []value.Value{obj.AsIterator().Collection}
	case value.ObjString, value.ObjRange, value.ObjNative:
		return nil
	}
	return nil
}
