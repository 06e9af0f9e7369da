// Package upvalue implements the open-upvalue registry (spec §4.3), grounded
// in _examples/original_source/pi_vm.c's capture_upvalue/remove_upvalue: a
// singly linked list of upvalues keyed by stack slot, supporting shared
// capture and per-slot close.
package upvalue

import "piscript/internal/value"

// Registry is the VM's list of currently-open upvalues.
type Registry struct {
	open *node
}

type node struct {
	ref  *value.UpvalueRef
	slot int
	next *node
}

// Capture returns the open upvalue for stack slot, creating one (which reads
// and writes stack[slot] while open) if none exists yet. Multiple captures of
// the same slot alias one UpvalueRef.
func (r *Registry) Capture(slot int, stack []value.Value) *value.UpvalueRef {
	for n := r.open; n != nil; n = n.next {
		if n.slot == slot {
			return n.ref
		}
	}
	ref := &value.UpvalueRef{Index: slot}
	r.open = &node{ref: ref, slot: slot, next: r.open}
	_ = stack // the ref reads through Index into the live stack, not a copy
	return ref
}

// CloseSlot closes the open upvalue (if any) for the given stack slot,
// copying its current stack value into the ref and unlinking it from the
// open list. Called on POP/POP_N and, for every slot >= the new sp, on
// frame return (§4.4).
func (r *Registry) CloseSlot(slot int, stack []value.Value) {
	var prev *node
	for n := r.open; n != nil; n = n.next {
		if n.slot == slot {
			n.ref.Closed = stack[slot]
			n.ref.Index = -1
			if prev == nil {
				r.open = n.next
			} else {
				prev.next = n.next
			}
			return
		}
		prev = n
	}
}

// CloseFrom closes every open upvalue with slot >= from, the same closing
// the VM's RETURN handler performs slot by slot for every local above the
// returning frame's base pointer.
func (r *Registry) CloseFrom(from int, stack []value.Value) {
	for slot := len(stack) - 1; slot >= from; slot-- {
		r.CloseSlot(slot, stack)
	}
}

// Load reads the current value of an upvalue: the live stack slot while
// open, the closed cell once closed.
func Load(ref *value.UpvalueRef, stack []value.Value) value.Value {
	if ref.Index >= 0 {
		return stack[ref.Index]
	}
	return ref.Closed
}

// Store writes through an upvalue, symmetric with Load.
func Store(ref *value.UpvalueRef, stack []value.Value, v value.Value) {
	if ref.Index >= 0 {
		stack[ref.Index] = v
	} else {
		ref.Closed = v
	}
}

// Roots returns the UpvalueRef of every currently open upvalue (closing one
// unlinks it, so every ref returned has Index >= 0). The VM's GC root set
// does not call it: an open upvalue's storage is a stack slot, which is
// already a root.
func (r *Registry) Roots() []*value.UpvalueRef {
	var out []*value.UpvalueRef
	for n := r.open; n != nil; n = n.next {
		out = append(out, n.ref)
	}
	return out
}
