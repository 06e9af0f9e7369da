package vm

import (
	"strings"

	"piscript/internal/errors"
	"piscript/internal/hashmap"
	"piscript/internal/value"
)

// execPushList implements PUSH_LIST u16 (§4.6): pop n values, build a list,
// compute matrix metadata from the elements.
func (v *VM) execPushList(n int) error {
	items := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		val, err := v.pop()
		if err != nil {
			return err
		}
		items[i] = val
	}
	listObj := value.NewList(items)
	computeMatrixMeta(listObj.AsList())
	v.track(listObj)
	return v.push(value.Obj(listObj))
}

// execPushMap implements PUSH_MAP u16: pop n (value,key) pairs, store in
// insertion order, flag function values as methods.
func (v *VM) execPushMap(n int) error {
	type kv struct {
		key string
		val value.Value
	}
	pairs := make([]kv, n)
	for i := n - 1; i >= 0; i-- {
		val, err := v.pop()
		if err != nil {
			return err
		}
		key, err := v.pop()
		if err != nil {
			return err
		}
		pairs[i] = kv{key: key.AsString(), val: val}
	}
	table := hashmap.New[value.Value]()
	for _, p := range pairs {
		if p.val.IsFunction() {
			p.val.Obj.AsFunction().IsMethod = true
		}
		table.Put(p.key, p.val)
	}
	mapObj := value.NewMap(table)
	v.track(mapObj)
	return v.push(value.Obj(mapObj))
}

// execPushRange implements PUSH_RANGE: pop (start,end,step); the step
// operand is nil when omitted by the compiler, in which case the direction
// implied by start/end picks +1 or -1 (§4.6).
func (v *VM) execPushRange() error {
	stepV, err := v.pop()
	if err != nil {
		return err
	}
	endV, err := v.pop()
	if err != nil {
		return err
	}
	startV, err := v.pop()
	if err != nil {
		return err
	}

	start, end := startV.AsNumber(), endV.AsNumber()
	var step float64
	if stepV.IsNil() {
		if end < start {
			step = -1
		} else {
			step = 1
		}
	} else {
		step = stepV.AsNumber()
	}

	obj := v.track(value.NewRange(start, end, step))
	return v.push(value.Obj(obj))
}

func clampRange(length int, startV, endV value.Value) (int, int) {
	s := 0
	if !startV.IsNil() {
		s = int(startV.AsNumber())
	}
	e := length
	if !endV.IsNil() {
		e = int(endV.AsNumber())
	}
	if s < 0 {
		s = 0
	}
	if e > length {
		e = length
	}
	return s, e
}

// execPushSlice implements PUSH_SLICE: pop (start,end,step) then the
// sequence, producing a new list or string slice (§4.6).
func (v *VM) execPushSlice() error {
	stepV, err := v.pop()
	if err != nil {
		return err
	}
	endV, err := v.pop()
	if err != nil {
		return err
	}
	startV, err := v.pop()
	if err != nil {
		return err
	}
	seq, err := v.pop()
	if err != nil {
		return err
	}

	step := 1
	if !stepV.IsNil() {
		step = int(stepV.AsNumber())
		if step == 0 {
			step = 1
		}
	}

	switch {
	case seq.IsList():
		items := seq.Obj.AsList().Items
		s, e := clampRange(len(items), startV, endV)
		var out []value.Value
		for i := s; stepInBounds(i, e, step); i += step {
			if i < 0 || i >= len(items) {
				break
			}
			out = append(out, items[i])
		}
		obj := v.track(value.NewList(out))
		computeMatrixMeta(obj.AsList())
		return v.push(value.Obj(obj))

	case seq.IsString():
		data := seq.Obj.AsString().Data
		s, e := clampRange(len(data), startV, endV)
		var sb strings.Builder
		for i := s; stepInBounds(i, e, step); i += step {
			if i < 0 || i >= len(data) {
				break
			}
			sb.WriteByte(data[i])
		}
		obj := v.track(value.NewString(sb.String()))
		return v.push(value.Obj(obj))

	default:
		return v.vmError(errors.TypeError, "value of type %s is not sliceable", kindName(seq))
	}
}

func stepInBounds(i, end, step int) bool {
	if step > 0 {
		return i < end
	}
	return i > end
}

// execGetItem implements GET_ITEM: index lists, maps (walking the
// prototype chain), and strings; out-of-range or missing keys yield nil
// rather than an error (§7's lookup taxonomy).
func (v *VM) execGetItem() error {
	key, err := v.pop()
	if err != nil {
		return err
	}
	coll, err := v.pop()
	if err != nil {
		return err
	}

	switch {
	case coll.IsList():
		items := coll.Obj.AsList().Items
		idx := int(key.AsNumber())
		if idx < 0 || idx >= len(items) {
			return v.push(value.Nil())
		}
		return v.push(items[idx])

	case coll.IsMap():
		return v.push(mapGet(coll.Obj, key.AsString()))

	case coll.IsString():
		data := coll.Obj.AsString().Data
		idx := int(key.AsNumber())
		if idx < 0 || idx >= len(data) {
			return v.push(value.Nil())
		}
		obj := v.track(value.NewString(string(data[idx])))
		return v.push(value.Obj(obj))

	default:
		return v.vmError(errors.TypeError, "value of type %s is not indexable", kindName(coll))
	}
}

func mapGet(mapObj *value.Object, key string) value.Value {
	for cur := mapObj; cur != nil; cur = cur.AsMap().Proto {
		if val, ok := cur.AsMap().Table.Get(key); ok {
			return val
		}
	}
	return value.Nil()
}

// execSetItem implements SET_ITEM: mutates lists and maps in place; strings
// are immutable and raise a TypeError (§4.6, §7).
func (v *VM) execSetItem() error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	key, err := v.pop()
	if err != nil {
		return err
	}
	coll, err := v.pop()
	if err != nil {
		return err
	}

	switch {
	case coll.IsList():
		l := coll.Obj.AsList()
		idx := int(key.AsNumber())
		if idx < 0 || idx >= len(l.Items) {
			return v.vmError(errors.IndexError, "list index %d out of range", idx)
		}
		l.Items[idx] = val
		computeMatrixMeta(l)
		return nil

	case coll.IsMap():
		coll.Obj.AsMap().Table.Put(key.AsString(), val)
		return nil

	case coll.IsString():
		return v.vmError(errors.TypeError, "strings are immutable")

	default:
		return v.vmError(errors.TypeError, "value of type %s does not support item assignment", kindName(coll))
	}
}

// execPushIter implements PUSH_ITER: pop an iterable, wrap it with a fresh
// cursor, and push onto the iterator stack (§4.6).
func (v *VM) execPushIter() error {
	coll, err := v.pop()
	if err != nil {
		return err
	}
	if !coll.IsList() && !coll.IsMap() && !coll.IsRange() {
		return v.vmError(errors.TypeError, "value of type %s is not iterable", kindName(coll))
	}
	if v.itersTop >= len(v.iters) {
		return v.vmError(errors.RuntimeError, "iterator stack overflow")
	}

	iterObj := value.NewIterator(coll)
	if coll.IsMap() {
		keys := coll.Obj.AsMap().Table.Keys()
		snapshot := make([]string, len(keys))
		copy(snapshot, keys)
		iterObj.AsIterator().MapKeys = snapshot
	}
	v.track(iterObj)
	v.iters[v.itersTop] = iterObj
	v.itersTop++
	return nil
}

// execPopIter implements POP_ITER, used when a loop body breaks out early.
func (v *VM) execPopIter() error {
	if v.itersTop == 0 {
		return v.vmError(errors.RuntimeError, "POP_ITER with no active iterator")
	}
	v.itersTop--
	return nil
}

// execLoop implements LOOP u16: advance the top iterator; on success push
// the next element (map iteration pushes the key) and fall through past the
// operand; on exhaustion pop the iterator and jump forward (§4.6). pos is
// the offset of the 2-byte operand itself (v.pc before either adjustment),
// matching PatchJump's own "offset relative to the operand start" contract.
func (v *VM) execLoop(pos, offset int) error {
	if v.itersTop == 0 {
		return v.vmError(errors.RuntimeError, "LOOP with no active iterator")
	}
	iterObj := v.iters[v.itersTop-1]
	next, more, err := v.iterAdvance(iterObj)
	if err != nil {
		return err
	}
	if more {
		v.pc = pos + 2
		return v.push(next)
	}
	v.itersTop--
	v.pc = pos + offset - 1
	return nil
}

// iterAdvance yields the next value from an iterator object's underlying
// collection and cursor (§3: cursor state lives with the iteration, reset
// at PUSH_ITER time).
func (v *VM) iterAdvance(iterObj *value.Object) (value.Value, bool, error) {
	it := iterObj.AsIterator()
	coll := it.Collection

	switch {
	case coll.IsList():
		items := coll.Obj.AsList().Items
		if it.Index >= len(items) {
			return value.Nil(), false, nil
		}
		val := items[it.Index]
		it.Index++
		return val, true, nil

	case coll.IsMap():
		if it.Index >= len(it.MapKeys) {
			return value.Nil(), false, nil
		}
		key := it.MapKeys[it.Index]
		it.Index++
		return value.Obj(v.track(value.NewString(key))), true, nil

	case coll.IsRange():
		rng := coll.Obj.AsRange()
		cur := rng.Start + float64(it.Index)*rng.Step
		hasMore := (rng.Step > 0 && cur < rng.End) || (rng.Step < 0 && cur > rng.End)
		if !hasMore {
			return value.Nil(), false, nil
		}
		it.Index++
		return value.Num(cur), true, nil
	}
	return value.Nil(), false, nil
}
