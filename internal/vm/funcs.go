package vm

import (
	"piscript/internal/errors"
	"piscript/internal/value"
)

// execPushFunction implements PUSH_FUNCTION u8: pop the body, then the name,
// then read the param count's worth of defaults (§4.6), matching
// _examples/original_source/pi_vm.c's OP_PUSH_FUNCTION pop order bit-for-bit.
func (v *VM) execPushFunction(paramCount int) error {
	bodyV, err := v.pop()
	if err != nil {
		return err
	}
	if !bodyV.IsCode() {
		return v.vmError(errors.RuntimeError, "PUSH_FUNCTION body is not code")
	}
	nameV, err := v.pop()
	if err != nil {
		return err
	}
	defaults := make([]value.Value, paramCount)
	for i := paramCount - 1; i >= 0; i-- {
		d, err := v.pop()
		if err != nil {
			return err
		}
		defaults[i] = d
	}

	fnObj := value.NewFunction(nameOf(nameV), bodyV.Obj, defaults, nil, nil)
	v.track(fnObj)
	return v.push(value.Obj(fnObj))
}

// execPushClosure implements PUSH_CLOSURE u8 u8: pop the param count and
// upvalue count's worth of (index, is_local) descriptor pairs first (they
// are pushed last, on top), then the body, the name, and the defaults —
// matching _examples/original_source/pi_vm.c's OP_PUSH_CLOSURE pop order
// bit-for-bit. Each descriptor either captures bp+index from the current
// frame (is_local) or reuses index from the enclosing function's own
// upvalue array (§4.6, §4.3).
func (v *VM) execPushClosure(paramCount, upvalCount int) error {
	type desc struct {
		index   int
		isLocal bool
	}
	descs := make([]desc, upvalCount)
	for i := upvalCount - 1; i >= 0; i-- {
		isLocalV, err := v.pop()
		if err != nil {
			return err
		}
		indexV, err := v.pop()
		if err != nil {
			return err
		}
		descs[i] = desc{index: int(indexV.AsNumber()), isLocal: isLocalV.AsBool()}
	}

	bodyV, err := v.pop()
	if err != nil {
		return err
	}
	if !bodyV.IsCode() {
		return v.vmError(errors.RuntimeError, "PUSH_CLOSURE body is not code")
	}
	nameV, err := v.pop()
	if err != nil {
		return err
	}
	defaults := make([]value.Value, paramCount)
	for i := paramCount - 1; i >= 0; i-- {
		d, err := v.pop()
		if err != nil {
			return err
		}
		defaults[i] = d
	}

	upvalues := make([]*value.UpvalueRef, upvalCount)
	for i, d := range descs {
		if d.isLocal {
			upvalues[i] = v.upvalues.Capture(v.bp+d.index, v.stack)
		} else {
			if v.curFunc == nil {
				return v.vmError(errors.RuntimeError, "PUSH_CLOSURE: non-local upvalue outside a function")
			}
			upvalues[i] = v.curFunc.AsFunction().Upvalues[d.index]
		}
	}

	fnObj := value.NewFunction(nameOf(nameV), bodyV.Obj, defaults, upvalues, nil)
	v.track(fnObj)
	return v.push(value.Obj(fnObj))
}

func nameOf(v value.Value) string {
	if v.IsString() {
		return v.Obj.AsString().Data
	}
	return ""
}
