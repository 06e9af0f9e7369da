package vm

import (
	"piscript/internal/errors"
	"piscript/internal/hashmap"
	"piscript/internal/value"
)

// popArgs pops argc values off the operand stack and returns them in their
// original left-to-right push order.
func (v *VM) popArgs(argc int) ([]value.Value, error) {
	args := make([]value.Value, argc)
	for i := argc - 1; i >= 0; i-- {
		a, err := v.pop()
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return args, nil
}

// call implements CALL_FUNCTION (§4.4): pop argc actuals and the callee,
// then dispatch on callee's kind. A Function callee allocates a new Frame
// and returns control to the dispatch loop; Native and Map callees run to
// completion synchronously.
func (v *VM) call(argc int) error {
	args, err := v.popArgs(argc)
	if err != nil {
		return err
	}
	callee, err := v.pop()
	if err != nil {
		return err
	}

	switch {
	case callee.IsFunction():
		return v.enterFunction(callee.Obj, args)

	case callee.IsNative():
		result, err := callee.Obj.AsNative().Fn(args)
		if err != nil {
			return v.vmError(errors.RuntimeError, "%s", err.Error())
		}
		return v.push(result)

	case callee.IsMap() && !callee.Obj.AsMap().IsInstance:
		result, err := v.construct(callee.Obj, args)
		if err != nil {
			return err
		}
		return v.push(result)

	default:
		return v.vmError(errors.TypeError, "value of type %s is not callable", kindName(callee))
	}
}

func kindName(v value.Value) string {
	if v.IsObj() {
		return v.Obj.Type.String()
	}
	switch v.Kind {
	case value.KindNil:
		return "nil"
	case value.KindBool:
		return "bool"
	case value.KindNum, value.KindNaN:
		return "number"
	}
	return "value"
}

// enterFunction allocates a Frame for callee and binds formals (§4.4):
// defaults are copied in, then overwritten by actuals (shorter actuals keep
// their defaults); a bound method prepends its receiver as local 0.
func (v *VM) enterFunction(fnObj *value.Object, args []value.Value) error {
	if v.fp >= len(v.frames) {
		return v.vmError(errors.RuntimeError, "frame stack overflow")
	}
	fn := fnObj.AsFunction()
	if fn.Body == nil {
		return v.vmError(errors.RuntimeError, "function %q has no body", fn.Name)
	}

	v.frames[v.fp] = Frame{
		PC: v.pc, BP: v.bp, IP: v.ip,
		ItersTop: v.itersTop, Code: v.curCode, FuncObj: v.curFunc,
	}
	v.fp++

	newBP := v.sp
	localOffset := 0
	if fn.IsMethod {
		if err := v.push(value.Obj(fn.Receiver)); err != nil {
			return err
		}
		localOffset = 1
	}
	for _, d := range fn.ParamDefaults {
		if err := v.push(d); err != nil {
			return err
		}
	}
	for i := 0; i < len(args) && i < len(fn.ParamDefaults); i++ {
		v.stack[newBP+localOffset+i] = args[i]
	}

	v.bp = newBP
	v.curFunc = fnObj
	v.curCode = fn.Body.AsCode()
	v.pc = 0
	v.ip = 0
	return nil
}

// doReturn implements RETURN (§4.4, §4.7): closes upvalues for every slot at
// or above bp, discards iterators opened since the call, restores caller
// state, and pushes the return value. Returning from the outermost frame
// halts the VM.
func (v *VM) doReturn() (halt bool, err error) {
	retVal, err := v.pop()
	if err != nil {
		return false, err
	}
	for slot := v.sp - 1; slot >= v.bp; slot-- {
		v.upvalues.CloseSlot(slot, v.stack)
	}
	v.sp = v.bp

	if v.fp == 0 {
		if err := v.push(retVal); err != nil {
			return false, err
		}
		return true, nil
	}

	v.fp--
	frame := v.frames[v.fp]
	v.pc = frame.PC
	v.bp = frame.BP
	v.ip = frame.IP
	v.itersTop = frame.ItersTop
	v.curCode = frame.Code
	v.curFunc = frame.FuncObj

	if err := v.push(retVal); err != nil {
		return false, err
	}
	return false, nil
}

// invokeSync pushes callee and args, runs the call to completion (stepping
// the dispatch loop if callee is a Function), and returns its result. Used
// by construct() to invoke a prototype's constructor.
func (v *VM) invokeSync(callee value.Value, args []value.Value) (value.Value, error) {
	if err := v.push(callee); err != nil {
		return value.Nil(), err
	}
	for _, a := range args {
		if err := v.push(a); err != nil {
			return value.Nil(), err
		}
	}
	isFunction := callee.IsFunction()
	targetFP := v.fp
	if err := v.call(len(args)); err != nil {
		return value.Nil(), err
	}
	if isFunction {
		for v.fp > targetFP {
			halted, err := v.step()
			if err != nil {
				return value.Nil(), err
			}
			if halted {
				break
			}
		}
	}
	return v.pop()
}

// bind clones fn with receiver attached, becoming a bound method (§4.5).
func bind(fnObj *value.Object, receiver *value.Object) *value.Object {
	clone := fnObj.AsFunction().Clone()
	clone.Receiver = receiver
	clone.IsMethod = true
	obj := value.NewFunction(clone.Name, clone.Body, clone.ParamDefaults, clone.Upvalues, receiver)
	obj.AsFunction().IsMethod = true
	return obj
}

// construct implements prototype-based instantiation (§4.5): every
// non-constructor key of proto is copied into a fresh instance map (methods
// bound to the instance), then the constructor, if any, is invoked with
// [inst, ...args].
func (v *VM) construct(protoObj *value.Object, args []value.Value) (value.Value, error) {
	proto := protoObj.AsMap()

	instObj := v.track(value.NewMap(hashmap.New[value.Value]()))
	inst := instObj.AsMap()
	inst.Proto = protoObj
	inst.IsInstance = true

	it := proto.Table.Iterator()
	for it.HasNext() {
		k, val := it.Next()
		if k == "constructor" {
			continue
		}
		if val.IsFunction() {
			bound := v.track(bind(val.Obj, instObj))
			inst.Table.Put(k, value.Obj(bound))
		} else {
			inst.Table.Put(k, val)
		}
	}

	ctor, ok := proto.Table.Get("constructor")
	if !ok || !ctor.IsFunction() {
		return value.Obj(instObj), nil
	}

	boundCtor := v.track(bind(ctor.Obj, instObj))
	result, err := v.invokeSync(value.Obj(boundCtor), args)
	if err != nil {
		return value.Nil(), err
	}
	if result.IsObj() {
		return result, nil
	}
	return value.Obj(instObj), nil
}
