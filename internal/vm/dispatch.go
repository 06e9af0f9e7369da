package vm

import (
	"fmt"
	"os"

	"piscript/internal/bytecode"
	"piscript/internal/errors"
	"piscript/internal/upvalue"
	"piscript/internal/value"
)

// Run executes the loaded program to completion (§4.6): HALT, an outermost
// RETURN, or a fatal error. Absent a registered error handler, a fatal
// error is printed and the process terminates (§4.6, §7); vmError already
// invoked the handler (if any) by the time it reaches here.
func (v *VM) Run() error {
	v.running = true
	for v.running {
		halted, err := v.step()
		if err != nil {
			if v.errorHandler == nil {
				fmt.Fprintln(os.Stderr, "\x1b[31m"+err.Error()+"\x1b[0m")
				os.Exit(1)
			}
			return err
		}
		if halted {
			v.running = false
		}
	}
	return nil
}

// step decodes and executes a single instruction, advancing pc by the
// opcode's operand width (§4.6). It is also used directly by invokeSync to
// drive a nested call to completion without reentering Run.
func (v *VM) step() (halted bool, err error) {
	code := v.curCode.Code
	if v.pc >= len(code) {
		return true, nil
	}
	op := bytecode.Op(code[v.pc])
	v.pc++
	v.ip++

	switch op {
	case bytecode.OpLoadConst:
		idx := bytecode.ReadShort(code, v.pc)
		v.pc += 2
		c := v.curCode.Constants[idx]
		if c.Kind == value.KindObj {
			v.track(c.Obj)
		}
		err = v.push(c)

	case bytecode.OpLoadGlobal:
		idx := int(code[v.pc])
		v.pc++
		val, _ := v.globals.Get(v.curCode.Names[idx])
		err = v.push(val)

	case bytecode.OpStoreGlobal:
		idx := int(code[v.pc])
		v.pc++
		var val value.Value
		if val, err = v.pop(); err == nil {
			v.globals.Put(v.curCode.Names[idx], val)
		}

	case bytecode.OpLoadLocal:
		offset := int(code[v.pc])
		v.pc++
		err = v.push(v.stack[v.bp+offset])

	case bytecode.OpStoreLocal:
		offset := int(code[v.pc])
		v.pc++
		var val value.Value
		if val, err = v.pop(); err == nil {
			v.stack[v.bp+offset] = val
		}

	case bytecode.OpLoadUpvalue:
		idx := int(code[v.pc])
		v.pc++
		ref := v.curFunc.AsFunction().Upvalues[idx]
		err = v.push(upvalue.Load(ref, v.stack))

	case bytecode.OpStoreUpvalue:
		idx := int(code[v.pc])
		v.pc++
		ref := v.curFunc.AsFunction().Upvalues[idx]
		var val value.Value
		if val, err = v.pop(); err == nil {
			upvalue.Store(ref, v.stack, val)
		}

	case bytecode.OpPushNil:
		err = v.push(value.Nil())

	case bytecode.OpDupTop:
		err = v.push(v.peek(0))

	case bytecode.OpPop:
		_, err = v.pop()

	case bytecode.OpPopN:
		n := int(code[v.pc])
		v.pc++
		err = v.popN(n)

	case bytecode.OpJump:
		pos := v.pc
		offset := bytecode.ReadSignedShort(code, pos)
		v.pc = pos + offset - 1

	case bytecode.OpJumpIfTrue:
		pos := v.pc
		offset := bytecode.ReadSignedShort(code, pos)
		var test value.Value
		if test, err = v.pop(); err == nil {
			if test.AsBool() {
				v.pc = pos + offset - 1
			} else {
				v.pc = pos + 2
			}
		}

	case bytecode.OpJumpIfFalse:
		pos := v.pc
		offset := bytecode.ReadSignedShort(code, pos)
		var test value.Value
		if test, err = v.pop(); err == nil {
			if !test.AsBool() {
				v.pc = pos + offset - 1
			} else {
				v.pc = pos + 2
			}
		}

	case bytecode.OpReturn:
		halted, err = v.doReturn()

	case bytecode.OpHalt:
		halted = true

	case bytecode.OpNo:
		// deliberate no-op

	case bytecode.OpBinary:
		sub := code[v.pc]
		v.pc++
		err = v.execBinary(sub)

	case bytecode.OpUnary:
		sub := code[v.pc]
		v.pc++
		err = v.execUnary(sub)

	case bytecode.OpCompare:
		sub := code[v.pc]
		v.pc++
		err = v.execCompare(sub)

	case bytecode.OpPushList:
		n := bytecode.ReadShort(code, v.pc)
		v.pc += 2
		err = v.execPushList(n)

	case bytecode.OpPushMap:
		n := bytecode.ReadShort(code, v.pc)
		v.pc += 2
		err = v.execPushMap(n)

	case bytecode.OpPushRange:
		err = v.execPushRange()

	case bytecode.OpPushSlice:
		err = v.execPushSlice()

	case bytecode.OpGetItem:
		err = v.execGetItem()

	case bytecode.OpSetItem:
		err = v.execSetItem()

	case bytecode.OpPushIter:
		err = v.execPushIter()

	case bytecode.OpLoop:
		pos := v.pc
		offset := bytecode.ReadSignedShort(code, pos)
		err = v.execLoop(pos, offset)

	case bytecode.OpPopIter:
		err = v.execPopIter()

	case bytecode.OpCallFunction:
		argc := int(code[v.pc])
		v.pc++
		err = v.call(argc)

	case bytecode.OpPushFunction:
		paramCount := int(code[v.pc])
		v.pc++
		err = v.execPushFunction(paramCount)

	case bytecode.OpPushClosure:
		paramCount := int(code[v.pc])
		v.pc++
		upvalCount := int(code[v.pc])
		v.pc++
		err = v.execPushClosure(paramCount, upvalCount)

	case bytecode.OpDebug:
		// diagnostic no-op, kept for opcode-catalog parity with pi_vm.c

	default:
		err = v.vmError(errors.RuntimeError, "unknown opcode %d", op)
	}

	if err != nil {
		return false, err
	}
	v.maybeCollect()
	return halted, nil
}
