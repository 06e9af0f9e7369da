// Package vm implements the stack-based bytecode interpreter: the dispatch
// loop, frame and call machinery, and the GC root set (spec §4.4, §4.6, §4.7).
// Grounded in _examples/original_source/pi_vm.c's run()/call_function(), with
// the teacher's internal/vm package (pre-rewrite) supplying the ambient shape
// — a struct-held VM with a stack, frames, and a registered-builtins map —
// generalized from its interface{}-typed register design to the spec's
// tagged-union stack machine.
package vm

import (
	"fmt"
	"sync"

	"piscript/internal/bytecode"
	"piscript/internal/errors"
	"piscript/internal/hashmap"
	"piscript/internal/heap"
	"piscript/internal/upvalue"
	"piscript/internal/value"
)

const (
	defaultStackMax = 4096
	defaultFrameMax = 256
	defaultIterMax  = 256
)

// VM is the complete interpreter state for one program.
type VM struct {
	mu sync.Mutex

	stack []value.Value
	sp    int

	frames []Frame
	fp     int

	iters    []*value.Object
	itersTop int

	globals *hashmap.OrderedMap[value.Value]

	heap      *heap.Heap
	upvalues  *upvalue.Registry

	mainCode *value.Object // ObjCode wrapping the top-level program

	// curFunc is the Object (ObjFunction) of the function currently
	// executing, or nil while running top-level code.
	curFunc *value.Object
	curCode *value.CodeData
	pc      int
	ip      int
	bp      int

	counter int // not updated: the dispatch counter lives in heap.Heap (Tick)

	errorHandler func(message string, line, column int)
	running      bool
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithErrorHandler diverts fatal diagnostics to fn instead of terminating
// the process (§4.6, §6).
func WithErrorHandler(fn func(message string, line, column int)) Option {
	return func(v *VM) { v.errorHandler = fn }
}

// WithStackSize overrides the default operand-stack capacity.
func WithStackSize(n int) Option {
	return func(v *VM) { v.stack = make([]value.Value, n) }
}

// WithFrameSize overrides the default frame-stack capacity.
func WithFrameSize(n int) Option {
	return func(v *VM) { v.frames = make([]Frame, n) }
}

// New builds a VM ready to run code.
func New(code *bytecode.Code, opts ...Option) *VM {
	v := &VM{
		stack:    make([]value.Value, defaultStackMax),
		frames:   make([]Frame, defaultFrameMax),
		iters:    make([]*value.Object, defaultIterMax),
		globals:  hashmap.New[value.Value](),
		heap:     heap.New(),
		upvalues: &upvalue.Registry{},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.load(code)
	return v
}

// Reset installs new top-level code, preserving the globals map — the
// interactive-shell contract of §6's vm_reset.
func (v *VM) Reset(code *bytecode.Code) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sp = 0
	v.fp = 0
	v.itersTop = 0
	v.upvalues = &upvalue.Registry{}
	v.curFunc = nil
	v.load(code)
}

func (v *VM) load(code *bytecode.Code) {
	data := &value.CodeData{
		Code:      code.Code,
		Constants: code.Constants,
		Names:     code.Names,
		Instrs:    code.Instrs,
	}
	obj := value.NewCode(data)
	v.heap.Add(obj)
	v.mainCode = obj
	v.curCode = data
	v.pc = 0
	v.ip = 0
	v.bp = 0
}

// Globals exposes the globals table for host setup (installing builtins
// before Run, per §6).
func (v *VM) Globals() *hashmap.OrderedMap[value.Value] { return v.globals }

// DefineGlobal installs a value under name, used by the host to register
// constants and native functions at startup (§6).
func (v *VM) DefineGlobal(name string, val value.Value) {
	if val.Kind == value.KindObj {
		v.heap.Add(val.Obj)
	}
	v.globals.Put(name, val)
}

// RegisterNative wraps fn as a Native object and installs it as a global.
func (v *VM) RegisterNative(name string, fn value.NativeFn) {
	obj := value.NewNative(name, fn)
	v.DefineGlobal(name, value.Obj(obj))
}

// Lock/Unlock expose the VM's state mutex to host threads (audio/input
// callbacks per §5) that need to read VM state between opcodes.
func (v *VM) Lock()   { v.mu.Lock() }
func (v *VM) Unlock() { v.mu.Unlock() }

// Stop requests the dispatch loop exit after the current opcode (§5's
// cancellation contract).
func (v *VM) Stop() { v.running = false }

// --- stack primitives ---

func (v *VM) push(val value.Value) error {
	if v.sp >= len(v.stack) {
		return v.vmError(errors.RuntimeError, "stack overflow")
	}
	// Defensive, idempotent: every object that reaches the operand stack is
	// tracked, whatever produced it (a native function, a constant never
	// before loaded, a freshly allocated list/map/string).
	if val.Kind == value.KindObj && val.Obj != nil {
		v.heap.Add(val.Obj)
	}
	v.stack[v.sp] = val
	v.sp++
	return nil
}

func (v *VM) pop() (value.Value, error) {
	if v.sp <= 0 {
		return value.Nil(), v.vmError(errors.RuntimeError, "stack underflow")
	}
	v.sp--
	val := v.stack[v.sp]
	v.upvalues.CloseSlot(v.sp, v.stack)
	return val, nil
}

func (v *VM) popN(n int) error {
	if v.sp < n {
		return v.vmError(errors.RuntimeError, "stack underflow")
	}
	for i := 0; i < n; i++ {
		v.sp--
		v.upvalues.CloseSlot(v.sp, v.stack)
	}
	return nil
}

func (v *VM) peek(offsetFromTop int) value.Value {
	return v.stack[v.sp-1-offsetFromTop]
}

// --- GC root set (§4.2) ---

// Roots implements heap.RootSource.
func (v *VM) Roots(out []value.Value) []value.Value {
	out = append(out, v.stack[:v.sp]...)
	out = append(out, value.Obj(v.mainCode))
	if v.curFunc != nil {
		out = append(out, value.Obj(v.curFunc))
	}
	for i := 0; i < v.fp; i++ {
		if v.frames[i].FuncObj != nil {
			out = append(out, value.Obj(v.frames[i].FuncObj))
		}
	}
	for i := 0; i < v.itersTop; i++ {
		out = append(out, value.Obj(v.iters[i]))
	}
	it := v.globals.Iterator()
	for it.HasNext() {
		_, val := it.Next()
		out = append(out, val)
	}
	return out
}

func (v *VM) maybeCollect() {
	if v.heap.Tick() {
		v.heap.Collect(v)
	}
}

func (v *VM) track(o *value.Object) *value.Object { return v.heap.Add(o) }

// Track adds a freshly built Object to the heap's object list, for host
// native functions (internal/natives) that allocate strings, lists, or maps
// outside the dispatch loop.
func (v *VM) Track(o *value.Object) *value.Object { return v.track(o) }

// HeapCount reports the live object count, for GC-stress testing (§8
// scenario 6).
func (v *VM) HeapCount() int { return v.heap.Count() }

func (v *VM) vmError(typ errors.ErrorType, format string, args ...interface{}) error {
	loc := v.currentLocation()
	err := errors.New(typ, fmt.Sprintf(format, args...), loc)
	if v.errorHandler != nil {
		v.errorHandler(err.Error(), loc.Line, loc.Column)
		return err
	}
	return err
}

// currentLocation walks the current code's instruction table to find the
// greatest recorded offset not exceeding pc (§4.6).
func (v *VM) currentLocation() errors.SourceLocation {
	fn := ""
	if v.curFunc != nil {
		fn = v.curFunc.AsFunction().Name
	}
	records := v.curCode.Instrs[fn]
	var best *value.InstrRecord
	for i := range records {
		r := &records[i]
		if r.Offset <= v.pc && (best == nil || r.Offset > best.Offset) {
			best = r
		}
	}
	if best == nil {
		return errors.SourceLocation{Function: fn}
	}
	return errors.SourceLocation{Function: fn, Line: best.Line, Column: best.Column}
}
