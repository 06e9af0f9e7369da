package vm

import "piscript/internal/value"

// Frame records a call's caller-side context, restored on RETURN (§4.4,
// §4.7): saved pc/bp/ip and the iterator-stack depth at call time, so a
// break-out-of-loop body that never reaches its POP_ITER still has its
// iterators reclaimed when the frame returns.
type Frame struct {
	PC       int
	BP       int
	IP       int
	ItersTop int
	Code     *value.CodeData
	FuncObj  *value.Object // nil for the top-level frame
}
