// Package asm is a minimal textual assembler for the VM's bytecode format
// (spec §6's opcode catalog), used by the REPL and the `pi run` CLI command
// to produce a *bytecode.Code without a source-language compiler — source
// parsing and code generation for the scripting language itself are out of
// scope (spec.md's Non-goals). Grounded in internal/bytecode/chunk.go's
// emission helpers, which this package is the sole caller of outside tests.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"piscript/internal/bytecode"
	"piscript/internal/value"
)

type operand int

const (
	opU8 operand = iota
	opU16
	opI16
)

type instrSpec struct {
	op       bytecode.Op
	operands []operand
}

var mnemonics = map[string]instrSpec{
	"LOAD_CONST":    {bytecode.OpLoadConst, []operand{opU16}},
	"LOAD_GLOBAL":   {bytecode.OpLoadGlobal, []operand{opU8}},
	"STORE_GLOBAL":  {bytecode.OpStoreGlobal, []operand{opU8}},
	"LOAD_LOCAL":    {bytecode.OpLoadLocal, []operand{opU8}},
	"STORE_LOCAL":   {bytecode.OpStoreLocal, []operand{opU8}},
	"LOAD_UPVALUE":  {bytecode.OpLoadUpvalue, []operand{opU8}},
	"STORE_UPVALUE": {bytecode.OpStoreUpvalue, []operand{opU8}},
	"PUSH_NIL":      {bytecode.OpPushNil, nil},
	"DUP_TOP":       {bytecode.OpDupTop, nil},
	"POP":           {bytecode.OpPop, nil},
	"POP_N":         {bytecode.OpPopN, []operand{opU8}},
	"JUMP":          {bytecode.OpJump, []operand{opI16}},
	"JUMP_IF_TRUE":  {bytecode.OpJumpIfTrue, []operand{opI16}},
	"JUMP_IF_FALSE": {bytecode.OpJumpIfFalse, []operand{opI16}},
	"RETURN":        {bytecode.OpReturn, nil},
	"HALT":          {bytecode.OpHalt, nil},
	"NO":            {bytecode.OpNo, nil},
	"BINARY":        {bytecode.OpBinary, []operand{opU8}},
	"UNARY":         {bytecode.OpUnary, []operand{opU8}},
	"COMPARE":       {bytecode.OpCompare, []operand{opU8}},
	"PUSH_LIST":     {bytecode.OpPushList, []operand{opU16}},
	"PUSH_MAP":      {bytecode.OpPushMap, []operand{opU16}},
	"PUSH_RANGE":    {bytecode.OpPushRange, nil},
	"PUSH_SLICE":    {bytecode.OpPushSlice, nil},
	"GET_ITEM":      {bytecode.OpGetItem, nil},
	"SET_ITEM":      {bytecode.OpSetItem, nil},
	"PUSH_ITER":     {bytecode.OpPushIter, nil},
	"LOOP":          {bytecode.OpLoop, []operand{opI16}},
	"POP_ITER":      {bytecode.OpPopIter, nil},
	"CALL_FUNCTION": {bytecode.OpCallFunction, []operand{opU8}},
	"PUSH_FUNCTION": {bytecode.OpPushFunction, []operand{opU8}},
	"PUSH_CLOSURE":  {bytecode.OpPushClosure, []operand{opU8, opU8}},
	"DEBUG":         {bytecode.OpDebug, nil},
}

var subOps = map[string]int{
	// BINARY
	"ADD": 0, "SUB": 1, "MUL": 2, "DIV": 3, "MOD": 4, "AND": 5, "OR": 6, "POW": 7,
	"BITAND": 8, "BITOR": 9, "BITXOR": 10, "SHL": 11, "SHR": 12, "USHR": 13, "DOT": 14, "IS": 15,
	// UNARY (disjoint names from BINARY where they'd collide)
	"PLUS": 0, "MINUS": 1, "NOT": 2, "BITNOT": 3, "SIZE": 4, "INC": 5, "DEC": 6,
	// COMPARE
	"EQ": 0, "NE": 1, "GT": 2, "LT": 3, "GE": 4, "LE": 5,
}

// Assemble parses a small line-oriented assembly format into a *bytecode.Code:
//
//	#const <number|"string">   appends to the constants pool
//	#name <identifier>         appends to the names pool
//	MNEMONIC arg arg...        emits one instruction
//
// Blank lines and lines starting with ';' are ignored.
func Assemble(src string) (*bytecode.Code, error) {
	code := bytecode.NewCode()
	for lineNo, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "#const") {
			lit := strings.TrimSpace(strings.TrimPrefix(line, "#const"))
			v, err := parseConstant(lit)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			code.AddConstant(v)
			continue
		}
		if strings.HasPrefix(line, "#name") {
			code.AddName(strings.TrimSpace(strings.TrimPrefix(line, "#name")))
			continue
		}
		if err := assembleInstr(code, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
	}
	return code, nil
}

func assembleInstr(code *bytecode.Code, line string) error {
	fields := strings.Fields(line)
	spec, ok := mnemonics[strings.ToUpper(fields[0])]
	if !ok {
		return fmt.Errorf("unknown mnemonic %q", fields[0])
	}
	args := fields[1:]
	if len(args) != len(spec.operands) {
		return fmt.Errorf("%s expects %d operand(s), got %d", fields[0], len(spec.operands), len(args))
	}
	code.Emit(spec.op)
	for i, kind := range spec.operands {
		n, err := parseOperand(args[i])
		if err != nil {
			return err
		}
		switch kind {
		case opU8:
			code.EmitByte(byte(n))
		case opU16, opI16:
			code.EmitShort(n & 0xFFFF)
		}
	}
	return nil
}

func parseOperand(tok string) (int, error) {
	if n, ok := subOps[strings.ToUpper(tok)]; ok {
		return n, nil
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("bad operand %q: %w", tok, err)
	}
	return n, nil
}

func parseConstant(lit string) (value.Value, error) {
	switch {
	case lit == "nil":
		return value.Nil(), nil
	case lit == "true":
		return value.Bool(true), nil
	case lit == "false":
		return value.Bool(false), nil
	case strings.HasPrefix(lit, `"`) && strings.HasSuffix(lit, `"`) && len(lit) >= 2:
		return value.Obj(value.NewString(lit[1 : len(lit)-1])), nil
	default:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("bad constant %q: %w", lit, err)
		}
		return value.Num(f), nil
	}
}
