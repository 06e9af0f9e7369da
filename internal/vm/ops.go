package vm

import (
	"math"

	"piscript/internal/bytecode"
	"piscript/internal/errors"
	"piscript/internal/value"
)

// execBinary implements BINARY op (§4.6's table): pop right then left,
// dispatch on sub-opcode.
func (v *VM) execBinary(sub byte) error {
	right, err := v.pop()
	if err != nil {
		return err
	}
	left, err := v.pop()
	if err != nil {
		return err
	}

	var result value.Value
	switch sub {
	case bytecode.BinAdd:
		result, err = v.binAdd(left, right)
	case bytecode.BinSub:
		result, err = v.binSub(left, right)
	case bytecode.BinMul:
		result, err = v.binMul(left, right)
	case bytecode.BinDiv:
		result, err = v.binDiv(left, right)
	case bytecode.BinMod:
		result, err = v.binMod(left, right)
	case bytecode.BinAnd:
		result = value.Bool(left.AsBool() && right.AsBool())
	case bytecode.BinOr:
		result = value.Bool(left.AsBool() || right.AsBool())
	case bytecode.BinPow:
		result, err = v.binPow(left, right)
	case bytecode.BinBitAnd, bytecode.BinBitOr, bytecode.BinBitXor,
		bytecode.BinShl, bytecode.BinShr, bytecode.BinUshr:
		result, err = v.binBitwise(sub, left, right)
	case bytecode.BinDot:
		result, err = v.binDot(left, right)
	case bytecode.BinIs:
		result, err = v.binIs(left, right)
	default:
		err = v.vmError(errors.RuntimeError, "unknown binary sub-opcode %d", sub)
	}
	if err != nil {
		return err
	}
	return v.push(result)
}

func (v *VM) binAdd(left, right value.Value) (value.Value, error) {
	if left.IsString() || right.IsString() {
		return value.Obj(v.track(value.NewString(left.AsString() + right.AsString()))), nil
	}
	if left.IsList() {
		l := left.Obj.AsList()
		l.Items = append(l.Items, right)
		computeMatrixMeta(l)
		return left, nil
	}
	if left.IsNumeric() && right.IsNumeric() {
		if left.IsNaN() || right.IsNaN() {
			return value.NaN(), nil
		}
		return value.Num(left.Num + right.Num), nil
	}
	return value.Nil(), v.vmError(errors.TypeError, "unsupported operand types for +")
}

func (v *VM) binSub(left, right value.Value) (value.Value, error) {
	if left.IsList() {
		l := left.Obj.AsList()
		for i, it := range l.Items {
			if value.Equals(it, right) {
				l.Items = append(l.Items[:i], l.Items[i+1:]...)
				break
			}
		}
		computeMatrixMeta(l)
		return left, nil
	}
	if left.IsString() {
		if !right.IsString() {
			return value.Nil(), v.vmError(errors.TypeError, "string - %s not supported", kindName(right))
		}
		s := removeAll(left.Obj.AsString().Data, right.Obj.AsString().Data)
		return value.Obj(v.track(value.NewString(s))), nil
	}
	if left.IsNumeric() && right.IsNumeric() {
		if left.IsNaN() || right.IsNaN() {
			return value.NaN(), nil
		}
		return value.Num(left.Num - right.Num), nil
	}
	return value.Nil(), v.vmError(errors.TypeError, "unsupported operand types for -")
}

func removeAll(s, substr string) string {
	if substr == "" {
		return s
	}
	var out []byte
	for i := 0; i < len(s); {
		if i+len(substr) <= len(s) && s[i:i+len(substr)] == substr {
			i += len(substr)
			continue
		}
		out = append(out, s[i])
		i++
	}
	return string(out)
}

func (v *VM) binMul(left, right value.Value) (value.Value, error) {
	if left.IsList() && right.IsList() {
		return v.matrixMultiply(left.Obj.AsList(), right.Obj.AsList())
	}
	if left.IsList() && right.IsNumeric() {
		return v.listRepeat(left.Obj.AsList(), int(right.Num)), nil
	}
	if left.IsString() && right.IsNumeric() {
		return value.Obj(v.track(value.NewString(repeatString(left.Obj.AsString().Data, int(right.Num))))), nil
	}
	if left.IsNumeric() && right.IsNumeric() {
		if left.IsNaN() || right.IsNaN() {
			return value.NaN(), nil
		}
		return value.Num(left.Num * right.Num), nil
	}
	return value.Nil(), v.vmError(errors.TypeError, "unsupported operand types for *")
}

func repeatString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func (v *VM) listRepeat(l *value.ListData, n int) value.Value {
	if n < 0 {
		n = 0
	}
	items := make([]value.Value, 0, len(l.Items)*n)
	for i := 0; i < n; i++ {
		items = append(items, l.Items...)
	}
	obj := v.track(value.NewList(items))
	computeMatrixMeta(obj.AsList())
	return value.Obj(obj)
}

func (v *VM) matrixMultiply(a, b *value.ListData) (value.Value, error) {
	if !a.IsMatrix || !b.IsMatrix {
		return value.Nil(), v.vmError(errors.RuntimeError, "matrix multiply requires two matrices")
	}
	if a.Cols != b.Rows {
		return value.Nil(), v.vmError(errors.RuntimeError,
			"matrix dimension mismatch: %dx%d * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	result := make([]value.Value, a.Rows)
	for i := 0; i < a.Rows; i++ {
		rowA := a.Items[i].Obj.AsList().Items
		row := make([]value.Value, b.Cols)
		for j := 0; j < b.Cols; j++ {
			sum := 0.0
			for k := 0; k < a.Cols; k++ {
				bRow := b.Items[k].Obj.AsList().Items
				sum += rowA[k].Num * bRow[j].Num
			}
			row[j] = value.Num(sum)
		}
		rowObj := v.track(value.NewList(row))
		computeMatrixMeta(rowObj.AsList())
		result[i] = value.Obj(rowObj)
	}
	resObj := v.track(value.NewList(result))
	computeMatrixMeta(resObj.AsList())
	return value.Obj(resObj), nil
}

func (v *VM) binDiv(left, right value.Value) (value.Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return value.Nil(), v.vmError(errors.TypeError, "/ requires numeric operands")
	}
	if left.IsNaN() || right.IsNaN() {
		return value.NaN(), nil
	}
	if right.Num == 0 {
		// asymmetric by design (§9 open question): even a negative
		// numerator divided by zero yields +Inf, not -Inf.
		return value.Num(math.Inf(1)), nil
	}
	return value.Num(left.Num / right.Num), nil
}

func (v *VM) binMod(left, right value.Value) (value.Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return value.Nil(), v.vmError(errors.TypeError, "%% requires numeric operands")
	}
	if left.IsNaN() || right.IsNaN() {
		return value.NaN(), nil
	}
	ri := int64(right.Num)
	if ri == 0 {
		return value.NaN(), nil
	}
	return value.Num(float64(int64(left.Num) % ri)), nil
}

func (v *VM) binPow(left, right value.Value) (value.Value, error) {
	if left.IsNaN() || right.IsNaN() {
		return value.NaN(), nil
	}
	if !left.IsNumeric() || !right.IsNumeric() {
		return value.Nil(), v.vmError(errors.TypeError, "** requires numeric operands")
	}
	return value.Num(math.Pow(left.Num, right.Num)), nil
}

func (v *VM) binBitwise(sub byte, left, right value.Value) (value.Value, error) {
	if sub == bytecode.BinBitXor && left.IsList() && right.IsList() {
		return v.crossProduct(left.Obj.AsList(), right.Obj.AsList())
	}
	if left.IsList() {
		l := left.Obj.AsList()
		items := make([]value.Value, len(l.Items))
		for i, it := range l.Items {
			res, err := v.binBitwiseScalar(sub, it, right)
			if err != nil {
				return value.Nil(), err
			}
			items[i] = res
		}
		obj := v.track(value.NewList(items))
		computeMatrixMeta(obj.AsList())
		return value.Obj(obj), nil
	}
	return v.binBitwiseScalar(sub, left, right)
}

func (v *VM) binBitwiseScalar(sub byte, left, right value.Value) (value.Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return value.Nil(), v.vmError(errors.TypeError, "bitwise operator requires numeric operands")
	}
	if left.IsNaN() || right.IsNaN() {
		return value.NaN(), nil
	}
	li, ri := int64(left.Num), int64(right.Num)
	switch sub {
	case bytecode.BinBitAnd:
		return value.Num(float64(li & ri)), nil
	case bytecode.BinBitOr:
		return value.Num(float64(li | ri)), nil
	case bytecode.BinBitXor:
		return value.Num(float64(li ^ ri)), nil
	case bytecode.BinShl:
		return value.Num(float64(li << uint(ri))), nil
	case bytecode.BinShr:
		return value.Num(float64(li >> uint(ri))), nil
	case bytecode.BinUshr:
		return value.Num(float64(uint64(li) >> uint(ri))), nil
	}
	return value.Nil(), v.vmError(errors.RuntimeError, "unknown bitwise sub-opcode %d", sub)
}

func (v *VM) crossProduct(a, b *value.ListData) (value.Value, error) {
	if len(a.Items) != 3 || len(b.Items) != 3 || !isNumericFlat(a) || !isNumericFlat(b) {
		return value.Nil(), v.vmError(errors.RuntimeError, "cross product requires two length-3 numeric lists")
	}
	ax, ay, az := a.Items[0].Num, a.Items[1].Num, a.Items[2].Num
	bx, by, bz := b.Items[0].Num, b.Items[1].Num, b.Items[2].Num
	items := []value.Value{
		value.Num(ay*bz - az*by),
		value.Num(az*bx - ax*bz),
		value.Num(ax*by - ay*bx),
	}
	obj := v.track(value.NewList(items))
	computeMatrixMeta(obj.AsList())
	return value.Obj(obj), nil
}

func (v *VM) binDot(left, right value.Value) (value.Value, error) {
	if !left.IsList() || !right.IsList() {
		return value.Nil(), v.vmError(errors.TypeError, ". requires two lists")
	}
	a, b := left.Obj.AsList(), right.Obj.AsList()
	if !isNumericFlat(a) || !isNumericFlat(b) || len(a.Items) != len(b.Items) {
		return value.Nil(), v.vmError(errors.RuntimeError, "dot product requires equal-length numeric lists")
	}
	sum := 0.0
	for i := range a.Items {
		sum += a.Items[i].Num * b.Items[i].Num
	}
	return value.Num(sum), nil
}

func (v *VM) binIs(left, right value.Value) (value.Value, error) {
	if !left.IsMap() || !right.IsObj() {
		return value.Bool(false), nil
	}
	cur := left.Obj.AsMap().Proto
	for cur != nil {
		if cur == right.Obj {
			return value.Bool(true), nil
		}
		cur = cur.AsMap().Proto
	}
	return value.Bool(false), nil
}

// execUnary implements UNARY op (§4.6).
func (v *VM) execUnary(sub byte) error {
	operand, err := v.pop()
	if err != nil {
		return err
	}

	var result value.Value
	switch sub {
	case bytecode.UnPlus:
		if !operand.IsNumeric() {
			err = v.vmError(errors.TypeError, "unary + requires a number")
		} else {
			result = operand
		}
	case bytecode.UnMinus:
		if operand.IsNaN() {
			result = value.NaN()
		} else if !operand.IsNumeric() {
			err = v.vmError(errors.TypeError, "unary - requires a number")
		} else {
			result = value.Num(-operand.Num)
		}
	case bytecode.UnNot:
		result = value.Bool(!operand.AsBool())
	case bytecode.UnBitNot:
		if !operand.IsNumeric() {
			err = v.vmError(errors.TypeError, "~ requires a number")
		} else {
			result = value.Num(float64(^int64(operand.Num)))
		}
	case bytecode.UnSize:
		result, err = v.sizeOf(operand)
	case bytecode.UnInc:
		if !operand.IsNumeric() {
			err = v.vmError(errors.TypeError, "++ requires a number")
		} else {
			result = value.Num(operand.Num + 1)
		}
	case bytecode.UnDec:
		if !operand.IsNumeric() {
			err = v.vmError(errors.TypeError, "-- requires a number")
		} else {
			result = value.Num(operand.Num - 1)
		}
	default:
		err = v.vmError(errors.RuntimeError, "unknown unary sub-opcode %d", sub)
	}
	if err != nil {
		return err
	}
	return v.push(result)
}

func (v *VM) sizeOf(val value.Value) (value.Value, error) {
	switch {
	case val.IsList():
		return value.Num(float64(len(val.Obj.AsList().Items))), nil
	case val.IsString():
		return value.Num(float64(len(val.Obj.AsString().Data))), nil
	case val.IsMap():
		return value.Num(float64(val.Obj.AsMap().Table.Len())), nil
	}
	return value.Nil(), v.vmError(errors.TypeError, "# requires a collection")
}

// execCompare implements COMPARE op (§4.6): pop right then left, push bool.
func (v *VM) execCompare(sub byte) error {
	right, err := v.pop()
	if err != nil {
		return err
	}
	left, err := v.pop()
	if err != nil {
		return err
	}

	var result bool
	switch sub {
	case bytecode.CmpEq:
		result = value.Equals(left, right)
	case bytecode.CmpNe:
		result = !value.Equals(left, right)
	case bytecode.CmpGt:
		result = value.Compare(left, right) > 0
	case bytecode.CmpLt:
		result = value.Compare(left, right) < 0
	case bytecode.CmpGe:
		result = value.Compare(left, right) >= 0
	case bytecode.CmpLe:
		result = value.Compare(left, right) <= 0
	default:
		return v.vmError(errors.RuntimeError, "unknown compare sub-opcode %d", sub)
	}
	return v.push(value.Bool(result))
}

// computeMatrixMeta recomputes a list's matrix metadata from scratch
// (invariant 5, §3). Recomputing after every mutation gives a conforming
// row append the same rows/cols an incremental extend-or-invalidate update
// would, and a shape-breaking mutation invalidates the metadata; unlike an
// incremental scheme, it also re-detects a list whose matrix shape a later
// mutation restores.
func computeMatrixMeta(l *value.ListData) {
	l.Rows, l.Cols = -1, -1
	l.IsMatrix = false
	l.IsNumeric = len(l.Items) > 0
	for _, it := range l.Items {
		if !it.IsNumeric() {
			l.IsNumeric = false
			break
		}
	}
	if l.IsNumeric || len(l.Items) == 0 {
		return
	}
	cols := -1
	for _, row := range l.Items {
		if !row.IsList() {
			return
		}
		rd := row.Obj.AsList()
		if !isNumericFlat(rd) {
			return
		}
		if cols == -1 {
			cols = len(rd.Items)
		} else if len(rd.Items) != cols {
			return
		}
	}
	if cols >= 0 {
		l.IsMatrix = true
		l.Rows = len(l.Items)
		l.Cols = cols
	}
}

func isNumericFlat(l *value.ListData) bool {
	if len(l.Items) == 0 {
		return false
	}
	for _, it := range l.Items {
		if !it.IsNumeric() {
			return false
		}
	}
	return true
}
