package spreadsheet

import (
	"fmt"
	"math"
	"strings"
)

// Node is one element of a parsed formula. references are stored as
// offsets from the owning cell so equal formulas filled across a sheet
// share one tree.
type Node interface {
	Eval(ctx *EvalContext) Value
	String() string
}

// BinaryOp enumerates infix operators
type BinaryOp uint8

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
	BinOpIntersect
)

var binaryOpText = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
	BinOpIntersect:    " ",
}

// UnaryOp enumerates prefix and postfix operators
type UnaryOp uint8

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// StringNode represents a string literal
type StringNode struct {
	Value string
}

func (n *StringNode) Eval(*EvalContext) Value { return Text(n.Value) }

func (n *StringNode) String() string {
	return `"` + strings.ReplaceAll(n.Value, `"`, `""`) + `"`
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value float64
}

func (n *NumberNode) Eval(*EvalContext) Value { return Number(n.Value) }

func (n *NumberNode) String() string { return formatNumber(n.Value) }

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value bool
}

func (n *BooleanNode) Eval(*EvalContext) Value { return Boolean(n.Value) }

func (n *BooleanNode) String() string { return Boolean(n.Value).String() }

// ErrorNode represents an error literal such as #N/A
type ErrorNode struct {
	Code ErrorCode
}

func (n *ErrorNode) Eval(*EvalContext) Value { return Error(n.Code) }

func (n *ErrorNode) String() string { return n.Code.String() }

// EmptyNode is an omitted function argument, as in IF(A1,,1)
type EmptyNode struct{}

func (n *EmptyNode) Eval(*EvalContext) Value { return Blank() }

func (n *EmptyNode) String() string { return "" }

// CellRefNode represents a cell reference (relative)
type CellRefNode struct {
	WorksheetID uint32 // 0 means the owning cell's worksheet
	RowOffset   int32
	ColOffset   int32
}

// Address resolves the reference against the owning cell
func (n *CellRefNode) Address(source CellAddress) (CellAddress, bool) {
	row := int64(source.Row) + int64(n.RowOffset)
	col := int64(source.Column) + int64(n.ColOffset)
	if row < 0 || col < 0 || row >= int64(MaxRows) || col >= int64(MaxColumns) {
		return CellAddress{}, false
	}
	sheet := n.WorksheetID
	if sheet == 0 {
		sheet = source.WorksheetID
	}
	return CellAddress{WorksheetID: sheet, Row: uint32(row), Column: uint32(col)}, true
}

func (n *CellRefNode) Eval(ctx *EvalContext) Value {
	addr, ok := n.Address(ctx.Source)
	if !ok {
		return ErrorOf(NewSpreadsheetError(ErrorCodeRef, "Invalid cell reference"))
	}
	return ctx.cellValue(addr)
}

func (n *CellRefNode) String() string {
	if n.WorksheetID != 0 {
		return fmt.Sprintf("WS_REF(%d,%d,%d)", n.WorksheetID, n.RowOffset, n.ColOffset)
	}
	return fmt.Sprintf("REF(%d,%d)", n.RowOffset, n.ColOffset)
}

// RangeNode represents a range of cells. whole-column ranges (A:B) ignore
// the row offsets and whole-row ranges (1:2) ignore the column offsets.
type RangeNode struct {
	WorksheetID    uint32
	StartRowOffset int32
	StartColOffset int32
	EndRowOffset   int32
	EndColOffset   int32
	WholeColumns   bool
	WholeRows      bool
}

// Address resolves the range against the owning cell
func (n *RangeNode) Address(source CellAddress) (RangeAddress, bool) {
	startRow := int64(source.Row) + int64(n.StartRowOffset)
	endRow := int64(source.Row) + int64(n.EndRowOffset)
	startCol := int64(source.Column) + int64(n.StartColOffset)
	endCol := int64(source.Column) + int64(n.EndColOffset)
	if n.WholeColumns {
		startRow, endRow = 0, int64(MaxRows)-1
	}
	if n.WholeRows {
		startCol, endCol = 0, int64(MaxColumns)-1
	}
	for _, row := range []int64{startRow, endRow} {
		if row < 0 || row >= int64(MaxRows) {
			return RangeAddress{}, false
		}
	}
	for _, col := range []int64{startCol, endCol} {
		if col < 0 || col >= int64(MaxColumns) {
			return RangeAddress{}, false
		}
	}
	sheet := n.WorksheetID
	if sheet == 0 {
		sheet = source.WorksheetID
	}
	return RangeAddress{
		WorksheetID: sheet,
		StartRow:    uint32(startRow),
		StartColumn: uint32(startCol),
		EndRow:      uint32(endRow),
		EndColumn:   uint32(endCol),
	}.normalize(), true
}

func (n *RangeNode) Eval(ctx *EvalContext) Value {
	addr, ok := n.Address(ctx.Source)
	if !ok {
		return ErrorOf(NewSpreadsheetError(ErrorCodeRef, "Invalid range reference"))
	}
	return ctx.rangeValue(addr)
}

func (n *RangeNode) String() string {
	kind := "RANGE"
	switch {
	case n.WholeColumns:
		kind = "COLS"
	case n.WholeRows:
		kind = "ROWS"
	}
	return fmt.Sprintf("%s(%d,%d,%d,%d,%d)", kind, n.WorksheetID,
		n.StartRowOffset, n.StartColOffset, n.EndRowOffset, n.EndColOffset)
}

// NamedRangeNode represents a reference to a defined name
type NamedRangeNode struct {
	Name string
}

func (n *NamedRangeNode) Eval(ctx *EvalContext) Value {
	addr, ok := ctx.resolver.ResolveName(n.Name)
	if !ok {
		return ErrorOf(NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Named range '%s' not found", n.Name)))
	}
	return ctx.rangeValue(addr)
}

func (n *NamedRangeNode) String() string { return n.Name }

// ArrayNode represents an array constant such as {1,2;3,4}
type ArrayNode struct {
	Rows [][]Node
}

func (n *ArrayNode) Eval(ctx *EvalContext) Value {
	rows := make([][]Value, len(n.Rows))
	for i, row := range n.Rows {
		rows[i] = make([]Value, len(row))
		for j, item := range row {
			rows[i][j] = ctx.ResolveSingle(item.Eval(ctx))
		}
	}
	return RangeOf(NewArrayRange(rows))
}

func (n *ArrayNode) String() string {
	rows := make([]string, len(n.Rows))
	for i, row := range n.Rows {
		items := make([]string, len(row))
		for j, item := range row {
			items[j] = item.String()
		}
		rows[i] = strings.Join(items, ",")
	}
	return "{" + strings.Join(rows, ";") + "}"
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

func (n *BinaryOpNode) Eval(ctx *EvalContext) Value {
	if n.Op == BinOpIntersect {
		return n.intersect(ctx)
	}

	// operands are resolved left to right; the first error wins
	left := ctx.ResolveSingle(n.Left.Eval(ctx))
	if left.kind == KindError {
		return left
	}
	right := ctx.ResolveSingle(n.Right.Eval(ctx))
	if right.kind == KindError {
		return right
	}

	switch n.Op {
	case BinOpConcat:
		l, _ := ToText(left)
		r, _ := ToText(right)
		return Text(l + r)
	case BinOpEqual:
		return Boolean(CompareValues(left, right) == 0)
	case BinOpNotEqual:
		return Boolean(CompareValues(left, right) != 0)
	case BinOpLess:
		return Boolean(CompareValues(left, right) < 0)
	case BinOpLessEqual:
		return Boolean(CompareValues(left, right) <= 0)
	case BinOpGreater:
		return Boolean(CompareValues(left, right) > 0)
	case BinOpGreaterEqual:
		return Boolean(CompareValues(left, right) >= 0)
	}

	l, err := ToNumber(left)
	if err != nil {
		return errorValue(err)
	}
	r, err := ToNumber(right)
	if err != nil {
		return errorValue(err)
	}

	switch n.Op {
	case BinOpAdd:
		return checkedNumber(l + r)
	case BinOpSubtract:
		return checkedNumber(l - r)
	case BinOpMultiply:
		return checkedNumber(l * r)
	case BinOpDivide:
		if r == 0 {
			return ErrorOf(NewSpreadsheetError(ErrorCodeDiv0, "Division by zero"))
		}
		return checkedNumber(l / r)
	case BinOpPower:
		return power(l, r)
	default:
		return ErrorOf(NewSpreadsheetError(ErrorCodeValue, "Unknown operator"))
	}
}

// intersect implements the space operator over two sheet ranges
func (n *BinaryOpNode) intersect(ctx *EvalContext) Value {
	left := n.Left.Eval(ctx)
	if left.kind == KindError {
		return left
	}
	right := n.Right.Eval(ctx)
	if right.kind == KindError {
		return right
	}
	if left.kind != KindRange || right.kind != KindRange {
		return Error(ErrorCodeValue)
	}
	lb, lok := left.rng.Bounds()
	rb, rok := right.rng.Bounds()
	if !lok || !rok {
		return Error(ErrorCodeValue)
	}
	overlap, ok := lb.Intersect(rb)
	if !ok {
		return ErrorOf(NewSpreadsheetError(ErrorCodeNull, "Ranges do not intersect"))
	}
	return ctx.rangeValue(overlap)
}

func (n *BinaryOpNode) String() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.String(), binaryOpText[n.Op], n.Right.String())
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op      UnaryOp
	Operand Node
}

func (n *UnaryOpNode) Eval(ctx *EvalContext) Value {
	v := ctx.ResolveSingle(n.Operand.Eval(ctx))
	if v.kind == KindError {
		return v
	}
	num, err := ToNumber(v)
	if err != nil {
		return errorValue(err)
	}
	switch n.Op {
	case UnaryOpPlus:
		return Number(num)
	case UnaryOpMinus:
		return Number(-num)
	case UnaryOpPercent:
		return Number(num / 100)
	default:
		return ErrorOf(NewSpreadsheetError(ErrorCodeValue, "Unknown unary operator"))
	}
}

func (n *UnaryOpNode) String() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.String()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.String())
	default:
		return "+" + n.Operand.String()
	}
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name string
	Args []Node
}

func (n *FunctionCallNode) Eval(ctx *EvalContext) Value {
	if ctx.registry == nil {
		return Error(ErrorCodeName)
	}
	return ctx.registry.Dispatch(ctx, n.Name, n.Args)
}

func (n *FunctionCallNode) String() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// checkedNumber maps non-finite arithmetic results to #NUM!
func checkedNumber(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Error(ErrorCodeNum)
	}
	return Number(f)
}

func power(base, exp float64) Value {
	switch {
	case base == 0 && exp == 0:
		return Error(ErrorCodeNum)
	case base == 0 && exp < 0:
		return Error(ErrorCodeDiv0)
	}
	return checkedNumber(math.Pow(base, exp))
}

// References are the dependencies a formula reads
type References struct {
	Cells    []CellAddress
	Ranges   []RangeAddress
	Names    []string
	Volatile bool
}

// CollectReferences walks a formula tree with an explicit stack and
// gathers the cells, ranges and names it reads relative to source.
// references that fall off the sheet are skipped; they evaluate to #REF!.
func CollectReferences(root Node, source CellAddress, registry *Registry) References {
	var refs References
	if root == nil {
		return refs
	}
	seenCells := make(map[CellAddress]struct{})
	seenRanges := make(map[RangeAddress]struct{})
	seenNames := make(map[string]struct{})

	stack := []Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n := node.(type) {
		case *CellRefNode:
			if addr, ok := n.Address(source); ok {
				if _, dup := seenCells[addr]; !dup {
					seenCells[addr] = struct{}{}
					refs.Cells = append(refs.Cells, addr)
				}
			}
		case *RangeNode:
			if addr, ok := n.Address(source); ok {
				if _, dup := seenRanges[addr]; !dup {
					seenRanges[addr] = struct{}{}
					refs.Ranges = append(refs.Ranges, addr)
				}
			}
		case *NamedRangeNode:
			if _, dup := seenNames[n.Name]; !dup {
				seenNames[n.Name] = struct{}{}
				refs.Names = append(refs.Names, n.Name)
			}
		case *BinaryOpNode:
			stack = append(stack, n.Right, n.Left)
		case *UnaryOpNode:
			stack = append(stack, n.Operand)
		case *FunctionCallNode:
			if registry != nil && registry.IsVolatile(n.Name) {
				refs.Volatile = true
			}
			for i := len(n.Args) - 1; i >= 0; i-- {
				stack = append(stack, n.Args[i])
			}
		case *ArrayNode:
			for _, row := range n.Rows {
				stack = append(stack, row...)
			}
		}
	}
	return refs
}
