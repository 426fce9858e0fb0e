package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"
)

// ParserContext provides context for parsing relative references
type ParserContext struct {
	CurrentWorksheetID uint32
	CurrentRow         uint32
	CurrentColumn      uint32
	// ResolveWorksheet maps a sheet name to its ID. 0 means unknown.
	ResolveWorksheet func(name string) uint32
}

// Parser turns formula text into a Node tree. tokenizing is done by efp;
// the parser only assigns precedence and resolves references.
type Parser struct {
	tokens  []efp.Token
	pos     int
	context *ParserContext
}

// NewParser creates a parser bound to the cell that owns the formula
func NewParser(context *ParserContext) *Parser {
	if context == nil {
		context = &ParserContext{}
	}
	return &Parser{context: context}
}

func parseError(code ErrorCode, format string, args ...any) *SpreadsheetError {
	return NewSpreadsheetError(code, fmt.Sprintf(format, args...))
}

// Parse parses a formula, with or without its leading '='
func (p *Parser) Parse(formula string) (Node, error) {
	formula = strings.TrimSpace(formula)
	formula = strings.TrimPrefix(formula, "=")
	if strings.TrimSpace(formula) == "" {
		return nil, parseError(ErrorCodeValue, "empty formula")
	}
	if strings.Count(formula, `"`)%2 != 0 {
		return nil, parseError(ErrorCodeValue, "unterminated string literal")
	}

	if !balancedBrackets(formula) {
		return nil, parseError(ErrorCodeValue, "unbalanced parentheses")
	}

	tokens, err := tokenize(formula)
	if err != nil {
		return nil, err
	}
	p.tokens = tokens
	p.pos = 0
	if len(p.tokens) == 0 {
		return nil, parseError(ErrorCodeValue, "no tokens to parse")
	}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, parseError(ErrorCodeValue, "unexpected token after expression: %s", p.tokens[p.pos].TValue)
	}
	return node, nil
}

// tokenize runs efp and drops whitespace and noop tokens
func tokenize(formula string) (tokens []efp.Token, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = parseError(ErrorCodeValue, "malformed formula: %v", r)
		}
	}()
	ps := efp.ExcelParser()
	for _, tok := range ps.Parse(formula) {
		switch tok.TType {
		case efp.TokenTypeOperand, efp.TokenTypeFunction, efp.TokenTypeSubexpression,
			efp.TokenTypeArgument, efp.TokenTypeOperatorPrefix, efp.TokenTypeOperatorInfix,
			efp.TokenTypeOperatorPostfix:
			tokens = append(tokens, tok)
		}
	}
	return tokens, nil
}

// balancedBrackets checks () and {} nesting outside string literals and
// quoted sheet names
func balancedBrackets(formula string) bool {
	var stack []rune
	inString, inSheet := false, false
	for _, r := range formula {
		switch {
		case inString:
			inString = r != '"'
		case inSheet:
			inSheet = r != '\''
		case r == '"':
			inString = true
		case r == '\'':
			inSheet = true
		case r == '(' || r == '{':
			stack = append(stack, r)
		case r == ')' || r == '}':
			open := '('
			if r == '}' {
				open = '{'
			}
			if len(stack) == 0 || stack[len(stack)-1] != open {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0 && !inString && !inSheet
}

func (p *Parser) peek() (efp.Token, bool) {
	if p.pos >= len(p.tokens) {
		return efp.Token{}, false
	}
	return p.tokens[p.pos], true
}

// infix returns the operator at the cursor when it is one of ops
func (p *Parser) infix(ops ...string) (string, bool) {
	tok, ok := p.peek()
	if !ok || tok.TType != efp.TokenTypeOperatorInfix {
		return "", false
	}
	for _, op := range ops {
		if tok.TValue == op {
			return op, true
		}
	}
	return "", false
}

var comparisonOps = map[string]BinaryOp{
	"=":  BinOpEqual,
	"<>": BinOpNotEqual,
	"<":  BinOpLess,
	"<=": BinOpLessEqual,
	">":  BinOpGreater,
	">=": BinOpGreaterEqual,
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.infix("=", "<>", "<", "<=", ">", ">=")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: comparisonOps[op], Left: left, Right: right}
	}
}

// parseConcatenation handles string concatenation operator
func (p *Parser) parseConcatenation() (Node, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.infix("&"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: BinOpConcat, Left: left, Right: right}
	}
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (Node, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.infix("+", "-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		binOp := BinOpAdd
		if op == "-" {
			binOp = BinOpSubtract
		}
		left = &BinaryOpNode{Op: binOp, Left: left, Right: right}
	}
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (Node, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.infix("*", "/")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		binOp := BinOpMultiply
		if op == "/" {
			binOp = BinOpDivide
		}
		left = &BinaryOpNode{Op: binOp, Left: left, Right: right}
	}
}

// parsePower handles exponentiation. like the spreadsheet it is left
// associative, so 2^3^2 is 64.
func (p *Parser) parsePower() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.infix("^"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: BinOpPower, Left: left, Right: right}
	}
}

// parseUnary handles prefix operators, which bind tighter than ^
func (p *Parser) parseUnary() (Node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, parseError(ErrorCodeValue, "unexpected end of expression")
	}
	if tok.TType == efp.TokenTypeOperatorPrefix {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		switch tok.TValue {
		case "-":
			return &UnaryOpNode{Op: UnaryOpMinus, Operand: operand}, nil
		case "+":
			return &UnaryOpNode{Op: UnaryOpPlus, Operand: operand}, nil
		default:
			return nil, parseError(ErrorCodeValue, "unknown prefix operator %s", tok.TValue)
		}
	}
	return p.parsePostfix()
}

// parsePostfix handles postfix operators (percent)
func (p *Parser) parsePostfix() (Node, error) {
	node, err := p.parseIntersection()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.TType != efp.TokenTypeOperatorPostfix || tok.TValue != "%" {
			return node, nil
		}
		p.pos++
		node = &UnaryOpNode{Op: UnaryOpPercent, Operand: node}
	}
}

// parseIntersection handles the space operator between references
func (p *Parser) parseIntersection() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.TType != efp.TokenTypeOperatorInfix || tok.TSubType != efp.TokenSubTypeIntersection {
			return left, nil
		}
		p.pos++
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: BinOpIntersect, Left: left, Right: right}
	}
}

// parsePrimary handles primary expressions (literals, references,
// functions, parentheses)
func (p *Parser) parsePrimary() (Node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, parseError(ErrorCodeValue, "unexpected end of expression")
	}

	switch tok.TType {
	case efp.TokenTypeOperand:
		p.pos++
		return p.parseOperand(tok)

	case efp.TokenTypeFunction:
		if tok.TSubType != efp.TokenSubTypeStart {
			return nil, parseError(ErrorCodeValue, "unexpected ')'")
		}
		p.pos++
		if tok.TValue == "ARRAY" {
			return p.parseArray()
		}
		return p.parseFunctionCall(tok.TValue)

	case efp.TokenTypeSubexpression:
		if tok.TSubType != efp.TokenSubTypeStart {
			return nil, parseError(ErrorCodeValue, "unexpected ')'")
		}
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.TType != efp.TokenTypeSubexpression || closing.TSubType != efp.TokenSubTypeStop {
			return nil, parseError(ErrorCodeValue, "expected closing parenthesis")
		}
		p.pos++
		return node, nil

	default:
		return nil, parseError(ErrorCodeValue, "unexpected token: %s", tok.TValue)
	}
}

func (p *Parser) parseOperand(tok efp.Token) (Node, error) {
	switch tok.TSubType {
	case efp.TokenSubTypeNumber:
		val, err := strconv.ParseFloat(tok.TValue, 64)
		if err != nil {
			return nil, parseError(ErrorCodeValue, "invalid number: %s", tok.TValue)
		}
		return &NumberNode{Value: val}, nil
	case efp.TokenSubTypeText:
		return &StringNode{Value: tok.TValue}, nil
	case efp.TokenSubTypeLogical:
		return &BooleanNode{Value: strings.EqualFold(tok.TValue, "TRUE")}, nil
	case efp.TokenSubTypeError:
		code, ok := ParseErrorCode(tok.TValue)
		if !ok {
			return nil, parseError(ErrorCodeValue, "unknown error literal: %s", tok.TValue)
		}
		return &ErrorNode{Code: code}, nil
	default:
		return p.ParseReference(tok.TValue)
	}
}

// functionName normalizes the name efp reports for a call
func functionName(raw string) string {
	name := strings.ToUpper(raw)
	for _, prefix := range []string{"_XLFN._XLWS.", "_XLFN.", "_XLWS."} {
		name = strings.TrimPrefix(name, prefix)
	}
	return name
}

// parseFunctionCall parses arguments up to the matching function stop
func (p *Parser) parseFunctionCall(rawName string) (Node, error) {
	call := &FunctionCallNode{Name: functionName(rawName), Args: []Node{}}
	args, err := p.parseArguments()
	if err != nil {
		return nil, err
	}
	call.Args = args
	return call, nil
}

func (p *Parser) parseArguments() ([]Node, error) {
	args := []Node{}
	if tok, ok := p.peek(); ok && p.isFunctionStop(tok) {
		p.pos++
		return args, nil
	}
	for {
		tok, ok := p.peek()
		if !ok {
			return nil, parseError(ErrorCodeValue, "unexpected end in function arguments")
		}
		if tok.TType == efp.TokenTypeArgument || p.isFunctionStop(tok) {
			args = append(args, &EmptyNode{})
		} else {
			arg, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}

		tok, ok = p.peek()
		switch {
		case !ok:
			return nil, parseError(ErrorCodeValue, "unexpected end in function arguments")
		case p.isFunctionStop(tok):
			p.pos++
			return args, nil
		case tok.TType == efp.TokenTypeArgument:
			p.pos++
		default:
			return nil, parseError(ErrorCodeValue, "expected ',' or ')' in function arguments")
		}
	}
}

func (p *Parser) isFunctionStop(tok efp.Token) bool {
	return tok.TType == efp.TokenTypeFunction && tok.TSubType == efp.TokenSubTypeStop
}

// parseArray parses {a,b;c,d}, which efp reports as ARRAY(ARRAYROW(..),..)
func (p *Parser) parseArray() (Node, error) {
	rows, err := p.parseArguments()
	if err != nil {
		return nil, err
	}
	array := &ArrayNode{Rows: make([][]Node, 0, len(rows))}
	for _, row := range rows {
		call, ok := row.(*FunctionCallNode)
		if !ok || call.Name != "ARRAYROW" {
			return nil, parseError(ErrorCodeValue, "malformed array constant")
		}
		for _, item := range call.Args {
			switch item.(type) {
			case *NumberNode, *StringNode, *BooleanNode, *ErrorNode, *UnaryOpNode:
			default:
				return nil, parseError(ErrorCodeValue, "array constants may only hold literals")
			}
		}
		array.Rows = append(array.Rows, call.Args)
	}
	return array, nil
}

// splitSheet separates an optional sheet prefix from a reference
func splitSheet(ref string) (sheet string, rest string, hasSheet bool) {
	idx := strings.LastIndex(ref, "!")
	if idx == -1 {
		return "", ref, false
	}
	sheet = ref[:idx]
	if len(sheet) >= 2 && strings.HasPrefix(sheet, "'") && strings.HasSuffix(sheet, "'") {
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	return sheet, ref[idx+1:], true
}

// ParseReference parses a cell, range or defined name reference relative to
// the parser's current cell
func (p *Parser) ParseReference(text string) (Node, error) {
	sheetName, ref, hasSheet := splitSheet(text)
	if strings.Contains(sheetName, "!") {
		return nil, parseError(ErrorCodeRef, "Cross-worksheet ranges are not supported")
	}
	var worksheetID uint32
	if hasSheet {
		if p.context.ResolveWorksheet != nil {
			worksheetID = p.context.ResolveWorksheet(sheetName)
		}
		if worksheetID == 0 {
			return nil, parseError(ErrorCodeRef, "unknown worksheet %s", sheetName)
		}
	}

	if start, end, isRange := strings.Cut(ref, ":"); isRange {
		return p.parseRange(worksheetID, start, end)
	}

	row, col, err := ParseCellName(ref)
	if err != nil {
		if !hasSheet && validName(ref) {
			return &NamedRangeNode{Name: ref}, nil
		}
		if !hasSheet {
			return nil, parseError(ErrorCodeName, "invalid name: %s", ref)
		}
		return nil, err
	}
	return &CellRefNode{
		WorksheetID: worksheetID,
		RowOffset:   int32(row) - int32(p.context.CurrentRow),
		ColOffset:   int32(col) - int32(p.context.CurrentColumn),
	}, nil
}

// parseRange parses the two halves of A1:B2, A:B or 1:2
func (p *Parser) parseRange(worksheetID uint32, start, end string) (Node, error) {
	start = strings.ReplaceAll(start, "$", "")
	end = strings.ReplaceAll(end, "$", "")
	node := &RangeNode{WorksheetID: worksheetID}

	if startCol, err := excelize.ColumnNameToNumber(start); err == nil {
		endCol, err := excelize.ColumnNameToNumber(end)
		if err != nil {
			return nil, parseError(ErrorCodeRef, "invalid range: %s:%s", start, end)
		}
		node.WholeColumns = true
		node.StartColOffset = int32(startCol-1) - int32(p.context.CurrentColumn)
		node.EndColOffset = int32(endCol-1) - int32(p.context.CurrentColumn)
		return node, nil
	}

	if startRow, err := strconv.Atoi(start); err == nil {
		endRow, err := strconv.Atoi(end)
		if err != nil || startRow < 1 || endRow < 1 {
			return nil, parseError(ErrorCodeRef, "invalid range: %s:%s", start, end)
		}
		node.WholeRows = true
		node.StartRowOffset = int32(startRow-1) - int32(p.context.CurrentRow)
		node.EndRowOffset = int32(endRow-1) - int32(p.context.CurrentRow)
		return node, nil
	}

	startRow, startCol, err := ParseCellName(start)
	if err != nil {
		return nil, parseError(ErrorCodeRef, "invalid start cell in range: %s", start)
	}
	endRow, endCol, err := ParseCellName(end)
	if err != nil {
		return nil, parseError(ErrorCodeRef, "invalid end cell in range: %s", end)
	}
	node.StartRowOffset = int32(startRow) - int32(p.context.CurrentRow)
	node.StartColOffset = int32(startCol) - int32(p.context.CurrentColumn)
	node.EndRowOffset = int32(endRow) - int32(p.context.CurrentRow)
	node.EndColOffset = int32(endCol) - int32(p.context.CurrentColumn)
	return node, nil
}

// ParseAddress parses "A1" or "Sheet1!B2" into an absolute address. a
// range yields its top-left cell.
func (p *Parser) ParseAddress(address string) (CellAddress, error) {
	rng, err := p.ParseRange(address)
	if err != nil {
		return CellAddress{}, err
	}
	return CellAddress{WorksheetID: rng.WorksheetID, Row: rng.StartRow, Column: rng.StartColumn}, nil
}

// ParseRange parses a cell or range reference into an absolute range
func (p *Parser) ParseRange(address string) (RangeAddress, error) {
	node, err := p.ParseReference(strings.TrimSpace(address))
	if err != nil {
		return RangeAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address %q: %v", address, err))
	}
	source := CellAddress{
		WorksheetID: p.context.CurrentWorksheetID,
		Row:         p.context.CurrentRow,
		Column:      p.context.CurrentColumn,
	}
	switch n := node.(type) {
	case *CellRefNode:
		addr, ok := n.Address(source)
		if !ok {
			break
		}
		return RangeAddress{WorksheetID: addr.WorksheetID, StartRow: addr.Row, StartColumn: addr.Column, EndRow: addr.Row, EndColumn: addr.Column}, nil
	case *RangeNode:
		if addr, ok := n.Address(source); ok {
			return addr, nil
		}
	}
	return RangeAddress{}, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address %q", address))
}
