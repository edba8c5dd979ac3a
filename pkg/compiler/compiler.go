// Package compiler implements glox's single-pass Pratt compiler (spec
// §4.G). There is no intermediate AST: each grammar production both
// parses tokens from the lexer and emits bytecode directly into the
// current function's Chunk in the same call.
//
// This replaces the teacher's three-stage pkg/ast + pkg/parser +
// pkg/compiler pipeline (tokens -> AST -> bytecode) with one pass, per
// spec §1/§4.G. What's kept from the teacher is the shape of the parser
// state machine: pkg/parser/parser.go's curTok/peekTok token-window idiom
// becomes this package's previous/currentTk fields and advance/check/match
// helpers, and its accumulated syntax-error reporting becomes the
// panic-mode + synchronize discipline spec §4.G requires (suppress
// cascading errors within one statement instead of reporting every one).
//
// The compiler never allocates heap objects (interned strings, Function
// objects) directly — it goes through a Heap, so that the single VM/GC
// implementation in pkg/vm remains the only place that owns the object
// list, the intern table and the allocation-triggered collection cycle.
// This also gives the collector a way to reach the in-progress Function
// chain while it's being compiled (spec §4.E root #5, §9 "Compiler chain
// as GC root"): Compile registers markRoots with the heap for the
// duration of the call.
package compiler

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/lexer"
	"github.com/kristofer/glox/pkg/value"
)

// Heap is the subset of the VM's allocator the compiler needs: string
// interning, temporary GC-root protection around constant-pool growth,
// Function allocation, and a hook so the collector can mark the
// in-progress compiler chain as roots while it runs.
type Heap interface {
	InternString(s string) *value.OString
	NewFunction() *value.OFunction
	Push(v value.Value)
	Pop() value.Value
	MarkObject(o *value.Object)
	SetCompilerRoots(fn func())
}

// FunctionKind distinguishes the four compile-time contexts spec §4.G
// names, which determine slot-0 reservation and return-statement rules.
type FunctionKind int

const (
	FnScript FunctionKind = iota
	FnFunction
	FnMethod
	FnInitializer
)

type localVar struct {
	name       lexer.Token
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

// funcCompiler is one frame in the compile-time chain mirroring the
// function nesting of the source: one per fun/method body plus one for
// the implicit top-level script. Locals/upvalues are fixed-size 256-slot
// arrays per spec §4.G.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *value.OFunction
	kind       FunctionKind
	locals     [256]localVar
	localCount int
	upvalues   [256]upvalueRef
	scopeDepth int
}

type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler holds the parser cursor plus the active funcCompiler/
// classCompiler chains for one call to Compile.
type Compiler struct {
	lexer   *lexer.Lexer
	heap    Heap
	current *funcCompiler
	class   *classCompiler

	previous  lexer.Token
	currentTk lexer.Token

	hadError  bool
	panicMode bool
}

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . () []
	precPrimary
)

var rules [int(lexer.EOF) + 1]parseRule

func rule(kind lexer.Kind, prefix, infix parseFn, prec precedence) {
	rules[kind] = parseRule{prefix: prefix, infix: infix, precedence: prec}
}

func init() {
	rule(lexer.LeftParen, grouping, call, precCall)
	rule(lexer.LeftBracket, list, subscript, precCall)
	rule(lexer.Dot, nil, dot, precCall)
	rule(lexer.Minus, unary, binary, precTerm)
	rule(lexer.Plus, nil, binary, precTerm)
	rule(lexer.Slash, nil, binary, precFactor)
	rule(lexer.Star, nil, binary, precFactor)
	rule(lexer.Bang, unary, nil, precNone)
	rule(lexer.BangEqual, nil, binary, precEquality)
	rule(lexer.EqualEqual, nil, binary, precEquality)
	rule(lexer.Greater, nil, binary, precComparison)
	rule(lexer.GreaterEqual, nil, binary, precComparison)
	rule(lexer.Less, nil, binary, precComparison)
	rule(lexer.LessEqual, nil, binary, precComparison)
	rule(lexer.Identifier, variable, nil, precNone)
	rule(lexer.String, stringLiteral, nil, precNone)
	rule(lexer.Number, number, nil, precNone)
	rule(lexer.And, nil, and_, precAnd)
	rule(lexer.Or, nil, or_, precOr)
	rule(lexer.False, literal, nil, precNone)
	rule(lexer.True, literal, nil, precNone)
	rule(lexer.Nil, literal, nil, precNone)
	rule(lexer.This, this_, nil, precNone)
	rule(lexer.Super, super_, nil, precNone)
}

// Compile compiles source into a top-level script function, or returns
// ok=false if any compile error was reported (spec §4.G "End of
// compilation" / §7 "Compile returns no function").
func Compile(source string, heap Heap) (fn *value.OFunction, ok bool) {
	c := &Compiler{lexer: lexer.New(source), heap: heap}
	c.current = newFuncCompiler(nil, FnScript, heap.NewFunction())

	heap.SetCompilerRoots(c.markRoots)
	defer heap.SetCompilerRoots(nil)

	c.advance()
	for !c.match(lexer.EOF) {
		c.declaration()
	}
	function := c.endCompiler()
	return function, !c.hadError
}

func newFuncCompiler(enclosing *funcCompiler, kind FunctionKind, fn *value.OFunction) *funcCompiler {
	fc := &funcCompiler{enclosing: enclosing, function: fn, kind: kind}
	slot0 := &fc.locals[0]
	slot0.depth = 0
	if kind == FnMethod || kind == FnInitializer {
		slot0.name = lexer.Token{Lexeme: "this"}
	}
	fc.localCount = 1
	return fc
}

// markRoots marks every Function reachable via the active compiler chain,
// from this (innermost, currently-parsing) compiler out through every
// enclosing function being compiled (spec §4.E root #5).
func (c *Compiler) markRoots() {
	for fc := c.current; fc != nil; fc = fc.enclosing {
		c.heap.MarkObject(&fc.function.Object)
	}
}

// --- token stream ---

func (c *Compiler) advance() {
	c.previous = c.currentTk
	for {
		c.currentTk = c.lexer.NextToken()
		if c.currentTk.Kind != lexer.Error {
			break
		}
		c.errorAtCurrent(c.currentTk.Lexeme)
	}
}

func (c *Compiler) check(kind lexer.Kind) bool { return c.currentTk.Kind == kind }

func (c *Compiler) match(kind lexer.Kind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind lexer.Kind, message string) {
	if c.currentTk.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- error reporting (spec §7) ---

func (c *Compiler) errorAt(tok lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	fmt.Fprintf(os.Stderr, "[line %d] Error", tok.Line)
	switch {
	case tok.Kind == lexer.EOF:
		fmt.Fprint(os.Stderr, " at end")
	case tok.Kind == lexer.Error:
		// message IS the diagnostic; no "at '...'" location to add.
	default:
		fmt.Fprintf(os.Stderr, " at '%s'", tok.Lexeme)
	}
	fmt.Fprintf(os.Stderr, ": %s\n", message)
	c.hadError = true
}

func (c *Compiler) error(message string)        { c.errorAt(c.previous, message) }
func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.currentTk, message) }

func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.currentTk.Kind != lexer.EOF {
		if c.previous.Kind == lexer.Semicolon {
			return
		}
		switch c.currentTk.Kind {
		case lexer.Class, lexer.Fun, lexer.Var, lexer.For, lexer.If, lexer.While, lexer.Print, lexer.Return:
			return
		}
		c.advance()
	}
}

// --- bytecode emission ---

func (c *Compiler) currentChunk() *value.Chunk { return c.current.function.Chunk }

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op bytecode.Op) { c.emitByte(byte(op)) }

func (c *Compiler) emitBytes(op bytecode.Op, operand byte) {
	c.emitByte(byte(op))
	c.emitByte(operand)
}

func (c *Compiler) emitJump(op bytecode.Op) int {
	c.emitByte(byte(op))
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 65535 {
		c.error("Too much code to jump over.")
	}
	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitByte(byte(bytecode.OpLoop))
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 65535 {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset & 0xff))
}

func (c *Compiler) emitReturn() {
	if c.current.kind == FnInitializer {
		c.emitBytes(bytecode.OpGetLocal, 0)
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	c.heap.Push(v)
	idx := c.currentChunk().AddConstant(v)
	c.heap.Pop()
	if idx > 255 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitBytes(bytecode.OpConstant, c.makeConstant(v))
}

func (c *Compiler) endCompiler() *value.OFunction {
	c.emitReturn()
	fn := c.current.function
	c.current = c.current.enclosing
	return fn
}

func (c *Compiler) beginScope() { c.current.scopeDepth++ }

func (c *Compiler) endScope() {
	c.current.scopeDepth--
	for c.current.localCount > 0 && c.current.locals[c.current.localCount-1].depth > c.current.scopeDepth {
		if c.current.locals[c.current.localCount-1].isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue)
		} else {
			c.emitOp(bytecode.OpPop)
		}
		c.current.localCount--
	}
}

// --- variables ---

func identifiersEqual(a, b lexer.Token) bool { return a.Lexeme == b.Lexeme }

func (c *Compiler) identifierConstant(name lexer.Token) byte {
	s := c.heap.InternString(name.Lexeme)
	return c.makeConstant(s.Val())
}

func (c *Compiler) resolveLocal(fc *funcCompiler, name lexer.Token) int {
	for i := fc.localCount - 1; i >= 0; i-- {
		local := &fc.locals[i]
		if identifiersEqual(name, local.name) {
			if local.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(fc *funcCompiler, index byte, isLocal bool) int {
	count := fc.function.UpvalueCount
	for i := 0; i < count; i++ {
		up := &fc.upvalues[i]
		if int(up.index) == int(index) && up.isLocal == isLocal {
			return i
		}
	}
	if count == 256 {
		c.error("Too many closure variables in function.")
		return 0
	}
	fc.upvalues[count] = upvalueRef{index: index, isLocal: isLocal}
	fc.function.UpvalueCount++
	return count
}

func (c *Compiler) resolveUpvalue(fc *funcCompiler, name lexer.Token) int {
	if fc.enclosing == nil {
		return -1
	}
	if local := c.resolveLocal(fc.enclosing, name); local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fc, byte(local), true)
	}
	if up := c.resolveUpvalue(fc.enclosing, name); up != -1 {
		return c.addUpvalue(fc, byte(up), false)
	}
	return -1
}

func (c *Compiler) addLocal(name lexer.Token) {
	if c.current.localCount == 256 {
		c.error("Too many local variables in function.")
		return
	}
	local := &c.current.locals[c.current.localCount]
	local.name = name
	local.depth = -1
	local.isCaptured = false
	c.current.localCount++
}

func (c *Compiler) declareVariable() {
	if c.current.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := c.current.localCount - 1; i >= 0; i-- {
		local := &c.current.locals[i]
		if local.depth != -1 && local.depth < c.current.scopeDepth {
			break
		}
		if identifiersEqual(name, local.name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(message string) byte {
	c.consume(lexer.Identifier, message)
	c.declareVariable()
	if c.current.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	if c.current.scopeDepth == 0 {
		return
	}
	c.current.locals[c.current.localCount-1].depth = c.current.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.current.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(bytecode.OpDefineGlobal, global)
}

func (c *Compiler) namedVariable(name lexer.Token, canAssign bool) {
	var getOp, setOp bytecode.Op
	arg := c.resolveLocal(c.current, name)
	if arg != -1 {
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	} else if arg = c.resolveUpvalue(c.current, name); arg != -1 {
		getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	if canAssign && c.match(lexer.Equal) {
		c.expression()
		c.emitBytes(setOp, byte(arg))
	} else {
		c.emitBytes(getOp, byte(arg))
	}
}

// --- expressions ---

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := rules[c.previous.Kind].prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= rules[c.currentTk.Kind].precedence {
		c.advance()
		infix := rules[c.previous.Kind].infix
		infix(c, canAssign)
	}

	if canAssign && c.match(lexer.Equal) {
		c.error("Invalid assignment target.")
	}
}

func number(c *Compiler, _ bool) {
	n, _ := strconv.ParseFloat(c.previous.Lexeme, 64)
	c.emitConstant(value.Number(n))
}

func stringLiteral(c *Compiler, _ bool) {
	raw := c.previous.Lexeme
	s := c.heap.InternString(raw[1 : len(raw)-1])
	c.emitConstant(s.Val())
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Kind {
	case lexer.False:
		c.emitOp(bytecode.OpFalse)
	case lexer.True:
		c.emitOp(bytecode.OpTrue)
	case lexer.Nil:
		c.emitOp(bytecode.OpNil)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(lexer.RightParen, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	op := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch op {
	case lexer.Minus:
		c.emitOp(bytecode.OpNegate)
	case lexer.Bang:
		c.emitOp(bytecode.OpNot)
	}
}

func binary(c *Compiler, _ bool) {
	op := c.previous.Kind
	r := rules[op]
	c.parsePrecedence(r.precedence + 1)
	switch op {
	case lexer.BangEqual:
		c.emitOp(bytecode.OpEqual)
		c.emitOp(bytecode.OpNot)
	case lexer.EqualEqual:
		c.emitOp(bytecode.OpEqual)
	case lexer.Greater:
		c.emitOp(bytecode.OpGreater)
	case lexer.GreaterEqual:
		c.emitOp(bytecode.OpLess)
		c.emitOp(bytecode.OpNot)
	case lexer.Less:
		c.emitOp(bytecode.OpLess)
	case lexer.LessEqual:
		c.emitOp(bytecode.OpGreater)
		c.emitOp(bytecode.OpNot)
	case lexer.Plus:
		c.emitOp(bytecode.OpAdd)
	case lexer.Minus:
		c.emitOp(bytecode.OpSubtract)
	case lexer.Star:
		c.emitOp(bytecode.OpMultiply)
	case lexer.Slash:
		c.emitOp(bytecode.OpDivide)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func this_(c *Compiler, _ bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.namedVariable(c.previous, false)
}

func super_(c *Compiler, _ bool) {
	if c.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}
	c.consume(lexer.Dot, "Expect '.' after 'super'.")
	c.consume(lexer.Identifier, "Expect superclass method name.")
	name := c.identifierConstant(c.previous)
	c.namedVariable(lexer.Token{Kind: lexer.Identifier, Lexeme: "this"}, false)
	c.namedVariable(lexer.Token{Kind: lexer.Identifier, Lexeme: "super"}, false)
	c.emitBytes(bytecode.OpGetSuper, name)
}

func (c *Compiler) argumentList() byte {
	count := 0
	if !c.check(lexer.RightParen) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.Comma) {
				break
			}
		}
	}
	c.consume(lexer.RightParen, "Expect ')' after arguments.")
	return byte(count)
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitBytes(bytecode.OpCall, argCount)
}

func dot(c *Compiler, canAssign bool) {
	c.consume(lexer.Identifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.match(lexer.Equal):
		c.expression()
		c.emitBytes(bytecode.OpSetProperty, name)
	case c.match(lexer.LeftParen):
		argCount := c.argumentList()
		c.emitBytes(bytecode.OpInvoke, name)
		c.emitByte(argCount)
	default:
		c.emitBytes(bytecode.OpGetProperty, name)
	}
}

func list(c *Compiler, _ bool) {
	count := 0
	if !c.check(lexer.RightBracket) {
		for {
			c.expression()
			if count == 255 {
				c.error("Can't have more than 255 elements in a list literal.")
			}
			count++
			if !c.match(lexer.Comma) {
				break
			}
		}
	}
	c.consume(lexer.RightBracket, "Expect ']' after list elements.")
	c.emitBytes(bytecode.OpBuildList, byte(count))
}

func subscript(c *Compiler, canAssign bool) {
	c.expression()
	c.consume(lexer.RightBracket, "Expect ']' after index.")
	if canAssign && c.match(lexer.Equal) {
		c.expression()
		c.emitOp(bytecode.OpStoreSubscr)
	} else {
		c.emitOp(bytecode.OpIndexSubscr)
	}
}

// --- statements ---

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.Class):
		c.classDeclaration()
	case c.match(lexer.Fun):
		c.funDeclaration()
	case c.match(lexer.Var):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.Print):
		c.printStatement()
	case c.match(lexer.For):
		c.forStatement()
	case c.match(lexer.If):
		c.ifStatement()
	case c.match(lexer.Return):
		c.returnStatement()
	case c.match(lexer.While):
		c.whileStatement()
	case c.match(lexer.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.RightBrace) && !c.check(lexer.EOF) {
		c.declaration()
	}
	c.consume(lexer.RightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.Semicolon, "Expect ';' after value.")
	c.emitOp(bytecode.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.Semicolon, "Expect ';' after expression.")
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop)

	if c.match(lexer.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.consume(lexer.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitOp(bytecode.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.LeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(lexer.Semicolon):
		// no initializer
	case c.match(lexer.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(lexer.Semicolon) {
		c.expression()
		c.consume(lexer.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitOp(bytecode.OpPop)
	}

	if !c.match(lexer.RightParen) {
		bodyJump := c.emitJump(bytecode.OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(bytecode.OpPop)
		c.consume(lexer.RightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(bytecode.OpPop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.current.kind == FnScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(lexer.Semicolon) {
		c.emitReturn()
		return
	}
	if c.current.kind == FnInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(lexer.Semicolon, "Expect ';' after return value.")
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(lexer.Equal) {
		c.expression()
	} else {
		c.emitOp(bytecode.OpNil)
	}
	c.consume(lexer.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) function(kind FunctionKind) {
	fn := c.heap.NewFunction()
	c.current = newFuncCompiler(c.current, kind, fn)
	fn.Name = c.heap.InternString(c.previous.Lexeme)
	c.beginScope()

	c.consume(lexer.LeftParen, "Expect '(' after function name.")
	if !c.check(lexer.RightParen) {
		for {
			c.current.function.Arity++
			if c.current.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConstant := c.parseVariable("Expect parameter name.")
			c.defineVariable(paramConstant)
			if !c.match(lexer.Comma) {
				break
			}
		}
	}
	c.consume(lexer.RightParen, "Expect ')' after parameters.")
	c.consume(lexer.LeftBrace, "Expect '{' before function body.")

	fc := c.current
	c.block()
	function := c.endCompiler()

	idx := c.makeConstant(function.Val())
	c.emitBytes(bytecode.OpClosure, idx)
	for i := 0; i < function.UpvalueCount; i++ {
		if fc.upvalues[i].isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(fc.upvalues[i].index)
	}
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(FnFunction)
	c.defineVariable(global)
}

func (c *Compiler) method() {
	c.consume(lexer.Identifier, "Expect method name.")
	name := c.previous
	constant := c.identifierConstant(name)

	kind := FnMethod
	if name.Lexeme == "init" {
		kind = FnInitializer
	}
	c.function(kind)
	c.emitBytes(bytecode.OpMethod, constant)
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.Identifier, "Expect class name.")
	className := c.previous
	nameConstant := c.identifierConstant(c.previous)
	c.declareVariable()

	c.emitBytes(bytecode.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.class}
	c.class = cc

	if c.match(lexer.Less) {
		c.consume(lexer.Identifier, "Expect superclass name.")
		variable(c, false)
		if identifiersEqual(className, c.previous) {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal(lexer.Token{Kind: lexer.Identifier, Lexeme: "super"})
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emitOp(bytecode.OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(lexer.LeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.RightBrace) && !c.check(lexer.EOF) {
		c.method()
	}
	c.consume(lexer.RightBrace, "Expect '}' after class body.")
	c.emitOp(bytecode.OpPop)

	if cc.hasSuperclass {
		c.endScope()
	}
	c.class = cc.enclosing
}
