package compiler

import (
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/lexer"
	"github.com/xirelogy/go-lisp/internal/token"
	"github.com/xirelogy/go-lisp/internal/value"
)

// ScriptName names the top-level function of every compilation.
const ScriptName = "<script>"

// Globals is the VM's global table as seen by the compiler.
type Globals interface {
	// Index returns the slot for name, creating an uninitialised one on
	// first use.
	Index(name string) (uint16, error)
	// Defined reports whether the slot holds a value.
	Defined(idx uint16) bool
}

// Compiler turns source text into a function template in a single pass.
// It is used once per compilation.
type Compiler struct {
	heap    *heap.Heap
	globals Globals
	name    string
	lex     *lexer.Lexer
	log     commonlog.Logger

	current  token.Token
	previous token.Token
	ahead    []token.Token
	depth    int

	states  []*funcState
	pending map[uint16]bool
	errors  ErrorList
}

// Compile compiles source and returns the handle of its top-level function.
// name labels the source in diagnostics. On failure the error is an
// ErrorList.
func Compile(h *heap.Heap, globals Globals, name, source string) (value.Ref, error) {
	c := &Compiler{
		heap:    h,
		globals: globals,
		name:    name,
		lex:     lexer.New(source),
		log:     commonlog.GetLogger("lisp.compiler"),
		pending: make(map[uint16]bool),
	}
	h.AddRoot(c)
	defer h.RemoveRoot(c)
	return c.compileScript()
}

// MarkRoots keeps in-progress templates alive while compiling.
func (c *Compiler) MarkRoots(mark func(value.Value)) {
	for _, fs := range c.states {
		mark(value.Object(fs.ref))
	}
}

func (c *Compiler) compileScript() (value.Ref, error) {
	script := c.pushState(ScriptName, 1)
	c.advance()
	forms := 0
	for c.current.Type != token.EOF {
		if forms > 0 {
			c.emitByte(bytecode.OP_POP)
		}
		start := c.current
		if err := c.compileExpr(); err != nil {
			c.synchronize(start)
		}
		forms++
	}
	if forms == 0 {
		c.emitByte(bytecode.OP_NIL)
	}
	c.emitByte(bytecode.OP_RETURN)
	if len(c.errors) > 0 {
		return value.Ref{}, c.errors
	}
	c.markTailCalls(script.fn)
	return script.ref, nil
}

// synchronize skips to the end of the top-level form that failed.
func (c *Compiler) synchronize(start token.Token) {
	c.states = c.states[:1]
	consumed := c.previous.Pos.Offset >= start.Pos.Offset && c.previous != (token.Token{})
	for c.depth > 0 && c.current.Type != token.EOF {
		c.advance()
		consumed = true
	}
	if !consumed && c.current.Type != token.EOF {
		c.advance()
	}
	c.depth = 0
}

func (c *Compiler) advance() {
	c.previous = c.current
	switch c.previous.Type {
	case token.LParen:
		c.depth++
	case token.RParen:
		if c.depth > 0 {
			c.depth--
		}
	}
	if len(c.ahead) > 0 {
		c.current = c.ahead[0]
		c.ahead = c.ahead[1:]
		return
	}
	c.current = c.lex.NextToken()
}

func (c *Compiler) peek() token.Token {
	if len(c.ahead) == 0 {
		c.ahead = append(c.ahead, c.lex.NextToken())
	}
	return c.ahead[0]
}

func (c *Compiler) check(t token.Type) bool {
	return c.current.Type == t
}

func (c *Compiler) consume(t token.Type, msg string) error {
	if c.current.Type != t {
		return c.unexpected(msg)
	}
	c.advance()
	return nil
}

// unexpected reports the current token, preferring a lexer diagnostic.
func (c *Compiler) unexpected(msg string) error {
	switch c.current.Type {
	case token.Error:
		return c.errorAtCurrent(c.current.Literal)
	case token.EOF:
		return c.errorAtCurrent("unterminated form")
	}
	return c.errorAtCurrent(msg)
}

func (c *Compiler) compileExpr() error {
	tok := c.current
	switch tok.Type {
	case token.Number:
		c.advance()
		n, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return c.errorAtPrevious("invalid number")
		}
		return c.emitConstant(value.Number(n))
	case token.String:
		c.advance()
		return c.emitConstant(c.heap.NewString(tok.Literal))
	case token.True:
		c.advance()
		c.emitByte(bytecode.OP_TRUE)
		return nil
	case token.False:
		c.advance()
		c.emitByte(bytecode.OP_FALSE)
		return nil
	case token.Nil:
		c.advance()
		c.emitByte(bytecode.OP_NIL)
		return nil
	case token.Symbol:
		c.advance()
		return c.compileVariable(tok.Literal)
	case token.LParen:
		c.advance()
		return c.compileList()
	}
	return c.unexpected("expected expression")
}

func (c *Compiler) compileList() error {
	switch c.current.Type {
	case token.RParen:
		return c.errorAtCurrent("empty combination")
	case token.Define:
		if len(c.states) > 1 {
			return c.errorAtCurrent("definition not allowed here")
		}
		c.advance()
		return c.compileGlobalDefine()
	case token.Set:
		c.advance()
		return c.compileSet()
	case token.Lambda:
		line := c.current.Pos.Line
		c.advance()
		if err := c.consume(token.LParen, "expected parameter list"); err != nil {
			return err
		}
		return c.compileFunction("", line)
	case token.If:
		c.advance()
		return c.compileIf()
	case token.And:
		c.advance()
		return c.compileAnd()
	case token.Or:
		c.advance()
		return c.compileOr()
	case token.Not:
		c.advance()
		return c.compileNot()
	case token.Symbol:
		if op, ok := c.primitive(c.current.Literal); ok {
			name := c.current
			c.advance()
			return c.compilePrimitive(name, op)
		}
	}
	return c.compileCall()
}

func (c *Compiler) compileCall() error {
	if err := c.compileExpr(); err != nil {
		return err
	}
	argc := 0
	for !c.check(token.RParen) {
		if argc == maxU16 {
			return c.errorAtCurrent("too many arguments")
		}
		if err := c.compileExpr(); err != nil {
			return err
		}
		argc++
	}
	c.advance()
	c.emitOpU16(bytecode.OP_CALL, uint16(argc))
	return nil
}

var primitives = map[string]byte{
	"+":    bytecode.OP_ADD,
	"=":    bytecode.OP_EQUAL,
	"cons": bytecode.OP_CONS,
}

// primitive reports whether name is an inlinable operator that no local or
// captured variable shadows.
func (c *Compiler) primitive(name string) (byte, bool) {
	op, ok := primitives[name]
	if !ok {
		return 0, false
	}
	level := len(c.states) - 1
	if _, found := c.state().resolveLocal(name); found {
		return 0, false
	}
	if _, found, _ := c.resolveUpvalue(level, name); found {
		return 0, false
	}
	return op, true
}

func (c *Compiler) compilePrimitive(name token.Token, op byte) error {
	n := 0
	for !c.check(token.RParen) {
		if err := c.compileExpr(); err != nil {
			return err
		}
		n++
	}
	if n != 2 {
		return c.errorAt(name, "expected 2 operands")
	}
	c.advance()
	c.emitByte(op)
	return nil
}

func (c *Compiler) compileVariable(name string) error {
	getOp, _, idx, err := c.resolve(name)
	if err != nil {
		return err
	}
	c.emitOpU16(getOp, idx)
	return nil
}

// resolve finds name as a local, then an upvalue, then a global.
func (c *Compiler) resolve(name string) (getOp, setOp byte, idx uint16, err error) {
	level := len(c.states) - 1
	if slot, ok := c.state().resolveLocal(name); ok {
		return bytecode.OP_GET_LOCAL, bytecode.OP_SET_LOCAL, uint16(slot), nil
	}
	up, ok, err := c.resolveUpvalue(level, name)
	if err != nil {
		return 0, 0, 0, err
	}
	if ok {
		return bytecode.OP_GET_UPVALUE, bytecode.OP_SET_UPVALUE, up, nil
	}
	g, err := c.globals.Index(name)
	if err != nil {
		return 0, 0, 0, c.errorAtPrevious(err.Error())
	}
	return bytecode.OP_GET_GLOBAL, bytecode.OP_SET_GLOBAL, g, nil
}

func (c *Compiler) compileGlobalDefine() error {
	var (
		nameTok token.Token
		sugar   bool
	)
	if c.check(token.LParen) {
		c.advance()
		sugar = true
	}
	if !c.check(token.Symbol) {
		return c.unexpected("expected variable name")
	}
	nameTok = c.current
	c.advance()
	if _, ok := primitives[nameTok.Literal]; ok {
		return c.errorAt(nameTok, "cannot rebind primitive")
	}
	idx, err := c.globals.Index(nameTok.Literal)
	if err != nil {
		return c.errorAt(nameTok, err.Error())
	}
	if c.globals.Defined(idx) || c.pending[idx] {
		return c.errorAt(nameTok, "redefinition of global")
	}
	c.pending[idx] = true
	if sugar {
		err = c.compileFunction(nameTok.Literal, nameTok.Pos.Line)
	} else {
		err = c.compileDefineValue(nameTok.Literal)
	}
	if err != nil {
		return err
	}
	c.emitOpU16(bytecode.OP_DEFINE_GLOBAL, idx)
	c.emitByte(bytecode.OP_NIL)
	return nil
}

// compileDefineValue compiles the initialiser of (define name expr) and the
// closing parenthesis.
func (c *Compiler) compileDefineValue(name string) error {
	if c.check(token.RParen) {
		return c.errorAtCurrent("expected value for definition")
	}
	if err := c.compileNamed(name); err != nil {
		return err
	}
	return c.consume(token.RParen, "expected ')' after definition")
}

// compileNamed compiles an expression, naming it when it is a bare lambda.
func (c *Compiler) compileNamed(name string) error {
	if c.check(token.LParen) && c.peek().Type == token.Lambda {
		c.advance()
		line := c.current.Pos.Line
		c.advance()
		if err := c.consume(token.LParen, "expected parameter list"); err != nil {
			return err
		}
		return c.compileFunction(name, line)
	}
	return c.compileExpr()
}

// compileLocalDefine handles a definition directly in a lambda body. The
// value stays in its stack slot.
func (c *Compiler) compileLocalDefine() error {
	c.advance() // (
	c.advance() // define
	sugar := false
	if c.check(token.LParen) {
		c.advance()
		sugar = true
	}
	if !c.check(token.Symbol) {
		return c.unexpected("expected variable name")
	}
	nameTok := c.current
	c.advance()
	if c.state().declared(nameTok.Literal) {
		return c.errorAt(nameTok, "variable already defined in this scope")
	}
	if err := c.addLocal(nameTok.Literal, false); err != nil {
		return err
	}
	var err error
	if sugar {
		err = c.compileFunction(nameTok.Literal, nameTok.Pos.Line)
	} else {
		err = c.compileDefineValue(nameTok.Literal)
	}
	if err != nil {
		return err
	}
	c.markInitialised()
	return nil
}

func (c *Compiler) compileSet() error {
	if !c.check(token.Symbol) {
		return c.unexpected("expected variable name")
	}
	nameTok := c.current
	c.advance()
	_, setOp, idx, err := c.resolve(nameTok.Literal)
	if err != nil {
		return err
	}
	if setOp == bytecode.OP_SET_GLOBAL {
		// calls to these names are inlined, so a new global binding would
		// never be seen
		if _, ok := primitives[nameTok.Literal]; ok {
			return c.errorAt(nameTok, "cannot rebind primitive")
		}
		if !c.globals.Defined(idx) && !c.pending[idx] {
			return c.errorAt(nameTok, "assignment to undefined variable")
		}
	}
	if c.check(token.RParen) {
		return c.errorAtCurrent("expected value for assignment")
	}
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.consume(token.RParen, "expected ')' after assignment"); err != nil {
		return err
	}
	c.emitOpU16(setOp, idx)
	return nil
}

// compileFunction compiles parameters and body of a lambda; the opening
// parenthesis of the parameter list has been consumed.
func (c *Compiler) compileFunction(name string, line int) error {
	fs := c.pushState(name, line)
	for !c.check(token.RParen) {
		if !c.check(token.Symbol) {
			return c.unexpected("expected parameter name")
		}
		param := c.current
		c.advance()
		if fs.declared(param.Literal) {
			return c.errorAt(param, "duplicate parameter")
		}
		if err := c.addLocal(param.Literal, true); err != nil {
			return err
		}
		fs.fn.Arity++
	}
	c.advance()
	if c.check(token.RParen) {
		return c.errorAtCurrent("empty lambda body")
	}
	for {
		isDefine := c.check(token.LParen) && c.peek().Type == token.Define
		var err error
		if isDefine {
			err = c.compileLocalDefine()
		} else {
			err = c.compileExpr()
		}
		if err != nil {
			return err
		}
		if c.check(token.RParen) {
			if isDefine {
				c.emitByte(bytecode.OP_NIL)
			}
			break
		}
		if !isDefine {
			c.emitByte(bytecode.OP_POP)
		}
	}
	c.advance()
	c.emitByte(bytecode.OP_RETURN)
	c.markTailCalls(fs.fn)

	c.popState()
	idx, err := c.makeConstant(value.Object(fs.ref))
	if err != nil {
		return err
	}
	c.emitOpU16(bytecode.OP_CLOSURE, idx)
	for _, uv := range fs.upvalues {
		if uv.IsLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitU16(uv.Index)
	}
	return nil
}

func (c *Compiler) compileIf() error {
	if c.check(token.RParen) {
		return c.errorAtCurrent("expected condition")
	}
	if err := c.compileExpr(); err != nil {
		return err
	}
	elseJump := c.emitJump(bytecode.OP_JUMP_IF_FALSE)
	c.emitByte(bytecode.OP_POP)
	if c.check(token.RParen) {
		return c.errorAtCurrent("expected consequent")
	}
	if err := c.compileExpr(); err != nil {
		return err
	}
	endJump := c.emitJump(bytecode.OP_JUMP)
	if err := c.patchJump(elseJump); err != nil {
		return err
	}
	c.emitByte(bytecode.OP_POP)
	if c.check(token.RParen) {
		c.emitByte(bytecode.OP_NIL)
	} else if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.patchJump(endJump); err != nil {
		return err
	}
	return c.consume(token.RParen, "expected ')' after if")
}

func (c *Compiler) compileAnd() error {
	if c.check(token.RParen) {
		c.advance()
		c.emitByte(bytecode.OP_TRUE)
		return nil
	}
	var exits []int
	for {
		if err := c.compileExpr(); err != nil {
			return err
		}
		if c.check(token.RParen) {
			break
		}
		exits = append(exits, c.emitJump(bytecode.OP_JUMP_IF_FALSE))
		c.emitByte(bytecode.OP_POP)
	}
	c.advance()
	for _, pos := range exits {
		if err := c.patchJump(pos); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileOr() error {
	if c.check(token.RParen) {
		c.advance()
		c.emitByte(bytecode.OP_FALSE)
		return nil
	}
	var exits []int
	for {
		if err := c.compileExpr(); err != nil {
			return err
		}
		if c.check(token.RParen) {
			break
		}
		next := c.emitJump(bytecode.OP_JUMP_IF_FALSE)
		exits = append(exits, c.emitJump(bytecode.OP_JUMP))
		if err := c.patchJump(next); err != nil {
			return err
		}
		c.emitByte(bytecode.OP_POP)
	}
	c.advance()
	for _, pos := range exits {
		if err := c.patchJump(pos); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileNot() error {
	if c.check(token.RParen) {
		return c.errorAtCurrent("expected operand")
	}
	if err := c.compileExpr(); err != nil {
		return err
	}
	if err := c.consume(token.RParen, "expected 1 operand"); err != nil {
		return err
	}
	c.emitByte(bytecode.OP_NOT)
	return nil
}

func (c *Compiler) chunk() *bytecode.Chunk {
	return c.state().fn.Chunk
}

func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.previous.Pos.Line)
}

func (c *Compiler) emitU16(v uint16) {
	c.chunk().WriteU16(v, c.previous.Pos.Line)
}

func (c *Compiler) emitOpU16(op byte, v uint16) {
	c.emitByte(op)
	c.emitU16(v)
}

func (c *Compiler) makeConstant(v value.Value) (uint16, error) {
	if len(c.chunk().Constants) >= bytecode.MaxConstants {
		return 0, c.errorAtPrevious("too many constants in one chunk")
	}
	return c.chunk().AddConstant(v), nil
}

func (c *Compiler) emitConstant(v value.Value) error {
	idx, err := c.makeConstant(v)
	if err != nil {
		return err
	}
	c.emitOpU16(bytecode.OP_CONSTANT, idx)
	return nil
}

func (c *Compiler) emitJump(op byte) int {
	c.emitByte(op)
	// placeholder for u16
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(pos int) error {
	offset := len(c.chunk().Code) - pos - 2
	if offset > maxU16 {
		return c.errorAtPrevious("too much code to jump over")
	}
	c.chunk().Patch(pos, byte(offset))
	c.chunk().Patch(pos+1, byte(offset>>8))
	return nil
}
