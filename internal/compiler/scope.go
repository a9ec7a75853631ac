package compiler

import (
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/value"
)

const maxU16 = 1<<16 - 1

// local is a variable living in the enclosing function's stack window.
// depth is -1 between declaration and the end of its initialiser.
type local struct {
	name  string
	depth int
}

// Upvalue describes where a closure finds a captured variable when it is
// created: a local slot of the enclosing function, or one of the enclosing
// closure's own upvalues.
type Upvalue struct {
	Index   uint16
	IsLocal bool
}

// funcState tracks one function being compiled. The compiler keeps these on
// an explicit stack; index 0 is the top-level script.
type funcState struct {
	ref      value.Ref
	fn       *heap.Function
	locals   []local
	upvalues []Upvalue
}

func (fs *funcState) resolveLocal(name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.name == name && l.depth >= 0 {
			return i, true
		}
	}
	return 0, false
}

func (fs *funcState) declared(name string) bool {
	for _, l := range fs.locals {
		if l.name == name {
			return true
		}
	}
	return false
}

func (c *Compiler) state() *funcState {
	return c.states[len(c.states)-1]
}

func (c *Compiler) pushState(name string, line int) *funcState {
	ref, fn := c.heap.NewFunction(name, c.name, line)
	fs := &funcState{ref: ref, fn: fn}
	c.states = append(c.states, fs)
	return fs
}

func (c *Compiler) popState() *funcState {
	fs := c.state()
	c.states = c.states[:len(c.states)-1]
	return fs
}

func (c *Compiler) addLocal(name string, initialised bool) error {
	fs := c.state()
	if len(fs.locals) >= maxU16 {
		return c.errorAtPrevious("too many local variables in function")
	}
	depth := -1
	if initialised {
		depth = 0
	}
	fs.locals = append(fs.locals, local{name: name, depth: depth})
	return nil
}

func (c *Compiler) markInitialised() {
	fs := c.state()
	fs.locals[len(fs.locals)-1].depth = 0
}

// resolveUpvalue finds name in the functions enclosing states[level] and
// threads it through each intermediate closure.
func (c *Compiler) resolveUpvalue(level int, name string) (uint16, bool, error) {
	if level == 0 {
		return 0, false, nil
	}
	enclosing := c.states[level-1]
	if slot, ok := enclosing.resolveLocal(name); ok {
		idx, err := c.addUpvalue(level, uint16(slot), true)
		return idx, err == nil, err
	}
	outer, ok, err := c.resolveUpvalue(level-1, name)
	if !ok || err != nil {
		return 0, false, err
	}
	idx, err := c.addUpvalue(level, outer, false)
	return idx, err == nil, err
}

func (c *Compiler) addUpvalue(level int, index uint16, isLocal bool) (uint16, error) {
	fs := c.states[level]
	for i, uv := range fs.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return uint16(i), nil
		}
	}
	if len(fs.upvalues) >= maxU16 {
		return 0, c.errorAtPrevious("too many closure variables in function")
	}
	fs.upvalues = append(fs.upvalues, Upvalue{Index: index, IsLocal: isLocal})
	fs.fn.UpvalueCount = len(fs.upvalues)
	return uint16(len(fs.upvalues) - 1), nil
}
