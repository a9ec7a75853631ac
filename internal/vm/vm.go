package vm

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/value"
)

type frame struct {
	closure value.Ref
	cl      *heap.Closure
	fn      *heap.Function
	ip      int
	base    int
	lastOp  int
}

// Options bounds execution. Zero fields take defaults.
type Options struct {
	MaxFrames        int
	MaxStack         int
	InstructionLimit int
}

// Stats reports high-water marks of the most recent run.
type Stats struct {
	PeakStack    int
	PeakFrames   int
	Instructions int
}

// VM is a stack-based bytecode interpreter over a shared heap.
type VM struct {
	heap         *heap.Heap
	globals      *Globals
	stack        []value.Value
	frames       []frame
	openUpvalues []value.Ref // ordered by stack slot
	maxStack     int
	maxFrames    int
	traceHook    TraceHook
	instLimit    int
	instCount    int
	peakStack    int
	peakFrames   int
	log          commonlog.Logger
}

const (
	defaultMaxStack  = 1 << 16
	defaultMaxFrames = 1024
)

// New constructs a VM bound to h, registers it as a heap root and binds
// every registered builtin as a global.
func New(h *heap.Heap, opts Options) *VM {
	vm := &VM{
		heap:         h,
		globals:      newGlobals(),
		stack:        make([]value.Value, 0, 256),
		frames:       make([]frame, 0, 16),
		openUpvalues: make([]value.Ref, 0),
		maxStack:     defaultMaxStack,
		maxFrames:    defaultMaxFrames,
		log:          commonlog.GetLogger("lisp.vm"),
	}
	if opts.MaxStack > 0 {
		vm.maxStack = opts.MaxStack
	}
	if opts.MaxFrames > 0 {
		vm.maxFrames = opts.MaxFrames
	}
	vm.SetInstructionLimit(opts.InstructionLimit)
	h.AddRoot(vm)
	vm.installBuiltins()
	return vm
}

// Heap returns the heap the VM allocates from.
func (vm *VM) Heap() *heap.Heap {
	return vm.heap
}

// Globals exposes the global table; the compiler resolves names through it.
func (vm *VM) Globals() *Globals {
	return vm.globals
}

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// SetInstructionLimit caps the number of instructions executed per Run (0 for unlimited).
func (vm *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	vm.instLimit = limit
}

// ResetState clears transient execution state (stack, frames, open upvalues).
// Globals and the heap are kept.
func (vm *VM) ResetState() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = vm.openUpvalues[:0]
	vm.instCount = 0
}

// Stats reports counters from the most recent Run.
func (vm *VM) Stats() Stats {
	return Stats{
		PeakStack:    vm.peakStack,
		PeakFrames:   vm.peakFrames,
		Instructions: vm.instCount,
	}
}

// MarkRoots reports the stack, globals, frame closures and open upvalue
// cells to the collector.
func (vm *VM) MarkRoots(mark func(value.Value)) {
	for _, v := range vm.stack {
		mark(v)
	}
	for _, v := range vm.globals.values {
		mark(v)
	}
	for i := range vm.frames {
		mark(value.Object(vm.frames[i].closure))
	}
	for _, uv := range vm.openUpvalues {
		mark(value.Object(uv))
	}
}

// Run wraps the function template fn in a closure and executes it as the
// outermost frame. On a runtime error the stack and frames are cleared.
func (vm *VM) Run(fn value.Ref) (value.Value, error) {
	ref, _ := vm.heap.NewClosure(fn)
	return vm.CallValue(value.Object(ref), nil)
}

func (vm *VM) fail(err error) (value.Value, error) {
	if rerr, ok := err.(*RuntimeError); ok {
		vm.log.Info("runtime error", "message", rerr.Message, "frames", len(rerr.Stack))
	}
	vm.ResetState()
	return value.Undefined(), err
}

func (vm *VM) run() (value.Value, error) {
	for {
		fr := vm.currentFrame()
		fr.lastOp = fr.ip
		code := fr.fn.Chunk.Code
		if fr.ip >= len(code) {
			return value.Undefined(), vm.errorf(fr, "instruction pointer out of range")
		}
		op := code[fr.ip]
		fr.ip++
		vm.instCount++
		if vm.instLimit > 0 && vm.instCount > vm.instLimit {
			return value.Undefined(), vm.errorf(fr, "instruction limit exceeded")
		}
		if len(vm.stack) > vm.peakStack {
			vm.peakStack = len(vm.stack)
			if vm.peakStack > vm.maxStack {
				return value.Undefined(), vm.errorf(fr, "stack overflow")
			}
		}
		vm.trace(fr, op)
		switch op {
		case bytecode.OP_CONSTANT:
			idx := vm.readU16(fr)
			vm.push(fr.fn.Chunk.Constants[idx])
		case bytecode.OP_NIL:
			vm.push(value.Nil())
		case bytecode.OP_TRUE:
			vm.push(value.Bool(true))
		case bytecode.OP_FALSE:
			vm.push(value.Bool(false))
		case bytecode.OP_POP:
			vm.pop()
		case bytecode.OP_ADD:
			a, b := vm.peek(1), vm.peek(0)
			if !a.IsNumber() || !b.IsNumber() {
				return value.Undefined(), vm.errorf(fr, "+: expected numeric operand")
			}
			vm.drop(2)
			vm.push(value.Number(a.Num + b.Num))
		case bytecode.OP_EQUAL:
			a, b := vm.peek(1), vm.peek(0)
			if !a.IsNumber() || !b.IsNumber() {
				return value.Undefined(), vm.errorf(fr, "=: expected numeric operand")
			}
			vm.drop(2)
			vm.push(value.Bool(a.Num == b.Num))
		case bytecode.OP_NOT:
			v := vm.pop()
			vm.push(value.Bool(!value.Truthy(v)))
		case bytecode.OP_CONS:
			// both operands stay on the stack until the pair exists
			pair := vm.heap.NewPair(vm.peek(1), vm.peek(0))
			vm.drop(2)
			vm.push(pair)
		case bytecode.OP_DEFINE_GLOBAL:
			idx := vm.readU16(fr)
			vm.globals.values[idx] = vm.pop()
		case bytecode.OP_GET_GLOBAL:
			idx := vm.readU16(fr)
			v := vm.globals.values[idx]
			if v.Kind == value.KindUninitialized {
				return value.Undefined(), vm.errorf(fr, "undefined variable '%s'", vm.globals.names[idx])
			}
			vm.push(v)
		case bytecode.OP_SET_GLOBAL:
			idx := vm.readU16(fr)
			if vm.globals.values[idx].Kind == value.KindUninitialized {
				return value.Undefined(), vm.errorf(fr, "undefined variable '%s'", vm.globals.names[idx])
			}
			vm.globals.values[idx] = vm.peek(0)
		case bytecode.OP_GET_LOCAL:
			slot := vm.readU16(fr)
			vm.push(vm.stack[fr.base+1+int(slot)])
		case bytecode.OP_SET_LOCAL:
			slot := vm.readU16(fr)
			vm.stack[fr.base+1+int(slot)] = vm.peek(0)
		case bytecode.OP_GET_UPVALUE:
			slot := vm.readU16(fr)
			vm.push(vm.upvalueGet(fr.cl.Upvalues[slot]))
		case bytecode.OP_SET_UPVALUE:
			slot := vm.readU16(fr)
			vm.upvalueSet(fr.cl.Upvalues[slot], vm.peek(0))
		case bytecode.OP_JUMP:
			off := vm.readU16(fr)
			fr.ip += int(off)
		case bytecode.OP_JUMP_IF_FALSE:
			off := vm.readU16(fr)
			if !value.Truthy(vm.peek(0)) {
				fr.ip += int(off)
			}
		case bytecode.OP_CALL:
			argc := int(vm.readU16(fr))
			if err := vm.callValue(argc); err != nil {
				return value.Undefined(), vm.wrapError(fr, err)
			}
		case bytecode.OP_TAIL_CALL:
			argc := int(vm.readU16(fr))
			if err := vm.tailCall(fr, argc); err != nil {
				return value.Undefined(), vm.wrapError(fr, err)
			}
		case bytecode.OP_CLOSURE:
			vm.makeClosure(fr)
		case bytecode.OP_RETURN:
			result := vm.pop()
			ret, done := vm.finishFrame(result)
			if done {
				return ret, nil
			}
		default:
			return value.Undefined(), vm.errorf(fr, "unknown opcode %d", op)
		}
	}
}

// callValue dispatches on the callee sitting argc slots below the top.
func (vm *VM) callValue(argc int) error {
	callee := vm.peek(argc)
	if cl, ok := vm.heap.AsClosure(callee); ok {
		return vm.callClosure(callee.Ref, cl, argc)
	}
	if b, ok := vm.heap.AsBuiltin(callee); ok {
		return vm.callBuiltin(b, argc)
	}
	return fmt.Errorf("not callable: %s", vm.heap.Format(callee))
}

func (vm *VM) checkArity(fn *heap.Function, argc int) error {
	if argc != fn.Arity {
		return fmt.Errorf("%s: expected %d arguments but got %d", fn.DisplayName(), fn.Arity, argc)
	}
	return nil
}

func (vm *VM) callClosure(ref value.Ref, cl *heap.Closure, argc int) error {
	fn := vm.heap.Function(cl.Function)
	if err := vm.checkArity(fn, argc); err != nil {
		return err
	}
	if len(vm.frames) >= vm.maxFrames {
		return fmt.Errorf("stack overflow")
	}
	vm.frames = append(vm.frames, frame{
		closure: ref,
		cl:      cl,
		fn:      fn,
		base:    len(vm.stack) - argc - 1,
		lastOp:  -1,
	})
	if len(vm.frames) > vm.peakFrames {
		vm.peakFrames = len(vm.frames)
	}
	return nil
}

func (vm *VM) callBuiltin(b *heap.Builtin, argc int) error {
	if !b.Check(argc) {
		return fmt.Errorf("%s: wrong number of arguments (%d)", b.Name, argc)
	}
	top := len(vm.stack)
	result, err := b.Impl(vm.heap, vm.stack[top-argc:top])
	if err != nil {
		return err
	}
	vm.stack = vm.stack[:top-argc-1]
	vm.push(result)
	return nil
}

// tailCall reuses the current frame's stack window for a closure callee.
func (vm *VM) tailCall(fr *frame, argc int) error {
	callee := vm.peek(argc)
	cl, ok := vm.heap.AsClosure(callee)
	if !ok {
		return vm.callValue(argc)
	}
	if err := vm.checkArity(vm.heap.Function(cl.Function), argc); err != nil {
		return err
	}
	base := fr.base
	vm.closeUpvalues(base)
	start := len(vm.stack) - argc - 1
	copy(vm.stack[base:], vm.stack[start:])
	vm.stack = vm.stack[:base+argc+1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	return vm.callClosure(callee.Ref, cl, argc)
}

func (vm *VM) makeClosure(fr *frame) {
	idx := vm.readU16(fr)
	ref, cl := vm.heap.NewClosure(fr.fn.Chunk.Constants[idx].Ref)
	vm.push(value.Object(ref))
	for i := range cl.Upvalues {
		isLocal := vm.readU8(fr)
		index := int(vm.readU16(fr))
		if isLocal == 1 {
			cl.Upvalues[i] = vm.captureUpvalue(fr.base + 1 + index)
		} else {
			cl.Upvalues[i] = fr.cl.Upvalues[index]
		}
	}
}

func (vm *VM) finishFrame(ret value.Value) (value.Value, bool) {
	fr := vm.currentFrame()
	base := fr.base
	vm.closeUpvalues(base)
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == 0 {
		vm.stack = vm.stack[:0]
		return ret, true
	}
	vm.stack = vm.stack[:base]
	vm.push(ret)
	return ret, false
}

func (vm *VM) currentFrame() *frame {
	return &vm.frames[len(vm.frames)-1]
}

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) drop(n int) {
	vm.stack = vm.stack[:len(vm.stack)-n]
}

// peek returns the value distance slots below the top.
func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) readU16(fr *frame) uint16 {
	v := fr.fn.Chunk.ReadU16(fr.ip)
	fr.ip += 2
	return v
}

func (vm *VM) readU8(fr *frame) byte {
	b := fr.fn.Chunk.Code[fr.ip]
	fr.ip++
	return b
}
