package vm

import (
	"fmt"
	"strings"

	"github.com/xirelogy/go-lisp/internal/bytecode"
)

// TraceInfo describes a single instruction dispatch for debugging/tracing.
type TraceInfo struct {
	Op       byte
	Function string
	Source   string
	Line     int
	IP       int
	Depth    int
	Text     string
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures the call frame at the time of an error or trace event.
type FrameInfo struct {
	Function string
	Source   string
	Line     int
	IP       int
}

// RuntimeError carries source/stack information for VM failures.
type RuntimeError struct {
	Message string
	Frame   FrameInfo
	Stack   []FrameInfo
	Cause   error
}

func (e *RuntimeError) Error() string {
	locParts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			locParts = append(locParts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			locParts = append(locParts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		locParts = append(locParts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Function != "" {
		locParts = append(locParts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(locParts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// Trace renders the call stack innermost first, one frame per line.
func (e *RuntimeError) Trace() string {
	var sb strings.Builder
	for _, fr := range e.Stack {
		fmt.Fprintf(&sb, "[line %d] in %s\n", fr.Line, fr.Function)
	}
	return sb.String()
}

func (vm *VM) errorf(fr *frame, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return vm.newRuntimeError(fr, vm.offsetForFrame(fr), msg, nil)
}

func (vm *VM) wrapError(fr *frame, err error) error {
	if err == nil {
		return nil
	}
	if rerr, ok := err.(*RuntimeError); ok {
		return rerr
	}
	return vm.newRuntimeError(fr, vm.offsetForFrame(fr), err.Error(), err)
}

func (vm *VM) newRuntimeError(fr *frame, offset int, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Message: msg,
		Frame:   vm.frameInfo(fr, offset),
		Stack:   vm.stackTrace(fr, offset),
		Cause:   cause,
	}
}

func (vm *VM) trace(fr *frame, op byte) {
	if vm.traceHook == nil {
		return
	}
	info := vm.frameInfo(fr, fr.lastOp)
	text, _, err := bytecode.DisassembleInstruction(fr.fn.Chunk, fr.lastOp, vm.heap)
	if err != nil {
		text = err.Error()
	}
	vm.traceHook(TraceInfo{
		Op:       op,
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		IP:       info.IP,
		Depth:    len(vm.stack),
		Text:     text,
	})
}

func (vm *VM) stackTrace(current *frame, offset int) []FrameInfo {
	if len(vm.frames) == 0 {
		return nil
	}
	trace := make([]FrameInfo, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		off := fr.lastOp
		if fr == current && offset >= 0 {
			off = offset
		}
		trace = append(trace, vm.frameInfo(fr, off))
	}
	return trace
}

func (vm *VM) frameInfo(fr *frame, offset int) FrameInfo {
	if fr == nil || fr.fn == nil {
		return FrameInfo{}
	}
	return FrameInfo{
		Function: fr.fn.DisplayName(),
		Source:   fr.fn.Source,
		Line:     fr.fn.Chunk.LineAt(offset),
		IP:       offset,
	}
}

func (vm *VM) offsetForFrame(fr *frame) int {
	if fr == nil {
		return -1
	}
	if fr.lastOp >= 0 {
		return fr.lastOp
	}
	return fr.ip
}
