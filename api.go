// Package lisp embeds a small Lisp: a single-pass compiler to bytecode, a
// stack VM with proper tail calls and a mark-sweep collected heap.
package lisp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	_ "github.com/xirelogy/go-lisp/internal/builtins"
	"github.com/xirelogy/go-lisp/internal/bytecode"
	"github.com/xirelogy/go-lisp/internal/compiler"
	"github.com/xirelogy/go-lisp/internal/config"
	"github.com/xirelogy/go-lisp/internal/heap"
	"github.com/xirelogy/go-lisp/internal/image"
	"github.com/xirelogy/go-lisp/internal/runtime"
	"github.com/xirelogy/go-lisp/internal/value"
	"github.com/xirelogy/go-lisp/internal/vm"
)

// Config is the interpreter configuration; see DefaultConfig and LoadConfig.
type Config = config.Config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a TOML or YAML configuration file.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// CompileError is a single diagnostic; a failed compilation returns
// CompileErrors holding every one found.
type (
	CompileError  = compiler.Error
	CompileErrors = compiler.ErrorList
)

// InterpretResult is the outcome of Interpret.
type InterpretResult int

const (
	ResultOK InterpretResult = iota
	ResultCompileError
	ResultRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultCompileError:
		return "compile error"
	default:
		return "runtime error"
	}
}

// FrameTrace describes a single frame in a runtime error or trace.
type FrameTrace struct {
	Function string
	Source   string
	Line     int
	IP       int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message string
	Frame   FrameTrace
	Stack   []FrameTrace
	Cause   error
}

func (e *RuntimeError) Error() string {
	parts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			parts = append(parts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Function != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(parts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// Trace renders the call stack innermost first, one "[line N] in name"
// per frame.
func (e *RuntimeError) Trace() string {
	var sb strings.Builder
	for _, fr := range e.Stack {
		fmt.Fprintf(&sb, "[line %d] in %s\n", fr.Line, fr.Function)
	}
	return sb.String()
}

// TraceInfo captures execution steps for debug hooks.
type TraceInfo struct {
	Op       string
	Function string
	Source   string
	Line     int
	IP       int
	Depth    int
	Text     string
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	var rte *vm.RuntimeError
	if errors.As(err, &rte) {
		return &RuntimeError{
			Message: rte.Message,
			Frame:   frameTraceFromVM(rte.Frame),
			Stack:   stackTraceFromVM(rte.Stack),
			Cause:   rte.Cause,
		}
	}
	return err
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		IP:       info.IP,
	}
}

func stackTraceFromVM(stack []vm.FrameInfo) []FrameTrace {
	if len(stack) == 0 {
		return nil
	}
	out := make([]FrameTrace, len(stack))
	for i, fr := range stack {
		out[i] = frameTraceFromVM(fr)
	}
	return out
}

// GCStats summarises collector activity.
type GCStats struct {
	Collections  int
	Allocations  int
	Freed        int
	LastFreed    int
	Live         int
	Bytes        int
	Threshold    int
	LastDuration time.Duration
}

// Stats reports heap state and the high-water marks of the last run.
type Stats struct {
	GC           GCStats
	PeakStack    int
	PeakFrames   int
	Instructions int
}

// HostFunc implements a builtin in Go. Results must be immediates or
// values owned by the same interpreter.
type HostFunc func(args []Value) (Value, error)

// InputName labels sources evaluated without an explicit name.
const InputName = "<input>"

// Interpreter owns one VM, heap and globals table. It is not safe for
// concurrent use; CallAsync rejects overlapping calls.
type Interpreter struct {
	cfg    Config
	heap   *heap.Heap
	vm     *vm.VM
	out    io.Writer
	errOut io.Writer
	id     uuid.UUID
	log    commonlog.Logger

	mu   sync.Mutex
	busy bool
}

// New constructs an interpreter from cfg after validating it.
func New(cfg Config) (*Interpreter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := heap.New(cfg.Heap())
	in := &Interpreter{
		cfg:  cfg,
		heap: h,
		vm: vm.New(h, vm.Options{
			MaxFrames:        cfg.VM.MaxFrames,
			MaxStack:         cfg.VM.MaxStack,
			InstructionLimit: cfg.VM.InstructionLimit,
		}),
		out:    os.Stdout,
		errOut: os.Stderr,
		id:     uuid.New(),
	}
	in.log = commonlog.NewKeyValueLogger(commonlog.GetLogger("lisp"), "session", in.id.String())
	in.SetTraceHook(nil)
	in.log.Debug("interpreter created",
		"max-frames", cfg.VM.MaxFrames,
		"gc-threshold", cfg.GC.InitialThreshold,
		"stress", cfg.GC.Stress)
	return in, nil
}

// NewDefault constructs an interpreter with the default configuration.
func NewDefault() *Interpreter {
	in, err := New(config.Default())
	if err != nil {
		panic(err)
	}
	return in
}

// ID identifies this interpreter in log output.
func (in *Interpreter) ID() uuid.UUID {
	return in.id
}

// SetOutput redirects Interpret's result and diagnostic output. A nil
// writer leaves the current one in place.
func (in *Interpreter) SetOutput(out, errOut io.Writer) {
	if out != nil {
		in.out = out
	}
	if errOut != nil {
		in.errOut = errOut
	}
}

// SetInstructionLimit caps the instructions a single evaluation may
// execute (0 for unlimited).
func (in *Interpreter) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	in.vm.SetInstructionLimit(limit)
}

// SetStress toggles collection before every allocation.
func (in *Interpreter) SetStress(on bool) error {
	if err := in.acquire(); err != nil {
		return err
	}
	defer in.release()
	in.heap.SetStress(on)
	return nil
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
// With a nil hook, dispatch is logged at debug level when tracing is
// enabled in the configuration.
func (in *Interpreter) SetTraceHook(h TraceHook) {
	if h == nil && !in.cfg.VM.Trace {
		in.vm.SetTraceHook(nil)
		return
	}
	if h == nil {
		h = in.logTrace
	}
	in.vm.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:       bytecode.OpName(info.Op),
			Function: info.Function,
			Source:   info.Source,
			Line:     info.Line,
			IP:       info.IP,
			Depth:    info.Depth,
			Text:     info.Text,
		})
	})
}

func (in *Interpreter) logTrace(info TraceInfo) {
	in.log.Debug("trace",
		"function", info.Function,
		"line", info.Line,
		"depth", info.Depth,
		"instruction", info.Text)
}

// ErrBusy is returned by operations that would overlap a running
// evaluation.
var ErrBusy = errors.New("interpreter is busy")

// acquire marks the interpreter busy for the duration of one operation.
func (in *Interpreter) acquire() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.busy {
		return ErrBusy
	}
	in.busy = true
	return nil
}

func (in *Interpreter) release() {
	in.mu.Lock()
	in.busy = false
	in.mu.Unlock()
}

// Interpret evaluates source and prints its result to the output writer,
// or its diagnostics to the error writer.
func (in *Interpreter) Interpret(source string) InterpretResult {
	v, err := in.Eval(source)
	if err == nil {
		fmt.Fprintln(in.out, v.String())
		return ResultOK
	}
	var cerrs CompileErrors
	if errors.As(err, &cerrs) {
		for _, e := range cerrs {
			fmt.Fprintln(in.errOut, e.Error())
		}
		return ResultCompileError
	}
	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		fmt.Fprintln(in.errOut, rerr.Message)
		fmt.Fprint(in.errOut, rerr.Trace())
		return ResultRuntimeError
	}
	fmt.Fprintln(in.errOut, err.Error())
	return ResultRuntimeError
}

// Eval compiles and runs source, returning the value of its last form.
func (in *Interpreter) Eval(source string) (Value, error) {
	return in.EvalNamed(InputName, source)
}

// EvalNamed is like Eval; name labels the source in diagnostics.
func (in *Interpreter) EvalNamed(name, source string) (Value, error) {
	if err := in.acquire(); err != nil {
		return Value{}, err
	}
	defer in.release()
	fn, err := in.compile(name, source)
	if err != nil {
		return Value{}, err
	}
	return in.run(fn)
}

// LoadFile evaluates the script at path.
func (in *Interpreter) LoadFile(path string) (Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Value{}, err
	}
	return in.EvalNamed(path, string(data))
}

func (in *Interpreter) compile(name, source string) (value.Ref, error) {
	fn, err := compiler.Compile(in.heap, in.vm.Globals(), name, source)
	if err != nil {
		in.log.Debug("compile failed", "source", name, "error", err.Error())
		return value.Ref{}, err
	}
	return fn, nil
}

func (in *Interpreter) run(fn value.Ref) (Value, error) {
	v, err := in.vm.Run(fn)
	if err != nil {
		return Value{}, convertRuntimeError(err)
	}
	return Value{v: v, owner: in}, nil
}

// Compile compiles source without running it and returns a CBOR image
// that RunImage can execute, in this or another interpreter.
func (in *Interpreter) Compile(name, source string) ([]byte, error) {
	if err := in.acquire(); err != nil {
		return nil, err
	}
	defer in.release()
	fn, err := in.compile(name, source)
	if err != nil {
		return nil, err
	}
	return image.Encode(in.heap, fn, in.vm.Globals().Names())
}

// RunImage executes an image produced by Compile.
func (in *Interpreter) RunImage(data []byte) (Value, error) {
	if err := in.acquire(); err != nil {
		return Value{}, err
	}
	defer in.release()
	fn, err := image.Decode(in.heap, in.vm.Globals(), data)
	if err != nil {
		return Value{}, err
	}
	return in.run(fn)
}

// Disassemble compiles source and writes its bytecode listing to w
// without running it.
func (in *Interpreter) Disassemble(name, source string, w io.Writer) error {
	if err := in.acquire(); err != nil {
		return err
	}
	defer in.release()
	fn, err := in.compile(name, source)
	if err != nil {
		return err
	}
	return vm.DisassembleFunction(bytecode.NewDisassembler(w, in.heap), in.heap, name, fn)
}

// DisassembleGlobals writes the bytecode of every global procedure to w.
func (in *Interpreter) DisassembleGlobals(w io.Writer) error {
	return in.vm.Disassemble(w)
}

// Define binds name to v, replacing any previous binding.
func (in *Interpreter) Define(name string, v Value) error {
	if err := in.acquire(); err != nil {
		return err
	}
	defer in.release()
	raw, err := in.adopt(v)
	if err != nil {
		return err
	}
	return in.vm.Globals().Define(name, raw)
}

// Global returns the value bound to name. It does not take the busy guard,
// so host functions may read globals while they run.
func (in *Interpreter) Global(name string) (Value, bool) {
	v, ok := in.vm.Global(name)
	if !ok {
		return Value{}, false
	}
	return Value{v: v, owner: in}, true
}

// DefineFunction binds a Go function as a builtin. maxArgs of 0 means
// exactly minArgs; a negative maxArgs accepts any number from minArgs.
func (in *Interpreter) DefineFunction(name string, minArgs, maxArgs int, fn HostFunc) error {
	if fn == nil {
		return errors.New("nil function")
	}
	if err := in.acquire(); err != nil {
		return err
	}
	defer in.release()
	return in.vm.DefineBuiltin(runtime.Spec{
		Name:     name,
		Arity:    minArgs,
		MaxArity: maxArgs,
		Handler: func(_ *heap.Heap, args []value.Value) (value.Value, error) {
			wrapped := make([]Value, len(args))
			for i, a := range args {
				wrapped[i] = Value{v: a, owner: in}
			}
			res, err := fn(wrapped)
			if err != nil {
				return value.Value{}, err
			}
			return in.adopt(res)
		},
	})
}

// Call invokes the procedure bound to the global name.
func (in *Interpreter) Call(name string, args ...Value) (Value, error) {
	if err := in.acquire(); err != nil {
		return Value{}, err
	}
	defer in.release()
	return in.call(name, args)
}

func (in *Interpreter) call(name string, args []Value) (Value, error) {
	raw, err := in.adoptAll(args)
	if err != nil {
		return Value{}, err
	}
	v, err := in.vm.Call(name, raw)
	if err != nil {
		return Value{}, convertRuntimeError(err)
	}
	return Value{v: v, owner: in}, nil
}

// CallFuture represents an in-flight call.
type CallFuture struct {
	ch <-chan CallResult
}

// CallResult is the outcome of a call.
type CallResult struct {
	Value Value
	Err   error
}

// Await waits for completion or context cancellation. Cancellation does
// not interrupt the evaluation; it only stops waiting for it.
func (f CallFuture) Await(ctx context.Context) (Value, error) {
	select {
	case <-ctx.Done():
		return Value{}, ctx.Err()
	case res := <-f.ch:
		return res.Value, res.Err
	}
}

// CallAsync runs Call on another goroutine. Overlapping calls on one
// interpreter fail immediately.
func (in *Interpreter) CallAsync(ctx context.Context, name string, args ...Value) CallFuture {
	ch := make(chan CallResult, 1)
	if err := in.acquire(); err != nil {
		ch <- CallResult{Err: err}
		close(ch)
		return CallFuture{ch: ch}
	}
	go func() {
		defer close(ch)
		defer in.release()
		select {
		case <-ctx.Done():
			ch <- CallResult{Err: ctx.Err()}
			return
		default:
		}
		v, err := in.call(name, args)
		ch <- CallResult{Value: v, Err: err}
	}()
	return CallFuture{ch: ch}
}

// Collect runs a full garbage collection. It fails with ErrBusy while an
// evaluation is running.
func (in *Interpreter) Collect() (GCStats, error) {
	if err := in.acquire(); err != nil {
		return GCStats{}, err
	}
	defer in.release()
	return gcStats(in.heap.Collect()), nil
}

// Stats reports heap state and the high-water marks of the last run.
func (in *Interpreter) Stats() Stats {
	vs := in.vm.Stats()
	return Stats{
		GC:           gcStats(in.heap.Stats()),
		PeakStack:    vs.PeakStack,
		PeakFrames:   vs.PeakFrames,
		Instructions: vs.Instructions,
	}
}

func gcStats(st heap.Stats) GCStats {
	return GCStats{
		Collections:  st.Collections,
		Allocations:  st.Allocations,
		Freed:        st.Freed,
		LastFreed:    st.LastFreed,
		Live:         st.Live,
		Bytes:        st.Bytes,
		Threshold:    st.Threshold,
		LastDuration: st.LastDuration,
	}
}
