// golisp runs Lisp scripts, expressions and compiled images, or starts a
// REPL when given nothing to run.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	lisp "github.com/xirelogy/go-lisp"
	"github.com/xirelogy/go-lisp/internal/config"
	"github.com/xirelogy/go-lisp/internal/lexer"
)

// sysexits(3) codes.
const (
	exitUsage    = 64
	exitDataErr  = 65
	exitSoftware = 70
	exitIOErr    = 74
)

func main() {
	expr := flag.String("e", "", "Evaluate an expression and print its value")
	compileOut := flag.String("compile", "", "Compile the script to an image file instead of running it")
	imagePath := flag.String("image", "", "Run a compiled image")
	disasm := flag.Bool("disasm", false, "Print bytecode instead of running")
	configPath := flag.String("config", "", "Configuration file (.toml, .yaml or .yml)")
	stress := flag.Bool("stress", false, "Collect garbage before every allocation")
	trace := flag.Bool("trace", false, "Log every executed instruction at debug level")
	limit := flag.Int("limit", 0, "Instruction limit per evaluation (0 for unlimited)")
	verbosity := flag.Int("v", 0, "Log verbosity (overrides the configuration when set)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: golisp [options] [script]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a script, an expression or an image. With none, starts a REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  golisp                            # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  golisp fib.lisp                   # Run a script\n")
		fmt.Fprintf(os.Stderr, "  golisp -e '(+ 1 2)'               # Evaluate an expression\n")
		fmt.Fprintf(os.Stderr, "  golisp -compile fib.img fib.lisp  # Compile to an image\n")
		fmt.Fprintf(os.Stderr, "  golisp -image fib.img             # Run an image\n")
	}
	flag.Parse()

	cfg := lisp.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = lisp.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitUsage)
		}
	}
	if *stress {
		cfg.GC.Stress = true
	}
	if *trace {
		cfg.VM.Trace = true
	}
	if *limit > 0 {
		cfg.VM.InstructionLimit = *limit
	}
	if *verbosity > 0 {
		cfg.Log.Verbosity = *verbosity
	}
	configureLogging(cfg.Log)

	in, err := lisp.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	log := commonlog.GetLogger("lisp.cli")
	log.Debug("starting", "session", in.ID().String())

	args := flag.Args()
	switch {
	case *imagePath != "":
		os.Exit(runImage(in, *imagePath))
	case *expr != "":
		os.Exit(runSource(in, "<expr>", *expr, *disasm, *compileOut))
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitIOErr)
		}
		os.Exit(runSource(in, args[0], string(data), *disasm, *compileOut))
	case *compileOut != "":
		fmt.Fprintf(os.Stderr, "Error: -compile needs a script or -e expression\n")
		os.Exit(exitUsage)
	default:
		runREPL(in, os.Stdin, isInteractive())
	}
}

func configureLogging(cfg config.Log) {
	var path *string
	if cfg.File != "" {
		path = &cfg.File
	}
	commonlog.Configure(cfg.Verbosity, path)
}

func isInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func runSource(in *lisp.Interpreter, name, source string, disasm bool, compileOut string) int {
	switch {
	case disasm:
		if err := in.Disassemble(name, source, os.Stdout); err != nil {
			return report(err)
		}
		return 0
	case compileOut != "":
		data, err := in.Compile(name, source)
		if err != nil {
			return report(err)
		}
		if err := os.WriteFile(compileOut, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitIOErr
		}
		return 0
	}
	v, err := in.EvalNamed(name, source)
	if err != nil {
		return report(err)
	}
	fmt.Println(v.String())
	return 0
}

func runImage(in *lisp.Interpreter, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitIOErr
	}
	v, err := in.RunImage(data)
	if err != nil {
		return report(err)
	}
	fmt.Println(v.String())
	return 0
}

// report prints err and maps it to an exit status.
func report(err error) int {
	var cerrs lisp.CompileErrors
	var rerr *lisp.RuntimeError
	switch {
	case errors.As(err, &cerrs):
		for _, e := range cerrs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return exitDataErr
	case errors.As(err, &rerr):
		fmt.Fprintln(os.Stderr, rerr.Message)
		fmt.Fprint(os.Stderr, rerr.Trace())
		return exitSoftware
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitDataErr
	}
}

// runREPL reads forms until EOF, accumulating lines until the parentheses
// balance. Prompts are shown only on a terminal.
func runREPL(in *lisp.Interpreter, r io.Reader, prompt bool) {
	if prompt {
		fmt.Println("golisp REPL (:help for commands, Ctrl-D to quit)")
	}
	scanner := bufio.NewScanner(r)
	var buf strings.Builder
	for {
		if prompt {
			if buf.Len() == 0 {
				fmt.Print("> ")
			} else {
				fmt.Print(". ")
			}
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if buf.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			replCommand(in, strings.TrimSpace(line))
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
		if !lexer.Balanced(buf.String()) {
			continue
		}
		input := buf.String()
		buf.Reset()
		if strings.TrimSpace(input) == "" {
			continue
		}
		in.Interpret(input)
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		in.Interpret(rest)
	}
	if prompt {
		fmt.Println()
	}
}

func replCommand(in *lisp.Interpreter, cmd string) {
	switch cmd {
	case ":help":
		fmt.Println(":gc      collect garbage and print heap statistics")
		fmt.Println(":stats   print heap and VM statistics")
		fmt.Println(":disasm  print the bytecode of every global procedure")
	case ":gc":
		st, err := in.Collect()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("freed %d, live %d objects (%d bytes), next collection at %d bytes\n",
			st.LastFreed, st.Live, st.Bytes, st.Threshold)
	case ":stats":
		st := in.Stats()
		fmt.Printf("collections %d, allocations %d, live %d, bytes %d\n",
			st.GC.Collections, st.GC.Allocations, st.GC.Live, st.GC.Bytes)
		fmt.Printf("last run: %d instructions, peak stack %d, peak frames %d\n",
			st.Instructions, st.PeakStack, st.PeakFrames)
	case ":disasm":
		if err := in.DisassembleGlobals(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
	}
}
