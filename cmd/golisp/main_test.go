package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	lisp "github.com/xirelogy/go-lisp"
)

func TestREPLAccumulatesUntilBalanced(t *testing.T) {
	in := lisp.NewDefault()
	var out, errOut bytes.Buffer
	in.SetOutput(&out, &errOut)
	input := strings.Join([]string{
		"(define (add a b)",
		"  (+ a b))",
		"(add 1",
		"     2)",
		"",
		"(car 1)",
		"(+ 1",
	}, "\n")
	runREPL(in, strings.NewReader(input), false)
	if got := out.String(); got != "nil\n3\n" {
		t.Fatalf("unexpected output %q", got)
	}
	errText := errOut.String()
	if !strings.Contains(errText, "car: expected pair, got number") {
		t.Fatalf("expected runtime error, got %q", errText)
	}
	if !strings.Contains(errText, "Error at end: ") {
		t.Fatalf("expected unterminated input to be compiled at EOF, got %q", errText)
	}
}

func TestReportExitCodes(t *testing.T) {
	in := lisp.NewDefault()
	_, cerr := in.Eval("(+ 1)")
	_, rerr := in.Eval("(car 1)")
	cases := []struct {
		err  error
		want int
	}{
		{cerr, exitDataErr},
		{rerr, exitSoftware},
		{errors.New("other"), exitDataErr},
	}
	for _, c := range cases {
		if got := report(c.err); got != c.want {
			t.Fatalf("%v: expected %d, got %d", c.err, c.want, got)
		}
	}
}
