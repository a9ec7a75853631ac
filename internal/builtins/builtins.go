// Package builtins links every builtin plugin into the runtime registry.
package builtins

import (
	_ "github.com/xirelogy/go-lisp/internal/builtins/add"
	_ "github.com/xirelogy/go-lisp/internal/builtins/car"
	_ "github.com/xirelogy/go-lisp/internal/builtins/cdr"
	_ "github.com/xirelogy/go-lisp/internal/builtins/cons"
	_ "github.com/xirelogy/go-lisp/internal/builtins/equal"
	_ "github.com/xirelogy/go-lisp/internal/builtins/error"
	_ "github.com/xirelogy/go-lisp/internal/builtins/list"
	_ "github.com/xirelogy/go-lisp/internal/builtins/list_ref"
	_ "github.com/xirelogy/go-lisp/internal/builtins/nullp"
	_ "github.com/xirelogy/go-lisp/internal/builtins/pairp"
	_ "github.com/xirelogy/go-lisp/internal/builtins/typeof"
)
