// errors.go - shared compile-phase error type for lexer, parser, compiler and
// flattener. No phase panics on malformed input; every failure is returned.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package wire

import "fmt"

// CompileError is returned by every front-end phase (lex, parse, compile,
// flatten). Line/Col are 1-based; Col is 0 when the error has no useful
// column (e.g. a flatten-time arity mismatch spanning an entire call).
type CompileError struct {
	Line int
	Col  int
	Msg  string
}

func (e *CompileError) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

func errf(line, col int, format string, args ...interface{}) *CompileError {
	return &CompileError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}
