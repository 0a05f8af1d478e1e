package device

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// CallError records which compute API call failed and where it was issued from
type CallError struct {
	Op   string
	File string
	Line int
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s:%d: %s failed: %v", e.File, e.Line, e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Check wraps a non-nil err in a CallError tagged with the caller's position.
// A nil err passes through as nil.
func Check(op string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CallError); ok {
		return ce
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "???", 0
	}
	return &CallError{Op: op, File: filepath.Base(file), Line: line, Err: err}
}
