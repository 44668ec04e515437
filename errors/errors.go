// Package errors provides small helpers that attach the caller's file and
// line to error messages, so failures deep in the LLM or tool plumbing can
// be located without stack traces.
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// New creates a new error annotated with the caller's file and line.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line) to an existing error.
// Returns nil if err is nil. The original error remains reachable via
// errors.Is / errors.As.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers don't need to import both error packages.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
// Re-exported for the same reason as Is.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
