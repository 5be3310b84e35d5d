// Package errors collects the error helpers shared by agitegen's commands.
package errors

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// MultiError collects errors from steps that must all run, such as teardown.
type MultiError struct {
	mu     sync.Mutex
	Errors []error
}

// Append adds err to the collection. Nil errors are ignored.
func (m *MultiError) Append(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, err)
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch len(m.Errors) {
	case 0:
		return ""
	case 1:
		return m.Errors[0].Error()
	}

	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred: %s", len(m.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.Errors...)
}

// ErrorOrNil returns nil when nothing was collected, and m otherwise.
func (m *MultiError) ErrorOrNil() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// PanicError wraps a recovered panic together with its stack.
type PanicError struct {
	Value      any
	StackTrace string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Recover runs fn and converts a panic into a *PanicError.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, StackTrace: string(debug.Stack())}
		}
	}()
	return fn()
}
