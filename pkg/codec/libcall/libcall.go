// Package libcall serializes calls into image libraries that are not
// reentrant and turns an abort raised inside such a library into an error.
//
// Every Library owns one process-wide mutex. Do holds it for the whole call
// and releases it on every exit path, including a panic unwinding out of the
// library code.
package libcall

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrFatal is wrapped by every FatalError.
var ErrFatal = errors.New("library fatal error")

// FatalError reports that a library aborted the call instead of returning.
type FatalError struct {
	Library string
	Value   any
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: fatal error: %v", e.Library, e.Value)
}

func (e *FatalError) Unwrap() error { return ErrFatal }

// Library guards one non-reentrant library.
type Library struct {
	name     string
	mu       sync.Mutex
	calls    atomic.Int64
	inFlight atomic.Int32
}

// New returns a guard for the named library.
func New(name string) *Library {
	return &Library{name: name}
}

// Name returns the library name used in error messages.
func (l *Library) Name() string { return l.name }

// Calls returns how many calls have entered the critical section.
func (l *Library) Calls() int64 { return l.calls.Load() }

// InFlight returns the number of calls currently inside the critical section.
// It never exceeds one.
func (l *Library) InFlight() int32 { return l.inFlight.Load() }

// Do runs fn while holding the library lock. A panic inside fn is recovered
// and returned as a *FatalError.
func (l *Library) Do(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls.Add(1)
	l.inFlight.Add(1)
	defer l.inFlight.Add(-1)

	return Recover(l.name, fn)
}

// Recover runs fn without any locking and converts a panic into a
// *FatalError. It is used for reentrant libraries that may still abort on
// malformed input.
func Recover(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("library call aborted",
				slog.String("library", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = &FatalError{Library: name, Value: r}
		}
	}()
	return fn()
}
