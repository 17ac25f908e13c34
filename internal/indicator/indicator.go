// ABOUTME: Lock indicator driven from receiver lock transitions
// ABOUTME: Drives an output line high while the receiver is locked
package indicator

import (
	"sync"
)

// outputLine is the part of a GPIO line the indicator uses
type outputLine interface {
	SetValue(v int) error
	Close() error
}

// Lock mirrors receiver lock onto an output line
type Lock struct {
	mu     sync.Mutex
	line   outputLine
	locked bool
}

func newLock(line outputLine) *Lock {
	return &Lock{line: line}
}

// Set drives the line for the given lock state. Repeated states are not
// rewritten.
func (l *Lock) Set(locked bool) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.line == nil || locked == l.locked {
		return nil
	}
	v := 0
	if locked {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return err
	}
	l.locked = locked
	return nil
}

// Close drives the line low and releases it
func (l *Lock) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.line == nil {
		return nil
	}
	l.line.SetValue(0)
	err := l.line.Close()
	l.line = nil
	return err
}
