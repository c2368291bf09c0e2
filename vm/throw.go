package vm

import (
	"github.com/spade-lang/velocity/objects"
)

// ThrowSignal is the only recoverable error kind: a user-visible exception
// carrying an object value. It unwinds frames through exception tables
// until caught; at the bottom of the call stack it terminates the thread.
type ThrowSignal struct {
	Value objects.Obj
}

// Throw wraps value in a signal.
func Throw(value objects.Obj) *ThrowSignal {
	return &ThrowSignal{Value: value}
}

func (s *ThrowSignal) Error() string {
	return "value is thrown in the vm"
}
