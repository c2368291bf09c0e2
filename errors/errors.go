package errors

import (
	"errors"
	"fmt"
)

// CorruptFileError reports a module file that failed structural verification.
type CorruptFileError struct {
	Path string
}

func NewCorruptFileError(path string) *CorruptFileError {
	return &CorruptFileError{Path: path}
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt file: %s", e.Path)
}

// IllegalAccessError reports an unresolved symbol, an invalid call site or a
// comparable fatal access violation.
type IllegalAccessError struct {
	Message string
}

func NewIllegalAccessError(format string, args ...any) *IllegalAccessError {
	return &IllegalAccessError{Message: fmt.Sprintf(format, args...)}
}

func (e *IllegalAccessError) Error() string {
	return e.Message
}

// IndexError reports an out-of-bounds array or pool access at runtime.
type IndexError struct {
	IndexOf string
	Index   int64
}

func NewIndexError(indexOf string, index int64) *IndexError {
	return &IndexError{IndexOf: indexOf, Index: index}
}

func (e *IndexError) Error() string {
	if e.IndexOf == "" {
		return fmt.Sprintf("index out of bounds: %d", e.Index)
	}
	return fmt.Sprintf("index out of bounds: %d (%s)", e.Index, e.IndexOf)
}

// MemoryError reports an allocation failure. The host may retry the
// operation after a garbage collection pass.
type MemoryError struct {
	Size uint64
}

func NewMemoryError(size uint64) *MemoryError {
	return &MemoryError{Size: size}
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("failed to allocate memory: %d bytes", e.Size)
}

// StackOverflowError reports that a thread exceeded its configured call depth.
type StackOverflowError struct{}

func NewStackOverflowError() *StackOverflowError {
	return &StackOverflowError{}
}

func (e *StackOverflowError) Error() string {
	return "bad state: stack overflow"
}

// ArgumentError reports an internal precondition violation.
type ArgumentError struct {
	Sign    string
	Message string
}

func NewArgumentError(sign, message string) *ArgumentError {
	return &ArgumentError{Sign: sign, Message: message}
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Sign, e.Message)
}

// IllegalTypeParamAccessError reports a dereference of an empty type parameter.
type IllegalTypeParamAccessError struct {
	Sign string
}

func NewIllegalTypeParamAccessError(sign string) *IllegalTypeParamAccessError {
	return &IllegalTypeParamAccessError{Sign: sign}
}

func (e *IllegalTypeParamAccessError) Error() string {
	return fmt.Sprintf("tried to access empty type parameter: '%s'", e.Sign)
}

// NativeLibraryError reports a foreign symbol that could not be resolved.
type NativeLibraryError struct {
	Library  string
	Function string
	Reason   string
}

func NewNativeLibraryError(library, function, reason string) *NativeLibraryError {
	return &NativeLibraryError{Library: library, Function: function, Reason: reason}
}

func (e *NativeLibraryError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("in '%s': %s", e.Library, e.Reason)
	}
	return fmt.Sprintf("function %s in '%s': %s", e.Function, e.Library, e.Reason)
}

// Kind predicates. The dispatch loop and the host use these to decide
// whether an error terminates a thread or the whole load.

func IsCorruptFile(err error) bool {
	var target *CorruptFileError
	return errors.As(err, &target)
}

func IsIllegalAccess(err error) bool {
	var target *IllegalAccessError
	return errors.As(err, &target)
}

func IsIndexError(err error) bool {
	var target *IndexError
	return errors.As(err, &target)
}

func IsMemoryError(err error) bool {
	var target *MemoryError
	return errors.As(err, &target)
}

func IsStackOverflow(err error) bool {
	var target *StackOverflowError
	return errors.As(err, &target)
}
