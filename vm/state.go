package vm

import (
	verrors "github.com/spade-lang/velocity/errors"
	"github.com/spade-lang/velocity/objects"
)

// VMState is the per-thread execution state: a fixed-capacity call stack of
// frames and the operations the dispatch loop performs against the active
// frame.
type VMState struct {
	vm        *SpadeVM
	callStack []Frame
	fp        int
}

// NewVMState allocates a state with the configured stack depth.
func NewVMState(vm *SpadeVM, stackDepth int) *VMState {
	return &VMState{
		vm:        vm,
		callStack: make([]Frame, stackDepth),
	}
}

// VM returns the vm this state belongs to.
func (s *VMState) VM() *SpadeVM {
	return s.vm
}

// PushFrame pushes a call frame; exceeding the configured depth is a
// StackOverflowError.
func (s *VMState) PushFrame(frame Frame) error {
	if s.fp >= len(s.callStack) {
		return verrors.NewStackOverflowError()
	}
	s.callStack[s.fp] = frame
	s.fp++
	return nil
}

// PopFrame pops the active frame, reporting whether one was present.
func (s *VMState) PopFrame() bool {
	if s.fp > 0 {
		s.fp--
		s.callStack[s.fp] = Frame{}
		return true
	}
	return false
}

// Frame returns the active frame.
func (s *VMState) Frame() *Frame {
	return &s.callStack[s.fp-1]
}

// CallStackSize returns the number of live frames.
func (s *VMState) CallStackSize() int {
	return s.fp
}

// frameAt exposes live frames to the collector's root enumeration.
func (s *VMState) frameAt(i int) *Frame {
	return &s.callStack[i]
}

// Stack operations, forwarded to the active frame.

func (s *VMState) Push(value objects.Obj) {
	s.Frame().Push(value)
}

func (s *VMState) Pop() objects.Obj {
	return s.Frame().Pop()
}

func (s *VMState) Peek() objects.Obj {
	return s.Frame().Peek()
}

// LoadConst returns a fresh copy of pool entry index, per the variant's
// copy policy.
func (s *VMState) LoadConst(index uint16) (objects.Obj, error) {
	pool := s.Frame().pool
	if int(index) >= len(pool) {
		return nil, verrors.NewIndexError("constant pool", int64(index))
	}
	return pool[index].Copy()
}

// ReadByte advances ip by one byte and returns it.
func (s *VMState) ReadByte() byte {
	frame := s.Frame()
	b := frame.code[frame.ip]
	frame.ip++
	return b
}

// ReadShort advances ip by two bytes and returns them in big-endian order.
func (s *VMState) ReadShort() uint16 {
	frame := s.Frame()
	frame.ip += 2
	return uint16(frame.code[frame.ip-2])<<8 | uint16(frame.code[frame.ip-1])
}

// Adjust applies a signed displacement to ip.
func (s *VMState) Adjust(offset int) {
	s.Frame().ip += offset
}

// PC returns the current program counter.
func (s *VMState) PC() uint32 {
	return uint32(s.Frame().ip)
}

// SetPC repositions the instruction pointer.
func (s *VMState) SetPC(pc uint32) {
	s.Frame().ip = int(pc)
}
