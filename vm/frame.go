package vm

import (
	verrors "github.com/spade-lang/velocity/errors"
	"github.com/spade-lang/velocity/objects"
)

// Frame is one activation record, instantiated from a method's frame
// template. The code, pool and tables are shared with the template; the
// operand stack, args, locals and closure cells are per-invocation.
type Frame struct {
	method *objects.ObjMethod

	code []byte
	ip   int

	stack []objects.Obj
	sp    int

	args   []objects.Obj
	locals []objects.Obj
	cells  []*objects.Cell

	exceptions *objects.ExceptionTable
	matches    []objects.MatchTable
	pool       []objects.Obj
}

// newFrame instantiates a frame for one invocation of method.
func newFrame(method *objects.ObjMethod, args []objects.Obj) (Frame, error) {
	template := method.Template()
	if len(args) != len(template.Args()) {
		return Frame{}, verrors.NewIllegalAccessError(
			"cannot call %s: expected %d arguments, got %d",
			method.Sign().String(), len(template.Args()), len(args))
	}
	argValues := make([]objects.Obj, len(args))
	copy(argValues, args)

	locals := template.Locals()
	localValues := make([]objects.Obj, locals.ClosureStart)
	for i := range localValues {
		localValues[i] = locals.Locals[i].Value
	}
	cells := make([]*objects.Cell, locals.Count()-locals.ClosureStart)
	for i := range cells {
		cells[i] = &objects.Cell{Value: locals.Locals[locals.ClosureStart+i].Value}
	}

	return Frame{
		method:     method,
		code:       template.Code(),
		stack:      make([]objects.Obj, template.MaxStack()),
		args:       argValues,
		locals:     localValues,
		cells:      cells,
		exceptions: template.Exceptions(),
		matches:    template.Matches(),
		pool:       template.Pool(),
	}, nil
}

// Stack discipline is a correctness contract of the compiler; misuse is a
// VM bug, not a recoverable condition.

func (f *Frame) Push(value objects.Obj) {
	if f.sp >= len(f.stack) {
		panic(verrors.NewArgumentError(f.method.Sign().String(), "operand stack overflow"))
	}
	f.stack[f.sp] = value
	f.sp++
}

func (f *Frame) Pop() objects.Obj {
	if f.sp == 0 {
		panic(verrors.NewArgumentError(f.method.Sign().String(), "operand stack underflow"))
	}
	f.sp--
	value := f.stack[f.sp]
	f.stack[f.sp] = nil
	return value
}

func (f *Frame) Peek() objects.Obj {
	if f.sp == 0 {
		panic(verrors.NewArgumentError(f.method.Sign().String(), "operand stack underflow"))
	}
	return f.stack[f.sp-1]
}

// Depth returns the number of live operand slots.
func (f *Frame) Depth() int {
	return f.sp
}

// Method returns the owning method.
func (f *Frame) Method() *objects.ObjMethod {
	return f.method
}

// clearStack drops every operand; the exception machinery resets the stack
// before transferring to a handler.
func (f *Frame) clearStack() {
	for i := 0; i < f.sp; i++ {
		f.stack[i] = nil
	}
	f.sp = 0
}

// local and arg access used by the dispatch loop; the verifier does not
// inspect bytecode operands, so an out-of-range slot is an IndexError here.

func (f *Frame) getLocal(slot int) (objects.Obj, error) {
	if slot < 0 || slot >= len(f.locals)+len(f.cells) {
		return nil, verrors.NewIndexError("locals", int64(slot))
	}
	if slot < len(f.locals) {
		return f.locals[slot], nil
	}
	return f.cells[slot-len(f.locals)].Value, nil
}

func (f *Frame) setLocal(slot int, value objects.Obj) error {
	if slot < 0 || slot >= len(f.locals)+len(f.cells) {
		return verrors.NewIndexError("locals", int64(slot))
	}
	if slot < len(f.locals) {
		f.locals[slot] = value
		return nil
	}
	f.cells[slot-len(f.locals)].Value = value
	return nil
}

func (f *Frame) getArg(slot int) (objects.Obj, error) {
	if slot < 0 || slot >= len(f.args) {
		return nil, verrors.NewIndexError("args", int64(slot))
	}
	return f.args[slot], nil
}

func (f *Frame) setArg(slot int, value objects.Obj) error {
	if slot < 0 || slot >= len(f.args) {
		return verrors.NewIndexError("args", int64(slot))
	}
	f.args[slot] = value
	return nil
}
