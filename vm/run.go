package vm

import (
	"fmt"

	verrors "github.com/spade-lang/velocity/errors"
	"github.com/spade-lang/velocity/objects"
	"github.com/spade-lang/velocity/opcodes"
)

// Run drives the dispatch loop for the frames pushed on thread since the
// enclosing invocation. It returns when the call stack drops back below the
// entry depth: normally with the last return value, or with the error that
// terminated the thread.
func (vm *SpadeVM) Run(thread *Thread) (objects.Obj, error) {
	state := thread.State()
	startDepth := state.CallStackSize()
	if startDepth == 0 {
		return nil, nil
	}

	var result objects.Obj
	for state.CallStackSize() >= startDepth {
		faultPC := state.PC()

		// Opcode boundaries are the cooperative suspension points; the
		// collector takes this barrier exclusively.
		vm.world.RLock()
		err := vm.step(thread, startDepth, &result)
		vm.world.RUnlock()

		if err != nil {
			if signal, ok := err.(*ThrowSignal); ok {
				if uncaught := vm.handleThrow(thread, startDepth, signal, faultPC); uncaught != nil {
					return nil, uncaught
				}
				continue
			}
			if verrors.IsMemoryError(err) {
				// allocation failure is a collection trigger; the thread
				// still terminates, the host may retry
				vm.CollectGarbage()
			}
			return nil, err
		}
		if thread.gcPending {
			thread.gcPending = false
			vm.CollectGarbage()
		}
	}
	return result, nil
}

// step fetches, decodes and executes one instruction.
func (vm *SpadeVM) step(thread *Thread, startDepth int, result *objects.Obj) error {
	state := thread.State()
	frame := state.Frame()

	// running off the end of the code is an implicit void return
	if frame.ip >= len(frame.code) {
		return vm.doReturn(thread, startDepth, result, nil)
	}

	op := opcodes.Opcode(state.ReadByte())
	switch op {
	case opcodes.NOP:
		return nil

	case opcodes.CONST_NULL:
		null, err := objects.NewNull(vm.manager)
		if err != nil {
			return err
		}
		frame.Push(null)
		return nil

	case opcodes.CONST_TRUE, opcodes.CONST_FALSE:
		b, err := objects.NewBool(vm.manager, op == opcodes.CONST_TRUE)
		if err != nil {
			return err
		}
		frame.Push(b)
		return nil

	case opcodes.CONST:
		value, err := state.LoadConst(state.ReadShort())
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		frame.Push(value)
		return nil

	case opcodes.POP:
		frame.Pop()
		return nil

	case opcodes.DUP:
		frame.Push(frame.Peek())
		return nil

	case opcodes.SWAP:
		a := frame.Pop()
		b := frame.Pop()
		frame.Push(a)
		frame.Push(b)
		return nil

	case opcodes.LOAD_LOCAL:
		value, err := frame.getLocal(int(state.ReadShort()))
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		frame.Push(value)
		return nil

	case opcodes.STORE_LOCAL:
		slot := int(state.ReadShort())
		if err := frame.setLocal(slot, frame.Pop()); err != nil {
			return vm.decorate(frame, op, err)
		}
		return nil

	case opcodes.LOAD_ARG:
		value, err := frame.getArg(int(state.ReadShort()))
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		frame.Push(value)
		return nil

	case opcodes.STORE_ARG:
		slot := int(state.ReadShort())
		if err := frame.setArg(slot, frame.Pop()); err != nil {
			return vm.decorate(frame, op, err)
		}
		return nil

	case opcodes.LOAD_GLOBAL:
		sign, err := vm.poolSignText(frame, state.ReadShort())
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		value, err := vm.GetSymbol(sign, true)
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		frame.Push(value)
		return nil

	case opcodes.STORE_GLOBAL:
		sign, err := vm.poolSignText(frame, state.ReadShort())
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		if err := vm.SetSymbol(sign, frame.Pop()); err != nil {
			return vm.decorate(frame, op, err)
		}
		return nil

	case opcodes.LOAD_MEMBER:
		name, err := vm.poolSignText(frame, state.ReadShort())
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		receiver := frame.Pop()
		value, err := receiver.GetMember(name)
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		frame.Push(value)
		return nil

	case opcodes.STORE_MEMBER:
		name, err := vm.poolSignText(frame, state.ReadShort())
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		value := frame.Pop()
		receiver := frame.Pop()
		if err := receiver.SetMember(name, value); err != nil {
			return vm.decorate(frame, op, err)
		}
		return nil

	case opcodes.ARRAY:
		count := int(state.ReadShort())
		elements := make([]objects.Obj, count)
		for i := count - 1; i >= 0; i-- {
			elements[i] = frame.Pop()
		}
		array, err := objects.NewArrayOf(vm.manager, elements)
		if err != nil {
			return err
		}
		frame.Push(array)
		return nil

	case opcodes.INDEX:
		index := frame.Pop()
		container := frame.Pop()
		array, ok := container.(*objects.ObjArray)
		if !ok {
			return vm.decorate(frame, op, verrors.NewIllegalAccessError("%s is not indexable", container.String()))
		}
		i, ok := index.(*objects.ObjInt)
		if !ok {
			return vm.decorate(frame, op, verrors.NewIllegalAccessError("array index must be an int"))
		}
		value, err := array.Get(i.Value)
		if err != nil {
			return vm.decorate(frame, op, err)
		}
		frame.Push(value)
		return nil

	case opcodes.INDEX_STORE:
		value := frame.Pop()
		index := frame.Pop()
		container := frame.Pop()
		array, ok := container.(*objects.ObjArray)
		if !ok {
			return vm.decorate(frame, op, verrors.NewIllegalAccessError("%s is not indexable", container.String()))
		}
		i, ok := index.(*objects.ObjInt)
		if !ok {
			return vm.decorate(frame, op, verrors.NewIllegalAccessError("array index must be an int"))
		}
		if err := array.Set(i.Value, value); err != nil {
			return vm.decorate(frame, op, err)
		}
		return nil

	case opcodes.LENGTH:
		container := frame.Pop()
		array, ok := container.(*objects.ObjArray)
		if !ok {
			return vm.decorate(frame, op, verrors.NewIllegalAccessError("%s is not indexable", container.String()))
		}
		length, err := objects.NewInt(vm.manager, int64(array.Length()))
		if err != nil {
			return err
		}
		frame.Push(length)
		return nil

	case opcodes.ADD, opcodes.SUB, opcodes.MUL, opcodes.DIV, opcodes.MOD:
		b := frame.Pop()
		a := frame.Pop()
		value, err := vm.arith(op, a, b)
		if err != nil {
			return err
		}
		frame.Push(value)
		return nil

	case opcodes.NEG:
		value := frame.Pop()
		switch v := value.(type) {
		case *objects.ObjInt:
			negated, err := objects.NewInt(vm.manager, -v.Value)
			if err != nil {
				return err
			}
			frame.Push(negated)
		case *objects.ObjFloat:
			negated, err := objects.NewFloat(vm.manager, -v.Value)
			if err != nil {
				return err
			}
			frame.Push(negated)
		default:
			return vm.RuntimeError("cannot negate %s", value.String())
		}
		return nil

	case opcodes.NOT:
		value := frame.Pop()
		b, err := objects.NewBool(vm.manager, !value.Truth())
		if err != nil {
			return err
		}
		frame.Push(b)
		return nil

	case opcodes.EQ, opcodes.NE:
		b := frame.Pop()
		a := frame.Pop()
		equal := objects.Equals(a, b)
		if op == opcodes.NE {
			equal = !equal
		}
		value, err := objects.NewBool(vm.manager, equal)
		if err != nil {
			return err
		}
		frame.Push(value)
		return nil

	case opcodes.LT, opcodes.LE, opcodes.GT, opcodes.GE:
		b := frame.Pop()
		a := frame.Pop()
		value, err := vm.compare(op, a, b)
		if err != nil {
			return err
		}
		frame.Push(value)
		return nil

	case opcodes.JMP:
		offset := int16(state.ReadShort())
		state.Adjust(int(offset))
		return nil

	case opcodes.JMP_TRUE, opcodes.JMP_FALSE:
		offset := int16(state.ReadShort())
		truth := frame.Pop().Truth()
		if truth == (op == opcodes.JMP_TRUE) {
			state.Adjust(int(offset))
		}
		return nil

	case opcodes.MATCH:
		index := int(state.ReadShort())
		if index >= len(frame.matches) {
			return vm.decorate(frame, op, verrors.NewIndexError("match tables", int64(index)))
		}
		subject := frame.Pop()
		state.SetPC(frame.matches[index].Lookup(subject))
		return nil

	case opcodes.INVOKE:
		argc := int(state.ReadByte())
		args := make([]objects.Obj, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = frame.Pop()
		}
		callee := frame.Pop()
		return vm.invokeOnStack(thread, callee, args)

	case opcodes.RETURN:
		return vm.doReturn(thread, startDepth, result, frame.Pop())

	case opcodes.RETURN_VOID:
		return vm.doReturn(thread, startDepth, result, nil)

	case opcodes.THROW:
		return Throw(frame.Pop())

	case opcodes.PRINT:
		vm.Write(frame.Pop().String())
		return nil

	case opcodes.HALT:
		code := frame.Pop()
		if exit, ok := code.(*objects.ObjInt); ok {
			thread.SetExitCode(int(exit.Value))
		}
		for state.PopFrame() {
		}
		return nil

	case opcodes.GC:
		// collection happens after the barrier is released
		thread.gcPending = true
		return nil

	default:
		return verrors.NewIllegalAccessError("illegal opcode 0x%02x at pc %d in %s",
			byte(op), state.PC()-1, frame.method.Sign().String())
	}
}

// invokeOnStack dispatches a call made by bytecode. Methods push a frame
// and keep executing inside the same loop; foreign callables complete
// immediately.
func (vm *SpadeVM) invokeOnStack(thread *Thread, callee objects.Obj, args []objects.Obj) error {
	switch target := callee.(type) {
	case *objects.ObjMethod:
		if err := vm.validateCallSite(target); err != nil {
			return err
		}
		// method entry is a safe point
		if vm.shouldCollect() {
			thread.gcPending = true
		}
		frame, err := newFrame(target, args)
		if err != nil {
			return err
		}
		return thread.State().PushFrame(frame)
	case *objects.ObjForeign:
		if err := vm.validateCallSite(target); err != nil {
			return err
		}
		value, err := target.Invoke(args)
		if err != nil {
			return err
		}
		if value == nil {
			if value, err = vm.null(); err != nil {
				return err
			}
		}
		thread.State().Frame().Push(value)
		return nil
	default:
		return verrors.NewIllegalAccessError("%s is not callable", callee.String())
	}
}

// doReturn pops the active frame and hands value to the caller, or out of
// the loop when the entry frame returned.
func (vm *SpadeVM) doReturn(thread *Thread, startDepth int, result *objects.Obj, value objects.Obj) error {
	state := thread.State()
	if value == nil {
		var err error
		if value, err = vm.null(); err != nil {
			return err
		}
	}
	state.PopFrame()
	if state.CallStackSize() >= startDepth {
		state.Frame().Push(value)
	} else {
		*result = value
	}
	return nil
}

// handleThrow searches the active frame's exception table for a handler
// covering the faulting instruction, popping frames until one matches. An
// uncaught signal is returned and terminates the invocation.
func (vm *SpadeVM) handleThrow(thread *Thread, startDepth int, signal *ThrowSignal, faultPC uint32) error {
	state := thread.State()
	var thrownType *objects.Type
	if signal.Value != nil {
		thrownType = signal.Value.Type()
	}
	pc := faultPC
	for state.CallStackSize() >= startDepth {
		frame := state.Frame()
		if entry, ok := frame.exceptions.FindHandler(pc, thrownType); ok {
			frame.clearStack()
			frame.Push(signal.Value)
			state.SetPC(entry.Target)
			return nil
		}
		state.PopFrame()
		if state.CallStackSize() >= startDepth {
			// the caller's fault site is its call instruction; its ip already
			// points past the INVOKE opcode and operand
			pc = state.PC() - uint32(1+opcodes.INVOKE.OperandWidth())
		}
	}
	return signal
}

func (vm *SpadeVM) null() (objects.Obj, error) {
	return objects.NewNull(vm.manager)
}

func (vm *SpadeVM) shouldCollect() bool {
	threshold := vm.settings.GCThreshold
	if threshold == 0 {
		return false
	}
	used, ok := vm.manager.(interface{ UsedSize() uint64 })
	return ok && used.UsedSize() >= threshold
}

// poolSignText reads the string constant at index.
func (vm *SpadeVM) poolSignText(frame *Frame, index uint16) (string, error) {
	if int(index) >= len(frame.pool) {
		return "", verrors.NewIndexError("constant pool", int64(index))
	}
	s, ok := frame.pool[index].(*objects.ObjString)
	if !ok {
		return "", verrors.NewIllegalAccessError("constant %d is not a string", index)
	}
	return s.Value(), nil
}

// arith applies a binary arithmetic opcode. Ints use two's-complement
// wrap-around; any float operand promotes ADD, SUB, MUL and DIV to float;
// MOD is defined for ints only; ADD concatenates strings.
func (vm *SpadeVM) arith(op opcodes.Opcode, a, b objects.Obj) (objects.Obj, error) {
	if op == opcodes.ADD {
		if left, ok := a.(*objects.ObjString); ok {
			if right, ok := b.(*objects.ObjString); ok {
				return objects.NewString(vm.manager, left.Value()+right.Value())
			}
		}
	}
	if left, ok := a.(*objects.ObjInt); ok {
		if right, ok := b.(*objects.ObjInt); ok {
			return vm.intArith(op, left.Value, right.Value)
		}
	}
	leftFloat, leftOk := numericValue(a)
	rightFloat, rightOk := numericValue(b)
	if !leftOk || !rightOk {
		return nil, vm.RuntimeError("unsupported operands for %s: %s and %s", op, a.String(), b.String())
	}
	switch op {
	case opcodes.ADD:
		return objects.NewFloat(vm.manager, leftFloat+rightFloat)
	case opcodes.SUB:
		return objects.NewFloat(vm.manager, leftFloat-rightFloat)
	case opcodes.MUL:
		return objects.NewFloat(vm.manager, leftFloat*rightFloat)
	case opcodes.DIV:
		return objects.NewFloat(vm.manager, leftFloat/rightFloat)
	default:
		return nil, vm.RuntimeError("unsupported operands for %s: %s and %s", op, a.String(), b.String())
	}
}

func (vm *SpadeVM) intArith(op opcodes.Opcode, a, b int64) (objects.Obj, error) {
	switch op {
	case opcodes.ADD:
		return objects.NewInt(vm.manager, a+b)
	case opcodes.SUB:
		return objects.NewInt(vm.manager, a-b)
	case opcodes.MUL:
		return objects.NewInt(vm.manager, a*b)
	case opcodes.DIV:
		if b == 0 {
			return nil, vm.RuntimeError("division by zero")
		}
		return objects.NewInt(vm.manager, a/b)
	case opcodes.MOD:
		if b == 0 {
			return nil, vm.RuntimeError("division by zero")
		}
		return objects.NewInt(vm.manager, a%b)
	default:
		return nil, vm.RuntimeError("unsupported int operation %s", op)
	}
}

// compare applies an ordering opcode over ints, floats, chars and strings.
// A NaN operand compares false regardless of the relation.
func (vm *SpadeVM) compare(op opcodes.Opcode, a, b objects.Obj) (objects.Obj, error) {
	if left, ok := a.(*objects.ObjString); ok {
		if right, ok := b.(*objects.ObjString); ok {
			return objects.NewBool(vm.manager, orderedCompare(op, stringOrder(left.Value(), right.Value())))
		}
	}
	leftFloat, leftOk := numericValue(a)
	rightFloat, rightOk := numericValue(b)
	if !leftOk || !rightOk {
		return nil, vm.RuntimeError("cannot order %s and %s", a.String(), b.String())
	}
	if leftFloat != leftFloat || rightFloat != rightFloat { // NaN
		return objects.NewBool(vm.manager, false)
	}
	var order int
	switch {
	case leftFloat < rightFloat:
		order = -1
	case leftFloat > rightFloat:
		order = 1
	}
	return objects.NewBool(vm.manager, orderedCompare(op, order))
}

func orderedCompare(op opcodes.Opcode, order int) bool {
	switch op {
	case opcodes.LT:
		return order < 0
	case opcodes.LE:
		return order <= 0
	case opcodes.GT:
		return order > 0
	case opcodes.GE:
		return order >= 0
	default:
		return false
	}
}

func stringOrder(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func numericValue(obj objects.Obj) (float64, bool) {
	switch v := obj.(type) {
	case *objects.ObjInt:
		return float64(v.Value), true
	case *objects.ObjFloat:
		return v.Value, true
	case *objects.ObjChar:
		return float64(v.Value), true
	default:
		return 0, false
	}
}

// decorate attaches source position context to a fatal error.
func (vm *SpadeVM) decorate(frame *Frame, op opcodes.Opcode, err error) error {
	if err == nil {
		return nil
	}
	line := frame.method.Template().Lines().LineAt(uint32(frame.ip))
	if line == 0 {
		return fmt.Errorf("%s in %s: %w", op, frame.method.Sign().String(), err)
	}
	return fmt.Errorf("%s in %s (line %d): %w", op, frame.method.Sign().String(), line, err)
}
