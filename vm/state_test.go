package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/spade-lang/velocity/errors"
	"github.com/spade-lang/velocity/memory"
	"github.com/spade-lang/velocity/objects"
)

func newTestVM(t *testing.T, settings Settings) (*SpadeVM, *memory.BasicManager) {
	t.Helper()
	manager := memory.NewBasicManager()
	machine, err := New(manager, settings)
	require.NoError(t, err)
	return machine, manager
}

// rawMethod builds a method straight from a template, bypassing the loader.
func rawMethod(t *testing.T, machine *SpadeVM, sign string, code []byte, maxStack uint32, pool []objects.Obj) *objects.ObjMethod {
	t.Helper()
	template := objects.NewFrameTemplate(nil, objects.LocalsTable{}, objects.ExceptionTable{},
		objects.LineTable{}, nil, nil, maxStack, code, pool)
	method, err := objects.NewMethod(machine.Manager(), objects.MustParseSign(sign), objects.KindFunction, template)
	require.NoError(t, err)
	return method
}

func TestFramePushPop(t *testing.T) {
	machine, _ := newTestVM(t, DefaultSettings())
	method := rawMethod(t, machine, "demo::f", []byte{0x00}, 4, nil)

	state := NewVMState(machine, 4)
	frame, err := newFrame(method, nil)
	require.NoError(t, err)
	require.NoError(t, state.PushFrame(frame))

	value, err := objects.NewInt(machine.Manager(), 99)
	require.NoError(t, err)

	state.Push(value)
	assert.Same(t, value, state.Peek())
	assert.Same(t, value, state.Pop())
	assert.Equal(t, 0, state.Frame().Depth(), "the stack is empty again after push/pop")
}

func TestPushFrameOverflow(t *testing.T) {
	const depth = 7
	machine, _ := newTestVM(t, DefaultSettings())
	method := rawMethod(t, machine, "demo::f", []byte{0x00}, 1, nil)

	state := NewVMState(machine, depth)
	for i := 0; i < depth; i++ {
		frame, err := newFrame(method, nil)
		require.NoError(t, err)
		require.NoError(t, state.PushFrame(frame), "push %d within capacity", i)
	}

	frame, err := newFrame(method, nil)
	require.NoError(t, err)
	err = state.PushFrame(frame)
	assert.True(t, verrors.IsStackOverflow(err), "the (depth+1)-th push overflows")
}

func TestPopFrameOnEmptyStack(t *testing.T) {
	machine, _ := newTestVM(t, DefaultSettings())
	state := NewVMState(machine, 2)
	assert.False(t, state.PopFrame())
}

func TestReadByteAndShort(t *testing.T) {
	machine, _ := newTestVM(t, DefaultSettings())
	method := rawMethod(t, machine, "demo::f", []byte{0x12, 0xca, 0xfe, 0x34}, 1, nil)

	state := NewVMState(machine, 2)
	frame, err := newFrame(method, nil)
	require.NoError(t, err)
	require.NoError(t, state.PushFrame(frame))

	assert.Equal(t, byte(0x12), state.ReadByte())
	assert.Equal(t, uint16(0xcafe), state.ReadShort(), "shorts are big-endian")
	assert.Equal(t, uint32(3), state.PC())

	state.Adjust(-3)
	assert.Equal(t, uint32(0), state.PC())

	state.SetPC(2)
	assert.Equal(t, byte(0xfe), state.ReadByte())
}

func TestLoadConst(t *testing.T) {
	machine, _ := newTestVM(t, DefaultSettings())
	str, err := objects.NewString(machine.Manager(), "pooled")
	require.NoError(t, err)
	one, err := objects.NewInt(machine.Manager(), 1)
	require.NoError(t, err)
	arr, err := objects.NewArrayOf(machine.Manager(), []objects.Obj{one})
	require.NoError(t, err)
	pool := []objects.Obj{str, arr}

	method := rawMethod(t, machine, "demo::f", []byte{0x00}, 1, pool)
	state := NewVMState(machine, 2)
	frame, err := newFrame(method, nil)
	require.NoError(t, err)
	require.NoError(t, state.PushFrame(frame))

	loaded, err := state.LoadConst(0)
	require.NoError(t, err)
	assert.Same(t, str, loaded, "immutable constants load as themselves")

	loadedArr, err := state.LoadConst(1)
	require.NoError(t, err)
	assert.NotSame(t, arr, loadedArr, "container constants load as fresh copies")

	_, err = state.LoadConst(9)
	assert.True(t, verrors.IsIndexError(err))
}

func TestOperandStackUnderflowPanics(t *testing.T) {
	machine, _ := newTestVM(t, DefaultSettings())
	method := rawMethod(t, machine, "demo::f", []byte{0x00}, 1, nil)
	frame, err := newFrame(method, nil)
	require.NoError(t, err)

	assert.Panics(t, func() { frame.Pop() })
}
