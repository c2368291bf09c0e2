package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spade-lang/velocity/objects"
)

// testRoots is a fixed root set standing in for the VM.
type testRoots struct {
	roots []objects.Obj
}

func (r *testRoots) EnumerateRoots(mark func(objects.Obj)) {
	for _, root := range r.roots {
		mark(root)
	}
}

func newHeap(t *testing.T) (*BasicManager, *testRoots) {
	t.Helper()
	manager := NewBasicManager()
	roots := &testRoots{}
	manager.SetRoots(roots)
	return manager, roots
}

func TestCollectReclaimsUnreachable(t *testing.T) {
	manager, roots := newHeap(t)

	for i := 0; i < 1000; i++ {
		_, err := objects.NewArray(manager, 4)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		kept, err := objects.NewArray(manager, 4)
		require.NoError(t, err)
		roots.roots = append(roots.roots, kept)
	}
	require.Equal(t, 1010, manager.Count())

	manager.CollectGarbage()

	assert.Equal(t, 10, manager.Count(), "only the rooted objects survive")
}

func TestCollectIsIdempotent(t *testing.T) {
	manager, roots := newHeap(t)

	for i := 0; i < 5; i++ {
		kept, err := objects.NewInt(manager, int64(i))
		require.NoError(t, err)
		roots.roots = append(roots.roots, kept)
	}
	for i := 0; i < 50; i++ {
		_, err := objects.NewInt(manager, int64(i))
		require.NoError(t, err)
	}

	manager.CollectGarbage()
	first := manager.Count()
	manager.CollectGarbage()

	assert.Equal(t, first, manager.Count(), "a second collection with no mutation frees nothing")
}

func TestCollectClearsMarksAndBumpsLife(t *testing.T) {
	manager, roots := newHeap(t)

	kept, err := objects.NewString(manager, "survivor")
	require.NoError(t, err)
	roots.roots = append(roots.roots, kept)

	manager.CollectGarbage()
	assert.False(t, kept.Info().Marked)
	assert.Equal(t, uint64(1), kept.Info().Life)

	manager.CollectGarbage()
	assert.False(t, kept.Info().Marked)
	assert.Equal(t, uint64(2), kept.Info().Life)
}

func TestCollectTracesArrayElements(t *testing.T) {
	manager, roots := newHeap(t)

	elem, err := objects.NewInt(manager, 7)
	require.NoError(t, err)
	inner, err := objects.NewArrayOf(manager, []objects.Obj{elem})
	require.NoError(t, err)
	outer, err := objects.NewArrayOf(manager, []objects.Obj{inner})
	require.NoError(t, err)
	roots.roots = append(roots.roots, outer)

	_, err = objects.NewInt(manager, 8) // garbage
	require.NoError(t, err)

	manager.CollectGarbage()

	assert.Equal(t, 3, manager.Count())
	assert.Equal(t, uint64(1), elem.Info().Life, "nested elements are traced")
}

func TestCollectTracesMemberSlots(t *testing.T) {
	manager, roots := newHeap(t)

	inst, err := objects.NewInstance(manager, nil)
	require.NoError(t, err)
	held, err := objects.NewString(manager, "held")
	require.NoError(t, err)
	require.NoError(t, inst.SetMember("field", held))
	roots.roots = append(roots.roots, inst)

	manager.CollectGarbage()

	assert.Equal(t, 2, manager.Count())
	assert.Equal(t, uint64(1), held.Info().Life)
}

func TestCollectTracesTypeAndModule(t *testing.T) {
	manager, roots := newHeap(t)

	module, err := objects.NewModule(manager, objects.MustParseSign("demo"), "demo.elp")
	require.NoError(t, err)
	typ, err := objects.NewType(manager, objects.MustParseSign("demo::Box"), objects.KindClass)
	require.NoError(t, err)
	typ.SetModule(module)

	inst, err := objects.NewInstance(manager, typ)
	require.NoError(t, err)
	roots.roots = append(roots.roots, inst)

	manager.CollectGarbage()

	// the instance keeps its type, the type keeps its module
	assert.Equal(t, 3, manager.Count())
	assert.Equal(t, uint64(1), typ.Info().Life)
	assert.Equal(t, uint64(1), module.Info().Life)
}

func TestCollectTracesSupersAndTypeParams(t *testing.T) {
	manager, roots := newHeap(t)

	super, err := objects.NewType(manager, objects.MustParseSign("demo::Base"), objects.KindClass)
	require.NoError(t, err)
	sub, err := objects.NewType(manager, objects.MustParseSign("demo::Sub"), objects.KindClass)
	require.NoError(t, err)
	sub.AddSuper("Base", super)

	param, err := objects.NewTypeParam(manager, "T")
	require.NoError(t, err)
	bound, err := objects.NewType(manager, objects.MustParseSign("basic.int"), objects.KindClass)
	require.NoError(t, err)
	param.Bind(bound)
	sub.AddTypeParam(param)

	roots.roots = append(roots.roots, sub)
	manager.CollectGarbage()

	assert.Equal(t, uint64(1), super.Info().Life)
	assert.Equal(t, uint64(1), param.Info().Life)
	assert.Equal(t, uint64(1), bound.Info().Life, "type params trace through to their bound type")
}

func TestCollectTracesMethodTables(t *testing.T) {
	manager, roots := newHeap(t)

	caught, err := objects.NewType(manager, objects.MustParseSign("demo::Error"), objects.KindClass)
	require.NoError(t, err)
	key, err := objects.NewInt(manager, 1)
	require.NoError(t, err)
	defaultLocal, err := objects.NewNull(manager)
	require.NoError(t, err)

	template := objects.NewFrameTemplate(
		[]objects.Arg{{Name: "x"}},
		objects.LocalsTable{
			Locals:       []objects.Local{{Name: "l", Value: defaultLocal}},
			ClosureStart: 1,
		},
		objects.ExceptionTable{Entries: []objects.ExceptionEntry{{From: 0, To: 4, Target: 4, Caught: caught}}},
		objects.LineTable{},
		[]objects.MatchTable{{Cases: []objects.MatchCase{{Key: key, Location: 0}}}},
		nil, 4, []byte{0x00}, nil)

	method, err := objects.NewMethod(manager, objects.MustParseSign("demo::f"), objects.KindFunction, template)
	require.NoError(t, err)
	roots.roots = append(roots.roots, method)

	manager.CollectGarbage()

	assert.Equal(t, uint64(1), caught.Info().Life)
	assert.Equal(t, uint64(1), key.Info().Life)
	assert.Equal(t, uint64(1), defaultLocal.Info().Life)
}

func TestDeallocateAccounting(t *testing.T) {
	manager := NewBasicManager()

	obj, err := objects.NewString(manager, "transient")
	require.NoError(t, err)
	used := manager.UsedSize()
	require.NotZero(t, used)

	manager.Deallocate(obj)

	assert.Zero(t, manager.Count())
	assert.Zero(t, manager.UsedSize())
	assert.Equal(t, used, manager.FreeSize())
}

func TestHeapLimit(t *testing.T) {
	manager := NewBasicManager()
	manager.SetLimit(64)

	_, err := objects.NewString(manager, "this string alone blows the tiny heap limit")
	require.Error(t, err)
}
