package objects

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/spade-lang/velocity/errors"
)

// testManager is a minimal Manager for value-model tests.
type testManager struct {
	objs  []Obj
	limit uint64
	used  uint64
}

func (m *testManager) Allocate(size uint64) error {
	if m.limit > 0 && m.used+size > m.limit {
		return verrors.NewMemoryError(size)
	}
	m.used += size
	return nil
}

func (m *testManager) PostAllocation(obj Obj) {
	m.objs = append(m.objs, obj)
}

func (m *testManager) Deallocate(obj Obj) {
	for i, o := range m.objs {
		if o == obj {
			m.objs = append(m.objs[:i], m.objs[i+1:]...)
			return
		}
	}
}

func (m *testManager) CollectGarbage() {}

func TestHallocStampsHeader(t *testing.T) {
	m := &testManager{}
	i, err := NewInt(m, 42)
	require.NoError(t, err)

	assert.Same(t, m, i.Info().Manager)
	assert.Equal(t, Obj(i), i.Info().Owner)
	assert.False(t, i.Info().Marked)
	assert.Len(t, m.objs, 1)
}

func TestHallocWithoutManager(t *testing.T) {
	_, err := NewInt(nil, 1)
	require.Error(t, err)
	var argErr *verrors.ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestHallocAllocationFailure(t *testing.T) {
	m := &testManager{limit: 1}
	_, err := NewString(m, "far too big")
	assert.True(t, verrors.IsMemoryError(err))
}

func TestTruth(t *testing.T) {
	m := &testManager{}
	null, _ := NewNull(m)
	falsy, _ := NewBool(m, false)
	zero, _ := NewInt(m, 0)
	one, _ := NewInt(m, 1)
	nan, _ := NewFloat(m, math.NaN())
	half, _ := NewFloat(m, 0.5)
	empty, _ := NewString(m, "")
	hello, _ := NewString(m, "hi")
	emptyArr, _ := NewArray(m, 0)
	fullArr, _ := NewArrayOf(m, []Obj{one})
	method, _ := NewMethod(m, MustParseSign("demo::f"), KindFunction, NewFrameTemplate(nil, LocalsTable{}, ExceptionTable{}, LineTable{}, nil, nil, 1, nil, nil))

	assert.False(t, null.Truth())
	assert.False(t, falsy.Truth())
	assert.False(t, zero.Truth())
	assert.True(t, one.Truth())
	assert.False(t, nan.Truth())
	assert.True(t, half.Truth())
	assert.False(t, empty.Truth())
	assert.True(t, hello.Truth())
	assert.False(t, emptyArr.Truth())
	assert.True(t, fullArr.Truth())
	assert.True(t, method.Truth())
}

func TestCopyPolicies(t *testing.T) {
	m := &testManager{}

	str, _ := NewString(m, "immutable")
	copied, err := str.Copy()
	require.NoError(t, err)
	assert.Same(t, str, copied, "immutable primitives return themselves")

	one, _ := NewInt(m, 1)
	arr, _ := NewArrayOf(m, []Obj{one, one})
	dupObj, err := arr.Copy()
	require.NoError(t, err)
	dup := dupObj.(*ObjArray)
	assert.NotSame(t, arr, dupObj, "containers produce a duplicate")
	assert.Same(t, m, dup.Info().Manager, "the duplicate belongs to the same manager")

	elem, err := dup.Get(0)
	require.NoError(t, err)
	assert.Same(t, one, elem, "the duplicate is shallow")

	// mutating the copy leaves the original alone
	two, _ := NewInt(m, 2)
	require.NoError(t, dup.Set(0, two))
	original, _ := arr.Get(0)
	assert.Same(t, one, original)
}

func TestArrayBounds(t *testing.T) {
	m := &testManager{}
	arr, _ := NewArray(m, 3)

	_, err := arr.Get(3)
	assert.True(t, verrors.IsIndexError(err))
	_, err = arr.Get(-1)
	assert.True(t, verrors.IsIndexError(err))
	assert.True(t, verrors.IsIndexError(arr.Set(7, nil)))
}

func TestMemberLookupThroughSupers(t *testing.T) {
	m := &testManager{}
	animal, _ := NewType(m, MustParseSign("demo::Animal"), KindClass)
	dog, _ := NewType(m, MustParseSign("demo::Dog"), KindClass)
	dog.AddSuper("Animal", animal)

	sound, _ := NewString(m, "generic")
	animal.DeclareMember("sound", sound, false)

	inst, err := NewInstance(m, dog)
	require.NoError(t, err)

	got, err := inst.GetMember("sound")
	require.NoError(t, err)
	assert.Same(t, sound, got)

	// instance slots shadow the type's slots
	bark, _ := NewString(m, "bark")
	require.NoError(t, inst.SetMember("sound", bark))
	got, err = inst.GetMember("sound")
	require.NoError(t, err)
	assert.Same(t, bark, got)

	_, err = inst.GetMember("missing")
	assert.True(t, verrors.IsIllegalAccess(err))
}

func TestConstMemberRejected(t *testing.T) {
	m := &testManager{}
	inst, _ := NewInstance(m, nil)
	value, _ := NewInt(m, 1)
	inst.DeclareMember("pi", value, true)

	err := inst.SetMember("pi", value)
	assert.True(t, verrors.IsIllegalAccess(err))
}

func TestTypeAssignability(t *testing.T) {
	m := &testManager{}
	base, _ := NewType(m, MustParseSign("demo::Base"), KindClass)
	mid, _ := NewType(m, MustParseSign("demo::Mid"), KindClass)
	leaf, _ := NewType(m, MustParseSign("demo::Leaf"), KindClass)
	other, _ := NewType(m, MustParseSign("demo::Other"), KindClass)
	mid.AddSuper("Base", base)
	leaf.AddSuper("Mid", mid)

	assert.True(t, leaf.IsAssignableTo(base))
	assert.True(t, leaf.IsAssignableTo(leaf))
	assert.False(t, base.IsAssignableTo(leaf))
	assert.False(t, leaf.IsAssignableTo(other))
}

func TestTypeParamDeref(t *testing.T) {
	m := &testManager{}
	param, _ := NewTypeParam(m, "T")

	_, err := param.Value()
	var emptyErr *verrors.IllegalTypeParamAccessError
	assert.ErrorAs(t, err, &emptyErr)

	bound, _ := NewType(m, MustParseSign("basic.int"), KindClass)
	param.Bind(bound)
	got, err := param.Value()
	require.NoError(t, err)
	assert.Same(t, bound, got)
}

func TestEquals(t *testing.T) {
	m := &testManager{}
	a1, _ := NewInt(m, 7)
	a2, _ := NewInt(m, 7)
	b, _ := NewInt(m, 8)
	s1, _ := NewString(m, "x")
	s2, _ := NewString(m, "x")
	nan1, _ := NewFloat(m, math.NaN())
	nan2, _ := NewFloat(m, math.NaN())
	arr1, _ := NewArrayOf(m, []Obj{a1, s1})
	arr2, _ := NewArrayOf(m, []Obj{a2, s2})

	assert.True(t, Equals(a1, a2))
	assert.False(t, Equals(a1, b))
	assert.True(t, Equals(s1, s2))
	assert.False(t, Equals(a1, s1))
	assert.False(t, Equals(nan1, nan2), "NaN compares false to everything including itself")
	assert.False(t, Equals(nan1, nan1))
	assert.True(t, Equals(arr1, arr2))
}

func TestMatchTableLookup(t *testing.T) {
	m := &testManager{}
	one, _ := NewInt(m, 1)
	two, _ := NewInt(m, 2)
	table := MatchTable{
		Cases: []MatchCase{
			{Key: one, Location: 10},
			{Key: two, Location: 20},
		},
		DefaultLoc: 99,
	}

	probe, _ := NewInt(m, 2)
	assert.Equal(t, uint32(20), table.Lookup(probe))
	missing, _ := NewInt(m, 5)
	assert.Equal(t, uint32(99), table.Lookup(missing))
}

func TestExceptionTableFindHandler(t *testing.T) {
	m := &testManager{}
	base, _ := NewType(m, MustParseSign("demo::Error"), KindClass)
	derived, _ := NewType(m, MustParseSign("demo::IOError"), KindClass)
	derived.AddSuper("Error", base)
	unrelated, _ := NewType(m, MustParseSign("demo::Other"), KindClass)

	table := ExceptionTable{Entries: []ExceptionEntry{
		{From: 0, To: 10, Target: 40, Caught: base},
		{From: 0, To: 20, Target: 50, Caught: nil},
	}}

	entry, ok := table.FindHandler(5, derived)
	require.True(t, ok)
	assert.Equal(t, uint32(40), entry.Target, "the innermost matching entry wins")

	entry, ok = table.FindHandler(5, unrelated)
	require.True(t, ok)
	assert.Equal(t, uint32(50), entry.Target, "a nil caught type catches everything")

	_, ok = table.FindHandler(25, derived)
	assert.False(t, ok)
}

func TestForeignDefaultSymbolName(t *testing.T) {
	m := &testManager{}
	foreign, _ := NewForeign(m, MustParseSign("demo::Net.open"), KindForeign, "libnet", "")
	assert.Equal(t, "FAI_demo_Net_open", foreign.SymbolName())

	named, _ := NewForeign(m, MustParseSign("demo::Net.open"), KindForeign, "libnet", "net_open")
	assert.Equal(t, "net_open", named.SymbolName())
}

func TestRegistryLoader(t *testing.T) {
	m := &testManager{}
	loader := NewRegistryLoader()
	loader.Register("libnet", "net_open", func(args []Obj) (Obj, error) {
		return NewInt(m, int64(len(args)))
	})

	foreign, _ := NewForeign(m, MustParseSign("demo::Net.open"), KindForeign, "libnet", "net_open")
	require.NoError(t, foreign.Link(loader))

	result, err := foreign.Invoke([]Obj{nil, nil})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.(*ObjInt).Value)

	missing, _ := NewForeign(m, MustParseSign("demo::Net.close"), KindForeign, "libnet", "net_close")
	err = missing.Link(loader)
	var nativeErr *verrors.NativeLibraryError
	assert.ErrorAs(t, err, &nativeErr)

	unknown, _ := NewForeign(m, MustParseSign("demo::Fs.read"), KindForeign, "libfs", "")
	err = unknown.Link(loader)
	assert.ErrorAs(t, err, &nativeErr)
}

func TestLinkAnnotated(t *testing.T) {
	m := &testManager{}
	loader := NewRegistryLoader()
	called := false
	loader.Register("libann", "net_open", func(args []Obj) (Obj, error) {
		called = true
		return nil, nil
	})

	annoType, _ := NewType(m, MustParseSign("spade::foreign.Foreign"), KindAnnotation)
	anno, _ := NewInstance(m, annoType)
	path, _ := NewString(m, "libann")
	name, _ := NewString(m, "net_open")
	require.NoError(t, anno.SetMember("path", path))
	require.NoError(t, anno.SetMember("name", name))
	annos, _ := NewArrayOf(m, []Obj{anno})

	foreign, _ := NewForeign(m, MustParseSign("demo::Net.open"), KindForeign, "", "")
	require.NoError(t, foreign.SetMember("$annotations", annos))

	require.NoError(t, foreign.LinkAnnotated(loader, annoType))
	assert.Equal(t, "libann", foreign.LibraryPath())
	assert.Equal(t, "net_open", foreign.SymbolName())

	_, err := foreign.Invoke(nil)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestLineTable(t *testing.T) {
	table := LineTable{Entries: []LineEntry{
		{Times: 3, Lineno: 10},
		{Times: 2, Lineno: 11},
	}}
	assert.Equal(t, uint32(10), table.LineAt(0))
	assert.Equal(t, uint32(10), table.LineAt(2))
	assert.Equal(t, uint32(11), table.LineAt(4))
	assert.Equal(t, uint32(0), table.LineAt(5))
}
