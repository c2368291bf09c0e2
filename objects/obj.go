// Package objects implements the Velocity value model: the closed set of
// polymorphic object variants, signatures, types, methods and modules, plus
// the memory manager contract every object is registered with.
package objects

import (
	verrors "github.com/spade-lang/velocity/errors"
)

// Manager is the memory manager contract. Exactly one manager owns every
// live object; the owning manager never changes.
type Manager interface {
	// Allocate reserves size bytes, failing when the heap limit would be
	// exceeded.
	Allocate(size uint64) error
	// PostAllocation registers an object so the collector can find it.
	// Called exactly once per live object, after construction.
	PostAllocation(obj Obj)
	// Deallocate releases a previously registered object.
	Deallocate(obj Obj)
	// CollectGarbage runs a synchronous reclamation pass.
	CollectGarbage()
}

// RootSet enumerates every object reachable without traversing another
// object: module table entries and live thread state. The VM implements it.
type RootSet interface {
	EnumerateRoots(mark func(Obj))
}

// ObjectInfo is the header carried by every object: its owning manager, the
// collector's mark bit, the generation counter and the intrusive list links
// the sweep phase walks.
type ObjectInfo struct {
	Manager Manager
	Marked  bool
	Life    uint64
	Size    uint64

	// Owner points back at the object carrying this header so the sweep can
	// reach the object from a list node.
	Owner      Obj
	Prev, Next *ObjectInfo
}

// Finalizer is implemented by variants that need teardown before their
// memory is returned.
type Finalizer interface {
	Finalize()
}

// MemberSlot holds one named member value and its mutability.
type MemberSlot struct {
	Value Obj
	Const bool
}

// Obj is the polymorphic value. All variants carry an ObjectInfo header,
// a declared type (absent for built-in primitives) and an originating
// module (absent for ephemeral values).
type Obj interface {
	Info() *ObjectInfo
	Type() *Type
	SetType(t *Type)
	Module() *ObjModule
	SetModule(m *ObjModule)

	// Truth is the object's natural boolean interpretation.
	Truth() bool
	// String is the human-readable form.
	String() string
	// Copy applies the variant's copy policy: immutable primitives return
	// themselves, containers produce a shallow duplicate owned by the same
	// manager.
	Copy() (Obj, error)

	GetMember(name string) (Obj, error)
	SetMember(name string, value Obj) error
	MemberSlots() map[string]*MemberSlot
}

// base carries the state shared by every variant.
type base struct {
	info    ObjectInfo
	typ     *Type
	module  *ObjModule
	members map[string]*MemberSlot
}

func (b *base) Info() *ObjectInfo        { return &b.info }
func (b *base) Type() *Type              { return b.typ }
func (b *base) SetType(t *Type)          { b.typ = t }
func (b *base) Module() *ObjModule       { return b.module }
func (b *base) SetModule(m *ObjModule)   { b.module = m }

func (b *base) MemberSlots() map[string]*MemberSlot {
	return b.members
}

// GetMember resolves a member against the instance slots first, then the
// type's slots along the linearised super chain.
func (b *base) GetMember(name string) (Obj, error) {
	if slot, ok := b.members[name]; ok {
		return slot.Value, nil
	}
	if b.typ != nil {
		if slot := b.typ.findSlot(name); slot != nil {
			return slot.Value, nil
		}
	}
	return nil, verrors.NewIllegalAccessError("no member named '%s'", name)
}

func (b *base) SetMember(name string, value Obj) error {
	if slot, ok := b.members[name]; ok {
		if slot.Const {
			return verrors.NewIllegalAccessError("cannot modify constant member '%s'", name)
		}
		slot.Value = value
		return nil
	}
	if b.members == nil {
		b.members = make(map[string]*MemberSlot)
	}
	b.members[name] = &MemberSlot{Value: value}
	return nil
}

// DeclareMember installs a slot with an explicit mutability, replacing any
// existing slot of the same name.
func (b *base) DeclareMember(name string, value Obj, constant bool) {
	if b.members == nil {
		b.members = make(map[string]*MemberSlot)
	}
	b.members[name] = &MemberSlot{Value: value, Const: constant}
}

// Halloc registers obj with manager m: charges its size, stamps the header
// and hands it to the manager for the intrusive list. Every object the
// engine ever sees was born here.
func Halloc[T Obj](m Manager, obj T) (T, error) {
	if m == nil {
		return obj, verrors.NewArgumentError("halloc()", "manager is null")
	}
	size := SizeOf(obj)
	if err := m.Allocate(size); err != nil {
		return obj, err
	}
	info := obj.Info()
	info.Manager = m
	info.Size = size
	info.Owner = obj
	m.PostAllocation(obj)
	return obj, nil
}

// Hfree tears an object down and returns it to its manager.
func Hfree(obj Obj) {
	if f, ok := obj.(Finalizer); ok {
		f.Finalize()
	}
	obj.Info().Manager.Deallocate(obj)
}

// SizeOf estimates the heap footprint of an object for allocation
// accounting.
func SizeOf(obj Obj) uint64 {
	const header = 96
	switch o := obj.(type) {
	case *ObjString:
		return header + uint64(len(o.value))
	case *ObjArray:
		return header + uint64(len(o.elements))*8
	case *ObjMethod:
		if o.template != nil {
			return header + uint64(len(o.template.code))
		}
		return header
	default:
		return header
	}
}

// Equals is the structural equality used by match tables and comparison
// opcodes: primitives compare by value, arrays element-wise, everything
// else by identity.
func Equals(a, b Obj) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch x := a.(type) {
	case *ObjNull:
		_, ok := b.(*ObjNull)
		return ok
	case *ObjBool:
		y, ok := b.(*ObjBool)
		return ok && x.Value == y.Value
	case *ObjInt:
		y, ok := b.(*ObjInt)
		return ok && x.Value == y.Value
	case *ObjFloat:
		y, ok := b.(*ObjFloat)
		return ok && x.Value == y.Value
	case *ObjChar:
		y, ok := b.(*ObjChar)
		return ok && x.Value == y.Value
	case *ObjString:
		y, ok := b.(*ObjString)
		return ok && x.value == y.value
	case *ObjArray:
		y, ok := b.(*ObjArray)
		if !ok || len(x.elements) != len(y.elements) {
			return false
		}
		for i := range x.elements {
			if !Equals(x.elements[i], y.elements[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
