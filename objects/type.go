package objects

import (
	"fmt"

	verrors "github.com/spade-lang/velocity/errors"
)

// TypeKind discriminates the class-like declarations of the module format.
type TypeKind uint8

const (
	KindClass      TypeKind = 0x01
	KindInterface  TypeKind = 0x02
	KindEnum       TypeKind = 0x03
	KindAnnotation TypeKind = 0x04
)

func (k TypeKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindEnum:
		return "enum"
	case KindAnnotation:
		return "annotation"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Type describes a class, interface, enum or annotation. Its member slots
// hold the default field and method set for instances.
type Type struct {
	base
	sign       Sign
	kind       TypeKind
	supers     map[string]*Type
	typeParams map[string]*TypeParam
}

// NewType allocates a type shell; supers and members are populated by the
// loader as resolution progresses.
func NewType(m Manager, sign Sign, kind TypeKind) (*Type, error) {
	return Halloc(m, &Type{
		sign:       sign,
		kind:       kind,
		supers:     make(map[string]*Type),
		typeParams: make(map[string]*TypeParam),
	})
}

func (t *Type) Sign() Sign     { return t.sign }
func (t *Type) Kind() TypeKind { return t.kind }

func (t *Type) Supers() map[string]*Type {
	return t.supers
}

func (t *Type) AddSuper(name string, super *Type) {
	t.supers[name] = super
}

func (t *Type) TypeParams() map[string]*TypeParam {
	return t.typeParams
}

func (t *Type) AddTypeParam(param *TypeParam) {
	t.typeParams[param.Name()] = param
}

// Linearized returns the type followed by its supers in breadth-first
// order, each type once.
func (t *Type) Linearized() []*Type {
	seen := map[*Type]bool{t: true}
	order := []*Type{t}
	for i := 0; i < len(order); i++ {
		for _, super := range order[i].supers {
			if super == nil || seen[super] {
				continue
			}
			seen[super] = true
			order = append(order, super)
		}
	}
	return order
}

// GetMember resolves a member of the type itself, searching the linearised
// super chain.
func (t *Type) GetMember(name string) (Obj, error) {
	if slot := t.findSlot(name); slot != nil {
		return slot.Value, nil
	}
	return nil, verrors.NewIllegalAccessError("no member named '%s'", name)
}

// findSlot resolves name through the linearised super chain.
func (t *Type) findSlot(name string) *MemberSlot {
	for _, typ := range t.Linearized() {
		if slot, ok := typ.members[name]; ok {
			return slot
		}
	}
	return nil
}

// IsAssignableTo reports whether a value of type t can be treated as target:
// the same type, or target somewhere in t's super chain.
func (t *Type) IsAssignableTo(target *Type) bool {
	if target == nil {
		return false
	}
	for _, typ := range t.Linearized() {
		if typ == target {
			return true
		}
	}
	return false
}

func (t *Type) Truth() bool { return true }

func (t *Type) String() string {
	return fmt.Sprintf("<%s %s>", t.kind, t.sign.String())
}

func (t *Type) Copy() (Obj, error) { return t, nil }

// TypeParam is a named slot for a type argument. It stays empty until the
// call site binds it; dereferencing an empty slot is fatal.
type TypeParam struct {
	base
	name  string
	value *Type
}

func NewTypeParam(m Manager, name string) (*TypeParam, error) {
	return Halloc(m, &TypeParam{name: name})
}

func (p *TypeParam) Name() string { return p.name }

// Bind sets the referenced type; Clear empties the slot again.
func (p *TypeParam) Bind(t *Type) { p.value = t }
func (p *TypeParam) Clear()       { p.value = nil }

// Value dereferences the slot.
func (p *TypeParam) Value() (*Type, error) {
	if p.value == nil {
		return nil, verrors.NewIllegalTypeParamAccessError(p.name)
	}
	return p.value, nil
}

// Referenced returns the bound type without the empty-slot check; the
// collector uses it.
func (p *TypeParam) Referenced() *Type { return p.value }

func (p *TypeParam) Truth() bool { return p.value != nil }

func (p *TypeParam) String() string {
	if p.value != nil {
		return fmt.Sprintf("<typeparam %s = %s>", p.name, p.value.Sign().String())
	}
	return fmt.Sprintf("<typeparam %s>", p.name)
}

func (p *TypeParam) Copy() (Obj, error) { return p, nil }
