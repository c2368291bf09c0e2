package objects

import (
	"fmt"
	"math"
	"strconv"
)

// ObjNull is the null value; always false, compares equal only to itself.
type ObjNull struct {
	base
}

func NewNull(m Manager) (*ObjNull, error) {
	return Halloc(m, &ObjNull{})
}

func (o *ObjNull) Truth() bool         { return false }
func (o *ObjNull) String() string      { return "null" }
func (o *ObjNull) Copy() (Obj, error)  { return o, nil }

// ObjBool is a boolean value.
type ObjBool struct {
	base
	Value bool
}

func NewBool(m Manager, value bool) (*ObjBool, error) {
	return Halloc(m, &ObjBool{Value: value})
}

func (o *ObjBool) Truth() bool { return o.Value }

func (o *ObjBool) String() string {
	if o.Value {
		return "true"
	}
	return "false"
}

func (o *ObjBool) Copy() (Obj, error) { return o, nil }

// ObjInt is a 64-bit signed integer. Arithmetic is two's-complement;
// overflow wraps.
type ObjInt struct {
	base
	Value int64
}

func NewInt(m Manager, value int64) (*ObjInt, error) {
	return Halloc(m, &ObjInt{Value: value})
}

func (o *ObjInt) Truth() bool        { return o.Value != 0 }
func (o *ObjInt) String() string     { return strconv.FormatInt(o.Value, 10) }
func (o *ObjInt) Copy() (Obj, error) { return o, nil }

// ObjFloat is an IEEE-754 double. NaN compares false to everything,
// including itself.
type ObjFloat struct {
	base
	Value float64
}

func NewFloat(m Manager, value float64) (*ObjFloat, error) {
	return Halloc(m, &ObjFloat{Value: value})
}

func (o *ObjFloat) Truth() bool {
	return o.Value != 0 && !math.IsNaN(o.Value)
}

func (o *ObjFloat) String() string {
	return strconv.FormatFloat(o.Value, 'g', -1, 64)
}

func (o *ObjFloat) Copy() (Obj, error) { return o, nil }

// ObjChar is a single unicode code point.
type ObjChar struct {
	base
	Value rune
}

func NewChar(m Manager, value rune) (*ObjChar, error) {
	return Halloc(m, &ObjChar{Value: value})
}

func (o *ObjChar) Truth() bool        { return o.Value != 0 }
func (o *ObjChar) String() string     { return string(o.Value) }
func (o *ObjChar) Copy() (Obj, error) { return o, nil }

// ObjString is an immutable string; equality is structural.
type ObjString struct {
	base
	value string
}

func NewString(m Manager, value string) (*ObjString, error) {
	return Halloc(m, &ObjString{value: value})
}

func (o *ObjString) Value() string      { return o.value }
func (o *ObjString) Truth() bool        { return o.value != "" }
func (o *ObjString) String() string     { return o.value }
func (o *ObjString) Copy() (Obj, error) { return o, nil }

// ObjInstance is a user class instance; its state lives entirely in member
// slots seeded from the type's defaults.
type ObjInstance struct {
	base
}

func NewInstance(m Manager, typ *Type) (*ObjInstance, error) {
	inst := &ObjInstance{}
	inst.typ = typ
	if typ != nil {
		for _, t := range typ.Linearized() {
			for name, slot := range t.MemberSlots() {
				if _, ok := inst.members[name]; ok {
					continue
				}
				inst.DeclareMember(name, slot.Value, slot.Const)
			}
		}
		inst.module = typ.Module()
	}
	return Halloc(m, inst)
}

func (o *ObjInstance) Truth() bool { return true }

func (o *ObjInstance) String() string {
	if o.typ != nil {
		return fmt.Sprintf("<object of %s>", o.typ.Sign().String())
	}
	return "<object>"
}

// Copy produces a shallow duplicate owned by the same manager.
func (o *ObjInstance) Copy() (Obj, error) {
	dup := &ObjInstance{}
	dup.typ = o.typ
	dup.module = o.module
	for name, slot := range o.members {
		dup.DeclareMember(name, slot.Value, slot.Const)
	}
	return Halloc(o.info.Manager, dup)
}
