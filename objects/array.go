package objects

import (
	"strings"

	verrors "github.com/spade-lang/velocity/errors"
)

// ObjArray is a contiguous indexed sequence of object references.
// Bounds-violating access is an IndexError, fatal to the thread.
type ObjArray struct {
	base
	elements []Obj
}

// NewArray allocates an array of length filled with nil slots.
func NewArray(m Manager, length int) (*ObjArray, error) {
	return Halloc(m, &ObjArray{elements: make([]Obj, length)})
}

// NewArrayOf allocates an array wrapping elements.
func NewArrayOf(m Manager, elements []Obj) (*ObjArray, error) {
	return Halloc(m, &ObjArray{elements: elements})
}

func (o *ObjArray) Length() int {
	return len(o.elements)
}

func (o *ObjArray) Get(index int64) (Obj, error) {
	if index < 0 || index >= int64(len(o.elements)) {
		return nil, verrors.NewIndexError("array", index)
	}
	return o.elements[index], nil
}

func (o *ObjArray) Set(index int64, value Obj) error {
	if index < 0 || index >= int64(len(o.elements)) {
		return verrors.NewIndexError("array", index)
	}
	o.elements[index] = value
	return nil
}

// Foreach visits every element in index order.
func (o *ObjArray) Foreach(visit func(Obj)) {
	for _, elem := range o.elements {
		visit(elem)
	}
}

func (o *ObjArray) Truth() bool {
	return len(o.elements) > 0
}

func (o *ObjArray) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, elem := range o.elements {
		if i > 0 {
			sb.WriteString(", ")
		}
		if elem == nil {
			sb.WriteString("null")
		} else {
			sb.WriteString(elem.String())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// Copy produces a shallow duplicate owned by the same manager.
func (o *ObjArray) Copy() (Obj, error) {
	elements := make([]Obj, len(o.elements))
	copy(elements, o.elements)
	dup := &ObjArray{elements: elements}
	dup.typ = o.typ
	dup.module = o.module
	return Halloc(o.info.Manager, dup)
}
