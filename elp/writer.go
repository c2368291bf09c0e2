package elp

import (
	"bytes"
	"os"
)

// Writer encodes an ElpInfo back into the on-disk byte layout. It is the
// exact inverse of Reader; reloading a written image reproduces an
// isomorphic module.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteFile encodes elp and writes it to path.
func WriteFile(path string, elp *ElpInfo) error {
	w := NewWriter()
	w.Write(elp)
	return os.WriteFile(path, w.Bytes(), 0o644)
}

// Bytes returns the encoded image.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Write encodes the whole module record.
func (w *Writer) Write(elp *ElpInfo) {
	w.u32(elp.Magic)
	w.u8(elp.Type)
	w.u16(uint16(len(elp.ConstantPool)))
	for i := range elp.ConstantPool {
		w.cp(&elp.ConstantPool[i])
	}
	w.u16(uint16(len(elp.Globals)))
	for i := range elp.Globals {
		g := &elp.Globals[i]
		w.u8(g.Flags)
		w.u16(g.ThisGlobal)
		w.u16(g.Type)
	}
	w.u16(uint16(len(elp.Objects)))
	for i := range elp.Objects {
		w.object(&elp.Objects[i])
	}
}

func (w *Writer) cp(info *CpInfo) {
	w.u8(info.Tag)
	switch info.Tag {
	case CpChar:
		w.u32(info.Char)
	case CpInt:
		w.u64(uint64(info.Int))
	case CpFloat:
		w.u64(info.Float)
	case CpString:
		w.str(info.String)
	case CpArray:
		w.u16(uint16(len(info.Array)))
		for i := range info.Array {
			w.cp(&info.Array[i])
		}
	}
}

func (w *Writer) object(o *ObjInfo) {
	w.u8(o.Type)
	switch o.Type {
	case ObjTagMethod:
		w.method(o.Method)
	case ObjTagClass:
		w.class(o.Class)
	}
}

func (w *Writer) class(c *ClassInfo) {
	w.u8(c.Type)
	w.u16(c.ThisClass)
	w.u16(c.Supers)
	w.u16(uint16(len(c.TypeParams)))
	for _, tp := range c.TypeParams {
		w.u16(tp.Name)
	}
	w.u16(uint16(len(c.Fields)))
	for _, f := range c.Fields {
		w.u8(f.Flags)
		w.u16(f.ThisField)
		w.u16(f.Type)
	}
	w.u16(uint16(len(c.Methods)))
	for i := range c.Methods {
		w.method(&c.Methods[i])
	}
	w.u16(uint16(len(c.Objects)))
	for i := range c.Objects {
		w.object(&c.Objects[i])
	}
}

func (w *Writer) method(m *MethodInfo) {
	w.u8(m.Type)
	w.u16(m.ThisMethod)
	w.u16(uint16(len(m.TypeParams)))
	for _, tp := range m.TypeParams {
		w.u16(tp.Name)
	}
	w.u16(uint16(len(m.Args)))
	for _, a := range m.Args {
		w.u8(a.Flags)
		w.u16(a.ThisArg)
		w.u16(a.Type)
	}
	w.u16(uint16(len(m.Locals)))
	for _, l := range m.Locals {
		w.u8(l.Flags)
		w.u16(l.ThisLocal)
		w.u16(l.Type)
	}
	w.u16(m.ClosureStart)
	w.u16(m.MaxStack)
	w.u32(uint32(len(m.Code)))
	w.buf.Write(m.Code)
	w.u16(uint16(len(m.ExceptionTable)))
	for _, e := range m.ExceptionTable {
		w.u32(e.StartPc)
		w.u32(e.EndPc)
		w.u32(e.Target)
		w.u16(e.Exception)
	}
	w.u16(uint16(len(m.LineInfo.Numbers)))
	for _, n := range m.LineInfo.Numbers {
		w.u16(n.Times)
		w.u32(n.Lineno)
	}
	w.u16(uint16(len(m.Lambdas)))
	for i := range m.Lambdas {
		w.method(&m.Lambdas[i])
	}
	w.u16(uint16(len(m.Matches)))
	for i := range m.Matches {
		mt := &m.Matches[i]
		w.u16(uint16(len(mt.Cases)))
		for _, k := range mt.Cases {
			w.u16(k.Value)
			w.u32(k.Location)
		}
		w.u32(mt.DefaultLocation)
	}
}

func (w *Writer) u8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) u16(v uint16) {
	w.buf.WriteByte(byte(v >> 8))
	w.buf.WriteByte(byte(v))
}

func (w *Writer) u32(v uint32) {
	w.buf.WriteByte(byte(v >> 24))
	w.buf.WriteByte(byte(v >> 16))
	w.buf.WriteByte(byte(v >> 8))
	w.buf.WriteByte(byte(v))
}

func (w *Writer) u64(v uint64) {
	w.u32(uint32(v >> 32))
	w.u32(uint32(v))
}

func (w *Writer) str(s string) {
	w.u16(uint16(len(s)))
	w.buf.WriteString(s)
}
