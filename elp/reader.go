package elp

import (
	"fmt"
	"io"
	"math"
	"os"
)

// Reader decodes module files from a byte stream. Every multi-byte integer
// is big-endian, matching the instruction operand encoding.
type Reader struct {
	data []byte
	pos  int
	path string
}

// NewReader wraps an in-memory image of a module file.
func NewReader(data []byte, path string) *Reader {
	return &Reader{data: data, path: path}
}

// ReadFile parses the module file at path.
func ReadFile(path string) (*ElpInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewReader(data, path).Read()
}

// Read parses the whole image into an ElpInfo.
func (r *Reader) Read() (*ElpInfo, error) {
	elp := &ElpInfo{}
	var err error
	if elp.Magic, err = r.u32(); err != nil {
		return nil, err
	}
	if elp.Type, err = r.u8(); err != nil {
		return nil, err
	}
	cpCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	elp.ConstantPool = sliceOf[CpInfo](int(cpCount))
	for i := range elp.ConstantPool {
		if elp.ConstantPool[i], err = r.cp(); err != nil {
			return nil, err
		}
	}
	globalsCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	elp.Globals = sliceOf[GlobalInfo](int(globalsCount))
	for i := range elp.Globals {
		if elp.Globals[i], err = r.global(); err != nil {
			return nil, err
		}
	}
	objectsCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	elp.Objects = sliceOf[ObjInfo](int(objectsCount))
	for i := range elp.Objects {
		if elp.Objects[i], err = r.object(); err != nil {
			return nil, err
		}
	}
	if r.pos != len(r.data) {
		return nil, r.truncated("trailing bytes")
	}
	return elp, nil
}

func (r *Reader) cp() (CpInfo, error) {
	tag, err := r.u8()
	if err != nil {
		return CpInfo{}, err
	}
	info := CpInfo{Tag: tag}
	switch tag {
	case CpNull, CpTrue, CpFalse:
	case CpChar:
		info.Char, err = r.u32()
	case CpInt:
		var bits uint64
		bits, err = r.u64()
		info.Int = int64(bits)
	case CpFloat:
		info.Float, err = r.u64()
	case CpString:
		info.String, err = r.str()
	case CpArray:
		var count uint16
		if count, err = r.u16(); err != nil {
			return info, err
		}
		info.Array = sliceOf[CpInfo](int(count))
		for i := range info.Array {
			if info.Array[i], err = r.cp(); err != nil {
				return info, err
			}
		}
	default:
		// Out-of-domain tags are kept for the verifier to reject, but the
		// reader cannot skip an unknown payload.
		return info, r.truncated(fmt.Sprintf("unknown constant tag 0x%02x", tag))
	}
	return info, err
}

func (r *Reader) global() (GlobalInfo, error) {
	var g GlobalInfo
	var err error
	if g.Flags, err = r.u8(); err != nil {
		return g, err
	}
	if g.ThisGlobal, err = r.u16(); err != nil {
		return g, err
	}
	g.Type, err = r.u16()
	return g, err
}

func (r *Reader) object() (ObjInfo, error) {
	var o ObjInfo
	var err error
	if o.Type, err = r.u8(); err != nil {
		return o, err
	}
	switch o.Type {
	case ObjTagMethod:
		var m MethodInfo
		if m, err = r.method(); err != nil {
			return o, err
		}
		o.Method = &m
	case ObjTagClass:
		var c ClassInfo
		if c, err = r.class(); err != nil {
			return o, err
		}
		o.Class = &c
	default:
		return o, r.truncated(fmt.Sprintf("unknown object tag 0x%02x", o.Type))
	}
	return o, nil
}

func (r *Reader) class() (ClassInfo, error) {
	var c ClassInfo
	var err error
	if c.Type, err = r.u8(); err != nil {
		return c, err
	}
	if c.ThisClass, err = r.u16(); err != nil {
		return c, err
	}
	if c.Supers, err = r.u16(); err != nil {
		return c, err
	}
	tpCount, err := r.u16()
	if err != nil {
		return c, err
	}
	c.TypeParams = sliceOf[TypeParamInfo](int(tpCount))
	for i := range c.TypeParams {
		if c.TypeParams[i].Name, err = r.u16(); err != nil {
			return c, err
		}
	}
	fieldsCount, err := r.u16()
	if err != nil {
		return c, err
	}
	c.Fields = sliceOf[FieldInfo](int(fieldsCount))
	for i := range c.Fields {
		if c.Fields[i], err = r.field(); err != nil {
			return c, err
		}
	}
	methodsCount, err := r.u16()
	if err != nil {
		return c, err
	}
	c.Methods = sliceOf[MethodInfo](int(methodsCount))
	for i := range c.Methods {
		if c.Methods[i], err = r.method(); err != nil {
			return c, err
		}
	}
	objectsCount, err := r.u16()
	if err != nil {
		return c, err
	}
	c.Objects = sliceOf[ObjInfo](int(objectsCount))
	for i := range c.Objects {
		if c.Objects[i], err = r.object(); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (r *Reader) field() (FieldInfo, error) {
	var f FieldInfo
	var err error
	if f.Flags, err = r.u8(); err != nil {
		return f, err
	}
	if f.ThisField, err = r.u16(); err != nil {
		return f, err
	}
	f.Type, err = r.u16()
	return f, err
}

func (r *Reader) method() (MethodInfo, error) {
	var m MethodInfo
	var err error
	if m.Type, err = r.u8(); err != nil {
		return m, err
	}
	if m.ThisMethod, err = r.u16(); err != nil {
		return m, err
	}
	tpCount, err := r.u16()
	if err != nil {
		return m, err
	}
	m.TypeParams = sliceOf[TypeParamInfo](int(tpCount))
	for i := range m.TypeParams {
		if m.TypeParams[i].Name, err = r.u16(); err != nil {
			return m, err
		}
	}
	argsCount, err := r.u16()
	if err != nil {
		return m, err
	}
	m.Args = sliceOf[ArgInfo](int(argsCount))
	for i := range m.Args {
		if m.Args[i].Flags, err = r.u8(); err != nil {
			return m, err
		}
		if m.Args[i].ThisArg, err = r.u16(); err != nil {
			return m, err
		}
		if m.Args[i].Type, err = r.u16(); err != nil {
			return m, err
		}
	}
	localsCount, err := r.u16()
	if err != nil {
		return m, err
	}
	m.Locals = sliceOf[LocalInfo](int(localsCount))
	for i := range m.Locals {
		if m.Locals[i].Flags, err = r.u8(); err != nil {
			return m, err
		}
		if m.Locals[i].ThisLocal, err = r.u16(); err != nil {
			return m, err
		}
		if m.Locals[i].Type, err = r.u16(); err != nil {
			return m, err
		}
	}
	if m.ClosureStart, err = r.u16(); err != nil {
		return m, err
	}
	if m.MaxStack, err = r.u16(); err != nil {
		return m, err
	}
	codeCount, err := r.u32()
	if err != nil {
		return m, err
	}
	if codeCount > math.MaxUint32-1 {
		return m, r.truncated("code section too large")
	}
	if m.Code, err = r.bytes(int(codeCount)); err != nil {
		return m, err
	}
	excCount, err := r.u16()
	if err != nil {
		return m, err
	}
	m.ExceptionTable = sliceOf[ExceptionTableInfo](int(excCount))
	for i := range m.ExceptionTable {
		e := &m.ExceptionTable[i]
		if e.StartPc, err = r.u32(); err != nil {
			return m, err
		}
		if e.EndPc, err = r.u32(); err != nil {
			return m, err
		}
		if e.Target, err = r.u32(); err != nil {
			return m, err
		}
		if e.Exception, err = r.u16(); err != nil {
			return m, err
		}
	}
	lineCount, err := r.u16()
	if err != nil {
		return m, err
	}
	m.LineInfo.Numbers = sliceOf[LineNumberInfo](int(lineCount))
	for i := range m.LineInfo.Numbers {
		n := &m.LineInfo.Numbers[i]
		if n.Times, err = r.u16(); err != nil {
			return m, err
		}
		if n.Lineno, err = r.u32(); err != nil {
			return m, err
		}
	}
	lambdaCount, err := r.u16()
	if err != nil {
		return m, err
	}
	m.Lambdas = sliceOf[MethodInfo](int(lambdaCount))
	for i := range m.Lambdas {
		if m.Lambdas[i], err = r.method(); err != nil {
			return m, err
		}
	}
	matchCount, err := r.u16()
	if err != nil {
		return m, err
	}
	m.Matches = sliceOf[MatchInfo](int(matchCount))
	for i := range m.Matches {
		caseCount, err := r.u16()
		if err != nil {
			return m, err
		}
		m.Matches[i].Cases = sliceOf[CaseInfo](int(caseCount))
		for j := range m.Matches[i].Cases {
			k := &m.Matches[i].Cases[j]
			if k.Value, err = r.u16(); err != nil {
				return m, err
			}
			if k.Location, err = r.u32(); err != nil {
				return m, err
			}
		}
		if m.Matches[i].DefaultLocation, err = r.u32(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// Primitive reads.

func (r *Reader) u8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, r.eof()
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, r.eof()
	}
	v := uint16(r.data[r.pos])<<8 | uint16(r.data[r.pos+1])
	r.pos += 2
	return v, nil
}

func (r *Reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, r.eof()
	}
	v := uint32(r.data[r.pos])<<24 | uint32(r.data[r.pos+1])<<16 |
		uint32(r.data[r.pos+2])<<8 | uint32(r.data[r.pos+3])
	r.pos += 4
	return v, nil
}

func (r *Reader) u64() (uint64, error) {
	hi, err := r.u32()
	if err != nil {
		return 0, err
	}
	lo, err := r.u32()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

func (r *Reader) str() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, r.eof()
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

// sliceOf keeps zero-length sections as nil so a written module reloads
// byte- and value-identical.
func sliceOf[T any](n int) []T {
	if n == 0 {
		return nil
	}
	return make([]T, n)
}

func (r *Reader) eof() error {
	return fmt.Errorf("%s: unexpected end of file at offset %d: %w", r.path, r.pos, io.ErrUnexpectedEOF)
}

func (r *Reader) truncated(reason string) error {
	return fmt.Errorf("%s: %s at offset %d", r.path, reason, r.pos)
}
