// Package elp models the on-disk Spade module format and its structural
// verifier. The record layout mirrors the file byte-for-byte; all multi-byte
// integers are big-endian.
package elp

// Magic numbers, selected by the file type tag.
const (
	MagicExecutable = 0xc0ffeede // type 0x01
	MagicLibrary    = 0x6020cafe // type 0x02
)

// File type tags.
const (
	TypeExecutable = 0x01
	TypeLibrary    = 0x02
)

// Constant pool tags.
const (
	CpNull   = 0x00
	CpTrue   = 0x01
	CpFalse  = 0x02
	CpChar   = 0x03
	CpInt    = 0x04
	CpFloat  = 0x05
	CpString = 0x06
	CpArray  = 0x07
)

// Object tags.
const (
	ObjTagMethod = 0x01
	ObjTagClass  = 0x02
)

// ElpInfo is the root record of a module file.
type ElpInfo struct {
	Magic        uint32
	Type         uint8
	ConstantPool []CpInfo
	Globals      []GlobalInfo
	Objects      []ObjInfo
}

// CpInfo is one constant pool entry. Exactly one payload field is meaningful,
// selected by Tag.
type CpInfo struct {
	Tag    uint8
	Char   uint32 // CpChar: unicode code point
	Int    int64  // CpInt
	Float  uint64 // CpFloat: IEEE-754 bits
	String string // CpString
	Array  []CpInfo
}

// GlobalInfo declares a module-level variable or constant.
type GlobalInfo struct {
	Flags      uint8 // 0x01 var, 0x02 const
	ThisGlobal uint16
	Type       uint16
}

// ObjInfo is a tagged union of the two top-level object kinds.
type ObjInfo struct {
	Type   uint8
	Method *MethodInfo
	Class  *ClassInfo
}

// ClassInfo describes a class, interface, enum or annotation.
type ClassInfo struct {
	Type       uint8 // 0x01 class, 0x02 interface, 0x03 enum, 0x04 annotation
	ThisClass  uint16
	Supers     uint16
	TypeParams []TypeParamInfo
	Fields     []FieldInfo
	Methods    []MethodInfo
	Objects    []ObjInfo
}

// FieldInfo describes one declared field of a class.
type FieldInfo struct {
	Flags     uint8
	ThisField uint16
	Type      uint16
}

// TypeParamInfo names one type parameter.
type TypeParamInfo struct {
	Name uint16
}

// MethodInfo describes a method or function, including its code and the
// static tables that back its frame template.
type MethodInfo struct {
	Type           uint8 // 0x01 function, 0x02 method
	ThisMethod     uint16
	TypeParams     []TypeParamInfo
	Args           []ArgInfo
	Locals         []LocalInfo
	ClosureStart   uint16
	MaxStack       uint16
	Code           []byte
	ExceptionTable []ExceptionTableInfo
	LineInfo       LineInfo
	Lambdas        []MethodInfo
	Matches        []MatchInfo
}

// ArgInfo describes one formal argument.
type ArgInfo struct {
	Flags   uint8
	ThisArg uint16
	Type    uint16
}

// LocalInfo describes one local slot. Slots at or above the enclosing
// method's ClosureStart are closure cells.
type LocalInfo struct {
	Flags     uint8
	ThisLocal uint16
	Type      uint16
}

// ExceptionTableInfo is one handler entry: the pc range it covers, the
// handler target and the caught type's pool index.
type ExceptionTableInfo struct {
	StartPc   uint32
	EndPc     uint32
	Target    uint32
	Exception uint16
}

// LineInfo is the run-length encoded bytecode-to-source-line mapping.
type LineInfo struct {
	Numbers []LineNumberInfo
}

// LineNumberInfo says that the next Times code bytes belong to source line
// Lineno.
type LineNumberInfo struct {
	Times  uint16
	Lineno uint32
}

// MatchInfo is one multiway-branch table.
type MatchInfo struct {
	Cases           []CaseInfo
	DefaultLocation uint32
}

// CaseInfo maps a constant pool value to a code offset.
type CaseInfo struct {
	Value    uint16
	Location uint32
}
