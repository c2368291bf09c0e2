package objects

import (
	"fmt"
)

// CallableKind discriminates the callable variants.
type CallableKind uint8

const (
	KindFunction CallableKind = iota
	KindMethod
	KindConstructor
	KindForeign
)

func (k CallableKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindMethod:
		return "method"
	case KindConstructor:
		return "constructor"
	case KindForeign:
		return "foreign"
	default:
		return "callable"
	}
}

// Arg is one formal argument slot of a frame template.
type Arg struct {
	Name  string
	Typ   *Type
	Value Obj
}

// Local is one local slot of a frame template.
type Local struct {
	Name  string
	Typ   *Type
	Value Obj
}

// Cell is a shared closure slot. Locals at or above the closure start are
// reached through a cell so lambdas observe mutation.
type Cell struct {
	Value Obj
}

// LocalsTable holds the locals of a method, split at ClosureStart: slots
// below it are plain locals, slots at or above are closure cells.
type LocalsTable struct {
	Locals       []Local
	ClosureStart int
}

func (t *LocalsTable) Count() int {
	return len(t.Locals)
}

// ExceptionEntry is one handler: the pc range it covers, the handler target
// and the caught type.
type ExceptionEntry struct {
	From, To uint32
	Target   uint32
	Caught   *Type
}

// ExceptionTable is a per-method ordered handler list.
type ExceptionTable struct {
	Entries []ExceptionEntry
}

// FindHandler returns the innermost entry whose pc range covers pc and
// whose declared type is a super of thrown (a nil declared type catches
// everything).
func (t *ExceptionTable) FindHandler(pc uint32, thrown *Type) (ExceptionEntry, bool) {
	for _, entry := range t.Entries {
		if pc < entry.From || pc >= entry.To {
			continue
		}
		if entry.Caught == nil {
			return entry, true
		}
		if thrown != nil && thrown.IsAssignableTo(entry.Caught) {
			return entry, true
		}
	}
	return ExceptionEntry{}, false
}

// LineEntry says the next Times code bytes belong to source line Lineno.
type LineEntry struct {
	Times  uint16
	Lineno uint32
}

// LineTable maps code offsets to source lines via run lengths.
type LineTable struct {
	Entries []LineEntry
}

// LineAt returns the source line of the code byte at pc, or 0 when unmapped.
func (t *LineTable) LineAt(pc uint32) uint32 {
	var covered uint32
	for _, entry := range t.Entries {
		covered += uint32(entry.Times)
		if pc < covered {
			return entry.Lineno
		}
	}
	return 0
}

// MatchCase maps a constant value to a code offset.
type MatchCase struct {
	Key      Obj
	Location uint32
}

// MatchTable is a per-method multiway branch: constant keys to code
// offsets, with a default offset.
type MatchTable struct {
	Cases       []MatchCase
	DefaultLoc  uint32
}

// Lookup returns the location of the case structurally equal to subject,
// or the default location.
func (t *MatchTable) Lookup(subject Obj) uint32 {
	for _, kase := range t.Cases {
		if Equals(kase.Key, subject) {
			return kase.Location
		}
	}
	return t.DefaultLoc
}

// FrameTemplate is the static, shared description of a method's activation
// shape: its code, stack budget, argument and local layout, handler and
// match tables, and the module constant pool the code indexes into.
type FrameTemplate struct {
	args       []Arg
	locals     LocalsTable
	exceptions ExceptionTable
	lines      LineTable
	matches    []MatchTable
	lambdas    []*ObjMethod
	maxStack   uint32
	code       []byte
	pool       []Obj
}

// NewFrameTemplate assembles a template; the loader is the only caller.
func NewFrameTemplate(args []Arg, locals LocalsTable, exceptions ExceptionTable,
	lines LineTable, matches []MatchTable, lambdas []*ObjMethod,
	maxStack uint32, code []byte, pool []Obj) *FrameTemplate {
	return &FrameTemplate{
		args:       args,
		locals:     locals,
		exceptions: exceptions,
		lines:      lines,
		matches:    matches,
		lambdas:    lambdas,
		maxStack:   maxStack,
		code:       code,
		pool:       pool,
	}
}

func (t *FrameTemplate) Args() []Arg                 { return t.args }
func (t *FrameTemplate) Locals() *LocalsTable        { return &t.locals }
func (t *FrameTemplate) Exceptions() *ExceptionTable { return &t.exceptions }
func (t *FrameTemplate) Lines() *LineTable           { return &t.lines }
func (t *FrameTemplate) Matches() []MatchTable       { return t.matches }
func (t *FrameTemplate) Lambdas() []*ObjMethod       { return t.lambdas }
func (t *FrameTemplate) MaxStack() uint32            { return t.maxStack }
func (t *FrameTemplate) Code() []byte                { return t.code }
func (t *FrameTemplate) Pool() []Obj                 { return t.pool }

// ObjMethod is a compiled callable. It owns its frame template; every
// invocation instantiates a fresh frame from it.
type ObjMethod struct {
	base
	sign       Sign
	kind       CallableKind
	template   *FrameTemplate
	typeParams map[string]*TypeParam
}

// NewMethod allocates a method around its template.
func NewMethod(m Manager, sign Sign, kind CallableKind, template *FrameTemplate) (*ObjMethod, error) {
	return Halloc(m, &ObjMethod{
		sign:       sign,
		kind:       kind,
		template:   template,
		typeParams: make(map[string]*TypeParam),
	})
}

func (o *ObjMethod) Sign() Sign               { return o.sign }
func (o *ObjMethod) Kind() CallableKind       { return o.kind }
func (o *ObjMethod) Template() *FrameTemplate { return o.template }

func (o *ObjMethod) TypeParams() map[string]*TypeParam {
	return o.typeParams
}

func (o *ObjMethod) AddTypeParam(param *TypeParam) {
	o.typeParams[param.Name()] = param
}

// Callables are always truthy.
func (o *ObjMethod) Truth() bool { return true }

func (o *ObjMethod) String() string {
	return fmt.Sprintf("<%s '%s'>", o.kind, o.sign.String())
}

func (o *ObjMethod) Copy() (Obj, error) { return o, nil }
