package vm

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spade-lang/velocity/elp"
	verrors "github.com/spade-lang/velocity/errors"
	"github.com/spade-lang/velocity/objects"
)

// Booter materializes runtime objects from verified module records and
// registers them with the VM. The module is inserted into the module table
// before its members are populated, so circular imports resolve.
type Booter struct {
	vm *SpadeVM

	// deferred symbol links, applied once the whole record tree exists
	links []typeLink
}

type typeLink struct {
	sign   string
	assign func(*objects.Type)
}

// NewBooter returns a loader bound to vm.
func NewBooter(vm *SpadeVM) *Booter {
	return &Booter{vm: vm}
}

// Load reads, verifies and materializes the module file at path.
func (b *Booter) Load(path string) (*objects.ObjModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := elp.NewReader(data, path).Read()
	if err != nil {
		return nil, verrors.NewCorruptFileError(path)
	}
	if err := elp.NewVerifier(info, path).Verify(); err != nil {
		return nil, err
	}
	return b.LoadInfo(info, path)
}

// LoadInfo materializes an already verified record tree. Nothing in info is
// trusted beyond what the verifier guarantees.
func (b *Booter) LoadInfo(info *elp.ElpInfo, path string) (*objects.ObjModule, error) {
	name := moduleName(path)
	sign, err := objects.ParseSign(name)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", path, err)
	}

	manager := b.vm.manager
	module, err := objects.NewModule(manager, sign, path)
	if err != nil {
		return nil, err
	}
	// register before member population so circular imports can resolve
	b.vm.RegisterModule(module)

	pool := make([]objects.Obj, len(info.ConstantPool))
	for i := range info.ConstantPool {
		pool[i], err = b.makeConstant(&info.ConstantPool[i], module)
		if err != nil {
			return nil, err
		}
	}
	module.SetPool(pool)

	null, err := objects.NewNull(manager)
	if err != nil {
		return nil, err
	}
	null.SetModule(module)

	for i := range info.Globals {
		if err := b.makeGlobal(&info.Globals[i], pool, module, null); err != nil {
			return nil, err
		}
	}
	for i := range info.Objects {
		if err := b.makeObject(&info.Objects[i], pool, module, module, null); err != nil {
			return nil, err
		}
	}

	b.link()
	return module, nil
}

// link applies the deferred type references. Resolution is lenient: a
// symbol that never materializes leaves the slot empty.
func (b *Booter) link() {
	pending := b.links
	b.links = nil
	for _, l := range pending {
		symbol, err := b.vm.GetSymbol(l.sign, false)
		if err != nil {
			continue
		}
		if typ, ok := symbol.(*objects.Type); ok {
			l.assign(typ)
		}
	}
}

func (b *Booter) makeConstant(info *elp.CpInfo, module *objects.ObjModule) (objects.Obj, error) {
	manager := b.vm.manager
	var obj objects.Obj
	var err error
	switch info.Tag {
	case elp.CpNull:
		obj, err = objects.NewNull(manager)
	case elp.CpTrue:
		obj, err = objects.NewBool(manager, true)
	case elp.CpFalse:
		obj, err = objects.NewBool(manager, false)
	case elp.CpChar:
		obj, err = objects.NewChar(manager, rune(info.Char))
	case elp.CpInt:
		obj, err = objects.NewInt(manager, info.Int)
	case elp.CpFloat:
		obj, err = objects.NewFloat(manager, math.Float64frombits(info.Float))
	case elp.CpString:
		obj, err = objects.NewString(manager, info.String)
	case elp.CpArray:
		elements := make([]objects.Obj, len(info.Array))
		for i := range info.Array {
			if elements[i], err = b.makeConstant(&info.Array[i], module); err != nil {
				return nil, err
			}
		}
		obj, err = objects.NewArrayOf(manager, elements)
	default:
		return nil, verrors.NewCorruptFileError(module.Path())
	}
	if err != nil {
		return nil, err
	}
	obj.SetModule(module)
	return obj, nil
}

func (b *Booter) makeGlobal(info *elp.GlobalInfo, pool []objects.Obj, module *objects.ObjModule, null objects.Obj) error {
	sign, err := b.poolSign(pool, info.ThisGlobal, module)
	if err != nil {
		return err
	}
	module.DeclareMember(sign.Member(), null, info.Flags == 0x02)
	return nil
}

func (b *Booter) makeObject(info *elp.ObjInfo, pool []objects.Obj, module *objects.ObjModule, container interface {
	DeclareMember(name string, value objects.Obj, constant bool)
}, null objects.Obj) error {
	switch info.Type {
	case elp.ObjTagMethod:
		method, err := b.makeMethod(info.Method, pool, module, null)
		if err != nil {
			return err
		}
		container.DeclareMember(method.Sign().Member(), method, true)
	case elp.ObjTagClass:
		typ, err := b.makeClass(info.Class, pool, module, null)
		if err != nil {
			return err
		}
		container.DeclareMember(typ.Sign().Member(), typ, true)
	}
	return nil
}

func (b *Booter) makeClass(info *elp.ClassInfo, pool []objects.Obj, module *objects.ObjModule, null objects.Obj) (*objects.Type, error) {
	manager := b.vm.manager
	sign, err := b.poolSign(pool, info.ThisClass, module)
	if err != nil {
		return nil, err
	}
	typ, err := objects.NewType(manager, sign, objects.TypeKind(info.Type))
	if err != nil {
		return nil, err
	}
	typ.SetModule(module)

	for i := range info.TypeParams {
		name, err := b.poolString(pool, info.TypeParams[i].Name, module)
		if err != nil {
			return nil, err
		}
		param, err := objects.NewTypeParam(manager, name)
		if err != nil {
			return nil, err
		}
		param.SetModule(module)
		typ.AddTypeParam(param)
	}

	// the supers pool entry is either one sign or an array of signs
	if err := b.eachSuperSign(pool, info.Supers, module, func(superSign string) {
		b.links = append(b.links, typeLink{sign: superSign, assign: func(super *objects.Type) {
			typ.AddSuper(super.Sign().Member(), super)
		}})
	}); err != nil {
		return nil, err
	}

	for i := range info.Fields {
		fieldSign, err := b.poolSign(pool, info.Fields[i].ThisField, module)
		if err != nil {
			return nil, err
		}
		typ.DeclareMember(fieldSign.Member(), null, info.Fields[i].Flags == 0x02)
	}
	for i := range info.Methods {
		method, err := b.makeMethod(&info.Methods[i], pool, module, null)
		if err != nil {
			return nil, err
		}
		typ.DeclareMember(method.Sign().Member(), method, true)
	}
	for i := range info.Objects {
		if err := b.makeObject(&info.Objects[i], pool, module, typ, null); err != nil {
			return nil, err
		}
	}
	return typ, nil
}

func (b *Booter) makeMethod(info *elp.MethodInfo, pool []objects.Obj, module *objects.ObjModule, null objects.Obj) (*objects.ObjMethod, error) {
	manager := b.vm.manager
	sign, err := b.poolSign(pool, info.ThisMethod, module)
	if err != nil {
		return nil, err
	}

	args := make([]objects.Arg, len(info.Args))
	for i := range info.Args {
		argSign, err := b.poolSign(pool, info.Args[i].ThisArg, module)
		if err != nil {
			return nil, err
		}
		args[i] = objects.Arg{Name: argSign.Member()}
		typeSign, err := b.poolString(pool, info.Args[i].Type, module)
		if err != nil {
			return nil, err
		}
		index := i
		b.links = append(b.links, typeLink{sign: typeSign, assign: func(t *objects.Type) {
			args[index].Typ = t
		}})
	}

	locals := objects.LocalsTable{
		Locals:       make([]objects.Local, len(info.Locals)),
		ClosureStart: int(info.ClosureStart),
	}
	for i := range info.Locals {
		localSign, err := b.poolSign(pool, info.Locals[i].ThisLocal, module)
		if err != nil {
			return nil, err
		}
		locals.Locals[i] = objects.Local{Name: localSign.Member(), Value: null}
		typeSign, err := b.poolString(pool, info.Locals[i].Type, module)
		if err != nil {
			return nil, err
		}
		index := i
		b.links = append(b.links, typeLink{sign: typeSign, assign: func(t *objects.Type) {
			locals.Locals[index].Typ = t
		}})
	}

	exceptions := objects.ExceptionTable{
		Entries: make([]objects.ExceptionEntry, len(info.ExceptionTable)),
	}
	for i := range info.ExceptionTable {
		e := &info.ExceptionTable[i]
		exceptions.Entries[i] = objects.ExceptionEntry{
			From:   e.StartPc,
			To:     e.EndPc,
			Target: e.Target,
		}
		caughtSign, err := b.poolString(pool, e.Exception, module)
		if err != nil {
			return nil, err
		}
		index := i
		b.links = append(b.links, typeLink{sign: caughtSign, assign: func(t *objects.Type) {
			exceptions.Entries[index].Caught = t
		}})
	}

	lines := objects.LineTable{
		Entries: make([]objects.LineEntry, len(info.LineInfo.Numbers)),
	}
	for i, n := range info.LineInfo.Numbers {
		lines.Entries[i] = objects.LineEntry{Times: n.Times, Lineno: n.Lineno}
	}

	matches := make([]objects.MatchTable, len(info.Matches))
	for i := range info.Matches {
		cases := make([]objects.MatchCase, len(info.Matches[i].Cases))
		for j, kase := range info.Matches[i].Cases {
			cases[j] = objects.MatchCase{Key: pool[kase.Value], Location: kase.Location}
		}
		matches[i] = objects.MatchTable{Cases: cases, DefaultLoc: info.Matches[i].DefaultLocation}
	}

	lambdas := make([]*objects.ObjMethod, len(info.Lambdas))
	for i := range info.Lambdas {
		lambda, err := b.makeMethod(&info.Lambdas[i], pool, module, null)
		if err != nil {
			return nil, err
		}
		lambdas[i] = lambda
	}

	code := make([]byte, len(info.Code))
	copy(code, info.Code)

	template := objects.NewFrameTemplate(args, locals, exceptions, lines,
		matches, lambdas, uint32(info.MaxStack), code, pool)

	kind := objects.KindFunction
	if info.Type == 0x02 {
		kind = objects.KindMethod
	}
	if sign.Member() == "<init>" {
		kind = objects.KindConstructor
	}
	method, err := objects.NewMethod(manager, sign, kind, template)
	if err != nil {
		return nil, err
	}
	method.SetModule(module)

	for i := range info.TypeParams {
		name, err := b.poolString(pool, info.TypeParams[i].Name, module)
		if err != nil {
			return nil, err
		}
		param, err := objects.NewTypeParam(manager, name)
		if err != nil {
			return nil, err
		}
		param.SetModule(module)
		method.AddTypeParam(param)
	}
	return method, nil
}

func (b *Booter) eachSuperSign(pool []objects.Obj, index uint16, module *objects.ObjModule, visit func(string)) error {
	switch entry := pool[index].(type) {
	case *objects.ObjString:
		if entry.Value() != "" {
			visit(entry.Value())
		}
	case *objects.ObjArray:
		var bad error
		entry.Foreach(func(elem objects.Obj) {
			s, ok := elem.(*objects.ObjString)
			if !ok {
				bad = verrors.NewCorruptFileError(module.Path())
				return
			}
			visit(s.Value())
		})
		return bad
	case *objects.ObjNull:
		// no supers
	default:
		return verrors.NewCorruptFileError(module.Path())
	}
	return nil
}

func (b *Booter) poolString(pool []objects.Obj, index uint16, module *objects.ObjModule) (string, error) {
	s, ok := pool[index].(*objects.ObjString)
	if !ok {
		return "", verrors.NewCorruptFileError(module.Path())
	}
	return s.Value(), nil
}

func (b *Booter) poolSign(pool []objects.Obj, index uint16, module *objects.ObjModule) (objects.Sign, error) {
	text, err := b.poolString(pool, index, module)
	if err != nil {
		return objects.Sign{}, err
	}
	sign, err := objects.ParseSign(text)
	if err != nil {
		return objects.Sign{}, fmt.Errorf("module %s: %w", module.Path(), err)
	}
	return sign, nil
}

func moduleName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
