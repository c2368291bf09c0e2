package elp

import (
	verrors "github.com/spade-lang/velocity/errors"
)

// Verifier checks a parsed module for basic structural standards: magic
// numbers, tag domains and index ranges. It does not check the syntax or
// semantics of the bytecode itself. A module that passes verification may be
// handed to the loader; one that fails must never be materialized.
type Verifier struct {
	elp  *ElpInfo
	path string
}

// NewVerifier wraps a parsed module.
func NewVerifier(elp *ElpInfo, path string) *Verifier {
	return &Verifier{elp: elp, path: path}
}

// Verify checks the whole module. It is side-effect free; the only failure
// mode is a CorruptFileError naming the file.
func (v *Verifier) Verify() error {
	switch v.elp.Type {
	case TypeExecutable:
		if v.elp.Magic != MagicExecutable {
			return v.corrupt()
		}
	case TypeLibrary:
		if v.elp.Magic != MagicLibrary {
			return v.corrupt()
		}
	default:
		return v.corrupt()
	}

	cpCount := uint32(len(v.elp.ConstantPool))
	for i := range v.elp.ConstantPool {
		if err := v.checkCp(&v.elp.ConstantPool[i]); err != nil {
			return err
		}
	}
	for i := range v.elp.Globals {
		if err := v.checkGlobal(&v.elp.Globals[i], cpCount); err != nil {
			return err
		}
	}
	for i := range v.elp.Objects {
		if err := v.checkObj(&v.elp.Objects[i], cpCount); err != nil {
			return err
		}
	}
	return nil
}

func (v *Verifier) checkObj(object *ObjInfo, cpCount uint32) error {
	switch object.Type {
	case ObjTagMethod:
		return v.checkMethod(object.Method, cpCount)
	case ObjTagClass:
		return v.checkClass(object.Class, cpCount)
	default:
		return v.corrupt()
	}
}

func (v *Verifier) checkClass(klass *ClassInfo, cpCount uint32) error {
	if klass.Type < 0x01 || klass.Type > 0x04 {
		return v.corrupt()
	}
	if err := v.checkRange(uint32(klass.ThisClass), cpCount); err != nil {
		return err
	}
	if err := v.checkRange(uint32(klass.Supers), cpCount); err != nil {
		return err
	}
	for i := range klass.TypeParams {
		if err := v.checkRange(uint32(klass.TypeParams[i].Name), cpCount); err != nil {
			return err
		}
	}
	for i := range klass.Fields {
		if err := v.checkField(&klass.Fields[i], cpCount); err != nil {
			return err
		}
	}
	for i := range klass.Methods {
		if err := v.checkMethod(&klass.Methods[i], cpCount); err != nil {
			return err
		}
	}
	for i := range klass.Objects {
		if err := v.checkObj(&klass.Objects[i], cpCount); err != nil {
			return err
		}
	}
	return nil
}

func (v *Verifier) checkField(field *FieldInfo, cpCount uint32) error {
	if err := v.checkRange(uint32(field.ThisField), cpCount); err != nil {
		return err
	}
	return v.checkRange(uint32(field.Type), cpCount)
}

func (v *Verifier) checkMethod(method *MethodInfo, cpCount uint32) error {
	if method.Type != 0x01 && method.Type != 0x02 {
		return v.corrupt()
	}
	if err := v.checkRange(uint32(method.ThisMethod), cpCount); err != nil {
		return err
	}
	for i := range method.TypeParams {
		if err := v.checkRange(uint32(method.TypeParams[i].Name), cpCount); err != nil {
			return err
		}
	}
	for i := range method.Args {
		if err := v.checkArg(&method.Args[i], cpCount); err != nil {
			return err
		}
	}
	for i := range method.Locals {
		if err := v.checkLocal(&method.Locals[i], cpCount); err != nil {
			return err
		}
	}
	if uint32(method.ClosureStart) > uint32(len(method.Locals)) {
		return v.corrupt()
	}
	codeCount := uint32(len(method.Code))
	if codeCount > 0 && method.MaxStack == 0 {
		return v.corrupt()
	}
	for i := range method.ExceptionTable {
		if err := v.checkException(&method.ExceptionTable[i], codeCount, cpCount); err != nil {
			return err
		}
	}
	if err := v.checkLine(&method.LineInfo, codeCount); err != nil {
		return err
	}
	for i := range method.Lambdas {
		if err := v.checkMethod(&method.Lambdas[i], cpCount); err != nil {
			return err
		}
	}
	for i := range method.Matches {
		if err := v.checkMatch(&method.Matches[i], codeCount, cpCount); err != nil {
			return err
		}
	}
	return nil
}

func (v *Verifier) checkMatch(info *MatchInfo, codeCount, cpCount uint32) error {
	for i := range info.Cases {
		kase := &info.Cases[i]
		if err := v.checkRange(uint32(kase.Value), cpCount); err != nil {
			return err
		}
		if err := v.checkRange(kase.Location, codeCount); err != nil {
			return err
		}
	}
	return v.checkRange(info.DefaultLocation, codeCount)
}

func (v *Verifier) checkLocal(local *LocalInfo, cpCount uint32) error {
	if err := v.checkRange(uint32(local.ThisLocal), cpCount); err != nil {
		return err
	}
	return v.checkRange(uint32(local.Type), cpCount)
}

// checkLine verifies that the run-length line numbers cover no more bytes
// than the method has. Code counts are 32-bit throughout; the sum runs in 64
// bits so it cannot wrap.
func (v *Verifier) checkLine(line *LineInfo, codeCount uint32) error {
	var totalByteLines uint64
	for i := range line.Numbers {
		totalByteLines += uint64(line.Numbers[i].Times)
	}
	if totalByteLines > uint64(codeCount) {
		return v.corrupt()
	}
	return nil
}

func (v *Verifier) checkException(exception *ExceptionTableInfo, codeCount, cpCount uint32) error {
	if exception.StartPc > exception.EndPc {
		return v.corrupt()
	}
	if exception.EndPc > codeCount {
		return v.corrupt()
	}
	if err := v.checkRange(exception.Target, codeCount); err != nil {
		return err
	}
	return v.checkRange(uint32(exception.Exception), cpCount)
}

func (v *Verifier) checkArg(arg *ArgInfo, cpCount uint32) error {
	if err := v.checkRange(uint32(arg.ThisArg), cpCount); err != nil {
		return err
	}
	return v.checkRange(uint32(arg.Type), cpCount)
}

func (v *Verifier) checkGlobal(global *GlobalInfo, cpCount uint32) error {
	if global.Flags != 0x01 && global.Flags != 0x02 {
		return v.corrupt()
	}
	if err := v.checkRange(uint32(global.ThisGlobal), cpCount); err != nil {
		return err
	}
	return v.checkRange(uint32(global.Type), cpCount)
}

// checkRange is the single verification primitive: i < count or corrupt.
func (v *Verifier) checkRange(i, count uint32) error {
	if i >= count {
		return v.corrupt()
	}
	return nil
}

func (v *Verifier) checkCp(info *CpInfo) error {
	if info.Tag > CpArray {
		return v.corrupt()
	}
	if info.Tag == CpArray {
		for i := range info.Array {
			if err := v.checkCp(&info.Array[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Verifier) corrupt() error {
	return verrors.NewCorruptFileError(v.path)
}
