package objects

import (
	"fmt"
	"strings"
	"sync"

	verrors "github.com/spade-lang/velocity/errors"
)

// ForeignFunction is the thin call contract the host exposes: an array of
// object references in, one object reference (or a signal) out.
type ForeignFunction func(args []Obj) (Obj, error)

// Library is a resolved native library.
type Library interface {
	Resolve(symbol string) (ForeignFunction, error)
}

// ForeignLoader resolves a library path to a Library. The platform backends
// live with the embedding host; the VM only consumes the interface and
// reports resolution failure uniformly.
type ForeignLoader interface {
	Load(path string) (Library, error)
}

// RegistryLoader is an in-process ForeignLoader backed by host-registered
// symbol tables; the default when no platform loader is installed.
type RegistryLoader struct {
	mu        sync.RWMutex
	libraries map[string]map[string]ForeignFunction
}

func NewRegistryLoader() *RegistryLoader {
	return &RegistryLoader{libraries: make(map[string]map[string]ForeignFunction)}
}

// Register installs fn as symbol of library, creating the library on first
// use.
func (l *RegistryLoader) Register(library, symbol string, fn ForeignFunction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	table, ok := l.libraries[library]
	if !ok {
		table = make(map[string]ForeignFunction)
		l.libraries[library] = table
	}
	table[symbol] = fn
}

func (l *RegistryLoader) Load(path string) (Library, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	table, ok := l.libraries[path]
	if !ok {
		return nil, verrors.NewNativeLibraryError(path, "", "library not registered")
	}
	return registryLibrary{path: path, table: table}, nil
}

type registryLibrary struct {
	path  string
	table map[string]ForeignFunction
}

func (l registryLibrary) Resolve(symbol string) (ForeignFunction, error) {
	fn, ok := l.table[symbol]
	if !ok {
		return nil, verrors.NewNativeLibraryError(l.path, symbol, "symbol not found")
	}
	return fn, nil
}

// ObjForeign is a callable whose body lives in a native library.
type ObjForeign struct {
	base
	sign    Sign
	kind    CallableKind
	library string
	name    string
	fn      ForeignFunction
}

// NewForeign allocates an unlinked foreign callable.
func NewForeign(m Manager, sign Sign, kind CallableKind, library, name string) (*ObjForeign, error) {
	return Halloc(m, &ObjForeign{sign: sign, kind: kind, library: library, name: name})
}

func (o *ObjForeign) Sign() Sign         { return o.sign }
func (o *ObjForeign) Kind() CallableKind { return o.kind }
func (o *ObjForeign) LibraryPath() string {
	return o.library
}

// SymbolName returns the native symbol, defaulting to FAI_<elements> when
// the declaration left it empty.
func (o *ObjForeign) SymbolName() string {
	if o.name != "" {
		return o.name
	}
	parts := make([]string, 0, len(o.sign.Elements())+1)
	parts = append(parts, "FAI")
	parts = append(parts, o.sign.Elements()...)
	return strings.Join(parts, "_")
}

// Link resolves the native symbol through loader. Resolution failure is a
// NativeLibraryError.
func (o *ObjForeign) Link(loader ForeignLoader) error {
	if loader == nil {
		return verrors.NewNativeLibraryError(o.library, o.SymbolName(), "no foreign loader installed")
	}
	lib, err := loader.Load(o.library)
	if err != nil {
		return err
	}
	fn, err := lib.Resolve(o.SymbolName())
	if err != nil {
		return err
	}
	o.fn = fn
	return nil
}

// LinkAnnotated pulls the library path and symbol name from the foreign
// annotation in the $annotations member, when the loader populated one,
// then links. annotationType filters which annotation instance applies; nil
// accepts any.
func (o *ObjForeign) LinkAnnotated(loader ForeignLoader, annotationType *Type) error {
	if annos, err := o.GetMember("$annotations"); err == nil {
		if arr, ok := annos.(*ObjArray); ok {
			arr.Foreach(func(anno Obj) {
				if anno == nil {
					return
				}
				if annotationType != nil && anno.Type() != annotationType {
					return
				}
				if path, err := anno.GetMember("path"); err == nil && path.String() != "" {
					o.library = path.String()
				}
				if name, err := anno.GetMember("name"); err == nil && name.String() != "" {
					o.name = name.String()
				}
			})
		}
	}
	return o.Link(loader)
}

// Invoke calls the linked native function.
func (o *ObjForeign) Invoke(args []Obj) (Obj, error) {
	if o.fn == nil {
		return nil, verrors.NewNativeLibraryError(o.library, o.SymbolName(), "foreign function not linked")
	}
	return o.fn(args)
}

// Callables are always truthy.
func (o *ObjForeign) Truth() bool { return true }

func (o *ObjForeign) String() string {
	return fmt.Sprintf("<foreign %s '%s'>", o.kind, o.sign.String())
}

// Foreign callables return themselves.
func (o *ObjForeign) Copy() (Obj, error) { return o, nil }
