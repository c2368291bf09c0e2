package objects

import (
	"fmt"
)

// ObjModule is a loaded module: a name-to-object table of everything it
// exports plus its materialized constant pool.
type ObjModule struct {
	base
	sign Sign
	path string
	pool []Obj
}

// NewModule allocates an empty module shell; the loader populates the pool
// and the export slots afterwards so circular imports can resolve.
func NewModule(m Manager, sign Sign, path string) (*ObjModule, error) {
	return Halloc(m, &ObjModule{sign: sign, path: path})
}

func (o *ObjModule) Sign() Sign   { return o.sign }
func (o *ObjModule) Path() string { return o.path }

// Name returns the module's short name.
func (o *ObjModule) Name() string {
	return o.sign.Member()
}

// Pool returns the materialized constant pool.
func (o *ObjModule) Pool() []Obj {
	return o.pool
}

// SetPool installs the materialized constant pool; write-once at load time.
func (o *ObjModule) SetPool(pool []Obj) {
	o.pool = pool
}

func (o *ObjModule) Truth() bool { return true }

func (o *ObjModule) String() string {
	return fmt.Sprintf("<module %s>", o.sign.String())
}

func (o *ObjModule) Copy() (Obj, error) { return o, nil }
