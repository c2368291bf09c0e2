// Package vm implements the Velocity execution engine: per-thread frames
// and state, the bytecode dispatch loop, the loader and the VM orchestrator
// tying modules, threads and the managed heap together.
package vm

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	verrors "github.com/spade-lang/velocity/errors"
	"github.com/spade-lang/velocity/objects"
)

const signCacheSize = 256

// SpadeVM is the orchestrator: it owns the module table, the thread set,
// the memory manager, the settings and the loader, and drives the dispatch
// loop.
type SpadeVM struct {
	mu      sync.RWMutex
	modules map[string]*objects.ObjModule
	threads map[*Thread]struct{}

	loader  *Booter
	manager objects.Manager

	settings Settings
	onExit   []func()
	metadata map[string]map[string]string

	outMu  sync.Mutex
	out    io.Writer
	outBuf *bytes.Buffer

	signCache *lru.Cache

	foreign objects.ForeignLoader

	// world is the stop-the-world barrier: mutators hold it shared for the
	// duration of one opcode, the collector takes it exclusively.
	world sync.RWMutex
}

// New constructs a VM around manager. The inbuilt types from the settings
// are materialized immediately so loaded modules can link against them.
func New(manager objects.Manager, settings Settings) (*SpadeVM, error) {
	if settings.StackDepth <= 0 {
		settings.StackDepth = DefaultSettings().StackDepth
	}
	if settings.EntryName == "" {
		settings.EntryName = DefaultSettings().EntryName
	}
	cache, err := lru.New(signCacheSize)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	vm := &SpadeVM{
		modules:   make(map[string]*objects.ObjModule),
		threads:   make(map[*Thread]struct{}),
		manager:   manager,
		settings:  settings,
		metadata:  make(map[string]map[string]string),
		out:       buf,
		outBuf:    buf,
		signCache: cache,
		foreign:   objects.NewRegistryLoader(),
	}
	vm.loader = NewBooter(vm)
	if roots, ok := manager.(interface{ SetRoots(objects.RootSet) }); ok {
		roots.SetRoots(vm)
	}
	if limits, ok := manager.(interface{ SetLimit(uint64) }); ok && settings.HeapLimit > 0 {
		limits.SetLimit(settings.HeapLimit)
	}
	if err := vm.bootstrapInbuilt(); err != nil {
		return nil, err
	}
	return vm, nil
}

// bootstrapInbuilt materializes the builtin type set, grouped by module.
func (vm *SpadeVM) bootstrapInbuilt() error {
	for _, text := range vm.settings.InbuiltTypes {
		sign, err := objects.ParseSign(text)
		if err != nil {
			return err
		}
		moduleName := sign.Module()
		if moduleName == "" && len(sign.TypePath()) > 0 {
			moduleName = sign.TypePath()[0]
		}
		module := vm.module(moduleName)
		if module == nil {
			moduleSign, err := objects.ParseSign(moduleName)
			if err != nil {
				return err
			}
			if module, err = objects.NewModule(vm.manager, moduleSign, ""); err != nil {
				return err
			}
			vm.RegisterModule(module)
		}
		typ, err := objects.NewType(vm.manager, sign, objects.KindClass)
		if err != nil {
			return err
		}
		typ.SetModule(module)
		module.DeclareMember(sign.Member(), typ, true)
	}
	return nil
}

// Manager returns the memory manager.
func (vm *SpadeVM) Manager() objects.Manager {
	return vm.manager
}

// Settings returns the vm settings.
func (vm *SpadeVM) Settings() *Settings {
	return &vm.settings
}

// Loader returns the module loader.
func (vm *SpadeVM) Loader() *Booter {
	return vm.loader
}

// ForeignLoader returns the installed foreign loader.
func (vm *SpadeVM) ForeignLoader() objects.ForeignLoader {
	return vm.foreign
}

// SetForeignLoader replaces the foreign loader backend.
func (vm *SpadeVM) SetForeignLoader(loader objects.ForeignLoader) {
	vm.foreign = loader
}

// RegisterModule inserts module into the module table, keyed by name.
func (vm *SpadeVM) RegisterModule(module *objects.ObjModule) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.modules[module.Name()] = module
	vm.signCache.Purge()
}

// Modules snapshots the module table.
func (vm *SpadeVM) Modules() map[string]*objects.ObjModule {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make(map[string]*objects.ObjModule, len(vm.modules))
	for name, module := range vm.modules {
		out[name] = module
	}
	return out
}

func (vm *SpadeVM) module(name string) *objects.ObjModule {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.modules[name]
}

func (vm *SpadeVM) addThread(t *Thread) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.threads[t] = struct{}{}
}

// Threads snapshots the vm's thread set.
func (vm *SpadeVM) Threads() []*Thread {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	out := make([]*Thread, 0, len(vm.threads))
	for t := range vm.threads {
		out = append(out, t)
	}
	return out
}

// OnExit registers an action to run when the vm terminates.
func (vm *SpadeVM) OnExit(fun func()) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.onExit = append(vm.onExit, fun)
}

func (vm *SpadeVM) runExitHooks() {
	vm.mu.RLock()
	hooks := make([]func(), len(vm.onExit))
	copy(hooks, vm.onExit)
	vm.mu.RUnlock()
	for _, hook := range hooks {
		hook()
	}
}

// Metadata returns the metadata table of the symbol named by sign.
func (vm *SpadeVM) Metadata(sign string) map[string]string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.metadata[sign]
}

// SetMetadata replaces the metadata table of the symbol named by sign.
func (vm *SpadeVM) SetMetadata(sign string, meta map[string]string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.metadata[sign] = meta
}

// SetOutput redirects program output.
func (vm *SpadeVM) SetOutput(w io.Writer) {
	vm.outMu.Lock()
	defer vm.outMu.Unlock()
	vm.out = w
	vm.outBuf = nil
}

// Write appends to the program output.
func (vm *SpadeVM) Write(s string) {
	vm.outMu.Lock()
	defer vm.outMu.Unlock()
	io.WriteString(vm.out, s)
}

// Output returns everything written so far when the vm still writes to its
// internal buffer.
func (vm *SpadeVM) Output() string {
	vm.outMu.Lock()
	defer vm.outMu.Unlock()
	if vm.outBuf == nil {
		return ""
	}
	return vm.outBuf.String()
}

// GetSymbol resolves a signature to its value: module path, then type path,
// then member, then type-parameter arity and parameter structure. With
// strict set, an unresolved symbol is an IllegalAccessError; otherwise nil
// is returned. A malformed signature is an IllegalAccessError in either mode.
func (vm *SpadeVM) GetSymbol(text string, strict bool) (objects.Obj, error) {
	if cached, ok := vm.signCache.Get(text); ok {
		return cached.(objects.Obj), nil
	}
	sign, err := objects.ParseSign(text)
	if err != nil {
		return nil, verrors.NewIllegalAccessError("cannot find symbol: %s", text)
	}

	moduleName := sign.Module()
	typePath := sign.TypePath()
	if moduleName == "" && len(typePath) > 0 {
		moduleName = typePath[0]
		typePath = typePath[1:]
	}
	module := vm.module(moduleName)
	if module == nil {
		module = vm.loadFromModPath(moduleName)
	}
	if module == nil {
		return vm.unresolved(text, strict)
	}

	var current objects.Obj = module
	for _, segment := range typePath {
		next, err := current.GetMember(segment)
		if err != nil {
			return vm.unresolved(text, strict)
		}
		current = next
	}
	value, err := current.GetMember(sign.Member())
	if err != nil {
		return vm.unresolved(text, strict)
	}
	if !signMatches(sign, value) {
		return vm.unresolved(text, strict)
	}
	vm.signCache.Add(text, value)
	return value, nil
}

// signMatches checks type-parameter arity and structural parameter
// equality when the signature spells them out.
func signMatches(sign objects.Sign, value objects.Obj) bool {
	method, ok := value.(*objects.ObjMethod)
	if !ok {
		return true
	}
	if len(sign.TypeParams()) > 0 && len(sign.TypeParams()) != len(method.TypeParams()) {
		return false
	}
	if sign.HasParams() {
		declared := method.Sign().Params()
		given := sign.Params()
		if len(declared) != len(given) {
			return false
		}
		for i := range declared {
			if declared[i] != given[i] {
				return false
			}
		}
	}
	return true
}

func (vm *SpadeVM) unresolved(text string, strict bool) (objects.Obj, error) {
	if strict {
		return nil, verrors.NewIllegalAccessError("cannot find symbol: %s", text)
	}
	return nil, nil
}

// loadFromModPath tries to load <name>.elp from the module search path.
func (vm *SpadeVM) loadFromModPath(name string) *objects.ObjModule {
	if name == "" {
		return nil
	}
	for _, dir := range vm.settings.ModPath {
		module, err := vm.loader.Load(fmt.Sprintf("%s/%s.elp", dir, name))
		if err == nil {
			return module
		}
	}
	return nil
}

// SetSymbol sets the value of the symbol named by sign.
func (vm *SpadeVM) SetSymbol(text string, value objects.Obj) error {
	sign, err := objects.ParseSign(text)
	if err != nil {
		return verrors.NewIllegalAccessError("cannot find symbol: %s", text)
	}
	moduleName := sign.Module()
	typePath := sign.TypePath()
	if moduleName == "" && len(typePath) > 0 {
		moduleName = typePath[0]
		typePath = typePath[1:]
	}
	module := vm.module(moduleName)
	if module == nil {
		return verrors.NewIllegalAccessError("cannot find symbol: %s", text)
	}
	var current objects.Obj = module
	for _, segment := range typePath {
		next, err := current.GetMember(segment)
		if err != nil {
			return verrors.NewIllegalAccessError("cannot find symbol: %s", text)
		}
		current = next
	}
	if err := current.SetMember(sign.Member(), value); err != nil {
		return err
	}
	vm.signCache.Remove(text)
	return nil
}

// CheckCast reports casting compatibility between two types through the
// supers chain, in either direction.
func CheckCast(type1, type2 *objects.Type) bool {
	if type1 == nil || type2 == nil {
		return false
	}
	return type1.IsAssignableTo(type2) || type2.IsAssignableTo(type1)
}

// RuntimeError allocates a throwable string value; language-level code can
// catch it like any thrown object.
func (vm *SpadeVM) RuntimeError(format string, args ...any) error {
	message, err := objects.NewString(vm.manager, fmt.Sprintf(format, args...))
	if err != nil {
		return err
	}
	return Throw(message)
}

// CollectGarbage stops the world and runs the manager's collector on the
// calling thread.
func (vm *SpadeVM) CollectGarbage() {
	vm.world.Lock()
	defer vm.world.Unlock()
	vm.manager.CollectGarbage()
}

// maybeCollect is the method-entry safe point.
func (vm *SpadeVM) maybeCollect() {
	threshold := vm.settings.GCThreshold
	if threshold == 0 {
		return
	}
	if used, ok := vm.manager.(interface{ UsedSize() uint64 }); ok && used.UsedSize() >= threshold {
		vm.CollectGarbage()
	}
}

// EnumerateRoots walks every root object: the module table and, for every
// live thread, its representative value and every frame between the stack
// base and the current frame pointer.
func (vm *SpadeVM) EnumerateRoots(mark func(objects.Obj)) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, module := range vm.modules {
		mark(module)
	}
	for t := range vm.threads {
		if value := t.Value(); value != nil {
			mark(value)
		}
		state := t.State()
		for i := 0; i < state.CallStackSize(); i++ {
			markFrame(state.frameAt(i), mark)
		}
	}
}

// markFrame enumerates one frame's root slots: the pool, the live operand
// stack, args, plain locals, closure cell values, declared exception types,
// match case keys and the method itself.
func markFrame(frame *Frame, mark func(objects.Obj)) {
	for _, constant := range frame.pool {
		mark(constant)
	}
	for i := 0; i < frame.sp; i++ {
		mark(frame.stack[i])
	}
	for _, arg := range frame.args {
		mark(arg)
	}
	for _, local := range frame.locals {
		mark(local)
	}
	for _, cell := range frame.cells {
		mark(cell.Value)
	}
	for _, entry := range frame.exceptions.Entries {
		if entry.Caught != nil {
			mark(entry.Caught)
		}
	}
	for _, match := range frame.matches {
		for _, kase := range match.Cases {
			mark(kase.Key)
		}
	}
	mark(frame.method)
}

// StartFile reads, verifies and loads the module at path, locates the
// entry-point method and runs it on a fresh thread.
func (vm *SpadeVM) StartFile(path string, args []string) (int, error) {
	module, err := vm.loader.Load(path)
	if err != nil {
		return 1, err
	}
	entry, err := vm.findEntry(module)
	if err != nil {
		return 1, err
	}
	argsArr, err := vm.argsRepr(args)
	if err != nil {
		return 1, err
	}
	return vm.Start(entry, argsArr)
}

func (vm *SpadeVM) findEntry(module *objects.ObjModule) (*objects.ObjMethod, error) {
	value, err := module.GetMember(vm.settings.EntryName)
	if err != nil {
		return nil, verrors.NewIllegalAccessError(
			"module %s has no entry point '%s'", module.Name(), vm.settings.EntryName)
	}
	entry, ok := value.(*objects.ObjMethod)
	if !ok {
		return nil, verrors.NewIllegalAccessError(
			"entry point '%s' of module %s is not a method", vm.settings.EntryName, module.Name())
	}
	return entry, nil
}

// argsRepr converts host argv into an array object.
func (vm *SpadeVM) argsRepr(args []string) (*objects.ObjArray, error) {
	elements := make([]objects.Obj, len(args))
	for i, arg := range args {
		s, err := objects.NewString(vm.manager, arg)
		if err != nil {
			return nil, err
		}
		elements[i] = s
	}
	return objects.NewArrayOf(vm.manager, elements)
}

// Start runs entry on a fresh thread, waits for its termination and
// returns its exit code. The vm must already be loaded.
func (vm *SpadeVM) Start(entry *objects.ObjMethod, args *objects.ObjArray) (int, error) {
	var callArgs []objects.Obj
	if len(entry.Template().Args()) == 1 {
		if args == nil {
			empty, err := vm.argsRepr(nil)
			if err != nil {
				return 1, err
			}
			args = empty
		}
		callArgs = []objects.Obj{args}
	}
	thread := NewThread(vm, func(t *Thread) {
		t.SetValue(entry)
		if _, err := vm.Invoke(t, entry, callArgs); err != nil {
			t.setErr(err)
			if t.ExitCode() == 0 {
				t.SetExitCode(1)
			}
		}
	}, nil)
	thread.Join()
	vm.runExitHooks()
	return thread.ExitCode(), thread.Err()
}

// Invoke calls a callable on thread t, completes its execution and returns
// the result. Every call site is validated: the active manager must be the
// callable's owning manager.
func (vm *SpadeVM) Invoke(t *Thread, callable objects.Obj, args []objects.Obj) (objects.Obj, error) {
	switch callee := callable.(type) {
	case *objects.ObjMethod:
		if err := vm.validateCallSite(callee); err != nil {
			return nil, err
		}
		if err := vm.Call(t, callee, args); err != nil {
			return nil, err
		}
		return vm.Run(t)
	case *objects.ObjForeign:
		if err := vm.validateCallSite(callee); err != nil {
			return nil, err
		}
		return callee.Invoke(args)
	default:
		return nil, verrors.NewIllegalAccessError("%s is not callable", callable.String())
	}
}

// Call pushes a frame for method onto t's call stack without entering the
// dispatch loop.
func (vm *SpadeVM) Call(t *Thread, method *objects.ObjMethod, args []objects.Obj) error {
	vm.maybeCollect()
	frame, err := newFrame(method, args)
	if err != nil {
		return err
	}
	return t.State().PushFrame(frame)
}

func (vm *SpadeVM) validateCallSite(callable objects.Obj) error {
	if callable.Info().Manager != vm.manager {
		return verrors.NewIllegalAccessError("invalid call site, cannot call %s", callable.String())
	}
	return nil
}
