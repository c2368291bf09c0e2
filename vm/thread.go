package vm

import (
	"sync"

	"github.com/google/uuid"
	"github.com/spade-lang/velocity/objects"
)

// ThreadStatus is the thread state machine:
// NOT_STARTED -> RUNNING -> TERMINATED.
type ThreadStatus int

const (
	NotStarted ThreadStatus = iota
	Running
	Terminated
)

func (s ThreadStatus) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Process-wide thread table. The hot path passes *Thread explicitly; the
// table serves diagnostics and foreign-callback reentry.
var (
	threadsMu sync.RWMutex
	threads   = make(map[uuid.UUID]*Thread)
)

func registerThread(t *Thread) {
	threadsMu.Lock()
	defer threadsMu.Unlock()
	threads[t.id] = t
}

func unregisterThread(t *Thread) {
	threadsMu.Lock()
	defer threadsMu.Unlock()
	delete(threads, t.id)
}

// ThreadByID looks a live thread up by its identity.
func ThreadByID(id uuid.UUID) *Thread {
	threadsMu.RLock()
	defer threadsMu.RUnlock()
	return threads[id]
}

// LiveThreads snapshots the thread table.
func LiveThreads() []*Thread {
	threadsMu.RLock()
	defer threadsMu.RUnlock()
	out := make([]*Thread, 0, len(threads))
	for _, t := range threads {
		out = append(out, t)
	}
	return out
}

// Thread wraps one host execution thread. It owns its VMState exclusively;
// no two threads share a call stack, operand stack or frame.
type Thread struct {
	id    uuid.UUID
	vm    *SpadeVM
	state *VMState

	mu       sync.Mutex
	value    objects.Obj
	status   ThreadStatus
	exitCode int
	err      error

	gcPending bool

	done chan struct{}
}

// NewThread creates a thread and launches fun on a fresh host thread. The
// thread is registered in the process-wide table and with its vm before
// preFun or fun run, so lookups resolve correctly inside fun.
func NewThread(vm *SpadeVM, fun func(*Thread), preFun func()) *Thread {
	t := &Thread{
		id:    uuid.New(),
		vm:    vm,
		done:  make(chan struct{}),
	}
	t.state = NewVMState(vm, vm.settings.StackDepth)
	registerThread(t)
	vm.addThread(t)
	go t.run(fun, preFun)
	return t
}

func (t *Thread) run(fun func(*Thread), preFun func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			t.mu.Lock()
			if err, ok := recovered.(error); ok {
				t.err = err
			}
			if t.exitCode == 0 {
				t.exitCode = 1
			}
			t.mu.Unlock()
		}
		t.setStatus(Terminated)
		unregisterThread(t)
		close(t.done)
	}()
	if preFun != nil {
		preFun()
	}
	t.setStatus(Running)
	fun(t)
}

// Join blocks the caller until the thread terminates.
func (t *Thread) Join() {
	<-t.done
}

func (t *Thread) ID() uuid.UUID {
	return t.id
}

func (t *Thread) VM() *SpadeVM {
	return t.vm
}

func (t *Thread) State() *VMState {
	return t.state
}

// Value returns the thread's object representation.
func (t *Thread) Value() objects.Obj {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

func (t *Thread) SetValue(value objects.Obj) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = value
}

func (t *Thread) Status() ThreadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Thread) setStatus(status ThreadStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

// IsRunning reports whether the thread is currently executing.
func (t *Thread) IsRunning() bool {
	return t.Status() == Running
}

func (t *Thread) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

func (t *Thread) SetExitCode(code int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exitCode = code
}

// Err returns the fatal error that terminated the thread, if any.
func (t *Thread) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Thread) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}
