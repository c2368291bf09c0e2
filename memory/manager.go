// Package memory provides the basic memory manager and its mark-and-sweep
// collector. The manager owns an intrusive doubly-linked list of object
// headers; the collector walks roots supplied by the VM, traces the object
// graph and sweeps the list.
package memory

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	verrors "github.com/spade-lang/velocity/errors"
	"github.com/spade-lang/velocity/objects"
)

// BasicManager is the default objects.Manager. Allocations are serialised
// by an internal lock; collection is driven synchronously by the VM under
// its stop-the-world barrier.
type BasicManager struct {
	mu    sync.Mutex
	roots objects.RootSet

	head, tail *objects.ObjectInfo
	count      int

	curAlloc  uint64
	allocated uint64
	freed     uint64
	limit     uint64
}

// NewBasicManager returns a manager with no heap limit.
func NewBasicManager() *BasicManager {
	return &BasicManager{}
}

// SetRoots installs the root provider the collector traces from.
func (m *BasicManager) SetRoots(roots objects.RootSet) {
	m.roots = roots
}

// SetLimit bounds the in-use byte count; 0 means unlimited.
func (m *BasicManager) SetLimit(limit uint64) {
	m.limit = limit
}

// Allocate charges size bytes against the heap. The host may collect and
// retry after a MemoryError.
func (m *BasicManager) Allocate(size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit > 0 && m.curAlloc+size > m.limit {
		return verrors.NewMemoryError(size)
	}
	m.curAlloc += size
	m.allocated += size
	return nil
}

// PostAllocation links the object's header at the tail of the intrusive
// list.
func (m *BasicManager) PostAllocation(obj objects.Obj) {
	info := obj.Info()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.head == nil {
		m.head = info
		m.tail = info
	} else {
		info.Prev = m.tail
		m.tail.Next = info
		m.tail = info
	}
	m.count++
}

// Deallocate unlinks the object's header and releases its accounting.
func (m *BasicManager) Deallocate(obj objects.Obj) {
	info := obj.Info()
	m.mu.Lock()
	defer m.mu.Unlock()
	if info.Prev != nil {
		info.Prev.Next = info.Next
	} else if m.head == info {
		m.head = info.Next
	}
	if info.Next != nil {
		info.Next.Prev = info.Prev
	} else if m.tail == info {
		m.tail = info.Prev
	}
	info.Prev = nil
	info.Next = nil
	m.count--
	m.curAlloc -= info.Size
	m.freed += info.Size
}

// CollectGarbage runs one synchronous mark-and-sweep pass on the calling
// thread.
func (m *BasicManager) CollectGarbage() {
	collector := NewBasicCollector(m)
	collector.GC()
}

// Count returns the number of registered objects.
func (m *BasicManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// AllocationSize returns the total bytes ever charged.
func (m *BasicManager) AllocationSize() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocated
}

// FreeSize returns the total bytes released.
func (m *BasicManager) FreeSize() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freed
}

// UsedSize returns the bytes currently in use.
func (m *BasicManager) UsedSize() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.curAlloc
}

// Stats renders a human-readable heap summary.
func (m *BasicManager) Stats() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("objects: %d, in use: %s, allocated: %s, freed: %s",
		m.count,
		humanize.Bytes(m.curAlloc),
		humanize.Bytes(m.allocated),
		humanize.Bytes(m.freed))
}

// first returns the head of the intrusive list; the collector's sweep walks
// from here.
func (m *BasicManager) first() *objects.ObjectInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head
}
