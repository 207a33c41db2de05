package trackpop

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Releasable is a resource backed by Arrow memory. DataFrames, series and
// datasets implement it; call Release when done with one.
type Releasable interface {
	Release()
}

// MemoryManager releases many short-lived tables at once, such as the
// chunks of a chunked prediction. It is safe for concurrent use.
//
//	err := trackpop.WithMemoryManager(mem, func(mm *trackpop.MemoryManager) error {
//		chunk, err := df.Slice(0, 100)
//		if err != nil {
//			return err
//		}
//		mm.Track(chunk)
//		_, err = p.Predict(chunk, "ridge")
//		return err
//	})
type MemoryManager struct {
	allocator memory.Allocator
	resources []Releasable
	mu        sync.Mutex
}

// NewMemoryManager creates a memory manager for allocator.
func NewMemoryManager(allocator memory.Allocator) *MemoryManager {
	if allocator == nil {
		allocator = memory.NewGoAllocator()
	}
	return &MemoryManager{allocator: allocator}
}

// Allocator returns the allocator tracked tables should be built with.
func (m *MemoryManager) Allocator() memory.Allocator {
	return m.allocator
}

// Track registers a resource for ReleaseAll. Nil is ignored.
func (m *MemoryManager) Track(resource Releasable) {
	if resource == nil {
		return
	}
	m.mu.Lock()
	m.resources = append(m.resources, resource)
	m.mu.Unlock()
}

// Count returns the number of tracked resources.
func (m *MemoryManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resources)
}

// ReleaseAll releases every tracked resource, most recent first.
func (m *MemoryManager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.resources) - 1; i >= 0; i-- {
		m.resources[i].Release()
	}
	m.resources = m.resources[:0]
}

// WithMemoryManager runs fn with a fresh manager and releases everything it
// tracked once fn returns.
func WithMemoryManager(allocator memory.Allocator, fn func(*MemoryManager) error) error {
	manager := NewMemoryManager(allocator)
	defer manager.ReleaseAll()
	return fn(manager)
}
