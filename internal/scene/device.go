package scene

import (
	"sync"

	"github.com/google/uuid"
)

// ResourceKind distinguishes the two resources every renderable owns.
type ResourceKind int

const (
	Geometry ResourceKind = iota
	Material
)

func (k ResourceKind) String() string {
	if k == Material {
		return "material"
	}
	return "geometry"
}

// Handle identifies a device resource.
type Handle uuid.UUID

func (h Handle) String() string { return uuid.UUID(h).String() }

// Device allocates and frees the resources backing renderables. A GPU
// backend would upload buffers here.
type Device interface {
	Allocate(kind ResourceKind, label string) Handle
	Release(h Handle)
}

// MemoryDevice is a Device that only tracks which resources are live.
type MemoryDevice struct {
	mu        sync.Mutex
	live      map[Handle]ResourceKind
	allocated int
	released  int
}

func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{live: make(map[Handle]ResourceKind)}
}

func (d *MemoryDevice) Allocate(kind ResourceKind, label string) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := Handle(uuid.New())
	d.live[h] = kind
	d.allocated++
	return h
}

// Release frees h. Releasing an unknown or already freed handle is a no-op.
func (d *MemoryDevice) Release(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[h]; !ok {
		return
	}
	delete(d.live, h)
	d.released++
}

// Live returns the number of resources currently allocated.
func (d *MemoryDevice) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Stats returns the lifetime allocation and release counts.
func (d *MemoryDevice) Stats() (allocated, released int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated, d.released
}
