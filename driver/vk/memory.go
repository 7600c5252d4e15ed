// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/internal/pagealloc"
)

// Device memory is allocated in blocks of blockSize bytes
// and sub-allocated in pages of pageSize bytes.
// Resources that do not fit in half a block, or that need
// coarser alignment, get a dedicated allocation.
// Buffers and optimal-tiling images never share a block,
// so bufferImageGranularity need not be honored.
const (
	blockSize = 64 << 20
	pageSize  = 4096
)

// memType describes a memory type of the device.
type memType struct {
	flags vk.MemoryPropertyFlags
	heap  int
}

const (
	memDeviceLocal  = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	memHostVisible  = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	memHostCoherent = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	memHostCached   = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit)
)

// selectMemory returns the index of the memory type that
// best suits mem among those in typeBits, or -1 if none
// does.
func selectMemory(types []memType, typeBits uint32, mem driver.MemUsage) int {
	var req, pref vk.MemoryPropertyFlags
	switch mem {
	case driver.MemGPUOnly:
		pref = memDeviceLocal
	case driver.MemCPUToGPU:
		req = memHostVisible | memHostCoherent
	case driver.MemGPUToCPU:
		req = memHostVisible | memHostCoherent
		pref = memHostCached
	default:
		panic("vk: invalid memory usage")
	}
	fallback := -1
	for i, t := range types {
		if typeBits&(1<<i) == 0 || t.flags&req != req {
			continue
		}
		if t.flags&pref == pref {
			return i
		}
		if fallback == -1 {
			fallback = i
		}
	}
	return fallback
}

// block is a device memory allocation from which memory
// is sub-allocated.
type block struct {
	mem   vk.DeviceMemory
	size  int64
	typ   int
	pages pagealloc.Alloc
	// Host-visible blocks stay mapped.
	p unsafe.Pointer
}

// memory is a range of a block that is bound to a
// resource.
type memory struct {
	b     *block
	off   int64
	size  int64
	page  int
	npage int
}

// bytes returns the mapped range of m.
// It returns nil if m is not host-visible.
func (m *memory) bytes() []byte {
	if m.b.p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Add(m.b.p, m.off)), m.size)
}

// blockKey identifies the blocks that an allocation may
// be served from.
type blockKey struct {
	typ int
	// Set for optimal-tiling images.
	optimal bool
}

// heap holds the memory blocks of a GPU.
type heap struct {
	mu     sync.Mutex
	blocks map[blockKey][]*block
}

// newBlock allocates a block of size bytes from memory
// type typ.
func (g *GPU) newBlock(typ int, size int64) (*block, error) {
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: uint32(typ),
	}
	var mem vk.DeviceMemory
	if err := checkResult(vk.AllocateMemory(g.dev, &info, nil, &mem)); err != nil {
		return nil, err
	}
	b := &block{mem: mem, size: size, typ: typ}
	if g.mtypes[typ].flags&memHostVisible != 0 {
		var p unsafe.Pointer
		if err := checkResult(vk.MapMemory(g.dev, mem, 0, vk.DeviceSize(size), 0, &p)); err != nil {
			vk.FreeMemory(g.dev, mem, nil)
			return nil, err
		}
		b.p = p
	}
	b.pages.Grow(pagealloc.Pages(size, pageSize))
	return b, nil
}

// freeBlock frees b.
func (g *GPU) freeBlock(b *block) {
	if b.p != nil {
		vk.UnmapMemory(g.dev, b.mem)
	}
	vk.FreeMemory(g.dev, b.mem, nil)
	*b = block{}
}

// alloc allocates memory that satisfies req.
// optimal must be set for images of optimal tiling.
func (g *GPU) alloc(req vk.MemoryRequirements, mem driver.MemUsage, optimal bool) (*memory, error) {
	typ := selectMemory(g.mtypes, req.MemoryTypeBits, mem)
	if typ == -1 {
		return nil, fmt.Errorf("%w: no suitable memory type", driver.ErrNoDeviceMemory)
	}
	size := int64(req.Size)
	if size > blockSize/2 || int64(req.Alignment) > pageSize {
		b, err := g.newBlock(typ, size)
		if err != nil {
			return nil, err
		}
		return &memory{b: b, size: size, npage: -1}, nil
	}
	n := pagealloc.Pages(size, pageSize)
	h := &g.heap
	h.mu.Lock()
	defer h.mu.Unlock()
	key := blockKey{typ, optimal}
	for _, b := range h.blocks[key] {
		if i, ok := b.pages.Alloc(n); ok {
			return &memory{b: b, off: int64(i) * pageSize, size: size, page: i, npage: n}, nil
		}
	}
	b, err := g.newBlock(typ, blockSize)
	if err != nil {
		return nil, err
	}
	if h.blocks == nil {
		h.blocks = make(map[blockKey][]*block)
	}
	h.blocks[key] = append(h.blocks[key], b)
	driver.Logger().Debug("vk: memory block allocated", "type", typ, "optimal", optimal, "blocks", len(h.blocks[key]))
	i, _ := b.pages.Alloc(n)
	return &memory{b: b, off: int64(i) * pageSize, size: size, page: i, npage: n}, nil
}

// freeMem frees m.
// Dedicated allocations are freed immediately; blocks
// are kept until the GPU is destroyed.
func (g *GPU) freeMem(m *memory) {
	if m == nil || m.b == nil {
		return
	}
	if m.npage == -1 {
		g.freeBlock(m.b)
	} else {
		g.heap.mu.Lock()
		m.b.pages.Free(m.page, m.npage)
		g.heap.mu.Unlock()
	}
	*m = memory{}
}

// free frees every block of h.
func (h *heap) free(g *GPU) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, bs := range h.blocks {
		for _, b := range bs {
			g.freeBlock(b)
		}
	}
	h.blocks = nil
}
