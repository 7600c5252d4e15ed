// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

func TestSelectMemory(t *testing.T) {
	types := []memType{
		{flags: memDeviceLocal},
		{flags: memHostVisible | memHostCoherent},
		{flags: memHostVisible | memHostCoherent | memHostCached},
		{flags: memDeviceLocal | memHostVisible | memHostCoherent},
		{flags: memHostVisible},
	}
	for _, x := range [...]struct {
		bits uint32
		mem  driver.MemUsage
		want int
	}{
		{0b11111, driver.MemGPUOnly, 0},
		{0b11110, driver.MemGPUOnly, 3},
		// No device-local type: any type will do.
		{0b10110, driver.MemGPUOnly, 1},
		{0b11111, driver.MemCPUToGPU, 1},
		{0b11001, driver.MemCPUToGPU, 3},
		{0b11111, driver.MemGPUToCPU, 2},
		// Uncached is acceptable when it is all there is.
		{0b00010, driver.MemGPUToCPU, 1},
		// Host-visible alone is not coherent.
		{0b10001, driver.MemCPUToGPU, -1},
		{0, driver.MemGPUOnly, -1},
	} {
		if i := selectMemory(types, x.bits, x.mem); i != x.want {
			t.Fatalf("selectMemory(%05b, %v):\nhave %d\nwant %d", x.bits, x.mem, i, x.want)
		}
	}
	if !panics(func() { selectMemory(types, 1, -1) }) {
		t.Fatal("selectMemory(-1): did not panic")
	}
}

func TestAlloc(t *testing.T) {
	needGPU(t)
	typ := selectMemory(tGPU.mtypes, ^uint32(0), driver.MemCPUToGPU)
	if typ == -1 {
		t.Skip("no host-visible memory type")
	}
	req := func(size, align int64) vk.MemoryRequirements {
		return vk.MemoryRequirements{
			Size:           vk.DeviceSize(size),
			Alignment:      vk.DeviceSize(align),
			MemoryTypeBits: 1 << typ,
		}
	}

	a, err := tGPU.alloc(req(100, 16), driver.MemCPUToGPU, false)
	if err != nil {
		t.Fatalf("GPU.alloc:\nhave %v\nwant nil", err)
	}
	b, err := tGPU.alloc(req(pageSize+1, 256), driver.MemCPUToGPU, false)
	if err != nil {
		t.Fatalf("GPU.alloc:\nhave %v\nwant nil", err)
	}
	if a.b != b.b {
		t.Fatal("GPU.alloc: small allocations\nhave different blocks\nwant the same block")
	}
	if a.npage != 1 || b.npage != 2 {
		t.Fatalf("GPU.alloc: npage\nhave %d, %d\nwant 1, 2", a.npage, b.npage)
	}
	if a.off%pageSize != 0 || b.off%pageSize != 0 || a.off == b.off {
		t.Fatalf("GPU.alloc: off\nhave %d, %d\nwant distinct page offsets", a.off, b.off)
	}
	if p := a.bytes(); len(p) != 100 {
		t.Fatalf("memory.bytes: len\nhave %d\nwant 100", len(p))
	}
	// Optimal-tiling images use other blocks.
	c, err := tGPU.alloc(req(100, 16), driver.MemCPUToGPU, true)
	if err != nil {
		t.Fatalf("GPU.alloc (optimal):\nhave %v\nwant nil", err)
	}
	if c.b == a.b || c.npage != 1 {
		t.Fatalf("GPU.alloc (optimal):\nhave block %p, npage %d\nwant a block other than %p, 1", c.b, c.npage, a.b)
	}
	tGPU.heap.mu.Lock()
	nlin := len(tGPU.heap.blocks[blockKey{typ, false}])
	nopt := len(tGPU.heap.blocks[blockKey{typ, true}])
	tGPU.heap.mu.Unlock()
	if nlin == 0 || nopt == 0 {
		t.Fatalf("GPU.heap.blocks:\nhave %d linear, %d optimal\nwant at least one of each", nlin, nopt)
	}
	tGPU.freeMem(c)

	blk := a.b
	rem := blk.pages.Rem()
	tGPU.freeMem(a)
	if x := blk.pages.Rem(); x != rem+1 {
		t.Fatalf("GPU.freeMem: pages.Rem\nhave %d\nwant %d", x, rem+1)
	}
	if a.b != nil {
		t.Fatal("GPU.freeMem: memory not zeroed")
	}
	tGPU.freeMem(b)

	// Large and coarsely aligned requests are dedicated.
	for _, r := range [...]vk.MemoryRequirements{
		req(blockSize/2+1, 16),
		req(4096, pageSize*2),
	} {
		m, err := tGPU.alloc(r, driver.MemCPUToGPU, false)
		if err != nil {
			t.Fatalf("GPU.alloc:\nhave %v\nwant nil", err)
		}
		if m.npage != -1 || m.off != 0 || m.b.size != int64(r.Size) {
			t.Fatalf("GPU.alloc: dedicated\nhave npage %d, off %d, size %d\nwant -1, 0, %d", m.npage, m.off, m.b.size, r.Size)
		}
		tGPU.freeMem(m)
	}

	if _, err := tGPU.alloc(vk.MemoryRequirements{Size: 16, Alignment: 16}, driver.MemGPUOnly, false); !isError(err, driver.ErrNoDeviceMemory) {
		t.Fatalf("GPU.alloc (no type bits):\nhave %v\nwant %v", err, driver.ErrNoDeviceMemory)
	}
}
