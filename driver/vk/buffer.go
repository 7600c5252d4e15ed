// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	g      *GPU
	buf    vk.Buffer
	m      *memory
	size   int64
	usg    driver.Usage
	mem    driver.MemUsage
	mapped bool
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, usg driver.Usage, mem driver.MemUsage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("vk: invalid buffer size")
	}
	info := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size:  vk.DeviceSize(size),
		// Copies are always allowed, since Fill and
		// staging rely on them.
		Usage:       convBufUsage(usg | driver.UCopySrc | driver.UCopyDst),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if err := checkResult(vk.CreateBuffer(g.dev, &info, nil, &buf)); err != nil {
		return nil, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(g.dev, buf, &req)
	req.Deref()
	m, err := g.alloc(req, mem, false)
	if err != nil {
		vk.DestroyBuffer(g.dev, buf, nil)
		return nil, err
	}
	if err := checkResult(vk.BindBufferMemory(g.dev, buf, m.b.mem, vk.DeviceSize(m.off))); err != nil {
		g.freeMem(m)
		vk.DestroyBuffer(g.dev, buf, nil)
		return nil, err
	}
	return &buffer{
		g:    g,
		buf:  buf,
		m:    m,
		size: size,
		usg:  usg,
		mem:  mem,
	}, nil
}

// Size returns the size of the buffer in bytes.
func (b *buffer) Size() int64 { return b.size }

// Usage returns the buffer's usage.
func (b *buffer) Usage() driver.Usage { return b.usg }

// MemUsage returns the buffer's memory usage.
func (b *buffer) MemUsage() driver.MemUsage { return b.mem }

// Map maps the whole buffer.
// Host-visible memory is persistently mapped, so this
// only hands out the range of the buffer.
func (b *buffer) Map() ([]byte, error) {
	if b.mem == driver.MemGPUOnly {
		return nil, errors.New("vk: cannot map GPU-only buffer")
	}
	p := b.m.bytes()
	if p == nil {
		return nil, errors.New("vk: buffer memory is not host-visible")
	}
	b.mapped = true
	return p[:b.size:b.size], nil
}

// Unmap unmaps the buffer.
func (b *buffer) Unmap() { b.mapped = false }

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil {
		return
	}
	if b.g != nil {
		vk.DestroyBuffer(b.g.dev, b.buf, nil)
		b.g.freeMem(b.m)
	}
	*b = buffer{}
}
