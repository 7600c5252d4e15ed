// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"errors"
	"unsafe"

	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	g    *GPU
	buf  hal.Buffer
	size int64
	usg  driver.Usage
	mem  driver.MemUsage
	p    []byte
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, usg driver.Usage, mem driver.MemUsage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("wg: invalid buffer size")
	}
	// Copies are always allowed, since Fill and the
	// staging paths rely on them.
	u := convBufUsage(usg|driver.UCopySrc|driver.UCopyDst, mem)
	buf, err := g.dev.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: u,
	})
	if err != nil {
		return nil, errors.Join(driver.ErrNoDeviceMemory, err)
	}
	return &buffer{
		g:    g,
		buf:  buf,
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
// Mapping a mapped buffer returns the same slice.
func (b *buffer) Map() ([]byte, error) {
	if b.mem == driver.MemGPUOnly {
		return nil, errors.New("wg: cannot map GPU-only buffer")
	}
	if b.p != nil {
		return b.p, nil
	}
	m, err := b.g.dev.MapBuffer(b.buf, 0, uint64(b.size))
	if err != nil {
		return nil, err
	}
	if m.Ptr == nil {
		return nil, errors.New("wg: buffer mapping has no host pointer")
	}
	b.p = unsafeBytes(m, b.size)
	return b.p, nil
}

// unsafeBytes returns the first n bytes of a mapping.
func unsafeBytes(m hal.BufferMapping, n int64) []byte {
	return unsafe.Slice((*byte)(m.Ptr), n)
}

// Unmap unmaps the buffer.
func (b *buffer) Unmap() {
	if b.p == nil {
		return
	}
	if err := b.g.dev.UnmapBuffer(b.buf); err != nil {
		driver.Logger().Warn("wg: unmap failed", "err", err)
	}
	b.p = nil
}

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil {
		return
	}
	if b.g != nil {
		b.Unmap()
		b.g.dev.DestroyBuffer(b.buf)
	}
	*b = buffer{}
}
