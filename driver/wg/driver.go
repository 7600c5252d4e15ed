// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package wg implements driver interfaces on top of the
// gogpu WebGPU HAL.
//
// Backends of the HAL register themselves when imported
// (e.g., github.com/gogpu/wgpu/hal/allbackends or, for
// testing, github.com/gogpu/wgpu/hal/noop). The first one
// that can be opened, in the order given by Backends, is
// used.
//
// The HAL has a narrower feature set than Vulkan, so some
// operations are reported as unsupported:
//
//   - descriptor arrays (Count > 1) and combined image
//     samplers fail pipeline creation with ErrUnsupported
//   - push constants are not available: MaxPushConstant
//     is zero, shaders that declare them fail pipeline
//     creation and PushConstants panics
//   - Blit cannot scale
//   - 1D image views are not supported
//   - storage images are declared with RGBA8un format
package wg

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/internal/passcache"
)

const driverName = "wgpu"

// Backends is the order in which HAL backends are tried.
var Backends = [...]gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// Driver implements driver.Driver.
type Driver struct {
	gpu *GPU
}

func init() {
	driver.Register(&Driver{})
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	if d.gpu != nil {
		return d.gpu, nil
	}
	hal.SetLogger(driver.Logger())
	avail := hal.AvailableBackends()
	if len(avail) == 0 {
		return nil, fmt.Errorf("%w: no HAL backend registered", driver.ErrNotInstalled)
	}
	last := driver.ErrNoDevice
	for _, b := range Backends {
		if !slices.Contains(avail, b) {
			continue
		}
		g, err := d.open(b)
		if err == nil {
			d.gpu = g
			driver.Logger().Info("wg: device opened", "backend", b.String(), "adapter", g.info.Name)
			return g, nil
		}
		driver.Logger().Warn("wg: backend failed", "backend", b.String(), "err", err)
		last = err
	}
	return nil, last
}

// open creates a GPU using backend b.
func (d *Driver) open(b gputypes.Backend) (*GPU, error) {
	backend, ok := hal.GetBackend(b)
	if !ok {
		return nil, driver.ErrNotInstalled
	}
	desc := &hal.InstanceDescriptor{Backends: gputypes.BackendsAll}
	if driver.Validation() {
		desc.Flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	inst, err := backend.CreateInstance(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrNotInstalled, err)
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		inst.Destroy()
		return nil, driver.ErrNoDevice
	}
	// Prefer discrete, then integrated GPUs.
	best, weight := 0, -1
	for i := range adapters {
		w := 0
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU:
			w = 3
		case gputypes.DeviceTypeIntegratedGPU:
			w = 2
		case gputypes.DeviceTypeVirtualGPU:
			w = 1
		}
		if w > weight {
			best, weight = i, w
		}
	}
	ea := &adapters[best]
	od, err := ea.Adapter.Open(0, ea.Capabilities.Limits)
	if err != nil {
		inst.Destroy()
		return nil, fmt.Errorf("%w: %w", driver.ErrNoDevice, err)
	}
	g := &GPU{
		drv:     d,
		backend: b,
		inst:    inst,
		adapter: ea.Adapter,
		info:    ea.Info,
		limits:  ea.Capabilities.Limits,
		dev:     od.Device,
	}
	g.q = &queue{g: g, q: od.Queue}
	if g.emptyBGL, err = g.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "empty"}); err != nil {
		g.destroy()
		return nil, err
	}
	if g.emptyBG, err = g.dev.CreateBindGroup(&hal.BindGroupDescriptor{Label: "empty", Layout: g.emptyBGL}); err != nil {
		g.destroy()
		return nil, err
	}
	return g, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d.gpu == nil {
		return
	}
	d.gpu.destroy()
	d.gpu = nil
}

// GPU implements driver.GPU and driver.Presenter.
type GPU struct {
	drv     *Driver
	backend gputypes.Backend
	inst    hal.Instance
	adapter hal.Adapter
	info    gputypes.AdapterInfo
	limits  gputypes.Limits
	dev     hal.Device
	q       *queue

	// Layout and bind group of descriptor set indices
	// that a pipeline does not use.
	emptyBGL hal.BindGroupLayout
	emptyBG  hal.BindGroup

	mu     sync.Mutex
	passes passcache.Cache[driver.PassKey, *passEntry]
	nsets  int
}

func (g *GPU) destroy() {
	if g.dev != nil {
		g.dev.WaitIdle()
		g.mu.Lock()
		g.passes.Invalidate(nil)
		g.mu.Unlock()
		if g.emptyBG != nil {
			g.dev.DestroyBindGroup(g.emptyBG)
		}
		if g.emptyBGL != nil {
			g.dev.DestroyBindGroupLayout(g.emptyBGL)
		}
		g.dev.Destroy()
	}
	if g.adapter != nil {
		g.adapter.Destroy()
	}
	if g.inst != nil {
		g.inst.Destroy()
	}
	*g = GPU{}
}

// Driver returns the driver that owns g.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Backend returns the HAL backend in use.
func (g *GPU) Backend() gputypes.Backend { return g.backend }

// Info describes the adapter.
func (g *GPU) Info() gpucontext.AdapterInfo {
	typ := gpucontext.AdapterTypeUnknown
	switch g.info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		typ = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		typ = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		typ = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: g.info.Name, Type: typ}
}

// Queues returns the single queue of the device.
// It accepts graphics, compute and transfer commands.
func (g *GPU) Queues() []driver.Queue { return []driver.Queue{g.q} }

// Queue returns the device queue for any valid typ.
func (g *GPU) Queue(typ driver.QueueType) driver.Queue {
	switch typ {
	case driver.QGraphics, driver.QCompute, driver.QTransfer:
		return g.q
	}
	return nil
}

// WaitIdle blocks until the device is idle.
func (g *GPU) WaitIdle() error { return g.dev.WaitIdle() }

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits {
	l := &g.limits
	return driver.Limits{
		MaxImage2D:        int(l.MaxTextureDimension2D),
		MaxImage3D:        int(l.MaxTextureDimension3D),
		MaxLayers:         int(l.MaxTextureArrayLayers),
		MaxSets:           min(int(l.MaxBindGroups), driver.MaxSets),
		MaxBindings:       min(int(l.MaxBindingsPerBindGroup), driver.MaxBindings),
		MaxColorAttach:    min(int(l.MaxColorAttachments), driver.MaxColorAttach),
		MaxVertexBindings: min(int(l.MaxVertexBuffers), driver.MaxVertexBindings),
		MaxVertexAttrs:    min(int(l.MaxVertexAttributes), driver.MaxVertexAttrs),
		MaxPushConstant:   0,
		DescArrays:        false,
		CombinedSampler:   false,
		ScaledBlit:        false,
		MaxDispatch: [3]int{
			int(l.MaxComputeWorkgroupsPerDimension),
			int(l.MaxComputeWorkgroupsPerDimension),
			int(l.MaxComputeWorkgroupsPerDimension),
		},
	}
}

// pollInterval is the interval between checks of the
// queue's completed submission index.
const pollInterval = 50 * time.Microsecond

var (
	_ driver.GPU       = (*GPU)(nil)
	_ driver.Presenter = (*GPU)(nil)
)
