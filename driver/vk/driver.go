// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces using the Vulkan API.
//
// It requires a Vulkan 1.2 loader and device. The loader
// is found at run time; if it is missing, Open fails with
// driver.ErrNotInstalled.
//
// Presentation needs a window that can create its own
// Vulkan surface (see SurfaceCreator).
package vk

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/gogpu/gpucontext"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/internal/pagealloc"
	"github.com/gviegas/rhi/driver/internal/passcache"
)

const driverName = "vulkan"

// API version that the driver requests.
var apiVersion = vk.MakeVersion(1, 2, 0)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Instance extensions that are enabled when available.
var surfaceExts = [...]string{
	"VK_KHR_surface",
	"VK_KHR_xlib_surface",
	"VK_KHR_xcb_surface",
	"VK_KHR_wayland_surface",
	"VK_KHR_win32_surface",
	"VK_KHR_android_surface",
	"VK_EXT_metal_surface",
}

const swapchainExt = "VK_KHR_swapchain"

// Driver implements driver.Driver.
type Driver struct {
	gpu *GPU
}

func init() {
	driver.Register(&Driver{})
}

var (
	loadOnce sync.Once
	loadErr  error
)

// load loads the Vulkan library and the global procedures.
func load() error {
	loadOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loadErr = fmt.Errorf("%w: %w", driver.ErrNotInstalled, err)
			return
		}
		if err := vk.Init(); err != nil {
			loadErr = fmt.Errorf("%w: %w", driver.ErrNotInstalled, err)
		}
	})
	return loadErr
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	if d.gpu != nil {
		return d.gpu, nil
	}
	if err := load(); err != nil {
		return nil, err
	}
	g := &GPU{drv: d}
	var err error
	if err = g.initInstance(); err != nil {
		goto fail
	}
	if err = g.initDevice(); err != nil {
		goto fail
	}
	if err = g.initDescPool(); err != nil {
		goto fail
	}
	d.gpu = g
	driver.Logger().Info("vk: device opened", "device", g.name, "queues", len(g.queues), "partiallyBound", g.partial)
	return g, nil

fail:
	g.destroy()
	return nil, err
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
	drv    *Driver
	inst   vk.Instance
	pdev   vk.PhysicalDevice
	dev    vk.Device
	name   string
	typ    vk.PhysicalDeviceType
	limits vk.PhysicalDeviceLimits
	feat   vk.PhysicalDeviceFeatures
	mtypes []memType
	heap   heap

	queues []*queue
	// Queue returned by GPU.Queue, indexed by
	// driver.QueueType.
	qtyp [3]*queue

	// Whether descriptor bindings can be partially
	// bound.
	partial bool
	// Whether the swapchain extensions are enabled.
	surfaceExt   bool
	swapchainExt bool

	dpool vk.DescriptorPool
	// Layout of set indices that a pipeline does not
	// use.
	emptyDSL vk.DescriptorSetLayout

	mu     sync.Mutex
	passes passcache.Cache[driver.PassKey, *passEntry]
	// Slots of the descriptor pool.
	slots pagealloc.Alloc
}

// initInstance creates the Vulkan instance.
func (g *GPU) initInstance() error {
	avail := instanceExts()
	var exts []string
	for _, e := range surfaceExts {
		if avail[e] {
			exts = append(exts, e+"\x00")
		}
	}
	g.surfaceExt = avail[surfaceExts[0]]
	var layers []string
	if driver.Validation() {
		if instanceLayers()[validationLayer] {
			layers = append(layers, validationLayer+"\x00")
		} else {
			driver.Logger().Warn("vk: validation layer not present", "layer", validationLayer)
		}
	}
	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			PApplicationName: "rhi\x00",
			PEngineName:      "rhi\x00",
			ApiVersion:       apiVersion,
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}
	var inst vk.Instance
	if err := checkResult(vk.CreateInstance(&info, nil, &inst)); err != nil {
		return fmt.Errorf("%w: %w", driver.ErrNotInstalled, err)
	}
	g.inst = inst
	if err := vk.InitInstance(inst); err != nil {
		return fmt.Errorf("%w: %w", driver.ErrNotInstalled, err)
	}
	return nil
}

// instanceExts returns the names of the available
// instance extensions.
func instanceExts() map[string]bool {
	var n uint32
	if vk.EnumerateInstanceExtensionProperties("", &n, nil) != vk.Success || n == 0 {
		return nil
	}
	props := make([]vk.ExtensionProperties, n)
	if vk.EnumerateInstanceExtensionProperties("", &n, props) != vk.Success {
		return nil
	}
	m := make(map[string]bool, n)
	for i := range props[:n] {
		props[i].Deref()
		m[vk.ToString(props[i].ExtensionName[:])] = true
	}
	return m
}

// instanceLayers returns the names of the available
// instance layers.
func instanceLayers() map[string]bool {
	var n uint32
	if vk.EnumerateInstanceLayerProperties(&n, nil) != vk.Success || n == 0 {
		return nil
	}
	props := make([]vk.LayerProperties, n)
	if vk.EnumerateInstanceLayerProperties(&n, props) != vk.Success {
		return nil
	}
	m := make(map[string]bool, n)
	for i := range props[:n] {
		props[i].Deref()
		m[vk.ToString(props[i].LayerName[:])] = true
	}
	return m
}

// deviceExts returns the names of the available device
// extensions of pd.
func deviceExts(pd vk.PhysicalDevice) map[string]bool {
	var n uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &n, nil) != vk.Success || n == 0 {
		return nil
	}
	props := make([]vk.ExtensionProperties, n)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &n, props) != vk.Success {
		return nil
	}
	m := make(map[string]bool, n)
	for i := range props[:n] {
		props[i].Deref()
		m[vk.ToString(props[i].ExtensionName[:])] = true
	}
	return m
}

// families identifies the queue families of a device.
// compute and xfer are -1 when the device has no
// dedicated family for them.
type families struct {
	graph   int
	compute int
	xfer    int
}

// pickFamilies selects queue families from flags, which
// is indexed by family.
// The graphics family must also support compute.
func pickFamilies(flags []vk.QueueFlags) (families, bool) {
	const (
		graph   = vk.QueueFlags(vk.QueueGraphicsBit)
		compute = vk.QueueFlags(vk.QueueComputeBit)
		xfer    = vk.QueueFlags(vk.QueueTransferBit)
	)
	f := families{-1, -1, -1}
	for i, fl := range flags {
		switch {
		case fl&(graph|compute) == graph|compute:
			if f.graph == -1 {
				f.graph = i
			}
		case fl&compute != 0:
			if f.compute == -1 {
				f.compute = i
			}
		case fl&xfer != 0:
			if f.xfer == -1 {
				f.xfer = i
			}
		}
	}
	return f, f.graph != -1
}

// deviceWeight returns the preference for devices of
// type typ.
func deviceWeight(typ vk.PhysicalDeviceType) int {
	switch typ {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 3
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 2
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 1
	}
	return 0
}

// queueFlags returns the flags of every queue family of
// pd.
func queueFlags(pd vk.PhysicalDevice) []vk.QueueFlags {
	var n uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &n, nil)
	props := make([]vk.QueueFamilyProperties, n)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &n, props)
	flags := make([]vk.QueueFlags, n)
	for i := range props[:n] {
		props[i].Deref()
		flags[i] = props[i].QueueFlags
	}
	return flags
}

// initDevice selects a physical device and creates the
// logical device and its queues.
func (g *GPU) initDevice() error {
	var n uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(g.inst, &n, nil)); err != nil {
		return err
	}
	if n == 0 {
		return driver.ErrNoDevice
	}
	pds := make([]vk.PhysicalDevice, n)
	if err := checkResult(vk.EnumeratePhysicalDevices(g.inst, &n, pds)); err != nil {
		return err
	}
	var (
		fams   families
		props  vk.PhysicalDeviceProperties
		weight = -1
	)
	for _, pd := range pds[:n] {
		var p vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &p)
		p.Deref()
		if p.ApiVersion < apiVersion {
			continue
		}
		f, ok := pickFamilies(queueFlags(pd))
		if !ok {
			continue
		}
		if w := deviceWeight(p.DeviceType); w > weight {
			g.pdev, fams, props, weight = pd, f, p, w
		}
	}
	if weight == -1 {
		return driver.ErrNoDevice
	}
	props.Limits.Deref()
	g.name = vk.ToString(props.DeviceName[:])
	g.typ = props.DeviceType
	g.limits = props.Limits

	var feat vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(g.pdev, &feat)
	feat.Deref()
	g.feat = vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: feat.SamplerAnisotropy,
		FillModeNonSolid:  feat.FillModeNonSolid,
		IndependentBlend:  feat.IndependentBlend,
		DepthBiasClamp:    feat.DepthBiasClamp,
		ImageCubeArray:    feat.ImageCubeArray,
	}

	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(g.pdev, &mp)
	mp.Deref()
	g.mtypes = make([]memType, mp.MemoryTypeCount)
	for i := range g.mtypes {
		mp.MemoryTypes[i].Deref()
		g.mtypes[i] = memType{
			flags: mp.MemoryTypes[i].PropertyFlags,
			heap:  int(mp.MemoryTypes[i].HeapIndex),
		}
	}

	var exts []string
	if g.surfaceExt && deviceExts(g.pdev)[swapchainExt] {
		exts = append(exts, swapchainExt+"\x00")
		g.swapchainExt = true
	}
	prio := []float32{1}
	qinfo := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(fams.graph),
		QueueCount:       1,
		PQueuePriorities: prio,
	}}
	for _, f := range [...]int{fams.compute, fams.xfer} {
		if f != -1 {
			qinfo = append(qinfo, vk.DeviceQueueCreateInfo{
				SType:            vk.StructureTypeDeviceQueueCreateInfo,
				QueueFamilyIndex: uint32(f),
				QueueCount:       1,
				PQueuePriorities: prio,
			})
		}
	}
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(qinfo)),
		PQueueCreateInfos:       qinfo,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{g.feat},
	}

	// Partially bound descriptors are optional; try with
	// them first.
	feat12 := vk.PhysicalDeviceVulkan12Features{
		SType:                           vk.StructureTypePhysicalDeviceVulkan12Features,
		DescriptorBindingPartiallyBound: vk.True,
	}
	feat12.PassRef()
	defer feat12.Free()
	info.PNext = unsafe.Pointer(feat12.Ref())
	var dev vk.Device
	res := vk.CreateDevice(g.pdev, &info, nil, &dev)
	if res == vk.ErrorFeatureNotPresent {
		driver.Logger().Debug("vk: partially bound descriptors not supported")
		info.PNext = nil
		res = vk.CreateDevice(g.pdev, &info, nil, &dev)
	} else {
		g.partial = res == vk.Success
	}
	if err := checkResult(res); err != nil {
		return err
	}
	g.dev = dev

	newQueue := func(fam int, typ driver.QueueType) *queue {
		var q vk.Queue
		vk.GetDeviceQueue(dev, uint32(fam), 0, &q)
		wq := &queue{g: g, q: q, typ: typ, fam: fam}
		g.queues = append(g.queues, wq)
		return wq
	}
	gq := newQueue(fams.graph, driver.QGraphics)
	g.qtyp = [3]*queue{gq, gq, gq}
	if fams.compute != -1 {
		g.qtyp[driver.QCompute] = newQueue(fams.compute, driver.QCompute)
	}
	if fams.xfer != -1 {
		g.qtyp[driver.QTransfer] = newQueue(fams.xfer, driver.QTransfer)
	}
	return nil
}

// initDescPool creates the descriptor pool from which every
// descriptor set is allocated.
func (g *GPU) initDescPool() error {
	types := [...]vk.DescriptorType{
		vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBuffer,
		vk.DescriptorTypeStorageImage,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeSampler,
		vk.DescriptorTypeCombinedImageSampler,
	}
	sizes := make([]vk.DescriptorPoolSize, len(types))
	for i, t := range types {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            t,
			DescriptorCount: driver.MaxDescSets * 4,
		}
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       driver.MaxDescSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := checkResult(vk.CreateDescriptorPool(g.dev, &info, nil, &pool)); err != nil {
		return err
	}
	g.dpool = pool
	g.slots.Grow(driver.MaxDescSets)
	var err error
	g.emptyDSL, err = g.createSetLayout(nil)
	return err
}

func (g *GPU) destroy() {
	if g.dev != nil {
		vk.DeviceWaitIdle(g.dev)
		for _, q := range g.queues {
			q.destroy()
		}
		g.mu.Lock()
		g.passes.Invalidate(func(e *passEntry) { e.destroy(g) })
		g.mu.Unlock()
		if g.emptyDSL != vk.NullDescriptorSetLayout {
			vk.DestroyDescriptorSetLayout(g.dev, g.emptyDSL, nil)
		}
		if g.dpool != vk.NullDescriptorPool {
			vk.DestroyDescriptorPool(g.dev, g.dpool, nil)
		}
		g.heap.free(g)
		vk.DestroyDevice(g.dev, nil)
	}
	if g.inst != nil {
		vk.DestroyInstance(g.inst, nil)
	}
	*g = GPU{}
}

// Driver returns the driver that owns g.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Info describes the physical device.
func (g *GPU) Info() gpucontext.AdapterInfo {
	typ := gpucontext.AdapterTypeUnknown
	switch g.typ {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		typ = gpucontext.AdapterTypeDiscrete
	case vk.PhysicalDeviceTypeIntegratedGpu:
		typ = gpucontext.AdapterTypeIntegrated
	case vk.PhysicalDeviceTypeCpu:
		typ = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: g.name, Type: typ}
}

// Queues returns the device queues.
// The first one is a QGraphics queue. Others, if any,
// belong to families dedicated to compute or transfer.
func (g *GPU) Queues() []driver.Queue {
	qs := make([]driver.Queue, len(g.queues))
	for i, q := range g.queues {
		qs[i] = q
	}
	return qs
}

// Queue returns the queue best suited for typ.
// It is the graphics queue when the device has no family
// dedicated to typ.
func (g *GPU) Queue(typ driver.QueueType) driver.Queue {
	switch typ {
	case driver.QGraphics, driver.QCompute, driver.QTransfer:
		return g.qtyp[typ]
	}
	return nil
}

// WaitIdle blocks until the device is idle.
func (g *GPU) WaitIdle() error { return checkResult(vk.DeviceWaitIdle(g.dev)) }

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits {
	l := &g.limits
	return driver.Limits{
		MaxImage2D:        int(l.MaxImageDimension2D),
		MaxImage3D:        int(l.MaxImageDimension3D),
		MaxLayers:         int(l.MaxImageArrayLayers),
		MaxSets:           min(int(l.MaxBoundDescriptorSets), driver.MaxSets),
		MaxBindings:       driver.MaxBindings,
		MaxColorAttach:    min(int(l.MaxColorAttachments), driver.MaxColorAttach),
		MaxVertexBindings: min(int(l.MaxVertexInputBindings), driver.MaxVertexBindings),
		MaxVertexAttrs:    min(int(l.MaxVertexInputAttributes), driver.MaxVertexAttrs),
		MaxPushConstant:   min(int(l.MaxPushConstantsSize), driver.MaxPushConstant),
		DescArrays:        g.partial,
		CombinedSampler:   true,
		ScaledBlit:        true,
		MaxDispatch: [3]int{
			int(l.MaxComputeWorkGroupCount[0]),
			int(l.MaxComputeWorkGroupCount[1]),
			int(l.MaxComputeWorkGroupCount[2]),
		},
	}
}

// Errors that checkResult returns for results that have no
// driver counterpart.
var (
	errInitFailed   = errors.New("vk: initialization failed")
	errNotPresent   = errors.New("vk: layer, extension or feature not present")
	errIncompatible = errors.New("vk: incompatible driver")
	errFragmented   = errors.New("vk: fragmented pool")
	errUnknown      = errors.New("vk: unknown error")
)

// checkResult converts res to an error.
// Non-negative results are not errors.
func checkResult(res vk.Result) error {
	if res >= 0 {
		return nil
	}
	var err error
	switch res {
	case vk.ErrorOutOfHostMemory:
		err = driver.ErrNoHostMemory
	case vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfPoolMemory:
		err = driver.ErrNoDeviceMemory
	case vk.ErrorDeviceLost:
		err = driver.ErrFatal
	case vk.ErrorOutOfDate, vk.ErrorSurfaceLost:
		err = driver.ErrSwapchain
	case vk.ErrorNativeWindowInUse:
		err = driver.ErrWindow
	case vk.ErrorFormatNotSupported:
		err = driver.ErrUnsupported
	case vk.ErrorInitializationFailed:
		err = errInitFailed
	case vk.ErrorLayerNotPresent, vk.ErrorExtensionNotPresent, vk.ErrorFeatureNotPresent:
		err = errNotPresent
	case vk.ErrorIncompatibleDriver:
		err = errIncompatible
	case vk.ErrorFragmentedPool:
		err = errFragmented
	default:
		err = errUnknown
	}
	return fmt.Errorf("%w (%d)", err, res)
}

var (
	_ driver.GPU       = (*GPU)(nil)
	_ driver.Presenter = (*GPU)(nil)
)
