// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// SurfaceCreator is the interface that a driver.Window
// must implement to present using this driver.
// Its method has the same signature as the one provided
// by GLFW windows: instance is a vk.Instance and the
// result is a VkSurfaceKHR handle.
type SurfaceCreator interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// Swapchain image formats, in order of preference.
var swapchainFmts = [...]driver.PixelFmt{driver.BGRA8un, driver.RGBA8un}

// swapchain implements driver.Swapchain.
type swapchain struct {
	g      *GPU
	win    driver.Window
	surf   vk.Surface
	sc     vk.Swapchain
	mode   driver.PresentMode
	format driver.PixelFmt
	count  int
	width  int
	height int
	imgs   []*image
	views  []*imageView
	// Index of the image currently acquired (or -1).
	acq int
}

// NewSwapchain creates a new swapchain.
func (g *GPU) NewSwapchain(win driver.Window, imageCount int, mode driver.PresentMode) (driver.Swapchain, error) {
	if !g.surfaceExt || !g.swapchainExt {
		return nil, driver.ErrCannotPresent
	}
	if imageCount < 1 {
		return nil, errors.New("vk: swapchain needs at least one image")
	}
	sc, ok := win.(SurfaceCreator)
	if !ok {
		return nil, fmt.Errorf("%w: window cannot create Vulkan surfaces", driver.ErrCannotPresent)
	}
	p, err := sc.CreateWindowSurface(g.inst, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrWindow, err)
	}
	surf := vk.SurfaceFromPointer(p)
	var support vk.Bool32
	res := vk.GetPhysicalDeviceSurfaceSupport(g.pdev, uint32(g.qtyp[driver.QGraphics].fam), surf, &support)
	if err := checkResult(res); err != nil || support != vk.True {
		vk.DestroySurface(g.inst, surf, nil)
		if err == nil {
			err = driver.ErrCannotPresent
		}
		return nil, err
	}
	s := &swapchain{
		g:     g,
		win:   win,
		surf:  surf,
		mode:  mode,
		count: imageCount,
		acq:   -1,
	}
	if err := s.configure(); err != nil {
		vk.DestroySurface(g.inst, surf, nil)
		return nil, err
	}
	return s, nil
}

// surfaceFormat selects the swapchain format from those
// that the surface supports.
func surfaceFormat(avail []vk.SurfaceFormat) (driver.PixelFmt, bool) {
	for _, f := range swapchainFmts {
		for _, sf := range avail {
			sf.Deref()
			if sf.Format == convPixelFmt(f) && sf.ColorSpace == vk.ColorSpaceSrgbNonlinear {
				return f, true
			}
		}
	}
	return driver.FInvalid, false
}

// checkImageCount checks that n images can be requested
// from a surface. A maximum of zero means no limit.
func checkImageCount(n int, minCount, maxCount uint32) error {
	if n < int(minCount) || (maxCount != 0 && n > int(maxCount)) {
		return fmt.Errorf("%w: image count %d not in [%d, %d]", driver.ErrUnsupported, n, minCount, maxCount)
	}
	return nil
}

// configure creates the Vulkan swapchain with the window's
// current size, replacing the previous one if any.
func (s *swapchain) configure() error {
	g := s.g
	var caps vk.SurfaceCapabilities
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(g.pdev, s.surf, &caps)); err != nil {
		return err
	}
	caps.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	if err := checkImageCount(s.count, caps.MinImageCount, caps.MaxImageCount); err != nil {
		return err
	}

	w, h := s.win.Size()
	if sf := s.win.ScaleFactor(); sf > 0 {
		w, h = int(float64(w)*sf), int(float64(h)*sf)
	}
	w = min(max(w, int(caps.MinImageExtent.Width)), int(caps.MaxImageExtent.Width))
	h = min(max(h, int(caps.MinImageExtent.Height)), int(caps.MaxImageExtent.Height))
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: zero-area window", driver.ErrWindow)
	}

	var n uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(g.pdev, s.surf, &n, nil)); err != nil {
		return err
	}
	fmts := make([]vk.SurfaceFormat, n)
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(g.pdev, s.surf, &n, fmts)); err != nil {
		return err
	}
	format, ok := surfaceFormat(fmts[:n])
	if !ok {
		return fmt.Errorf("%w: no suitable surface format", driver.ErrCannotPresent)
	}

	pmode := vk.PresentModeFifo
	if want := convPresentMode(s.mode); want != pmode {
		if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(g.pdev, s.surf, &n, nil)); err != nil {
			return err
		}
		modes := make([]vk.PresentMode, n)
		if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(g.pdev, s.surf, &n, modes)); err != nil {
			return err
		}
		for _, m := range modes[:n] {
			if m == want {
				pmode = want
				break
			}
		}
		if pmode != want {
			driver.Logger().Warn("vk: present mode not supported, using FIFO", "mode", s.mode)
			s.mode = driver.PFifo
		}
	}

	old := s.sc
	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surf,
		MinImageCount:    uint32(s.count),
		ImageFormat:      convPixelFmt(format),
		ImageColorSpace:  vk.ColorSpaceSrgbNonlinear,
		ImageExtent:      vk.Extent2D{Width: uint32(w), Height: uint32(h)},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      pmode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var sc vk.Swapchain
	err := checkResult(vk.CreateSwapchain(g.dev, &info, nil, &sc))
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(g.dev, old, nil)
		s.sc = vk.NullSwapchain
	}
	if err != nil {
		return err
	}
	s.sc = sc

	if err := checkResult(vk.GetSwapchainImages(g.dev, sc, &n, nil)); err != nil {
		return err
	}
	imgs := make([]vk.Image, n)
	if err := checkResult(vk.GetSwapchainImages(g.dev, sc, &n, imgs)); err != nil {
		return err
	}
	if int(n) != s.count {
		driver.Logger().Debug("vk: swapchain has extra images", "want", s.count, "have", n)
	}
	s.format = format
	s.width, s.height = w, h
	s.imgs = make([]*image, n)
	s.views = make([]*imageView, n)
	for i := range s.imgs {
		s.imgs[i] = &image{
			g:   g,
			img: imgs[i],
			typ: vk.ImageType2d,
			desc: driver.ImageDesc{
				Format:  format,
				Size:    driver.Dim3D{Width: w, Height: h, Depth: 1},
				Layers:  1,
				Levels:  1,
				Samples: 1,
				Usage:   driver.URenderTarget | driver.UCopyDst,
			},
			sc: s,
		}
		s.views[i] = &imageView{
			img:    s.imgs[i],
			typ:    driver.IView2D,
			layers: 1,
			levels: 1,
		}
		if s.views[i].view, err = s.views[i].create(imgs[i]); err != nil {
			s.destroyViews()
			return err
		}
	}
	s.acq = -1
	return nil
}

// destroyViews destroys the views of the swapchain images.
func (s *swapchain) destroyViews() {
	for _, v := range s.views {
		if v != nil && v.view != vk.ImageView(vk.NullHandle) {
			vk.DestroyImageView(s.g.dev, v.view, nil)
		}
	}
	s.imgs = nil
	s.views = nil
}

// Views returns the swapchain's image views.
func (s *swapchain) Views() []driver.ImageView {
	iv := make([]driver.ImageView, len(s.views))
	for i := range iv {
		iv[i] = s.views[i]
	}
	return iv
}

// Images returns the swapchain's images.
func (s *swapchain) Images() []driver.Image {
	img := make([]driver.Image, len(s.imgs))
	for i := range img {
		img[i] = s.imgs[i]
	}
	return img
}

// Next acquires the next image.
// Only one image can be acquired at a time.
func (s *swapchain) Next(sem driver.Semaphore, f driver.Fence) (int, error) {
	if s.acq != -1 {
		return -1, errors.New("vk: Next: previous image was not presented")
	}
	vsem := vk.Semaphore(vk.NullHandle)
	if sem != nil {
		vsem = sem.(*semaphore).sem
	}
	vf := vk.NullFence
	if f != nil {
		x := f.(*fence)
		if x.state != fenceUnsignaled {
			panic("vk: Next: fence must be reset before acquisition")
		}
		vf = x.f
	}
	var idx uint32
	res := vk.AcquireNextImage(s.g.dev, s.sc, math.MaxUint64, vsem, vf, &idx)
	switch res {
	case vk.Success:
	case vk.Suboptimal:
		driver.Logger().Debug("vk: suboptimal swapchain")
	default:
		return -1, checkResult(res)
	}
	if sem != nil {
		sem.(*semaphore).signaled = true
	}
	if f != nil {
		f.(*fence).state = fencePending
	}
	s.acq = int(idx)
	return s.acq, nil
}

// present presents the image identified by index, after
// the given semaphores are signaled.
func (s *swapchain) present(q *queue, index int, sems []vk.Semaphore) error {
	if index < 0 || index >= len(s.imgs) || index != s.acq {
		return fmt.Errorf("vk: Present: image %d was not acquired", index)
	}
	s.acq = -1
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(sems)),
		PWaitSemaphores:    sems,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.sc},
		PImageIndices:      []uint32{uint32(index)},
	}
	q.mu.Lock()
	res := vk.QueuePresent(q.q, &info)
	q.mu.Unlock()
	if res == vk.Suboptimal {
		driver.Logger().Debug("vk: suboptimal swapchain")
		return nil
	}
	return checkResult(res)
}

// Recreate recreates the swapchain.
// Every image and view is replaced and the GPU's render
// pass cache is invalidated.
func (s *swapchain) Recreate() error {
	if err := checkResult(vk.DeviceWaitIdle(s.g.dev)); err != nil {
		return err
	}
	s.g.invalidatePasses()
	s.destroyViews()
	if err := s.configure(); err != nil {
		return err
	}
	driver.Logger().Debug("vk: swapchain recreated", "width", s.width, "height", s.height)
	return nil
}

// Format returns the images' pixel format.
func (s *swapchain) Format() driver.PixelFmt { return s.format }

// ImageCount returns the number of images.
func (s *swapchain) ImageCount() int { return len(s.imgs) }

// PresentMode returns the presentation mode.
func (s *swapchain) PresentMode() driver.PresentMode { return s.mode }

// ColorSpace returns the color space.
func (s *swapchain) ColorSpace() driver.ColorSpace { return driver.CSRGBNonlinear }

// Size returns the size of the images.
func (s *swapchain) Size() (width, height int) { return s.width, s.height }

// Destroy destroys the swapchain.
func (s *swapchain) Destroy() {
	if s == nil {
		return
	}
	if s.g != nil {
		vk.DeviceWaitIdle(s.g.dev)
		for _, v := range s.views {
			if v != nil {
				s.g.evictView(v)
			}
		}
		s.destroyViews()
		if s.sc != vk.NullSwapchain {
			vk.DestroySwapchain(s.g.dev, s.sc, nil)
		}
		vk.DestroySurface(s.g.inst, s.surf, nil)
	}
	*s = swapchain{}
}
