// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// Format of swapchain images.
const swapchainFmt = driver.BGRA8un

// swapchain implements driver.Swapchain.
// The surface hands out one texture at a time; images and
// views are stable wrappers that refer to the texture
// acquired for their index, from Next until Present.
type swapchain struct {
	g      *GPU
	win    driver.Window
	surf   hal.Surface
	mode   driver.PresentMode
	width  int
	height int
	imgs   []*image
	views  []*imageView
	// Index of the next image to acquire, and of the
	// image currently acquired (or -1).
	next int
	acq  int
}

// NewSwapchain creates a new swapchain.
func (g *GPU) NewSwapchain(win driver.Window, imageCount int, mode driver.PresentMode) (driver.Swapchain, error) {
	if imageCount < 1 {
		return nil, errors.New("wg: swapchain needs at least one image")
	}
	display, window := win.Handles()
	surf, err := g.inst.CreateSurface(display, window)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrWindow, err)
	}
	sc := &swapchain{
		g:     g,
		win:   win,
		surf:  surf,
		mode:  mode,
		imgs:  make([]*image, imageCount),
		views: make([]*imageView, imageCount),
		acq:   -1,
	}
	if err := sc.configure(); err != nil {
		surf.Destroy()
		return nil, err
	}
	return sc, nil
}

// configure configures the surface with the window's
// current size and creates new image wrappers.
func (s *swapchain) configure() error {
	w, h := s.win.Size()
	sf := s.win.ScaleFactor()
	if sf > 0 {
		w, h = int(float64(w)*sf), int(float64(h)*sf)
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: zero-area window", driver.ErrWindow)
	}
	err := s.surf.Configure(s.g.dev, &hal.SurfaceConfiguration{
		Width:       uint32(w),
		Height:      uint32(h),
		Format:      convPixelFmt(swapchainFmt),
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
		PresentMode: convPresentMode(s.mode),
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return convErr(err)
	}
	s.width, s.height = w, h
	for i := range s.imgs {
		s.imgs[i] = &image{
			g: s.g,
			desc: driver.ImageDesc{
				Format:  swapchainFmt,
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
	}
	s.next = 0
	s.acq = -1
	return nil
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
		return -1, errors.New("wg: Next: previous image was not presented")
	}
	at, err := s.surf.AcquireTexture(nil)
	if err != nil {
		return -1, convErr(err)
	}
	if at.Suboptimal {
		driver.Logger().Debug("wg: suboptimal swapchain")
	}
	i := s.next
	s.imgs[i].tex = at.Texture
	if s.views[i].view, err = s.views[i].create(at.Texture); err != nil {
		s.surf.DiscardTexture(at.Texture)
		s.imgs[i].tex = nil
		return -1, convErr(err)
	}
	if sem != nil {
		sem.(*semaphore).signaled = true
	}
	if f != nil {
		f.(*fence).state = fenceSignaled
	}
	s.acq = i
	s.next = (i + 1) % len(s.imgs)
	return i, nil
}

// release drops the texture acquired for index.
func (s *swapchain) release(index int) {
	s.views[index].destroyView()
	s.imgs[index].tex = nil
	s.acq = -1
}

// present presents the image identified by index.
func (s *swapchain) present(q *queue, index int) error {
	if index < 0 || index >= len(s.imgs) || index != s.acq {
		return fmt.Errorf("wg: Present: image %d was not acquired", index)
	}
	tex := s.imgs[index].tex.(hal.SurfaceTexture)
	err := q.q.Present(s.surf, tex, nil)
	s.release(index)
	return convErr(err)
}

// discard discards the acquired texture, if any.
func (s *swapchain) discard() {
	if s.acq != -1 {
		s.surf.DiscardTexture(s.imgs[s.acq].tex.(hal.SurfaceTexture))
		s.release(s.acq)
	}
}

// Recreate recreates the swapchain.
// Every image and view is replaced and the GPU's render
// pass cache is invalidated.
func (s *swapchain) Recreate() error {
	s.discard()
	s.g.invalidatePasses()
	if err := s.configure(); err != nil {
		return err
	}
	driver.Logger().Debug("wg: swapchain recreated", "width", s.width, "height", s.height)
	return nil
}

// Format returns the images' pixel format.
func (s *swapchain) Format() driver.PixelFmt { return swapchainFmt }

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
		s.discard()
		for _, v := range s.views {
			if v != nil {
				s.g.evictView(v)
			}
		}
		s.surf.Unconfigure(s.g.dev)
		s.surf.Destroy()
	}
	*s = swapchain{}
}
