// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrWindow represents an error related to a specific window.
// This error usually indicates that a window misconfiguration
// is preventing correct operation. For instance, the driver
// may require a visible window to create a swapchain.
var ErrWindow = errors.New("driver: window-related error")

// ErrSwapchain represents an error related to a specific
// swapchain.
// This error usually indicates that changes to the window or
// compositor made the swapchain unusable. Callers recover by
// calling Recreate and acquiring again.
var ErrSwapchain = errors.New("driver: swapchain-related error")

// PresentMode is the type of presentation modes.
type PresentMode int

// Presentation modes.
const (
	// Wait for vertical blank, queueing images.
	PFifo PresentMode = iota
	// Wait for vertical blank, replacing the queued image.
	PMailbox
	// Do not wait for vertical blank.
	PImmediate
)

// ColorSpace is the type of swapchain color spaces.
type ColorSpace int

// Color spaces.
const (
	CSRGBNonlinear ColorSpace = iota
)

// Presenter is the interface that a GPU may implement
// to enable presentation on a display.
type Presenter interface {
	// NewSwapchain creates a new swapchain with at least
	// imageCount images, sized to the window.
	// The presentation engine may create more; the
	// Swapchain's ImageCount method reports how many.
	// Only one swapchain can be associated with a specific
	// Window at a time.
	NewSwapchain(win Window, imageCount int, mode PresentMode) (Swapchain, error)
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Next to acquire an image, waits on
// the semaphore it signals when submitting commands that
// render to the image (transitioning it from Undefined or
// Present to ColorAttachment and back to Present), then
// calls Queue.Present with the image index.
type Swapchain interface {
	Destroyer

	// Views returns the list of image views that
	// comprises the swapchain.
	// This value remains unchanged as long as the
	// swapchain's Destroy or Recreate methods are
	// not called.
	Views() []ImageView

	// Images returns the images that back Views.
	Images() []Image

	// Next acquires the next writable image and
	// returns its index.
	// sem and/or fence, if not nil, are signaled
	// once the image can be written to. Rendering to
	// the image must wait for them.
	// If the swapchain is out of date, the error
	// wraps ErrSwapchain.
	Next(sem Semaphore, fence Fence) (int, error)

	// Recreate recreates the swapchain with the
	// window's current size.
	// Every image and view is replaced, and render
	// passes and framebuffers cached by the GPU are
	// discarded.
	Recreate() error

	// Format returns the image views' PixelFmt.
	Format() PixelFmt

	// ImageCount returns the number of images.
	ImageCount() int

	// PresentMode returns the presentation mode.
	PresentMode() PresentMode

	// ColorSpace returns the color space.
	ColorSpace() ColorSpace

	// Size returns the size of the images.
	Size() (width, height int)
}
