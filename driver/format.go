// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FInvalid PixelFmt = iota
	// Color, 8-bit channels.
	RGBA8un
	RGBA8n
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	RG8un
	RG8n
	R8un
	R8n
	// Color, 16-bit channels.
	RGBA16f
	RG16f
	R16f
	// Color, 32-bit channels.
	RGBA32f
	RG32f
	R32f
	// Depth/Stencil.
	D16un
	D32f
	S8ui
	D24unS8ui
	D32fS8ui
)

// HasDepth returns whether f has a depth component.
func (f PixelFmt) HasDepth() bool {
	switch f {
	case D16un, D32f, D24unS8ui, D32fS8ui:
		return true
	}
	return false
}

// HasStencil returns whether f has a stencil component.
func (f PixelFmt) HasStencil() bool {
	switch f {
	case S8ui, D24unS8ui, D32fS8ui:
		return true
	}
	return false
}

// IsDS returns whether f is a depth and/or stencil format.
func (f PixelFmt) IsDS() bool { return f.HasDepth() || f.HasStencil() }

// Size returns the size in bytes of a single pixel.
// For packed depth/stencil formats, it returns the size
// of a texel as copied from/to buffers.
func (f PixelFmt) Size() int {
	switch f {
	case RGBA8un, RGBA8n, RGBA8sRGB, BGRA8un, BGRA8sRGB, RG16f, R32f, D32f, D24unS8ui:
		return 4
	case RG8un, RG8n, R16f, D16un:
		return 2
	case R8un, R8n, S8ui:
		return 1
	case RGBA16f, RG32f, D32fS8ui:
		return 8
	case RGBA32f:
		return 16
	}
	return 0
}

func (f PixelFmt) String() string {
	if f < 0 || int(f) >= len(fmtNames) {
		return "PixelFmt(?)"
	}
	return fmtNames[f]
}

var fmtNames = [...]string{
	FInvalid:  "Invalid",
	RGBA8un:   "RGBA8un",
	RGBA8n:    "RGBA8n",
	RGBA8sRGB: "RGBA8sRGB",
	BGRA8un:   "BGRA8un",
	BGRA8sRGB: "BGRA8sRGB",
	RG8un:     "RG8un",
	RG8n:      "RG8n",
	R8un:      "R8un",
	R8n:       "R8n",
	RGBA16f:   "RGBA16f",
	RG16f:     "RG16f",
	R16f:      "R16f",
	RGBA32f:   "RGBA32f",
	RG32f:     "RG32f",
	R32f:      "R32f",
	D16un:     "D16un",
	D32f:      "D32f",
	S8ui:      "S8ui",
	D24unS8ui: "D24unS8ui",
	D32fS8ui:  "D32fS8ui",
}

// Aspect is the aspect of an image subresource.
type Aspect int

// Aspects.
const (
	AspColor Aspect = 1 << iota
	AspDepth
	AspStencil
)

// AspectOf returns the aspect that barriers on images of
// format f must use.
// It is exactly one of AspColor, AspDepth or AspStencil:
// combined depth/stencil formats use AspDepth.
func AspectOf(f PixelFmt) Aspect {
	switch {
	case f.HasDepth():
		return AspDepth
	case f.HasStencil():
		return AspStencil
	}
	return AspColor
}
