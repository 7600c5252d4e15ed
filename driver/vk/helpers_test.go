// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"log"
	"os"
	"testing"

	"github.com/gogpu/naga"

	"github.com/gviegas/rhi/driver"
)

// Helpers for testing.

// tDrv is the driver managed by TestMain.
var tDrv = Driver{}

// tGPU is the GPU opened by TestMain.
// It is nil if no Vulkan implementation is available, in
// which case tests that need a device are skipped.
var tGPU *GPU

// TestMain runs the tests between calls to tDrv.Open and tDrv.Close.
func TestMain(m *testing.M) {
	gpu, err := tDrv.Open()
	if err != nil {
		log.Printf("\n\tDriver.Open failed: %v\n\tSkipping device tests", err)
	} else {
		tGPU = gpu.(*GPU)
		log.Printf("\n\tUsing %s (%v)", tGPU.Info().Name, tGPU.Info().Type)
	}
	c := m.Run()
	if tGPU != nil {
		tDrv.Close()
	}
	os.Exit(c)
}

// needGPU skips t if there is no device.
func needGPU(t *testing.T) {
	t.Helper()
	if tGPU == nil {
		t.Skip("no Vulkan device")
	}
}

// isError checks multiple errors for equality.
func isError(e error, targets ...error) bool {
	for _, x := range targets {
		if errors.Is(e, x) {
			return true
		}
	}
	return false
}

// panics returns whether f panics.
func panics(f func()) (ok bool) {
	defer func() { ok = recover() != nil }()
	f()
	return
}

// WGSL sources used to create shaders.
const (
	gbufVS = `
struct Frame {
	mvp: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> frame: Frame;

@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
	return frame.mvp * vec4<f32>(pos, 1.0);
}
`
	gbufFS = `
struct GBuffer {
	@location(0) albedo: vec4<f32>,
	@location(1) normal: vec4<f32>,
	@location(2) material: vec4<f32>,
	@location(3) emissive: vec4<f32>,
}

@fragment
fn fs_main() -> GBuffer {
	var g: GBuffer;
	g.albedo = vec4<f32>(1.0, 1.0, 1.0, 1.0);
	g.normal = vec4<f32>(0.0, 0.0, 1.0, 0.0);
	g.material = vec4<f32>(0.5, 0.5, 0.0, 1.0);
	g.emissive = vec4<f32>(0.0, 0.0, 0.0, 1.0);
	return g;
}
`
	doubleCS = `
struct Data {
	values: array<u32, 64>,
}

@group(1) @binding(2) var<storage, read_write> data: Data;

@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
	data.values[id.x] = data.values[id.x] * 2u;
}
`
)

// newShader compiles src and creates a shader for stg.
func newShader(t *testing.T, stg driver.Stage, src string) driver.Shader {
	t.Helper()
	code, err := naga.Compile(src)
	if err != nil {
		t.Fatalf("naga.Compile:\nhave %v\nwant nil", err)
	}
	sh, err := tGPU.NewShader(stg, code)
	if err != nil {
		t.Fatalf("GPU.NewShader:\nhave %v\nwant nil", err)
	}
	return sh
}

// newTarget creates an image and a 2D view of it.
func newTarget(t *testing.T, f driver.PixelFmt, w, h, samples int) (driver.Image, driver.ImageView) {
	t.Helper()
	img, err := tGPU.NewImage(&driver.ImageDesc{
		Format:  f,
		Size:    driver.Dim3D{Width: w, Height: h, Depth: 1},
		Layers:  1,
		Levels:  1,
		Samples: samples,
		Usage:   driver.URenderTarget | driver.UShaderSample,
	})
	if err != nil {
		t.Fatalf("GPU.NewImage:\nhave %v\nwant nil", err)
	}
	typ := driver.IView2D
	if samples > 1 {
		typ = driver.IView2DMS
	}
	iv, err := img.NewView(typ, 0, 1, 0, 1)
	if err != nil {
		t.Fatalf("Image.NewView:\nhave %v\nwant nil", err)
	}
	return img, iv
}

// newCmdBuffer creates a command pool for the graphics
// queue and a command buffer from it.
func newCmdBuffer(t *testing.T) (driver.CmdPool, driver.CmdBuffer) {
	t.Helper()
	pool, err := tGPU.NewCmdPool(tGPU.Queue(driver.QGraphics))
	if err != nil {
		t.Fatalf("GPU.NewCmdPool:\nhave %v\nwant nil", err)
	}
	cb, err := pool.NewCmdBuffer()
	if err != nil {
		t.Fatalf("CmdPool.NewCmdBuffer:\nhave %v\nwant nil", err)
	}
	if x := cb.State(); x != driver.CmdInitial {
		t.Fatalf("CmdBuffer.State:\nhave %v\nwant %v", x, driver.CmdInitial)
	}
	return pool, cb
}
