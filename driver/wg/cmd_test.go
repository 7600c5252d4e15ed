// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/gviegas/rhi/driver"
)

// newCmdBuffer creates a command pool for the GPU's queue
// and a command buffer from it.
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

func TestCmdPool(t *testing.T) {
	pool, cb := newCmdBuffer(t)
	if x := pool.Queue(); x != tGPU.Queue(driver.QGraphics) {
		t.Fatalf("CmdPool.Queue:\nhave %v\nwant %v", x, tGPU.Queue(driver.QGraphics))
	}
	cb2, _ := pool.NewCmdBuffer()
	if n := len(pool.(*cmdPool).cbs); n != 2 {
		t.Fatalf("CmdPool.NewCmdBuffer: len(cbs)\nhave %d\nwant 2", n)
	}
	for _, c := range [...]driver.CmdBuffer{cb, cb2} {
		if err := c.Begin(); err != nil {
			t.Fatalf("CmdBuffer.Begin:\nhave %v\nwant nil", err)
		}
	}
	if err := pool.Reset(); err != nil {
		t.Fatalf("CmdPool.Reset:\nhave %v\nwant nil", err)
	}
	for _, c := range [...]driver.CmdBuffer{cb, cb2} {
		if x := c.State(); x != driver.CmdInitial {
			t.Fatalf("CmdPool.Reset: State\nhave %v\nwant %v", x, driver.CmdInitial)
		}
	}
	cb.Destroy()
	if n := len(pool.(*cmdPool).cbs); n != 1 {
		t.Fatalf("CmdBuffer.Destroy: len(cbs)\nhave %d\nwant 1", n)
	}
	pool.Destroy()
	if p := pool.(*cmdPool); p.g != nil || p.q != nil || p.cbs != nil {
		t.Fatal("CmdPool.Destroy: pool not zeroed")
	}
	if _, err := tGPU.NewCmdPool(nil); err == nil {
		t.Fatal("GPU.NewCmdPool(nil)\nhave nil\nwant non-nil")
	}
}

// TestGBuffer renders a triangle into a G-buffer and waits
// for completion.
func TestGBuffer(t *testing.T) {
	const w, h = 1920, 1080
	gb := newGBuffer(t, w, h)
	defer gb.destroy()
	desc := gb.desc(w, h)
	pl, free := newGBufPipeline(t, desc)
	defer free()

	ubuf, err := tGPU.NewBuffer(64, driver.UShaderConst, driver.MemCPUToGPU)
	if err != nil {
		t.Fatalf("GPU.NewBuffer:\nhave %v\nwant nil", err)
	}
	defer ubuf.Destroy()
	p, _ := ubuf.Map()
	for i := range 4 {
		binary.LittleEndian.PutUint32(p[i*20:], math.Float32bits(1))
	}
	ubuf.Unmap()
	vbuf, err := tGPU.NewBuffer(36, driver.UVertexData, driver.MemCPUToGPU)
	if err != nil {
		t.Fatalf("GPU.NewBuffer:\nhave %v\nwant nil", err)
	}
	defer vbuf.Destroy()
	p, _ = vbuf.Map()
	for i, f := range [...]float32{-1, -1, 0, 1, -1, 0, 0, 1, 0} {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(f))
	}
	vbuf.Unmap()

	ds, err := tGPU.NewDescSet(pl.SetLayout(0))
	if err != nil {
		t.Fatalf("GPU.NewDescSet:\nhave %v\nwant nil", err)
	}
	defer ds.Destroy()
	tGPU.UpdateDescSets([]driver.DescWrite{{Set: ds, Nr: 0, Buf: ubuf, Size: 64}})

	pool, cb := newCmdBuffer(t)
	defer pool.Destroy()
	s0 := tGPU.PassStats()

	for frame := range 3 {
		if err := cb.Begin(); err != nil {
			t.Fatalf("CmdBuffer.Begin:\nhave %v\nwant nil", err)
		}
		if x := cb.State(); x != driver.CmdRecording {
			t.Fatalf("CmdBuffer.State:\nhave %v\nwant %v", x, driver.CmdRecording)
		}
		cb.BeginPass(desc)
		cb.SetPipeline(pl)
		cb.SetViewport(driver.Viewport{Width: w, Height: h, Zfar: 1})
		cb.SetScissor(driver.Scissor{Width: w, Height: h})
		cb.SetVertexBuf(0, []driver.Buffer{vbuf}, []int64{0})
		cb.SetDescSet(pl, 0, []driver.DescSet{ds})
		cb.Draw(3, 1, 0, 0)
		cb.EndPass()
		if err := cb.End(); err != nil {
			t.Fatalf("CmdBuffer.End:\nhave %v\nwant nil", err)
		}
		if x := cb.State(); x != driver.CmdExecutable {
			t.Fatalf("CmdBuffer.State:\nhave %v\nwant %v", x, driver.CmdExecutable)
		}

		f, _ := tGPU.NewFence(false)
		err := tGPU.Queue(driver.QGraphics).Submit(&driver.Submit{
			Cmds:  []driver.CmdBuffer{cb},
			Fence: f,
		})
		if err != nil {
			t.Fatalf("Queue.Submit:\nhave %v\nwant nil", err)
		}
		if x := cb.State(); x != driver.CmdPending {
			t.Fatalf("CmdBuffer.State:\nhave %v\nwant %v", x, driver.CmdPending)
		}
		if err := tGPU.WaitFences([]driver.Fence{f}, true, time.Second); err != nil {
			t.Fatalf("GPU.WaitFences:\nhave %v\nwant nil", err)
		}
		if ok, _ := f.Signaled(); !ok {
			t.Fatal("Fence.Signaled:\nhave false\nwant true")
		}
		f.Destroy()
		if err := cb.Reset(); err != nil {
			t.Fatalf("CmdBuffer.Reset:\nhave %v\nwant nil", err)
		}
		if x := cb.State(); x != driver.CmdInitial {
			t.Fatalf("CmdBuffer.State:\nhave %v\nwant %v", x, driver.CmdInitial)
		}

		// Only the first frame creates a render pass.
		s := tGPU.PassStats()
		if s.Misses != s0.Misses || s.Hits != s0.Hits+frame+1 {
			t.Fatalf("GPU.PassStats (frame %d):\nhave %+v\nwant %d more hits than %+v", frame, s, frame+1, s0)
		}
	}
}

func TestCmdState(t *testing.T) {
	pool, cb := newCmdBuffer(t)
	defer pool.Destroy()
	buf, _ := tGPU.NewBuffer(256, driver.UGeneric, driver.MemCPUToGPU)
	defer buf.Destroy()
	const w, h = 64, 64
	gb := newGBuffer(t, w, h)
	defer gb.destroy()
	desc := gb.desc(w, h)

	for _, x := range [...]struct {
		name string
		f    func()
	}{
		{"Fill before Begin", func() { cb.Fill(buf, 0, 0, 256) }},
		{"End before Begin", func() { cb.End() }},
		{"Draw outside pass", func() { cb.Begin(); cb.Draw(3, 1, 0, 0) }},
		{"Draw without pipeline", func() { cb.Begin(); cb.BeginPass(desc); cb.Draw(3, 1, 0, 0) }},
		{"Fill inside pass", func() { cb.Begin(); cb.BeginPass(desc); cb.Fill(buf, 0, 0, 256) }},
		{"nested pass", func() { cb.Begin(); cb.BeginPass(desc); cb.BeginPass(desc) }},
		{"End inside pass", func() { cb.Begin(); cb.BeginPass(desc); cb.End() }},
		{"Begin twice", func() { cb.Begin(); cb.Begin() }},
		{"Dispatch without pipeline", func() { cb.Begin(); cb.Dispatch(1, 1, 1) }},
		{"PushConstants", func() { cb.Begin(); cb.PushConstants(nil, 0, []byte{0}) }},
		{"Fill out of bounds", func() { cb.Begin(); cb.Fill(buf, 128, 1, 256) }},
		{"negative scissor", func() { cb.Begin(); cb.SetScissor(driver.Scissor{X: -1}) }},
	} {
		if !panics(x.f) {
			t.Errorf("%s: did not panic", x.name)
		}
		if err := cb.Reset(); err != nil {
			t.Fatalf("%s: CmdBuffer.Reset:\nhave %v\nwant nil", x.name, err)
		}
	}

	// Submitting a command buffer that is not executable.
	cb.Begin()
	if !panics(func() { tGPU.Queue(driver.QGraphics).Submit(&driver.Submit{Cmds: []driver.CmdBuffer{cb}}) }) {
		t.Error("Queue.Submit (recording): did not panic")
	}
}

func TestCopy(t *testing.T) {
	pool, cb := newCmdBuffer(t)
	defer pool.Destroy()

	src, _ := tGPU.NewBuffer(1<<16, driver.UCopySrc, driver.MemCPUToGPU)
	defer src.Destroy()
	dst, _ := tGPU.NewBuffer(1<<16, driver.UCopyDst, driver.MemGPUToCPU)
	defer dst.Destroy()
	img, _ := tGPU.NewImage(&driver.ImageDesc{
		Format: driver.RGBA8un,
		Size:   driver.Dim3D{Width: 64, Height: 64},
		Layers: 2,
		Levels: 2,
		Usage:  driver.UShaderSample | driver.URenderTarget,
	})
	defer img.Destroy()
	img2, _ := tGPU.NewImage(&driver.ImageDesc{
		Format: driver.RGBA8un,
		Size:   driver.Dim3D{Width: 64, Height: 64},
		Usage:  driver.UShaderSample,
	})
	defer img2.Destroy()
	vol, _ := tGPU.NewImage(&driver.ImageDesc{
		Format: driver.R8un,
		Size:   driver.Dim3D{Width: 16, Height: 16, Depth: 16},
		Usage:  driver.UShaderSample | driver.URenderTarget,
	})
	defer vol.Destroy()

	cb.Begin()
	cb.Fill(src, 0, 0, 1<<15)
	cb.Fill(src, 1<<15, 0xab, 1<<15)
	if n := len(cb.(*cmdBuffer).tmpBufs); n != 1 {
		t.Fatalf("CmdBuffer.Fill: len(tmpBufs)\nhave %d\nwant 1", n)
	}
	cb.CopyBuffer(&driver.BufferCopy{From: src, To: dst, Size: 1 << 16})
	cb.Barrier([]driver.Barrier{
		{Buf: src, Old: driver.TransferSrc, New: driver.TransferSrc},
		{Img: img, Old: driver.Undefined, New: driver.TransferDst},
		{Img: img2, Old: driver.Undefined, New: driver.TransferDst},
	})
	cb.CopyBufToImg(&driver.BufImgCopy{
		Buf:    src,
		Img:    img,
		Size:   driver.Dim3D{Width: 64, Height: 64, Depth: 1},
		Layers: 2,
	})
	cb.CopyImage(&driver.ImageCopy{
		From:   img,
		To:     img2,
		Size:   driver.Dim3D{Width: 64, Height: 64, Depth: 1},
		Layers: 1,
	})
	cb.CopyImgToBuf(&driver.BufImgCopy{
		Buf:    dst,
		Img:    img2,
		Stride: [2]int{128, 64},
		Size:   driver.Dim3D{Width: 32, Height: 32, Depth: 1},
	})
	cb.Blit(&driver.ImageBlit{
		From:     img,
		FromRect: [2]driver.Off3D{{}, {X: 32, Y: 32, Z: 1}},
		To:       img2,
		ToRect:   [2]driver.Off3D{{X: 32, Y: 32}, {X: 64, Y: 64, Z: 1}},
	})
	cb.ClearImage(img, driver.TransferDst, driver.ClearValue{Color: [4]float32{0, 0, 1, 1}})
	if n := len(cb.(*cmdBuffer).tmpViews); n != 4 {
		t.Fatalf("CmdBuffer.ClearImage: len(tmpViews)\nhave %d\nwant 4", n)
	}
	for _, x := range [...]struct {
		name string
		f    func()
	}{
		{"scaled Blit", func() {
			cb.Blit(&driver.ImageBlit{
				From:     img,
				FromRect: [2]driver.Off3D{{}, {X: 64, Y: 64, Z: 1}},
				To:       img2,
				ToRect:   [2]driver.Off3D{{}, {X: 32, Y: 32, Z: 1}},
			})
		}},
		{"ClearImage without URenderTarget", func() { cb.ClearImage(img2, driver.TransferDst, driver.ClearValue{}) }},
		{"ClearImage of 3D image", func() { cb.ClearImage(vol, driver.Undefined, driver.ClearValue{}) }},
		{"CopyBuffer out of bounds", func() {
			cb.CopyBuffer(&driver.BufferCopy{From: src, To: dst, ToOff: 1, Size: 1 << 16})
		}},
		{"CopyBufToImg with short stride", func() {
			cb.CopyBufToImg(&driver.BufImgCopy{Buf: src, Img: img2, Stride: [2]int{16, 0}, Size: driver.Dim3D{Width: 64, Height: 64, Depth: 1}})
		}},
		{"Barrier with no resource", func() { cb.Barrier([]driver.Barrier{{Old: driver.Undefined, New: driver.General}}) }},
	} {
		if !panics(x.f) {
			t.Errorf("%s: did not panic", x.name)
		}
	}
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End:\nhave %v\nwant nil", err)
	}
	if err := tGPU.Queue(driver.QGraphics).ImmediateSubmit([]driver.CmdBuffer{cb}); err != nil {
		t.Fatalf("Queue.ImmediateSubmit:\nhave %v\nwant nil", err)
	}
	if err := cb.Reset(); err != nil {
		t.Fatalf("CmdBuffer.Reset:\nhave %v\nwant nil", err)
	}
	c := cb.(*cmdBuffer)
	if len(c.tmpBufs) != 0 || len(c.tmpViews) != 0 {
		t.Fatalf("CmdBuffer.Reset: temporaries\nhave %d, %d\nwant 0, 0", len(c.tmpBufs), len(c.tmpViews))
	}
}

func TestDispatch(t *testing.T) {
	cs := newShader(t, driver.SCompute, doubleCS)
	defer cs.Destroy()
	pl, err := tGPU.NewCompPipeline(&driver.CompState{Func: driver.ShaderFunc{Code: cs, Name: "cs_main"}})
	if err != nil {
		t.Fatalf("GPU.NewCompPipeline:\nhave %v\nwant nil", err)
	}
	defer pl.Destroy()
	buf, _ := tGPU.NewBuffer(256, driver.UShaderRead|driver.UShaderWrite, driver.MemGPUOnly)
	defer buf.Destroy()
	ds, _ := tGPU.NewDescSet(pl.SetLayout(1))
	defer ds.Destroy()
	tGPU.UpdateDescSets([]driver.DescWrite{{Set: ds, Nr: 2, Buf: buf}})

	pool, cb := newCmdBuffer(t)
	defer pool.Destroy()
	cb.Begin()
	cb.SetPipeline(pl)
	if !panics(func() { cb.SetDescSet(pl, 0, []driver.DescSet{ds}) }) {
		t.Fatal("CmdBuffer.SetDescSet (empty set index): did not panic")
	}
	cb.SetDescSet(pl, 1, []driver.DescSet{ds})
	cb.Dispatch(1, 1, 1)
	cb.Barrier([]driver.Barrier{{Buf: buf, Old: driver.ShaderWrite, New: driver.ShaderReadOnly}})
	cb.Dispatch(4, 1, 1)
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End:\nhave %v\nwant nil", err)
	}
	if err := tGPU.Queue(driver.QCompute).ImmediateSubmit([]driver.CmdBuffer{cb}); err != nil {
		t.Fatalf("Queue.ImmediateSubmit:\nhave %v\nwant nil", err)
	}
}
