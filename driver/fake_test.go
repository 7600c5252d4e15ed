// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"strings"
	"testing"
)

// Minimal implementations of driver interfaces that carry
// only the data that backend-independent code looks at.

type fakeImage struct{ desc ImageDesc }

func (*fakeImage) Destroy()            {}
func (i *fakeImage) Desc() ImageDesc { return i.desc }
func (i *fakeImage) NewView(ViewType, int, int, int, int) (ImageView, error) {
	return &fakeView{i}, nil
}

type fakeView struct{ img *fakeImage }

func (*fakeView) Destroy()         {}
func (v *fakeView) Image() Image { return v.img }

func newView(f PixelFmt, samples int) ImageView {
	return &fakeView{&fakeImage{ImageDesc{
		Format:  f,
		Size:    Dim3D{1920, 1080, 1},
		Layers:  1,
		Levels:  1,
		Samples: samples,
		Usage:   URenderTarget,
	}}}
}

type fakeBuffer struct{ size int64 }

func (*fakeBuffer) Destroy()                {}
func (b *fakeBuffer) Size() int64         { return b.size }
func (*fakeBuffer) Usage() Usage          { return UGeneric }
func (*fakeBuffer) MemUsage() MemUsage    { return MemCPUToGPU }
func (b *fakeBuffer) Map() ([]byte, error) { return make([]byte, b.size), nil }
func (*fakeBuffer) Unmap()                {}

type fakeQueue struct {
	typ QueueType
	fam int
}

func (q *fakeQueue) Type() QueueType                        { return q.typ }
func (q *fakeQueue) Family() int                            { return q.fam }
func (*fakeQueue) Submit(*Submit) error                     { return nil }
func (*fakeQueue) Present(Swapchain, int, []Semaphore) error { return nil }
func (*fakeQueue) ImmediateSubmit([]CmdBuffer) error        { return nil }
func (*fakeQueue) WaitIdle() error                          { return nil }

type fakeShader struct {
	stg  Stage
	bind []Binding
}

func (*fakeShader) Destroy()              {}
func (s *fakeShader) Stage() Stage        { return s.stg }
func (s *fakeShader) Bindings() []Binding { return s.bind }

type fakePass struct{}

func (fakePass) Samples() int             { return 1 }
func (fakePass) ColorFormats() []PixelFmt { return []PixelFmt{RGBA8un} }
func (fakePass) DSFormat() PixelFmt       { return FInvalid }

type fakeLayout struct{ desc SetDesc }

func (l *fakeLayout) Desc() *SetDesc { return &l.desc }

type fakeSet struct{ layout *fakeLayout }

func (*fakeSet) Destroy()                  {}
func (s *fakeSet) Layout() DescSetLayout { return s.layout }

type fakeSampler struct{}

func (fakeSampler) Destroy() {}

// fakeGPU only satisfies the GPU interface.
type fakeGPU struct{ GPU }

type fakeDriver struct {
	name   string
	err    error
	opened int
	closed int
}

func (d *fakeDriver) Open() (GPU, error) {
	d.opened++
	if d.err != nil {
		return nil, d.err
	}
	return fakeGPU{}, nil
}

func (d *fakeDriver) Name() string { return d.name }
func (d *fakeDriver) Close()       { d.closed++ }

var errFakeOpen = errors.New("fake: cannot open")

// mustPanic calls f and fails t if it does not panic with
// a message containing substr.
func mustPanic(t *testing.T, substr string, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		x := recover()
		if x == nil {
			t.Fatalf("no panic\nwant panic containing %q", substr)
		}
		if s, ok := x.(string); !ok || !strings.Contains(s, substr) {
			t.Fatalf("panic:\nhave %v\nwant message containing %q", x, substr)
		}
	}()
	f()
}
