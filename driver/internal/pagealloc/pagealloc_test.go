// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pagealloc

import (
	"testing"
)

func TestZero(t *testing.T) {
	var a Alloc
	if a.s != nil {
		t.Fatalf("a.s:\nhave %v\nwant nil", a.s)
	}
	if n := a.Len(); n != 0 {
		t.Fatalf("a.Len:\nhave %d\nwant 0", n)
	}
	if n := a.Rem(); n != 0 {
		t.Fatalf("a.Rem:\nhave %d\nwant 0", n)
	}
	if _, ok := a.Alloc(1); ok {
		t.Fatal("a.Alloc(1) on empty allocator:\nhave true\nwant false")
	}
}

func TestGrow(t *testing.T) {
	var a Alloc
	for _, x := range [...]struct {
		npages, wantIdx, wantLen int
	}{
		{1, 0, 64},
		{64, 64, 128},
		{65, 128, 256},
		{0, 256, 256},
		{-1, 256, 256},
		{200, 256, 512},
	} {
		if i := a.Grow(x.npages); i != x.wantIdx {
			t.Fatalf("a.Grow(%d):\nhave %d\nwant %d", x.npages, i, x.wantIdx)
		}
		if n := a.Len(); n != x.wantLen {
			t.Fatalf("a.Grow(%d): Len:\nhave %d\nwant %d", x.npages, n, x.wantLen)
		}
		if n := a.Rem(); n != x.wantLen {
			t.Fatalf("a.Grow(%d): Rem:\nhave %d\nwant %d", x.npages, n, x.wantLen)
		}
	}
}

func TestAllocFree(t *testing.T) {
	var a Alloc
	a.Grow(128)
	for i := range 10 {
		idx, ok := a.Alloc(1)
		if !ok || idx != i {
			t.Fatalf("a.Alloc(1):\nhave %d, %t\nwant %d, true", idx, ok, i)
		}
	}
	if n := a.Rem(); n != 118 {
		t.Fatalf("a.Rem:\nhave %d\nwant 118", n)
	}
	// Spans the first word boundary.
	idx, ok := a.Alloc(60)
	if !ok || idx != 10 {
		t.Fatalf("a.Alloc(60):\nhave %d, %t\nwant 10, true", idx, ok)
	}
	for i := range 70 {
		if !a.IsSet(i) {
			t.Fatalf("a.IsSet(%d):\nhave false\nwant true", i)
		}
	}
	a.Free(3, 4)
	if idx, ok := a.Alloc(4); !ok || idx != 3 {
		t.Fatalf("a.Alloc(4) after Free(3, 4):\nhave %d, %t\nwant 3, true", idx, ok)
	}
	if idx, ok := a.Alloc(5); !ok || idx != 70 {
		t.Fatalf("a.Alloc(5):\nhave %d, %t\nwant 70, true", idx, ok)
	}
	if _, ok := a.Alloc(100); ok {
		t.Fatal("a.Alloc(100):\nhave true\nwant false")
	}
	a.Free(0, 1000)
	if n := a.Rem(); n != a.Len() {
		t.Fatalf("a.Rem after freeing everything:\nhave %d\nwant %d", n, a.Len())
	}
}

func TestAllocFull(t *testing.T) {
	var a Alloc
	a.Grow(64)
	if idx, ok := a.Alloc(64); !ok || idx != 0 {
		t.Fatalf("a.Alloc(64):\nhave %d, %t\nwant 0, true", idx, ok)
	}
	if _, ok := a.Alloc(1); ok {
		t.Fatal("a.Alloc(1) when full:\nhave true\nwant false")
	}
	i := a.Grow(1)
	if idx, ok := a.Alloc(1); !ok || idx != i {
		t.Fatalf("a.Alloc(1) after Grow:\nhave %d, %t\nwant %d, true", idx, ok, i)
	}
	a.Reset()
	if n := a.Rem(); n != 128 {
		t.Fatalf("a.Rem after Reset:\nhave %d\nwant 128", n)
	}
}

func TestPages(t *testing.T) {
	for _, x := range [...]struct {
		size, page int64
		want       int
	}{
		{0, 256, 0},
		{1, 256, 1},
		{256, 256, 1},
		{257, 256, 2},
		{1 << 20, 4096, 256},
	} {
		if n := Pages(x.size, x.page); n != x.want {
			t.Fatalf("Pages(%d, %d):\nhave %d\nwant %d", x.size, x.page, n, x.want)
		}
	}
}
