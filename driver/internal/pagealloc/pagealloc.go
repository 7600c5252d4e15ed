// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package pagealloc implements a page allocator over a
// growable bit vector.
// Backends use it to sub-allocate device memory blocks and
// to track descriptor pool slots.
package pagealloc

import (
	"math/bits"
)

const nbit = 64

// Alloc is a page allocator.
// Each bit of the vector represents a page; set bits are
// in use.
// The zero value is an empty allocator.
type Alloc struct {
	s   []uint64
	rem int
}

// Len returns the number of pages managed by a.
func (a *Alloc) Len() int { return len(a.s) * nbit }

// Rem returns the number of free pages.
func (a *Alloc) Rem() int { return a.rem }

// Grow appends enough free pages to satisfy a request of
// npages contiguous pages.
// It returns the index of the first new page.
func (a *Alloc) Grow(npages int) (index int) {
	index = a.Len()
	if npages <= 0 {
		return
	}
	n := (npages + nbit - 1) / nbit
	a.s = append(a.s, make([]uint64, n)...)
	a.rem += n * nbit
	return
}

// IsSet returns whether the page at index is in use.
func (a *Alloc) IsSet(index int) bool {
	return a.s[index/nbit]&(1<<(index%nbit)) != 0
}

func (a *Alloc) set(index int) {
	i, b := index/nbit, uint64(1)<<(index%nbit)
	if a.s[i]&b == 0 {
		a.s[i] |= b
		a.rem--
	}
}

func (a *Alloc) unset(index int) {
	i, b := index/nbit, uint64(1)<<(index%nbit)
	if a.s[i]&b != 0 {
		a.s[i] &^= b
		a.rem++
	}
}

// search locates n contiguous free pages.
func (a *Alloc) search(n int) (index int, ok bool) {
	if n <= 0 || a.rem < n {
		return
	}
	if n == 1 {
		for i, x := range a.s {
			if x != ^uint64(0) {
				return i*nbit + bits.TrailingZeros64(^x), true
			}
		}
		return
	}
	cnt := 0
	for i, x := range a.s {
		switch x {
		case 0:
			if cnt == 0 {
				index = i * nbit
			}
			cnt += nbit
		case ^uint64(0):
			cnt = 0
		default:
			for b := range nbit {
				if x&(1<<b) != 0 {
					cnt = 0
					continue
				}
				if cnt == 0 {
					index = i*nbit + b
				}
				cnt++
				if cnt >= n {
					return index, true
				}
			}
			continue
		}
		if cnt >= n {
			return index, true
		}
	}
	return 0, false
}

// Alloc allocates n contiguous pages.
// It fails only when there is no such range; callers
// then Grow and try again.
func (a *Alloc) Alloc(n int) (index int, ok bool) {
	index, ok = a.search(n)
	if ok {
		for i := index; i < index+n; i++ {
			a.set(i)
		}
	}
	return
}

// Free frees n pages starting at index.
// Freeing pages not in use is a no-op.
func (a *Alloc) Free(index, n int) {
	for i := max(index, 0); i < min(index+n, a.Len()); i++ {
		a.unset(i)
	}
}

// Reset frees every page.
func (a *Alloc) Reset() {
	clear(a.s)
	a.rem = a.Len()
}

// Pages returns how many pages of size pageSize are
// needed to hold size bytes.
func Pages(size, pageSize int64) int {
	return int((size + pageSize - 1) / pageSize)
}
