// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package passcache implements a fingerprint-keyed cache
// of render passes and framebuffers.
package passcache

// Cache maps fingerprints to built values.
// It is not safe for concurrent use.
type Cache[K comparable, V any] struct {
	m      map[K]V
	hits   int
	misses int
	inval  int
}

// Get returns the value cached for k.
// On a miss, it calls build and caches the result, unless
// build fails. built reports whether build was called.
func (c *Cache[K, V]) Get(k K, build func() (V, error)) (v V, built bool, err error) {
	if v, ok := c.m[k]; ok {
		c.hits++
		return v, false, nil
	}
	c.misses++
	if v, err = build(); err != nil {
		return
	}
	if c.m == nil {
		c.m = make(map[K]V)
	}
	c.m[k] = v
	return v, true, nil
}

// Len returns the number of cached values.
func (c *Cache[_, _]) Len() int { return len(c.m) }

// Invalidate removes every cached value, calling destroy
// (if not nil) on each one.
func (c *Cache[K, V]) Invalidate(destroy func(V)) {
	if destroy != nil {
		for _, v := range c.m {
			destroy(v)
		}
	}
	clear(c.m)
	c.inval++
}

// Evict removes the cached values whose key satisfies
// pred, calling destroy (if not nil) on each one.
// It returns the number of values removed.
func (c *Cache[K, V]) Evict(pred func(K) bool, destroy func(V)) int {
	n := 0
	for k, v := range c.m {
		if pred(k) {
			if destroy != nil {
				destroy(v)
			}
			delete(c.m, k)
			n++
		}
	}
	return n
}

// Stats returns the number of hits, misses and whole
// cache invalidations since the cache was created.
func (c *Cache[_, _]) Stats() (hits, misses, invalidations int) {
	return c.hits, c.misses, c.inval
}
