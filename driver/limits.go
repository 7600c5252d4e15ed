// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"strconv"
)

// Capacity constants.
// These bound fixed-size tables used by the driver and its
// backends. Exceeding any of them is a programming error
// and causes a panic.
const (
	// Maximum number of descriptor sets in a pipeline.
	MaxSets = 4
	// Maximum number of bindings in a descriptor set.
	// Binding numbers must be less than this value.
	MaxBindings = 16
	// Maximum number of color attachments in a pass.
	MaxColorAttach = 8
	// Maximum number of vertex buffer bindings.
	MaxVertexBindings = 16
	// Maximum number of vertex attributes.
	MaxVertexAttrs = 16
	// Size in bytes of the push constant range that
	// every pipeline reserves.
	MaxPushConstant = 128
	// Maximum number of descriptor sets allocated from
	// a GPU's descriptor pool.
	MaxDescSets = 1024
	// Maximum number of elements in a descriptor array.
	MaxDescCount = 256
)

// checkLimit panics if n exceeds max.
func checkLimit(what string, n, max int) {
	if n > max {
		panic("driver: too many " + what + " (" + strconv.Itoa(n) + " > " + strconv.Itoa(max) + ")")
	}
}

// CheckLimit panics if n exceeds max.
// Backends use it to enforce the capacity constants.
func CheckLimit(what string, n, max int) { checkLimit(what, n, max) }
