// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build !cgo

package main

import (
	_ "github.com/gogpu/wgpu/hal/allbackends"
)
