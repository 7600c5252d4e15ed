// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build cgo

package main

var wantDrivers = []string{"vulkan", "wgpu"}
