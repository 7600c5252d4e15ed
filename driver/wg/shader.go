// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/spirv"
)

// shader implements driver.Shader.
type shader struct {
	g   *GPU
	mod hal.ShaderModule
	stg driver.Stage
	ref *spirv.Module
}

// NewShader creates a new shader from SPIR-V code.
// stg must be one of the stages with an entry point in
// code.
func (g *GPU) NewShader(stg driver.Stage, code []byte) (driver.Shader, error) {
	ref, err := spirv.Reflect(code)
	if err != nil {
		return nil, err
	}
	if ref.Stage()&stg == 0 {
		return nil, fmt.Errorf("wg: shader code has no %v entry point", stg)
	}
	mod, err := g.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Source: hal.ShaderSource{SPIRV: ref.Words},
	})
	if err != nil {
		return nil, err
	}
	return &shader{g: g, mod: mod, stg: stg, ref: ref}, nil
}

// Stage returns the shader's stage.
func (s *shader) Stage() driver.Stage { return s.stg }

// Bindings returns the reflected descriptor bindings.
func (s *shader) Bindings() []driver.Binding { return s.ref.Bindings }

// Destroy destroys the shader.
func (s *shader) Destroy() {
	if s == nil {
		return
	}
	if s.g != nil {
		s.g.dev.DestroyShaderModule(s.mod)
	}
	*s = shader{}
}
