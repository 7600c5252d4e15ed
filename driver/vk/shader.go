// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/spirv"
)

// shader implements driver.Shader.
type shader struct {
	g   *GPU
	mod vk.ShaderModule
	stg driver.Stage
	ref *spirv.Module
}

// NewShader creates a new shader from SPIR-V code.
func (g *GPU) NewShader(stg driver.Stage, code []byte) (driver.Shader, error) {
	ref, err := spirv.Reflect(code)
	if err != nil {
		return nil, err
	}
	if ref.Stage()&stg == 0 {
		return nil, fmt.Errorf("vk: shader code has no %v entry point", stg)
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(ref.Words) * 4),
		PCode:    ref.Words,
	}
	var mod vk.ShaderModule
	if err := checkResult(vk.CreateShaderModule(g.dev, &info, nil, &mod)); err != nil {
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
		vk.DestroyShaderModule(s.g.dev, s.mod, nil)
	}
	*s = shader{}
}
