// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package spirv extracts descriptor bindings and entry
// points from SPIR-V modules.
package spirv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/gviegas/rhi/driver"
)

// Magic is the SPIR-V magic number.
const Magic = 0x07230203

// Opcodes and operands used during reflection.
const (
	opName                   = 5
	opEntryPoint             = 15
	opTypeImage              = 25
	opTypeSampler            = 26
	opTypeSampledImage       = 27
	opTypeArray              = 28
	opTypeRuntimeArray       = 29
	opTypeStruct             = 30
	opTypePointer            = 32
	opConstant               = 43
	opVariable               = 59
	opDecorate               = 71
	opTypeAccelerationStruct = 5341

	decBlock         = 2
	decBufferBlock   = 3
	decBinding       = 33
	decDescriptorSet = 34

	scUniformConstant = 0
	scUniform         = 2
	scPushConstant    = 9
	scStorageBuffer   = 12

	execVertex   = 0
	execFragment = 4
	execCompute  = 5

	dim1D          = 0
	dim3D          = 2
	dimCube        = 3
	dimBuffer      = 5
	dimSubpassData = 6
)

// formats maps SPIR-V image formats to pixel formats.
var formats = map[uint32]driver.PixelFmt{
	1:  driver.RGBA32f,
	2:  driver.RGBA16f,
	3:  driver.R32f,
	4:  driver.RGBA8un,
	5:  driver.RGBA8n,
	6:  driver.RG32f,
	7:  driver.RG16f,
	9:  driver.R16f,
	13: driver.RG8un,
	15: driver.R8un,
	18: driver.RG8n,
	20: driver.R8n,
}

// ErrInvalid means that the code is not a valid SPIR-V
// module.
var ErrInvalid = errors.New("spirv: invalid module")

// Entry is a shader entry point.
type Entry struct {
	Name  string
	Stage driver.Stage
}

// Module is the reflection of a SPIR-V module.
type Module struct {
	Words    []uint32
	Entries  []Entry
	Bindings []driver.Binding
	// PushConstants reports whether the module declares
	// a push constant block.
	PushConstants bool
}

// Stage returns the union of the stages of every entry
// point.
func (m *Module) Stage() (s driver.Stage) {
	for _, e := range m.Entries {
		s |= e.Stage
	}
	return
}

// Entry returns the entry point named name.
func (m *Module) Entry(name string) (Entry, bool) {
	i := slices.IndexFunc(m.Entries, func(e Entry) bool { return e.Name == name })
	if i < 0 {
		return Entry{}, false
	}
	return m.Entries[i], true
}

// Words converts code to 32-bit words, byte-swapping if
// code was produced on a machine of the other endianness.
func Words(code []byte) ([]uint32, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalid, len(code))
	}
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(code) == Magic:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(code) == Magic:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad magic number", ErrInvalid)
	}
	w := make([]uint32, len(code)/4)
	for i := range w {
		w[i] = order.Uint32(code[i*4:])
	}
	return w, nil
}

type typeInfo struct {
	op      uint32
	elem    uint32 // array/pointer element, sampled image's image
	length  uint32 // array length constant id
	sampled uint32 // OpTypeImage Sampled operand
	dim     uint32
	depth   bool
	arrayed bool
	ms      bool
	format  uint32
	storage uint32 // pointer storage class
}

type varInfo struct {
	typ     uint32
	storage uint32
}

// Reflect decodes code and extracts its entry points and
// descriptor bindings.
// Malformed code causes an error. It panics if the module
// declares a descriptor of a kind that has no equivalent
// driver.DescType.
func Reflect(code []byte) (*Module, error) {
	w, err := Words(code)
	if err != nil {
		return nil, err
	}
	types := make(map[uint32]*typeInfo)
	consts := make(map[uint32]uint32)
	vars := make(map[uint32]varInfo)
	sets := make(map[uint32]uint32)
	binds := make(map[uint32]uint32)
	bufferBlock := make(map[uint32]bool)
	m := &Module{Words: w}

	for i := 5; i < len(w); {
		n := int(w[i] >> 16)
		op := w[i] & 0xffff
		if n == 0 || i+n > len(w) {
			return nil, fmt.Errorf("%w: bad instruction at word %d", ErrInvalid, i)
		}
		ins := w[i : i+n]
		i += n
		switch op {
		case opEntryPoint:
			if n < 4 {
				return nil, fmt.Errorf("%w: short OpEntryPoint", ErrInvalid)
			}
			var stg driver.Stage
			switch ins[1] {
			case execVertex:
				stg = driver.SVertex
			case execFragment:
				stg = driver.SFragment
			case execCompute:
				stg = driver.SCompute
			default:
				continue
			}
			m.Entries = append(m.Entries, Entry{literal(ins[3:]), stg})
		case opDecorate:
			if n < 3 {
				return nil, fmt.Errorf("%w: short OpDecorate", ErrInvalid)
			}
			switch ins[2] {
			case decDescriptorSet, decBinding:
				if n < 4 {
					return nil, fmt.Errorf("%w: short OpDecorate", ErrInvalid)
				}
				if ins[2] == decDescriptorSet {
					sets[ins[1]] = ins[3]
				} else {
					binds[ins[1]] = ins[3]
				}
			case decBufferBlock:
				bufferBlock[ins[1]] = true
			}
		case opTypeImage:
			if n < 9 {
				return nil, fmt.Errorf("%w: short OpTypeImage", ErrInvalid)
			}
			types[ins[1]] = &typeInfo{
				op:      op,
				dim:     ins[3],
				depth:   ins[4] == 1,
				arrayed: ins[5] == 1,
				ms:      ins[6] == 1,
				sampled: ins[7],
				format:  ins[8],
			}
		case opTypeSampler, opTypeStruct, opTypeAccelerationStruct:
			if n < 2 {
				return nil, fmt.Errorf("%w: short type declaration", ErrInvalid)
			}
			types[ins[1]] = &typeInfo{op: op}
		case opTypeSampledImage, opTypeRuntimeArray:
			if n < 3 {
				return nil, fmt.Errorf("%w: short type declaration", ErrInvalid)
			}
			types[ins[1]] = &typeInfo{op: op, elem: ins[2]}
		case opTypeArray:
			if n < 4 {
				return nil, fmt.Errorf("%w: short OpTypeArray", ErrInvalid)
			}
			types[ins[1]] = &typeInfo{op: op, elem: ins[2], length: ins[3]}
		case opTypePointer:
			if n < 4 {
				return nil, fmt.Errorf("%w: short OpTypePointer", ErrInvalid)
			}
			types[ins[1]] = &typeInfo{op: op, storage: ins[2], elem: ins[3]}
		case opConstant:
			if n >= 4 {
				consts[ins[2]] = ins[3]
			}
		case opVariable:
			if n < 4 {
				return nil, fmt.Errorf("%w: short OpVariable", ErrInvalid)
			}
			vars[ins[2]] = varInfo{ins[1], ins[3]}
			if ins[3] == scPushConstant {
				m.PushConstants = true
			}
		}
	}

	for id, v := range vars {
		set, ok1 := sets[id]
		nr, ok2 := binds[id]
		if !ok1 || !ok2 {
			continue
		}
		ptr := types[v.typ]
		if ptr == nil || ptr.op != opTypePointer {
			return nil, fmt.Errorf("%w: variable %d is not a pointer", ErrInvalid, id)
		}
		typ, count, err := unwrap(ptr.elem, types, consts)
		if err != nil {
			return nil, err
		}
		m.Bindings = append(m.Bindings, driver.Binding{
			Set:   int(set),
			Nr:    int(nr),
			Type:  descType(v.storage, typ, types, bufferBlock),
			Count: count,
			Image: imageInfo(typ, types),
		})
	}
	slices.SortFunc(m.Bindings, func(a, b driver.Binding) int {
		if a.Set != b.Set {
			return a.Set - b.Set
		}
		return a.Nr - b.Nr
	})
	return m, nil
}

// unwrap strips arrays from id and returns the element
// type and the array length.
// Runtime arrays have length driver.MaxDescCount.
func unwrap(id uint32, types map[uint32]*typeInfo, consts map[uint32]uint32) (uint32, int, error) {
	count := 1
	for {
		t := types[id]
		if t == nil {
			return id, count, nil
		}
		switch t.op {
		case opTypeArray:
			n, ok := consts[t.length]
			if !ok {
				return 0, 0, fmt.Errorf("%w: array length %d is not a constant", ErrInvalid, t.length)
			}
			count *= int(n)
		case opTypeRuntimeArray:
			count = driver.MaxDescCount
		default:
			return id, count, nil
		}
		id = t.elem
	}
}

// imageInfo describes the image type id, if it is one.
func imageInfo(id uint32, types map[uint32]*typeInfo) driver.ImageInfo {
	t := types[id]
	if t != nil && t.op == opTypeSampledImage {
		t = types[t.elem]
	}
	if t == nil || t.op != opTypeImage {
		return driver.ImageInfo{}
	}
	info := driver.ImageInfo{
		Array: t.arrayed,
		MS:    t.ms,
		Depth: t.depth,
	}
	switch t.dim {
	case dim1D:
		info.Dim = 1
	case dim3D:
		info.Dim = 3
	case dimCube:
		info.Cube = true
	}
	if t.sampled == 2 {
		info.Format = formats[t.format]
	}
	return info
}

func descType(storage, id uint32, types map[uint32]*typeInfo, bufferBlock map[uint32]bool) driver.DescType {
	switch storage {
	case scUniform:
		if bufferBlock[id] {
			return driver.DBuffer
		}
		return driver.DConstant
	case scStorageBuffer:
		return driver.DBuffer
	case scUniformConstant:
		t := types[id]
		if t == nil {
			break
		}
		switch t.op {
		case opTypeSampler:
			return driver.DSampler
		case opTypeSampledImage:
			return driver.DTextureSampler
		case opTypeImage:
			if t.dim == dimBuffer || t.dim == dimSubpassData {
				break
			}
			if t.sampled == 2 {
				return driver.DImage
			}
			return driver.DTexture
		}
	}
	panic(fmt.Sprintf("spirv: unsupported descriptor kind (storage class %d, type %d)", storage, id))
}

// literal decodes a nul-terminated string literal.
func literal(w []uint32) string {
	var b []byte
	for _, x := range w {
		for i := range 4 {
			c := byte(x >> (8 * i))
			if c == 0 {
				return string(b)
			}
			b = append(b, c)
		}
	}
	return string(b)
}
