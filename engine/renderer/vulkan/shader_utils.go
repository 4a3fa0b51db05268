package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

/**
 * @brief Represents a single shader stage.
 */
type shaderStage struct {
	/** @brief The internal shader module handle. */
	module vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	createInfo vk.PipelineShaderStageCreateInfo
}

/**
 * @brief A program resident on the device: one module per stage.
 */
type program struct {
	name   string
	stages []shaderStage
}

func stageFlag(s metadata.ShaderStage) (vk.ShaderStageFlagBits, error) {
	switch s {
	case metadata.ShaderStageVertex:
		return vk.ShaderStageVertexBit, nil
	case metadata.ShaderStagePixel:
		return vk.ShaderStageFragmentBit, nil
	case metadata.ShaderStageCompute:
		return vk.ShaderStageComputeBit, nil
	}
	return 0, fmt.Errorf("unknown shader stage %s", s)
}

func newProgram(d *Device, def *metadata.ShaderProgramDefinition) (*program, error) {
	p := &program{name: def.Name}
	for _, st := range def.Stages {
		if st.IR != metadata.ShaderIntermediateSPIRV {
			p.destroy(d)
			return nil, fmt.Errorf("%w: program %d stage %s is %s, device expects %s", core.ErrShaderBuild, def.ID, st.Stage, st.IR, metadata.ShaderIntermediateSPIRV)
		}
		if len(st.Code) == 0 || len(st.Code)%4 != 0 {
			p.destroy(d)
			return nil, fmt.Errorf("%w: program %d stage %s has %d bytes of SPIR-V", core.ErrShaderBuild, def.ID, st.Stage, len(st.Code))
		}
		flag, err := stageFlag(st.Stage)
		if err != nil {
			p.destroy(d)
			return nil, fmt.Errorf("%w: %w", core.ErrShaderBuild, err)
		}

		createInfo := vk.ShaderModuleCreateInfo{
			SType:    vk.StructureTypeShaderModuleCreateInfo,
			CodeSize: uint(len(st.Code)),
			PCode:    codeWords(st.Code),
		}
		var module vk.ShaderModule
		if err := check("vkCreateShaderModule", vk.CreateShaderModule(d.handle, &createInfo, nil, &module)); err != nil {
			p.destroy(d)
			return nil, fmt.Errorf("%w: %s stage %s: %w", core.ErrShaderBuild, def.Name, st.Stage, err)
		}

		entry := st.EntryPoint
		if entry == "" {
			entry = "main"
		}
		p.stages = append(p.stages, shaderStage{
			module: module,
			createInfo: vk.PipelineShaderStageCreateInfo{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  flag,
				Module: module,
				PName:  safeString(entry),
			},
		})
	}
	core.LogDebug("program '%s' uploaded with %d stage(s)", def.Name, len(p.stages))
	return p, nil
}

func (p *program) destroy(d *Device) {
	for _, st := range p.stages {
		vk.DestroyShaderModule(d.handle, st.module, nil)
	}
	p.stages = nil
}

// codeWords copies SPIR-V bytes into the little endian words Vulkan expects.
func codeWords(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words
}
