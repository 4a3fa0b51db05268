package metadata

import "fmt"

/** @brief Identifier of a shader program inside the program database. */
type ShaderProgramID uint32

/** @brief Shader stages available in the system. */
type ShaderStage int

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStagePixel
	ShaderStageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStagePixel:
		return "pixel"
	case ShaderStageCompute:
		return "compute"
	}
	return fmt.Sprintf("ShaderStage(%d)", int(s))
}

/** @brief Source language of a shader stage. */
type ShaderLanguage int

const (
	ShaderLanguageWGSL ShaderLanguage = iota
	ShaderLanguageHLSL
)

/** @brief File extension used for sources written in the language. */
func (l ShaderLanguage) Extension() string {
	if l == ShaderLanguageHLSL {
		return "hlsl"
	}
	return "wgsl"
}

/** @brief Intermediate representation a device consumes. */
type ShaderIntermediateCode int

const (
	ShaderIntermediateUnknown ShaderIntermediateCode = iota
	ShaderIntermediateSPIRV
	ShaderIntermediateDXIL
	ShaderIntermediateDXBC
)

func (c ShaderIntermediateCode) String() string {
	switch c {
	case ShaderIntermediateSPIRV:
		return "spirv"
	case ShaderIntermediateDXIL:
		return "dxil"
	case ShaderIntermediateDXBC:
		return "dxbc"
	}
	return "unknown"
}

/** @brief File extension of precompiled binaries in this representation. */
func (c ShaderIntermediateCode) Extension() string {
	switch c {
	case ShaderIntermediateSPIRV:
		return "spv"
	case ShaderIntermediateDXIL:
		return "dxil"
	case ShaderIntermediateDXBC:
		return "dxbc"
	}
	return ""
}

/**
 * @brief Represents the current state of a program in the database.
 */
type ShaderProgramState int

const (
	/** @brief Registered, not compiled yet. */
	ShaderProgramStateNotBuilt ShaderProgramState = iota
	/** @brief Compiled to the intermediate representation, not uploaded. */
	ShaderProgramStateBuilt
	/** @brief Resident on the device and bindable. */
	ShaderProgramStateLoaded
	/** @brief Compilation or upload failed. Binding fails until rebuilt. */
	ShaderProgramStateFailed
	/** @brief Sources changed on disk. The previous binary stays bindable until rebuilt. */
	ShaderProgramStateStale
)

func (s ShaderProgramState) String() string {
	switch s {
	case ShaderProgramStateNotBuilt:
		return "not-built"
	case ShaderProgramStateBuilt:
		return "built"
	case ShaderProgramStateLoaded:
		return "loaded"
	case ShaderProgramStateFailed:
		return "failed"
	case ShaderProgramStateStale:
		return "stale"
	}
	return fmt.Sprintf("ShaderProgramState(%d)", int(s))
}

type ShaderStageSource struct {
	Stage      ShaderStage
	EntryPoint string
	/** @brief Path of the source file, relative to the shader directory. */
	Path string
}

/**
 * @brief Describes how to build a program from source files.
 */
type ShaderProgramDescription struct {
	Name     string
	Language ShaderLanguage
	Stages   []ShaderStageSource
}

type CompiledShaderStage struct {
	Stage      ShaderStage
	EntryPoint string
	IR         ShaderIntermediateCode
	Code       []byte
}

/**
 * @brief A program compiled to a single intermediate representation,
 * ready to be uploaded to a device.
 */
type ShaderProgramDefinition struct {
	ID     ShaderProgramID
	Name   string
	Stages []CompiledShaderStage
}
