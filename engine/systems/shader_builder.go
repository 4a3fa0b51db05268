package systems

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/anima-editor/engine/assets/loaders"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// ShaderBuilder compiles a single stage source into one intermediate
// representation. Implementations must be safe for concurrent use.
type ShaderBuilder interface {
	Name() string
	Language() metadata.ShaderLanguage
	IntermediateCode() metadata.ShaderIntermediateCode
	Build(stage metadata.ShaderStageSource, source *metadata.Asset) (*metadata.CompiledShaderStage, error)
}

type ShaderBuilderFactory func() ShaderBuilder

var (
	shaderBuildersMu sync.RWMutex
	shaderBuilders   = map[string]ShaderBuilderFactory{
		"naga": func() ShaderBuilder { return &NagaBuilder{} },
		"dxc":  func() ShaderBuilder { return &DXCBuilder{Binary: "dxc"} },
	}
)

func RegisterShaderBuilder(name string, factory ShaderBuilderFactory) {
	shaderBuildersMu.Lock()
	defer shaderBuildersMu.Unlock()
	if factory == nil {
		panic("systems: RegisterShaderBuilder factory is nil")
	}
	shaderBuilders[name] = factory
}

func ShaderBuilders() []string {
	shaderBuildersMu.RLock()
	defer shaderBuildersMu.RUnlock()
	names := make([]string, 0, len(shaderBuilders))
	for n := range shaderBuilders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewShaderBuilder picks the compiler family producing ir. A non empty
// override names the builder explicitly; it must still produce ir.
func NewShaderBuilder(ir metadata.ShaderIntermediateCode, override string) (ShaderBuilder, error) {
	name := override
	if name == "" {
		switch ir {
		case metadata.ShaderIntermediateSPIRV:
			name = "naga"
		case metadata.ShaderIntermediateDXIL:
			name = "dxc"
		default:
			return nil, fmt.Errorf("%w: no compiler produces %s", core.ErrShaderBuild, ir)
		}
	}

	shaderBuildersMu.RLock()
	factory, ok := shaderBuilders[name]
	shaderBuildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown compiler `%s`", core.ErrShaderBuild, name)
	}
	b := factory()
	if b.IntermediateCode() != ir {
		return nil, fmt.Errorf("%w: compiler `%s` produces %s, device consumes %s", core.ErrShaderBuild, name, b.IntermediateCode(), ir)
	}
	return b, nil
}

// NagaBuilder compiles WGSL to SPIR-V in process.
type NagaBuilder struct{}

func (b *NagaBuilder) Name() string { return "naga" }
func (b *NagaBuilder) Language() metadata.ShaderLanguage { return metadata.ShaderLanguageWGSL }
func (b *NagaBuilder) IntermediateCode() metadata.ShaderIntermediateCode { return metadata.ShaderIntermediateSPIRV }

func (b *NagaBuilder) Build(stage metadata.ShaderStageSource, source *metadata.Asset) (*metadata.CompiledShaderStage, error) {
	src := string(source.Data)
	if !strings.Contains(src, "fn "+stage.EntryPoint) {
		return nil, fmt.Errorf("%w: %s has no entry point `%s`", core.ErrShaderBuild, source.FullPath, stage.EntryPoint)
	}
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrShaderBuild, source.FullPath, err)
	}
	if _, err := loaders.BytesToBytecode(spirv); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrShaderBuild, source.FullPath, err)
	}
	return &metadata.CompiledShaderStage{
		Stage:      stage.Stage,
		EntryPoint: stage.EntryPoint,
		IR:         metadata.ShaderIntermediateSPIRV,
		Code:       spirv,
	}, nil
}

// DXCBuilder compiles HLSL to DXIL by running the dxc executable.
type DXCBuilder struct {
	// Binary is the executable name or path.
	Binary string
	// ShaderModel is appended to the stage profile, e.g. "6_0".
	ShaderModel string
}

func (b *DXCBuilder) Name() string { return "dxc" }
func (b *DXCBuilder) Language() metadata.ShaderLanguage { return metadata.ShaderLanguageHLSL }
func (b *DXCBuilder) IntermediateCode() metadata.ShaderIntermediateCode { return metadata.ShaderIntermediateDXIL }

func (b *DXCBuilder) profile(stage metadata.ShaderStage) (string, error) {
	model := b.ShaderModel
	if model == "" {
		model = "6_0"
	}
	switch stage {
	case metadata.ShaderStageVertex:
		return "vs_" + model, nil
	case metadata.ShaderStagePixel:
		return "ps_" + model, nil
	case metadata.ShaderStageCompute:
		return "cs_" + model, nil
	}
	return "", fmt.Errorf("%w: no dxc profile for %s", core.ErrShaderBuild, stage)
}

func (b *DXCBuilder) Build(stage metadata.ShaderStageSource, source *metadata.Asset) (*metadata.CompiledShaderStage, error) {
	profile, err := b.profile(stage.Stage)
	if err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(b.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrShaderBuild, err)
	}

	outDir, err := os.MkdirTemp("", "anima-dxc-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	ofn := filepath.Join(outDir, stage.Stage.String()+".dxil")
	cmd := exec.Command(bin, "-T", profile, "-E", stage.EntryPoint, "-Fo", ofn, source.FullPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: dxc %s: %w\n%s", core.ErrShaderBuild, source.FullPath, err, out)
	}
	code, err := os.ReadFile(ofn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrShaderBuild, err)
	}
	return &metadata.CompiledShaderStage{
		Stage:      stage.Stage,
		EntryPoint: stage.EntryPoint,
		IR:         metadata.ShaderIntermediateDXIL,
		Code:       code,
	}, nil
}
