package systems

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-editor/engine/assets"
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/headless"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wgslVertex = `@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 1.0);
}
`

const wgslPixel = `@fragment
fn ps_main() -> @location(0) vec4<f32> {
    return vec4<f32>(0.5, 0.5, 0.5, 1.0);
}
`

// fakeBuilder "compiles" WGSL by copying it. Sources containing
// `#error` fail to build.
type fakeBuilder struct {
	mu    sync.Mutex
	built []string
}

var testBuilder = &fakeBuilder{}

func init() {
	RegisterShaderBuilder("fake", func() ShaderBuilder { return testBuilder })
}

func (b *fakeBuilder) Name() string { return "fake" }
func (b *fakeBuilder) Language() metadata.ShaderLanguage { return metadata.ShaderLanguageWGSL }
func (b *fakeBuilder) IntermediateCode() metadata.ShaderIntermediateCode { return metadata.ShaderIntermediateSPIRV }

func (b *fakeBuilder) Build(stage metadata.ShaderStageSource, source *metadata.Asset) (*metadata.CompiledShaderStage, error) {
	b.mu.Lock()
	b.built = append(b.built, stage.Path)
	b.mu.Unlock()
	if strings.Contains(string(source.Data), "#error") {
		return nil, fmt.Errorf("%w: %s", core.ErrShaderBuild, stage.Path)
	}
	return &metadata.CompiledShaderStage{
		Stage:      stage.Stage,
		EntryPoint: stage.EntryPoint,
		IR:         metadata.ShaderIntermediateSPIRV,
		Code:       append([]byte(nil), source.Data...),
	}, nil
}

func (b *fakeBuilder) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.built = nil
}

func (b *fakeBuilder) builds(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.built {
		if p == path {
			n++
		}
	}
	return n
}

func writeShaderTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func builtinSources() map[string]string {
	return map[string]string{
		"grid/vertex.wgsl":  wgslVertex,
		"grid/pixel.wgsl":   wgslPixel,
		"debug/vertex.wgsl": wgslVertex,
		"debug/pixel.wgsl":  wgslPixel,
	}
}

func newTestShaderSystem(t *testing.T, dir string, watch bool) *ShaderSystem {
	t.Helper()
	testBuilder.reset()
	am := assets.NewAssetManager(dir)
	require.NoError(t, am.Initialize(watch))
	t.Cleanup(func() { _ = am.Shutdown() })

	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.Shutdown() })

	shaders, err := NewShaderSystem(&ShaderSystemConfig{Compiler: "fake"}, js, am)
	require.NoError(t, err)
	return shaders
}

// withFrame runs fn inside a recorded and presented frame.
func withFrame(t *testing.T, device renderer.Device, ctx renderer.Context, fn func()) {
	t.Helper()
	m := NewSwapchainManager(ViewGameMode, device)
	createSwapchain(t, m, newFakeSurface("game", 64, 64))
	require.NoError(t, m.Prepare(ctx))
	fn()
	frame, err := m.CurrentFrame()
	require.NoError(t, err)
	require.NoError(t, ctx.Transition(frame, metadata.ResourceStatePresent))
	require.NoError(t, ctx.End())
	require.NoError(t, m.Present(ctx))
	require.NoError(t, ctx.Wait())
	require.NoError(t, m.Release())
}

func TestShaderSystemNeedsAssets(t *testing.T) {
	_, err := NewShaderSystem(nil, nil, nil)
	assert.Error(t, err)
}

func TestShaderSystemLoadsBuiltins(t *testing.T) {
	shaders := newTestShaderSystem(t, writeShaderTree(t, builtinSources()), false)
	device, ctx, trace := newTestDevice(t)

	assert.False(t, shaders.IsInitialized())
	assert.Equal(t, metadata.ShaderProgramStateNotBuilt, shaders.State(ShaderProgramGrid))

	require.True(t, shaders.Initialize(device))
	assert.True(t, shaders.IsInitialized())
	assert.False(t, shaders.Initialize(device), "initialized twice")

	for _, id := range []metadata.ShaderProgramID{ShaderProgramGrid, ShaderProgramDebug} {
		assert.Equal(t, metadata.ShaderProgramStateLoaded, shaders.State(id))
		assert.True(t, shaders.IsAvailable(id))
		assert.NoError(t, shaders.Err(id))
	}
	assert.Equal(t, 2, trace.Count(headless.OpLoadProgram))
	assert.Equal(t, 4, trace.Count(headless.OpMakeVertexLayout))
	assert.Equal(t, 1, testBuilder.builds("grid/pixel.wgsl"))

	withFrame(t, device, ctx, func() {
		require.NoError(t, shaders.Bind(ctx, ShaderProgramGrid))
		require.NoError(t, shaders.Bind(ctx, ShaderProgramDebug))
		assert.ErrorIs(t, shaders.Bind(ctx, 42), core.ErrProgramUnavailable)
	})
	assert.Equal(t, 2, trace.Count(headless.OpBindProgram))
}

func TestShaderSystemBuildFailureLeavesProgramUnavailable(t *testing.T) {
	files := builtinSources()
	files["debug/pixel.wgsl"] = "#error\n" + wgslPixel
	delete(files, "grid/vertex.wgsl")
	shaders := newTestShaderSystem(t, writeShaderTree(t, files), false)
	device, ctx, trace := newTestDevice(t)

	assert.False(t, shaders.Initialize(device))
	assert.Zero(t, trace.Count(headless.OpLoadProgram))

	for _, id := range []metadata.ShaderProgramID{ShaderProgramGrid, ShaderProgramDebug} {
		assert.Equal(t, metadata.ShaderProgramStateFailed, shaders.State(id))
		assert.False(t, shaders.IsAvailable(id))
		assert.ErrorIs(t, shaders.Err(id), core.ErrShaderBuild)
	}

	withFrame(t, device, ctx, func() {
		assert.ErrorIs(t, shaders.Bind(ctx, ShaderProgramDebug), core.ErrProgramUnavailable)
	})
	assert.Zero(t, trace.Count(headless.OpBindProgram))
}

func TestShaderSystemUsesPrecompiledBinary(t *testing.T) {
	files := builtinSources()
	files["grid/vertex.spv"] = "\x03\x02\x23\x07precompiled"
	files["debug/vertex.spv"] = "\x03\x02\x23\x07outdated"
	dir := writeShaderTree(t, files)

	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(dir, "grid", "vertex.spv"), now, now.Add(time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "debug", "vertex.spv"), now, now.Add(-time.Hour)))

	shaders := newTestShaderSystem(t, dir, false)
	device, _, _ := newTestDevice(t)
	require.True(t, shaders.Initialize(device))

	assert.Zero(t, testBuilder.builds("grid/vertex.wgsl"))
	assert.Equal(t, 1, testBuilder.builds("grid/pixel.wgsl"))
	assert.Equal(t, 1, testBuilder.builds("debug/vertex.wgsl"))
	assert.True(t, shaders.IsAvailable(ShaderProgramGrid))
}

func TestShaderSystemRebuildKeepsPreviousBinaryOnFailure(t *testing.T) {
	dir := writeShaderTree(t, builtinSources())
	shaders := newTestShaderSystem(t, dir, false)
	device, _, trace := newTestDevice(t)
	require.True(t, shaders.Initialize(device))
	assert.True(t, shaders.RebuildStale(), "nothing stale")

	shaders.MarkStale(ShaderProgramGrid)
	assert.True(t, shaders.HasStale())
	assert.Equal(t, metadata.ShaderProgramStateStale, shaders.State(ShaderProgramGrid))
	assert.True(t, shaders.IsAvailable(ShaderProgramGrid), "stale programs stay bindable")

	mark := trace.Len()
	require.True(t, shaders.RebuildStale())
	assert.False(t, shaders.HasStale())
	ops := trace.Since(mark)
	require.Len(t, ops, 2)
	assert.Equal(t, headless.OpUnloadProgram, ops[0].Kind)
	assert.Equal(t, headless.OpLoadProgram, ops[1].Kind)
	assert.Equal(t, "grid", ops[1].Target)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "grid", "pixel.wgsl"), []byte("#error\n"), 0o644))
	shaders.MarkStale(ShaderProgramGrid)
	mark = trace.Len()
	assert.False(t, shaders.RebuildStale())
	assert.Equal(t, mark, trace.Len())
	assert.Equal(t, metadata.ShaderProgramStateLoaded, shaders.State(ShaderProgramGrid))
	assert.True(t, shaders.IsAvailable(ShaderProgramGrid))
	assert.ErrorIs(t, shaders.Err(ShaderProgramGrid), core.ErrShaderBuild)
	assert.False(t, shaders.HasStale())
}

func TestShaderSystemRegisterProgram(t *testing.T) {
	files := builtinSources()
	files["lines/vertex.wgsl"] = wgslVertex
	files["lines/pixel.wgsl"] = wgslPixel
	files["tonemap/vertex.hlsl"] = "float4 vs_main() : SV_Position { return 0; }"
	shaders := newTestShaderSystem(t, writeShaderTree(t, files), false)

	lines := metadata.ShaderProgramDescription{
		Name:     "lines",
		Language: metadata.ShaderLanguageWGSL,
		Stages: []metadata.ShaderStageSource{
			{Stage: metadata.ShaderStageVertex, EntryPoint: VertexEntryPoint, Path: "lines/vertex.wgsl"},
			{Stage: metadata.ShaderStagePixel, EntryPoint: PixelEntryPoint, Path: "lines/pixel.wgsl"},
		},
	}
	require.NoError(t, shaders.RegisterProgram(10, lines))
	assert.Error(t, shaders.RegisterProgram(10, lines))
	assert.Error(t, shaders.RegisterProgram(ShaderProgramGrid, lines))
	assert.Error(t, shaders.RegisterProgram(11, metadata.ShaderProgramDescription{Name: "empty"}))

	device, _, trace := newTestDevice(t)
	require.True(t, shaders.Initialize(device))
	assert.True(t, shaders.IsAvailable(10))

	tonemap := metadata.ShaderProgramDescription{
		Name:     "tonemap",
		Language: metadata.ShaderLanguageHLSL,
		Stages: []metadata.ShaderStageSource{
			{Stage: metadata.ShaderStageVertex, EntryPoint: VertexEntryPoint, Path: "tonemap/vertex.hlsl"},
		},
	}
	require.NoError(t, shaders.RegisterProgram(12, tonemap))
	assert.Equal(t, metadata.ShaderProgramStateStale, shaders.State(12))
	assert.False(t, shaders.RebuildStale())
	assert.Equal(t, metadata.ShaderProgramStateFailed, shaders.State(12))
	assert.ErrorIs(t, shaders.Err(12), core.ErrShaderBuild)
	assert.Zero(t, testBuilder.builds("tonemap/vertex.hlsl"))

	mark := trace.Len()
	require.NoError(t, shaders.RegisterVertexLayout(7, metadata.VertexInputLayout{
		Bindings: []metadata.VertexBinding{{
			Attributes: []metadata.VertexAttribute{vertexAttribute(0, metadata.ResourceFormatR32G32B32A32Float, metadata.VertexSemanticColor, 0)},
		}},
	}))
	assert.Equal(t, 1, len(trace.Since(mark)))
	assert.Equal(t, headless.OpMakeVertexLayout, trace.Since(mark)[0].Kind)
}

func TestShaderSystemCleanUp(t *testing.T) {
	shaders := newTestShaderSystem(t, writeShaderTree(t, builtinSources()), false)
	device, _, trace := newTestDevice(t)
	require.NoError(t, shaders.CleanUp())
	require.True(t, shaders.Initialize(device))

	require.NoError(t, shaders.CleanUp())
	assert.False(t, shaders.IsInitialized())
	assert.False(t, shaders.IsAvailable(ShaderProgramGrid))
	assert.Equal(t, metadata.ShaderProgramStateNotBuilt, shaders.State(ShaderProgramGrid))
	assert.Equal(t, 2, trace.Count(headless.OpUnloadProgram))
	assert.Equal(t, 4, trace.Count(headless.OpDestroyVertexLayout))
	require.NoError(t, shaders.Shutdown())

	// the database can be brought back on the same device
	require.True(t, shaders.Initialize(device))
	assert.Equal(t, 4, trace.Count(headless.OpLoadProgram))
	require.NoError(t, shaders.CleanUp())
}

func TestShaderSystemUnknownCompiler(t *testing.T) {
	shaders := newTestShaderSystem(t, writeShaderTree(t, builtinSources()), false)
	shaders.config.Compiler = "dxc"
	device, _, _ := newTestDevice(t)
	assert.False(t, shaders.Initialize(device))
	assert.False(t, shaders.IsInitialized())
}

func TestShaderHotReloadThroughRender(t *testing.T) {
	dir := writeShaderTree(t, builtinSources())
	shaders := newTestShaderSystem(t, dir, true)
	s, trace, _ := newTestSurfaceSystem(t, config.DepthPolicyShared, shaders)
	require.True(t, shaders.IsAvailable(ShaderProgramGrid))

	game := newFakeSurface("game", 800, 600)
	drawGrid := DrawFunc(func(ctx renderer.Context, color, depth renderer.Resource) error {
		if err := clearDrawer(ctx, color, depth); err != nil {
			return err
		}
		return shaders.Bind(ctx, ShaderProgramGrid)
	})
	activate(t, s, ViewGameMode, game)
	require.NoError(t, s.Render(ViewGameMode, game, tick(1), drawGrid))
	loads := trace.Count(headless.OpLoadProgram)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "grid", "pixel.wgsl"), []byte(wgslPixel+"\n"), 0o644))
	require.Eventually(t, shaders.HasStale, 5*time.Second, 10*time.Millisecond)
	// truncate and write arrive as separate events
	time.Sleep(200 * time.Millisecond)

	mark := trace.Len()
	require.NoError(t, s.Render(ViewGameMode, game, tick(2), drawGrid))
	assert.False(t, shaders.HasStale())
	assert.Equal(t, loads+1, trace.Count(headless.OpLoadProgram))

	ops := trace.Since(mark)
	wait, unload := -1, -1
	for i, op := range ops {
		if op.Kind == headless.OpWait && wait < 0 {
			wait = i
		}
		if op.Kind == headless.OpUnloadProgram && unload < 0 {
			unload = i
		}
	}
	require.NotEqual(t, -1, unload)
	assert.Less(t, wait, unload)
	assert.NotEqual(t, -1, wait)

	require.NoError(t, s.Shutdown())
	assert.False(t, shaders.IsInitialized())
	assert.Less(t, trace.LastIndex(headless.OpUnloadProgram, ""), trace.Index(headless.OpDisposeContext, ""))
}

func TestResolveVertexLayout(t *testing.T) {
	layouts := builtinVertexLayouts()
	strides := map[metadata.VertexLayoutID]uint32{
		VertexLayoutPositionOnly:         12,
		VertexLayoutPositionNormal:       24,
		VertexLayoutPositionNormalUV0:    32,
		VertexLayoutPositionNormalUV0UV1: 40,
	}
	for id, stride := range strides {
		require.Len(t, layouts[id].Bindings, 1)
		assert.Equal(t, stride, layouts[id].Bindings[0].Stride, "layout %d", id)
	}
	uv1 := layouts[VertexLayoutPositionNormalUV0UV1].Bindings[0].Attributes[3]
	assert.Equal(t, uint32(32), uv1.OffsetBytes)

	in := metadata.VertexInputLayout{Bindings: []metadata.VertexBinding{{
		Stride: 64,
		Attributes: []metadata.VertexAttribute{
			{Location: 0, OffsetBytes: 16, Format: metadata.ResourceFormatR32G32B32Float},
			vertexAttribute(1, metadata.ResourceFormatR32Float, metadata.VertexSemanticColor, 0),
		},
	}}}
	out, err := ResolveVertexLayout(in)
	require.NoError(t, err)
	assert.Equal(t, uint32(28), out.Bindings[0].Attributes[1].OffsetBytes)
	assert.Equal(t, uint32(64), out.Bindings[0].Stride)
	assert.Equal(t, metadata.OffsetAppend, in.Bindings[0].Attributes[1].OffsetBytes, "input untouched")

	in.Bindings[0].Stride = 20
	_, err = ResolveVertexLayout(in)
	assert.Error(t, err)

	_, err = ResolveVertexLayout(metadata.VertexInputLayout{Bindings: []metadata.VertexBinding{{}}})
	assert.Error(t, err)

	for _, format := range []metadata.ResourceFormat{
		metadata.ResourceFormatD32Float,
		metadata.ResourceFormatD16Unorm,
		metadata.ResourceFormatD24UnormS8Uint,
	} {
		_, err = ResolveVertexLayout(metadata.VertexInputLayout{Bindings: []metadata.VertexBinding{{
			Attributes: []metadata.VertexAttribute{{Format: format}},
		}}})
		assert.Error(t, err, "depth format %s as a vertex attribute", format)
	}
}

func TestNewShaderBuilder(t *testing.T) {
	b, err := NewShaderBuilder(metadata.ShaderIntermediateSPIRV, "")
	require.NoError(t, err)
	assert.Equal(t, "naga", b.Name())
	assert.Equal(t, metadata.ShaderLanguageWGSL, b.Language())

	b, err = NewShaderBuilder(metadata.ShaderIntermediateDXIL, "")
	require.NoError(t, err)
	assert.Equal(t, "dxc", b.Name())
	assert.Equal(t, metadata.ShaderLanguageHLSL, b.Language())

	_, err = NewShaderBuilder(metadata.ShaderIntermediateSPIRV, "dxc")
	assert.ErrorIs(t, err, core.ErrShaderBuild)
	_, err = NewShaderBuilder(metadata.ShaderIntermediateSPIRV, "fxc")
	assert.ErrorIs(t, err, core.ErrShaderBuild)
	_, err = NewShaderBuilder(metadata.ShaderIntermediateDXBC, "")
	assert.ErrorIs(t, err, core.ErrShaderBuild)

	assert.Contains(t, ShaderBuilders(), "naga")
	assert.Contains(t, ShaderBuilders(), "dxc")
}

func TestNagaBuilder(t *testing.T) {
	b := &NagaBuilder{}
	stage := metadata.ShaderStageSource{Stage: metadata.ShaderStagePixel, EntryPoint: PixelEntryPoint, Path: "grid/pixel.wgsl"}

	compiled, err := b.Build(stage, &metadata.Asset{FullPath: "grid/pixel.wgsl", Data: []byte(wgslPixel)})
	if err != nil {
		if strings.Contains(err.Error(), "not yet implemented") || strings.Contains(err.Error(), "not supported") {
			t.Skipf("naga feature not yet implemented: %v", err)
		}
		t.Fatalf("compiling pixel shader: %v", err)
	}
	assert.Equal(t, metadata.ShaderIntermediateSPIRV, compiled.IR)
	assert.Equal(t, PixelEntryPoint, compiled.EntryPoint)
	require.GreaterOrEqual(t, len(compiled.Code), 4)
	assert.Equal(t, []byte{0x03, 0x02, 0x23, 0x07}, compiled.Code[:4])

	_, err = b.Build(stage, &metadata.Asset{FullPath: "grid/vertex.wgsl", Data: []byte(wgslVertex)})
	assert.ErrorIs(t, err, core.ErrShaderBuild, "no ps_main")

	_, err = b.Build(stage, &metadata.Asset{FullPath: "broken.wgsl", Data: []byte("fn ps_main( {")})
	assert.ErrorIs(t, err, core.ErrShaderBuild)
}

func TestDXCBuilderMissingBinary(t *testing.T) {
	b := &DXCBuilder{Binary: "anima-dxc-does-not-exist"}
	stage := metadata.ShaderStageSource{Stage: metadata.ShaderStageVertex, EntryPoint: VertexEntryPoint}
	_, err := b.Build(stage, &metadata.Asset{FullPath: "grid/vertex.hlsl"})
	assert.ErrorIs(t, err, core.ErrShaderBuild)

	profile, err := b.profile(metadata.ShaderStagePixel)
	require.NoError(t, err)
	assert.Equal(t, "ps_6_0", profile)
	b.ShaderModel = "6_6"
	profile, err = b.profile(metadata.ShaderStageCompute)
	require.NoError(t, err)
	assert.Equal(t, "cs_6_6", profile)
	_, err = b.profile(metadata.ShaderStage(9))
	assert.True(t, errors.Is(err, core.ErrShaderBuild))
}
