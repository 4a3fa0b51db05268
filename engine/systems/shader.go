package systems

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/assets"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

/** @brief Programs every editor session registers. */
const (
	ShaderProgramGrid  metadata.ShaderProgramID = 999
	ShaderProgramDebug metadata.ShaderProgramID = 998
)

/** @brief Vertex layouts every editor session registers. */
const (
	VertexLayoutPositionOnly metadata.VertexLayoutID = iota
	VertexLayoutPositionNormal
	VertexLayoutPositionNormalUV0
	VertexLayoutPositionNormalUV0UV1
)

const (
	VertexEntryPoint = "vs_main"
	PixelEntryPoint  = "ps_main"
)

/** @brief Configuration for the shader program database. */
type ShaderSystemConfig struct {
	/** @brief Forces a compiler family instead of the one matching the device. */
	Compiler string
}

type shaderProgram struct {
	id    metadata.ShaderProgramID
	name  string
	state metadata.ShaderProgramState
	// Set when the description has to be derived from the builder language.
	builtin bool
	desc    metadata.ShaderProgramDescription
	// Last build or upload error.
	err error
	// True while a binary is resident on the device.
	resident bool
}

type buildResult struct {
	id  metadata.ShaderProgramID
	def *metadata.ShaderProgramDefinition
	err error
}

/**
 * @brief Builds shader programs from source and keeps them resident on
 * the device, keyed by program id.
 */
type ShaderSystem struct {
	config    *ShaderSystemConfig
	jobSystem *JobSystem
	assets    *assets.AssetManager

	mu       sync.RWMutex
	device   renderer.Device
	builder  ShaderBuilder
	programs map[metadata.ShaderProgramID]*shaderProgram
	layouts  map[metadata.VertexLayoutID]metadata.VertexInputLayout
	// Layouts currently registered with the device.
	deviceLayouts []metadata.VertexLayoutID
}

// NewShaderSystem registers the built in programs and layouts. jobSystem
// may be nil, programs are then compiled on the calling goroutine.
func NewShaderSystem(config *ShaderSystemConfig, js *JobSystem, am *assets.AssetManager) (*ShaderSystem, error) {
	if am == nil {
		err := fmt.Errorf("NewShaderSystem - an asset manager is required")
		core.LogError("%s", err)
		return nil, err
	}
	if config == nil {
		config = &ShaderSystemConfig{}
	}

	shaderSystem := &ShaderSystem{
		config:    config,
		jobSystem: js,
		assets:    am,
		programs:  make(map[metadata.ShaderProgramID]*shaderProgram),
		layouts:   make(map[metadata.VertexLayoutID]metadata.VertexInputLayout),
	}

	shaderSystem.programs[ShaderProgramGrid] = &shaderProgram{id: ShaderProgramGrid, name: "grid", builtin: true}
	shaderSystem.programs[ShaderProgramDebug] = &shaderProgram{id: ShaderProgramDebug, name: "debug", builtin: true}
	for id, layout := range builtinVertexLayouts() {
		shaderSystem.layouts[id] = layout
	}

	am.OnChange(shaderSystem.onAssetChanged)

	return shaderSystem, nil
}

/**
 * @brief Registers a program built from desc. Programs registered after
 * Initialize are built by the next RebuildStale.
 */
func (s *ShaderSystem) RegisterProgram(id metadata.ShaderProgramID, desc metadata.ShaderProgramDescription) error {
	if len(desc.Stages) == 0 {
		return fmt.Errorf("program `%s` has no stages", desc.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.programs[id]; exists {
		return fmt.Errorf("program id %d is already registered", id)
	}
	state := metadata.ShaderProgramStateNotBuilt
	if s.device != nil {
		state = metadata.ShaderProgramStateStale
	}
	s.programs[id] = &shaderProgram{id: id, name: desc.Name, desc: desc, state: state}
	return nil
}

/**
 * @brief Registers a vertex layout. Layouts registered after Initialize
 * are sent to the device right away.
 */
func (s *ShaderSystem) RegisterVertexLayout(id metadata.VertexLayoutID, layout metadata.VertexInputLayout) error {
	resolved, err := ResolveVertexLayout(layout)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts[id] = resolved
	if s.device == nil {
		return nil
	}
	if err := s.device.MakeVertexLayout(id, resolved); err != nil {
		return err
	}
	s.deviceLayouts = append(s.deviceLayouts, id)
	return nil
}

/**
 * @brief Selects the compiler for the device, registers every vertex
 * layout and builds then uploads every program.
 *
 * @return True when every program is loaded. A false return leaves the
 * failed programs unavailable; the others stay usable.
 */
func (s *ShaderSystem) Initialize(device renderer.Device) bool {
	s.mu.Lock()
	if s.device != nil {
		s.mu.Unlock()
		core.LogError("shader database is already initialized")
		return false
	}
	builder, err := NewShaderBuilder(device.IntermediateCode(), s.config.Compiler)
	if err != nil {
		s.mu.Unlock()
		core.LogError("shader database: %s", err)
		return false
	}
	s.device = device
	s.builder = builder
	core.LogInfo("shader database compiles %s with `%s` into %s", builder.Language().Extension(), builder.Name(), builder.IntermediateCode())

	ok := true
	ids := make([]metadata.VertexLayoutID, 0, len(s.layouts))
	for id := range s.layouts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := device.MakeVertexLayout(id, s.layouts[id]); err != nil {
			core.LogError("vertex layout %d: %s", id, err)
			ok = false
			continue
		}
		s.deviceLayouts = append(s.deviceLayouts, id)
	}

	pending := s.collect(func(p *shaderProgram) bool { return true })
	s.mu.Unlock()

	return s.build(pending) && ok
}

func (s *ShaderSystem) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device != nil
}

// State reports NotBuilt for unknown ids.
func (s *ShaderSystem) State(id metadata.ShaderProgramID) metadata.ShaderProgramState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.programs[id]; ok {
		return p.state
	}
	return metadata.ShaderProgramStateNotBuilt
}

// Err returns the last build or upload error of a program.
func (s *ShaderSystem) Err(id metadata.ShaderProgramID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.programs[id]; ok {
		return p.err
	}
	return nil
}

// IsAvailable is true when the program has a binary resident on the device.
func (s *ShaderSystem) IsAvailable(id metadata.ShaderProgramID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	return ok && p.resident
}

/**
 * @brief Binds the program on ctx. Fails with ErrProgramUnavailable when
 * the program never loaded, leaving the caller free to skip the draw.
 */
func (s *ShaderSystem) Bind(ctx renderer.Context, id metadata.ShaderProgramID) error {
	if !s.IsAvailable(id) {
		return fmt.Errorf("%w: program %d is %s", core.ErrProgramUnavailable, id, s.State(id))
	}
	return ctx.BindShaderProgram(id, 0)
}

func (s *ShaderSystem) HasStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.programs {
		if p.state == metadata.ShaderProgramStateStale {
			return true
		}
	}
	return false
}

// MarkStale flags a program for rebuild.
func (s *ShaderSystem) MarkStale(id metadata.ShaderProgramID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.programs[id]; ok && s.device != nil {
		p.state = metadata.ShaderProgramStateStale
	}
}

/**
 * @brief Rebuilds every stale program. The caller must have waited on the
 * context: resident binaries are replaced.
 */
func (s *ShaderSystem) RebuildStale() bool {
	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		return false
	}
	pending := s.collect(func(p *shaderProgram) bool { return p.state == metadata.ShaderProgramStateStale })
	s.mu.Unlock()
	if len(pending) == 0 {
		return true
	}
	return s.build(pending)
}

/**
 * @brief Releases every resident program and vertex layout. The database
 * can be initialized again afterwards.
 */
func (s *ShaderSystem) CleanUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}

	var errs []error
	for _, id := range s.sortedIDs() {
		p := s.programs[id]
		if p.resident {
			if err := s.device.UnloadShaderProgram(id); err != nil {
				errs = append(errs, fmt.Errorf("unload program `%s`: %w", p.name, err))
			}
		}
		p.resident = false
		p.state = metadata.ShaderProgramStateNotBuilt
		p.err = nil
	}
	for _, id := range s.deviceLayouts {
		if err := s.device.DestroyVertexLayout(id); err != nil {
			errs = append(errs, fmt.Errorf("destroy vertex layout %d: %w", id, err))
		}
	}
	s.deviceLayouts = nil
	s.device = nil
	s.builder = nil

	core.LogDebug("shader database cleaned up")
	return errors.Join(errs...)
}

// collect must be called with s.mu held.
func (s *ShaderSystem) collect(match func(p *shaderProgram) bool) []metadata.ShaderProgramID {
	var ids []metadata.ShaderProgramID
	for _, id := range s.sortedIDs() {
		p := s.programs[id]
		if !match(p) {
			continue
		}
		if p.builtin {
			p.desc = builtinProgram(p.name, s.builder.Language())
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *ShaderSystem) sortedIDs() []metadata.ShaderProgramID {
	ids := make([]metadata.ShaderProgramID, 0, len(s.programs))
	for id := range s.programs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// build compiles ids concurrently then uploads the results on the
// calling goroutine, in id order.
func (s *ShaderSystem) build(ids []metadata.ShaderProgramID) bool {
	s.mu.RLock()
	builder := s.builder
	descs := make(map[metadata.ShaderProgramID]metadata.ShaderProgramDescription, len(ids))
	for _, id := range ids {
		descs[id] = s.programs[id].desc
	}
	s.mu.RUnlock()

	results := make([]buildResult, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		results[i].id = id
		compile := func(params interface{}, out chan<- interface{}) error {
			def, err := s.compile(builder, id, params.(metadata.ShaderProgramDescription))
			if err != nil {
				return err
			}
			out <- def
			return nil
		}

		if s.jobSystem == nil {
			results[i].def, results[i].err = s.compile(builder, id, descs[id])
			continue
		}

		wg.Add(1)
		err := s.jobSystem.Submit(metadata.JobTask{
			OnStart: compile,
			OnComplete: func(out <-chan interface{}) {
				results[i].def = (<-out).(*metadata.ShaderProgramDefinition)
			},
			OnFailure: func(err error) {
				results[i].err = err
			},
			OnCompletionCallback: wg.Done,
			InputParams:          descs[id],
		})
		if err != nil {
			wg.Done()
			results[i].err = err
		}
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	ok := true
	for _, r := range results {
		if !s.upload(r) {
			ok = false
		}
	}
	return ok
}

// upload must be called with s.mu held.
func (s *ShaderSystem) upload(r buildResult) bool {
	p := s.programs[r.id]
	if r.err != nil {
		p.err = r.err
		if p.resident {
			// Keep the previous binary bound, the editor keeps running on it.
			core.LogWarn("rebuilding program `%s` failed, keeping the previous binary: %s", p.name, r.err)
			p.state = metadata.ShaderProgramStateLoaded
		} else {
			core.LogError("building program `%s` failed: %s", p.name, r.err)
			p.state = metadata.ShaderProgramStateFailed
		}
		return false
	}

	p.state = metadata.ShaderProgramStateBuilt
	if p.resident {
		if err := s.device.UnloadShaderProgram(r.id); err != nil {
			core.LogWarn("unloading program `%s`: %s", p.name, err)
		}
		p.resident = false
	}
	if err := s.device.LoadShaderProgram(r.def); err != nil {
		p.err = err
		p.state = metadata.ShaderProgramStateFailed
		core.LogError("loading program `%s` failed: %s", p.name, err)
		return false
	}
	p.err = nil
	p.resident = true
	p.state = metadata.ShaderProgramStateLoaded
	core.LogDebug("program `%s` (%d) loaded", p.name, r.id)
	return true
}

func (s *ShaderSystem) compile(builder ShaderBuilder, id metadata.ShaderProgramID, desc metadata.ShaderProgramDescription) (*metadata.ShaderProgramDefinition, error) {
	if desc.Language != builder.Language() {
		return nil, fmt.Errorf("%w: program `%s` is written in %s, `%s` compiles %s",
			core.ErrShaderBuild, desc.Name, desc.Language.Extension(), builder.Name(), builder.Language().Extension())
	}
	def := &metadata.ShaderProgramDefinition{
		ID:   id,
		Name: desc.Name,
	}
	for _, stage := range desc.Stages {
		compiled, err := s.compileStage(builder, stage)
		if err != nil {
			return nil, err
		}
		def.Stages = append(def.Stages, *compiled)
	}
	return def, nil
}

// compileStage prefers a precompiled binary sitting next to the source
// when it is at least as new as the source.
func (s *ShaderSystem) compileStage(builder ShaderBuilder, stage metadata.ShaderStageSource) (*metadata.CompiledShaderStage, error) {
	ir := builder.IntermediateCode()
	prebuilt := strings.TrimSuffix(stage.Path, path.Ext(stage.Path)) + "." + ir.Extension()
	if bin, ok := s.assets.Info(prebuilt); ok {
		src, srcOK := s.assets.Info(stage.Path)
		if !srcOK || !bin.LastModified.Before(src.LastModified) {
			asset, err := s.assets.LoadAsset(prebuilt, metadata.ResourceTypeBinary, nil)
			if err == nil {
				core.LogDebug("using precompiled %s", prebuilt)
				return &metadata.CompiledShaderStage{
					Stage:      stage.Stage,
					EntryPoint: stage.EntryPoint,
					IR:         ir,
					Code:       asset.Data,
				}, nil
			}
			core.LogWarn("ignoring precompiled %s: %s", prebuilt, err)
		}
	}

	source, err := s.assets.LoadAsset(stage.Path, metadata.ResourceTypeShader, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrShaderBuild, err)
	}
	defer s.assets.UnloadAsset(source)
	return builder.Build(stage, source)
}

// onAssetChanged runs on the asset watcher goroutine.
func (s *ShaderSystem) onAssetChanged(changed string, assetType metadata.ResourceType) {
	if assetType != metadata.ResourceTypeShader && assetType != metadata.ResourceTypeBinary {
		return
	}
	base := strings.TrimSuffix(changed, path.Ext(changed))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return
	}
	for _, p := range s.programs {
		for _, stage := range p.desc.Stages {
			if strings.TrimSuffix(stage.Path, path.Ext(stage.Path)) == base {
				if p.state != metadata.ShaderProgramStateStale {
					core.LogInfo("program `%s` is stale, %s changed", p.name, changed)
				}
				p.state = metadata.ShaderProgramStateStale
				break
			}
		}
	}
}

// Shutdown releases the programs if still initialized.
func (s *ShaderSystem) Shutdown() error {
	return s.CleanUp()
}

func builtinProgram(name string, lang metadata.ShaderLanguage) metadata.ShaderProgramDescription {
	ext := lang.Extension()
	return metadata.ShaderProgramDescription{
		Name:     name,
		Language: lang,
		Stages: []metadata.ShaderStageSource{
			{Stage: metadata.ShaderStageVertex, EntryPoint: VertexEntryPoint, Path: name + "/vertex." + ext},
			{Stage: metadata.ShaderStagePixel, EntryPoint: PixelEntryPoint, Path: name + "/pixel." + ext},
		},
	}
}

func vertexAttribute(location uint32, format metadata.ResourceFormat, semantic metadata.VertexSemantic, index uint32) metadata.VertexAttribute {
	return metadata.VertexAttribute{
		Location:      location,
		OffsetBytes:   metadata.OffsetAppend,
		Format:        format,
		Semantic:      semantic,
		SemanticIndex: index,
	}
}

func builtinVertexLayouts() map[metadata.VertexLayoutID]metadata.VertexInputLayout {
	position := vertexAttribute(0, metadata.ResourceFormatR32G32B32Float, metadata.VertexSemanticPosition, 0)
	normal := vertexAttribute(1, metadata.ResourceFormatR32G32B32Float, metadata.VertexSemanticNormal, 0)
	uv0 := vertexAttribute(2, metadata.ResourceFormatR32G32Float, metadata.VertexSemanticTexcoord, 0)
	uv1 := vertexAttribute(3, metadata.ResourceFormatR32G32Float, metadata.VertexSemanticTexcoord, 1)

	layout := func(attributes ...metadata.VertexAttribute) metadata.VertexInputLayout {
		l, err := ResolveVertexLayout(metadata.VertexInputLayout{
			Bindings: []metadata.VertexBinding{{Binding: 0, Rate: metadata.InputRatePerVertex, Attributes: attributes}},
		})
		if err != nil {
			panic(err)
		}
		return l
	}
	return map[metadata.VertexLayoutID]metadata.VertexInputLayout{
		VertexLayoutPositionOnly:         layout(position),
		VertexLayoutPositionNormal:       layout(position, normal),
		VertexLayoutPositionNormalUV0:    layout(position, normal, uv0),
		VertexLayoutPositionNormalUV0UV1: layout(position, normal, uv0, uv1),
	}
}

/**
 * @brief Replaces OffsetAppend offsets with the end of the previous
 * attribute and fills in zero strides. The input is not modified.
 */
func ResolveVertexLayout(layout metadata.VertexInputLayout) (metadata.VertexInputLayout, error) {
	out := metadata.VertexInputLayout{Bindings: make([]metadata.VertexBinding, len(layout.Bindings))}
	for b, binding := range layout.Bindings {
		if len(binding.Attributes) == 0 {
			return metadata.VertexInputLayout{}, fmt.Errorf("vertex binding %d has no attributes", binding.Binding)
		}
		resolved := binding
		resolved.Attributes = make([]metadata.VertexAttribute, len(binding.Attributes))

		offset := uint32(0)
		end := uint32(0)
		for i, attr := range binding.Attributes {
			size := attr.Format.SizeBytes()
			if size == 0 || attr.Format.IsDepth() {
				return metadata.VertexInputLayout{}, fmt.Errorf("vertex attribute %d has unsupported format %s", attr.Location, attr.Format)
			}
			if attr.OffsetBytes == metadata.OffsetAppend {
				attr.OffsetBytes = offset
			}
			offset = attr.OffsetBytes + size
			if offset > end {
				end = offset
			}
			resolved.Attributes[i] = attr
		}
		if resolved.Stride == 0 {
			resolved.Stride = end
		} else if resolved.Stride < end {
			return metadata.VertexInputLayout{}, fmt.Errorf("vertex binding %d stride %d is smaller than its attributes (%d)", binding.Binding, resolved.Stride, end)
		}
		out.Bindings[b] = resolved
	}
	return out, nil
}
