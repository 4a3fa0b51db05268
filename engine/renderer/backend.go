package renderer

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// Resource is an owned handle to a GPU side buffer or image.
type Resource interface {
	ID() uuid.UUID
	Name() string
	Descriptor() metadata.ResourceDescriptor
	State() metadata.ResourceState
	// MarkReleaseImmediately makes the next Release free the allocation
	// right away instead of deferring it until the context retires the
	// frames that may still reference it.
	MarkReleaseImmediately()
	Release() error
	IsReleased() bool
}

// Device owns every GPU allocation made through it.
type Device interface {
	API() metadata.GraphicsAPI
	// IntermediateCode is the shader representation LoadShaderProgram accepts.
	IntermediateCode() metadata.ShaderIntermediateCode
	CreateContext() (Context, error)
	CreateSwapchain(desc metadata.SwapchainDescription) (Swapchain, error)
	CreateResource(desc metadata.ResourceDescriptor, initialState metadata.ResourceState) (Resource, error)
	LoadShaderProgram(def *metadata.ShaderProgramDefinition) error
	UnloadShaderProgram(id metadata.ShaderProgramID) error
	MakeVertexLayout(id metadata.VertexLayoutID, layout metadata.VertexInputLayout) error
	DestroyVertexLayout(id metadata.VertexLayoutID) error
	Dispose() error
}

// Context records commands for one frame at a time and submits them to
// the device queue. Recording begins implicitly in Swapchain.Prepare.
type Context interface {
	// SetFrameDepth sets how many frames may be in flight. Refused once
	// the first frame has been recorded.
	SetFrameDepth(n uint32) error
	FrameDepth() uint32
	Transition(resource Resource, state metadata.ResourceState) error
	ClearRenderTarget(resource Resource, color metadata.ClearColor, rect metadata.Rect) error
	ClearDepthStencil(resource Resource, flags metadata.ClearFlags, depth float32, stencil uint8, rect metadata.Rect) error
	BindShaderProgram(id metadata.ShaderProgramID, permutation uint64) error
	SetInputVertexLayout(id metadata.VertexLayoutID) error
	End() error
	// Wait blocks until every submitted frame has completed on the GPU.
	Wait() error
	Dispose() error
}

// Swapchain is a ring of presentable frames bound to one native surface.
type Swapchain interface {
	Prepare(ctx Context) error
	CurrentFrame() (Resource, error)
	// Resize requires the context to be idle and no frame to be acquired.
	Resize(width, height uint32) error
	Present(ctx Context) error
	Description() metadata.SwapchainDescription
	Release() error
}
