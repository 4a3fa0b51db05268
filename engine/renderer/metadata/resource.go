package metadata

import (
	"fmt"
	"strings"
)

/** @brief The GPU pipeline visible mode a resource is currently usable in. */
type ResourceState int

const (
	/** @brief Contents are undefined. Freshly allocated frames start here. */
	ResourceStateUndefined ResourceState = iota
	ResourceStateCommon
	ResourceStateUnorderedAccess
	ResourceStateRenderTarget
	ResourceStateVertexBuffer
	ResourceStateIndexBuffer
	ResourceStateCopySource
	ResourceStateCopyDestination
	ResourceStateShaderResource
	ResourceStateDepthStencilReadOnly
	ResourceStateDepthStencilWrite
	/** @brief The only state a swapchain frame may be presented from. */
	ResourceStatePresent
	ResourceStateIndirectArgs
	ResourceStateAccelerationStructure
)

func (s ResourceState) String() string {
	switch s {
	case ResourceStateUndefined:
		return "Undefined"
	case ResourceStateCommon:
		return "Common"
	case ResourceStateUnorderedAccess:
		return "UnorderedAccess"
	case ResourceStateRenderTarget:
		return "RenderTarget"
	case ResourceStateVertexBuffer:
		return "VertexBuffer"
	case ResourceStateIndexBuffer:
		return "IndexBuffer"
	case ResourceStateCopySource:
		return "CopySource"
	case ResourceStateCopyDestination:
		return "CopyDestination"
	case ResourceStateShaderResource:
		return "ShaderResource"
	case ResourceStateDepthStencilReadOnly:
		return "DepthStencilReadOnly"
	case ResourceStateDepthStencilWrite:
		return "DepthStencilWrite"
	case ResourceStatePresent:
		return "Present"
	case ResourceStateIndirectArgs:
		return "IndirectArgs"
	case ResourceStateAccelerationStructure:
		return "AccelerationStructure"
	}
	return fmt.Sprintf("ResourceState(%d)", int(s))
}

/** @brief Pixel formats understood by every backend. */
type ResourceFormat int

const (
	ResourceFormatUnknown ResourceFormat = iota
	ResourceFormatR8G8B8A8Unorm
	ResourceFormatB8G8R8A8Unorm
	ResourceFormatR16G16B16A16Float
	ResourceFormatR11G11B10Float
	ResourceFormatR32Float
	ResourceFormatR32G32Float
	ResourceFormatR32G32B32Float
	ResourceFormatR32G32B32A32Float
	ResourceFormatD32Float
	ResourceFormatD16Unorm
	ResourceFormatD24UnormS8Uint
)

var resourceFormatNames = map[ResourceFormat]string{
	ResourceFormatUnknown:           "Unknown",
	ResourceFormatR8G8B8A8Unorm:     "R8G8B8A8_Unorm",
	ResourceFormatB8G8R8A8Unorm:     "B8G8R8A8_Unorm",
	ResourceFormatR16G16B16A16Float: "R16G16B16A16_Float",
	ResourceFormatR11G11B10Float:    "R11G11B10_Float",
	ResourceFormatR32Float:          "R32_Float",
	ResourceFormatR32G32Float:       "R32G32_Float",
	ResourceFormatR32G32B32Float:    "R32G32B32_Float",
	ResourceFormatR32G32B32A32Float: "R32G32B32A32_Float",
	ResourceFormatD32Float:          "D32_Float",
	ResourceFormatD16Unorm:          "D16_Unorm",
	ResourceFormatD24UnormS8Uint:    "D24_Unorm_S8_Uint",
}

func (f ResourceFormat) String() string {
	if n, ok := resourceFormatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("ResourceFormat(%d)", int(f))
}

// ParseResourceFormat accepts the names returned by String, case insensitive.
func ParseResourceFormat(s string) (ResourceFormat, error) {
	for f, n := range resourceFormatNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return ResourceFormatUnknown, fmt.Errorf("unknown resource format `%s`", s)
}

/** @brief Size in bytes of a single element (texel or vertex component group). */
func (f ResourceFormat) SizeBytes() uint32 {
	switch f {
	case ResourceFormatR8G8B8A8Unorm, ResourceFormatB8G8R8A8Unorm,
		ResourceFormatR11G11B10Float, ResourceFormatR32Float,
		ResourceFormatD32Float, ResourceFormatD24UnormS8Uint:
		return 4
	case ResourceFormatD16Unorm:
		return 2
	case ResourceFormatR16G16B16A16Float, ResourceFormatR32G32Float:
		return 8
	case ResourceFormatR32G32B32Float:
		return 12
	case ResourceFormatR32G32B32A32Float:
		return 16
	}
	return 0
}

func (f ResourceFormat) IsDepth() bool {
	return f == ResourceFormatD32Float || f == ResourceFormatD16Unorm || f == ResourceFormatD24UnormS8Uint
}

func (f ResourceFormat) HasStencil() bool {
	return f == ResourceFormatD24UnormS8Uint
}

type ResourceDimension int

const (
	ResourceDimension1D ResourceDimension = iota
	ResourceDimension2D
	ResourceDimension3D
)

/** @brief Bind points a resource may be used through. */
type ResourceUsage uint32

const (
	ResourceUsageRenderTarget ResourceUsage = 1 << iota
	ResourceUsageDepthStencil
	ResourceUsageShaderResource
	ResourceUsageUnorderedAccess
	ResourceUsageCopySource
	ResourceUsageCopyDestination
	ResourceUsageVertexBuffer
	ResourceUsageIndexBuffer
	ResourceUsageConstantBuffer
)

func (u ResourceUsage) Has(flag ResourceUsage) bool {
	return u&flag == flag
}

type MemoryUsage int

const (
	MemoryUsageGPUOnly MemoryUsage = iota
	MemoryUsageCPUOnly
	MemoryUsageCPUToGPU
	MemoryUsageGPUToCPU
)

/**
 * @brief Describes a GPU allocation. Descriptors are immutable: a resource
 * that needs new dimensions is released and allocated again.
 */
type ResourceDescriptor struct {
	/** @brief Debug name. */
	Name             string
	Width            uint32
	Height           uint32
	DepthOrArraySize uint32
	MipLevels        uint32
	Samples          uint32
	Format           ResourceFormat
	Dimension        ResourceDimension
	Usage            ResourceUsage
	MemoryUsage      MemoryUsage
}

func (d ResourceDescriptor) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("resource `%s` has a zero extent (%dx%d)", d.Name, d.Width, d.Height)
	}
	if d.Format == ResourceFormatUnknown {
		return fmt.Errorf("resource `%s` has no format", d.Name)
	}
	if d.Usage.Has(ResourceUsageDepthStencil) && !d.Format.IsDepth() {
		return fmt.Errorf("resource `%s` is a depth stencil with color format %s", d.Name, d.Format)
	}
	return nil
}
