package metadata

import "math"

/** @brief Marks an attribute whose offset follows the previous attribute. */
const OffsetAppend uint32 = math.MaxUint32

type VertexSemantic int

const (
	VertexSemanticPosition VertexSemantic = iota
	VertexSemanticNormal
	VertexSemanticTangent
	VertexSemanticTexcoord
	VertexSemanticColor
)

type InputRate int

const (
	InputRatePerVertex InputRate = iota
	InputRatePerInstance
)

type VertexAttribute struct {
	Location uint32
	/** @brief Byte offset inside the binding, or OffsetAppend. */
	OffsetBytes   uint32
	Format        ResourceFormat
	Semantic      VertexSemantic
	SemanticIndex uint32
}

type VertexBinding struct {
	Binding uint32
	/** @brief Vertex stride in bytes. Computed when zero. */
	Stride     uint32
	Rate       InputRate
	Attributes []VertexAttribute
}

type VertexInputLayout struct {
	Bindings []VertexBinding
}

/** @brief Identifier of a vertex layout registered with a device. */
type VertexLayoutID uint32
