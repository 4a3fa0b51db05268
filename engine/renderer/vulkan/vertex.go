package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// vertexLayout holds the vertex input state of pipelines built for it.
type vertexLayout struct {
	bindings   []vk.VertexInputBindingDescription
	attributes []vk.VertexInputAttributeDescription
}

// newVertexLayout expects offsets and strides to be resolved already.
func newVertexLayout(layout metadata.VertexInputLayout) (*vertexLayout, error) {
	if len(layout.Bindings) == 0 {
		return nil, fmt.Errorf("vertex layout has no bindings")
	}
	vl := &vertexLayout{}
	for _, b := range layout.Bindings {
		rate := vk.VertexInputRateVertex
		if b.Rate == metadata.InputRatePerInstance {
			rate = vk.VertexInputRateInstance
		}
		vl.bindings = append(vl.bindings, vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: rate,
		})
		for _, a := range b.Attributes {
			if a.OffsetBytes == metadata.OffsetAppend {
				return nil, fmt.Errorf("attribute %d of binding %d has an unresolved offset", a.Location, b.Binding)
			}
			format, err := toFormat(a.Format)
			if err != nil {
				return nil, err
			}
			vl.attributes = append(vl.attributes, vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  b.Binding,
				Format:   format,
				Offset:   a.OffsetBytes,
			})
		}
	}
	return vl, nil
}

func (vl *vertexLayout) inputState() vk.PipelineVertexInputStateCreateInfo {
	return vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(vl.bindings)),
		PVertexBindingDescriptions:      vl.bindings,
		VertexAttributeDescriptionCount: uint32(len(vl.attributes)),
		PVertexAttributeDescriptions:    vl.attributes,
	}
}
