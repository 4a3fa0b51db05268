package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/core"
)

type commandBufferState int

const (
	commandBufferReady commandBufferState = iota
	commandBufferRecording
	commandBufferRecordingEnded
	commandBufferSubmitted
	commandBufferNotAllocated
)

type commandBuffer struct {
	handle vk.CommandBuffer
	state  commandBufferState
}

func newCommandBuffer(d *Device) (*commandBuffer, error) {
	cb := &commandBuffer{state: commandBufferNotAllocated}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.handle, &allocateInfo, handles); res != vk.Success {
		err := fmt.Errorf("failed to allocate command buffer: %s", resultString(res))
		core.LogError("%s", err)
		return nil, err
	}
	cb.handle = handles[0]
	cb.state = commandBufferReady
	return cb, nil
}

func (cb *commandBuffer) free(d *Device) {
	if cb.handle != nil {
		vk.FreeCommandBuffers(d.handle, d.commandPool, 1, []vk.CommandBuffer{cb.handle})
		cb.handle = nil
	}
	cb.state = commandBufferNotAllocated
}

// begin resets the buffer and opens a one time recording.
func (cb *commandBuffer) begin() error {
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(cb.handle, 0)); err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb.handle, &beginInfo)); err != nil {
		return err
	}
	cb.state = commandBufferRecording
	return nil
}

func (cb *commandBuffer) end() error {
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(cb.handle)); err != nil {
		return err
	}
	cb.state = commandBufferRecordingEnded
	return nil
}
