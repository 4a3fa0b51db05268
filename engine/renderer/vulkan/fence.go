package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/core"
)

type fence struct {
	handle   vk.Fence
	signaled bool
}

func newFence(d *Device, createSignaled bool) (*fence, error) {
	f := &fence{signaled: createSignaled}
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if err := check("vkCreateFence", vk.CreateFence(d.handle, &createInfo, nil, &f.handle)); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *fence) destroy(d *Device) {
	if f.handle != vk.NullFence {
		vk.DestroyFence(d.handle, f.handle, nil)
		f.handle = vk.NullFence
	}
	f.signaled = false
}

// wait returns immediately when the fence is known to be signaled.
func (f *fence) wait(d *Device, timeoutNs uint64) error {
	if f.signaled {
		return nil
	}
	result := vk.WaitForFences(d.handle, 1, []vk.Fence{f.handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		f.signaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("fence wait timed out")
	}
	return check("vkWaitForFences", result)
}

func (f *fence) reset(d *Device) error {
	if !f.signaled {
		return nil
	}
	if res := vk.ResetFences(d.handle, 1, []vk.Fence{f.handle}); res != vk.Success {
		err := fmt.Errorf("failed to reset fence: %s", resultString(res))
		core.LogError("%s", err)
		return err
	}
	f.signaled = false
	return nil
}
