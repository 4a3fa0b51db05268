package vulkan

import (
	"errors"
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const portabilitySubset = "VK_KHR_portability_subset"

type Device struct {
	locks    *lockPool
	name     string
	instance *instance

	physical    vk.PhysicalDevice
	properties  vk.PhysicalDeviceProperties
	memory      vk.PhysicalDeviceMemoryProperties
	handle      vk.Device
	queueFamily uint32
	queue       vk.Queue
	commandPool vk.CommandPool

	context  *Context
	disposed bool

	programs   map[metadata.ShaderProgramID]*program
	layouts    map[metadata.VertexLayoutID]*vertexLayout
	swapchains map[*Swapchain]struct{}
	resources  map[*Resource]struct{}
	// released without MarkReleaseImmediately, destroyed on the next Wait.
	deferred []*Resource
}

func NewDevice(opts renderer.Options, cfg Config) (*Device, error) {
	inst, err := createInstance(opts, cfg)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	d := &Device{
		locks:      newLockPool(),
		name:       opts.AppName,
		instance:   inst,
		programs:   make(map[metadata.ShaderProgramID]*program),
		layouts:    make(map[metadata.VertexLayoutID]*vertexLayout),
		swapchains: make(map[*Swapchain]struct{}),
		resources:  make(map[*Resource]struct{}),
	}
	if err := d.selectPhysicalDevice(cfg.PreferDiscrete); err != nil {
		inst.destroy()
		core.LogError("%s", err)
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		inst.destroy()
		core.LogError("%s", err)
		return nil, err
	}
	return d, nil
}

type candidate struct {
	device      vk.PhysicalDevice
	properties  vk.PhysicalDeviceProperties
	queueFamily uint32
}

func (d *Device) selectPhysicalDevice(preferDiscrete bool) error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance.handle, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return errors.New("no devices which support Vulkan were found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(d.instance.handle, &count, devices)); err != nil {
		return err
	}

	var chosen *candidate
	for _, pd := range devices {
		c, ok := meetsRequirements(pd)
		if !ok {
			continue
		}
		if chosen == nil {
			chosen = c
		}
		if preferDiscrete && runtime.GOOS != "darwin" && c.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			chosen = c
			break
		}
	}
	if chosen == nil {
		return errors.New("no physical devices were found which meet the requirements")
	}

	d.physical = chosen.device
	d.properties = chosen.properties
	d.queueFamily = chosen.queueFamily
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &d.memory)
	d.memory.Deref()

	core.LogInfo("Selected device: '%s' (%s)", cString(d.properties.DeviceName[:]), deviceType(d.properties.DeviceType))
	core.LogInfo("GPU driver version: %d.%d.%d",
		vk.Version(d.properties.DriverVersion).Major(),
		vk.Version(d.properties.DriverVersion).Minor(),
		vk.Version(d.properties.DriverVersion).Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(d.properties.ApiVersion).Major(),
		vk.Version(d.properties.ApiVersion).Minor(),
		vk.Version(d.properties.ApiVersion).Patch())
	for i := uint32(0); i < d.memory.MemoryHeapCount; i++ {
		heap := d.memory.MemoryHeaps[i]
		heap.Deref()
		gib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared system memory: %.2f GiB", gib)
		}
	}
	return nil
}

// meetsRequirements needs a graphics queue and the swapchain extension.
// Presentation support is checked per surface when a swapchain is created.
func meetsRequirements(pd vk.PhysicalDevice) (*candidate, bool) {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()
	name := cString(properties.DeviceName[:])

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	graphics := -1
	for i := range families {
		families[i].Deref()
		if vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			graphics = i
			break
		}
	}
	if graphics < 0 {
		core.LogInfo("Device '%s' has no graphics queue, skipping.", name)
		return nil, false
	}
	if !hasDeviceExtension(pd, vk.KhrSwapchainExtensionName) {
		core.LogInfo("Device '%s' does not support %s, skipping.", name, vk.KhrSwapchainExtensionName)
		return nil, false
	}
	return &candidate{device: pd, properties: properties, queueFamily: uint32(graphics)}, true
}

func hasDeviceExtension(pd vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil) != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func deviceType(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "unknown"
}

func (d *Device) createLogicalDevice() error {
	extensions := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(d.physical, portabilitySubset) {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensions = append(extensions, portabilitySubset)
	}

	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueInfo},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if err := check("vkCreateDevice", vk.CreateDevice(d.physical, &createInfo, nil, &d.handle)); err != nil {
		return err
	}
	vk.GetDeviceQueue(d.handle, d.queueFamily, 0, &d.queue)

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(d.handle, &poolInfo, nil, &d.commandPool)); err != nil {
		vk.DestroyDevice(d.handle, nil)
		return err
	}
	core.LogInfo("Logical device created, graphics queue family %d.", d.queueFamily)
	return nil
}

func (d *Device) API() metadata.GraphicsAPI {
	return metadata.GraphicsAPIVulkan
}

func (d *Device) IntermediateCode() metadata.ShaderIntermediateCode {
	return metadata.ShaderIntermediateSPIRV
}

func (d *Device) CreateContext() (renderer.Context, error) {
	if d.disposed {
		return nil, core.ErrNotInitialized
	}
	if d.context != nil && !d.context.isDisposed() {
		return nil, fmt.Errorf("%w: device already has a context", core.ErrAlreadyInitialized)
	}
	c, err := newContext(d, defaultFrameDepth)
	if err != nil {
		return nil, err
	}
	d.context = c
	return c, nil
}

func (d *Device) CreateSwapchain(desc metadata.SwapchainDescription) (renderer.Swapchain, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidExtent, err)
	}
	if d.disposed {
		return nil, core.ErrNotInitialized
	}
	sc, err := newSwapchain(d, desc)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	_ = d.locks.safeCall(swapchainManagement, func() error {
		d.swapchains[sc] = struct{}{}
		return nil
	})
	return sc, nil
}

func (d *Device) CreateResource(desc metadata.ResourceDescriptor, initialState metadata.ResourceState) (renderer.Resource, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if d.disposed {
		return nil, core.ErrNotInitialized
	}
	r, err := newImageResource(d, desc, initialState)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	_ = d.locks.safeCall(resourceManagement, func() error {
		d.resources[r] = struct{}{}
		return nil
	})
	core.LogDebug("created %s %dx%d %s", desc.Name, desc.Width, desc.Height, desc.Format)
	return r, nil
}

func (d *Device) LoadShaderProgram(def *metadata.ShaderProgramDefinition) error {
	if def == nil || len(def.Stages) == 0 {
		return fmt.Errorf("%w: empty program definition", core.ErrShaderBuild)
	}
	p, err := newProgram(d, def)
	if err != nil {
		return err
	}
	return d.locks.safeCall(shaderManagement, func() error {
		if prev, ok := d.programs[def.ID]; ok {
			prev.destroy(d)
		}
		d.programs[def.ID] = p
		return nil
	})
}

func (d *Device) UnloadShaderProgram(id metadata.ShaderProgramID) error {
	return d.locks.safeCall(shaderManagement, func() error {
		p, ok := d.programs[id]
		if !ok {
			return fmt.Errorf("%w: %d", core.ErrProgramUnavailable, id)
		}
		p.destroy(d)
		delete(d.programs, id)
		return nil
	})
}

func (d *Device) hasProgram(id metadata.ShaderProgramID) bool {
	found := false
	_ = d.locks.safeCall(shaderManagement, func() error {
		_, found = d.programs[id]
		return nil
	})
	return found
}

func (d *Device) MakeVertexLayout(id metadata.VertexLayoutID, layout metadata.VertexInputLayout) error {
	vl, err := newVertexLayout(layout)
	if err != nil {
		return err
	}
	return d.locks.safeCall(shaderManagement, func() error {
		d.layouts[id] = vl
		return nil
	})
}

func (d *Device) DestroyVertexLayout(id metadata.VertexLayoutID) error {
	return d.locks.safeCall(shaderManagement, func() error {
		if _, ok := d.layouts[id]; !ok {
			return fmt.Errorf("vertex layout %d not found", id)
		}
		delete(d.layouts, id)
		return nil
	})
}

func (d *Device) hasLayout(id metadata.VertexLayoutID) bool {
	found := false
	_ = d.locks.safeCall(shaderManagement, func() error {
		_, found = d.layouts[id]
		return nil
	})
	return found
}

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has every requested property, or -1.
func (d *Device) findMemoryIndex(typeFilter uint32, properties vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		mt := d.memory.MemoryTypes[i]
		mt.Deref()
		if typeFilter&(1<<i) != 0 && mt.PropertyFlags&properties == properties {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (d *Device) deferRelease(r *Resource) {
	_ = d.locks.safeCall(resourceManagement, func() error {
		d.deferred = append(d.deferred, r)
		return nil
	})
}

// flushDeferred destroys resources whose frames have all been retired.
func (d *Device) flushDeferred() {
	_ = d.locks.safeCall(resourceManagement, func() error {
		for _, r := range d.deferred {
			r.destroy()
			delete(d.resources, r)
		}
		d.deferred = nil
		return nil
	})
}

func (d *Device) freeResource(r *Resource) {
	_ = d.locks.safeCall(resourceManagement, func() error {
		r.destroy()
		delete(d.resources, r)
		return nil
	})
}

func (d *Device) forgetSwapchain(sc *Swapchain) {
	_ = d.locks.safeCall(swapchainManagement, func() error {
		delete(d.swapchains, sc)
		return nil
	})
}

func (d *Device) inFlight() int {
	if d.context == nil {
		return 0
	}
	return d.context.InFlight()
}

// Dispose refuses to run while the context is alive. Leaked swapchains and
// resources are destroyed and reported.
func (d *Device) Dispose() error {
	if d.disposed {
		return core.ErrNotInitialized
	}
	if d.context != nil && !d.context.isDisposed() {
		return fmt.Errorf("%w: context must be disposed before the device", core.ErrInvalidState)
	}
	vk.DeviceWaitIdle(d.handle)

	var errs []error
	if n := len(d.swapchains); n > 0 {
		errs = append(errs, fmt.Errorf("%d swapchain(s) still alive at device disposal", n))
		for sc := range d.swapchains {
			sc.destroy()
		}
	}
	d.flushDeferred()
	live := 0
	for r := range d.resources {
		if !r.IsReleased() {
			live++
		}
		r.destroy()
	}
	if live > 0 {
		errs = append(errs, fmt.Errorf("%d resource(s) still alive at device disposal", live))
	}
	for _, err := range errs {
		core.LogWarn("%s", err)
	}

	for id, p := range d.programs {
		p.destroy(d)
		delete(d.programs, id)
	}
	d.layouts = nil
	d.swapchains = nil
	d.resources = nil

	core.LogDebug("Destroying Vulkan device...")
	vk.DestroyCommandPool(d.handle, d.commandPool, nil)
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
	d.queue = nil
	d.physical = nil

	core.LogDebug("Destroying Vulkan instance...")
	d.instance.destroy()
	d.disposed = true
	return errors.Join(errs...)
}
