// Package vulkan implements the renderer interfaces on top of goki/vulkan.
// Windows are provided by glfw; every swapchain owns the VkSurface of the
// window it presents to.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Config struct {
	// Window is queried for the instance extensions glfw needs to create
	// surfaces. Any window of the application will do.
	Window *glfw.Window
	// PreferDiscrete skips integrated GPUs when a discrete one is present.
	PreferDiscrete bool
}

func init() {
	renderer.RegisterBackend(metadata.GraphicsAPIVulkan, func(opts renderer.Options) (renderer.Device, error) {
		cfg, _ := opts.Params.(*Config)
		if cfg == nil {
			cfg = &Config{}
		}
		return NewDevice(opts, *cfg)
	})
}

type instance struct {
	handle vk.Instance
	debug  vk.DebugReportCallback
}

func createInstance(opts renderer.Options, cfg Config) (*instance, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil, is glfw initialized?")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(opts.AppName),
		PEngineName:        safeString(opts.EngineName),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{"VK_KHR_surface"}
	if cfg.Window != nil {
		extensions = append(extensions, cfg.Window.GetRequiredInstanceExtensions()...)
	}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	var layers []string
	if opts.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if hasLayer(validationLayer) {
			layers = append(layers, validationLayer)
		} else {
			core.LogWarn("validation layer %s is not installed", validationLayer)
		}
	}
	for _, ext := range extensions {
		core.LogDebug("instance extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	inst := &instance{}
	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, nil, &inst.handle)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(inst.handle); err != nil {
		vk.DestroyInstance(inst.handle, nil)
		return nil, err
	}
	core.LogInfo("Vulkan instance created.")

	if opts.Debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugCallback,
		}
		if err := check("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(inst.handle, &debugCreateInfo, nil, &inst.debug)); err != nil {
			core.LogWarn("%s", err)
		}
	}
	return inst, nil
}

func (i *instance) destroy() {
	if i.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.handle, i.debug, nil)
		i.debug = vk.NullDebugReportCallback
	}
	vk.DestroyInstance(i.handle, nil)
}

func hasLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("performance [%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
