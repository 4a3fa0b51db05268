package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

var resultNames = map[vk.Result]string{
	vk.Success:                   "VK_SUCCESS",
	vk.NotReady:                  "VK_NOT_READY",
	vk.Timeout:                   "VK_TIMEOUT",
	vk.Incomplete:                "VK_INCOMPLETE",
	vk.Suboptimal:                "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	vk.ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorSurfaceLost:          "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:    "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:            "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorInvalidShaderNv:      "VK_ERROR_INVALID_SHADER_NV",
	vk.ErrorUnknown:              "VK_ERROR_UNKNOWN",
}

func resultString(result vk.Result) string {
	if n, ok := resultNames[result]; ok {
		return n
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

// check turns a failed call into an error naming the call.
func check(call string, result vk.Result) error {
	if result == vk.Success {
		return nil
	}
	return fmt.Errorf("%s failed: %s", call, resultString(result))
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

// cString trims a fixed size, NUL terminated name returned by the driver.
func cString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

var formats = map[metadata.ResourceFormat]vk.Format{
	metadata.ResourceFormatR8G8B8A8Unorm:     vk.FormatR8g8b8a8Unorm,
	metadata.ResourceFormatB8G8R8A8Unorm:     vk.FormatB8g8r8a8Unorm,
	metadata.ResourceFormatR16G16B16A16Float: vk.FormatR16g16b16a16Sfloat,
	metadata.ResourceFormatR11G11B10Float:    vk.FormatB10g11r11UfloatPack32,
	metadata.ResourceFormatR32Float:          vk.FormatR32Sfloat,
	metadata.ResourceFormatR32G32Float:       vk.FormatR32g32Sfloat,
	metadata.ResourceFormatR32G32B32Float:    vk.FormatR32g32b32Sfloat,
	metadata.ResourceFormatR32G32B32A32Float: vk.FormatR32g32b32a32Sfloat,
	metadata.ResourceFormatD32Float:          vk.FormatD32Sfloat,
	metadata.ResourceFormatD16Unorm:          vk.FormatD16Unorm,
	metadata.ResourceFormatD24UnormS8Uint:    vk.FormatD24UnormS8Uint,
}

func toFormat(f metadata.ResourceFormat) (vk.Format, error) {
	if vf, ok := formats[f]; ok {
		return vf, nil
	}
	return vk.FormatUndefined, fmt.Errorf("format %s has no vulkan equivalent", f)
}

func toLayout(s metadata.ResourceState) vk.ImageLayout {
	switch s {
	case metadata.ResourceStateUndefined:
		return vk.ImageLayoutUndefined
	case metadata.ResourceStateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ResourceStateShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.ResourceStateCopySource:
		return vk.ImageLayoutTransferSrcOptimal
	case metadata.ResourceStateCopyDestination:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.ResourceStateDepthStencilReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case metadata.ResourceStateDepthStencilWrite:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.ResourceStatePresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutGeneral
}

func aspectOf(f metadata.ResourceFormat) vk.ImageAspectFlags {
	if !f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if f.HasStencil() {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return aspect
}

func imageUsage(u metadata.ResourceUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u.Has(metadata.ResourceUsageRenderTarget) {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u.Has(metadata.ResourceUsageDepthStencil) {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u.Has(metadata.ResourceUsageShaderResource) {
		flags |= vk.ImageUsageSampledBit
	}
	if u.Has(metadata.ResourceUsageUnorderedAccess) {
		flags |= vk.ImageUsageStorageBit
	}
	if u.Has(metadata.ResourceUsageCopySource) {
		flags |= vk.ImageUsageTransferSrcBit
	}
	// clears are recorded as transfer commands
	flags |= vk.ImageUsageTransferDstBit
	return vk.ImageUsageFlags(flags)
}
