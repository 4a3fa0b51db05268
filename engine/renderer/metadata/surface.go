package metadata

import (
	"fmt"
	"strings"
)

/**
 * @brief A native presentation surface owned by the windowing layer.
 * Every query may be called at any time, including before the surface
 * has been laid out.
 */
type Surface interface {
	/** @brief Backend specific native handle (e.g. *glfw.Window). */
	Handle() interface{}
	/** @brief Current pixel extents. Zero while not laid out. */
	Size() (width uint32, height uint32)
	/** @brief True once the surface has been laid out by the UI. */
	IsReady() bool
	/** @brief False while hidden or minimized. */
	IsVisible() bool
}

/** @brief Number of frames a swapchain may have in flight. */
type FrameBuffering int

const (
	FrameBufferingSingle FrameBuffering = iota
	FrameBufferingDouble
	FrameBufferingTriple
)

func (b FrameBuffering) FrameCount() uint32 {
	switch b {
	case FrameBufferingSingle:
		return 1
	case FrameBufferingDouble:
		return 2
	default:
		return 3
	}
}

func (b FrameBuffering) String() string {
	switch b {
	case FrameBufferingSingle:
		return "single"
	case FrameBufferingDouble:
		return "double"
	case FrameBufferingTriple:
		return "triple"
	}
	return fmt.Sprintf("FrameBuffering(%d)", int(b))
}

func ParseFrameBuffering(s string) (FrameBuffering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return FrameBufferingSingle, nil
	case "double":
		return FrameBufferingDouble, nil
	case "triple":
		return FrameBufferingTriple, nil
	}
	return FrameBufferingTriple, fmt.Errorf("unknown frame buffering `%s`", s)
}

type SwapchainDescription struct {
	Surface     Surface
	Format      ResourceFormat
	Width       uint32
	Height      uint32
	BufferCount uint32
	Buffering   FrameBuffering
}

func (d SwapchainDescription) Validate() error {
	if d.Surface == nil {
		return fmt.Errorf("swapchain description has no surface")
	}
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("swapchain extent %dx%d is empty", d.Width, d.Height)
	}
	if d.BufferCount == 0 {
		return fmt.Errorf("swapchain needs at least one buffer")
	}
	if d.Format == ResourceFormatUnknown || d.Format.IsDepth() {
		return fmt.Errorf("swapchain format %s is not presentable", d.Format)
	}
	return nil
}
