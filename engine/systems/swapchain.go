package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// MaxSwapchainExtent bounds each swapchain dimension.
const MaxSwapchainExtent uint32 = 16384

/**
 * @brief Owns the swapchain of a single view and guards its frame
 * acquisition: one frame may be acquired at a time and the swapchain
 * cannot be resized or released while it is.
 */
type SwapchainManager struct {
	view      View
	device    renderer.Device
	swapchain renderer.Swapchain
	acquired  bool
}

func NewSwapchainManager(view View, device renderer.Device) *SwapchainManager {
	return &SwapchainManager{
		view:   view,
		device: device,
	}
}

func (m *SwapchainManager) View() View {
	return m.view
}

/**
 * @brief Binds a new swapchain to surface. Fails with ErrInvalidExtent
 * while the surface has not been laid out.
 */
func (m *SwapchainManager) Create(surface metadata.Surface, format metadata.ResourceFormat, width, height, bufferCount uint32, buffering metadata.FrameBuffering) error {
	if m.swapchain != nil {
		return fmt.Errorf("%w: %s swapchain", core.ErrAlreadyInitialized, m.view)
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %s surface is %dx%d", core.ErrInvalidExtent, m.view, width, height)
	}
	sc, err := m.device.CreateSwapchain(metadata.SwapchainDescription{
		Surface:     surface,
		Format:      format,
		Width:       core.Clamp(width, 1, MaxSwapchainExtent),
		Height:      core.Clamp(height, 1, MaxSwapchainExtent),
		BufferCount: bufferCount,
		Buffering:   buffering,
	})
	if err != nil {
		return err
	}
	m.swapchain = sc
	m.acquired = false
	core.LogInfo("%s swapchain created %dx%d (%d buffers, %s buffering)", m.view, width, height, bufferCount, buffering)
	return nil
}

func (m *SwapchainManager) IsActive() bool {
	return m.swapchain != nil
}

// Extent is the current swapchain size, zero when inactive.
func (m *SwapchainManager) Extent() (uint32, uint32) {
	if m.swapchain == nil {
		return 0, 0
	}
	d := m.swapchain.Description()
	return d.Width, d.Height
}

func (m *SwapchainManager) Prepare(ctx renderer.Context) error {
	if m.swapchain == nil {
		return fmt.Errorf("%w: %s", core.ErrSwapchainInactive, m.view)
	}
	if m.acquired {
		return fmt.Errorf("%w: %s frame not presented", core.ErrFrameInFlight, m.view)
	}
	if err := m.swapchain.Prepare(ctx); err != nil {
		return err
	}
	m.acquired = true
	return nil
}

// CurrentFrame is valid between Prepare and the matching Present.
func (m *SwapchainManager) CurrentFrame() (renderer.Resource, error) {
	if !m.acquired {
		return nil, fmt.Errorf("%w: %s", core.ErrNoFrameAcquired, m.view)
	}
	return m.swapchain.CurrentFrame()
}

/**
 * @brief Recreates the frame ring at the new extents. The context must
 * have been waited on by the caller.
 */
func (m *SwapchainManager) Resize(width, height uint32) error {
	if m.swapchain == nil {
		return fmt.Errorf("%w: %s", core.ErrSwapchainInactive, m.view)
	}
	if m.acquired {
		return fmt.Errorf("%w: cannot resize %s while a frame is acquired", core.ErrFrameInFlight, m.view)
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", core.ErrInvalidExtent, width, height)
	}
	width = core.Clamp(width, 1, MaxSwapchainExtent)
	height = core.Clamp(height, 1, MaxSwapchainExtent)
	if err := m.swapchain.Resize(width, height); err != nil {
		return err
	}
	core.LogInfo("%s swapchain resized to %dx%d", m.view, width, height)
	return nil
}

// Present submits the acquired frame. The frame is consumed even when
// presenting fails.
func (m *SwapchainManager) Present(ctx renderer.Context) error {
	if !m.acquired {
		return fmt.Errorf("%w: %s", core.ErrNoFrameAcquired, m.view)
	}
	m.acquired = false
	return m.swapchain.Present(ctx)
}

// Release destroys the swapchain. The context must have been waited on.
func (m *SwapchainManager) Release() error {
	if m.swapchain == nil {
		return nil
	}
	if m.acquired {
		return fmt.Errorf("%w: cannot release %s while a frame is acquired", core.ErrFrameInFlight, m.view)
	}
	err := m.swapchain.Release()
	m.swapchain = nil
	if err != nil {
		return err
	}
	core.LogInfo("%s swapchain released", m.view)
	return nil
}
