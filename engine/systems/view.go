package systems

import "fmt"

// View selects one of the editor render surfaces.
type View int

const (
	ViewGameMode View = iota
	ViewEditMode
)

// AllViews lists the views in tick order.
var AllViews = []View{ViewGameMode, ViewEditMode}

func (v View) String() string {
	switch v {
	case ViewGameMode:
		return "game"
	case ViewEditMode:
		return "edit"
	}
	return fmt.Sprintf("View(%d)", int(v))
}

func (v View) valid() bool {
	return v == ViewGameMode || v == ViewEditMode
}

/**
 * @brief Lifecycle of a view's swapchain.
 *
 * Uninitialized -> Initializing -> Active <-> Resizing
 * Active -> ShuttingDown -> Destroyed -> Initializing
 */
type ViewState int

const (
	ViewStateUninitialized ViewState = iota
	/** @brief Waiting for the surface to report ready with non-zero extents. */
	ViewStateInitializing
	ViewStateActive
	ViewStateResizing
	ViewStateShuttingDown
	ViewStateDestroyed
)

func (s ViewState) String() string {
	switch s {
	case ViewStateUninitialized:
		return "uninitialized"
	case ViewStateInitializing:
		return "initializing"
	case ViewStateActive:
		return "active"
	case ViewStateResizing:
		return "resizing"
	case ViewStateShuttingDown:
		return "shutting-down"
	case ViewStateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("ViewState(%d)", int(s))
}
