package engine

import (
	"github.com/spaghettifunk/anima-editor/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	State             interface{}
	FnBoot            Boot
	FnInitialize      Initialize
	FnUpdate          Update
	FnDrawer          Drawer
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Boot func() error
type Initialize func() error
type Update func(deltaTime float64) error

// Drawer returns the frame recorder of a view, nil to skip it.
type Drawer func(view systems.View) systems.Drawer
type OnResize func(view systems.View, width uint32, height uint32) error
type Shutdown func() error
