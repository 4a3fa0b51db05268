package testbed

import (
	"github.com/spaghettifunk/anima-editor/engine"
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/systems"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	// pulse phase of the clear colors, in seconds
	phase   float64
	drawers map[systems.View]systems.Drawer
}

func NewTestGame(cfg *config.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(cfg),
			State: &gameState{
				drawers: make(map[systems.View]systems.Drawer),
			},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnDrawer = tg.Drawer
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")
	return nil
}

func (g *TestGame) Initialize() error {
	st := g.state()
	var shaders *systems.ShaderSystem
	if g.SystemManager != nil {
		shaders = g.SystemManager.ShaderSystem
		g.SystemManager.Console.Printf("%s ready", g.ApplicationConfig.Name)
	}
	phase := func() float64 { return st.phase }
	for _, view := range systems.AllViews {
		st.drawers[view] = newViewDrawer(view, phase, shaders)
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().phase += deltaTime
	return nil
}

func (g *TestGame) Drawer(view systems.View) systems.Drawer {
	return g.state().drawers[view]
}

func (g *TestGame) OnResize(view systems.View, width uint32, height uint32) error {
	core.LogDebug("testbed: %s view resized to %dx%d", view, width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}
