package engine

import (
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/systems"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name     string
	LogLevel core.LogLevel
	// Window placement per view.
	Windows map[systems.View]config.WindowConfig
	// Upper bound of the frame rate, zero for unbounded.
	TargetFPS uint32
}

// NewApplicationConfig derives the host settings from the editor
// configuration.
func NewApplicationConfig(cfg *config.Config) *ApplicationConfig {
	return &ApplicationConfig{
		Name:     cfg.AppName,
		LogLevel: cfg.Level(),
		Windows: map[systems.View]config.WindowConfig{
			systems.ViewGameMode: cfg.Windows.Game,
			systems.ViewEditMode: cfg.Windows.Edit,
		},
		TargetFPS: 60,
	}
}
