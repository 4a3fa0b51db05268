package systems

import (
	"errors"

	"github.com/spaghettifunk/anima-editor/engine/assets"
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
)

// SystemManager builds the editor systems from the configuration and
// tears them down in reverse order.
type SystemManager struct {
	config *config.Config

	Console       *core.Console
	JobSystem     *JobSystem
	AssetManager  *assets.AssetManager
	ShaderSystem  *ShaderSystem
	SurfaceSystem *SurfaceSystem
}

// NewSystemManager wires the systems. backendParams is handed to the
// backend factory on Initialize.
func NewSystemManager(cfg *config.Config, backendParams interface{}) (*SystemManager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	console := core.NewConsole(cfg.Console.Capacity)

	workers := cfg.Shaders.Workers
	if workers <= 0 {
		workers = 1
	}
	js, err := NewJobSystem(workers, workers*2)
	if err != nil {
		return nil, err
	}

	am := assets.NewAssetManager(cfg.Shaders.Dir)
	ss, err := NewShaderSystem(&ShaderSystemConfig{
		Compiler: cfg.Shaders.CompilerOverride,
	}, js, am)
	if err != nil {
		return nil, errors.Join(err, js.Shutdown())
	}

	surfaceConfig, err := NewSurfaceSystemConfig(cfg)
	if err != nil {
		return nil, errors.Join(err, js.Shutdown())
	}
	surfaceConfig.BackendParams = backendParams
	surfaces, err := NewSurfaceSystem(surfaceConfig, ss, console)
	if err != nil {
		return nil, errors.Join(err, js.Shutdown())
	}

	return &SystemManager{
		config:        cfg,
		Console:       console,
		JobSystem:     js,
		AssetManager:  am,
		ShaderSystem:  ss,
		SurfaceSystem: surfaces,
	}, nil
}

// Initialize indexes the shader sources, then creates the device and
// builds the programs.
func (sm *SystemManager) Initialize() error {
	api, err := sm.config.API()
	if err != nil {
		return err
	}
	if err := sm.AssetManager.Initialize(sm.config.Shaders.Watch); err != nil {
		core.LogError("%s", err)
		return err
	}
	return sm.SurfaceSystem.Initialize(api, sm.config.AppName, sm.config.EngineName)
}

func (sm *SystemManager) Shutdown() error {
	var errs []error
	if err := sm.SurfaceSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.ShaderSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.AssetManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.JobSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
