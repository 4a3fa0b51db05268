package renderer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type Options struct {
	AppName    string
	EngineName string
	Debug      bool
	// Params carries backend specific configuration, e.g. *headless.Config.
	Params interface{}
}

type BackendFactory func(opts Options) (Device, error)

var (
	backendsMu sync.RWMutex
	backends   = map[metadata.GraphicsAPI]BackendFactory{}
)

// RegisterBackend makes a backend available to Initialize. Backends
// register themselves from their package init.
func RegisterBackend(api metadata.GraphicsAPI, factory BackendFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if factory == nil {
		panic("renderer: RegisterBackend factory is nil")
	}
	backends[api] = factory
}

func Backends() []metadata.GraphicsAPI {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]metadata.GraphicsAPI, 0, len(backends))
	for api := range backends {
		out = append(out, api)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Renderer pairs a device with the context that submits to it.
type Renderer struct {
	API     metadata.GraphicsAPI
	Device  Device
	Context Context
}

func Initialize(api metadata.GraphicsAPI, opts Options) (*Renderer, error) {
	backendsMu.RLock()
	factory, ok := backends[api]
	backendsMu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w: %s", core.ErrBackendUnavailable, api)
		core.LogError("%s", err)
		return nil, err
	}

	device, err := factory(opts)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", core.ErrDeviceCreation, api, err)
		core.LogError("%s", err)
		return nil, err
	}

	ctx, err := device.CreateContext()
	if err != nil {
		err = fmt.Errorf("%w: %s context: %w", core.ErrDeviceCreation, api, err)
		core.LogError("%s", err)
		return nil, errors.Join(err, device.Dispose())
	}

	core.LogInfo("%s renderer initialized for '%s' (%s)", api, opts.AppName, opts.EngineName)
	return &Renderer{
		API:     api,
		Device:  device,
		Context: ctx,
	}, nil
}

// Shutdown waits for the GPU, then disposes the context before the device.
func (r *Renderer) Shutdown() error {
	var errs []error
	if r.Context != nil {
		if err := r.Context.Wait(); err != nil {
			errs = append(errs, err)
		}
		if err := r.Context.Dispose(); err != nil {
			errs = append(errs, err)
		}
		r.Context = nil
	}
	if r.Device != nil {
		if err := r.Device.Dispose(); err != nil {
			errs = append(errs, err)
		}
		r.Device = nil
	}
	return errors.Join(errs...)
}
