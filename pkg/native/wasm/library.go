package wasm

import (
	"context"
	"fmt"

	"github.com/erbridge/erbridge/pkg/native"
)

// Library serves native sub-objects from one hosted engine module.
type Library struct {
	host *Host
}

var _ native.Library = (*Library)(nil)

// NewLibrary wraps an already instantiated host. Close closes the host.
func NewLibrary(host *Host) *Library {
	return &Library{host: host}
}

// Open loads the manifest at path, reads and verifies the module and
// instantiates it.
func Open(ctx context.Context, manifestPath string, cfg *HostConfig) (*Library, error) {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	module, err := manifest.ReadModule()
	if err != nil {
		return nil, err
	}

	host, err := NewHost(ctx, manifest, module, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to host engine %s %s: %w", manifest.Name, manifest.Version, err)
	}

	return NewLibrary(host), nil
}

// Manifest returns the manifest of the hosted engine.
func (l *Library) Manifest() *Manifest {
	return l.host.Manifest()
}

// NewProduct implements native.Library.
func (l *Library) NewProduct(ctx context.Context) (native.Product, error) {
	return &product{newObject(l.host.Bridge(), "product")}, nil
}

// NewConfig implements native.Library.
func (l *Library) NewConfig(ctx context.Context) (native.Config, error) {
	return &config{newObject(l.host.Bridge(), "config")}, nil
}

// NewConfigManager implements native.Library.
func (l *Library) NewConfigManager(ctx context.Context) (native.ConfigManager, error) {
	return &configManager{newObject(l.host.Bridge(), "config_manager")}, nil
}

// NewDiagnostic implements native.Library.
func (l *Library) NewDiagnostic(ctx context.Context) (native.Diagnostic, error) {
	return &diagnostic{newObject(l.host.Bridge(), "diagnostic")}, nil
}

// NewEngine implements native.Library.
func (l *Library) NewEngine(ctx context.Context) (native.Engine, error) {
	return &engine{newObject(l.host.Bridge(), "engine")}, nil
}

// Close releases the runtime.
func (l *Library) Close(ctx context.Context) error {
	return l.host.Close(ctx)
}
