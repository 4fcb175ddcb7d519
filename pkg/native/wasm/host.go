// Package wasm hosts an engine build compiled to WebAssembly and exposes it
// through the native call boundary.
package wasm

import (
	"context"
	"fmt"
	"time"

	"github.com/erbridge/erbridge/pkg/telemetry"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Log levels accepted by the host_log import.
const (
	logLevelDebug uint32 = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

// HostConfig contains configuration for the WASM host.
type HostConfig struct {
	// Timeout bounds each exported call. Default is 30s.
	//
	// A call that runs past the timeout closes the module instance: that
	// call and every later one fail with CodeModuleClosed, which classifies
	// as unrecoverable. The library has to be reopened and the provider
	// instance rebuilt.
	Timeout time.Duration

	// MemoryLimitPages is the maximum memory in 64KiB pages. Default is 512
	// pages (32MiB).
	MemoryLimitPages uint32

	// Logger receives messages the engine emits through host_log.
	Logger *telemetry.Logger
}

// Host owns a wazero runtime with one instantiated engine module.
type Host struct {
	manifest *Manifest
	runtime  wazero.Runtime
	module   api.Module
	bridge   *Bridge
	logger   *telemetry.Logger
}

// NewHost compiles and instantiates an engine module.
func NewHost(ctx context.Context, manifest *Manifest, wasmModule []byte, cfg *HostConfig) (*Host, error) {
	if cfg == nil {
		cfg = &HostConfig{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = manifest.Timeout()
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pages := cfg.MemoryLimitPages
	if pages == 0 {
		pages = manifest.MemoryLimitPages
	}
	if pages == 0 {
		pages = 512
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	logger = logger.NewComponentLogger("wasm").WithEngine(manifest.Name, manifest.Version)

	if err := manifest.VerifyChecksum(wasmModule); err != nil {
		return nil, err
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	builder := runtime.NewHostModuleBuilder("env")
	registerHostFunctions(builder, logger)
	if _, err := builder.Instantiate(ctx); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName(manifest.Name).
		WithStartFunctions("_initialize")

	module, err := runtime.InstantiateWithConfig(ctx, wasmModule, moduleConfig)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASM module: %w", err)
	}

	bridge, err := NewBridge(module, timeout)
	if err != nil {
		_ = module.Close(ctx)
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to create WASM bridge: %w", err)
	}

	logger.Debugf("engine module instantiated (memory limit %d pages, timeout %s)", pages, timeout)

	return &Host{
		manifest: manifest,
		runtime:  runtime,
		module:   module,
		bridge:   bridge,
		logger:   logger,
	}, nil
}

// registerHostFunctions exports host_log(level, ptr, len) to the engine.
func registerHostFunctions(builder wazero.HostModuleBuilder, logger *telemetry.Logger) {
	engineLog := logger.WithField("source", "engine")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, level, ptr, length uint32) {
			data, ok := mod.Memory().Read(ptr, length)
			if !ok {
				logger.Warnf("host_log: out of range read ptr=%d len=%d", ptr, length)
				return
			}
			msg := string(data)
			switch level {
			case logLevelDebug:
				engineLog.Debug(msg)
			case logLevelInfo:
				engineLog.Info(msg)
			case logLevelWarn:
				engineLog.Warn(msg)
			default:
				engineLog.Error(msg)
			}
		}).
		Export("host_log")
}

// Bridge returns the call bridge.
func (h *Host) Bridge() *Bridge {
	return h.bridge
}

// Manifest returns the engine manifest.
func (h *Host) Manifest() *Manifest {
	return h.manifest
}

// Close closes the module and the runtime.
func (h *Host) Close(ctx context.Context) error {
	if h.module != nil {
		if err := h.module.Close(ctx); err != nil {
			return fmt.Errorf("failed to close WASM module: %w", err)
		}
	}
	if h.runtime != nil {
		if err := h.runtime.Close(ctx); err != nil {
			return fmt.Errorf("failed to close WASM runtime: %w", err)
		}
	}
	return nil
}
