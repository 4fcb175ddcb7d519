// Package config loads erbridge configuration and validates engine documents.
//
// # Components
//
// File: the YAML configuration read by erctl. It carries the provider
// builder options (instance name, settings, verbose, config ID, workers), the
// engine manifest and journal paths, and telemetry overrides. Field
// constraints are checked with go-playground/validator.
//
// SchemaRegistry: CUE schemas for the documents the engine consumes. The
// built-in "settings" schema describes the settings passed to every native
// Init call and "engine_config" describes configuration documents. Custom
// schemas can be registered by definition name.
//
// Watcher: fsnotify-based file watcher with a debounce, used to rebuild the
// provider when the settings file changes.
//
// # Usage Example
//
//	f, err := config.LoadFile("erctl.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	settings, err := f.ResolveSettings()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.NewSchemaRegistry().ValidateSettings(ctx, settings); err != nil {
//	    log.Fatal(err)
//	}
package config
