package provider

import (
	"context"

	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/native"
)

// ConfigManager manages the registry of persisted configurations.
type ConfigManager struct {
	facade
	native native.ConfigManager
}

// ConfigManager returns the config-manager facade, binding it on first use.
func (i *Instance) ConfigManager(ctx context.Context) (*ConfigManager, error) {
	i.facadeMu.Lock()
	defer i.facadeMu.Unlock()

	if err := i.requireActive(); err != nil {
		return nil, err
	}
	if i.configManager != nil {
		return i.configManager, nil
	}

	obj, err := bind(ctx, i, FacadeConfigManager, i.library.NewConfigManager,
		func(ctx context.Context, m native.ConfigManager) int64 {
			return m.Init(ctx, i.name, i.settings, i.verbose)
		},
		"init(instanceName, settings, verbose)", i.initArgs(nil))
	if err != nil {
		return nil, err
	}

	i.configManager = &ConfigManager{facade: facade{inst: i, name: FacadeConfigManager, exc: obj}, native: obj}
	return i.configManager, nil
}

// AddConfig persists a configuration and returns its ID.
func (m *ConfigManager) AddConfig(ctx context.Context, definition, comment string) (int64, error) {
	params := []failure.Parameter{
		failure.Redacted("configDefinition", definition),
		failure.Param("configComment", comment),
	}
	return m.value(ctx, "add_config", "addConfig(configDefinition, configComment)", params, func(ctx context.Context) native.Result {
		return m.native.AddConfig(ctx, definition, comment)
	})
}

// GetConfig returns a persisted configuration.
func (m *ConfigManager) GetConfig(ctx context.Context, configID int64) (string, error) {
	params := []failure.Parameter{failure.Param("configID", configID)}
	return m.response(ctx, "get_config", "getConfig(configID)", params, func(ctx context.Context) native.Result {
		return m.native.GetConfig(ctx, configID)
	})
}

// GetConfigs lists the persisted configurations.
func (m *ConfigManager) GetConfigs(ctx context.Context) (string, error) {
	return m.response(ctx, "get_configs", "getConfigs()", nil, func(ctx context.Context) native.Result {
		return m.native.GetConfigs(ctx)
	})
}

// GetDefaultConfigID returns the registry default.
func (m *ConfigManager) GetDefaultConfigID(ctx context.Context) (int64, error) {
	return m.value(ctx, "get_default_config_id", "getDefaultConfigID()", nil, func(ctx context.Context) native.Result {
		return m.native.GetDefaultConfigID(ctx)
	})
}

// ReplaceDefaultConfigID swaps the default from currentID to newID. It fails
// with a replace-conflict failure when the default is no longer currentID.
func (m *ConfigManager) ReplaceDefaultConfigID(ctx context.Context, currentID, newID int64) error {
	params := []failure.Parameter{
		failure.Param("currentDefaultConfigID", currentID),
		failure.Param("newDefaultConfigID", newID),
	}
	return m.status(ctx, "replace_default_config_id", "replaceDefaultConfigID(currentDefaultConfigID, newDefaultConfigID)", params, func(ctx context.Context) int64 {
		return m.native.ReplaceDefaultConfigID(ctx, currentID, newID)
	})
}

// SetDefaultConfigID sets the registry default unconditionally.
func (m *ConfigManager) SetDefaultConfigID(ctx context.Context, configID int64) error {
	params := []failure.Parameter{failure.Param("configID", configID)}
	return m.status(ctx, "set_default_config_id", "setDefaultConfigID(configID)", params, func(ctx context.Context) int64 {
		return m.native.SetDefaultConfigID(ctx, configID)
	})
}

// SetDefaultConfig persists definition and makes it the default.
func (m *ConfigManager) SetDefaultConfig(ctx context.Context, definition, comment string) (int64, error) {
	id, err := m.AddConfig(ctx, definition, comment)
	if err != nil {
		return 0, err
	}
	if err := m.SetDefaultConfigID(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}
