package provider

import (
	"context"

	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/native"
)

// ConfigHandle addresses an in-memory configuration document held by the
// engine. It must be closed with CloseConfig.
type ConfigHandle int64

// Config edits configuration documents in memory.
type Config struct {
	facade
	native native.Config
}

// Config returns the config facade, binding it on first use.
func (i *Instance) Config(ctx context.Context) (*Config, error) {
	i.facadeMu.Lock()
	defer i.facadeMu.Unlock()

	if err := i.requireActive(); err != nil {
		return nil, err
	}
	if i.config != nil {
		return i.config, nil
	}

	obj, err := bind(ctx, i, FacadeConfig, i.library.NewConfig,
		func(ctx context.Context, c native.Config) int64 {
			return c.Init(ctx, i.name, i.settings, i.verbose)
		},
		"init(instanceName, settings, verbose)", i.initArgs(nil))
	if err != nil {
		return nil, err
	}

	i.config = &Config{facade: facade{inst: i, name: FacadeConfig, exc: obj}, native: obj}
	return i.config, nil
}

// CreateConfig opens a new document from the engine's template.
func (c *Config) CreateConfig(ctx context.Context) (ConfigHandle, error) {
	h, err := c.value(ctx, "create", "create()", nil, func(ctx context.Context) native.Result {
		return c.native.Create(ctx)
	})
	return ConfigHandle(h), err
}

// ImportConfig opens a document from a definition.
func (c *Config) ImportConfig(ctx context.Context, definition string) (ConfigHandle, error) {
	params := []failure.Parameter{failure.Redacted("configDefinition", definition)}
	h, err := c.value(ctx, "import", "importConfig(configDefinition)", params, func(ctx context.Context) native.Result {
		return c.native.Import(ctx, definition)
	})
	return ConfigHandle(h), err
}

// ExportConfig renders the document as JSON.
func (c *Config) ExportConfig(ctx context.Context, handle ConfigHandle) (string, error) {
	params := []failure.Parameter{failure.Param("configHandle", int64(handle))}
	return c.response(ctx, "export", "exportConfig(configHandle)", params, func(ctx context.Context) native.Result {
		return c.native.Export(ctx, int64(handle))
	})
}

// CloseConfig releases a document.
func (c *Config) CloseConfig(ctx context.Context, handle ConfigHandle) error {
	params := []failure.Parameter{failure.Param("configHandle", int64(handle))}
	return c.status(ctx, "close", "closeConfig(configHandle)", params, func(ctx context.Context) int64 {
		return c.native.Close(ctx, int64(handle))
	})
}

// GetDataSources lists the data sources registered in a document.
func (c *Config) GetDataSources(ctx context.Context, handle ConfigHandle) (string, error) {
	params := []failure.Parameter{failure.Param("configHandle", int64(handle))}
	return c.response(ctx, "get_data_sources", "getDataSources(configHandle)", params, func(ctx context.Context) native.Result {
		return c.native.GetDataSources(ctx, int64(handle))
	})
}

// AddDataSource registers a data source in a document.
func (c *Config) AddDataSource(ctx context.Context, handle ConfigHandle, dataSourceCode string) (string, error) {
	params := []failure.Parameter{
		failure.Param("configHandle", int64(handle)),
		failure.Param("dataSourceCode", dataSourceCode),
	}
	return c.response(ctx, "add_data_source", "addDataSource(configHandle, dataSourceCode)", params, func(ctx context.Context) native.Result {
		return c.native.AddDataSource(ctx, int64(handle), dataSourceCode)
	})
}

// DeleteDataSource removes a data source from a document.
func (c *Config) DeleteDataSource(ctx context.Context, handle ConfigHandle, dataSourceCode string) error {
	params := []failure.Parameter{
		failure.Param("configHandle", int64(handle)),
		failure.Param("dataSourceCode", dataSourceCode),
	}
	return c.status(ctx, "delete_data_source", "deleteDataSource(configHandle, dataSourceCode)", params, func(ctx context.Context) int64 {
		return c.native.DeleteDataSource(ctx, int64(handle), dataSourceCode)
	})
}

// WithConfig imports definition, runs fn with the handle and closes it.
func (c *Config) WithConfig(ctx context.Context, definition string, fn func(handle ConfigHandle) error) error {
	var (
		h   ConfigHandle
		err error
	)
	if definition == "" {
		h, err = c.CreateConfig(ctx)
	} else {
		h, err = c.ImportConfig(ctx, definition)
	}
	if err != nil {
		return err
	}

	fnErr := fn(h)
	closeErr := c.CloseConfig(ctx, h)
	if fnErr != nil {
		return fnErr
	}
	return closeErr
}
