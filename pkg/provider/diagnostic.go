package provider

import (
	"context"

	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/native"
)

// Diagnostic inspects and maintains the datastore.
type Diagnostic struct {
	facade
	native native.Diagnostic
}

// Diagnostic returns the diagnostic facade, binding it on first use.
func (i *Instance) Diagnostic(ctx context.Context) (*Diagnostic, error) {
	i.facadeMu.Lock()
	defer i.facadeMu.Unlock()

	if err := i.requireActive(); err != nil {
		return nil, err
	}
	if i.diagnostic != nil {
		return i.diagnostic, nil
	}

	configID := i.explicitConfigID()
	signature := "init(instanceName, settings, verbose)"
	if configID != nil {
		signature = "initWithConfigID(instanceName, settings, configID, verbose)"
	}

	obj, err := bind(ctx, i, FacadeDiagnostic, i.library.NewDiagnostic,
		func(ctx context.Context, d native.Diagnostic) int64 {
			if configID != nil {
				return d.InitWithConfigID(ctx, i.name, i.settings, *configID, i.verbose)
			}
			return d.Init(ctx, i.name, i.settings, i.verbose)
		},
		signature, i.initArgs(configID))
	if err != nil {
		return nil, err
	}

	i.diagnostic = &Diagnostic{facade: facade{inst: i, name: FacadeDiagnostic, exc: obj}, native: obj}
	return i.diagnostic, nil
}

// explicitConfigID returns a copy of the configured ID, or nil.
func (i *Instance) explicitConfigID() *int64 {
	if id, ok := i.ConfigID(); ok {
		return &id
	}
	return nil
}

// CheckDatastorePerformance runs an insert benchmark for seconds.
func (d *Diagnostic) CheckDatastorePerformance(ctx context.Context, seconds int) (string, error) {
	params := []failure.Parameter{failure.Param("secondsToRun", seconds)}
	return d.response(ctx, "check_datastore_performance", "checkDatastorePerformance(secondsToRun)", params, func(ctx context.Context) native.Result {
		return d.native.CheckDatastorePerformance(ctx, seconds)
	})
}

// GetDatastoreInfo describes the datastore.
func (d *Diagnostic) GetDatastoreInfo(ctx context.Context) (string, error) {
	return d.response(ctx, "get_datastore_info", "getDatastoreInfo()", nil, func(ctx context.Context) native.Result {
		return d.native.GetDatastoreInfo(ctx)
	})
}

// GetFeature returns a feature by its internal ID.
func (d *Diagnostic) GetFeature(ctx context.Context, featureID int64) (string, error) {
	params := []failure.Parameter{failure.Param("featureID", featureID)}
	return d.response(ctx, "get_feature", "getFeature(featureID)", params, func(ctx context.Context) native.Result {
		return d.native.GetFeature(ctx, featureID)
	})
}

// PurgeRepository deletes every record and entity.
func (d *Diagnostic) PurgeRepository(ctx context.Context) error {
	return d.status(ctx, "purge_repository", "purgeRepository()", nil, func(ctx context.Context) int64 {
		return d.native.PurgeRepository(ctx)
	})
}

func (d *Diagnostic) reinitialize(ctx context.Context, configID int64) error {
	params := []failure.Parameter{failure.Param("configID", configID)}
	return d.status(ctx, "reinitialize", "reinitialize(configID)", params, func(ctx context.Context) int64 {
		return d.native.Reinitialize(ctx, configID)
	})
}
