package provider

import (
	"context"

	"github.com/erbridge/erbridge/pkg/native"
)

// Product reports engine version and license information.
type Product struct {
	facade
	native native.Product
}

// Product returns the product facade, binding it on first use.
func (i *Instance) Product(ctx context.Context) (*Product, error) {
	i.facadeMu.Lock()
	defer i.facadeMu.Unlock()

	if err := i.requireActive(); err != nil {
		return nil, err
	}
	if i.product != nil {
		return i.product, nil
	}

	obj, err := bind(ctx, i, FacadeProduct, i.library.NewProduct,
		func(ctx context.Context, p native.Product) int64 {
			return p.Init(ctx, i.name, i.settings, i.verbose)
		},
		"init(instanceName, settings, verbose)", i.initArgs(nil))
	if err != nil {
		return nil, err
	}

	i.product = &Product{facade: facade{inst: i, name: FacadeProduct, exc: obj}, native: obj}
	return i.product, nil
}

// GetLicense returns the license document.
func (p *Product) GetLicense(ctx context.Context) (string, error) {
	return p.response(ctx, "get_license", "getLicense()", nil, func(ctx context.Context) native.Result {
		return p.native.GetLicense(ctx)
	})
}

// GetVersion returns the version document.
func (p *Product) GetVersion(ctx context.Context) (string, error) {
	return p.response(ctx, "get_version", "getVersion()", nil, func(ctx context.Context) native.Result {
		return p.native.GetVersion(ctx)
	})
}
