package adapters

import (
	"strings"

	"github.com/smallbiznis/creatorpay/internal/payment/domain"
)

type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		gateway := domain.NormalizeGateway(factory.Gateway())
		if gateway == "" {
			continue
		}
		registry.factories[gateway] = factory
	}
	return registry
}

func (r *Registry) GatewayExists(gateway string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[domain.NormalizeGateway(gateway)]
	return ok
}

func (r *Registry) NewAdapter(gateway string, cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	factory, ok := r.factories[gateway]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	cfg.Gateway = gateway
	return factory.NewAdapter(cfg)
}
