package payment

import (
	"fmt"
	"sort"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
)

var _ adapter.GatewayRegistry = (*Registry)(nil)

// Registry resolves gateways by name. It is filled at startup and read-only afterwards.
type Registry struct {
	gateways map[model.Gateway]adapter.PaymentGateway
}

func NewRegistry(gws ...adapter.PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[model.Gateway]adapter.PaymentGateway, len(gws))}
	for _, g := range gws {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name model.Gateway) (adapter.PaymentGateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedGateway, name)
	}
	return g, nil
}

func (r *Registry) Names() []model.Gateway {
	out := make([]model.Gateway, 0, len(r.gateways))
	for name := range r.gateways {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
