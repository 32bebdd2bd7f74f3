package dispatch

import (
	"context"
	"fmt"

	"github.com/garyellow/menubot-go/internal/catalog"
	domerrors "github.com/garyellow/menubot-go/internal/errors"
	"github.com/garyellow/menubot-go/internal/event"
	"github.com/garyellow/menubot-go/internal/storage"
)

// Gateway delivers one response to one recipient. Implementations must
// return once the platform has accepted or rejected the send.
type Gateway interface {
	Send(ctx context.Context, to event.Recipient, resp *catalog.Response) error
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, to event.Recipient, resp *catalog.Response) error

// Send implements Gateway.
func (f GatewayFunc) Send(ctx context.Context, to event.Recipient, resp *catalog.Response) error {
	return f(ctx, to, resp)
}

// Router sends through the gateway registered for the recipient's channel.
type Router struct {
	gateways map[event.Channel]Gateway
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{gateways: make(map[event.Channel]Gateway)}
}

// Register sets the gateway for a channel. Not safe to call concurrently
// with Send; register everything during startup.
func (r *Router) Register(ch event.Channel, g Gateway) {
	r.gateways[ch] = g
}

// Send implements Gateway.
func (r *Router) Send(ctx context.Context, to event.Recipient, resp *catalog.Response) error {
	g, ok := r.gateways[to.Channel]
	if !ok {
		return domerrors.NewDeliveryError(string(to.Channel), string(resp.ID), 0,
			fmt.Errorf("%w: no gateway for channel %q", domerrors.ErrNotFound, to.Channel))
	}
	return g.Send(ctx, to, resp)
}

// Journal records delivery attempts. *storage.DB implements it.
type Journal interface {
	RecordDelivery(ctx context.Context, d storage.Delivery) error
}

// CatalogSource yields the live catalog. *catalog.Store implements it.
type CatalogSource interface {
	Current() *catalog.Catalog
}

// StaticCatalog serves one fixed catalog.
type StaticCatalog struct{ Catalog *catalog.Catalog }

// Current implements CatalogSource.
func (s StaticCatalog) Current() *catalog.Catalog { return s.Catalog }
