// Package channel talks to marketplace APIs. The Client owns credentials,
// quota enforcement and retries; Adapters map listing operations onto concrete
// API calls; the Registry resolves channel names to adapters and capabilities
// once at startup.
package channel

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/resaleops/autopilot/internal/models"
)

// Capability names one adapter operation a channel may support.
type Capability string

const (
	CapPublish Capability = "publish"
	CapUpdate  Capability = "update"
	CapReprice Capability = "reprice"
	CapDelist  Capability = "delist"
	CapRelist  Capability = "relist"
	CapSync    Capability = "sync"
	CapOffers  Capability = "offers"
)

// OfferResponse is what an adapter sends back to a buyer's best offer.
type OfferResponse struct {
	OfferID       string
	Accept        bool
	Decline       bool
	CounterAmount *decimal.Decimal
	Message       string
}

// AdapterResult is the structured outcome of one adapter call.
type AdapterResult struct {
	ExternalID string
	Price      decimal.Decimal
	Status     string
	Raw        models.JSONMap
}

// Adapter maps generic listing operations onto one marketplace's API.
type Adapter interface {
	Publish(ctx context.Context, userID string, item *models.Item, listing *models.Listing) (*AdapterResult, error)
	UpdatePrice(ctx context.Context, userID string, listing *models.Listing, newPrice decimal.Decimal) (*AdapterResult, error)
	Delist(ctx context.Context, userID string, listing *models.Listing) (*AdapterResult, error)
	Relist(ctx context.Context, userID string, listing *models.Listing) (*AdapterResult, error)
	SyncStatus(ctx context.Context, userID string, listing *models.Listing) (*AdapterResult, error)
	RespondToOffer(ctx context.Context, userID string, listing *models.Listing, resp OfferResponse) (*AdapterResult, error)
}

// Entry describes one registered channel.
type Entry struct {
	Name         string
	Native       bool
	Adapter      Adapter // nil for assisted channels
	Capabilities map[Capability]bool
	// Instructions templates keyed by capability, used for assisted channels.
	Instructions map[Capability]string
}

// Supports reports whether the channel declares the capability.
func (e *Entry) Supports(cap Capability) bool {
	return e.Capabilities[cap]
}

// Registry resolves channel names once at startup; lookups afterwards are
// read-only.
type Registry struct {
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// RegisterNative adds an API-automatable channel.
func (r *Registry) RegisterNative(name string, adapter Adapter, caps ...Capability) {
	e := &Entry{Name: name, Native: true, Adapter: adapter, Capabilities: make(map[Capability]bool)}
	for _, c := range caps {
		e.Capabilities[c] = true
	}
	r.entries[name] = e
}

// RegisterAssisted adds a channel with no API access; automation degrades to
// manual instructions for it.
func (r *Registry) RegisterAssisted(name string, instructions map[Capability]string) {
	e := &Entry{Name: name, Native: false, Capabilities: make(map[Capability]bool), Instructions: instructions}
	for c := range instructions {
		e.Capabilities[c] = true
	}
	r.entries[name] = e
}

// Lookup returns the entry for a channel name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns registered channel names, sorted for stable iteration.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
