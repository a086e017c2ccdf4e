// Package pricing resolves service/size/addon keys to authoritative prices.
// Every price figure in the system flows through CalculateOrderPrice; no
// other component may compute one.
package pricing

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Errors returned for unknown keys.  An unknown addon is not an error: it
// silently resolves to the "none" entry, since addons are never
// security-sensitive.
var (
	ErrInvalidService = errors.New("invalid service")
	ErrInvalidSize    = errors.New("invalid size")
)

// Item is one priced catalog entry.
type Item struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Catalog holds the three keyed price maps.
type Catalog struct {
	Services map[string]Item `json:"services"`
	Sizes    map[string]Item `json:"sizes"`
	Addons   map[string]Item `json:"addons"`
}

func (c Catalog) empty() bool {
	return len(c.Services) == 0 && len(c.Sizes) == 0 && len(c.Addons) == 0
}

// Store loads the catalog from the configuration store.  Implemented by the
// pricing-config repository.
type Store interface {
	LoadCatalog(ctx context.Context) (Catalog, error)
}

// Breakdown is a fully resolved order price.  Advance is half the total
// rounded up; Remaining is what is owed after the deposit.
type Breakdown struct {
	ServiceKey  string `json:"service"`
	ServiceName string `json:"service_name"`
	SizeKey     string `json:"size"`
	SizeName    string `json:"size_name"`
	AddonKey    string `json:"addon"`
	AddonName   string `json:"addon_name"`
	BasePrice   int64  `json:"base_price"`
	SizePrice   int64  `json:"size_price"`
	AddonPrice  int64  `json:"addon_price"`
	Total       int64  `json:"total"`
	Advance     int64  `json:"advance"`
	Remaining   int64  `json:"remaining"`
}

const cacheTTL = 5 * time.Minute

// Engine caches the catalog in-process for a fixed TTL to bound read load on
// the store.  The clock is injected so the cache is testable without real
// time delays.  Invalidate must be called whenever an administrator edits
// pricing configuration.
type Engine struct {
	store Store
	now   func() time.Time

	mu        sync.Mutex
	cached    Catalog
	fetchedAt time.Time
	hasCache  bool
}

// NewEngine builds an Engine over the given store.  A nil clock defaults to
// time.Now.
func NewEngine(store Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, now: now}
}

// GetPricing returns the active catalog, serving from cache while it is
// fresh.  An empty store result falls back to the built-in default set so a
// freshly provisioned deployment can still quote prices.
func (e *Engine) GetPricing(ctx context.Context) (Catalog, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasCache && e.now().Sub(e.fetchedAt) < cacheTTL {
		return e.cached, nil
	}
	cat, err := e.store.LoadCatalog(ctx)
	if err != nil {
		return Catalog{}, err
	}
	if cat.empty() {
		cat = DefaultCatalog()
	}
	e.cached = cat
	e.fetchedAt = e.now()
	e.hasCache = true
	return cat, nil
}

// Invalidate drops the cached catalog so the next read hits the store.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.cached = Catalog{}
	e.hasCache = false
	e.mu.Unlock()
}

// CalculateOrderPrice resolves the three keys against the active catalog and
// returns the full breakdown.  Unknown service or size keys fail; an
// unknown or empty addon resolves to "none".
func (e *Engine) CalculateOrderPrice(ctx context.Context, service, size, addon string) (Breakdown, error) {
	cat, err := e.GetPricing(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	svc, ok := cat.Services[service]
	if !ok {
		return Breakdown{}, ErrInvalidService
	}
	sz, ok := cat.Sizes[size]
	if !ok {
		return Breakdown{}, ErrInvalidSize
	}
	addonKey := addon
	ad, ok := cat.Addons[addonKey]
	if !ok {
		addonKey = "none"
		ad = cat.Addons[addonKey]
	}

	total := svc.Price + sz.Price + ad.Price
	advance := (total + 1) / 2 // ceil(total/2)
	return Breakdown{
		ServiceKey:  service,
		ServiceName: svc.Name,
		SizeKey:     size,
		SizeName:    sz.Name,
		AddonKey:    addonKey,
		AddonName:   ad.Name,
		BasePrice:   svc.Price,
		SizePrice:   sz.Price,
		AddonPrice:  ad.Price,
		Total:       total,
		Advance:     advance,
		Remaining:   total - advance,
	}, nil
}
