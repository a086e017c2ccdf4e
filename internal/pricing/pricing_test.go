package pricing

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	catalog Catalog
	err     error
	calls   int
}

func (f *fakeStore) LoadCatalog(ctx context.Context) (Catalog, error) {
	f.calls++
	return f.catalog, f.err
}

func TestCalculateOrderPriceInvariants(t *testing.T) {
	e := NewEngine(&fakeStore{}, nil) // empty store -> default catalog
	cat := DefaultCatalog()
	ctx := context.Background()

	for svc := range cat.Services {
		for size := range cat.Sizes {
			for addon := range cat.Addons {
				b, err := e.CalculateOrderPrice(ctx, svc, size, addon)
				if err != nil {
					t.Fatalf("calculate(%s,%s,%s): %v", svc, size, addon, err)
				}
				if b.Total != b.BasePrice+b.SizePrice+b.AddonPrice {
					t.Fatalf("total mismatch: %+v", b)
				}
				if b.Advance != (b.Total+1)/2 {
					t.Fatalf("advance not ceil(total/2): %+v", b)
				}
				if b.Advance+b.Remaining != b.Total {
					t.Fatalf("advance+remaining != total: %+v", b)
				}
			}
		}
	}
}

func TestCalculateOrderPriceKnownTriple(t *testing.T) {
	e := NewEngine(&fakeStore{}, nil)
	b, err := e.CalculateOrderPrice(context.Background(), "anime", "a4", "none")
	if err != nil {
		t.Fatal(err)
	}
	if b.Total != 1000 || b.Advance != 500 || b.Remaining != 500 {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
}

func TestCalculateOrderPriceUnknownKeys(t *testing.T) {
	e := NewEngine(&fakeStore{}, nil)
	ctx := context.Background()

	if _, err := e.CalculateOrderPrice(ctx, "oil", "a4", "none"); !errors.Is(err, ErrInvalidService) {
		t.Fatalf("want ErrInvalidService, got %v", err)
	}
	if _, err := e.CalculateOrderPrice(ctx, "anime", "a0", "none"); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("want ErrInvalidSize, got %v", err)
	}
	// Unknown addon must silently resolve to "none".
	b, err := e.CalculateOrderPrice(ctx, "anime", "a4", "glitter")
	if err != nil {
		t.Fatal(err)
	}
	if b.AddonKey != "none" || b.AddonPrice != 0 {
		t.Fatalf("unknown addon did not fall back to none: %+v", b)
	}
}

func TestCacheTTLAndInvalidation(t *testing.T) {
	store := &fakeStore{catalog: DefaultCatalog()}
	now := time.Unix(1_700_000_000, 0)
	e := NewEngine(store, func() time.Time { return now })
	ctx := context.Background()

	if _, err := e.GetPricing(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GetPricing(ctx); err != nil {
		t.Fatal(err)
	}
	if store.calls != 1 {
		t.Fatalf("expected cached second read, store calls = %d", store.calls)
	}

	now = now.Add(cacheTTL + time.Second)
	if _, err := e.GetPricing(ctx); err != nil {
		t.Fatal(err)
	}
	if store.calls != 2 {
		t.Fatalf("expected refetch after TTL, store calls = %d", store.calls)
	}

	e.Invalidate()
	if _, err := e.GetPricing(ctx); err != nil {
		t.Fatal(err)
	}
	if store.calls != 3 {
		t.Fatalf("expected refetch after invalidation, store calls = %d", store.calls)
	}
}

func TestStoreErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	e := NewEngine(&fakeStore{err: boom}, nil)
	if _, err := e.GetPricing(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("want store error, got %v", err)
	}
}
