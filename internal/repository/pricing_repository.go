package repository

import (
	"context"
	"database/sql"

	"github.com/inkfolio/commission-backend/internal/pricing"
)

// PricingRepo stores the editable price catalog.  Each row of
// pricing_config is one keyed item under a kind ("service", "size",
// "addon").  It satisfies pricing.Store.
type PricingRepo struct{ DB *sql.DB }

func NewPricingRepo(db *sql.DB) *PricingRepo { return &PricingRepo{DB: db} }

// LoadCatalog reads all pricing rows into the three keyed maps.  An empty
// table yields an empty catalog; the engine substitutes its defaults.
func (r *PricingRepo) LoadCatalog(ctx context.Context) (pricing.Catalog, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT kind, item_key, name, price FROM pricing_config")
	if err != nil {
		return pricing.Catalog{}, err
	}
	defer rows.Close()

	cat := pricing.Catalog{
		Services: map[string]pricing.Item{},
		Sizes:    map[string]pricing.Item{},
		Addons:   map[string]pricing.Item{},
	}
	n := 0
	for rows.Next() {
		var (
			kind, key string
			item      pricing.Item
		)
		if err := rows.Scan(&kind, &key, &item.Name, &item.Price); err != nil {
			return pricing.Catalog{}, err
		}
		switch kind {
		case "service":
			cat.Services[key] = item
		case "size":
			cat.Sizes[key] = item
		case "addon":
			cat.Addons[key] = item
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return pricing.Catalog{}, err
	}
	if n == 0 {
		return pricing.Catalog{}, nil
	}
	return cat, nil
}

// SaveCatalog replaces the stored catalog atomically.  The caller must
// invalidate the engine cache afterwards.
func (r *PricingRepo) SaveCatalog(ctx context.Context, cat pricing.Catalog) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pricing_config"); err != nil {
		return err
	}
	insert := func(kind string, items map[string]pricing.Item) error {
		for key, item := range items {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO pricing_config (kind, item_key, name, price) VALUES (?,?,?,?)",
				kind, key, item.Name, item.Price); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert("service", cat.Services); err != nil {
		return err
	}
	if err := insert("size", cat.Sizes); err != nil {
		return err
	}
	if err := insert("addon", cat.Addons); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

var _ pricing.Store = (*PricingRepo)(nil)
