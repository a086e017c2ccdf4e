package repository

import (
	"context"
	"database/sql"

	"github.com/inkfolio/commission-backend/internal/model"
)

const galleryColumns = "id,title,description,image_url,category,sort_order,active,created_at,updated_at"

// GalleryRepo persists public portfolio entries.
type GalleryRepo struct{ DB *sql.DB }

func NewGalleryRepo(db *sql.DB) *GalleryRepo { return &GalleryRepo{DB: db} }

// ListActive returns visible items in display order for the public page.
func (r *GalleryRepo) ListActive(ctx context.Context) ([]model.GalleryItem, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+galleryColumns+" FROM gallery_items WHERE active=1 ORDER BY sort_order ASC, id DESC")
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// ListAll returns every item for the admin dashboard.
func (r *GalleryRepo) ListAll(ctx context.Context) ([]model.GalleryItem, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+galleryColumns+" FROM gallery_items ORDER BY sort_order ASC, id DESC")
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// Create inserts an item and sets g.ID.
func (r *GalleryRepo) Create(ctx context.Context, g *model.GalleryItem) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO gallery_items (title, description, image_url, category, sort_order, active) VALUES (?,?,?,?,?,?)",
		g.Title, g.Description, g.ImageURL, g.Category, g.SortOrder, g.Active)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = uint64(id)
	return nil
}

// Update rewrites an item's editable fields.
func (r *GalleryRepo) Update(ctx context.Context, g model.GalleryItem) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE gallery_items SET title=?, description=?, image_url=?, category=?, sort_order=?, active=? WHERE id=?",
		g.Title, g.Description, g.ImageURL, g.Category, g.SortOrder, g.Active, g.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes an item.
func (r *GalleryRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM gallery_items WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *GalleryRepo) collect(rows *sql.Rows) ([]model.GalleryItem, error) {
	defer rows.Close()
	var out []model.GalleryItem
	for rows.Next() {
		var g model.GalleryItem
		if err := rows.Scan(&g.ID, &g.Title, &g.Description, &g.ImageURL, &g.Category, &g.SortOrder, &g.Active, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
