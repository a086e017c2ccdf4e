package model

import "time"

// GalleryItem is one entry in the public portfolio gallery.
type GalleryItem struct {
	ID          uint64    // gallery_items.id
	Title       string    // gallery_items.title
	Description string    // gallery_items.description
	ImageURL    string    // gallery_items.image_url
	Category    string    // gallery_items.category
	SortOrder   int       // gallery_items.sort_order
	Active      bool      // gallery_items.active
	CreatedAt   time.Time // gallery_items.created_at
	UpdatedAt   time.Time // gallery_items.updated_at
}
