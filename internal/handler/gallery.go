package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/repository"
)

// GalleryHandler serves the public portfolio and its admin CRUD.
type GalleryHandler struct {
	Gallery *repository.GalleryRepo

	// PurgePublicCache drops the cached public listing after a write.  Nil
	// when the cache is disabled.
	PurgePublicCache func(ctx context.Context, path string)
}

func NewGalleryHandler(g *repository.GalleryRepo, purge func(ctx context.Context, path string)) *GalleryHandler {
	return &GalleryHandler{Gallery: g, PurgePublicCache: purge}
}

func (h *GalleryHandler) purge(ctx context.Context) {
	if h.PurgePublicCache != nil {
		h.PurgePublicCache(ctx, "/api/v1/gallery")
	}
}

func galleryJSON(g model.GalleryItem) echo.Map {
	return echo.Map{
		"id":          g.ID,
		"title":       g.Title,
		"description": g.Description,
		"image_url":   g.ImageURL,
		"category":    g.Category,
		"sort_order":  g.SortOrder,
		"active":      g.Active,
		"created_at":  g.CreatedAt,
	}
}

// ListPublic returns the visible portfolio in display order.
func (h *GalleryHandler) ListPublic(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Gallery.ListActive(ctx)
	if err != nil {
		c.Logger().Errorf("gallery: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(items))
	for _, g := range items {
		out = append(out, galleryJSON(g))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "items": out})
}

// ListAll returns every item, hidden ones included, for the dashboard.
func (h *GalleryHandler) ListAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Gallery.ListAll(ctx)
	if err != nil {
		c.Logger().Errorf("gallery admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(items))
	for _, g := range items {
		out = append(out, galleryJSON(g))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "items": out})
}

type galleryItemReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Category    string `json:"category"`
	SortOrder   int    `json:"sort_order"`
	Active      *bool  `json:"active"`
}

func (req *galleryItemReq) validate() (model.GalleryItem, []echo.Map) {
	req.Title = strings.TrimSpace(req.Title)
	req.ImageURL = strings.TrimSpace(req.ImageURL)

	var details []echo.Map
	if req.Title == "" {
		details = append(details, echo.Map{"field": "title", "message": "title is required"})
	}
	if req.ImageURL == "" {
		details = append(details, echo.Map{"field": "image_url", "message": "image_url is required"})
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return model.GalleryItem{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		ImageURL:    req.ImageURL,
		Category:    strings.TrimSpace(req.Category),
		SortOrder:   req.SortOrder,
		Active:      active,
	}, details
}

// Create adds a portfolio item.
func (h *GalleryHandler) Create(c echo.Context) error {
	var req galleryItemReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	item, details := req.validate()
	if len(details) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "details": details})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Gallery.Create(ctx, &item); err != nil {
		c.Logger().Errorf("gallery create: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	h.purge(ctx)
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "item": galleryJSON(item)})
}

// Update rewrites an item's fields.
func (h *GalleryHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	var req galleryItemReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	item, details := req.validate()
	if len(details) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "details": details})
	}
	item.ID = id

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Gallery.Update(ctx, item); err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
		}
		c.Logger().Errorf("gallery update: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.purge(ctx)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "item": galleryJSON(item)})
}

// Delete removes an item.
func (h *GalleryHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Gallery.Delete(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
		}
		c.Logger().Errorf("gallery delete: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	h.purge(ctx)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
