// Where: cli/internal/services/menu.go
// What: Menu categories and items.
// Why: Read and maintain the menu through the document and file stores.
package services

import (
	"context"
	"fmt"
	"io"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	defaultPreviewWidth  = 400
	defaultPreviewHeight = 300
)

// Upload is a file to store alongside a document.
type Upload struct {
	Name    string
	Content io.Reader
}

type MenuService struct {
	Docs   store.DocumentStore
	Files  store.FileStore
	Target Target
	Clock
}

// Categories lists active categories by sortOrder.
func (s *MenuService) Categories(ctx context.Context) (store.DocumentList, error) {
	list, err := s.Docs.ListDocuments(ctx, s.Target.DatabaseID, s.Target.Collections.Categories,
		store.Equal("isActive", true),
		store.OrderAsc("sortOrder"),
	)
	if err != nil {
		return store.DocumentList{}, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return list, nil
}

// MenuItems lists available items, optionally within one category.
func (s *MenuService) MenuItems(ctx context.Context, categoryID string) (store.DocumentList, error) {
	queries := []store.Query{store.Equal("isAvailable", true)}
	if categoryID != "" {
		queries = append(queries, store.Equal("categoryId", categoryID))
	}
	queries = append(queries, store.OrderAsc("sortOrder"))
	list, err := s.Docs.ListDocuments(ctx, s.Target.DatabaseID, s.Target.Collections.MenuItems, queries...)
	if err != nil {
		return store.DocumentList{}, fmt.Errorf("failed to fetch menu items: %w", err)
	}
	return list, nil
}

func (s *MenuService) MenuItem(ctx context.Context, id string) (store.Document, error) {
	doc, err := s.Docs.GetDocument(ctx, s.Target.DatabaseID, s.Target.Collections.MenuItems, id)
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to fetch menu item: %w", err)
	}
	return doc, nil
}

// CreateMenuItem stores a new item. When image is set it is uploaded to the
// images bucket first and its file id stored in the image attribute.
func (s *MenuService) CreateMenuItem(ctx context.Context, data map[string]any, image *Upload) (store.Document, error) {
	fields := copyFields(data)
	if image != nil {
		fileID, err := s.upload(ctx, image)
		if err != nil {
			return store.Document{}, fmt.Errorf("failed to create menu item: %w", err)
		}
		fields["image"] = fileID
	}
	now := stamp(s.now())
	fields["createdAt"] = now
	fields["updatedAt"] = now
	doc, err := s.Docs.CreateDocument(ctx, s.Target.DatabaseID, s.Target.Collections.MenuItems, s.newID(), fields)
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to create menu item: %w", err)
	}
	return doc, nil
}

// UpdateMenuItem patches an item, replacing its image when one is given.
func (s *MenuService) UpdateMenuItem(ctx context.Context, id string, data map[string]any, image *Upload) (store.Document, error) {
	fields := copyFields(data)
	if image != nil {
		fileID, err := s.upload(ctx, image)
		if err != nil {
			return store.Document{}, fmt.Errorf("failed to update menu item: %w", err)
		}
		fields["image"] = fileID
	}
	fields["updatedAt"] = stamp(s.now())
	doc, err := s.Docs.UpdateDocument(ctx, s.Target.DatabaseID, s.Target.Collections.MenuItems, id, fields)
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to update menu item: %w", err)
	}
	return doc, nil
}

func (s *MenuService) DeleteMenuItem(ctx context.Context, id string) error {
	if err := s.Docs.DeleteDocument(ctx, s.Target.DatabaseID, s.Target.Collections.MenuItems, id); err != nil {
		return fmt.Errorf("failed to delete menu item: %w", err)
	}
	return nil
}

// Search matches available items by name.
func (s *MenuService) Search(ctx context.Context, term string) (store.DocumentList, error) {
	list, err := s.Docs.ListDocuments(ctx, s.Target.DatabaseID, s.Target.Collections.MenuItems,
		store.Search("name", term),
		store.Equal("isAvailable", true),
	)
	if err != nil {
		return store.DocumentList{}, fmt.Errorf("search failed: %w", err)
	}
	return list, nil
}

// ImageURL returns a preview URL for an image; zero sizes use 400x300.
// It is empty when no file store is configured.
func (s *MenuService) ImageURL(fileID string, width, height int) string {
	if s.Files == nil || fileID == "" {
		return ""
	}
	if width <= 0 {
		width = defaultPreviewWidth
	}
	if height <= 0 {
		height = defaultPreviewHeight
	}
	return s.Files.FilePreviewURL(s.Target.Buckets.Images, fileID, width, height)
}

func (s *MenuService) upload(ctx context.Context, image *Upload) (string, error) {
	if s.Files == nil {
		return "", store.Unsupported("files")
	}
	f, err := s.Files.CreateFile(ctx, s.Target.Buckets.Images, s.newID(), image.Name, image.Content)
	if err != nil {
		return "", fmt.Errorf("upload image %s: %w", image.Name, err)
	}
	return f.ID, nil
}

func copyFields(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+3)
	for k, v := range data {
		out[k] = v
	}
	return out
}
