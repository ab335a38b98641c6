package store

import (
	"context"
	"fmt"

	"catalog-rules-service/internal/domain"
)

// CategoryCache is a read-only, in-memory category index keyed by code.
// It is safe for concurrent readers once built.
type CategoryCache struct {
	byCode map[string]*domain.Category
}

// NewCategoryCache indexes categories by code. Later duplicates win.
func NewCategoryCache(categories []domain.Category) *CategoryCache {
	byCode := make(map[string]*domain.Category, len(categories))
	for i := range categories {
		c := categories[i]
		byCode[c.Code] = &c
	}
	return &CategoryCache{byCode: byCode}
}

// LoadCategoryCache warms a cache from every stored category.
func LoadCategoryCache(ctx context.Context, lister CategoryLister) (*CategoryCache, error) {
	categories, err := lister.AllCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: loading category cache: %w", err)
	}
	return NewCategoryCache(categories), nil
}

// FindCategoryByCode returns nil, nil for an unknown code.
func (c *CategoryCache) FindCategoryByCode(_ context.Context, code string) (*domain.Category, error) {
	return c.byCode[code], nil
}

// Len returns the number of cached categories.
func (c *CategoryCache) Len() int {
	return len(c.byCode)
}
