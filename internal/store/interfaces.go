package store

import (
	"context"

	"catalog-rules-service/internal/domain"
)

// ListCategoriesParams holds parameters for listing categories (e.g., for pagination).
type ListCategoriesParams struct {
	Limit  int
	Offset int
}

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error)
	GetCategoryByCode(ctx context.Context, code string) (*domain.Category, error)
	ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) // Returns categories and total count for pagination
	DeleteCategory(ctx context.Context, id int64) error
}

// CategoryLister returns every category; used to warm the category cache.
type CategoryLister interface {
	AllCategories(ctx context.Context) ([]domain.Category, error)
}

// ProductStorer defines the database operations for products and their
// category memberships.
type ProductStorer interface {
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	// GetProductsByIDs returns the products in the order of ids, with their
	// categories loaded. A missing ID fails with ErrProductNotFound.
	GetProductsByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error)
	// SaveProducts persists values and category memberships of all products
	// in a single transaction.
	SaveProducts(ctx context.Context, products []*domain.Product) error
}
