package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"catalog-rules-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrCategoryNotFound       = errors.New("store: category not found")
	ErrCategoryCodeExists     = errors.New("store: category code already exists")
	ErrParentCategoryNotFound = errors.New("store: parent category not found")
	ErrCategoryInUse          = errors.New("store: category has children or products")
	ErrProductNotFound        = errors.New("store: product not found")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const categoryColumns = `id, code, name, description, parent_category_id, root_id, created_at, updated_at`

// PostgresStore implements the CategoryStorer and ProductStorer interfaces using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner, c *domain.Category) error {
	return row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.ParentCategoryID, &c.RootID, &c.CreatedAt, &c.UpdatedAt)
}

// --- CategoryStorer Implementation ---

// CreateCategory inserts a category. The tree root is derived from the parent:
// a category without a parent is the root of a new tree.
func (s *PostgresStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	query := `
		INSERT INTO products.categories (code, name, description, parent_category_id, root_id)
		VALUES ($1, $2, $3, $4, (SELECT COALESCE(root_id, id) FROM products.categories WHERE id = $4))
		RETURNING ` + categoryColumns + `;
	`
	row := s.db.QueryRowContext(ctx, query, category.Code, category.Name, category.Description, category.ParentCategoryID)

	var created domain.Category
	if err := scanCategory(row, &created); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch {
			case pqErr.Code == pqUniqueViolation && strings.Contains(pqErr.Constraint, "categories_code_key"):
				return nil, ErrCategoryCodeExists
			case pqErr.Code == pqForeignKeyViolation:
				return nil, ErrParentCategoryNotFound
			}
		}
		return nil, fmt.Errorf("store: CreateCategory failed to scan row: %w", err)
	}
	return &created, nil
}

// ListCategories retrieves a paginated list of categories ordered by code.
func (s *PostgresStore) ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) {
	countQuery := `SELECT COUNT(*) FROM products.categories;`
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to count categories: %w", err)
	}

	if totalCount == 0 {
		return []domain.Category{}, 0, nil
	}

	query := `
		SELECT ` + categoryColumns + `
		FROM products.categories
		ORDER BY code ASC
		LIMIT $1 OFFSET $2;
	`
	categories, err := s.queryCategories(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories: %w", err)
	}
	return categories, totalCount, nil
}

// AllCategories returns every category ordered by ID.
func (s *PostgresStore) AllCategories(ctx context.Context) ([]domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM products.categories ORDER BY id ASC;`
	categories, err := s.queryCategories(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: AllCategories: %w", err)
	}
	return categories, nil
}

func (s *PostgresStore) queryCategories(ctx context.Context, query string, args ...any) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := scanCategory(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return categories, nil
}

func (s *PostgresStore) GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	query := `
		SELECT ` + categoryColumns + `
		FROM products.categories
		WHERE id = $1;
	`
	var category domain.Category
	if err := scanCategory(s.db.QueryRowContext(ctx, query, id), &category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryByID failed to scan row: %w", err)
	}
	return &category, nil
}

func (s *PostgresStore) GetCategoryByCode(ctx context.Context, code string) (*domain.Category, error) {
	query := `
		SELECT ` + categoryColumns + `
		FROM products.categories
		WHERE code = $1;
	`
	var category domain.Category
	if err := scanCategory(s.db.QueryRowContext(ctx, query, code), &category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryByCode failed to scan row: %w", err)
	}
	return &category, nil
}

// FindCategoryByCode resolves a category code for rule actions. Unlike
// GetCategoryByCode an unknown code is not an error: it returns nil, nil.
func (s *PostgresStore) FindCategoryByCode(ctx context.Context, code string) (*domain.Category, error) {
	category, err := s.GetCategoryByCode(ctx, code)
	if errors.Is(err, ErrCategoryNotFound) {
		return nil, nil
	}
	return category, err
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) error {
	query := `DELETE FROM products.categories WHERE id = $1;`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return ErrCategoryInUse
		}
		return fmt.Errorf("store: DeleteCategory failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteCategory failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// --- ProductStorer Implementation ---

func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	products, err := s.GetProductsByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	return products[0], nil
}

func (s *PostgresStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return []*domain.Product{}, nil
	}

	query := `
		SELECT id, sku, name, price, attribute_values, created_at, updated_at
		FROM products.products
		WHERE id = ANY($1);
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: GetProductsByIDs failed to query products: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		var scannedValues sql.NullString
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &scannedValues, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: GetProductsByIDs failed to scan product row: %w", err)
		}
		if scannedValues.Valid && scannedValues.String != "" && scannedValues.String != "null" {
			if err := json.Unmarshal([]byte(scannedValues.String), &p.Values); err != nil {
				return nil, fmt.Errorf("store: GetProductsByIDs failed to decode values of product %d: %w", p.ID, err)
			}
		}
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: GetProductsByIDs iteration error: %w", err)
	}

	products := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
		}
		products = append(products, p)
	}

	if err := s.loadProductCategories(ctx, ids, byID); err != nil {
		return nil, err
	}
	return products, nil
}

// loadProductCategories attaches categories to products. Products sharing
// a category share the same *domain.Category.
func (s *PostgresStore) loadProductCategories(ctx context.Context, ids []int64, byID map[int64]*domain.Product) error {
	query := `
		SELECT pc.product_id, c.id, c.code, c.name, c.description, c.parent_category_id, c.root_id, c.created_at, c.updated_at
		FROM products.product_categories pc
		JOIN products.categories c ON c.id = pc.category_id
		WHERE pc.product_id = ANY($1)
		ORDER BY pc.product_id, c.id;
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("store: failed to query product categories: %w", err)
	}
	defer rows.Close()

	categories := make(map[int64]*domain.Category)
	for rows.Next() {
		var productID int64
		var c domain.Category
		if err := rows.Scan(&productID, &c.ID, &c.Code, &c.Name, &c.Description, &c.ParentCategoryID, &c.RootID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("store: failed to scan product category row: %w", err)
		}
		shared, ok := categories[c.ID]
		if !ok {
			shared = &c
			categories[c.ID] = shared
		}
		if p, ok := byID[productID]; ok {
			p.AddCategory(shared)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: product categories iteration error: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveProducts(ctx context.Context, products []*domain.Product) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: SaveProducts failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, p := range products {
		if err = saveProduct(ctx, tx, p); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: SaveProducts failed to commit: %w", err)
	}
	return nil
}

func saveProduct(ctx context.Context, tx *sql.Tx, p *domain.Product) error {
	valuesJSON := []byte("{}")
	if len(p.Values) > 0 {
		encoded, err := json.Marshal(p.Values)
		if err != nil {
			return fmt.Errorf("store: SaveProducts failed to encode values of product %d: %w", p.ID, err)
		}
		valuesJSON = encoded
	}

	updateQuery := `
		UPDATE products.products
		SET attribute_values = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
		RETURNING updated_at;
	`
	if err := tx.QueryRowContext(ctx, updateQuery, valuesJSON, p.ID).Scan(&p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrProductNotFound, p.ID)
		}
		return fmt.Errorf("store: SaveProducts failed to update product %d: %w", p.ID, err)
	}

	deleteQuery := `DELETE FROM products.product_categories WHERE product_id = $1;`
	if _, err := tx.ExecContext(ctx, deleteQuery, p.ID); err != nil {
		return fmt.Errorf("store: SaveProducts failed to clear categories of product %d: %w", p.ID, err)
	}

	categoryIDs := p.CategoryIDs()
	if len(categoryIDs) == 0 {
		return nil
	}
	insertQuery := `
		INSERT INTO products.product_categories (product_id, category_id)
		SELECT $1, unnest($2::bigint[]);
	`
	if _, err := tx.ExecContext(ctx, insertQuery, p.ID, pq.Array(categoryIDs)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return fmt.Errorf("%w: assigned to product %d", ErrCategoryNotFound, p.ID)
		}
		return fmt.Errorf("store: SaveProducts failed to insert categories of product %d: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
