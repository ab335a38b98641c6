package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog together with its category
// memberships and attribute values.
// Category membership is a set keyed by category ID; use the membership
// methods instead of touching the slice directly.
type Product struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Values    map[string]any  `json:"values"` // attribute code -> value, stored as JSONB
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	categories []*Category
}

// Categories returns a snapshot of the product's categories. Mutating the
// product while ranging over the snapshot is safe.
func (p *Product) Categories() []*Category {
	out := make([]*Category, len(p.categories))
	copy(out, p.categories)
	return out
}

// CategoryIDs returns the IDs of the product's categories in membership order.
func (p *Product) CategoryIDs() []int64 {
	ids := make([]int64, 0, len(p.categories))
	for _, c := range p.categories {
		ids = append(ids, c.ID)
	}
	return ids
}

// HasCategory reports whether the product belongs to a category with the
// same ID as c.
func (p *Product) HasCategory(c *Category) bool {
	return p.indexOf(c.ID) >= 0
}

// AddCategory adds c to the product. Adding a category the product already
// belongs to is a no-op.
func (p *Product) AddCategory(c *Category) {
	if c == nil || p.HasCategory(c) {
		return
	}
	p.categories = append(p.categories, c)
}

// RemoveCategory removes c from the product if present.
func (p *Product) RemoveCategory(c *Category) {
	i := p.indexOf(c.ID)
	if i < 0 {
		return
	}
	p.categories = append(p.categories[:i], p.categories[i+1:]...)
}

func (p *Product) indexOf(categoryID int64) int {
	for i, c := range p.categories {
		if c.ID == categoryID {
			return i
		}
	}
	return -1
}

// Value returns the product's value for an attribute code.
func (p *Product) Value(field string) (any, bool) {
	v, ok := p.Values[field]
	return v, ok
}

// SetValue sets the product's value for an attribute code.
func (p *Product) SetValue(field string, value any) {
	if p.Values == nil {
		p.Values = make(map[string]any)
	}
	p.Values[field] = value
}

// UnsetValue removes the product's value for an attribute code.
func (p *Product) UnsetValue(field string) {
	delete(p.Values, field)
}

type productJSON struct {
	ID         int64           `json:"id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Values     map[string]any  `json:"values"`
	Categories []*Category     `json:"categories"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// MarshalJSON includes the category memberships in API responses.
func (p *Product) MarshalJSON() ([]byte, error) {
	categories := p.categories
	if categories == nil {
		categories = []*Category{}
	}
	return json.Marshal(productJSON{
		ID:         p.ID,
		SKU:        p.SKU,
		Name:       p.Name,
		Price:      p.Price,
		Values:     p.Values,
		Categories: categories,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON. Duplicate categories collapse.
func (p *Product) UnmarshalJSON(data []byte) error {
	var in productJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Product{
		ID:        in.ID,
		SKU:       in.SKU,
		Name:      in.Name,
		Price:     in.Price,
		Values:    in.Values,
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
	}
	for _, c := range in.Categories {
		p.AddCategory(c)
	}
	return nil
}
