package domain

import "time"

// Category represents a node in one of the catalog's category trees.
// A root category has no parent and no RootID; every other category records
// the ID of the root of the tree it belongs to.
type Category struct {
	ID               int64     `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Description      *string   `json:"description,omitempty"`
	ParentCategoryID *int64    `json:"parent_category_id,omitempty"`
	RootID           *int64    `json:"root_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsRoot reports whether the category is the top of its tree.
func (c *Category) IsRoot() bool {
	return c.ParentCategoryID == nil
}

// TreeID returns the identity of the tree the category belongs to, which is
// the ID of the tree's root category.
func (c *Category) TreeID() int64 {
	if c.RootID != nil {
		return *c.RootID
	}
	return c.ID
}

// InTree reports whether c belongs to the tree rooted at tree. A non-root
// tree category roots no tree, so nothing is in it.
func (c *Category) InTree(tree *Category) bool {
	return c.TreeID() == tree.ID
}
