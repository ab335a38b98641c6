package rule

// Action is one declarative mutation applied to a batch of products.
// The set of actions is closed: only types in this package implement it.
type Action interface {
	// Kind returns the action's type as used in rule definitions.
	Kind() string
	isAction()
}

// ValueAction is the subset of actions that change product values rather
// than category membership.
type ValueAction interface {
	Action
	isValueAction()
}

// Action kinds as they appear in rule definitions.
const (
	KindAddCategory = "add_category"
	KindSetCategory = "set_category"
	KindSetValue    = "set_value"
	KindCopyValue   = "copy_value"
)

// AddCategoryAction adds every product to a category.
type AddCategoryAction struct {
	CategoryCode string `mapstructure:"value" validate:"required"`
}

// SetCategoryAction classifies every product into a single category,
// removing its other categories. When TreeCode is set only the categories
// of that tree are removed.
type SetCategoryAction struct {
	CategoryCode string `mapstructure:"value" validate:"required"`
	TreeCode     string `mapstructure:"tree"`
}

// Scoped reports whether removal is limited to one category tree.
func (a SetCategoryAction) Scoped() bool {
	return a.TreeCode != ""
}

// SetValueAction sets an attribute value on every product.
type SetValueAction struct {
	Field string `mapstructure:"field" validate:"required"`
	Value any    `mapstructure:"value"`
}

// CopyValueAction copies an attribute value from one field to another on
// every product.
type CopyValueAction struct {
	FromField string `mapstructure:"from_field" validate:"required"`
	ToField   string `mapstructure:"to_field" validate:"required,nefield=FromField"`
}

func (AddCategoryAction) Kind() string { return KindAddCategory }
func (SetCategoryAction) Kind() string { return KindSetCategory }
func (SetValueAction) Kind() string    { return KindSetValue }
func (CopyValueAction) Kind() string   { return KindCopyValue }

func (AddCategoryAction) isAction() {}
func (SetCategoryAction) isAction() {}
func (SetValueAction) isAction()    {}
func (CopyValueAction) isAction()   {}

func (SetValueAction) isValueAction()  {}
func (CopyValueAction) isValueAction() {}
