package rule

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"catalog-rules-service/internal/domain"
)

// CategoryLookup resolves category codes. A nil category with a nil error
// means the code does not exist.
type CategoryLookup interface {
	FindCategoryByCode(ctx context.Context, code string) (*domain.Category, error)
}

// ValueActionApplier applies actions that change product values.
type ValueActionApplier interface {
	Apply(ctx context.Context, products []*domain.Product, action ValueAction) error
}

// Applier applies a rule's actions to a batch of products in place.
// It holds no state between calls. Callers must not run Apply concurrently
// on overlapping product sets.
type Applier struct {
	categories CategoryLookup
	values     ValueActionApplier
	logger     zerolog.Logger
}

// NewApplier creates an Applier. values may be nil, in which case value
// actions are rejected as unsupported.
func NewApplier(categories CategoryLookup, values ValueActionApplier, logger zerolog.Logger) *Applier {
	return &Applier{
		categories: categories,
		values:     values,
		logger:     logger.With().Str("component", "rule_applier").Logger(),
	}
}

// Apply runs every action of r, in order, against all products. Each action
// is applied to the whole batch before the next one starts. The first
// failing action aborts the call; mutations made by earlier actions are
// kept and the caller decides whether to persist them.
func (a *Applier) Apply(ctx context.Context, products []*domain.Product, r Rule) error {
	for i, action := range r.actions {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch act := action.(type) {
		case AddCategoryAction:
			err = a.applyAddCategory(ctx, products, act)
		case SetCategoryAction:
			err = a.applySetCategory(ctx, products, act)
		case ValueAction:
			if a.values == nil {
				err = &UnsupportedActionKindError{Kind: fmt.Sprintf("%T", action)}
				break
			}
			err = a.values.Apply(ctx, products, act)
		default:
			err = &UnsupportedActionKindError{Kind: fmt.Sprintf("%T", action)}
		}
		if err != nil {
			a.logger.Warn().Err(err).
				Str("rule", r.code).
				Int("action_index", i).
				Msg("rule action failed")
			return err
		}

		a.logger.Debug().
			Str("rule", r.code).
			Str("action", action.Kind()).
			Int("products", len(products)).
			Msg("rule action applied")
	}
	return nil
}

func (a *Applier) applyAddCategory(ctx context.Context, products []*domain.Product, action AddCategoryAction) error {
	category, err := a.category(ctx, action.CategoryCode)
	if err != nil {
		return err
	}
	for _, p := range products {
		p.AddCategory(category)
	}
	return nil
}

func (a *Applier) applySetCategory(ctx context.Context, products []*domain.Product, action SetCategoryAction) error {
	category, err := a.category(ctx, action.CategoryCode)
	if err != nil {
		return err
	}
	var tree *domain.Category
	if action.Scoped() {
		if tree, err = a.category(ctx, action.TreeCode); err != nil {
			return err
		}
	}

	for _, p := range products {
		for _, c := range p.Categories() {
			if tree == nil || c.InTree(tree) {
				p.RemoveCategory(c)
			}
		}
		p.AddCategory(category)
	}
	return nil
}

func (a *Applier) category(ctx context.Context, code string) (*domain.Category, error) {
	category, err := a.categories.FindCategoryByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("rule: resolving category %q: %w", code, err)
	}
	if category == nil {
		return nil, &CategoryNotFoundError{Code: code}
	}
	return category, nil
}
