package rule

import (
	"context"
	"fmt"

	"catalog-rules-service/internal/domain"
)

// ValueApplier is the default ValueActionApplier. It works on the products'
// in-memory attribute values.
type ValueApplier struct{}

// NewValueApplier creates a ValueApplier.
func NewValueApplier() *ValueApplier {
	return &ValueApplier{}
}

// Apply sets or copies values on every product.
// Copying from a product that has no source value clears the target value.
func (v *ValueApplier) Apply(_ context.Context, products []*domain.Product, action ValueAction) error {
	switch act := action.(type) {
	case SetValueAction:
		for _, p := range products {
			p.SetValue(act.Field, act.Value)
		}
	case CopyValueAction:
		for _, p := range products {
			value, ok := p.Value(act.FromField)
			if !ok {
				p.UnsetValue(act.ToField)
				continue
			}
			p.SetValue(act.ToField, value)
		}
	default:
		return &UnsupportedActionKindError{Kind: fmt.Sprintf("%T", action)}
	}
	return nil
}
