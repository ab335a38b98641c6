package rule

import (
	"errors"
	"fmt"
)

var (
	ErrCategoryNotFound      = errors.New("rule: category not found")
	ErrUnsupportedActionKind = errors.New("rule: unsupported action kind")
	ErrInvalidAction         = errors.New("rule: invalid action")
)

// CategoryNotFoundError reports a category code referenced by an action
// that does not resolve to a category.
type CategoryNotFoundError struct {
	Code string
}

func (e *CategoryNotFoundError) Error() string {
	return fmt.Sprintf("rule: impossible to apply rule on category %q: category does not exist", e.Code)
}

func (e *CategoryNotFoundError) Is(target error) bool {
	return target == ErrCategoryNotFound
}

// UnsupportedActionKindError reports an action with no registered handler.
type UnsupportedActionKindError struct {
	Kind string
}

func (e *UnsupportedActionKindError) Error() string {
	return fmt.Sprintf("rule: the action %q is not supported", e.Kind)
}

func (e *UnsupportedActionKindError) Is(target error) bool {
	return target == ErrUnsupportedActionKind
}
