package rule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRule(t *testing.T) {
	r, err := DecodeRule("classify_shirts", []map[string]any{
		{"type": "add_category", "value": "summer"},
		{"type": "set_category", "value": "tshirts", "tree": "master"},
		{"type": "set_value", "field": "season", "value": 2026},
		{"type": "copy_value", "from_field": "name", "to_field": "title"},
	})

	require.NoError(t, err)
	assert.Equal(t, "classify_shirts", r.Code())
	assert.Equal(t, []Action{
		AddCategoryAction{CategoryCode: "summer"},
		SetCategoryAction{CategoryCode: "tshirts", TreeCode: "master"},
		SetValueAction{Field: "season", Value: 2026},
		CopyValueAction{FromField: "name", ToField: "title"},
	}, r.Actions())
}

func TestDecodeAction_Errors(t *testing.T) {
	tests := []struct {
		name    string
		def     map[string]any
		wantErr error
	}{
		{"missing type", map[string]any{"value": "x"}, ErrInvalidAction},
		{"unknown type", map[string]any{"type": "remove_category", "value": "x"}, ErrUnsupportedActionKind},
		{"add without category", map[string]any{"type": "add_category"}, ErrInvalidAction},
		{"set with numeric category", map[string]any{"type": "set_category", "value": 12}, ErrInvalidAction},
		{"set value without field", map[string]any{"type": "set_value", "value": "x"}, ErrInvalidAction},
		{"copy onto itself", map[string]any{"type": "copy_value", "from_field": "a", "to_field": "a"}, ErrInvalidAction},
		{"misspelled tree key", map[string]any{"type": "set_category", "value": "C", "tree_code": "master"}, ErrInvalidAction},
		{"unknown key on add", map[string]any{"type": "add_category", "value": "C", "category": "D"}, ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAction(tt.def)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestDecodeRule_UnknownKeyDoesNotWidenSetCategory(t *testing.T) {
	_, err := DecodeRule("r", []map[string]any{
		{"type": "set_category", "value": "C", "tree_code": "master"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Contains(t, err.Error(), "tree_code")
}

func TestDecodeRule_ReportsActionIndex(t *testing.T) {
	_, err := DecodeRule("r", []map[string]any{
		{"type": "add_category", "value": "ok"},
		{"type": "explode"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "action 1")
	var unsupported *UnsupportedActionKindError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "explode", unsupported.Kind)
}

func TestRule_IsImmutable(t *testing.T) {
	actions := []Action{AddCategoryAction{CategoryCode: "a"}}
	r := New("r", actions...)

	actions[0] = AddCategoryAction{CategoryCode: "b"}
	got := r.Actions()
	got[0] = AddCategoryAction{CategoryCode: "c"}

	assert.Equal(t, AddCategoryAction{CategoryCode: "a"}, r.Actions()[0])
	assert.Equal(t, 1, r.Len())
}
