package rule

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

// DecodeRule builds a Rule from generic action definitions, as found in JSON
// request bodies or protobuf Struct payloads. Each definition carries a
// "type" key naming the action kind, e.g.
//
//	{"type": "set_category", "value": "tshirts", "tree": "master"}
func DecodeRule(code string, defs []map[string]any) (Rule, error) {
	actions := make([]Action, 0, len(defs))
	for i, def := range defs {
		action, err := DecodeAction(def)
		if err != nil {
			return Rule{}, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, action)
	}
	return New(code, actions...), nil
}

// DecodeAction builds a single action from its definition.
func DecodeAction(def map[string]any) (Action, error) {
	kind, _ := def["type"].(string)
	switch kind {
	case KindAddCategory:
		return decodeInto[AddCategoryAction](def)
	case KindSetCategory:
		return decodeInto[SetCategoryAction](def)
	case KindSetValue:
		return decodeInto[SetValueAction](def)
	case KindCopyValue:
		return decodeInto[CopyValueAction](def)
	case "":
		return nil, fmt.Errorf("%w: missing action type", ErrInvalidAction)
	default:
		return nil, &UnsupportedActionKindError{Kind: kind}
	}
}

// decodeInto rejects keys the action does not define.
func decodeInto[T Action](def map[string]any) (Action, error) {
	var action T
	fields := make(map[string]any, len(def))
	for k, v := range def {
		if k != "type" {
			fields[k] = v
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &action,
	})
	if err != nil {
		return nil, fmt.Errorf("rule: building %s decoder: %w", action.Kind(), err)
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAction, action.Kind(), err)
	}
	if err := validate.Struct(action); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAction, action.Kind(), err)
	}
	return action, nil
}
