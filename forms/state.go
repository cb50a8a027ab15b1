package forms

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"lanos_go/utils"
)

// Values is the live state of a form: string for text-like fields, bool for
// checkboxes, []string in option order for multi-selects.
type Values map[string]any

func (v Values) Text(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v Values) Checked(name string) bool {
	b, _ := v[name].(bool)
	return b
}

func (v Values) Selected(name string) []string {
	s, _ := v[name].([]string)
	return s
}

func (v Values) clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		if list, ok := val.([]string); ok {
			val = append([]string{}, list...)
		}
		out[k] = val
	}
	return out
}

func defaultValues(s *Schema) Values {
	v := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		switch f.Kind {
		case KindCheckbox:
			v[f.Name] = f.Default == "true"
		case KindMultiSelect:
			v[f.Name] = []string{}
		default:
			v[f.Name] = f.Default
		}
	}
	return v
}

// coerce converts a decoded JSON value into the representation f stores.
func coerce(f *Field, options []Option, raw any) (any, error) {
	switch f.Kind {
	case KindCheckbox:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "on", "1", "yes":
				return true, nil
			case "false", "off", "0", "no", "":
				return false, nil
			}
		case nil:
			return false, nil
		}
		return nil, fmt.Errorf("%w: %s expects a boolean", ErrInvalidValue, f.Name)

	case KindMultiSelect:
		var items []string
		switch x := raw.(type) {
		case nil:
		case []string:
			items = x
		case []any:
			for _, it := range x {
				s, ok := it.(string)
				if !ok {
					return nil, fmt.Errorf("%w: %s expects a list of strings", ErrInvalidValue, f.Name)
				}
				items = append(items, s)
			}
		default:
			return nil, fmt.Errorf("%w: %s expects a list", ErrInvalidValue, f.Name)
		}
		out := []string{}
		seen := make(map[string]bool, len(items))
		for _, it := range items {
			it = utils.SanitizeString(it)
			if seen[it] {
				continue
			}
			if !f.hasOption(options, it) {
				return nil, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidValue, it, f.Name)
			}
			seen[it] = true
			out = append(out, it)
		}
		return inOptionOrder(options, out), nil

	default:
		switch x := raw.(type) {
		case string:
			return utils.SanitizeString(x), nil
		case nil:
			return "", nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(x), nil
		case json.Number:
			return x.String(), nil
		}
		return nil, fmt.Errorf("%w: %s expects text", ErrInvalidValue, f.Name)
	}
}

// toggled flips a checkbox or adds/removes option from a multi-select set.
func toggled(f *Field, options []Option, current any, option string) (any, error) {
	switch f.Kind {
	case KindCheckbox:
		b, _ := current.(bool)
		return !b, nil
	case KindMultiSelect:
		option = utils.SanitizeString(option)
		if !f.hasOption(options, option) {
			return nil, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidValue, option, f.Name)
		}
		list, _ := current.([]string)
		out := make([]string, 0, len(list)+1)
		removed := false
		for _, it := range list {
			if it == option {
				removed = true
				continue
			}
			out = append(out, it)
		}
		if !removed {
			out = append(out, option)
		}
		return inOptionOrder(options, out), nil
	}
	return nil, fmt.Errorf("%w: %s cannot be toggled", ErrInvalidValue, f.Name)
}

// inOptionOrder sorts a selection by the position of each option, so a
// multi-select behaves as a set.
func inOptionOrder(options []Option, selected []string) []string {
	in := make(map[string]bool, len(selected))
	for _, s := range selected {
		in[s] = true
	}
	out := make([]string, 0, len(selected))
	for _, o := range options {
		if in[o.Value] {
			out = append(out, o.Value)
		}
	}
	return out
}
