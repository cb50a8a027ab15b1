package forms

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()

	// local@domain.tld; validator's own email check alone accepts
	// addresses without a dot in the domain.
	emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// IsEmail reports whether s looks like local@domain.tld.
func IsEmail(s string) bool {
	return emailShape.MatchString(s) && validate.Var(s, "email") == nil
}

func (r *Rule) check(v string) bool {
	switch r.Type {
	case RuleEmail:
		return IsEmail(v)
	case RuleDigits, RulePattern:
		return r.re.MatchString(v)
	}
	return true
}

func (r *Rule) message(f *Field) string {
	if r.Message != "" {
		return r.Message
	}
	switch r.Type {
	case RuleEmail:
		return "Please enter a valid email address"
	case RuleDigits:
		return f.Label + " must be exactly " + strconv.Itoa(r.Length) + " digits"
	}
	return f.Label + " is not in the expected format"
}

// checkField returns the error message for one field, or "".
func checkField(f *Field, options []Option, values Values) string {
	switch f.Kind {
	case KindHidden:
		return ""
	case KindCheckbox:
		if f.Required && !values.Checked(f.Name) {
			return f.requiredMessage()
		}
		return ""
	case KindMultiSelect:
		return ""
	}

	v := strings.TrimSpace(values.Text(f.Name))
	if v == "" {
		if f.Required {
			return f.requiredMessage()
		}
		return ""
	}
	for i := range f.Rules {
		if !f.Rules[i].check(v) {
			return f.Rules[i].message(f)
		}
	}
	// options == nil means a dynamic list that has not loaded.
	if f.Kind == KindSelect && options != nil && !f.hasOption(options, v) {
		return "Please select a valid " + strings.ToLower(f.Label)
	}
	return ""
}

// validateValues runs every field check except for locked fields.
func validateValues(s *Schema, values Values, locked map[string]bool, optionsFor func(*Field) []Option) map[string]string {
	errs := make(map[string]string)
	for _, f := range s.Fields {
		if locked[f.Name] {
			continue
		}
		if msg := checkField(f, optionsFor(f), values); msg != "" {
			errs[f.Name] = msg
		}
	}
	return errs
}

// hiddenValueAllowed checks a prefilled hidden value against the field rules.
func hiddenValueAllowed(f *Field, v string) bool {
	for i := range f.Rules {
		if !f.Rules[i].check(v) {
			return false
		}
	}
	return true
}
