package forms

import (
	"regexp"
	"strings"
)

// FieldKind is the input type of a form field.
type FieldKind string

const (
	KindText        FieldKind = "text"
	KindEmail       FieldKind = "email"
	KindPhone       FieldKind = "phone"
	KindSelect      FieldKind = "select"
	KindCheckbox    FieldKind = "checkbox"
	KindMultiSelect FieldKind = "multi-select"
	// KindHidden fields are filled from the entry URL and never edited.
	KindHidden FieldKind = "hidden"
)

// RuleType names a validation rule.
type RuleType string

const (
	RuleEmail   RuleType = "email"
	RuleDigits  RuleType = "digits"
	RulePattern RuleType = "pattern"
)

// TargetKind is where a valid submission is sent.
type TargetKind string

const (
	TargetBackend TargetKind = "backend"
	TargetWebhook TargetKind = "webhook"
)

// Option is one choice of a select or multi-select field. Code, when set,
// replaces Value in backend payloads.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
	Code  string `json:"-"`
}

type Rule struct {
	Type    RuleType `json:"type"`
	Length  int      `json:"length,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Message string   `json:"message,omitempty"`

	re *regexp.Regexp
}

type Field struct {
	Name            string    `json:"name"`
	Label           string    `json:"label"`
	Kind            FieldKind `json:"kind"`
	Required        bool      `json:"required"`
	RequiredMessage string    `json:"-"`
	Rules           []Rule    `json:"rules,omitempty"`
	Options         []Option  `json:"options,omitempty"`
	OptionsFrom     string    `json:"options_from,omitempty"`
	Default         string    `json:"default,omitempty"`
	QueryParams     []string  `json:"-"`

	// payload shaping
	Wire        string `json:"-"`
	UseCodes    bool   `json:"-"`
	NullIfEmpty bool   `json:"-"`
}

// Dependency forces Target to Value, locked and exempt from validation,
// while field When holds one of In.
type Dependency struct {
	When   string   `json:"when"`
	In     []string `json:"in"`
	Target string   `json:"set"`
	Value  string   `json:"to"`
}

func (d Dependency) matches(v string) bool {
	for _, x := range d.In {
		if x == v {
			return true
		}
	}
	return false
}

// PreCheck asks the backend whether a record with the field's value already
// exists. A positive answer blocks the submission with Message.
type PreCheck struct {
	Field    string
	Endpoint string
	Param    string
	Message  string
}

type Target struct {
	Kind     TargetKind `json:"kind"`
	Endpoint string     `json:"-"`
	FormType string     `json:"-"`
}

// ComposePart contributes one field value to a composed payload key.
type ComposePart struct {
	Field  string
	Prefix string
	Skip   []string
}

type Composite struct {
	Name  string
	Parts []ComposePart
}

type Messages struct {
	Success string
	Failure string
	Invalid string
}

type Schema struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Fields       []*Field     `json:"fields"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	PreChecks    []PreCheck   `json:"-"`
	Compose      []Composite  `json:"-"`
	Target       Target       `json:"target"`
	Messages     Messages     `json:"-"`

	index map[string]*Field
}

// Field returns the named field or nil.
func (s *Schema) Field(name string) *Field {
	return s.index[name]
}

// wireName is the key used for the field in backend payloads; "" means omitted.
func (f *Field) wireName() string {
	switch f.Wire {
	case "":
		return f.Name
	case "-":
		return ""
	default:
		return f.Wire
	}
}

func (f *Field) hasOption(options []Option, v string) bool {
	for _, o := range options {
		if o.Value == v {
			return true
		}
	}
	return false
}

func (f *Field) code(options []Option, v string) string {
	for _, o := range options {
		if o.Value == v && o.Code != "" {
			return o.Code
		}
	}
	return v
}

func (f *Field) isText() bool {
	switch f.Kind {
	case KindCheckbox, KindMultiSelect:
		return false
	}
	return true
}

func (f *Field) requiredMessage() string {
	if f.RequiredMessage != "" {
		return f.RequiredMessage
	}
	return f.Label + " is required"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
