package forms

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"lanos_go/utils"

	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var builtinSchemas embed.FS

// yaml documents mirror the schema types but keep optional flags as pointers
// so omitted keys can take defaults.
type optionDoc Option

func (o *optionDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		o.Value = node.Value
		return nil
	}
	var raw struct {
		Value string `yaml:"value"`
		Label string `yaml:"label"`
		Code  string `yaml:"code"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*o = optionDoc{Value: raw.Value, Label: utils.StripMarkup(raw.Label), Code: raw.Code}
	return nil
}

type fieldDoc struct {
	Name            string      `yaml:"name"`
	Label           string      `yaml:"label"`
	Kind            FieldKind   `yaml:"kind"`
	Required        *bool       `yaml:"required"`
	RequiredMessage string      `yaml:"required_message"`
	RuleDocs        []ruleDoc   `yaml:"rules"`
	Options         []optionDoc `yaml:"options"`
	OptionsFrom     string      `yaml:"options_from"`
	Default         string      `yaml:"default"`
	QueryParams     []string    `yaml:"query_params"`
	Wire            string      `yaml:"wire"`
	UseCodes        bool        `yaml:"use_codes"`
	NullIfEmpty     bool        `yaml:"null_if_empty"`
}

type ruleDoc struct {
	Type    RuleType `yaml:"type"`
	Length  int      `yaml:"length"`
	Pattern string   `yaml:"pattern"`
	Message string   `yaml:"message"`
}

type schemaDoc struct {
	ID           string     `yaml:"id"`
	Title        string     `yaml:"title"`
	Fields       []fieldDoc `yaml:"fields"`
	Dependencies []struct {
		When  string   `yaml:"when"`
		In    []string `yaml:"in"`
		Set   string   `yaml:"set"`
		To    string   `yaml:"to"`
	} `yaml:"dependencies"`
	PreChecks []struct {
		Field    string `yaml:"field"`
		Endpoint string `yaml:"endpoint"`
		Param    string `yaml:"param"`
		Message  string `yaml:"message"`
	} `yaml:"prechecks"`
	Compose []struct {
		Name  string `yaml:"name"`
		Parts []struct {
			Field  string   `yaml:"field"`
			Prefix string   `yaml:"prefix"`
			Skip   []string `yaml:"skip"`
		} `yaml:"parts"`
	} `yaml:"compose"`
	Target struct {
		Kind     TargetKind `yaml:"kind"`
		Endpoint string     `yaml:"endpoint"`
		FormType string     `yaml:"form_type"`
	} `yaml:"target"`
	Messages struct {
		Success string `yaml:"success"`
		Failure string `yaml:"failure"`
		Invalid string `yaml:"invalid"`
	} `yaml:"messages"`
}

// Registry holds the loaded schemas keyed by id.
type Registry struct {
	schemas map[string]*Schema
}

// DefaultRegistry loads the schemas compiled into the binary.
func DefaultRegistry() (*Registry, error) {
	sub, err := fs.Sub(builtinSchemas, "schemas")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// LoadFS parses every .yaml/.yml file of fsys as one form schema.
func LoadFS(fsys fs.FS) (*Registry, error) {
	reg := &Registry{schemas: make(map[string]*Schema)}
	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("forms: read %s: %w", path, err)
		}
		schema, err := ParseSchema(data)
		if err != nil {
			return fmt.Errorf("forms: %s: %w", path, err)
		}
		if _, dup := reg.schemas[schema.ID]; dup {
			return fmt.Errorf("forms: duplicate form id %q (file %s)", schema.ID, path)
		}
		reg.schemas[schema.ID] = schema
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// ParseSchema decodes and checks one YAML schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var doc schemaDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	s := &Schema{
		ID:    strings.TrimSpace(doc.ID),
		Title: utils.StripMarkup(doc.Title),
		Target: Target{
			Kind:     doc.Target.Kind,
			Endpoint: doc.Target.Endpoint,
			FormType: doc.Target.FormType,
		},
		Messages: Messages{
			Success: doc.Messages.Success,
			Failure: doc.Messages.Failure,
			Invalid: doc.Messages.Invalid,
		},
		index: make(map[string]*Field),
	}
	if s.ID == "" {
		return nil, fmt.Errorf("missing form id")
	}
	if s.Title == "" {
		s.Title = s.ID
	}
	if s.Messages.Success == "" {
		s.Messages.Success = "Submitted successfully."
	}
	if s.Messages.Failure == "" {
		s.Messages.Failure = "Something went wrong. Please try again later."
	}
	if s.Messages.Invalid == "" {
		s.Messages.Invalid = "Please fill in all required fields."
	}

	for _, fd := range doc.Fields {
		f, err := buildField(fd)
		if err != nil {
			return nil, err
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		s.Fields = append(s.Fields, f)
		s.index[f.Name] = f
	}
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("form %q has no fields", s.ID)
	}

	for _, d := range doc.Dependencies {
		dep := Dependency{When: d.When, In: d.In, Target: d.Set, Value: d.To}
		if s.Field(dep.When) == nil || s.Field(dep.Target) == nil {
			return nil, fmt.Errorf("dependency %s -> %s references an unknown field", dep.When, dep.Target)
		}
		if dep.When == dep.Target {
			return nil, fmt.Errorf("dependency on %q targets itself", dep.When)
		}
		if !s.Field(dep.Target).isText() {
			return nil, fmt.Errorf("dependency target %q must hold a single value", dep.Target)
		}
		s.Dependencies = append(s.Dependencies, dep)
	}

	for _, pc := range doc.PreChecks {
		if s.Field(pc.Field) == nil {
			return nil, fmt.Errorf("pre-check references unknown field %q", pc.Field)
		}
		if pc.Endpoint == "" || pc.Param == "" {
			return nil, fmt.Errorf("pre-check on %q needs endpoint and param", pc.Field)
		}
		s.PreChecks = append(s.PreChecks, PreCheck{
			Field: pc.Field, Endpoint: pc.Endpoint, Param: pc.Param, Message: pc.Message,
		})
	}

	for _, c := range doc.Compose {
		comp := Composite{Name: c.Name}
		for _, p := range c.Parts {
			if s.Field(p.Field) == nil {
				return nil, fmt.Errorf("compose %q references unknown field %q", c.Name, p.Field)
			}
			comp.Parts = append(comp.Parts, ComposePart{Field: p.Field, Prefix: p.Prefix, Skip: p.Skip})
		}
		s.Compose = append(s.Compose, comp)
	}

	switch s.Target.Kind {
	case TargetBackend:
		if s.Target.Endpoint == "" {
			return nil, fmt.Errorf("backend target needs an endpoint")
		}
	case TargetWebhook:
		if s.Target.FormType == "" {
			s.Target.FormType = s.Title
		}
	default:
		return nil, fmt.Errorf("unknown target kind %q", s.Target.Kind)
	}
	if len(s.PreChecks) > 0 && s.Target.Kind != TargetBackend {
		return nil, fmt.Errorf("pre-checks need a backend target")
	}
	return s, nil
}

func buildField(fd fieldDoc) (*Field, error) {
	f := &Field{
		Name:            strings.TrimSpace(fd.Name),
		Label:           utils.StripMarkup(fd.Label),
		Kind:            fd.Kind,
		Required:        true,
		RequiredMessage: fd.RequiredMessage,
		OptionsFrom:     fd.OptionsFrom,
		Default:         fd.Default,
		QueryParams:     fd.QueryParams,
		Wire:            fd.Wire,
		UseCodes:        fd.UseCodes,
		NullIfEmpty:     fd.NullIfEmpty,
	}
	if f.Name == "" {
		return nil, fmt.Errorf("field without a name")
	}
	if f.Label == "" {
		f.Label = capitalize(f.Name)
	}
	if f.Kind == "" {
		f.Kind = KindText
	}
	if fd.Required != nil {
		f.Required = *fd.Required
	}
	switch f.Kind {
	case KindText, KindEmail, KindPhone, KindSelect, KindCheckbox, KindMultiSelect:
	case KindHidden:
		f.Required = false
	default:
		return nil, fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
	}
	for _, o := range fd.Options {
		f.Options = append(f.Options, Option(o))
	}
	if (f.Kind == KindSelect || f.Kind == KindMultiSelect) && len(f.Options) == 0 && f.OptionsFrom == "" {
		return nil, fmt.Errorf("field %q: %s needs options", f.Name, f.Kind)
	}
	if f.Kind == KindMultiSelect && f.OptionsFrom != "" {
		return nil, fmt.Errorf("field %q: multi-select options must be static", f.Name)
	}

	if f.Kind == KindEmail {
		f.Rules = append(f.Rules, Rule{Type: RuleEmail})
	}
	for _, rd := range fd.RuleDocs {
		r := Rule{Type: rd.Type, Length: rd.Length, Pattern: rd.Pattern, Message: rd.Message}
		if err := r.compile(); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if r.Type == RuleEmail && f.Kind == KindEmail {
			f.Rules[0].Message = r.Message
			continue
		}
		f.Rules = append(f.Rules, r)
	}
	return f, nil
}

func (r *Rule) compile() error {
	switch r.Type {
	case RuleEmail:
	case RuleDigits:
		if r.Length <= 0 {
			return fmt.Errorf("digits rule needs a positive length")
		}
		r.re = regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, r.Length))
	case RulePattern:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", r.Pattern, err)
		}
		r.re = re
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	return nil
}

// Get returns the schema registered under id.
func (r *Registry) Get(id string) (*Schema, error) {
	s, ok := r.schemas[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownForm, id)
	}
	return s, nil
}

// List returns the schemas ordered by id.
func (r *Registry) List() []*Schema {
	out := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetFieldPattern replaces the pattern rule of a field. Meant for boot-time
// overrides from configuration, before any controller is opened.
func (r *Registry) SetFieldPattern(formID, field, pattern string) error {
	s, err := r.Get(formID)
	if err != nil {
		return err
	}
	f := s.Field(field)
	if f == nil {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, formID, field)
	}
	rule := Rule{Type: RulePattern, Pattern: pattern}
	if err := rule.compile(); err != nil {
		return err
	}
	for i := range f.Rules {
		if f.Rules[i].Type == RulePattern {
			rule.Message = f.Rules[i].Message
			f.Rules[i] = rule
			return nil
		}
	}
	f.Rules = append(f.Rules, rule)
	return nil
}
