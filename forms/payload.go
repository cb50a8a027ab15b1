package forms

import (
	"strconv"
	"strings"
)

// BuildPayload shapes values into the JSON body sent to a backend target:
// wire renames, option codes, null for empty optional fields and composed
// keys.
func BuildPayload(s *Schema, values Values, optionsFor func(*Field) []Option) map[string]any {
	payload := make(map[string]any, len(s.Fields)+len(s.Compose))
	for _, f := range s.Fields {
		key := f.wireName()
		if key == "" {
			continue
		}
		switch f.Kind {
		case KindCheckbox:
			payload[key] = values.Checked(f.Name)
		case KindMultiSelect:
			selected := values.Selected(f.Name)
			out := make([]string, 0, len(selected))
			for _, v := range selected {
				if f.UseCodes {
					v = f.code(optionsFor(f), v)
				}
				out = append(out, v)
			}
			payload[key] = out
		default:
			v := strings.TrimSpace(values.Text(f.Name))
			if v == "" && f.NullIfEmpty {
				payload[key] = nil
				continue
			}
			if f.UseCodes {
				v = f.code(optionsFor(f), v)
			}
			payload[key] = v
		}
	}
	for _, comp := range s.Compose {
		var b strings.Builder
		for _, part := range comp.Parts {
			v := strings.TrimSpace(values.Text(part.Field))
			if skipped(part.Skip, v) {
				continue
			}
			b.WriteString(part.Prefix)
			b.WriteString(v)
		}
		payload[comp.Name] = b.String()
	}
	return payload
}

func skipped(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Entry is one "Key: value" line of a webhook message.
type Entry struct {
	Key   string
	Value string
}

// Entries lists the fields of a webhook form in schema order.
func Entries(s *Schema, values Values) []Entry {
	out := make([]Entry, 0, len(s.Fields))
	for _, f := range s.Fields {
		var v string
		switch f.Kind {
		case KindCheckbox:
			v = strconv.FormatBool(values.Checked(f.Name))
		case KindMultiSelect:
			v = strings.Join(values.Selected(f.Name), ", ")
		default:
			v = values.Text(f.Name)
		}
		out = append(out, Entry{Key: capitalize(f.Name), Value: v})
	}
	return out
}

// FormatMessage renders the text block posted to the messaging webhook.
func FormatMessage(formType string, entries []Entry) string {
	var b strings.Builder
	b.WriteString("🔔 New ")
	b.WriteString(formType)
	b.WriteString(" Submission\n\n")
	for _, e := range entries {
		b.WriteString(e.Key)
		b.WriteString(": ")
		b.WriteString(e.Value)
		b.WriteString("\n")
	}
	return b.String()
}
