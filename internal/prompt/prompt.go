// Package prompt formats the text sent to a language model.
package prompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hpungsan/lichen/internal/errors"
	"github.com/hpungsan/lichen/internal/serial"
)

// FormatFString is the only supported template format: {name} placeholders
// with {{ and }} as literal braces.
const FormatFString = "f-string"

var typePath = []string{"lichen", "prompts", "prompt", "PromptTemplate"}

// SummaryTemplate progressively extends a running summary with new lines
// of conversation.
const SummaryTemplate = `Progressively summarize the lines of conversation provided, adding onto the previous summary returning a new summary.

EXAMPLE
Current summary:
The human asks what the AI thinks of artificial intelligence. The AI thinks artificial intelligence is a force for good.

New lines of conversation:
Human: Why do you think artificial intelligence is a force for good?
AI: Because artificial intelligence will help humans reach their full potential.

New summary:
The human asks what the AI thinks of artificial intelligence. The AI thinks artificial intelligence is a force for good because it will help humans reach their full potential.
END OF EXAMPLE

Current summary:
{summary}

New lines of conversation:
{new_lines}

New summary:`

// Template is a string with named placeholders.
type Template struct {
	InputVariables []string
	Template       string
	TemplateFormat string
}

// New parses tmpl and infers its input variables.
func New(tmpl string) (*Template, error) {
	vars, err := variables(tmpl)
	if err != nil {
		return nil, err
	}
	return &Template{InputVariables: vars, Template: tmpl, TemplateFormat: FormatFString}, nil
}

// DefaultSummary returns the progressive summarization prompt.
func DefaultSummary() *Template {
	return &Template{
		InputVariables: []string{"new_lines", "summary"},
		Template:       SummaryTemplate,
		TemplateFormat: FormatFString,
	}
}

// Format substitutes values into the template. Every placeholder must have
// a value; extra values are ignored.
func (t *Template) Format(values map[string]string) (string, error) {
	var b strings.Builder
	err := scan(t.Template, func(literal string) {
		b.WriteString(literal)
	}, func(name string) error {
		v, ok := values[name]
		if !ok {
			return errors.NewInvalidRequest(fmt.Sprintf("missing value for prompt variable %q", name))
		}
		b.WriteString(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Validate checks that InputVariables matches the placeholders in Template.
func (t *Template) Validate() error {
	if t.TemplateFormat != FormatFString {
		return errors.NewInvalidRequest(fmt.Sprintf("unsupported template format %q", t.TemplateFormat))
	}
	found, err := variables(t.Template)
	if err != nil {
		return err
	}
	declared := slices.Sorted(slices.Values(t.InputVariables))
	if !slices.Equal(found, declared) {
		return errors.NewInvalidRequest(fmt.Sprintf("input variables %v do not match template placeholders %v", declared, found))
	}
	return nil
}

func (t *Template) String() string {
	return fmt.Sprintf("PromptTemplate(input_variables=%v)", t.InputVariables)
}

// variables returns the sorted, de-duplicated placeholder names of tmpl.
func variables(tmpl string) ([]string, error) {
	var names []string
	err := scan(tmpl, func(string) {}, func(name string) error {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func scan(tmpl string, literal func(string), placeholder func(string) error) error {
	for i := 0; i < len(tmpl); {
		switch c := tmpl[i]; {
		case c == '{' && strings.HasPrefix(tmpl[i:], "{{"):
			literal("{")
			i += 2
		case c == '}' && strings.HasPrefix(tmpl[i:], "}}"):
			literal("}")
			i += 2
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return errors.NewInvalidRequest("unclosed placeholder in template")
			}
			name := strings.TrimSpace(tmpl[i+1 : i+end])
			if name == "" {
				return errors.NewInvalidRequest("empty placeholder in template")
			}
			if err := placeholder(name); err != nil {
				return err
			}
			i += end + 1
		case c == '}':
			return errors.NewInvalidRequest("single '}' encountered in template")
		default:
			next := strings.IndexAny(tmpl[i:], "{}")
			if next < 0 {
				next = len(tmpl) - i
			}
			literal(tmpl[i : i+next])
			i += next
		}
	}
	return nil
}

// TypePath implements serial.Serializable.
func (t *Template) TypePath() []string { return typePath }

// ConstructorArgs implements serial.Serializable.
func (t *Template) ConstructorArgs() map[string]any {
	return map[string]any{
		"input_variables": slices.Clone(t.InputVariables),
		"template":        t.Template,
	}
}

// Fields implements serial.Serializable.
func (t *Template) Fields() map[string]any {
	return map[string]any{
		"input_variables": slices.Clone(t.InputVariables),
		"template":        t.Template,
		"template_format": t.TemplateFormat,
	}
}

// SetField implements serial.FieldSetter.
func (t *Template) SetField(name string, value any) error {
	var err error
	switch name {
	case "input_variables":
		t.InputVariables, err = serial.ToStringSlice(name, value)
	case "template":
		t.Template, err = serial.ToString(name, value)
	case "template_format":
		t.TemplateFormat, err = serial.ToString(name, value)
	default:
		return serial.UndeclaredField(name)
	}
	return err
}

// Finalize implements serial.Finalizer.
func (t *Template) Finalize() (any, error) {
	if err := t.Validate(); err != nil {
		lErr, _ := errors.As(err)
		return nil, errors.NewMalformedEnvelope("template", lErr.Message)
	}
	return t, nil
}

// Registrations returns the decoder registration for Template.
func Registrations() []serial.Registration {
	return []serial.Registration{{
		Path: typePath,
		New: func(kwargs map[string]any) (any, error) {
			if err := serial.CheckKeys(kwargs, "input_variables", "template"); err != nil {
				return nil, err
			}
			t := &Template{TemplateFormat: FormatFString}
			for _, key := range []string{"input_variables", "template"} {
				if v, ok := kwargs[key]; ok {
					if err := t.SetField(key, v); err != nil {
						return nil, err
					}
				}
			}
			return t, nil
		},
	}}
}
