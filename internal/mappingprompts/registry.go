// Package mappingprompts declares the structured prompts the mapping engine
// sends to its semantic collaborator, compiled once and looked up by name.
package mappingprompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

type PromptName string

const (
	PromptNodeMatch PromptName = "node_match"
)

// Input is the superset of fields any mapping prompt can reference.
// Missing fields render as empty strings.
type Input struct {
	NodeValue      string
	NodePath       string
	CandidatesJSON string
}

// Prompt is ready to pass into openai.GenerateJSON.
type Prompt struct {
	Name       string
	Version    int
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

type Validator func(Input) error

func RequireNonEmpty(field string, get func(Input) string) Validator {
	return func(in Input) error {
		if strings.TrimSpace(get(in)) == "" {
			return fmt.Errorf("missing %s", field)
		}
		return nil
	}
}

// Spec is the declaration format: plain strings or go templates over Input.
type Spec struct {
	Name       PromptName
	Version    int
	SchemaName string
	Schema     func() map[string]any
	System     string
	User       string
	Validators []Validator
}

// Template is the compiled runtime form of a Spec.
type Template struct {
	Name       PromptName
	Version    int
	SchemaName string
	Schema     func() map[string]any
	System     func(Input) string
	User       func(Input) string
	Validate   Validator
}

var registry = map[PromptName]Template{}

func Register(t Template) {
	registry[t.Name] = t
}

// MakeTemplate compiles a Spec, rejecting incomplete declarations.
func MakeTemplate(s Spec) (Template, error) {
	if strings.TrimSpace(string(s.Name)) == "" {
		return Template{}, fmt.Errorf("missing prompt name")
	}
	if s.Version <= 0 {
		return Template{}, fmt.Errorf("invalid version for %s", s.Name)
	}
	if strings.TrimSpace(s.SchemaName) == "" {
		return Template{}, fmt.Errorf("missing schema name for %s", s.Name)
	}
	if s.Schema == nil {
		return Template{}, fmt.Errorf("missing schema func for %s", s.Name)
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return Template{}, fmt.Errorf("%s system template parse: %w", s.Name, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(s.User)
	if err != nil {
		return Template{}, fmt.Errorf("%s user template parse: %w", s.Name, err)
	}
	render := func(t *template.Template, in Input) string {
		var b bytes.Buffer
		_ = t.Execute(&b, in)
		return strings.TrimSpace(b.String())
	}
	tt := Template{
		Name:       s.Name,
		Version:    s.Version,
		SchemaName: s.SchemaName,
		Schema:     s.Schema,
		System:     func(in Input) string { return render(sysT, in) },
		User:       func(in Input) string { return render(userT, in) },
	}
	if len(s.Validators) > 0 {
		validators := s.Validators
		tt.Validate = func(in Input) error {
			for _, v := range validators {
				if v == nil {
					continue
				}
				if err := v(in); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return tt, nil
}

func RegisterSpec(s Spec) {
	t, err := MakeTemplate(s)
	if err != nil {
		panic(err)
	}
	Register(t)
}

// Build renders a registered prompt for one input.
func Build(name PromptName, in Input) (Prompt, error) {
	t, ok := registry[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", string(name))
	}
	if t.Validate != nil {
		if err := t.Validate(in); err != nil {
			return Prompt{}, fmt.Errorf("%s: %w", string(name), err)
		}
	}
	return Prompt{
		Name:       string(t.Name),
		Version:    t.Version,
		SchemaName: strings.TrimSpace(t.SchemaName),
		Schema:     t.Schema(),
		System:     strings.TrimSpace(t.System(in)),
		User:       strings.TrimSpace(t.User(in)),
	}, nil
}
