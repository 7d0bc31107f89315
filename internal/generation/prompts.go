package generation

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompt kinds.
const (
	KindCourseOutline = "course_outline"
	KindPathOutline   = "path_outline"
	KindModuleContent = "module_content"
	KindMockTest      = "mock_test"
	KindClarify       = "clarify"
)

var kinds = []string{KindCourseOutline, KindPathOutline, KindModuleContent, KindMockTest, KindClarify}

type promptSource struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type prompt struct {
	system *template.Template
	user   *template.Template
}

// Prompts holds the parsed templates for every generation kind.
type Prompts struct {
	byKind map[string]prompt
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// LoadPrompts parses the built-in prompts, then overlays the kinds defined in
// the YAML file at path. An empty path uses the built-in prompts only.
func LoadPrompts(path string) (*Prompts, error) {
	p, err := parsePrompts(defaultPrompts)
	if err != nil {
		return nil, fmt.Errorf("built-in prompts: %w", err)
	}
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts: %w", err)
	}
	override, err := parsePrompts(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for kind, pr := range override.byKind {
		p.byKind[kind] = pr
	}
	return p, nil
}

func parsePrompts(data []byte) (*Prompts, error) {
	var raw map[string]promptSource
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	p := &Prompts{byKind: make(map[string]prompt)}
	for kind, src := range raw {
		if !slices.Contains(kinds, kind) {
			return nil, fmt.Errorf("unknown prompt kind %q", kind)
		}
		if strings.TrimSpace(src.User) == "" {
			return nil, fmt.Errorf("%s: user prompt is empty", kind)
		}
		sys, err := template.New(kind + ".system").Funcs(funcs).Parse(src.System)
		if err != nil {
			return nil, fmt.Errorf("%s system: %w", kind, err)
		}
		usr, err := template.New(kind + ".user").Funcs(funcs).Parse(src.User)
		if err != nil {
			return nil, fmt.Errorf("%s user: %w", kind, err)
		}
		p.byKind[kind] = prompt{system: sys, user: usr}
	}
	return p, nil
}

// Render executes the system and user templates of kind with data.
func (p *Prompts) Render(kind string, data any) (system, user string, err error) {
	pr, ok := p.byKind[kind]
	if !ok {
		return "", "", fmt.Errorf("no prompt for %s", kind)
	}
	var sb, ub strings.Builder
	if err := pr.system.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render %s system prompt: %w", kind, err)
	}
	if err := pr.user.Execute(&ub, data); err != nil {
		return "", "", fmt.Errorf("render %s user prompt: %w", kind, err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}
