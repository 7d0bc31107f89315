package generation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

func TestLoadPrompts_BuiltIn(t *testing.T) {
	p, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("LoadPrompts() error = %v", err)
	}

	tests := []struct {
		kind string
		data map[string]any
		want []string
	}{
		{
			kind: KindCourseOutline,
			data: map[string]any{"Topic": "Linear Algebra", "Level": progression.LevelBeginner, "SourceMaterial": "", "MinModules": 10},
			want: []string{`"Linear Algebra"`, "beginner", "at least 10 modules"},
		},
		{
			kind: KindPathOutline,
			data: map[string]any{"Goal": "Become a data engineer", "Level": progression.LevelAdvanced, "MinCourses": 10, "MinModules": 10},
			want: []string{"Become a data engineer", "advanced", "at least 10 courses"},
		},
		{
			kind: KindModuleContent,
			data: map[string]any{"CourseTitle": "Algebra", "ModuleTitle": "Vectors", "MinQuestions": 5, "MaxQuestions": 7},
			want: []string{`"Vectors"`, `"Algebra"`, "between 5 and 7"},
		},
		{
			kind: KindMockTest,
			data: map[string]any{
				"CourseTitle":  "Algebra",
				"Modules":      []progression.ModuleOutline{{Title: "Vectors", Objective: "Add vectors"}, {Title: "Matrices"}},
				"MinQuestions": 10,
			},
			want: []string{"1. Vectors: Add vectors", "2. Matrices", "at least 10 questions"},
		},
		{
			kind: KindClarify,
			data: map[string]any{"Question": "Why?", "Context": "Vectors have direction."},
			want: []string{"Question: Why?", "Vectors have direction."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			system, user, err := p.Render(tt.kind, tt.data)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if system == "" {
				t.Error("system prompt is empty")
			}
			for _, w := range tt.want {
				if !strings.Contains(user, w) {
					t.Errorf("user prompt missing %q:\n%s", w, user)
				}
			}
		})
	}
}

func TestLoadPrompts_SourceMaterialSection(t *testing.T) {
	p, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("LoadPrompts() error = %v", err)
	}

	data := map[string]any{"Topic": "Go", "Level": progression.LevelBeginner, "MinModules": 10}

	data["SourceMaterial"] = ""
	_, without, _ := p.Render(KindCourseOutline, data)
	if strings.Contains(without, "<source>") {
		t.Error("source block rendered without source material")
	}

	data["SourceMaterial"] = "Chapter 1: Packages"
	_, with, _ := p.Render(KindCourseOutline, data)
	if !strings.Contains(with, "<source>\nChapter 1: Packages\n</source>") {
		t.Errorf("source block missing:\n%s", with)
	}
}

func TestLoadPrompts_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	override := "clarify:\n  system: Be terse.\n  user: \"Q: {{.Question}}\"\n"
	if err := os.WriteFile(path, []byte(override), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts() error = %v", err)
	}

	system, user, err := p.Render(KindClarify, map[string]any{"Question": "why"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if system != "Be terse." || user != "Q: why" {
		t.Errorf("Render() = %q, %q", system, user)
	}

	// Kinds not in the override keep the built-in prompt.
	if _, _, err := p.Render(KindModuleContent, map[string]any{"CourseTitle": "x", "ModuleTitle": "y"}); err != nil {
		t.Errorf("built-in module prompt lost: %v", err)
	}
}

func TestLoadPrompts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown kind", "lesson_plan:\n  user: hi\n"},
		{"empty user prompt", "clarify:\n  system: hi\n"},
		{"bad template", "clarify:\n  user: \"{{.Question\"\n"},
		{"not yaml", "clarify: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prompts.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadPrompts(path); err == nil {
				t.Error("LoadPrompts() should fail")
			}
		})
	}

	if _, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadPrompts(missing file) should fail")
	}
}
