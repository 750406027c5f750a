// Package prompt renders the stage prompt templates baked into the binary.
// Templates live under templates/ as YAML documents and are parsed once at
// construction. Rendering is permissive: a field that is not supplied renders
// as an empty string.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var embeddedTemplates embed.FS

// ID names a stage template.
type ID string

const (
	Canonicalize ID = "canonicalize"
	Safety       ID = "safety"
	QuizForm     ID = "quiz_form"
	QuizSummary  ID = "quiz_summary"
	Plan21       ID = "plan21"
	Coach        ID = "coach"
)

// Field names referenced by the templates.
const (
	FieldHabitDescription = "habit_description"
	FieldUserText         = "user_text"
	FieldQuizFormJSON     = "quiz_form_json"
	FieldUserQuizAnswers  = "user_quiz_answers"
	FieldQuizSummaryJSON  = "quiz_summary_json"
	FieldCategoryGuidance = "category_guidance"
	FieldPlan21JSON       = "plan21_json"
	FieldHistoryText      = "history_text"
	FieldUserMessage      = "user_message"
)

// Fields are the values substituted into a template.
type Fields map[string]string

// Prompt is a rendered template.
type Prompt struct {
	ID     ID
	System string
	User   string
}

// templateDoc is the on-disk shape of a template file.
type templateDoc struct {
	ID          ID     `yaml:"id"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
	Template    string `yaml:"template"`
}

type compiled struct {
	system string
	body   *template.Template
}

// Compiler renders stage templates. It is immutable after construction and
// safe for concurrent use.
type Compiler struct {
	templates map[ID]compiled
}

// NewCompiler parses the embedded templates.
func NewCompiler() (*Compiler, error) {
	return NewCompilerFS(embeddedTemplates, "templates")
}

// NewCompilerFS parses every *.yaml file in dir of fsys.
func NewCompilerFS(fsys fs.FS, dir string) (*Compiler, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}

	c := &Compiler{templates: make(map[ID]compiled, len(entries))}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", e.Name(), err)
		}
		var doc templateDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", e.Name(), err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("template %s has no id", e.Name())
		}
		if _, dup := c.templates[doc.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", doc.ID)
		}
		body, err := template.New(string(doc.ID)).Option("missingkey=zero").Parse(doc.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template %s: %w", doc.ID, err)
		}
		c.templates[doc.ID] = compiled{system: strings.TrimSpace(doc.System), body: body}
	}
	return c, nil
}

// MustCompiler is NewCompiler that panics on error. The embedded templates are
// covered by tests, so this only fails on a broken build.
func MustCompiler() *Compiler {
	c, err := NewCompiler()
	if err != nil {
		panic(err)
	}
	return c
}

// IDs lists the loaded template ids in sorted order.
func (c *Compiler) IDs() []ID {
	ids := make([]ID, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Render fills template id with fields. Missing fields render empty.
func (c *Compiler) Render(id ID, fields Fields) (Prompt, error) {
	t, ok := c.templates[id]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown template %q", id)
	}
	if fields == nil {
		fields = Fields{}
	}
	var buf bytes.Buffer
	if err := t.body.Execute(&buf, map[string]string(fields)); err != nil {
		return Prompt{}, fmt.Errorf("failed to render template %s: %w", id, err)
	}
	return Prompt{ID: id, System: t.system, User: strings.TrimSpace(buf.String())}, nil
}
