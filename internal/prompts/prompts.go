// Package prompts renders the instructions sent to the generation model.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"unicode/utf8"

	"github.com/Masterminds/sprig/v3"

	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Issue is the subset of an issue a spec prompt needs.
type Issue struct {
	Number int
	Title  string
	Body   string
}

// Builder renders prompts from the embedded templates.
type Builder struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Builder, error) {
	tmpl, err := template.New("prompts").
		Funcs(sprig.TxtFuncMap()).
		Funcs(template.FuncMap{
			"fence": orchestrator.Fence,
			"chars": utf8.RuneCountInString,
		}).
		ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}
	return &Builder{tmpl: tmpl}, nil
}

// MustNew is New that panics on error. The templates are embedded, so an
// error here is a build defect.
func MustNew() *Builder {
	b, err := New()
	if err != nil {
		panic(err)
	}
	return b
}

type data struct {
	Issue     Issue
	Spec      string
	Focus     string
	ErrorTail string
}

func (b *Builder) render(name string, d data) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, name, d); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Spec asks for a specification of issue.
func (b *Builder) Spec(issue Issue) (string, error) {
	return b.render("spec.tmpl", data{Issue: issue})
}

// Plan asks for a structured decomposition of spec.
func (b *Builder) Plan(spec string) (string, error) {
	return b.render("plan.tmpl", data{Spec: spec})
}

// Stub asks for the project skeleton.
func (b *Builder) Stub(spec, focus string) (string, error) {
	return b.render("stub.tmpl", data{Spec: spec, Focus: focus})
}

// Tests asks for tests and implementation.
func (b *Builder) Tests(spec, focus string) (string, error) {
	return b.render("tests.tmpl", data{Spec: spec, Focus: focus})
}

// Fix asks for a correction given the tail of the failure output.
func (b *Builder) Fix(spec, errorTail, focus string) (string, error) {
	return b.render("fix.tmpl", data{Spec: spec, Focus: focus, ErrorTail: errorTail})
}
