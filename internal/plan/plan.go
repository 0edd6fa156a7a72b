// Package plan decodes and renders the structured decomposition of an epic
// into sub-tasks.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Marker identifies a plan comment.
const Marker = "<!-- specforge:plan -->"

var (
	// ErrNoPlan means the text contains nothing that looks like a plan.
	ErrNoPlan = errors.New("no plan found")
	// ErrMalformedPlan means a plan block was found but could not be decoded.
	ErrMalformedPlan = errors.New("malformed plan")
)

// blockPattern finds fenced json or yaml blocks.
var blockPattern = regexp.MustCompile("(?s)```(?:json|yaml|yml)[ \\t]*\\r?\\n(.*?)\\r?\\n?```")

// Task is one unit of work.
type Task struct {
	Title  string   `json:"title" yaml:"title"`
	Body   string   `json:"body,omitempty" yaml:"body"`
	Labels []string `json:"labels,omitempty" yaml:"labels"`
}

// Plan is an ordered list of tasks.
type Plan struct {
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// Extract decodes the first fenced json or yaml block in text, or text
// itself when it has no such block. Both {"tasks": [...]} and a bare list
// of tasks are accepted.
func Extract(text string) (*Plan, error) {
	body := strings.TrimSpace(text)
	if m := blockPattern.FindStringSubmatch(text); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if body == "" {
		return nil, ErrNoPlan
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(body), &node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return nil, ErrNoPlan
	}

	var p Plan
	root := node.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		if err := root.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
		}
	case yaml.SequenceNode:
		if err := root.Decode(&p.Tasks); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
		}
	default:
		return nil, ErrNoPlan
	}

	if len(p.Tasks) == 0 {
		return nil, ErrNoPlan
	}
	for i := range p.Tasks {
		p.Tasks[i].Title = strings.TrimSpace(p.Tasks[i].Title)
		if p.Tasks[i].Title == "" {
			return nil, fmt.Errorf("%w: task %d has no title", ErrMalformedPlan, i+1)
		}
	}
	return &p, nil
}

// Task returns the n-th task, counting from 1.
func (p *Plan) Task(n int) (Task, bool) {
	if p == nil || n < 1 || n > len(p.Tasks) {
		return Task{}, false
	}
	return p.Tasks[n-1], true
}

// Focus renders task n as the text a sub-task prompt narrows to.
func (t Task) Focus(n int) string {
	if t.Body == "" {
		return fmt.Sprintf("Task %d: %s", n, t.Title)
	}
	return fmt.Sprintf("Task %d: %s\n\n%s", n, t.Title, strings.TrimSpace(t.Body))
}

// Render produces the comment body: marker, a readable list and the plan
// as fenced JSON so a later run can Extract it.
func Render(p *Plan) (string, error) {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode plan: %w", err)
	}

	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString("\n## Implementation plan\n\n")
	for i, t := range p.Tasks {
		fmt.Fprintf(&b, "%d. **%s**", i+1, t.Title)
		if len(t.Labels) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(t.Labels, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nComment `/implement <n>` to implement a single task.\n\n")
	b.WriteString("<details><summary>Plan data</summary>\n\n```json\n")
	b.Write(raw)
	b.WriteString("\n```\n\n</details>\n")
	return b.String(), nil
}
