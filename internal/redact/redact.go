// Package redact removes credentials from text before it leaves the process:
// test output embedded in prompts, report files and issue comments.
package redact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Line   int
	Secret string
}

// Redactor scrubs text with the gitleaks default rule set plus a list of
// literal values known to be sensitive.
type Redactor struct {
	detector *detect.Detector
	literals []string
}

// New builds a Redactor. Empty literals are ignored.
func New(literals ...string) (*Redactor, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load gitleaks rules: %w", err)
	}
	r := &Redactor{detector: detector}
	for _, l := range literals {
		if strings.TrimSpace(l) != "" {
			r.literals = append(r.literals, l)
		}
	}
	// Longest first so a literal containing another is replaced whole.
	sort.Slice(r.literals, func(i, j int) bool { return len(r.literals[i]) > len(r.literals[j]) })
	return r, nil
}

// Detect reports secrets found by the gitleaks rules.
func (r *Redactor) Detect(content string) []Finding {
	found := r.detector.DetectString(content)
	out := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		out = append(out, Finding{RuleID: f.RuleID, Line: f.StartLine, Secret: f.Secret})
	}
	return out
}

// Redact returns content with every literal and detected secret replaced by
// a [REDACTED:<rule>] marker, and the number of replacements made.
func (r *Redactor) Redact(content string) (string, int) {
	if r == nil || content == "" {
		return content, 0
	}
	count := 0
	for _, l := range r.literals {
		if n := strings.Count(content, l); n > 0 {
			content = strings.ReplaceAll(content, l, "[REDACTED:credential]")
			count += n
		}
	}

	findings := r.Detect(content)
	sort.Slice(findings, func(i, j int) bool { return len(findings[i].Secret) > len(findings[j].Secret) })
	for _, f := range findings {
		if n := strings.Count(content, f.Secret); n > 0 {
			content = strings.ReplaceAll(content, f.Secret, "[REDACTED:"+f.RuleID+"]")
			count += n
		}
	}
	return content, count
}
