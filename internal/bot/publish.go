package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/orchestrator"
	"github.com/fyrsmithlabs/specforge/internal/tracker"
)

// maxCommentErrorChars bounds the error excerpt quoted in a summary
// comment. The full tail stays in the report file.
const maxCommentErrorChars = 2000

// Publisher persists a run report and announces it on the issue.
type Publisher struct {
	fs      afero.Fs
	tracker tracker.Tracker
	path    string
	html    bool
	logger  *logging.Logger
}

// NewPublisher writes reports to path on fs. With html set, an HTML
// rendering is written next to it.
func NewPublisher(fs afero.Fs, t tracker.Tracker, path string, html bool, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{fs: fs, tracker: t, path: path, html: html, logger: logger.Named("publish")}
}

// Paths lists the files WriteReport produces.
func (p *Publisher) Paths() []string {
	if !p.html {
		return []string{p.path}
	}
	return []string{p.path, strings.TrimSuffix(p.path, filepath.Ext(p.path)) + ".html"}
}

// WriteReport writes the Markdown report, and the HTML rendering when
// enabled. It returns the paths written.
func (p *Publisher) WriteReport(report *orchestrator.Report) ([]string, error) {
	if dir := filepath.Dir(p.path); dir != "." {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := afero.WriteFile(p.fs, p.path, []byte(report.Markdown()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	written := []string{p.path}

	if p.html {
		body, err := report.HTML()
		if err != nil {
			return written, err
		}
		htmlPath := p.Paths()[1]
		if err := afero.WriteFile(p.fs, htmlPath, []byte(body), 0o644); err != nil {
			return written, fmt.Errorf("failed to write html report: %w", err)
		}
		written = append(written, htmlPath)
	}
	return written, nil
}

// Publish writes the report and posts the summary comment, returning the
// comment or nil when there is no issue to post to. Both failures come back
// as *orchestrator.StepError: a report write failure is critical, a comment
// failure is high severity and may be tolerated by the caller.
func (p *Publisher) Publish(ctx context.Context, issue int, report *orchestrator.Report) (*tracker.Comment, error) {
	paths, err := p.WriteReport(report)
	if err != nil {
		return nil, orchestrator.NewStepError("write report", orchestrator.SeverityCritical, err, p.path)
	}
	p.logger.Info(ctx, "report written", zap.Strings("paths", paths), zap.String("status", report.Status()))

	if p.tracker == nil || issue <= 0 {
		return nil, nil
	}
	c, err := p.tracker.CreateComment(ctx, issue, SummaryComment(report))
	if err != nil {
		p.logger.Error(ctx, "failed to post summary comment", zap.Error(err))
		return nil, orchestrator.NewStepError("post summary comment", orchestrator.SeverityHigh, err, fmt.Sprintf("issue #%d", issue))
	}
	return c, nil
}

// SummaryComment renders the issue comment announcing a finished run.
func SummaryComment(r *orchestrator.Report) string {
	var b strings.Builder
	b.WriteString(SummaryMarker)
	b.WriteString("\n")

	switch r.Status() {
	case "SUCCESS":
		fmt.Fprintf(&b, "### ✅ Tests pass after %d of %d attempts\n", r.Attempts, r.MaxRetries)
	case "FAILED":
		fmt.Fprintf(&b, "### ❌ Tests still failing after %d attempts\n", r.Attempts)
	default:
		b.WriteString("### ⚠️ Run stopped early\n")
	}
	if r.Selector != "" {
		fmt.Fprintf(&b, "\nSub-task: **%s**\n", r.Selector)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\nError: `%s`\n", strings.ReplaceAll(r.Error, "`", "'"))
	}

	var files []string
	for _, g := range r.Generations {
		files = append(files, g.Written...)
	}
	if n := len(dedupe(files)); n > 0 {
		fmt.Fprintf(&b, "\nGenerated %d file(s) across %d generation step(s).\n", n, len(r.Generations))
	}

	if r.LastError != "" {
		b.WriteString("\n<details><summary>Last error output</summary>\n\n")
		b.WriteString("```\n")
		b.WriteString(strings.ReplaceAll(orchestrator.Tail(r.LastError, maxCommentErrorChars), "```", "'''"))
		b.WriteString("\n```\n\n</details>\n")
	}
	return b.String()
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
