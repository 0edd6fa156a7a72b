package bot

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/specforge/internal/plan"
	"github.com/fyrsmithlabs/specforge/internal/tracker"
)

const (
	// SpecMarker tags a comment holding a generated specification.
	SpecMarker = "<!-- specforge:spec -->"
	// SummaryMarker tags an implementation summary comment.
	SummaryMarker = "<!-- specforge:summary -->"
	// SubIssuesMarker tags the checklist appended to an epic.
	SubIssuesMarker = "<!-- specforge:sub-issues -->"
)

// IsOwnComment reports whether body was posted by specforge.
func IsOwnComment(body string) bool {
	for _, m := range []string{SpecMarker, SummaryMarker, SubIssuesMarker, plan.Marker} {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// latestMarked returns the newest comment containing marker. Comments are
// assumed to be in creation order, as the tracker lists them.
func latestMarked(comments []tracker.Comment, marker string) (tracker.Comment, bool) {
	for i := len(comments) - 1; i >= 0; i-- {
		if strings.Contains(comments[i].Body, marker) {
			return comments[i], true
		}
	}
	return tracker.Comment{}, false
}

// ResolveSpec returns the latest specification comment, without its marker,
// or the issue body when no specification was posted.
func ResolveSpec(issue *tracker.Issue, comments []tracker.Comment) (spec string, fromComment bool) {
	if c, ok := latestMarked(comments, SpecMarker); ok {
		return strings.TrimSpace(strings.Replace(c.Body, SpecMarker, "", 1)), true
	}
	if issue == nil {
		return "", false
	}
	return strings.TrimSpace(issue.Body), false
}

// LatestPlan decodes the newest plan comment. It returns plan.ErrNoPlan
// when no comment carries the plan marker.
func LatestPlan(comments []tracker.Comment) (*plan.Plan, error) {
	c, ok := latestMarked(comments, plan.Marker)
	if !ok {
		return nil, plan.ErrNoPlan
	}
	return plan.Extract(c.Body)
}

// ResolveFocus narrows a run to one task. With a plan that has task n the
// focus is that task; otherwise it names part n of the specification. An
// empty selector means no focus.
func ResolveFocus(selector string, p *plan.Plan) (string, error) {
	if selector == "" {
		return "", nil
	}
	n, err := selectorNumber(selector)
	if err != nil {
		return "", err
	}
	if task, ok := p.Task(n); ok {
		return task.Focus(n), nil
	}
	return partFocus(n), nil
}

func partFocus(n int) string {
	return fmt.Sprintf("Implement only part %d of the specification.", n)
}
