package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specforge/internal/plan"
	"github.com/fyrsmithlabs/specforge/internal/tracker"
)

func TestExtractSelector(t *testing.T) {
	tests := []struct {
		comment string
		want    string
		ok      bool
	}{
		{"/implement 7", "7", true},
		{"please /implement   12 next", "12", true},
		{"/implement 3 and /implement 4", "3", true},
		{"/implement\n5", "5", true},
		{"/implement", "", false},
		{"/implement seven", "", false},
		{"implement 7", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			got, ok := ExtractSelector(tt.comment)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTrigger(t *testing.T) {
	planBody, err := plan.Render(&plan.Plan{Tasks: []plan.Task{{Title: "One"}}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		comment  string
		selector string
		ok       bool
	}{
		{"bare command", "/implement", "", true},
		{"with task", "/implement 7", "7", true},
		{"indented on later line", "Thanks!\n  /implement 2\n", "2", true},
		{"trailing words", "/implement 3 please", "3", true},
		{"mid-sentence", "try /implement 2", "", false},
		{"longer word", "/implementation notes", "", false},
		{"own plan comment", planBody, "", false},
		{"own spec comment", SpecMarker + "\n/implement 1", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selector, ok := ParseTrigger(tt.comment)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.selector, selector)
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("deploy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "implement-subtask")
}

func TestResolveSpec(t *testing.T) {
	issue := &tracker.Issue{Number: 1, Body: "  issue body  "}

	spec, fromComment := ResolveSpec(issue, nil)
	assert.Equal(t, "issue body", spec)
	assert.False(t, fromComment)

	comments := []tracker.Comment{
		{Body: SpecMarker + "\nfirst spec"},
		{Body: "a human reply"},
		{Body: SpecMarker + "\nrevised spec"},
		{Body: "another reply"},
	}
	spec, fromComment = ResolveSpec(issue, comments)
	assert.Equal(t, "revised spec", spec)
	assert.True(t, fromComment)
}

func TestLatestPlan(t *testing.T) {
	_, err := LatestPlan([]tracker.Comment{{Body: "no plan here"}})
	assert.ErrorIs(t, err, plan.ErrNoPlan)

	body, err := plan.Render(&plan.Plan{Tasks: []plan.Task{{Title: "Parser"}, {Title: "Writer"}}})
	require.NoError(t, err)

	p, err := LatestPlan([]tracker.Comment{{Body: body}, {Body: "thanks"}})
	require.NoError(t, err)
	require.Len(t, p.Tasks, 2)
	assert.Equal(t, "Writer", p.Tasks[1].Title)
}

func TestResolveFocus(t *testing.T) {
	p := &plan.Plan{Tasks: []plan.Task{
		{Title: "Parser", Body: "Split on markers."},
		{Title: "Writer"},
	}}

	focus, err := ResolveFocus("", p)
	require.NoError(t, err)
	assert.Empty(t, focus)

	focus, err = ResolveFocus("1", p)
	require.NoError(t, err)
	assert.Equal(t, "Task 1: Parser\n\nSplit on markers.", focus)

	focus, err = ResolveFocus("5", p)
	require.NoError(t, err)
	assert.Equal(t, "Implement only part 5 of the specification.", focus)

	focus, err = ResolveFocus("2", nil)
	require.NoError(t, err)
	assert.Equal(t, "Implement only part 2 of the specification.", focus)

	_, err = ResolveFocus("0", p)
	assert.Error(t, err)
}
