package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Mode selects what a run does.
type Mode string

const (
	ModeSpec             Mode = "spec"
	ModePlan             Mode = "plan"
	ModeCreateIssues     Mode = "create-issues"
	ModeImplement        Mode = "implement"
	ModeImplementSubtask Mode = "implement-subtask"
)

// Modes lists every mode in the order shown in help output.
func Modes() []Mode {
	return []Mode{ModeSpec, ModeImplement, ModePlan, ModeCreateIssues, ModeImplementSubtask}
}

// ParseMode validates s against the closed set of modes.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	names := make([]string, 0, len(Modes()))
	for _, m := range Modes() {
		names = append(names, string(m))
	}
	return "", fmt.Errorf("unknown mode %q (want one of %s)", s, strings.Join(names, ", "))
}

// selectorPattern matches the sub-task trigger in a comment.
var selectorPattern = regexp.MustCompile(`/implement\s+(\d+)`)

// ExtractSelector returns the task number from the first "/implement <n>"
// in comment, as text. ok is false when there is none.
func ExtractSelector(comment string) (selector string, ok bool) {
	m := selectorPattern.FindStringSubmatch(comment)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// triggerPattern matches a line that starts with the implement command,
// optionally followed by a task number.
var triggerPattern = regexp.MustCompile(`(?m)^[ \t]*/implement(?:[ \t]+(\d+))?(?:[ \t]|$)`)

// ParseTrigger reports whether comment asks for an implementation run: a
// human comment with a line starting with "/implement". Comments carrying
// one of specforge's own markers never trigger, since they only mention the
// command. selector is the task number, if one was given.
func ParseTrigger(comment string) (selector string, ok bool) {
	if IsOwnComment(comment) {
		return "", false
	}
	m := triggerPattern.FindStringSubmatch(comment)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// selectorNumber converts a selector to its task number.
func selectorNumber(selector string) (int, error) {
	n, err := strconv.Atoi(selector)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid task selector %q", selector)
	}
	return n, nil
}
