package fileset

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Marker introduces every file block in a generated response.
const Marker = "### FILE: "

// DefaultMaxContentBytes bounds a single parsed file.
const DefaultMaxContentBytes = 1 << 20

// fenceOpen matches a code fence opener at the very start of a block, with
// an optional language tag. The backtick run is captured so only a closing
// line of the same run ends the block.
var fenceOpen = regexp.MustCompile("^\\s*(`{3,})[A-Za-z0-9_+.#-]*[ \\t]*\\r?\\n")

// File is one parsed path/content pair.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Rejection records a block that failed validation.
type Rejection struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the outcome of Parse. Files keep source order.
type Result struct {
	Files    []File      `json:"files"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Paths returns the accepted file paths in order.
func (r Result) Paths() []string {
	out := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		out = append(out, f.Path)
	}
	return out
}

// ParseOptions tunes validation.
type ParseOptions struct {
	// MaxContentBytes rejects larger blocks. Zero means DefaultMaxContentBytes.
	MaxContentBytes int
}

// Parse splits text on Marker and returns every file block found.
// Text before the first marker is ignored. Text with no marker yields an
// empty Result.
func Parse(text string, opts ParseOptions) Result {
	limit := opts.MaxContentBytes
	if limit <= 0 {
		limit = DefaultMaxContentBytes
	}

	var res Result
	segments := strings.Split(text, Marker)
	for _, seg := range segments[1:] {
		rawPath, body, _ := strings.Cut(seg, "\n")
		p := cleanPath(rawPath)
		content := stripFences(body)

		if reason := validate(p, content, limit); reason != "" {
			res.Rejected = append(res.Rejected, Rejection{Path: p, Reason: reason})
			continue
		}
		res.Files = append(res.Files, File{Path: p, Content: content})
	}
	return res
}

// cleanPath trims whitespace and the decoration models tend to add around
// the path (`path`, "path", **path**).
func cleanPath(raw string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "`'\"*"))
}

// stripFences removes a fence wrapping the whole block. The closing fence
// must be the last non-blank line and repeat the opener's backtick run
// exactly; unfenced blocks are returned as written.
func stripFences(body string) string {
	if m := fenceOpen.FindStringSubmatchIndex(body); m != nil {
		run := body[m[2]:m[3]]
		rest := body[m[1]:]
		trimmed := strings.TrimRight(rest, " \t\r\n")
		last := trimmed
		if i := strings.LastIndex(trimmed, "\n"); i >= 0 {
			last = trimmed[i+1:]
		}
		if strings.TrimSpace(last) == run {
			rest = trimmed[:len(trimmed)-len(last)]
		}
		body = rest
	}
	// Blank lines separating one block from the next marker are not content.
	return strings.TrimRight(body, "\r\n")
}

func validate(p, content string, limit int) string {
	switch {
	case p == "":
		return "empty path"
	case strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) || hasDriveLetter(p):
		return "absolute path"
	case escapesRoot(p):
		return "path escapes the working directory"
	case len(content) > limit:
		return fmt.Sprintf("content too large: %d bytes (max %d)", len(content), limit)
	}
	return ""
}

func hasDriveLetter(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}

func escapesRoot(p string) bool {
	clean := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	return clean == ".." || strings.HasPrefix(clean, "../")
}
