package fileset

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_WriteCreatesParents(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/work")

	content := "  leading spaces\n\ttabs\ntrailing newline\n"
	require.NoError(t, w.Write("deep/nested/dir/file.txt", content))

	got, err := afero.ReadFile(fs, "/work/deep/nested/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestWriter_Overwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/work")

	require.NoError(t, w.Write("a.txt", "a much longer first version"))
	require.NoError(t, w.Write("a.txt", "short"))

	got, err := afero.ReadFile(fs, "/work/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

func TestWriter_StaysUnderRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/work")

	require.NoError(t, w.Write("../escape.txt", "x"))

	exists, err := afero.Exists(fs, "/escape.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = afero.Exists(fs, "/work/escape.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWriter_WriteAllStopsAtFirstError(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()
	require.NoError(t, afero.WriteFile(fs, dir+"/blocker", []byte("file"), 0o644))
	w := NewWriter(fs, dir)

	written, err := w.WriteAll([]File{
		{Path: "ok.txt", Content: "1"},
		{Path: "blocker/child.txt", Content: "2"},
		{Path: "never.txt", Content: "3"},
	})

	require.Error(t, err)
	assert.Equal(t, []string{"ok.txt"}, written)
	exists, _ := afero.Exists(fs, dir+"/never.txt")
	assert.False(t, exists)
}

func TestWriter_ReadOnlyFsFails(t *testing.T) {
	w := NewWriter(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/work")
	assert.Error(t, w.Write("a.txt", "x"))
}

func TestWriter_OSRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewOSWriter(dir)

	res := Parse("### FILE: pkg/x.go\n```go\npackage pkg\n```\n", ParseOptions{})
	written, err := w.WriteAll(res.Files)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/x.go"}, written)

	got, err := afero.ReadFile(afero.NewOsFs(), dir+"/pkg/x.go")
	require.NoError(t, err)
	assert.Equal(t, "package pkg", string(got))
}
