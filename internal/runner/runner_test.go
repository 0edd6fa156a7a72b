package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/specforge/internal/logging"
)

func TestRun_Success(t *testing.T) {
	r := New(Config{}, nil)

	res, err := r.Run(context.Background(), "echo out; echo err 1>&2")
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, "err\nout\n", res.Combined())
	assert.False(t, res.TimedOut)
}

func TestRun_NonZeroExit(t *testing.T) {
	r := New(Config{}, nil)

	res, err := r.Run(context.Background(), "echo failing test 1>&2; exit 3")
	require.NoError(t, err)

	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "failing test")
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("here"), 0o644))
	r := New(Config{Dir: dir}, nil)

	res, err := r.Run(context.Background(), "cat marker.txt")
	require.NoError(t, err)
	assert.Equal(t, "here", res.Stdout)
}

func TestRun_Timeout(t *testing.T) {
	tl := logging.NewTestLogger()
	r := New(Config{Timeout: 200 * time.Millisecond}, tl.Logger)

	res, err := r.Run(context.Background(), "sleep 5")
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.Equal(t, TimeoutExitCode, res.ExitCode)
	assert.False(t, res.Success())
	assert.Less(t, res.Duration, 5*time.Second)
	tl.AssertLogged(t, zapcore.WarnLevel, "command timed out")
}

func TestRun_StartFailure(t *testing.T) {
	r := New(Config{Shell: "/nonexistent/shell"}, nil)

	_, err := r.Run(context.Background(), "true")
	assert.Error(t, err)
}

func TestRun_MissingCommandIsExitCode(t *testing.T) {
	r := New(Config{}, nil)

	res, err := r.Run(context.Background(), "definitely-not-a-command-xyz")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("def"))
	assert.Equal(t, "bcdef", b.String())

	_, _ = b.Write([]byte(strings.Repeat("x", 10) + "12345"))
	assert.Equal(t, "12345", b.String())
	assert.Equal(t, 16, b.dropped)
}
