package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specforge/internal/config"
)

func newTestGitHub(t *testing.T, mux *http.ServeMux) *GitHub {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g, err := NewGitHub(context.Background(), config.Secret("test-token"), "acme/widgets",
		WithBaseURL(srv.URL),
		WithRetry(RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}),
	)
	require.NoError(t, err)
	return g
}

func TestParseRepository(t *testing.T) {
	owner, name, err := ParseRepository("acme/widgets.go")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets.go", name)

	for _, bad := range []string{"", "acme", "acme/", "/widgets", "acme/wid gets", "acme/widgets/extra", "../x", "acme/.."} {
		_, _, err := ParseRepository(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewGitHub_RequiresToken(t *testing.T) {
	_, err := NewGitHub(context.Background(), config.Secret(""), "acme/widgets")
	assert.Error(t, err)
}

func TestGitHub_GetIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"number":42,"title":"Calculator","body":"Add numbers","html_url":"https://github.com/acme/widgets/issues/42"}`)
	})
	g := newTestGitHub(t, mux)

	is, err := g.GetIssue(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, &Issue{Number: 42, Title: "Calculator", Body: "Add numbers", URL: "https://github.com/acme/widgets/issues/42"}, is)
}

func TestGitHub_ListCommentsPaginates(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":3,"body":"third","user":{"login":"bot"}}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/issues/7/comments?page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `[{"id":1,"body":"first","user":{"login":"alice"}},{"id":2,"body":"second"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	g, err := NewGitHub(context.Background(), config.Secret("t"), "acme/widgets", WithBaseURL(srv.URL))
	require.NoError(t, err)

	comments, err := g.ListComments(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "alice", comments[0].Author)
	assert.Equal(t, "", comments[1].Author)
	assert.Equal(t, "third", comments[2].Body)
}

func TestGitHub_CreateCommentRetriesServerErrors(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/5/comments", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":9,"body":%q,"html_url":"https://github.com/c/9"}`, body["body"])
	})
	g := newTestGitHub(t, mux)

	c, err := g.CreateComment(context.Background(), 5, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(9), c.ID)
	assert.Equal(t, "hello", c.Body)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGitHub_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues/404", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	g := newTestGitHub(t, mux)

	_, err := g.GetIssue(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGitHub_CreateIssueAndEdit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req struct {
			Title  string   `json:"title"`
			Labels []string `json:"labels"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"specforge"}, req.Labels)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"number":11,"title":%q}`, req.Title)
	})
	mux.HandleFunc("/repos/acme/widgets/issues/10", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "new body", req["body"])
		fmt.Fprint(w, `{"number":10}`)
	})
	g := newTestGitHub(t, mux)

	is, err := g.CreateIssue(context.Background(), "Parser", "details", []string{"specforge"})
	require.NoError(t, err)
	assert.Equal(t, 11, is.Number)
	assert.Equal(t, "Parser", is.Title)

	require.NoError(t, g.EditIssueBody(context.Background(), 10, "new body"))
}
