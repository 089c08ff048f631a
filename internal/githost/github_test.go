package githost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/reviewer/internal/diff"
)

func testHost(t *testing.T, handler http.Handler) *GitHubHost {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	host, err := NewGitHubHost(StaticToken("test-token"), server.URL)
	require.NoError(t, err)
	return host
}

func TestListChangedFilesPaginates(t *testing.T) {
	unit := Unit{Owner: "octo", Repo: "widgets", Number: 7}

	var mux http.ServeMux
	mux.HandleFunc("/api/v3/repos/octo/widgets/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(
				`<http://%s/api/v3/repos/octo/widgets/pulls/7/files?page=2>; rel="next"`,
				r.Host,
			))
			fmt.Fprint(w, `[{"filename": "a.go", "status": "modified", "patch": "@@ -1 +1 @@", "additions": 1, "deletions": 1}]`)
			return
		}
		fmt.Fprint(w, `[{"filename": "b.go", "status": "renamed", "previous_filename": "old.go"}]`)
	})

	host := testHost(t, &mux)
	files, err := host.ListChangedFiles(context.Background(), unit)
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "a.go", files[0].Path)
	assert.Equal(t, diff.ChangeModified, files[0].Change)
	assert.Equal(t, "@@ -1 +1 @@", files[0].Patch)
	assert.Equal(t, "b.go", files[1].Path)
	assert.Equal(t, "old.go", files[1].PreviousPath)
	assert.Equal(t, diff.ChangeRenamed, files[1].Change)
}

func TestCreateReviewSendsPositions(t *testing.T) {
	unit := Unit{Owner: "octo", Repo: "widgets", Number: 7}

	var got map[string]any
	var mux http.ServeMux
	mux.HandleFunc("/api/v3/repos/octo/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": 1}`)
	})

	host := testHost(t, &mux)
	err := host.CreateReview(context.Background(), unit, Review{
		Revision: "abc123",
		Body:     "One issue found.",
		Event:    EventRequestChanges,
		Comments: []InlineComment{
			{Path: "a.go", Position: 2, Body: "nil check missing"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "abc123", got["commit_id"])
	assert.Equal(t, "REQUEST_CHANGES", got["event"])
	comments, ok := got["comments"].([]any)
	require.True(t, ok)
	require.Len(t, comments, 1)
	comment, ok := comments[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a.go", comment["path"])
	assert.Equal(t, float64(2), comment["position"])
}

func TestPostComment(t *testing.T) {
	unit := Unit{Owner: "octo", Repo: "widgets", Number: 7}

	var got map[string]any
	var mux http.ServeMux
	mux.HandleFunc("/api/v3/repos/octo/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 1}`)
	})

	host := testHost(t, &mux)
	err := host.PostComment(context.Background(), unit, "Review skipped: change too large.")
	require.NoError(t, err)
	assert.Equal(t, "Review skipped: change too large.", got["body"])
}

func TestListChangedFilesErrorClassifies(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/api/v3/repos/octo/widgets/pulls/7/files", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	})

	host := testHost(t, &mux)
	_, err := host.ListChangedFiles(context.Background(), Unit{Owner: "octo", Repo: "widgets", Number: 7})
	require.Error(t, err)
	assert.Equal(t, ClassAuth, Classify(err))
}

func TestChangeKind(t *testing.T) {
	assert.Equal(t, diff.ChangeAdded, changeKind("added"))
	assert.Equal(t, diff.ChangeAdded, changeKind("copied"))
	assert.Equal(t, diff.ChangeRemoved, changeKind("removed"))
	assert.Equal(t, diff.ChangeRenamed, changeKind("renamed"))
	assert.Equal(t, diff.ChangeModified, changeKind("modified"))
	assert.Equal(t, diff.ChangeModified, changeKind("changed"))
}

func TestGetUnifiedDiff(t *testing.T) {
	unit := Unit{Owner: "octo", Repo: "widgets", Number: 7}
	blob := "diff --git a/a.go b/a.go\n@@ -1 +1 @@\n-old\n+new\n"

	var mux http.ServeMux
	mux.HandleFunc("/api/v3/repos/octo/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "diff")
		fmt.Fprint(w, blob)
	})

	host := testHost(t, &mux)
	raw, err := host.GetUnifiedDiff(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, blob, raw)
}
