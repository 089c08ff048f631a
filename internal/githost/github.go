package githost

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v68/github"
	"github.com/pitabwire/util"

	"github.com/antinvestor/reviewer/internal/diff"
)

const listFilesPageSize = 100

// TokenSource supplies the bearer token for host API calls and can be
// told to discard a token the host rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticToken is a TokenSource for a fixed personal access token.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) { return string(s), nil }
func (s StaticToken) Invalidate()                             {}

// GitHubHost implements ChangeHost against the GitHub REST API.
type GitHubHost struct {
	tokens TokenSource
	client *github.Client
}

// NewGitHubHost creates a host client. baseURL overrides the API
// endpoint for GitHub Enterprise or tests; empty means github.com.
func NewGitHubHost(tokens TokenSource, baseURL string) (*GitHubHost, error) {
	h := &GitHubHost{tokens: tokens}

	client := github.NewClient(&http.Client{
		Transport: &authTransport{tokens: tokens},
	})
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("set base URL: %w", err)
		}
	}
	h.client = client
	return h, nil
}

// authTransport injects the current token into every request.
type authTransport struct {
	tokens TokenSource
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("host token: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return http.DefaultTransport.RoundTrip(clone)
}

// ListChangedFiles implements ChangeHost.
func (h *GitHubHost) ListChangedFiles(ctx context.Context, unit Unit) ([]ChangedFile, error) {
	var files []ChangedFile

	opts := &github.ListOptions{PerPage: listFilesPageSize}
	for {
		page, resp, err := h.client.PullRequests.ListFiles(
			ctx, unit.Owner, unit.Repo, unit.Number, opts,
		)
		if err != nil {
			return nil, fmt.Errorf("list changed files: %w", err)
		}

		for _, cf := range page {
			files = append(files, ChangedFile{
				Path:         cf.GetFilename(),
				PreviousPath: cf.GetPreviousFilename(),
				Change:       changeKind(cf.GetStatus()),
				Patch:        cf.GetPatch(),
				Additions:    cf.GetAdditions(),
				Deletions:    cf.GetDeletions(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return files, nil
}

// GetUnifiedDiff implements ChangeHost.
func (h *GitHubHost) GetUnifiedDiff(ctx context.Context, unit Unit) (string, error) {
	raw, _, err := h.client.PullRequests.GetRaw(
		ctx, unit.Owner, unit.Repo, unit.Number,
		github.RawOptions{Type: github.Diff},
	)
	if err != nil {
		return "", fmt.Errorf("get unified diff: %w", err)
	}
	return raw, nil
}

// CreateReview implements ChangeHost.
func (h *GitHubHost) CreateReview(ctx context.Context, unit Unit, review Review) error {
	comments := make([]*github.DraftReviewComment, 0, len(review.Comments))
	for _, c := range review.Comments {
		comments = append(comments, &github.DraftReviewComment{
			Path:     github.Ptr(c.Path),
			Position: github.Ptr(c.Position),
			Body:     github.Ptr(c.Body),
		})
	}

	req := &github.PullRequestReviewRequest{
		CommitID: github.Ptr(string(review.Revision)),
		Body:     github.Ptr(review.Body),
		Event:    github.Ptr(string(review.Event)),
		Comments: comments,
	}

	_, _, err := h.client.PullRequests.CreateReview(
		ctx, unit.Owner, unit.Repo, unit.Number, req,
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}

	util.Log(ctx).Info("review posted",
		"owner", unit.Owner,
		"repo", unit.Repo,
		"number", unit.Number,
		"event", review.Event,
		"comments", len(comments),
	)
	return nil
}

// PostComment implements ChangeHost.
func (h *GitHubHost) PostComment(ctx context.Context, unit Unit, body string) error {
	_, _, err := h.client.Issues.CreateComment(
		ctx, unit.Owner, unit.Repo, unit.Number,
		&github.IssueComment{Body: github.Ptr(body)},
	)
	if err != nil {
		return fmt.Errorf("post comment: %w", err)
	}
	return nil
}

// changeKind maps the host's file status to the parser's vocabulary.
func changeKind(status string) diff.ChangeKind {
	switch status {
	case "added", "copied":
		return diff.ChangeAdded
	case "removed":
		return diff.ChangeRemoved
	case "renamed":
		return diff.ChangeRenamed
	default:
		return diff.ChangeModified
	}
}
