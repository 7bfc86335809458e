package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
)

const jsonAccept = "application/vnd.github.v3+json"

type ghUser struct {
	Login string `json:"login"`
}

type ghPull struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	User      ghUser    `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Head      struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

func (p ghPull) info(owner, repo string) analysis.PullRequestInfo {
	return analysis.PullRequestInfo{
		ID:        analysis.ChangeSetID(fmt.Sprintf("%s/%s#%d", owner, repo, p.Number)),
		Number:    p.Number,
		Title:     p.Title,
		State:     p.State,
		Author:    p.User.Login,
		HeadRef:   p.Head.Ref,
		HeadSHA:   p.Head.SHA,
		BaseRef:   p.Base.Ref,
		URL:       p.HTMLURL,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type ghComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      ghUser    `json:"user"`
	Path      string    `json:"path"`
	Line      int       `json:"line"`
	CommitID  string    `json:"commit_id"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (c ghComment) comment() analysis.Comment {
	return analysis.Comment{
		ID:        c.ID,
		Body:      c.Body,
		Author:    c.User.Login,
		Path:      c.Path,
		Line:      c.Line,
		CommitID:  c.CommitID,
		URL:       c.HTMLURL,
		CreatedAt: c.CreatedAt,
	}
}

func (c *Client) pullURL(pr PullRequest) string {
	return fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.apiURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), pr.Number)
}

// PullRequest fetches the pull request detail, head sha included.
func (c *Client) PullRequest(ctx context.Context, cs analysis.ChangeSetID) (*analysis.PullRequestInfo, error) {
	pr, err := ParseChangeSet(cs)
	if err != nil {
		return nil, err
	}
	var p ghPull
	if err := c.getJSON(ctx, c.pullURL(pr), &p); err != nil {
		return nil, fmt.Errorf("get pull request %s: %w", cs, err)
	}
	info := p.info(pr.Owner, pr.Repo)
	return &info, nil
}

// ListPullRequests returns the first page (100) of pull requests of repo, newest update first.
func (c *Client) ListPullRequests(ctx context.Context, repo, state string) ([]analysis.PullRequestInfo, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: repository %q: want owner/repo", analysis.ErrInvalidInput, repo)
	}
	switch state {
	case "":
		state = "open"
	case "open", "closed", "all":
	default:
		return nil, fmt.Errorf("%w: state %q (allowed: open, closed, all)", analysis.ErrInvalidInput, state)
	}

	u := fmt.Sprintf("%s/repos/%s/%s/pulls?state=%s&sort=updated&direction=desc&per_page=%d",
		c.apiURL, url.PathEscape(owner), url.PathEscape(name), state, perPage)
	var pulls []ghPull
	if err := c.getJSON(ctx, u, &pulls); err != nil {
		return nil, fmt.Errorf("list pull requests of %s: %w", repo, err)
	}
	out := make([]analysis.PullRequestInfo, 0, len(pulls))
	for _, p := range pulls {
		out = append(out, p.info(owner, name))
	}
	return out, nil
}

// ListComments pages through the inline review comments of cs.
func (c *Client) ListComments(ctx context.Context, cs analysis.ChangeSetID) ([]analysis.Comment, error) {
	pr, err := ParseChangeSet(cs)
	if err != nil {
		return nil, err
	}
	out := []analysis.Comment{}
	for page := 1; page <= maxPages; page++ {
		u := fmt.Sprintf("%s/comments?per_page=%d&page=%d", c.pullURL(pr), perPage, page)
		var batch []ghComment
		if err := c.getJSON(ctx, u, &batch); err != nil {
			return nil, fmt.Errorf("list comments of %s: %w", cs, err)
		}
		for _, cm := range batch {
			out = append(out, cm.comment())
		}
		if len(batch) < perPage {
			break
		}
	}
	return out, nil
}

// CreateComment posts an inline comment on the right side of the diff.
func (c *Client) CreateComment(ctx context.Context, cs analysis.ChangeSetID, d analysis.CommentDraft) (*analysis.Comment, error) {
	pr, err := ParseChangeSet(cs)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.CommitID == "" {
		return nil, fmt.Errorf("%w: commit_id is required", analysis.ErrInvalidInput)
	}
	payload := map[string]any{
		"body":      d.Body,
		"commit_id": d.CommitID,
		"path":      d.Path,
		"line":      d.Line,
		"side":      "RIGHT",
	}
	body, err := c.do(ctx, http.MethodPost, c.pullURL(pr)+"/comments", jsonAccept, payload, maxAPIBytes)
	if err != nil {
		return nil, fmt.Errorf("create comment on %s: %w", cs, err)
	}
	var cm ghComment
	if err := json.Unmarshal(body, &cm); err != nil {
		return nil, fmt.Errorf("parsing created comment: %w", err)
	}
	out := cm.comment()
	return &out, nil
}

// CreateReview submits a review with its inline comments in one request.
func (c *Client) CreateReview(ctx context.Context, cs analysis.ChangeSetID, d analysis.ReviewDraft) (*analysis.Review, error) {
	pr, err := ParseChangeSet(cs)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	comments := make([]map[string]any, 0, len(d.Comments))
	for _, cm := range d.Comments {
		comments = append(comments, map[string]any{
			"path": cm.Path,
			"line": cm.Line,
			"side": "RIGHT",
			"body": cm.Body,
		})
	}
	payload := map[string]any{
		"body":     d.Body,
		"event":    string(d.Event),
		"comments": comments,
	}
	body, err := c.do(ctx, http.MethodPost, c.pullURL(pr)+"/reviews", jsonAccept, payload, maxAPIBytes)
	if err != nil {
		return nil, fmt.Errorf("create review on %s: %w", cs, err)
	}

	var r struct {
		ID          int64      `json:"id"`
		State       string     `json:"state"`
		Body        string     `json:"body"`
		User        ghUser     `json:"user"`
		HTMLURL     string     `json:"html_url"`
		SubmittedAt *time.Time `json:"submitted_at"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("parsing created review: %w", err)
	}
	return &analysis.Review{
		ID:          r.ID,
		State:       r.State,
		Body:        r.Body,
		Author:      r.User.Login,
		URL:         r.HTMLURL,
		SubmittedAt: r.SubmittedAt,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	body, err := c.do(ctx, http.MethodGet, u, jsonAccept, nil, maxAPIBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
