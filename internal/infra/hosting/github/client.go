package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
)

const (
	DefaultAPIURL = "https://api.github.com"
	perPage       = 100
	// GitHub stops listing pull request files after 3000 entries.
	maxPages = 30

	DefaultMaxContentBytes int64 = 1 << 20
	// API responses (file lists, comments) are bounded separately from raw content.
	maxAPIBytes int64 = 32 << 20
)

// Client implements analysis.Hosting and analysis.Discussion against the GitHub REST API.
type Client struct {
	token   string
	apiURL  string
	httpCli *http.Client

	// MaxContentBytes bounds FetchContent; <= 0 means DefaultMaxContentBytes.
	MaxContentBytes int64
}

var (
	_ analysis.Hosting    = (*Client)(nil)
	_ analysis.Discussion = (*Client)(nil)
)

func NewClient(apiURL, token string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		token:   token,
		apiURL:  strings.TrimRight(apiURL, "/"),
		httpCli: &http.Client{Timeout: timeout},
	}
}

// PullRequest is a parsed change set id.
type PullRequest struct {
	Owner  string
	Repo   string
	Number int
}

// ParseChangeSet splits "owner/repo#number".
func ParseChangeSet(cs analysis.ChangeSetID) (PullRequest, error) {
	repoPart, num, ok := strings.Cut(string(cs), "#")
	if !ok {
		return PullRequest{}, fmt.Errorf("%w: change set %q: want owner/repo#number", analysis.ErrInvalidInput, cs)
	}
	owner, repo, ok := strings.Cut(repoPart, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return PullRequest{}, fmt.Errorf("%w: change set %q: want owner/repo#number", analysis.ErrInvalidInput, cs)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return PullRequest{}, fmt.Errorf("%w: change set %q: invalid pull request number", analysis.ErrInvalidInput, cs)
	}
	return PullRequest{Owner: owner, Repo: repo, Number: n}, nil
}

type prFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Changes  int    `json:"changes"`
	RawURL   string `json:"raw_url"`
	Patch    string `json:"patch"`
}

// ListChangedFiles pages through /pulls/{n}/files in GitHub's order.
func (c *Client) ListChangedFiles(ctx context.Context, cs analysis.ChangeSetID) ([]analysis.ChangedFile, error) {
	pr, err := ParseChangeSet(cs)
	if err != nil {
		return nil, err
	}

	var out []analysis.ChangedFile
	for page := 1; page <= maxPages; page++ {
		u := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			c.apiURL, url.PathEscape(pr.Owner), url.PathEscape(pr.Repo), pr.Number, perPage, page)

		body, err := c.do(ctx, http.MethodGet, u, jsonAccept, nil, maxAPIBytes)
		if err != nil {
			return nil, fmt.Errorf("listing files of %s: %w", cs, err)
		}

		var files []prFile
		if err := json.Unmarshal(body, &files); err != nil {
			return nil, fmt.Errorf("parsing files of %s: %w", cs, err)
		}
		for _, f := range files {
			out = append(out, analysis.ChangedFile{
				Path:         f.Filename,
				ChangeStatus: f.Status,
				IsBinary:     isBinary(f),
				ChangedLines: f.Changes,
				ContentRef:   f.RawURL,
				Patch:        f.Patch,
			})
		}
		if len(files) < perPage {
			break
		}
	}
	return out, nil
}

// the files API has no binary flag; binary files come back without a patch
func isBinary(f prFile) bool {
	return f.Patch == "" && f.Status != "removed" && f.Status != "renamed"
}

// FetchContent downloads a raw file url. Content above MaxContentBytes
// yields analysis.ErrFileTooLarge.
func (c *Client) FetchContent(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty content ref")
	}
	limit := c.MaxContentBytes
	if limit <= 0 {
		limit = DefaultMaxContentBytes
	}
	body, err := c.do(ctx, http.MethodGet, ref, "application/vnd.github.v3.raw", nil, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ref, err)
	}
	return body, nil
}

// do sends one request; payload, if not nil, is encoded as the JSON body.
// Responses longer than limit bytes fail with analysis.ErrFileTooLarge.
func (c *Client) do(ctx context.Context, method, u, accept string, payload any, limit int64) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// baca satu byte lebih supaya bisa bedakan "pas limit" dan "kelebihan"
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	tooLarge := int64(len(body)) > limit
	if tooLarge {
		body = body[:limit]
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w (status 404)", analysis.ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("authentication failed (status %d): %s", resp.StatusCode, truncate(body))
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: GitHub rejected the request (status 422): %s", analysis.ErrInvalidInput, apiMessage(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, truncate(body))
	case tooLarge:
		return nil, fmt.Errorf("%w: more than %d bytes", analysis.ErrFileTooLarge, limit)
	}
	return body, nil
}

// apiMessage pulls "message" out of a GitHub error body.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
		return truncate(body)
	}
	return e.Message
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
