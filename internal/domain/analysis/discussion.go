package analysis

import (
	"fmt"
	"strings"
	"time"
)

// PullRequestInfo is the summary of a pull request as reported by the host.
type PullRequestInfo struct {
	ID        ChangeSetID `json:"pr_id"`
	Number    int         `json:"number"`
	Title     string      `json:"title"`
	State     string      `json:"state"`
	Author    string      `json:"author"`
	HeadRef   string      `json:"head_ref"`
	HeadSHA   string      `json:"head_sha"`
	BaseRef   string      `json:"base_ref"`
	URL       string      `json:"url"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Comment is an inline review comment on a pull request.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	Path      string    `json:"path"`
	Line      int       `json:"line"`
	CommitID  string    `json:"commit_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentDraft is a comment to be posted. An empty CommitID means the pull request head.
type CommentDraft struct {
	Body     string `json:"body"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
	CommitID string `json:"commit_id,omitempty"`
}

func (d CommentDraft) Validate() error {
	switch {
	case strings.TrimSpace(d.Body) == "":
		return fmt.Errorf("%w: comment body is empty", ErrInvalidInput)
	case strings.TrimSpace(d.Path) == "":
		return fmt.Errorf("%w: comment path is empty", ErrInvalidInput)
	case d.Line < 1:
		return fmt.Errorf("%w: comment line must be >= 1", ErrInvalidInput)
	}
	return nil
}

// ReviewEvent is the verdict attached to a submitted review.
type ReviewEvent string

const (
	ReviewComment        ReviewEvent = "COMMENT"
	ReviewApprove        ReviewEvent = "APPROVE"
	ReviewRequestChanges ReviewEvent = "REQUEST_CHANGES"
)

// ParseReviewEvent accepts any case; empty means COMMENT.
func ParseReviewEvent(s string) (ReviewEvent, error) {
	if s == "" {
		return ReviewComment, nil
	}
	switch e := ReviewEvent(strings.ToUpper(s)); e {
	case ReviewComment, ReviewApprove, ReviewRequestChanges:
		return e, nil
	}
	return "", fmt.Errorf("%w: unknown review event %q", ErrInvalidInput, s)
}

// ReviewDraft is a review to be submitted, optionally carrying inline comments.
type ReviewDraft struct {
	Body     string         `json:"body"`
	Event    ReviewEvent    `json:"event"`
	Comments []CommentDraft `json:"comments,omitempty"`
}

// Validate: approval may go without a body, the other verdicts need one.
func (d ReviewDraft) Validate() error {
	ev, err := ParseReviewEvent(string(d.Event))
	if err != nil {
		return err
	}
	if ev != ReviewApprove && strings.TrimSpace(d.Body) == "" {
		return fmt.Errorf("%w: review body is required for %s", ErrInvalidInput, ev)
	}
	for i, c := range d.Comments {
		// commit_id lives on the review, not on its comments
		if err := (CommentDraft{Body: c.Body, Path: c.Path, Line: c.Line}).Validate(); err != nil {
			return fmt.Errorf("comment %d: %w", i, err)
		}
	}
	return nil
}

// Review is a submitted pull request review.
type Review struct {
	ID          int64      `json:"id"`
	State       string     `json:"state"`
	Body        string     `json:"body"`
	Author      string     `json:"author"`
	URL         string     `json:"url"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}
