package discussion

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/domain/notify"
)

// Service relays the pull request conversation to the code host and
// pushes new comments and reviews to the change set's subscribers.
type Service struct {
	Host      domain.Discussion
	Publisher notify.Publisher
	Log       logrus.FieldLogger
}

//
// ==== USE CASES ====
//

func (s *Service) PullRequest(ctx context.Context, cs domain.ChangeSetID) (*domain.PullRequestInfo, error) {
	return s.Host.PullRequest(ctx, cs)
}

func (s *Service) PullRequests(ctx context.Context, repo, state string) ([]domain.PullRequestInfo, error) {
	return s.Host.ListPullRequests(ctx, repo, state)
}

func (s *Service) Comments(ctx context.Context, cs domain.ChangeSetID) ([]domain.Comment, error) {
	return s.Host.ListComments(ctx, cs)
}

// Comment posts d on cs; without a commit id the comment anchors on the current head.
func (s *Service) Comment(ctx context.Context, cs domain.ChangeSetID, d domain.CommentDraft, requestedBy string) (*domain.Comment, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.CommitID == "" {
		pr, err := s.Host.PullRequest(ctx, cs)
		if err != nil {
			return nil, fmt.Errorf("resolve head commit: %w", err)
		}
		d.CommitID = pr.HeadSHA
	}

	c, err := s.Host.CreateComment(ctx, cs, d)
	if err != nil {
		return nil, err
	}
	s.publisher().Publish(string(cs), notify.Event{
		Type: notify.TypeCommentAdded,
		Payload: map[string]any{
			"pr_id":        cs,
			"comment":      c,
			"requested_by": requestedBy,
		},
	})
	s.log().WithFields(logrus.Fields{"pr_id": cs, "comment_id": c.ID, "path": c.Path}).Info("comment created")
	return c, nil
}

// Review submits d on cs and notifies subscribers.
func (s *Service) Review(ctx context.Context, cs domain.ChangeSetID, d domain.ReviewDraft, requestedBy string) (*domain.Review, error) {
	ev, err := domain.ParseReviewEvent(string(d.Event))
	if err != nil {
		return nil, err
	}
	d.Event = ev
	if err := d.Validate(); err != nil {
		return nil, err
	}

	r, err := s.Host.CreateReview(ctx, cs, d)
	if err != nil {
		return nil, err
	}
	s.publisher().Publish(string(cs), notify.Event{
		Type: notify.TypeReviewSubmitted,
		Payload: map[string]any{
			"pr_id":        cs,
			"review":       r,
			"comments":     len(d.Comments),
			"requested_by": requestedBy,
		},
	})
	s.log().WithFields(logrus.Fields{"pr_id": cs, "review_id": r.ID, "event": d.Event}).Info("review submitted")
	return r, nil
}

// helper

func (s *Service) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func (s *Service) publisher() notify.Publisher {
	if s.Publisher == nil {
		return notify.Discard{}
	}
	return s.Publisher
}
