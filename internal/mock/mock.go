// Package mock holds hand-written fakes for the analysis ports.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/domain/notify"
)

// Hosting fakes the code-hosting collaborator.
type Hosting struct {
	ListChangedFilesFn func(ctx context.Context, cs analysis.ChangeSetID) ([]analysis.ChangedFile, error)
	FetchContentFn     func(ctx context.Context, ref string) ([]byte, error)
}

func (m *Hosting) ListChangedFiles(ctx context.Context, cs analysis.ChangeSetID) ([]analysis.ChangedFile, error) {
	return m.ListChangedFilesFn(ctx, cs)
}

func (m *Hosting) FetchContent(ctx context.Context, ref string) ([]byte, error) {
	if m.FetchContentFn == nil {
		return []byte("package main\n"), nil
	}
	return m.FetchContentFn(ctx, ref)
}

// Discussion fakes the pull request conversation; nil funcs return zero values.
type Discussion struct {
	PullRequestFn      func(ctx context.Context, cs analysis.ChangeSetID) (*analysis.PullRequestInfo, error)
	ListPullRequestsFn func(ctx context.Context, repo, state string) ([]analysis.PullRequestInfo, error)
	ListCommentsFn     func(ctx context.Context, cs analysis.ChangeSetID) ([]analysis.Comment, error)
	CreateCommentFn    func(ctx context.Context, cs analysis.ChangeSetID, d analysis.CommentDraft) (*analysis.Comment, error)
	CreateReviewFn     func(ctx context.Context, cs analysis.ChangeSetID, d analysis.ReviewDraft) (*analysis.Review, error)
}

func (m *Discussion) PullRequest(ctx context.Context, cs analysis.ChangeSetID) (*analysis.PullRequestInfo, error) {
	if m.PullRequestFn == nil {
		return &analysis.PullRequestInfo{ID: cs}, nil
	}
	return m.PullRequestFn(ctx, cs)
}

func (m *Discussion) ListPullRequests(ctx context.Context, repo, state string) ([]analysis.PullRequestInfo, error) {
	if m.ListPullRequestsFn == nil {
		return nil, nil
	}
	return m.ListPullRequestsFn(ctx, repo, state)
}

func (m *Discussion) ListComments(ctx context.Context, cs analysis.ChangeSetID) ([]analysis.Comment, error) {
	if m.ListCommentsFn == nil {
		return nil, nil
	}
	return m.ListCommentsFn(ctx, cs)
}

func (m *Discussion) CreateComment(ctx context.Context, cs analysis.ChangeSetID, d analysis.CommentDraft) (*analysis.Comment, error) {
	return m.CreateCommentFn(ctx, cs, d)
}

func (m *Discussion) CreateReview(ctx context.Context, cs analysis.ChangeSetID, d analysis.ReviewDraft) (*analysis.Review, error) {
	return m.CreateReviewFn(ctx, cs, d)
}

// Inference fakes the review model.
type Inference struct {
	AnalyzeFn func(ctx context.Context, req analysis.InferenceRequest) (string, error)
}

func (m *Inference) Analyze(ctx context.Context, req analysis.InferenceRequest) (string, error) {
	return m.AnalyzeFn(ctx, req)
}

// Archive records archived keys.
type Archive struct {
	mu      sync.Mutex
	Keys    []string
	ArchErr error
}

func (m *Archive) Archive(_ context.Context, key string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ArchErr != nil {
		return "", m.ArchErr
	}
	m.Keys = append(m.Keys, key)
	return "s3://test/" + key, nil
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	Events []Published
}

type Published struct {
	ChangeSetID string
	Event       notify.Event
}

func (p *Publisher) Publish(cs string, ev notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, Published{ChangeSetID: cs, Event: ev})
}

// Snapshot returns a copy of the recorded events.
func (p *Publisher) Snapshot() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.Events...)
}

// OfType filters recorded events by type.
func (p *Publisher) OfType(typ string) []Published {
	var out []Published
	for _, e := range p.Snapshot() {
		if e.Event.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// RunRepo is an in-memory RunRepository.
type RunRepo struct {
	mu   sync.Mutex
	runs map[analysis.RunID]*analysis.Run

	// CreateDelay widens the race window in dedup tests.
	CreateDelay time.Duration
	// TransitionFn, when set, runs before a transition is stored; an error aborts it.
	TransitionFn func(id analysis.RunID, to analysis.Status) error
}

func NewRunRepo() *RunRepo {
	return &RunRepo{runs: make(map[analysis.RunID]*analysis.Run)}
}

func (s *RunRepo) CreateUnlessActive(_ context.Context, run *analysis.Run) (*analysis.Run, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ChangeSetID == run.ChangeSetID && r.Status.Active() {
			cp := *r
			return &cp, false, nil
		}
	}
	if s.CreateDelay > 0 {
		time.Sleep(s.CreateDelay)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return run, true, nil
}

func (s *RunRepo) Transition(_ context.Context, id analysis.RunID, from, to analysis.Status, errMsg string, completedAt *time.Time) error {
	if s.TransitionFn != nil {
		if err := s.TransitionFn(id, to); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.Status != from {
		return analysis.ErrNotFound
	}
	r.Status = to
	r.Error = errMsg
	r.CompletedAt = completedAt
	return nil
}

func (s *RunRepo) Get(_ context.Context, id analysis.RunID) (*analysis.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *RunRepo) LatestByChangeSet(ctx context.Context, cs analysis.ChangeSetID) (*analysis.Run, error) {
	runs, _ := s.ListByChangeSet(ctx, cs, 1)
	if len(runs) == 0 {
		return nil, analysis.ErrNotFound
	}
	return runs[0], nil
}

func (s *RunRepo) ListByChangeSet(_ context.Context, cs analysis.ChangeSetID, limit int) ([]*analysis.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*analysis.Run
	for _, r := range s.runs {
		if r.ChangeSetID == cs {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every stored run.
func (s *RunRepo) All() []*analysis.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*analysis.Run, 0, len(s.runs))
	for _, r := range s.runs {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// SuggestionRepo is an in-memory SuggestionRepository.
type SuggestionRepo struct {
	mu          sync.Mutex
	suggestions []*analysis.Suggestion

	// SaveBatchFn, when set, runs before the batch is stored; an error aborts it.
	SaveBatchFn func(batch []*analysis.Suggestion) error
}

func (s *SuggestionRepo) SaveBatch(_ context.Context, batch []*analysis.Suggestion) error {
	if s.SaveBatchFn != nil {
		if err := s.SaveBatchFn(batch); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sug := range batch {
		cp := *sug
		s.suggestions = append(s.suggestions, &cp)
	}
	return nil
}

func (s *SuggestionRepo) ListByChangeSet(_ context.Context, cs analysis.ChangeSetID) ([]*analysis.Suggestion, error) {
	return s.filter(func(sug *analysis.Suggestion) bool { return sug.ChangeSetID == cs }), nil
}

func (s *SuggestionRepo) ListByRun(_ context.Context, id analysis.RunID) ([]*analysis.Suggestion, error) {
	return s.filter(func(sug *analysis.Suggestion) bool { return sug.RunID == id }), nil
}

func (s *SuggestionRepo) UpdateDisposition(_ context.Context, id analysis.SuggestionID, d analysis.Disposition, at time.Time) (*analysis.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sug := range s.suggestions {
		if sug.ID == id {
			sug.Disposition = d
			t := at.UTC()
			sug.UpdatedAt = &t
			cp := *sug
			return &cp, nil
		}
	}
	return nil, analysis.ErrNotFound
}

func (s *SuggestionRepo) filter(keep func(*analysis.Suggestion) bool) []*analysis.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*analysis.Suggestion
	for _, sug := range s.suggestions {
		if keep(sug) {
			cp := *sug
			out = append(out, &cp)
		}
	}
	return out
}
