package analysis

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/automaton-review/internal/application"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/domain/notify"
)

// Metrics receives run counters; optional.
type Metrics interface {
	RunStarted()
	RunFinished(ok bool, suggestions int)
}

// Service is the analysis job controller: one active run per change set,
// runs driven in the background, terminal events pushed to subscribers.
// Safe for concurrent use.
type Service struct {
	Runs        domain.RunRepository
	Suggestions domain.SuggestionRepository
	Hosting     domain.Hosting
	Inference   domain.Inference
	Archive     domain.ResponseArchive // optional
	Annotator   domain.DiffAnnotator   // optional
	Publisher   notify.Publisher
	Gate        domain.FileGate
	Clock       application.Clock
	Supervisor  *Supervisor
	Log         logrus.FieldLogger
	Metrics     Metrics

	// ContinueOnFileError records a failing file and moves on instead of failing the run.
	ContinueOnFileError bool

	NewID func() string
}

//
// ==== USE CASES ====
//

// StartAnalysis returns the active run for cs if there is one, otherwise creates
// a run and schedules it. Only a failure to persist the new run is returned.
func (s *Service) StartAnalysis(ctx context.Context, cs domain.ChangeSetID, requestedBy string) (domain.Handle, error) {
	run := &domain.Run{
		ID:          domain.RunID(s.newID()),
		ChangeSetID: cs,
		RequestedBy: requestedBy,
		Status:      domain.StatusPending,
		CreatedAt:   s.now(),
	}

	got, created, err := s.Runs.CreateUnlessActive(ctx, run)
	if err != nil {
		return domain.Handle{}, fmt.Errorf("create run: %w", err)
	}
	if !created {
		s.log().WithFields(logrus.Fields{"run_id": got.ID, "pr_id": cs}).Debug("analysis already in progress")
		return domain.Handle{RunID: got.ID, AlreadyInProgress: true}, nil
	}

	id := got.ID
	s.launch(got)
	return domain.Handle{RunID: id}, nil
}

func (s *Service) launch(run *domain.Run) {
	if s.Supervisor == nil {
		go s.Execute(context.Background(), run)
		return
	}
	if err := s.Supervisor.Go(func(ctx context.Context) { s.Execute(ctx, run) }); err != nil {
		// shutdown raced the request; record the run as failed right away
		s.fail(context.Background(), run, err)
	}
}

type fileOutcome int

const (
	fileSkipped fileOutcome = iota
	fileAnalyzed
	fileFailed
)

type fileResult struct {
	outcome fileOutcome
	saved   int
	err     error
}

// Execute drives run from pending to a terminal state and publishes exactly one
// terminal event.
func (s *Service) Execute(ctx context.Context, run *domain.Run) {
	if s.Metrics != nil {
		s.Metrics.RunStarted()
	}

	total, failedFiles, err := s.execute(ctx, run)
	if err == nil {
		err = s.complete(ctx, run, total, failedFiles)
	}
	if err != nil {
		s.fail(ctx, run, err)
		total = 0
	}

	if s.Metrics != nil {
		s.Metrics.RunFinished(err == nil, total)
	}
}

func (s *Service) execute(ctx context.Context, run *domain.Run) (int, []string, error) {
	log := s.log().WithFields(logrus.Fields{"run_id": run.ID, "pr_id": run.ChangeSetID})

	if err := s.transition(ctx, run, domain.StatusInProgress, ""); err != nil {
		return 0, nil, err
	}
	log.Info("analysis started")

	files, err := s.Hosting.ListChangedFiles(ctx, run.ChangeSetID)
	if err != nil {
		return 0, nil, fmt.Errorf("list changed files: %w", err)
	}

	var (
		total  int
		failed []string
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return 0, nil, fmt.Errorf("analysis cancelled: %w", err)
		}

		res := s.processFile(ctx, run, f)
		switch res.outcome {
		case fileAnalyzed:
			total += res.saved
		case fileFailed:
			if !s.ContinueOnFileError {
				return 0, nil, res.err
			}
			log.WithField("path", f.Path).WithError(res.err).Warn("file failed, continuing")
			failed = append(failed, f.Path)
		}
	}
	return total, failed, nil
}

// processFile runs one file through gate, fetch, inference, validation and persistence.
func (s *Service) processFile(ctx context.Context, run *domain.Run, f domain.ChangedFile) fileResult {
	log := s.log().WithFields(logrus.Fields{"run_id": run.ID, "path": f.Path})

	if !s.gate().IsEligible(f) {
		log.Debug("file skipped by gate")
		return fileResult{outcome: fileSkipped}
	}

	content, err := s.Hosting.FetchContent(ctx, f.ContentRef)
	if errors.Is(err, domain.ErrFileTooLarge) {
		log.WithError(err).Debug("file skipped, content too large")
		return fileResult{outcome: fileSkipped}
	}
	if err != nil {
		return fileResult{outcome: fileFailed, err: fmt.Errorf("fetch %s: %w", f.Path, err)}
	}

	diff := f.Patch
	if s.Annotator != nil && f.Patch != "" {
		if annotated, err := s.Annotator.Annotate(f.Path, f.Patch); err == nil {
			diff = annotated
		} else {
			log.WithError(err).Debug("diff annotation failed, sending raw patch")
		}
	}

	raw, err := s.Inference.Analyze(ctx, domain.InferenceRequest{Path: f.Path, Content: string(content), Diff: diff})
	if err != nil {
		return fileResult{outcome: fileFailed, err: fmt.Errorf("analyze %s: %w", f.Path, err)}
	}
	s.archive(ctx, run, f.Path, raw)

	cands, err := domain.ParseCandidates(raw)
	if err != nil {
		return fileResult{outcome: fileFailed, err: fmt.Errorf("analyze %s: %w", f.Path, err)}
	}

	now := s.now()
	batch := make([]*domain.Suggestion, 0, len(cands))
	for i, c := range cands {
		finding, err := c.Validate()
		if err != nil {
			log.WithField("index", i).WithError(err).Debug("candidate dropped")
			continue
		}
		batch = append(batch, domain.NewSuggestion(domain.SuggestionID(s.newID()), run, f.Path, finding, now))
	}
	if len(batch) > 0 {
		if err := s.Suggestions.SaveBatch(ctx, batch); err != nil {
			return fileResult{outcome: fileFailed, err: fmt.Errorf("save suggestions for %s: %w", f.Path, err)}
		}
	}
	log.WithField("suggestions", len(batch)).Debug("file analyzed")
	return fileResult{outcome: fileAnalyzed, saved: len(batch)}
}

func (s *Service) archive(ctx context.Context, run *domain.Run, file, raw string) {
	if s.Archive == nil {
		return
	}
	key := path.Join(string(run.ChangeSetID), string(run.ID), file) + ".json"
	if _, err := s.Archive.Archive(ctx, key, []byte(raw)); err != nil {
		s.log().WithFields(logrus.Fields{"run_id": run.ID, "path": file}).WithError(err).Warn("archive inference response failed")
	}
}

func (s *Service) transition(ctx context.Context, run *domain.Run, to domain.Status, errMsg string) error {
	prev := *run
	if err := run.Transition(to, s.now(), errMsg); err != nil {
		return err
	}
	if err := s.Runs.Transition(ctx, run.ID, prev.Status, to, errMsg, run.CompletedAt); err != nil {
		*run = prev
		return fmt.Errorf("persist %s: %w", to, err)
	}
	return nil
}

func (s *Service) complete(ctx context.Context, run *domain.Run, total int, failedFiles []string) error {
	// terminal state must be recorded even if shutdown cancelled ctx
	if err := s.transition(context.WithoutCancel(ctx), run, domain.StatusCompleted, ""); err != nil {
		return err
	}

	payload := map[string]any{
		"analysis_id":  run.ID,
		"pr_id":        run.ChangeSetID,
		"completed_at": run.CompletedAt,
		"suggestions":  total,
	}
	if len(failedFiles) > 0 {
		payload["failed_files"] = failedFiles
	}
	s.publisher().Publish(string(run.ChangeSetID), notify.Event{Type: notify.TypeAnalysisComplete, Payload: payload})

	s.log().WithFields(logrus.Fields{"run_id": run.ID, "pr_id": run.ChangeSetID, "suggestions": total}).Info("analysis completed")
	return nil
}

func (s *Service) fail(ctx context.Context, run *domain.Run, cause error) {
	log := s.log().WithFields(logrus.Fields{"run_id": run.ID, "pr_id": run.ChangeSetID})

	msg := cause.Error()
	if err := s.transition(context.WithoutCancel(ctx), run, domain.StatusFailed, msg); err != nil {
		log.WithError(err).Error("persist failed status")
	}

	s.publisher().Publish(string(run.ChangeSetID), notify.Event{
		Type: notify.TypeAnalysisError,
		Payload: map[string]any{
			"analysis_id": run.ID,
			"pr_id":       run.ChangeSetID,
			"error":       msg,
		},
	})
	log.WithError(cause).Warn("analysis failed")
}

// Status returns the latest run for cs.
func (s *Service) Status(ctx context.Context, cs domain.ChangeSetID) (*domain.Run, error) {
	return s.Runs.LatestByChangeSet(ctx, cs)
}

// Run returns one run by id.
func (s *Service) Run(ctx context.Context, id domain.RunID) (*domain.Run, error) {
	return s.Runs.Get(ctx, id)
}

// History lists runs for cs, newest first.
func (s *Service) History(ctx context.Context, cs domain.ChangeSetID, limit int) ([]*domain.Run, error) {
	return s.Runs.ListByChangeSet(ctx, cs, limit)
}

// ListSuggestions lists every suggestion for cs across runs.
func (s *Service) ListSuggestions(ctx context.Context, cs domain.ChangeSetID) ([]*domain.Suggestion, error) {
	return s.Suggestions.ListByChangeSet(ctx, cs)
}

// RunSuggestions lists the suggestions produced by one run.
func (s *Service) RunSuggestions(ctx context.Context, id domain.RunID) ([]*domain.Suggestion, error) {
	return s.Suggestions.ListByRun(ctx, id)
}

// UpdateDisposition records a reviewer verdict and notifies the change set's subscribers.
func (s *Service) UpdateDisposition(ctx context.Context, id domain.SuggestionID, status string) (*domain.Suggestion, error) {
	d, err := domain.ParseDisposition(status)
	if err != nil {
		return nil, err
	}
	sug, err := s.Suggestions.UpdateDisposition(ctx, id, d, s.now())
	if err != nil {
		return nil, err
	}
	s.publisher().Publish(string(sug.ChangeSetID), notify.Event{
		Type: notify.TypeSuggestionUpdated,
		Payload: map[string]any{
			"pr_id":         sug.ChangeSetID,
			"suggestion_id": sug.ID,
			"status":        sug.Disposition,
		},
	})
	return sug, nil
}

// helper

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New().String()
}

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

func (s *Service) gate() domain.FileGate {
	if s.Gate.MaxChangedLines <= 0 {
		return domain.NewFileGate(s.Gate.MaxChangedLines, s.Gate.IgnoreSuffixes)
	}
	return s.Gate
}

// IsNotFound reports whether err means the requested entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
