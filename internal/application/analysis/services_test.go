package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/bryanwahyu/automaton-review/internal/application/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/domain/notify"
	"github.com/bryanwahyu/automaton-review/internal/logging"
	"github.com/bryanwahyu/automaton-review/internal/mock"
)

const oneFinding = `{"suggestions":[{"type":"improvement","message":"m","line_start":1,"line_end":2,
"original_code":"a","suggested_code":"b","explanation":"e","confidence":0.8}]}`

type fixture struct {
	svc       *app.Service
	runs      *mock.RunRepo
	sugs      *mock.SuggestionRepo
	pub       *mock.Publisher
	hosting   *mock.Hosting
	inference *mock.Inference
	archive   *mock.Archive
}

func newFixture(files ...domain.ChangedFile) *fixture {
	f := &fixture{
		runs:    mock.NewRunRepo(),
		sugs:    &mock.SuggestionRepo{},
		pub:     &mock.Publisher{},
		archive: &mock.Archive{},
		hosting: &mock.Hosting{
			ListChangedFilesFn: func(context.Context, domain.ChangeSetID) ([]domain.ChangedFile, error) {
				return files, nil
			},
		},
		inference: &mock.Inference{
			AnalyzeFn: func(context.Context, domain.InferenceRequest) (string, error) { return oneFinding, nil },
		},
	}
	f.svc = &app.Service{
		Runs:        f.runs,
		Suggestions: f.sugs,
		Hosting:     f.hosting,
		Inference:   f.inference,
		Archive:     f.archive,
		Publisher:   f.pub,
		Gate:        domain.NewFileGate(0, nil),
		Supervisor:  app.NewSupervisor(4),
		Log:         logging.Discard(),
	}
	return f
}

// wait blocks until every scheduled run has finished.
func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Supervisor.Shutdown(ctx))
}

func file(path string) domain.ChangedFile {
	return domain.ChangedFile{Path: path, ChangeStatus: "modified", ChangedLines: 10, ContentRef: "raw/" + path, Patch: "@@ -1 +1 @@\n-a\n+b\n"}
}

func TestStartAnalysis_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"), file("b.go"))
	h, err := f.svc.StartAnalysis(context.Background(), "A", "alice")
	require.NoError(t, err)
	assert.False(t, h.AlreadyInProgress)
	f.wait(t)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)

	sugs, err := f.svc.ListSuggestions(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, sugs, 2)
	assert.Equal(t, "a.go", sugs[0].FilePath)
	assert.Equal(t, "b.go", sugs[1].FilePath)
	for _, s := range sugs {
		assert.Equal(t, h.RunID, s.RunID)
		assert.Equal(t, domain.DispositionPending, s.Disposition)
	}

	events := f.pub.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "A", events[0].ChangeSetID)
	assert.Equal(t, notify.TypeAnalysisComplete, events[0].Event.Type)
	payload := events[0].Event.Payload.(map[string]any)
	assert.Equal(t, domain.ChangeSetID("A"), payload["pr_id"])
	assert.Equal(t, h.RunID, payload["analysis_id"])
	assert.Equal(t, 2, payload["suggestions"])
	assert.NotContains(t, payload, "failed_files")

	assert.ElementsMatch(t, []string{"A/" + string(h.RunID) + "/a.go.json", "A/" + string(h.RunID) + "/b.go.json"}, f.archive.Keys)
}

func TestStartAnalysis_ConcurrentCallsShareOneRun(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := newFixture(file("a.go"))
	f.runs.CreateDelay = time.Millisecond
	f.hosting.ListChangedFilesFn = func(context.Context, domain.ChangeSetID) ([]domain.ChangedFile, error) {
		<-release
		return nil, nil
	}

	const n = 20
	handles := make([]domain.Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := f.svc.StartAnalysis(context.Background(), "pr-1", fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()
	close(release)
	f.wait(t)

	fresh := 0
	for _, h := range handles {
		assert.Equal(t, handles[0].RunID, h.RunID)
		if !h.AlreadyInProgress {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Len(t, f.runs.All(), 1)
	assert.Len(t, f.pub.OfType(notify.TypeAnalysisComplete), 1)
}

func TestStartAnalysis_NewRunAfterTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	first, err := f.svc.StartAnalysis(context.Background(), "pr-2", "alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, err := f.svc.Run(context.Background(), first.RunID)
		return err == nil && r.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)

	second, err := f.svc.StartAnalysis(context.Background(), "pr-2", "alice")
	require.NoError(t, err)
	f.wait(t)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.False(t, second.AlreadyInProgress)

	history, err := f.svc.History(context.Background(), "pr-2", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestExecute_HostingFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.hosting.ListChangedFilesFn = func(context.Context, domain.ChangeSetID) ([]domain.ChangedFile, error) {
		return nil, errors.New("github: 502 bad gateway")
	}

	h, err := f.svc.StartAnalysis(context.Background(), "pr-3", "alice")
	require.NoError(t, err, "downstream failures never surface to the caller")
	f.wait(t)

	run, err := f.svc.Status(context.Background(), "pr-3")
	require.NoError(t, err)
	assert.Equal(t, h.RunID, run.ID)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "502")
	assert.NotNil(t, run.CompletedAt)

	assert.Empty(t, f.pub.OfType(notify.TypeAnalysisComplete))
	errs := f.pub.OfType(notify.TypeAnalysisError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Event.Payload.(map[string]any)["error"], "502")
}

func TestExecute_MidRunFailureKeepsEarlierSuggestions(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"), file("b.go"), file("c.go"))
	var calls atomic.Int32
	f.inference.AnalyzeFn = func(_ context.Context, req domain.InferenceRequest) (string, error) {
		calls.Add(1)
		if req.Path == "b.go" {
			return "", errors.New("model overloaded")
		}
		return oneFinding, nil
	}

	h, err := f.svc.StartAnalysis(context.Background(), "pr-4", "alice")
	require.NoError(t, err)
	f.wait(t)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "b.go")

	sugs, err := f.svc.RunSuggestions(context.Background(), h.RunID)
	require.NoError(t, err)
	require.Len(t, sugs, 1)
	assert.Equal(t, "a.go", sugs[0].FilePath)
	assert.EqualValues(t, 2, calls.Load(), "c.go is never reached")
	assert.Len(t, f.pub.Snapshot(), 1)
}

func TestExecute_ContinueOnFileError(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"), file("b.go"), file("c.go"))
	f.svc.ContinueOnFileError = true
	f.inference.AnalyzeFn = func(_ context.Context, req domain.InferenceRequest) (string, error) {
		if req.Path == "b.go" {
			return "not json at all", nil
		}
		return oneFinding, nil
	}

	h, err := f.svc.StartAnalysis(context.Background(), "pr-5", "alice")
	require.NoError(t, err)
	f.wait(t)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)

	done := f.pub.OfType(notify.TypeAnalysisComplete)
	require.Len(t, done, 1)
	payload := done[0].Event.Payload.(map[string]any)
	assert.Equal(t, []string{"b.go"}, payload["failed_files"])
	assert.Equal(t, 2, payload["suggestions"])
}

func TestExecute_GateSkipsWithoutSideEffects(t *testing.T) {
	t.Parallel()

	removed := file("gone.go")
	removed.ChangeStatus = "removed"
	f := newFixture(removed, file("web/bundle.min.js"), file("keep.go"))

	var fetched []string
	var mu sync.Mutex
	f.hosting.FetchContentFn = func(_ context.Context, ref string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		fetched = append(fetched, ref)
		return []byte("x"), nil
	}

	_, err := f.svc.StartAnalysis(context.Background(), "pr-6", "alice")
	require.NoError(t, err)
	f.wait(t)

	assert.Equal(t, []string{"raw/keep.go"}, fetched)
	assert.Len(t, f.pub.Snapshot(), 1)
}

func TestExecute_InvalidCandidatesDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"))
	f.inference.AnalyzeFn = func(_ context.Context, req domain.InferenceRequest) (string, error) {
		assert.Equal(t, "package main\n", req.Content)
		assert.NotEmpty(t, req.Diff)
		return "```json\n" + `{"suggestions":[
			{"type":"style","message":"ok","line_start":1,"line_end":1,"original_code":"a","suggested_code":"b","explanation":"e","confidence":1.0},
			{"type":"style","message":"too sure","line_start":1,"line_end":1,"original_code":"a","suggested_code":"b","explanation":"e","confidence":1.5},
			{"type":"style","message":"no why","line_start":1,"line_end":1,"original_code":"a","suggested_code":"b","confidence":0.5}
		]}` + "\n```", nil
	}

	h, err := f.svc.StartAnalysis(context.Background(), "pr-7", "alice")
	require.NoError(t, err)
	f.wait(t)

	sugs, err := f.svc.RunSuggestions(context.Background(), h.RunID)
	require.NoError(t, err)
	require.Len(t, sugs, 1)
	assert.Equal(t, "ok", sugs[0].Message)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)
}

func TestExecute_OutOfRangeLinesDroppedRunCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"))
	f.inference.AnalyzeFn = func(context.Context, domain.InferenceRequest) (string, error) {
		return `{"suggestions":[
			{"type":"bug","message":"huge","line_start":1e300,"line_end":1e300,"original_code":"a","suggested_code":"b","explanation":"e","confidence":0.5},
			{"type":"bug","message":"backwards","line_start":10,"line_end":2,"original_code":"a","suggested_code":"b","explanation":"e","confidence":0.5},
			{"type":"bug","message":"fine","line_start":3,"line_end":4,"original_code":"a","suggested_code":"b","explanation":"e","confidence":0.5}
		]}`, nil
	}

	h, err := f.svc.StartAnalysis(context.Background(), "pr-lines", "alice")
	require.NoError(t, err)
	f.wait(t)

	sugs, err := f.svc.RunSuggestions(context.Background(), h.RunID)
	require.NoError(t, err)
	require.Len(t, sugs, 1)
	assert.Equal(t, "fine", sugs[0].Message)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)
}

func TestExecute_OversizedFileSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(file("big.sql"), file("small.go"))
	f.hosting.FetchContentFn = func(_ context.Context, ref string) ([]byte, error) {
		if ref == "raw/big.sql" {
			return nil, fmt.Errorf("fetching %s: %w", ref, domain.ErrFileTooLarge)
		}
		return []byte("package main\n"), nil
	}
	var analyzed atomic.Int32
	f.inference.AnalyzeFn = func(_ context.Context, req domain.InferenceRequest) (string, error) {
		analyzed.Add(1)
		assert.Equal(t, "small.go", req.Path)
		return oneFinding, nil
	}

	h, err := f.svc.StartAnalysis(context.Background(), "pr-big", "alice")
	require.NoError(t, err)
	f.wait(t)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)
	assert.EqualValues(t, 1, analyzed.Load())

	done := f.pub.OfType(notify.TypeAnalysisComplete)
	require.Len(t, done, 1)
	assert.NotContains(t, done[0].Event.Payload.(map[string]any), "failed_files")
}

func TestExecute_ArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"))
	f.archive.ArchErr = errors.New("bucket gone")

	h, err := f.svc.StartAnalysis(context.Background(), "pr-8", "alice")
	require.NoError(t, err)
	f.wait(t)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)
}

func TestExecute_SaveFailureFailsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"))
	f.sugs.SaveBatchFn = func([]*domain.Suggestion) error { return errors.New("disk full") }

	h, err := f.svc.StartAnalysis(context.Background(), "pr-9", "alice")
	require.NoError(t, err)
	f.wait(t)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "disk full")
}

func TestExecute_CompletedPersistFailureBecomesFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"))
	f.runs.TransitionFn = func(_ domain.RunID, to domain.Status) error {
		if to == domain.StatusCompleted {
			return errors.New("connection reset")
		}
		return nil
	}

	h, err := f.svc.StartAnalysis(context.Background(), "pr-10", "alice")
	require.NoError(t, err)
	f.wait(t)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Empty(t, f.pub.OfType(notify.TypeAnalysisComplete))
	assert.Len(t, f.pub.OfType(notify.TypeAnalysisError), 1)
}

func TestExecute_ShutdownCancelsAndRecordsFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"))
	started := make(chan struct{})
	f.inference.AnalyzeFn = func(ctx context.Context, _ domain.InferenceRequest) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}

	h, err := f.svc.StartAnalysis(context.Background(), "pr-11", "alice")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.svc.Supervisor.Shutdown(ctx), context.DeadlineExceeded)

	run, err := f.svc.Run(context.Background(), h.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.True(t, strings.Contains(run.Error, "canceled"), run.Error)

	// no new work after shutdown; the run is failed immediately
	h2, err := f.svc.StartAnalysis(context.Background(), "pr-12", "alice")
	require.NoError(t, err)
	r2, err := f.svc.Run(context.Background(), h2.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, r2.Status)
}

func TestUpdateDisposition(t *testing.T) {
	t.Parallel()

	f := newFixture(file("a.go"))
	h, err := f.svc.StartAnalysis(context.Background(), "pr-13", "alice")
	require.NoError(t, err)
	f.wait(t)

	sugs, err := f.svc.RunSuggestions(context.Background(), h.RunID)
	require.NoError(t, err)
	require.Len(t, sugs, 1)

	updated, err := f.svc.UpdateDisposition(context.Background(), sugs[0].ID, "accepted")
	require.NoError(t, err)
	assert.Equal(t, domain.DispositionAccepted, updated.Disposition)
	require.NotNil(t, updated.UpdatedAt)

	evs := f.pub.OfType(notify.TypeSuggestionUpdated)
	require.Len(t, evs, 1)
	assert.Equal(t, "pr-13", evs[0].ChangeSetID)

	_, err = f.svc.UpdateDisposition(context.Background(), sugs[0].ID, "maybe")
	assert.ErrorIs(t, err, domain.ErrInvalidDisposition)

	_, err = f.svc.UpdateDisposition(context.Background(), "missing", "rejected")
	assert.True(t, app.IsNotFound(err))
}

func TestSupervisor_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	sup := app.NewSupervisor(2)
	var running, peak atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, sup.Go(func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	require.NoError(t, sup.Ready(context.Background()))
	require.NoError(t, sup.Shutdown(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.ErrorIs(t, sup.Ready(context.Background()), app.ErrSupervisorClosed)
	assert.ErrorIs(t, sup.Go(func(context.Context) {}), app.ErrSupervisorClosed)
}
