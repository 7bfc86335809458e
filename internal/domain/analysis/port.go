package analysis

import (
	"context"
	"time"
)

// RunRepository port (interface untuk persistence AnalysisRun)
type RunRepository interface {
	// CreateUnlessActive atomically returns the active run for run.ChangeSetID if one
	// exists (created=false), otherwise inserts run and returns it (created=true).
	CreateUnlessActive(ctx context.Context, run *Run) (*Run, bool, error)
	// Transition persists a status change, applied only if the stored status is still from.
	Transition(ctx context.Context, id RunID, from, to Status, errMsg string, completedAt *time.Time) error
	Get(ctx context.Context, id RunID) (*Run, error)
	LatestByChangeSet(ctx context.Context, cs ChangeSetID) (*Run, error)
	ListByChangeSet(ctx context.Context, cs ChangeSetID, limit int) ([]*Run, error)
}

// SuggestionRepository port
type SuggestionRepository interface {
	// SaveBatch stores all suggestions of one file in a single transaction.
	SaveBatch(ctx context.Context, batch []*Suggestion) error
	ListByChangeSet(ctx context.Context, cs ChangeSetID) ([]*Suggestion, error)
	ListByRun(ctx context.Context, id RunID) ([]*Suggestion, error)
	UpdateDisposition(ctx context.Context, id SuggestionID, d Disposition, at time.Time) (*Suggestion, error)
}

// Hosting is the code-hosting collaborator.
type Hosting interface {
	ListChangedFiles(ctx context.Context, cs ChangeSetID) ([]ChangedFile, error)
	FetchContent(ctx context.Context, ref string) ([]byte, error)
}

// Discussion is the pull request conversation on the code host.
type Discussion interface {
	PullRequest(ctx context.Context, cs ChangeSetID) (*PullRequestInfo, error)
	// ListPullRequests lists the pull requests of "owner/repo" in state (open, closed, all).
	ListPullRequests(ctx context.Context, repo, state string) ([]PullRequestInfo, error)
	ListComments(ctx context.Context, cs ChangeSetID) ([]Comment, error)
	CreateComment(ctx context.Context, cs ChangeSetID, d CommentDraft) (*Comment, error)
	CreateReview(ctx context.Context, cs ChangeSetID, d ReviewDraft) (*Review, error)
}

// Inference is the review model collaborator. It returns the raw structured payload.
type Inference interface {
	Analyze(ctx context.Context, req InferenceRequest) (string, error)
}

// ResponseArchive stores raw inference payloads for audit.
type ResponseArchive interface {
	Archive(ctx context.Context, key string, body []byte) (string, error)
}

// DiffAnnotator renders a file patch into the diff context sent to inference.
type DiffAnnotator interface {
	Annotate(path, patch string) (string, error)
}
