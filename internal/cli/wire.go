package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/automaton-review/internal/application"
	appanalysis "github.com/bryanwahyu/automaton-review/internal/application/analysis"
	appdiscussion "github.com/bryanwahyu/automaton-review/internal/application/discussion"
	"github.com/bryanwahyu/automaton-review/internal/config"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/domain/notify"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/gemini"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/ollama"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/automaton-review/internal/infra/db/mysql"
	"github.com/bryanwahyu/automaton-review/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-review/internal/infra/db/sqlite"
	"github.com/bryanwahyu/automaton-review/internal/infra/diffctx"
	"github.com/bryanwahyu/automaton-review/internal/infra/hosting/github"
	minioStore "github.com/bryanwahyu/automaton-review/internal/infra/storage"
)

// store is an opened database with its repositories.
type store struct {
	DB          *sql.DB
	Runs        domain.RunRepository
	Suggestions domain.SuggestionRepository
	Migrate     func(ctx context.Context) error
}

func openStore(ctx context.Context, c *config.Config) (*store, error) {
	switch c.Database.Driver {
	case "postgres":
		db, err := postgres.Connect(ctx, c.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect error: %w", err)
		}
		return &store{
			DB:          db,
			Runs:        postgres.NewRunRepository(db),
			Suggestions: postgres.NewSuggestionRepository(db),
			Migrate:     func(ctx context.Context) error { return postgres.Migrate(ctx, db) },
		}, nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, c.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect error: %w", err)
		}
		return &store{
			DB:          db,
			Runs:        mysqlp.NewRunRepository(db),
			Suggestions: mysqlp.NewSuggestionRepository(db),
			Migrate:     func(ctx context.Context) error { return mysqlp.Migrate(ctx, db) },
		}, nil
	case "sqlite":
		db, err := sqlite.Connect(ctx, c.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite open error: %w", err)
		}
		return &store{
			DB:          db,
			Runs:        sqlite.NewRunRepository(db),
			Suggestions: sqlite.NewSuggestionRepository(db),
			Migrate:     func(ctx context.Context) error { return sqlite.Migrate(ctx, db) },
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", c.Database.Driver)
}

func newInference(ctx context.Context, c *config.Config) (domain.Inference, error) {
	switch c.Inference.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai.apiKey is required for provider openai")
		}
		return openai.NewClient(c.OpenAI.APIKey, c.OpenAI.BaseURL, c.Inference.Model, c.Inference.Temperature, c.Inference.MaxTokens), nil
	case "gemini":
		if c.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini.apiKey is required for provider gemini")
		}
		return gemini.NewClient(ctx, c.Gemini.APIKey, c.Inference.Model, c.Inference.Temperature, c.Inference.MaxTokens)
	case "ollama":
		return ollama.NewClient(c.Ollama.Host, c.Inference.Model)
	}
	return nil, fmt.Errorf("unsupported inference provider %q", c.Inference.Provider)
}

// newArchive returns nil when no MinIO endpoint is configured.
func newArchive(ctx context.Context, c *config.Config) (domain.ResponseArchive, error) {
	if c.Minio.Endpoint == "" {
		return nil, nil
	}
	s, err := minioStore.New(ctx,
		c.Minio.Endpoint,
		c.Minio.Region,
		c.Minio.BucketName,
		c.Minio.AccessKey,
		c.Minio.SecretKey,
		c.Minio.UseSSL,
	)
	if err != nil {
		return nil, fmt.Errorf("minio init error: %w", err)
	}
	return s, nil
}

func newGitHub(c *config.Config) *github.Client {
	gh := github.NewClient(c.GitHub.APIURL, c.GitHub.Token, c.GitHub.Timeout)
	gh.MaxContentBytes = c.GitHub.MaxContentBytes
	return gh
}

// newDiscussion wires the pull request conversation to the same GitHub account.
func newDiscussion(c *config.Config, pub notify.Publisher, log logrus.FieldLogger) *appdiscussion.Service {
	return &appdiscussion.Service{Host: newGitHub(c), Publisher: pub, Log: log}
}

// newService assembles the analysis controller on top of st.
func newService(ctx context.Context, c *config.Config, st *store, pub notify.Publisher, metrics appanalysis.Metrics, log logrus.FieldLogger) (*appanalysis.Service, error) {
	inf, err := newInference(ctx, c)
	if err != nil {
		return nil, err
	}
	archive, err := newArchive(ctx, c)
	if err != nil {
		return nil, err
	}
	if c.GitHub.Token == "" {
		log.Warn("github.token is empty; private repositories and rate limits will fail")
	}

	svc := &appanalysis.Service{
		Runs:                st.Runs,
		Suggestions:         st.Suggestions,
		Hosting:             newGitHub(c),
		Inference:           inf,
		Archive:             archive,
		Annotator:           diffctx.Annotator{},
		Publisher:           pub,
		Gate:                domain.NewFileGate(c.Analysis.MaxChangedLines, c.Analysis.IgnoreSuffixes),
		Clock:               application.SystemClock{},
		Supervisor:          appanalysis.NewSupervisor(int64(c.Analysis.MaxConcurrentRuns)),
		Log:                 log,
		Metrics:             metrics,
		ContinueOnFileError: c.Analysis.ContinueOnFileError,
	}
	log.WithFields(logrus.Fields{
		"db":        c.Database.Driver,
		"inference": c.Inference.Provider,
		"model":     c.Inference.Model,
		"archive":   archive != nil,
	}).Info("analysis service ready")
	return svc, nil
}
