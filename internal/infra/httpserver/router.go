package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	appanalysis "github.com/bryanwahyu/automaton-review/internal/application/analysis"
	appdiscussion "github.com/bryanwahyu/automaton-review/internal/application/discussion"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-review/internal/infra/ws"
	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

// Options wires the cross-cutting pieces of the HTTP surface.
type Options struct {
	APIKeys     map[string]string
	CORSOrigins []string
	Limiter     *middleware.RateLimiter             // optional
	Metrics     *middleware.Metrics                 // optional
	Checks      map[string]middleware.HealthChecker // /health
	WS          ws.Options
	Log         logrus.FieldLogger

	// Discussion enables the pull request browse/comment/review routes; optional.
	Discussion *appdiscussion.Service
}

type Router struct {
	svc      *appanalysis.Service
	disc     *appdiscussion.Service
	hub      *ws.Hub
	wsOpts   ws.Options
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewRouter(svc *appanalysis.Service, hub *ws.Hub, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Router{svc: svc, disc: opts.Discussion, hub: hub, wsOpts: opts.WS, log: log}
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.CORSOrigins),
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logging(log))
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.Limiter != nil {
		mux.Use(opts.Limiter.Middleware)
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checks))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	if opts.Metrics != nil {
		mux.Get("/metrics", opts.Metrics.Handler)
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/pull-requests/{pr}/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/pull-requests/{pr}/status", r.wrap(r.handleStatus))
		rt.Get("/pull-requests/{pr}/runs", r.wrap(r.handleRuns))
		rt.Get("/pull-requests/{pr}/suggestions", r.wrap(r.handleSuggestions))
		rt.Get("/runs/{id}", r.wrap(r.handleGetRun))
		rt.Get("/runs/{id}/suggestions", r.wrap(r.handleRunSuggestions))
		rt.Put("/suggestions/{id}", r.wrap(r.handleUpdateSuggestion))
		rt.Get("/ws", r.handleWS)

		if r.disc != nil {
			rt.Get("/repos/{owner}/{repo}/pulls", r.wrap(r.handleListPulls))
			rt.Get("/pull-requests/{pr}", r.wrap(r.handleGetPull))
			rt.Get("/pull-requests/{pr}/comments", r.wrap(r.handleListComments))
			rt.Post("/pull-requests/{pr}/comments", r.wrap(r.handleCreateComment))
			rt.Post("/pull-requests/{pr}/reviews", r.wrap(r.handleCreateReview))
		}
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks an error caused by the client's input.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		case errors.Is(err, domain.ErrInvalidDisposition), errors.Is(err, domain.ErrInvalidInput), errors.As(err, &br):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, appanalysis.ErrSupervisorClosed):
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		default:
			r.log.WithError(err).WithField("path", req.URL.Path).Error("request failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

// POST /v1/pull-requests/{pr}/analyze
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	cs, err := changeSetParam(req)
	if err != nil {
		return err
	}

	h, err := r.svc.StartAnalysis(req.Context(), cs, middleware.ClientFromContext(req.Context()))
	if err != nil {
		return err
	}

	status, msg := http.StatusAccepted, "analysis started"
	if h.AlreadyInProgress {
		status, msg = http.StatusOK, "analysis already in progress"
	}
	return writeJSON(w, status, map[string]any{
		"analysis_id":         h.RunID,
		"already_in_progress": h.AlreadyInProgress,
		"message":             msg,
	})
}

// GET /v1/pull-requests/{pr}/status
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	cs, err := changeSetParam(req)
	if err != nil {
		return err
	}
	run, err := r.svc.Status(req.Context(), cs)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, run)
}

// GET /v1/pull-requests/{pr}/runs?limit=20
func (r *Router) handleRuns(w http.ResponseWriter, req *http.Request) error {
	cs, err := changeSetParam(req)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.svc.History(req.Context(), cs, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Run{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/pull-requests/{pr}/suggestions
func (r *Router) handleSuggestions(w http.ResponseWriter, req *http.Request) error {
	cs, err := changeSetParam(req)
	if err != nil {
		return err
	}
	list, err := r.svc.ListSuggestions(req.Context(), cs)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Suggestion{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/runs/{id}
func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req)
	if err != nil {
		return err
	}
	run, err := r.svc.Run(req.Context(), domain.RunID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, run)
}

// GET /v1/runs/{id}/suggestions
func (r *Router) handleRunSuggestions(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req)
	if err != nil {
		return err
	}
	if _, err := r.svc.Run(req.Context(), domain.RunID(id)); err != nil {
		return err
	}
	list, err := r.svc.RunSuggestions(req.Context(), domain.RunID(id))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Suggestion{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// PUT /v1/suggestions/{id}
// Body: {"status": "accepted"}
func (r *Router) handleUpdateSuggestion(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}

	sug, err := r.svc.UpdateDisposition(req.Context(), domain.SuggestionID(id), body.Status)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sug)
}

// GET /v1/repos/{owner}/{repo}/pulls?state=open
func (r *Router) handleListPulls(w http.ResponseWriter, req *http.Request) error {
	repo := chi.URLParam(req, "owner") + "/" + chi.URLParam(req, "repo")
	list, err := r.disc.PullRequests(req.Context(), repo, req.URL.Query().Get("state"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []domain.PullRequestInfo{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/pull-requests/{pr}
func (r *Router) handleGetPull(w http.ResponseWriter, req *http.Request) error {
	cs, err := changeSetParam(req)
	if err != nil {
		return err
	}
	pr, err := r.disc.PullRequest(req.Context(), cs)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, pr)
}

// GET /v1/pull-requests/{pr}/comments
func (r *Router) handleListComments(w http.ResponseWriter, req *http.Request) error {
	cs, err := changeSetParam(req)
	if err != nil {
		return err
	}
	list, err := r.disc.Comments(req.Context(), cs)
	if err != nil {
		return err
	}
	if list == nil {
		list = []domain.Comment{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/pull-requests/{pr}/comments
// Body: {"body": "...", "path": "main.go", "line": 12, "commit_id": "optional"}
func (r *Router) handleCreateComment(w http.ResponseWriter, req *http.Request) error {
	cs, err := changeSetParam(req)
	if err != nil {
		return err
	}
	var d domain.CommentDraft
	if err := decodeBody(w, req, &d); err != nil {
		return err
	}
	d.Body = middleware.SanitizeString(d.Body)

	c, err := r.disc.Comment(req.Context(), cs, d, middleware.ClientFromContext(req.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, c)
}

// POST /v1/pull-requests/{pr}/reviews
// Body: {"body": "...", "event": "COMMENT|APPROVE|REQUEST_CHANGES", "comments": [...]}
func (r *Router) handleCreateReview(w http.ResponseWriter, req *http.Request) error {
	cs, err := changeSetParam(req)
	if err != nil {
		return err
	}
	var d domain.ReviewDraft
	if err := decodeBody(w, req, &d); err != nil {
		return err
	}
	d.Body = middleware.SanitizeString(d.Body)
	for i := range d.Comments {
		d.Comments[i].Body = middleware.SanitizeString(d.Comments[i].Body)
	}

	rv, err := r.disc.Review(req.Context(), cs, d, middleware.ClientFromContext(req.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, rv)
}

// GET /v1/ws?token=...
func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	client := middleware.ClientFromContext(req.Context())
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade sudah menulis response error
		r.log.WithError(err).WithField("client_id", client).Warn("ws upgrade failed")
		return
	}
	ws.Serve(r.hub, client, conn, r.wsOpts)
}

// helper

func changeSetParam(req *http.Request) (domain.ChangeSetID, error) {
	raw, err := url.PathUnescape(chi.URLParam(req, "pr"))
	if err != nil {
		return "", badRequest{fmt.Errorf("invalid pr id: %w", err)}
	}
	if err := middleware.ValidateChangeSetID(raw); err != nil {
		return "", badRequest{err}
	}
	return domain.ChangeSetID(raw), nil
}

func idParam(req *http.Request) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID(id); err != nil {
		return "", badRequest{err}
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, req *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20)).Decode(dst); err != nil {
		return badRequest{fmt.Errorf("invalid body: %w", err)}
	}
	return nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}
