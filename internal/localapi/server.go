package localapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"aiwatch/internal/backend"
	"aiwatch/internal/costs"
	"aiwatch/internal/engine"
	"aiwatch/internal/errorlog"
	"aiwatch/internal/export"
	"aiwatch/internal/jobs"
	"aiwatch/internal/logging"
	"aiwatch/internal/providers"
	"aiwatch/internal/recommendations"
	"aiwatch/internal/results"
)

// Engine is the subset of *engine.Engine the server drives.
type Engine interface {
	View() engine.View
	Inspect(ctx context.Context, jobID string) (results.Result, error)
	Retry(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
	ResolveError(ctx context.Context, id, status string) (errorlog.Entry, error)
	SetRecommendation(ctx context.Context, id string, implemented bool) (recommendations.Recommendation, error)
	Refresh(ctx context.Context) error
}

var _ Engine = (*engine.Engine)(nil)

// Options configures a Server.
type Options struct {
	Bind        string
	Token       string
	OwnerID     string
	StateDBPath string
	Metrics     http.Handler
	Logger      *slog.Logger
	Now         func() time.Time
}

// Server is the local control API.
type Server struct {
	opts   Options
	engine Engine
	logger *slog.Logger
	router *gin.Engine

	listener net.Listener
	server   *http.Server
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// New builds the router. Nothing listens until Start.
func New(eng Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:   opts,
		engine: eng,
		logger: opts.Logger.With(logging.String("component", "local-api")),
	}
	s.router = s.routes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), authMiddleware(s.opts.Token))

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/jobs", s.handleJobs)
	api.GET("/jobs/:id/result", s.handleResult)
	api.POST("/jobs/:id/retry", s.handleJobAction)
	api.POST("/jobs/:id/cancel", s.handleJobAction)
	api.GET("/costs", s.handleCosts)
	api.GET("/errors", s.handleErrors)
	api.POST("/errors/:id/status", s.handleErrorStatus)
	api.GET("/providers", s.handleProviders)
	api.GET("/recommendations", s.handleRecommendations)
	api.POST("/recommendations/:id", s.handleRecommendation)
	api.POST("/refresh", s.handleRefresh)
	api.GET("/export", s.handleExport)

	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}
	return r
}

// Start listens on the bind address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleStatus(c *gin.Context) {
	v := s.engine.View()
	c.JSON(http.StatusOK, StatusResponse{
		Running:              true,
		PID:                  os.Getpid(),
		OwnerID:              s.opts.OwnerID,
		StateDBPath:          s.opts.StateDBPath,
		Channel:              v.Channel,
		LastRefresh:          v.LastRefresh,
		LastRefreshError:     v.LastRefreshError,
		JobCounts:            v.StatusCounts,
		CostRange:            v.CostRange,
		CostTotal:            v.CostTotal.Float(),
		CostAlert:            v.CostAlert,
		QuotaRatio:           v.QuotaRatio,
		Providers:            len(v.Providers),
		OperationalProviders: v.OperationalProviders,
		ErrorCounts:          v.ErrorCounts,
		PotentialSavings:     v.PotentialSavings,
	})
}

func (s *Server) handleJobs(c *gin.Context) {
	filter, err := FilterFromQuery(c.Request.URL.Query())
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, JobsResponse{Jobs: filter.Select(s.engine.View().Jobs)})
}

func (s *Server) handleResult(c *gin.Context) {
	result, err := s.engine.Inspect(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleJobAction(c *gin.Context) {
	id := c.Param("id")
	var err error
	action := "retry"
	if strings.HasSuffix(c.FullPath(), "/cancel") {
		action = "cancel"
		err = s.engine.Cancel(c.Request.Context(), id)
	} else {
		err = s.engine.Retry(c.Request.Context(), id)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ActionResponse{OK: true, Message: fmt.Sprintf("%s requested for job %s", action, id)})
}

func (s *Server) handleCosts(c *gin.Context) {
	v := s.engine.View()
	r, err := rangeFromQuery(c.Request.URL.Query(), v.CostRange)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	rollups := make([]costs.Rollup, 0, len(v.Rollups))
	for _, roll := range v.Rollups {
		if r.Contains(roll.Date) {
			rollups = append(rollups, roll)
		}
	}
	c.JSON(http.StatusOK, CostsResponse{
		Range:     r,
		Rollups:   rollups,
		Total:     costs.SumTotals(rollups),
		Breakdown: costs.Breakdown(rollups),
		Alert:     v.CostAlert,
		Quota:     v.Quota,
	})
}

func (s *Server) handleErrors(c *gin.Context) {
	v := s.engine.View()
	entries := v.Errors
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := errorlog.ParseStatus(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		entries = make([]errorlog.Entry, 0, len(v.Errors))
		for _, entry := range v.Errors {
			if entry.Status == status {
				entries = append(entries, entry)
			}
		}
	}
	c.JSON(http.StatusOK, ErrorsResponse{Errors: entries, Counts: v.ErrorCounts})
}

func (s *Server) handleErrorStatus(c *gin.Context) {
	var req ErrorStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	entry, err := s.engine.ResolveError(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleProviders(c *gin.Context) {
	v := s.engine.View()
	c.JSON(http.StatusOK, ProvidersResponse{
		Providers:   v.Providers,
		Operational: providers.CountOperational(v.Providers),
		Models:      v.Models,
	})
}

func (s *Server) handleRecommendations(c *gin.Context) {
	v := s.engine.View()
	c.JSON(http.StatusOK, RecommendationsResponse{Recommendations: v.Recommendations, PotentialSavings: v.PotentialSavings})
}

func (s *Server) handleRecommendation(c *gin.Context) {
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	rec, err := s.engine.SetRecommendation(c.Request.Context(), c.Param("id"), req.Implemented)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleRefresh(c *gin.Context) {
	if err := s.engine.Refresh(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ActionResponse{OK: true, Message: "refreshed"})
}

func (s *Server) handleExport(c *gin.Context) {
	query := c.Request.URL.Query()
	kind, err := export.ParseKind(query.Get("kind"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	format, err := export.ParseFormat(query.Get("format"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	filter, err := FilterFromQuery(query)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	doc := export.Build(s.engine.View(), kind, filter, s.opts.Now())
	c.Header("Content-Type", export.ContentType(format))
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, doc, format); err != nil {
		s.logger.Error("export encode failed", logging.Error(err))
	}
}

// fail maps domain errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, jobs.ErrUnknownJob),
		errors.Is(err, errorlog.ErrNotFound),
		errors.Is(err, recommendations.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errorlog.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrRefreshThrottled):
		status = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.As(err, &statusErr):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("api request failed",
			logging.String("path", c.FullPath()),
			logging.Error(err),
		)
	}
	writeError(c, status, err)
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("api request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
}

// authMiddleware requires "Authorization: Bearer <token>" when token is set.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

// FilterFromQuery parses status, provider, search, from and to. Dates are
// RFC 3339 or YYYY-MM-DD; a bare "to" date covers the whole day.
func FilterFromQuery(q url.Values) (jobs.Filter, error) {
	var f jobs.Filter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			return jobs.Filter{}, fmt.Errorf("invalid status %q", raw)
		}
		f.Status = status
	}
	f.Provider = strings.TrimSpace(q.Get("provider"))
	f.Search = strings.TrimSpace(q.Get("search"))
	var err error
	if f.From, err = parseBound(q.Get("from"), false); err != nil {
		return jobs.Filter{}, err
	}
	if f.To, err = parseBound(q.Get("to"), true); err != nil {
		return jobs.Filter{}, err
	}
	return f, nil
}

// FilterQuery is the inverse of FilterFromQuery.
func FilterQuery(f jobs.Filter) url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Provider != "" {
		q.Set("provider", f.Provider)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if !f.From.IsZero() {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	return q
}

func parseBound(value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	day, err := costs.ParseDay(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", value)
	}
	ts := day.Time()
	if endOfDay {
		ts = ts.Add(24*time.Hour - time.Nanosecond)
	}
	return ts, nil
}

func rangeFromQuery(q url.Values, fallback costs.DateRange) (costs.DateRange, error) {
	r := fallback
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		day, err := costs.ParseDay(raw)
		if err != nil {
			return costs.DateRange{}, err
		}
		r.From = day
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		day, err := costs.ParseDay(raw)
		if err != nil {
			return costs.DateRange{}, err
		}
		r.To = day
	}
	if r.From != "" && r.To != "" && r.From > r.To {
		return costs.DateRange{}, fmt.Errorf("from %s is after to %s", r.From, r.To)
	}
	return r, nil
}
