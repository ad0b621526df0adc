// Package server exposes the analysis service over HTTP with gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// DefaultListLimit is used when a list request has no limit parameter.
const DefaultListLimit = 50

// Service is the part of application.AnalysisService the HTTP surface uses.
type Service interface {
	SubmitEvent(ctx context.Context, event domain.Event) (domain.Event, error)
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	ListEvents(ctx context.Context, limit int) ([]domain.Event, error)
	AnalyzeEvent(ctx context.Context, eventID string) (domain.AnalysisResult, error)
	Analyze(ctx context.Context, event domain.Event) (domain.AnalysisResult, error)
	GetAnalysis(ctx context.Context, id string) (domain.AnalysisResult, error)
	LatestAnalysisForEvent(ctx context.Context, eventID string) (domain.AnalysisResult, error)
	ListAnalyses(ctx context.Context, limit int) ([]domain.AnalysisResult, error)
	Lineage(ctx context.Context, lab string) ([]domain.Genome, error)
}

// LabStrategies is the lineage of one lab as served by the strategies
// endpoints.
type LabStrategies struct {
	LabName  string          `json:"lab_name"`
	Versions []domain.Genome `json:"versions"`
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc      Service
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	engine   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithGatherer sets the registry served on /metrics. The default is
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds the router.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		logger:   zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.POST("/events", s.submitEvent)
	api.GET("/events", s.listEvents)
	api.GET("/events/:id", s.getEvent)
	api.POST("/events/:id/analyze", s.analyzeEvent)
	api.GET("/events/:id/analysis", s.eventAnalysis)
	api.POST("/analyses", s.analyze)
	api.GET("/analyses", s.listAnalyses)
	api.GET("/analyses/:id", s.getAnalysis)
	api.GET("/labs/strategies", s.strategies)
	api.GET("/labs/:lab/strategies", s.labStrategies)

	s.engine = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) submitEvent(c *gin.Context) {
	var event domain.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event: " + err.Error()})
		return
	}
	stored, err := s.svc.SubmitEvent(c.Request.Context(), event)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) listEvents(c *gin.Context) {
	limit, ok := listLimit(c)
	if !ok {
		return
	}
	events, err := s.svc.ListEvents(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) getEvent(c *gin.Context) {
	event, err := s.svc.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) analyzeEvent(c *gin.Context) {
	result, err := s.svc.AnalyzeEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) eventAnalysis(c *gin.Context) {
	result, err := s.svc.LatestAnalysisForEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) analyze(c *gin.Context) {
	var event domain.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event: " + err.Error()})
		return
	}
	result, err := s.svc.Analyze(c.Request.Context(), event)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listAnalyses(c *gin.Context) {
	limit, ok := listLimit(c)
	if !ok {
		return
	}
	results, err := s.svc.ListAnalyses(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) getAnalysis(c *gin.Context) {
	result, err := s.svc.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) strategies(c *gin.Context) {
	out := make([]LabStrategies, 0, len(domain.LabNames))
	for _, lab := range domain.LabNames {
		versions, err := s.svc.Lineage(c.Request.Context(), lab)
		if err != nil {
			s.fail(c, err)
			return
		}
		out = append(out, LabStrategies{LabName: lab, Versions: versions})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) labStrategies(c *gin.Context) {
	lab := c.Param("lab")
	versions, err := s.svc.Lineage(c.Request.Context(), lab)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, LabStrategies{LabName: lab, Versions: versions})
}

// listLimit parses the limit query parameter and writes a 400 response
// when it is malformed.
func listLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return DefaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return limit, true
}

// fail writes the status StatusFor maps err to. Server errors are logged
// and their detail is not returned.
func (s *Server) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrAnalysisNotFound),
		errors.Is(err, domain.ErrGenomeNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownLab), errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}
