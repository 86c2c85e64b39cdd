// Package api exposes the query pipeline over HTTP. One search endpoint,
// a health probe, and an edge throttle sit in front of the pipeline; all
// degradation semantics live below this layer, so the handler only maps
// pipeline outcomes to status codes.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/placemesh/placemesh/pkg/geo"
	"github.com/placemesh/placemesh/pkg/models"
	"github.com/placemesh/placemesh/pkg/observability"
	"github.com/placemesh/placemesh/pkg/pipeline"
	"github.com/placemesh/placemesh/pkg/ratelimit"
)

// Config wires the HTTP server's collaborators
type Config struct {
	Pipeline *pipeline.Pipeline
	Limiter  *ratelimit.Limiter
	Logger   observability.Logger
	Metrics  observability.MetricsClient

	// EdgeRPS and EdgeBurst configure the per-IP request throttle.
	// Zero values take the defaults.
	EdgeRPS   float64
	EdgeBurst int
}

// Server is the HTTP surface over the pipeline
type Server struct {
	cfg      Config
	logger   observability.Logger
	metrics  observability.MetricsClient
	throttle *ipThrottle
}

// NewServer creates the HTTP server. Pipeline is required.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("api: pipeline is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger("api")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}
	if cfg.EdgeRPS <= 0 {
		cfg.EdgeRPS = 10
	}
	if cfg.EdgeBurst <= 0 {
		cfg.EdgeBurst = 20
	}
	return &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		throttle: newIPThrottle(cfg.EdgeRPS, cfg.EdgeBurst),
	}, nil
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.Use(s.throttleMiddleware())
	v1.POST("/search", s.handleSearch)
	v1.GET("/limits", s.handleLimits)

	return r
}

// searchRequest is the POST /api/v1/search body
type searchRequest struct {
	Query    string          `json:"query" binding:"required"`
	Filters  *models.Filters `json:"filters,omitempty"`
	Location *geo.Point      `json:"location,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var body searchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	userID := c.GetHeader("X-User-ID")
	ip := c.ClientIP()

	resp, err := s.cfg.Pipeline.ProcessQuery(c.Request.Context(), pipeline.Request{
		Query:       body.Query,
		UserID:      userID,
		IP:          ip,
		Filters:     body.Filters,
		Geolocation: body.Location,
	})
	s.setRateLimitHeaders(c, userID, ip)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("Search failed", map[string]interface{}{
			"error": err.Error(),
		})
		s.metrics.IncrementCounter("api.search.errors", 1)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	if pipeline.LocationRequired(resp) {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: pipeline.ErrLocationRequired.Error()})
		return
	}
	if pipeline.CriticalFailure(resp) {
		s.logger.Error("Search returned no results after critical failure", map[string]interface{}{
			"request_id": resp.Performance.RequestID,
			"errors":     resp.Performance.Errors,
		})
		s.metrics.IncrementCounter("api.search.errors", 1)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "search backend unavailable"})
		return
	}

	s.metrics.IncrementCounterWithLabels("api.search.requests", 1, map[string]string{
		"partial": strconv.FormatBool(resp.Performance != nil && resp.Performance.PartialResults),
	})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLimits(c *gin.Context) {
	if s.cfg.Limiter == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	status := s.cfg.Limiter.Status(c.GetHeader("X-User-ID"), c.ClientIP())
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// setRateLimitHeaders reports remaining model-call slots for the caller's
// scopes. These reflect admission to external model calls, not HTTP
// requests.
func (s *Server) setRateLimitHeaders(c *gin.Context, userID, ip string) {
	if s.cfg.Limiter == nil {
		return
	}
	status := s.cfg.Limiter.Status(userID, ip)
	c.Header("X-RateLimit-Remaining-User", strconv.Itoa(status.UserRemaining))
	c.Header("X-RateLimit-Remaining-IP", strconv.Itoa(status.IPRemaining))
	c.Header("X-RateLimit-Remaining-Global", strconv.Itoa(status.GlobalRemaining))
}
