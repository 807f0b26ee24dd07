package ui

import (
	"net/http"
	"strings"

	"goprep/app"
	"goprep/domain/core"
	"goprep/ui/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

// ArtifactSource locates preprocessed files kept on this host
type ArtifactSource interface {
	ArtifactPath(ref core.ArtifactRef) (string, error)
}

// Options configures the HTTP API
type Options struct {
	Service        *app.PreprocessService
	Artifacts      ArtifactSource  // nil when artifacts live on a remote service
	Events         gin.HandlerFunc // SSE stream served at /events
	Metrics        http.Handler    // Prometheus exposition served at /metrics
	Mode           string          // gin mode, defaults to release
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server is the HTTP API of the preprocessing workspace
type Server struct {
	router    *gin.Engine
	handler   http.Handler
	service   *app.PreprocessService
	artifacts ArtifactSource
	maxUpload int64
}

// NewServer builds the gin engine and registers every route
func NewServer(opts Options) *Server {
	mode := opts.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	s := &Server{
		router:    gin.New(),
		service:   opts.Service,
		artifacts: opts.Artifacts,
		maxUpload: opts.MaxUploadBytes,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 50 << 20
	}

	// route on the escaped path so column names may contain '/'
	s.router.UseRawPath = true
	s.router.Use(middleware.RequestID(), gin.Logger(), gin.Recovery())
	s.setupRoutes(opts)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.SessionHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           300,
	})(s.router)
	return s
}

func (s *Server) setupRoutes(opts Options) {
	r := s.router
	r.GET("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if opts.Events != nil {
		r.GET("/events", opts.Events)
	}
	r.GET("/download/:ref", s.handleDownload)

	api := r.Group("/api", middleware.Session())
	{
		api.GET("/datasets", s.handleListDatasets)
		api.POST("/datasets", s.handleUpload)
		api.DELETE("/datasets/:id", s.handleRemoveDataset)
		api.GET("/columns", s.handleColumns)

		api.GET("/config", s.handleGetConfig)
		api.PATCH("/config", s.handlePatchConfig)
		api.DELETE("/config", s.handleResetConfig)
		api.POST("/config/columns/:kind/:column/toggle", s.handleToggleColumn)

		api.POST("/validate", s.handleValidate)
		api.POST("/preprocess", s.handleSubmit)

		api.GET("/submissions", s.handleListSubmissions)
		api.GET("/submissions/:id", s.handleGetSubmission)
		api.GET("/submissions/:id/report", s.handleReport)
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
