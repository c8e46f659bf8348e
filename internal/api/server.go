package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// Server is the HTTP host of the backtest service.
type Server struct {
	engine *gin.Engine
	server *http.Server
}

// NewServer wires routes and middleware. An empty origins list allows any
// origin.
func NewServer(addr string, origins []string, h *Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(errorHandler())
	engine.Use(loggerMiddleware())

	s := &Server{engine: engine}
	s.setupRoutes(h)

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	})
	s.server = &http.Server{
		Addr:              addr,
		Handler:           c.Handler(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(h *Handler) {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api/v1")
	{
		api.POST("/backtests", h.RunBacktest)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		api.GET("/bars/:symbol", h.GetBars)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "no route for "+c.Request.URL.Path, nil)
	})
}

// Handler returns the root handler including CORS.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[API] listening on %s", s.server.Addr)
	log.Println("[API]   POST /api/v1/backtests     - run a backtest")
	log.Println("[API]   GET  /api/v1/runs          - recent runs")
	log.Println("[API]   GET  /api/v1/runs/:id      - one run with trades")
	log.Println("[API]   GET  /api/v1/bars/:symbol  - validated bars")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Printf("[API] %s %s %d %v", c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// errorHandler turns panics into INTERNAL_ERROR responses.
func errorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		msg := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			msg = s
		}
		log.Printf("[ERROR] panic serving %s: %v", c.Request.URL.Path, recovered)
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", msg, nil)
	})
}

func abortWithError(c *gin.Context, status int, code, msg string, details map[string]any) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: msg, Details: details}})
}
