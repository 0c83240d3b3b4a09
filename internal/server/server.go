// Package server exposes the turn engine over HTTP: the turn contract, read
// endpoints for state and history, point-in-time restore, a websocket feed of
// stage envelopes, and an optional metrics scrape.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"loom/internal/engine"
	loomerrors "loom/internal/errors"
	"loom/internal/logging"
	"loom/internal/observability"
	"loom/internal/world"
)

// Server wraps the gin engine and the turn engine.
type Server struct {
	engine     *engine.Engine
	router     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
}

// New builds the HTTP server. metrics may be nil or disabled; the /metrics
// route is registered only when a collector is provided.
func New(eng *engine.Engine, addr string, metrics *observability.MetricsCollector) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	corsConfig.AllowWebSockets = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		engine: eng,
		router: router,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logging.NewComponentLogger("server"),
	}

	api := router.Group("/api")
	api.POST("/turn", s.handleTurn)
	api.GET("/state", s.handleState)
	api.GET("/snapshots", s.handleSnapshots)
	api.POST("/restore", s.handleRestore)
	router.GET("/ws", s.handleWebsocket)

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type turnRequestBody struct {
	Action string `json:"action" binding:"required"`
	Turn   *int   `json:"turn"`
}

func (s *Server) handleTurn(c *gin.Context) {
	var body turnRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	// Omitting the turn binds the request to the current snapshot.
	turn := s.engine.Store().Current().Turn
	if body.Turn != nil {
		turn = *body.Turn
	}

	result, err := s.engine.RunTurn(c.Request.Context(), engine.TurnRequest{
		Action: body.Action,
		Turn:   turn,
	})
	if err != nil {
		s.logger.Warn("Turn failed: %v", err)
		if pipeErr, ok := loomerrors.IsPipelineError(err); ok {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": pipeErr.Error(),
				"stage": pipeErr.Stage,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if result.State == engine.StateRejected {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"rejected": result.Rejected,
			"turn":     result.Turn,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleState(c *gin.Context) {
	snapshot := s.engine.Store().Current()
	c.JSON(http.StatusOK, gin.H{
		"turn":     snapshot.Turn,
		"location": snapshot.Location,
		"clock":    snapshot.ClockString(),
		"actors":   snapshot.Actors,
		"plot":     snapshot.PlotThreads,
		"ambient":  snapshot.Ambient,
		"summary":  snapshot.Summary(),
	})
}

func (s *Server) handleSnapshots(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	metas, err := s.engine.Store().History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": metas})
}

type restoreRequestBody struct {
	Turn int `json:"turn"`
}

func (s *Server) handleRestore(c *gin.Context) {
	var body restoreRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "turn is required"})
		return
	}

	snapshot, err := s.engine.Store().Restore(body.Turn)
	if err != nil {
		if err == world.ErrSnapshotNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for that turn"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"turn":    snapshot.Turn,
		"summary": snapshot.Summary(),
	})
}
