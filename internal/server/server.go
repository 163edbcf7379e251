// Package server exposes the session commands and the event stream over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayusman/signa/internal/events"
	"github.com/ayusman/signa/internal/logger"
	"github.com/ayusman/signa/internal/session"
	"github.com/ayusman/signa/internal/store"
)

// Controller is the command surface of the session controller.
type Controller interface {
	StartCamera(ctx context.Context) error
	StopCamera(ctx context.Context) error
	ToggleDetection(ctx context.Context) (session.Session, error)
	ClearWord(ctx context.Context) error
	Snapshot(ctx context.Context) (session.Snapshot, error)
}

// Challenge is the practice challenge surface.
type Challenge interface {
	State() events.Challenge
	Next() events.Challenge
}

// Hub publishes and fans out events.
type Hub interface {
	Subscribe() (<-chan events.Event, func())
	Publish(e events.Event)
}

// ModelLister lists the stored classifier artifacts.
type ModelLister interface {
	List() ([]*store.ModelRecord, error)
}

// Config holds the server configuration. Nil collaborators disable the
// routes that need them.
type Config struct {
	StaticDir  string
	Controller Controller
	Challenge  Challenge
	Events     Hub
	Models     ModelLister
	Logger     *zap.Logger
}

// Server is the HTTP front of the application.
type Server struct {
	config Config
	engine *gin.Engine
	logger *zap.Logger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	s := &Server{
		config: config,
		engine: gin.New(),
		logger: config.Logger.Named("server"),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.engine
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(logger.Gin(s.logger))

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)

	if s.config.Controller != nil {
		api.GET("/session", s.handleSession)
		api.POST("/camera/start", s.handleStartCamera)
		api.POST("/camera/stop", s.handleStopCamera)
		api.POST("/detection/toggle", s.handleToggleDetection)
		api.POST("/word/clear", s.handleClearWord)
	}

	if s.config.Challenge != nil {
		api.GET("/challenge", s.handleChallenge)
		api.POST("/challenge/next", s.handleNextChallenge)
	}

	if s.config.Models != nil {
		api.GET("/models", s.handleModels)
	}

	if s.config.Events != nil {
		api.GET("/events", s.handleEvents)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		r.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") || !s.staticExists(c.Request.URL.Path) {
				c.Status(http.StatusNotFound)
				return
			}
			fs.ServeHTTP(c.Writer, c.Request)
		})
	}
}

func (s *Server) staticExists(urlPath string) bool {
	name := filepath.Join(s.config.StaticDir, filepath.FromSlash(filepath.Clean("/"+urlPath)))
	_, err := os.Stat(name)
	return err == nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
