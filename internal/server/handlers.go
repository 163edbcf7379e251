package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayusman/signa/internal/events"
	"github.com/ayusman/signa/internal/session"
)

// Error codes returned in errorResponse.Code.
const (
	codeCameraUnavailable = "camera_unavailable"
	codeSessionClosed     = "session_closed"
	codeInternal          = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sessionResponse struct {
	ID              string   `json:"id,omitempty"`
	State           string   `json:"state"`
	CameraActive    bool     `json:"camera_active"`
	DetectionActive bool     `json:"detection_active"`
	Word            string   `json:"word"`
	Letters         []string `json:"letters"`
}

type modelResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	NumClasses  int      `json:"num_classes"`
	NumFeatures int      `json:"num_features"`
	Labels      []string `json:"labels"`
	CreatedAt   string   `json:"created_at"`
}

func toSessionResponse(s session.Snapshot) sessionResponse {
	letters := s.Word
	if letters == nil {
		letters = []string{}
	}
	return sessionResponse{
		ID:              s.ID,
		State:           s.State().String(),
		CameraActive:    s.Session.CameraActive,
		DetectionActive: s.Session.DetectionActive,
		Word:            strings.Join(letters, ""),
		Letters:         letters,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func (s *Server) handleSession(c *gin.Context) {
	s.respondSnapshot(c, http.StatusOK)
}

func (s *Server) handleStartCamera(c *gin.Context) {
	if err := s.config.Controller.StartCamera(c.Request.Context()); err != nil {
		s.commandError(c, err)
		return
	}
	s.respondSnapshot(c, http.StatusOK)
}

func (s *Server) handleStopCamera(c *gin.Context) {
	if err := s.config.Controller.StopCamera(c.Request.Context()); err != nil {
		s.commandError(c, err)
		return
	}
	s.respondSnapshot(c, http.StatusOK)
}

func (s *Server) handleToggleDetection(c *gin.Context) {
	if _, err := s.config.Controller.ToggleDetection(c.Request.Context()); err != nil {
		s.commandError(c, err)
		return
	}
	s.respondSnapshot(c, http.StatusOK)
}

func (s *Server) handleClearWord(c *gin.Context) {
	if err := s.config.Controller.ClearWord(c.Request.Context()); err != nil {
		s.commandError(c, err)
		return
	}
	s.respondSnapshot(c, http.StatusOK)
}

func (s *Server) handleChallenge(c *gin.Context) {
	c.JSON(http.StatusOK, s.config.Challenge.State())
}

func (s *Server) handleNextChallenge(c *gin.Context) {
	state := s.config.Challenge.Next()
	if s.config.Events != nil {
		s.config.Events.Publish(events.NewChallenge(state))
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleModels(c *gin.Context) {
	records, err := s.config.Models.List()
	if err != nil {
		s.logger.Error("failed to list models", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: "failed to list models"})
		return
	}

	models := make([]modelResponse, 0, len(records))
	for _, r := range records {
		models = append(models, modelResponse{
			ID:          r.ID,
			Name:        r.Name,
			NumClasses:  r.NumClasses,
			NumFeatures: r.NumFeatures,
			Labels:      r.Labels,
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (s *Server) respondSnapshot(c *gin.Context, status int) {
	snap, err := s.config.Controller.Snapshot(c.Request.Context())
	if err != nil {
		s.commandError(c, err)
		return
	}
	c.JSON(status, toSessionResponse(snap))
}

func (s *Server) commandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrCameraUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Code: codeCameraUnavailable, Message: err.Error()})
	case errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Code: codeSessionClosed, Message: err.Error()})
	default:
		s.logger.Error("command failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: err.Error()})
	}
}
