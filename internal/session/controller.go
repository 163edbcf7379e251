// Package session runs the camera/detection lifecycle and the per-frame
// recognition pipeline.
//
// All state lives on the goroutine running Controller.Run. Commands from
// other goroutines are queued on a channel and answered once applied, so
// the session and the word are never touched concurrently.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/signa/internal/capture"
	"github.com/ayusman/signa/internal/detector"
	"github.com/ayusman/signa/internal/events"
	"github.com/ayusman/signa/internal/overlay"
	"github.com/ayusman/signa/internal/word"
)

// Pipeline timing defaults.
const (
	// DefaultTickInterval targets 30 frames per second.
	DefaultTickInterval = 33 * time.Millisecond
	// DefaultReadTimeout bounds a single frame pull.
	DefaultReadTimeout = 2 * time.Second
)

// Config holds the collaborators of a Controller. Camera, Extractor and
// Classifier are required. Zero durations take the defaults; a negative
// ReadTimeout waits for the device indefinitely.
type Config struct {
	Camera     capture.Camera
	Extractor  detector.Extractor
	Classifier Classifier
	Renderer   *overlay.Renderer
	Gate       word.Gate

	TickInterval time.Duration
	ReadTimeout  time.Duration

	Frames FrameSink
	Events Publisher
	Logger *zap.Logger
}

type command struct {
	apply func() error
	reply chan error
}

// Controller owns the camera handle, the session state and the word.
type Controller struct {
	config Config
	logger *zap.Logger

	cmds chan command
	done chan struct{}

	// Owned by the Run goroutine.
	id      string
	session Session
	word    *word.Accumulator
	source  capture.FrameSource
	ticker  *time.Ticker
	tickC   <-chan time.Time
}

// New creates a Controller in the Idle state. Call Run to start serving
// commands.
func New(config Config) *Controller {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.Renderer == nil {
		config.Renderer = overlay.NewRenderer(overlay.DefaultStyle())
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Controller{
		config: config,
		logger: config.Logger.Named("session"),
		cmds:   make(chan command),
		done:   make(chan struct{}),
		word:   word.New(config.Gate),
	}
}

// Run serves commands and ticks until ctx is canceled. On return the camera
// is released, the word is cleared and every later command fails with
// ErrClosed. Run must be called at most once.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	defer c.teardown()

	c.logger.Info("session controller started", zap.Duration("tick", c.config.TickInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.cmds:
			cmd.reply <- cmd.apply()
		case <-c.tickC:
			c.tick(ctx)
		}
	}
}

// StartCamera acquires the camera and starts ticking. It returns an error
// wrapping ErrCameraUnavailable when the device cannot be opened.
func (c *Controller) StartCamera(ctx context.Context) error {
	return c.do(ctx, c.startCamera)
}

// StopCamera stops ticking and releases the camera. The word is kept.
func (c *Controller) StopCamera(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.stopCamera()
		return nil
	})
}

// ToggleDetection flips detection while the camera is on and returns the
// resulting session.
func (c *Controller) ToggleDetection(ctx context.Context) (Session, error) {
	var s Session
	err := c.do(ctx, func() error {
		c.toggleDetection()
		s = c.session
		return nil
	})
	return s, err
}

// ClearWord empties the word.
func (c *Controller) ClearWord(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.clearWord()
		return nil
	})
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.do(ctx, func() error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

func (c *Controller) do(ctx context.Context, apply func() error) error {
	cmd := command{apply: apply, reply: make(chan error, 1)}

	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// An accepted command is always answered before Run moves on.
	return <-cmd.reply
}

func (c *Controller) startCamera() error {
	if c.session.CameraActive {
		return nil
	}

	if err := c.config.Camera.Open(); err != nil {
		c.logger.Warn("camera unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}

	c.id = uuid.NewString()
	c.source = capture.NewPuller(c.config.Camera, c.config.ReadTimeout)
	c.session = Session{CameraActive: true}
	c.ticker = time.NewTicker(c.config.TickInterval)
	c.tickC = c.ticker.C

	c.logger.Info("camera started", zap.String("session", c.id))
	c.publishSession()
	return nil
}

func (c *Controller) stopCamera() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	// A nil channel never fires, so no tick runs after this point.
	c.tickC = nil
	if c.source != nil {
		c.source.Close()
		c.source = nil
	}

	wasActive := c.session.CameraActive
	c.session = Session{}

	if err := c.config.Camera.Close(); err != nil {
		c.logger.Warn("error closing camera", zap.Error(err))
	}

	if wasActive {
		c.logger.Info("camera stopped", zap.String("session", c.id))
		c.publishSession()
	}
}

func (c *Controller) toggleDetection() {
	if !c.session.CameraActive {
		return
	}
	c.session.DetectionActive = !c.session.DetectionActive

	c.logger.Info("detection toggled",
		zap.String("session", c.id),
		zap.Bool("active", c.session.DetectionActive),
	)
	c.publishSession()
}

func (c *Controller) clearWord() {
	c.word.Clear()
	c.publishSession()
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		ID:      c.id,
		Session: c.session,
		Word:    c.word.Current(),
	}
}

func (c *Controller) teardown() {
	c.stopCamera()
	c.word.Clear()

	if err := c.config.Extractor.Close(); err != nil {
		c.logger.Warn("error closing extractor", zap.Error(err))
	}

	c.publishSession()
	c.logger.Info("session controller stopped")
}

func (c *Controller) publish(e events.Event) {
	if c.config.Events != nil {
		c.config.Events.Publish(e)
	}
}

func (c *Controller) publishSession() {
	c.publish(c.snapshot().Event())
}

func (c *Controller) warn(msg string, err error) {
	c.logger.Warn(msg, zap.String("session", c.id), zap.Error(err))
	c.publish(events.NewWarning(err))
}
