// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrInvalidDevice is returned by Open for a negative device index.
	ErrInvalidDevice = errors.New("invalid camera device")

	// ErrReadInProgress is returned by ReadFrame while another read is still
	// waiting on the device.
	ErrReadInProgress = errors.New("frame read already in progress")
)

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Config selects the capture device and resolution.
type Config struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
}

// DefaultConfig returns the first camera at 640x480, 30 FPS.
func DefaultConfig() Config {
	return Config{
		DeviceID: 0,
		Width:    DefaultWidth,
		Height:   DefaultHeight,
		FPS:      DefaultFPS,
	}
}

// device is the part of gocv.VideoCapture used for reading frames.
type device interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// cameraImpl manages video capture from a camera device using GoCV.
//
// mu is never held while waiting on the device: a stalled Read must not
// block Close. A Close that lands during a read leaves the device to the
// reader, which releases it once Read returns.
type cameraImpl struct {
	config  Config
	open    func(id int) (device, error)
	capture device
	mu      sync.Mutex
	running bool
	reading bool
	fps     int
}

// NewCamera creates a new Camera for the configured device.
// Zero width, height or FPS fall back to the defaults.
func NewCamera(config Config) Camera {
	if config.Width <= 0 {
		config.Width = DefaultWidth
	}
	if config.Height <= 0 {
		config.Height = DefaultHeight
	}
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}

	c := &cameraImpl{
		config: config,
		fps:    config.FPS,
	}
	c.open = c.openVideoCapture
	return c
}

func (c *cameraImpl) openVideoCapture(id int) (device, error) {
	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, err
	}

	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %d could not be opened", id)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	return capture, nil
}

// Open opens the camera for capturing frames at the configured resolution.
// Opening an already open camera is a no-op.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	if c.config.DeviceID < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDevice, c.config.DeviceID)
	}

	capture, err := c.open(c.config.DeviceID)
	if err != nil {
		return err
	}

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
// Closing a camera that is not open returns nil. Close does not wait for a
// read in progress; the device is released when that read returns.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	capture, reading := c.capture, c.reading
	c.capture = nil
	c.running = false
	c.reading = false

	if capture == nil || reading {
		return nil
	}
	return capture.Close()
}

// ReadFrame reads a single frame from the camera. Only one read may wait on
// the device at a time; a concurrent call fails with ErrReadInProgress.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	if !c.running || c.capture == nil {
		c.mu.Unlock()
		return nil, ErrCameraNotOpen
	}
	if c.reading {
		c.mu.Unlock()
		return nil, ErrReadInProgress
	}
	capture := c.capture
	c.reading = true
	c.mu.Unlock()

	mat := gocv.NewMat()
	ok := capture.Read(&mat)

	c.mu.Lock()
	// Closed (and possibly reopened) while the device was busy
	stale := c.capture != capture
	if !stale {
		c.reading = false
	}
	c.mu.Unlock()

	if stale {
		mat.Close()
		if err := capture.Close(); err != nil {
			return nil, fmt.Errorf("%w: release after close: %v", ErrCameraNotOpen, err)
		}
		return nil, ErrCameraNotOpen
	}

	if !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if vc, ok := c.capture.(*gocv.VideoCapture); ok && !c.reading {
		vc.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
