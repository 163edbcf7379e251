package session

import (
	"errors"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/signa/internal/classifier"
	"github.com/ayusman/signa/internal/events"
	"github.com/ayusman/signa/internal/feature"
)

var (
	// ErrCameraUnavailable is returned by StartCamera when the device cannot
	// be opened. The session stays Idle.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrFrameRead marks a tick skipped because no frame could be pulled.
	ErrFrameRead = errors.New("frame read failed")
	// ErrClosed is returned by commands sent after the controller has stopped.
	ErrClosed = errors.New("session controller closed")
)

// State names the three lifecycle states.
type State int

const (
	Idle State = iota
	CameraOn
	CameraOnDetecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CameraOn:
		return "camera_on"
	case CameraOnDetecting:
		return "camera_on_detecting"
	default:
		return "unknown"
	}
}

// Session is the camera/detection state carried across ticks.
// DetectionActive implies CameraActive.
type Session struct {
	CameraActive    bool `json:"camera_active"`
	DetectionActive bool `json:"detection_active"`
}

// State maps the flags onto the lifecycle state.
func (s Session) State() State {
	switch {
	case s.CameraActive && s.DetectionActive:
		return CameraOnDetecting
	case s.CameraActive:
		return CameraOn
	default:
		return Idle
	}
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	ID      string
	Session Session
	Word    []string
}

// State returns the lifecycle state of the snapshot.
func (s Snapshot) State() State {
	return s.Session.State()
}

// Event converts the snapshot into a session event.
func (s Snapshot) Event() events.Event {
	return events.NewSession(events.SessionState{
		ID:              s.ID,
		State:           s.State().String(),
		CameraActive:    s.Session.CameraActive,
		DetectionActive: s.Session.DetectionActive,
		Word:            strings.Join(s.Word, ""),
	})
}

// Classifier turns a feature vector into a letter and a confidence.
type Classifier interface {
	Classify(v feature.Vector) (classifier.Result, error)
}

// FrameSink receives every annotated frame. The frame is closed after
// ShowFrame returns; sinks that keep it must copy it.
type FrameSink interface {
	ShowFrame(frame gocv.Mat)
}

// Publisher receives session, prediction and warning events.
type Publisher interface {
	Publish(e events.Event)
}
