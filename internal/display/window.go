// Package display shows the annotated camera feed in a local window and
// turns key presses into session commands.
package display

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/signa/internal/events"
)

// Action is a command requested from the keyboard.
type Action int

const (
	ActionNone Action = iota
	ActionStartCamera
	ActionStopCamera
	ActionToggleDetection
	ActionClearWord
	ActionNextChallenge
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionStartCamera:
		return "start_camera"
	case ActionStopCamera:
		return "stop_camera"
	case ActionToggleDetection:
		return "toggle_detection"
	case ActionClearWord:
		return "clear_word"
	case ActionNextChallenge:
		return "next_challenge"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

const keyEsc = 27

// KeyAction maps a WaitKey code to an action.
func KeyAction(key int) Action {
	if key < 0 {
		return ActionNone
	}
	switch key & 0xff {
	case 's', 'S':
		return ActionStartCamera
	case 'x', 'X':
		return ActionStopCamera
	case 'd', 'D':
		return ActionToggleDetection
	case 'c', 'C':
		return ActionClearWord
	case 'n', 'N':
		return ActionNextChallenge
	case 'q', 'Q', keyEsc:
		return ActionQuit
	default:
		return ActionNone
	}
}

// status is what the heads-up lines show.
type status struct {
	state  string
	word   string
	target string
	points int
}

// HUDLines returns the text drawn under the frame.
func (s status) HUDLines() []string {
	lines := []string{fmt.Sprintf("Word: %s", s.word)}
	if s.target != "" {
		lines = append(lines, fmt.Sprintf("Practice: %s   Points: %d", s.target, s.points))
	}
	switch s.state {
	case "", "idle":
		lines = append(lines, "[s] start camera  [q] quit")
	case "camera_on":
		lines = append(lines, "[d] detect  [x] stop  [c] clear  [n] next  [q] quit")
	default:
		lines = append(lines, "[d] pause  [x] stop  [c] clear  [n] next  [q] quit")
	}
	return lines
}

const (
	hudLineHeight = 26
	hudPadding    = 10
)

var hudColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// Window is a FrameSink backed by an OpenCV window. ShowFrame and Watch may
// be called from any goroutine; Run must be called from the main thread.
type Window struct {
	title string

	mu     sync.Mutex
	latest gocv.Mat
	status status
}

// NewWindow creates a Window. Close releases the buffered frame.
func NewWindow(title string) *Window {
	return &Window{
		title:  title,
		latest: gocv.NewMat(),
		status: status{state: "idle"},
	}
}

// ShowFrame keeps a copy of frame for the next refresh.
func (w *Window) ShowFrame(frame gocv.Mat) {
	w.mu.Lock()
	defer w.mu.Unlock()
	frame.CopyTo(&w.latest)
}

// Watch follows session and challenge events until ctx is canceled or the
// stream closes.
func (w *Window) Watch(ctx context.Context, stream <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-stream:
			if !ok {
				return
			}
			w.apply(e)
		}
	}
}

func (w *Window) apply(e events.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch e.Kind {
	case events.KindSession:
		w.status.state = e.Session.State
		w.status.word = e.Session.Word
		if !e.Session.CameraActive {
			// Drop the last frame so a stopped camera shows a blank screen
			w.latest.Close()
			w.latest = gocv.NewMat()
		}
	case events.KindPrediction:
		w.status.word = e.Prediction.Word
	case events.KindChallenge:
		w.status.target = e.Challenge.Target
		w.status.points = e.Challenge.Points
	}
}

// compose returns the image to show: the latest frame (or a blank one)
// with the heads-up lines drawn underneath.
func (w *Window) compose(width, height int) gocv.Mat {
	w.mu.Lock()
	lines := w.status.HUDLines()
	var frame gocv.Mat
	if w.latest.Empty() {
		frame = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	} else {
		frame = w.latest.Clone()
	}
	w.mu.Unlock()
	defer frame.Close()

	hud := len(lines)*hudLineHeight + hudPadding
	out := gocv.NewMatWithSize(frame.Rows()+hud, frame.Cols(), gocv.MatTypeCV8UC3)

	region := out.Region(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	frame.CopyTo(&region)
	region.Close()

	for i, line := range lines {
		pt := image.Pt(hudPadding, frame.Rows()+(i+1)*hudLineHeight)
		gocv.PutText(&out, line, pt, gocv.FontHersheySimplex, 0.6, hudColor, 1)
	}
	return out
}

// Run refreshes the window until ctx is canceled or the quit key is pressed,
// passing every other action to handle. It must run on the main thread.
func (w *Window) Run(ctx context.Context, width, height int, handle func(Action)) {
	win := gocv.NewWindow(w.title)
	defer win.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		img := w.compose(width, height)
		win.IMShow(img)
		img.Close()

		action := KeyAction(win.WaitKey(15))
		switch action {
		case ActionNone:
		case ActionQuit:
			return
		default:
			handle(action)
		}
	}
}

// Close releases the buffered frame.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest.Close()
}
