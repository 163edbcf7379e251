// Package tray provides a system tray interface for driving the practice
// session without the camera window.
package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/signa/internal/events"
)

// Commands are the callbacks invoked by the menu items. Nil callbacks are
// skipped.
type Commands struct {
	StartCamera     func()
	StopCamera      func()
	ToggleDetection func()
	ClearWord       func()
	NextChallenge   func()
	OpenUI          func()
	Quit            func()
}

// Tray represents the system tray application.
type Tray struct {
	commands Commands
	mu       sync.RWMutex
	view     view

	// Menu items stored for later updates
	menuState     *systray.MenuItem
	menuCamera    *systray.MenuItem
	menuDetection *systray.MenuItem
	menuLetter    *systray.MenuItem
	menuWord      *systray.MenuItem
	menuChallenge *systray.MenuItem
}

// view is the state shown by the menu, derived from events.
type view struct {
	cameraActive    bool
	detectionActive bool
	letter          string
	confidence      float64
	word            string
	target          string
	points          int
}

func (v view) stateTitle() string {
	switch {
	case v.detectionActive:
		return "● Detecting"
	case v.cameraActive:
		return "◐ Camera on"
	default:
		return "○ Idle"
	}
}

func (v view) cameraTitle() string {
	if v.cameraActive {
		return "Stop camera"
	}
	return "Start camera"
}

func (v view) detectionTitle() string {
	if v.detectionActive {
		return "Pause detection"
	}
	return "Start detection"
}

func (v view) letterTitle() string {
	if v.letter == "" {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %s (%.2f%%)", v.letter, v.confidence)
}

func (v view) wordTitle() string {
	if v.word == "" {
		return "Word: (empty)"
	}
	return "Word: " + v.word
}

func (v view) challengeTitle() string {
	if v.target == "" {
		return "Practice: none"
	}
	return fmt.Sprintf("Practice: %s (%d pts)", v.target, v.points)
}

// apply folds an event into the view.
func (v view) apply(e events.Event) view {
	switch e.Kind {
	case events.KindSession:
		v.cameraActive = e.Session.CameraActive
		v.detectionActive = e.Session.DetectionActive
		v.word = e.Session.Word
		if !v.cameraActive {
			v.letter, v.confidence = "", 0
		}
	case events.KindPrediction:
		v.letter = e.Prediction.Label
		v.confidence = e.Prediction.Confidence
		v.word = e.Prediction.Word
	case events.KindChallenge:
		v.target = e.Challenge.Target
		v.points = e.Challenge.Points
	}
	return v
}

// New creates a new Tray instance.
func New(commands Commands) *Tray {
	return &Tray{commands: commands}
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray event loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Signa")
	systray.SetTooltip("Signa sign alphabet practice")

	t.mu.Lock()
	v := t.view
	t.menuState = systray.AddMenuItem(v.stateTitle(), "Session state")
	t.menuState.Disable()
	systray.AddSeparator()

	t.menuCamera = systray.AddMenuItem(v.cameraTitle(), "Start or stop the camera")
	t.menuDetection = systray.AddMenuItem(v.detectionTitle(), "Toggle letter detection")
	menuClear := systray.AddMenuItem("Clear word", "Empty the recognized word")
	systray.AddSeparator()

	t.menuLetter = systray.AddMenuItem(v.letterTitle(), "Last recognized letter")
	t.menuLetter.Disable()
	t.menuWord = systray.AddMenuItem(v.wordTitle(), "Recognized word")
	t.menuWord.Disable()
	t.menuChallenge = systray.AddMenuItem(v.challengeTitle(), "Current practice letter")
	t.menuChallenge.Disable()
	menuNext := systray.AddMenuItem("Next challenge", "Draw a new practice letter")
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in browser...", "Open the practice page")
	menuQuit := systray.AddMenuItem("Quit", "Quit Signa")
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuCamera.ClickedCh:
				t.mu.RLock()
				active := t.view.cameraActive
				t.mu.RUnlock()
				if active {
					call(t.commands.StopCamera)
				} else {
					call(t.commands.StartCamera)
				}
			case <-t.menuDetection.ClickedCh:
				call(t.commands.ToggleDetection)
			case <-menuClear.ClickedCh:
				call(t.commands.ClearWord)
			case <-menuNext.ClickedCh:
				call(t.commands.NextChallenge)
			case <-menuOpen.ClickedCh:
				call(t.commands.OpenUI)
			case <-menuQuit.ClickedCh:
				call(t.commands.Quit)
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// Watch follows the event stream until ctx is canceled or the stream
// closes, keeping the menu in sync.
func (t *Tray) Watch(ctx context.Context, stream <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-stream:
			if !ok {
				return
			}
			t.update(e)
		}
	}
}

func (t *Tray) update(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.view = t.view.apply(e)

	// Menu items exist only after onReady
	if t.menuState == nil {
		return
	}
	t.menuState.SetTitle(t.view.stateTitle())
	t.menuCamera.SetTitle(t.view.cameraTitle())
	t.menuDetection.SetTitle(t.view.detectionTitle())
	if t.view.cameraActive {
		t.menuDetection.Enable()
	} else {
		t.menuDetection.Disable()
	}
	t.menuLetter.SetTitle(t.view.letterTitle())
	t.menuWord.SetTitle(t.view.wordTitle())
	t.menuChallenge.SetTitle(t.view.challengeTitle())
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
