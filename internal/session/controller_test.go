package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signa/internal/capture"
	"github.com/ayusman/signa/internal/classifier"
	"github.com/ayusman/signa/internal/detector"
	"github.com/ayusman/signa/internal/events"
	"github.com/ayusman/signa/internal/feature"
	"github.com/ayusman/signa/internal/word"
)

// stubClassifier returns a fixed result and records what it was given.
type stubClassifier struct {
	mu     sync.Mutex
	result classifier.Result
	err    error
	panics bool
	calls  int
	last   feature.Vector
}

func (s *stubClassifier) Classify(v feature.Vector) (classifier.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = v
	if s.panics {
		panic("model exploded")
	}
	return s.result, s.err
}

func (s *stubClassifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSink struct {
	mu     sync.Mutex
	frames int
	sizes  [][2]int
}

func (r *recordingSink) ShowFrame(frame gocv.Mat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	r.sizes = append(r.sizes, [2]int{frame.Cols(), frame.Rows()})
}

func (r *recordingSink) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) Kind(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ctrl       *Controller
	camera     *capture.MockCamera
	detector   *detector.MockDetector
	classifier *stubClassifier
	sink       *recordingSink
	events     *recordingPublisher
}

func newFixture(t *testing.T, gate word.Gate) *fixture {
	t.Helper()

	f := &fixture{
		camera:     capture.NewBlankCamera(),
		detector:   detector.NewMockDetector(),
		classifier: &stubClassifier{result: classifier.Result{Label: "A", Confidence: 91.2}},
		sink:       &recordingSink{},
		events:     &recordingPublisher{},
	}
	t.Cleanup(f.camera.Release)

	hand := detector.LetterAKeypoints()
	f.detector.SetHand(&hand)

	f.ctrl = New(Config{
		Camera:       f.camera,
		Extractor:    f.detector,
		Classifier:   f.classifier,
		Gate:         gate,
		TickInterval: 5 * time.Millisecond,
		ReadTimeout:  time.Second,
		Frames:       f.sink,
		Events:       f.events,
	})
	return f
}

func (f *fixture) ticks(n int) {
	for i := 0; i < n; i++ {
		f.ctrl.tick(context.Background())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		session Session
		want    string
	}{
		{Session{}, "idle"},
		{Session{CameraActive: true}, "camera_on"},
		{Session{CameraActive: true, DetectionActive: true}, "camera_on_detecting"},
	}

	for _, tt := range tests {
		if got := tt.session.State().String(); got != tt.want {
			t.Errorf("%+v.State() = %q, want %q", tt.session, got, tt.want)
		}
	}
}

func TestController_Transitions(t *testing.T) {
	f := newFixture(t, word.Gate{})
	c := f.ctrl

	if got := c.snapshot().State(); got != Idle {
		t.Fatalf("initial state = %v, want Idle", got)
	}

	if err := c.startCamera(); err != nil {
		t.Fatalf("startCamera() error = %v", err)
	}
	if got := c.snapshot().State(); got != CameraOn {
		t.Errorf("after start = %v, want CameraOn", got)
	}

	// Starting again is a no-op
	id := c.snapshot().ID
	if err := c.startCamera(); err != nil {
		t.Fatalf("second startCamera() error = %v", err)
	}
	if f.camera.Opens() != 1 || c.snapshot().ID != id {
		t.Error("second startCamera() reacquired the device")
	}

	c.toggleDetection()
	if got := c.snapshot().State(); got != CameraOnDetecting {
		t.Errorf("after toggle = %v, want CameraOnDetecting", got)
	}

	c.toggleDetection()
	if got := c.snapshot().State(); got != CameraOn {
		t.Errorf("after second toggle = %v, want CameraOn", got)
	}

	c.toggleDetection()
	c.stopCamera()
	if got := c.snapshot().State(); got != Idle {
		t.Errorf("after stop = %v, want Idle", got)
	}
	if f.camera.IsOpen() {
		t.Error("camera still open after stop")
	}

	// Restartable
	if err := c.startCamera(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if c.snapshot().ID == id {
		t.Error("expected a new session id after restart")
	}
	c.stopCamera()
}

func TestController_ToggleWhileIdle(t *testing.T) {
	f := newFixture(t, word.Gate{})

	before := f.ctrl.snapshot()
	f.ctrl.toggleDetection()
	after := f.ctrl.snapshot()

	if after.Session != before.Session {
		t.Errorf("toggle while idle changed session: %+v -> %+v", before.Session, after.Session)
	}
}

func TestController_StopIdempotent(t *testing.T) {
	f := newFixture(t, word.Gate{})

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.stopCamera()
	f.ctrl.stopCamera()

	if got := f.ctrl.snapshot().State(); got != Idle {
		t.Errorf("state = %v, want Idle", got)
	}
	if got := f.camera.Closes(); got != 1 {
		t.Errorf("camera released %d times, want 1", got)
	}
}

func TestController_CameraUnavailable(t *testing.T) {
	t.Run("mock device", func(t *testing.T) {
		f := newFixture(t, word.Gate{})
		f.camera.SetOpenError(errors.New("no such device"))

		err := f.ctrl.startCamera()
		if !errors.Is(err, ErrCameraUnavailable) {
			t.Fatalf("startCamera() error = %v, want ErrCameraUnavailable", err)
		}
		if got := f.ctrl.snapshot().State(); got != Idle {
			t.Errorf("state = %v, want Idle", got)
		}

		f.ctrl.tick(context.Background())
		if f.sink.Frames() != 0 {
			t.Error("tick ran while idle")
		}
	})

	t.Run("negative index", func(t *testing.T) {
		c := New(Config{
			Camera:     capture.NewCamera(capture.Config{DeviceID: -1}),
			Extractor:  detector.NewMockDetector(),
			Classifier: &stubClassifier{},
		})

		err := c.startCamera()
		if !errors.Is(err, ErrCameraUnavailable) {
			t.Fatalf("startCamera() error = %v, want ErrCameraUnavailable", err)
		}
		if got := c.snapshot().State(); got != Idle {
			t.Errorf("state = %v, want Idle", got)
		}
	})
}

func TestController_NoAppendsWhileNotDetecting(t *testing.T) {
	f := newFixture(t, word.Gate{})

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ticks(5)

	if w := f.ctrl.snapshot().Word; len(w) != 0 {
		t.Errorf("word = %v, want empty", w)
	}
	if f.detector.Calls() != 0 {
		t.Errorf("extractor called %d times while not detecting", f.detector.Calls())
	}
	if got := f.sink.Frames(); got != 5 {
		t.Errorf("rendered %d frames, want 5", got)
	}
	for _, size := range f.sink.sizes {
		if size != [2]int{capture.DefaultWidth, capture.DefaultHeight} {
			t.Errorf("frame size %v, want 640x480", size)
		}
	}
}

func TestController_AppendsEveryDetectingTick(t *testing.T) {
	f := newFixture(t, word.Gate{})

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()
	f.ticks(3)

	got := f.ctrl.snapshot().Word
	want := []string{"A", "A", "A"}
	if len(got) != len(want) {
		t.Fatalf("word = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	predictions := f.events.Kind(events.KindPrediction)
	if len(predictions) != 3 {
		t.Fatalf("got %d prediction events, want 3", len(predictions))
	}
	last := predictions[2].Prediction
	if last.Label != "A" || last.Confidence != 91.2 || last.Word != "AAA" || !last.Appended {
		t.Errorf("last prediction = %+v", last)
	}

	t.Run("clear", func(t *testing.T) {
		f.ctrl.clearWord()
		if w := f.ctrl.snapshot().Word; len(w) != 0 {
			t.Errorf("word after clear = %v, want empty", w)
		}
	})
}

func TestController_StopKeepsWord(t *testing.T) {
	f := newFixture(t, word.Gate{})

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()
	f.ticks(2)
	f.ctrl.stopCamera()

	if w := f.ctrl.snapshot().Word; len(w) != 2 {
		t.Errorf("word after stop = %v, want two letters", w)
	}
}

func TestController_DegenerateHand(t *testing.T) {
	f := newFixture(t, word.Gate{})

	var hand detector.KeypointSet
	for i := range hand {
		hand[i] = detector.Keypoint{X: 0.4, Y: 0.6}
	}
	f.detector.SetHand(&hand)

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()
	f.ticks(1)

	if f.classifier.Calls() != 1 {
		t.Fatalf("classifier called %d times, want 1", f.classifier.Calls())
	}
	if f.classifier.last != (feature.Vector{}) {
		t.Errorf("feature vector = %v, want all zeros", f.classifier.last)
	}
}

func TestController_NoHand(t *testing.T) {
	f := newFixture(t, word.Gate{})
	f.detector.SetHand(nil)

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()
	f.ticks(3)

	if w := f.ctrl.snapshot().Word; len(w) != 0 {
		t.Errorf("word = %v, want empty", w)
	}
	if f.classifier.Calls() != 0 {
		t.Error("classifier called without a hand")
	}
	if f.sink.Frames() != 3 {
		t.Errorf("rendered %d frames, want 3", f.sink.Frames())
	}
}

func TestController_FrameReadFailure(t *testing.T) {
	f := newFixture(t, word.Gate{})

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()
	f.ticks(1)

	before := f.ctrl.snapshot()
	f.camera.SetReadError(errors.New("device disconnected"))
	f.ticks(2)
	after := f.ctrl.snapshot()

	if after.Session != before.Session {
		t.Errorf("session changed on read failure: %+v -> %+v", before.Session, after.Session)
	}
	if len(after.Word) != len(before.Word) {
		t.Errorf("word changed on read failure: %v -> %v", before.Word, after.Word)
	}
	if f.sink.Frames() != 1 {
		t.Errorf("rendered %d frames, want 1", f.sink.Frames())
	}
	if warnings := f.events.Kind(events.KindWarning); len(warnings) != 2 {
		t.Errorf("got %d warnings, want 2", len(warnings))
	}

	// Recovers once the device delivers again
	f.camera.SetReadError(nil)
	f.ticks(1)
	if w := f.ctrl.snapshot().Word; len(w) != 2 {
		t.Errorf("word after recovery = %v, want two letters", w)
	}
}

func TestController_ReadTimeout(t *testing.T) {
	f := newFixture(t, word.Gate{})
	f.ctrl.config.ReadTimeout = 20 * time.Millisecond

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}

	release := f.camera.Block()
	defer release()

	start := time.Now()
	f.ticks(1)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("tick blocked for %v", elapsed)
	}

	warnings := f.events.Kind(events.KindWarning)
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if got := f.ctrl.snapshot().State(); got != CameraOn {
		t.Errorf("state = %v, want CameraOn", got)
	}
}

func TestController_ClassificationError(t *testing.T) {
	f := newFixture(t, word.Gate{})
	f.classifier.err = errors.New("vector has 41 features")

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()
	f.ticks(2)

	if w := f.ctrl.snapshot().Word; len(w) != 0 {
		t.Errorf("word = %v, want empty", w)
	}
	if got := f.ctrl.snapshot().State(); got != CameraOnDetecting {
		t.Errorf("state = %v, want CameraOnDetecting", got)
	}
	if f.sink.Frames() != 2 {
		t.Errorf("rendered %d frames, want 2", f.sink.Frames())
	}
	if len(f.events.Kind(events.KindPrediction)) != 0 {
		t.Error("prediction emitted for a failed classification")
	}
	if len(f.events.Kind(events.KindWarning)) != 2 {
		t.Error("expected a warning per failed tick")
	}
}

func TestController_PanicReleasesCamera(t *testing.T) {
	f := newFixture(t, word.Gate{})
	f.classifier.panics = true

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()
	f.ticks(1)

	if got := f.ctrl.snapshot().State(); got != Idle {
		t.Errorf("state = %v, want Idle", got)
	}
	if f.camera.IsOpen() {
		t.Error("camera still open after panic")
	}
	if f.ctrl.tickC != nil {
		t.Error("ticker still armed after panic")
	}
	if len(f.events.Kind(events.KindWarning)) != 1 {
		t.Error("expected a warning for the panic")
	}
}

func TestController_StabilityGate(t *testing.T) {
	f := newFixture(t, word.Gate{MinConfidence: 80, StableFrames: 3})

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()
	f.ticks(5)

	if w := f.ctrl.snapshot().Word; len(w) != 1 || w[0] != "A" {
		t.Errorf("word = %v, want [A]", w)
	}

	appended := 0
	for _, e := range f.events.Kind(events.KindPrediction) {
		if e.Prediction.Appended {
			appended++
		}
	}
	if appended != 1 {
		t.Errorf("%d predictions marked appended, want 1", appended)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestController_Run(t *testing.T) {
	f := newFixture(t, word.Gate{})
	c := f.ctrl

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	if err := c.StartCamera(ctx); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	s, err := c.ToggleDetection(ctx)
	if err != nil {
		t.Fatalf("ToggleDetection() error = %v", err)
	}
	if !s.DetectionActive {
		t.Fatal("expected detection to be active")
	}

	waitFor(t, 2*time.Second, func() bool {
		snap, err := c.Snapshot(ctx)
		return err == nil && len(snap.Word) >= 3
	})

	if err := c.StopCamera(ctx); err != nil {
		t.Fatalf("StopCamera() error = %v", err)
	}
	stopped, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	calls := f.detector.Calls()

	// No tick may run after stop
	time.Sleep(50 * time.Millisecond)
	later, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(later.Word) != len(stopped.Word) || f.detector.Calls() != calls {
		t.Error("pipeline kept running after StopCamera")
	}
	if later.State() != Idle {
		t.Errorf("state = %v, want Idle", later.State())
	}

	if err := c.ClearWord(ctx); err != nil {
		t.Fatal(err)
	}
	cleared, _ := c.Snapshot(ctx)
	if len(cleared.Word) != 0 {
		t.Errorf("word after ClearWord = %v", cleared.Word)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := c.StartCamera(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("StartCamera after Run = %v, want ErrClosed", err)
	}
}

func TestController_TeardownReleasesCamera(t *testing.T) {
	f := newFixture(t, word.Gate{})
	c := f.ctrl

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	if err := c.StartCamera(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ToggleDetection(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool {
		snap, err := c.Snapshot(ctx)
		return err == nil && len(snap.Word) > 0
	})

	cancel()
	<-done

	if f.camera.IsOpen() {
		t.Error("camera still open after teardown")
	}

	sessions := f.events.Kind(events.KindSession)
	last := sessions[len(sessions)-1].Session
	if last.State != "idle" || last.Word != "" {
		t.Errorf("final session event = %+v, want idle with empty word", last)
	}
}

func TestController_StopDuringStalledRead(t *testing.T) {
	f := newFixture(t, word.Gate{})
	f.ctrl.config.ReadTimeout = 50 * time.Millisecond
	c := f.ctrl

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if err := c.StartCamera(ctx); err != nil {
		t.Fatal(err)
	}

	release := f.camera.Block()
	defer release()

	// Let a tick get stuck on the device
	time.Sleep(20 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
	defer stopCancel()
	if err := c.StopCamera(stopCtx); err != nil {
		t.Fatalf("StopCamera() error = %v", err)
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.State() != Idle {
		t.Errorf("state = %v, want Idle", snap.State())
	}
	if f.camera.IsOpen() {
		t.Error("camera still open after StopCamera")
	}
}

func TestController_StalledReadIsNotRepeated(t *testing.T) {
	f := newFixture(t, word.Gate{})
	f.ctrl.config.ReadTimeout = 20 * time.Millisecond

	if err := f.ctrl.startCamera(); err != nil {
		t.Fatal(err)
	}
	f.ctrl.toggleDetection()

	release := f.camera.Block()
	defer release()

	f.ticks(1)
	reads := f.camera.Reads()

	// Later ticks skip while the device still owes a frame
	start := time.Now()
	f.ticks(5)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("ticks waited %v on a pending read", elapsed)
	}
	if got := f.camera.Reads(); got != reads {
		t.Errorf("reads = %d during the stall, want %d", got, reads)
	}
	if warnings := f.events.Kind(events.KindWarning); len(warnings) != 6 {
		t.Errorf("got %d warnings, want 6", len(warnings))
	}
	if w := f.ctrl.snapshot().Word; len(w) != 0 {
		t.Errorf("word = %v, want empty", w)
	}

	start = time.Now()
	f.ctrl.stopCamera()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("stopCamera() waited %v on the stalled device", elapsed)
	}
	if f.camera.IsOpen() {
		t.Error("camera still open after stopCamera")
	}
	if f.camera.Closes() != 1 {
		t.Errorf("Closes() = %d, want 1", f.camera.Closes())
	}

	// The stalled read unwinds on its own once the device answers
	release()
	f.ticks(1)
	if f.sink.Frames() != 0 {
		t.Errorf("rendered %d frames after stop, want 0", f.sink.Frames())
	}
}
