package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/signa/internal/capture"
	"github.com/ayusman/signa/internal/classifier"
	"github.com/ayusman/signa/internal/classifier/classifiertest"
	"github.com/ayusman/signa/internal/detector"
	"github.com/ayusman/signa/internal/events"
	"github.com/ayusman/signa/internal/practice"
	"github.com/ayusman/signa/internal/session"
	"github.com/ayusman/signa/internal/store"
)

type pipeline struct {
	srv      *httptest.Server
	camera   *capture.MockCamera
	detector *detector.MockDetector
	hub      *events.Hub
}

func startPipeline(t *testing.T) *pipeline {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.Models().Create("default", classifiertest.LetterArtifact()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	artifact, err := s.Models().Load("default")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p := &pipeline{
		camera:   capture.NewBlankCamera(),
		detector: detector.NewMockDetector(),
		hub:      events.NewHub(),
	}
	t.Cleanup(p.camera.Release)

	hand := detector.LetterAKeypoints()
	p.detector.SetHand(&hand)

	ctrl := session.New(session.Config{
		Camera:       p.camera,
		Extractor:    p.detector,
		Classifier:   classifier.NewAdapter(artifact),
		TickInterval: 5 * time.Millisecond,
		Events:       p.hub,
	})

	challenge, err := practice.New(artifact.Labels(), 1)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		p.hub.Close()
	})

	p.srv = httptest.NewServer(New(Config{
		Controller: ctrl,
		Challenge:  challenge,
		Events:     p.hub,
		Models:     s.Models(),
	}))
	t.Cleanup(p.srv.Close)

	return p
}

func (p *pipeline) post(t *testing.T, path string) sessionResponse {
	t.Helper()

	resp, err := p.srv.Client().Post(p.srv.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
	}

	var s sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	return s
}

func (p *pipeline) session(t *testing.T) sessionResponse {
	t.Helper()

	resp, err := p.srv.Client().Get(p.srv.URL + "/api/session")
	if err != nil {
		t.Fatalf("GET /api/session error = %v", err)
	}
	defer resp.Body.Close()

	var s sessionResponse
	json.NewDecoder(resp.Body).Decode(&s)
	return s
}

func TestAPI_SessionWorkflow(t *testing.T) {
	p := startPipeline(t)

	if s := p.post(t, "/api/camera/start"); s.State != "camera_on" || s.ID == "" {
		t.Fatalf("after start = %+v", s)
	}
	if s := p.post(t, "/api/detection/toggle"); s.State != "camera_on_detecting" {
		t.Fatalf("after toggle = %+v", s)
	}

	deadline := time.Now().Add(2 * time.Second)
	var s sessionResponse
	for time.Now().Before(deadline) {
		if s = p.session(t); len(s.Letters) >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(s.Letters) < 3 {
		t.Fatalf("word did not grow: %+v", s)
	}
	for _, l := range s.Letters {
		if l != "A" {
			t.Fatalf("unexpected letter in %v", s.Letters)
		}
	}

	if s := p.post(t, "/api/camera/stop"); s.State != "idle" || s.Word == "" {
		t.Errorf("after stop = %+v, want idle with the word kept", s)
	}
	if s := p.post(t, "/api/word/clear"); s.Word != "" {
		t.Errorf("after clear = %+v", s)
	}
}

func TestAPI_ModelsFromStore(t *testing.T) {
	p := startPipeline(t)

	resp, err := p.srv.Client().Get(p.srv.URL + "/api/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Models []modelResponse `json:"models"`
	}
	json.NewDecoder(resp.Body).Decode(&body)

	if len(body.Models) != 1 || body.Models[0].NumFeatures != 42 {
		t.Errorf("unexpected models %+v", body.Models)
	}
}

func TestAPI_EventStream(t *testing.T) {
	p := startPipeline(t)

	url := "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	read := func() events.Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var e events.Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return e
	}

	// Initial snapshot, then the challenge
	if e := read(); e.Kind != events.KindSession || e.Session.State != "idle" {
		t.Fatalf("first event = %+v, want idle session", e)
	}
	if e := read(); e.Kind != events.KindChallenge || e.Challenge.Target == "" {
		t.Fatalf("second event = %+v, want challenge", e)
	}

	p.post(t, "/api/camera/start")
	p.post(t, "/api/detection/toggle")

	for {
		e := read()
		if e.Kind != events.KindPrediction {
			continue
		}
		if e.Prediction.Label != "A" || e.Prediction.Confidence <= 0 || e.Prediction.Confidence > 100 {
			t.Errorf("unexpected prediction %+v", e.Prediction)
		}
		if !e.Prediction.Appended || e.Prediction.Word == "" {
			t.Errorf("prediction did not reach the word: %+v", e.Prediction)
		}
		break
	}
}
