package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ayusman/signa/internal/capture"
	"github.com/ayusman/signa/internal/classifier"
	"github.com/ayusman/signa/internal/config"
	"github.com/ayusman/signa/internal/detector"
	"github.com/ayusman/signa/internal/display"
	"github.com/ayusman/signa/internal/events"
	"github.com/ayusman/signa/internal/logger"
	"github.com/ayusman/signa/internal/practice"
	"github.com/ayusman/signa/internal/server"
	"github.com/ayusman/signa/internal/session"
	"github.com/ayusman/signa/internal/store"
	"github.com/ayusman/signa/internal/tray"
	"github.com/ayusman/signa/internal/word"
)

var Version = "dev"

const usage = `Signa - sign alphabet practice

Usage:
  signa [run] [flags]        start the camera pipeline and the API
  signa import [flags]       store a classifier artifact
  signa models [flags]       list stored artifacts
`

// OpenCV windows and the tray event loop must run on the main thread.
func init() {
	runtime.LockOSThread()
}

// commandTimeout bounds a single UI command against the session controller.
const commandTimeout = 5 * time.Second

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runCmd(args)
	case "import":
		err = importCmd(args)
	case "models":
		err = modelsCmd(args)
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "signa: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses the shared --config flag plus any command flags.
func loadConfig(fs *pflag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", "", "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*configPath)
}

func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return store.New(path)
}

func runCmd(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	uiMode := fs.String("ui", "", "ui mode: window, tray or headless (overrides config)")
	device := fs.Int("device", 0, "camera index (overrides config)")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *uiMode != "" {
		cfg.UI.Mode = *uiMode
	}
	if fs.Changed("device") {
		cfg.Camera.Device = *device
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync(log)

	log.Info("starting signa", zap.String("version", Version), zap.String("ui", cfg.UI.Mode))

	st, err := openStore(cfg.Model.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	artifact, err := st.Models().Load(cfg.Model.Name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("model %q not found in %s; store one with `signa import`", cfg.Model.Name, st.Path())
	}
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	adapter := classifier.NewAdapter(artifact)
	log.Info("model loaded", zap.String("name", cfg.Model.Name), zap.Strings("labels", adapter.Labels()))

	// Try MediaPipe first, fall back to mock detector
	var extractor detector.Extractor
	mp, err := detector.NewMediaPipeDetector(detector.Config{
		ScriptPath:    cfg.Detector.Script,
		Python:        cfg.Detector.Python,
		MinConfidence: cfg.Detector.MinConfidence,
	}, log)
	if err != nil {
		log.Warn("MediaPipe not available, using mock detector", zap.Error(err))
		extractor = detector.NewMockDetector()
	} else {
		log.Info("using MediaPipe hand detection")
		extractor = mp
	}

	camera := capture.NewCamera(capture.Config{
		DeviceID: cfg.Camera.Device,
		Width:    cfg.Camera.Width,
		Height:   cfg.Camera.Height,
		FPS:      capture.DefaultFPS,
	})

	hub := events.NewHub()

	var window *display.Window
	var frames session.FrameSink
	if cfg.UI.Mode == config.UIWindow {
		window = display.NewWindow("Signa")
		defer window.Close()
		frames = window
	}

	ctrl := session.New(session.Config{
		Camera:       camera,
		Extractor:    extractor,
		Classifier:   adapter,
		Gate:         wordGate(cfg),
		TickInterval: cfg.Camera.TickInterval,
		ReadTimeout:  cfg.Camera.ReadTimeout,
		Frames:       frames,
		Events:       hub,
		Logger:       log,
	})

	challenge, err := practice.New(adapter.Labels(), uint64(time.Now().UnixNano()))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrlDone := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(ctrlDone)
	}()

	challengeEvents, unsubscribe := hub.Subscribe()
	defer unsubscribe()
	go challenge.Watch(ctx, challengeEvents, hub, log.Named("practice"))

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		log.Info("serving static files", zap.String("dir", staticDir))
	}

	gin.SetMode(cfg.Server.Mode)
	srv := server.New(server.Config{
		StaticDir:  staticDir,
		Controller: ctrl,
		Challenge:  challenge,
		Events:     hub,
		Models:     st.Models(),
		Logger:     log,
	})

	srvDone := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe(ctx, cfg.Server.Addr)
		if err != nil {
			log.Error("server error", zap.Error(err))
			stop()
		}
		srvDone <- err
	}()

	commands := commandRunner{ctrl: ctrl, challenge: challenge, hub: hub, log: log}

	switch cfg.UI.Mode {
	case config.UIWindow:
		windowEvents, unsubscribeWindow := hub.Subscribe()
		defer unsubscribeWindow()
		go window.Watch(ctx, windowEvents)

		window.Run(ctx, cfg.Camera.Width, cfg.Camera.Height, commands.handle)
		stop()

	case config.UITray:
		t := tray.New(tray.Commands{
			StartCamera:     func() { commands.handle(display.ActionStartCamera) },
			StopCamera:      func() { commands.handle(display.ActionStopCamera) },
			ToggleDetection: func() { commands.handle(display.ActionToggleDetection) },
			ClearWord:       func() { commands.handle(display.ActionClearWord) },
			NextChallenge:   func() { commands.handle(display.ActionNextChallenge) },
			OpenUI:          func() { openBrowser(cfg.Server.Addr, log) },
			Quit:            stop,
		})
		trayEvents, unsubscribeTray := hub.Subscribe()
		defer unsubscribeTray()
		go t.Watch(ctx, trayEvents)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()

		t.Run()
		stop()

	default:
		log.Info("running headless", zap.String("addr", cfg.Server.Addr))
		<-ctx.Done()
	}

	log.Info("shutting down")
	<-ctrlDone
	hub.Close()

	return <-srvDone
}

func wordGate(cfg *config.Config) word.Gate {
	return word.Gate{
		MinConfidence: cfg.Word.MinConfidence,
		StableFrames:  cfg.Word.StableFrames,
	}
}

// commandRunner turns UI actions into controller commands.
type commandRunner struct {
	ctrl      *session.Controller
	challenge *practice.Challenge
	hub       *events.Hub
	log       *zap.Logger
}

func (r commandRunner) handle(action display.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch action {
	case display.ActionStartCamera:
		err = r.ctrl.StartCamera(ctx)
	case display.ActionStopCamera:
		err = r.ctrl.StopCamera(ctx)
	case display.ActionToggleDetection:
		_, err = r.ctrl.ToggleDetection(ctx)
	case display.ActionClearWord:
		err = r.ctrl.ClearWord(ctx)
	case display.ActionNextChallenge:
		r.hub.Publish(events.NewChallenge(r.challenge.Next()))
	}

	if err != nil {
		r.log.Warn("command failed", zap.Stringer("action", action), zap.Error(err))
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.signa/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func openBrowser(addr string, log *zap.Logger) {
	url := "http://" + addr
	if len(addr) > 0 && addr[0] == ':' {
		url = "http://localhost" + addr
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("failed to open browser", zap.String("url", url), zap.Error(err))
	}
}
