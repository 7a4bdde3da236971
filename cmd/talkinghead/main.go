package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rs/zerolog"

	"github.com/visagelab/talkinghead/internal/audio"
	"github.com/visagelab/talkinghead/internal/bus"
	"github.com/visagelab/talkinghead/internal/config"
	"github.com/visagelab/talkinghead/internal/logging"
	"github.com/visagelab/talkinghead/internal/scene"
	"github.com/visagelab/talkinghead/internal/session"
)

func init() {
	// GLFW event handling and GL calls must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	var (
		modelPath  = flag.String("model", "assets/models/avatar.glb", "Avatar model file (.glb/.gltf)")
		configPath = flag.String("config", "", "Config file path (default: ~/.talkinghead/config.yaml)")
		demo       = flag.Bool("demo", false, "Speak a built-in demo utterance on startup")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	rootLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		LogDir:  cfg.Log.Dir,
		Console: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer rootLog.Close()
	logger := rootLog.Logger

	if err := glfw.Init(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize GLFW")
	}
	defer glfw.Terminate()

	assets := loadAssets(*modelPath, cfg, logger)

	var rig *scene.MeshRig
	if assets != nil {
		rig = assets.Rig
	}

	surface, err := scene.NewGLSurface(scene.SurfaceConfig{
		Width:  cfg.Window.Width,
		Height: cfg.Window.Height,
		Title:  cfg.Window.Title,
		VSync:  cfg.Window.VSync,
		MSAA:   cfg.Window.MSAA,
		View:   string(cfg.Avatar.CameraView),
	}, rig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create render surface")
	}

	eventBus := bus.NewEventBus()
	sess := session.New(cfg, audio.NewPacingEngine(), eventBus, logger)
	if err := sess.Attach(surface, assets); err != nil {
		logger.Fatal().Err(err).Msg("Failed to attach session")
	}
	defer sess.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
			sess.ApplyAvatarConfig(next.Avatar)
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Config hot-reload unavailable")
		} else {
			defer watcher.Close()
		}
	}

	if cfg.Ingress.URL != "" {
		ingress := session.NewIngress(cfg.Ingress, sess, logger)
		if err := ingress.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("Speech ingress unavailable")
		} else {
			defer ingress.Disconnect()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info().Msg("Shutdown signal received")
		case <-ctx.Done():
		}
		sess.Dispose()
	}()

	go watchClose(surface, sess, logger)

	if *demo {
		go speakDemo(sess, cfg, logger)
	}

	logger.Info().Str("session", sess.ID()).Msg("Talking head running, close window or Ctrl+C to exit")

	// Blocks on the locked main thread until Dispose stops the loop.
	if err := sess.Run(60); err != nil {
		logger.Fatal().Err(err).Msg("Render loop failed")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// loadAssets resolves the avatar model, degrading to a headless session when
// the file is missing or unreadable.
func loadAssets(path string, cfg *config.Config, logger zerolog.Logger) *scene.Assets {
	if _, err := os.Stat(path); err != nil {
		logger.Warn().Str("path", path).Msg("Avatar model not found, running without a mesh")
		return nil
	}
	assets, err := scene.LoadAssets(path, cfg.Avatar.ModelRoot)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to load avatar model, running without a mesh")
		return nil
	}
	logger.Info().Str("path", path).Msg("Avatar model loaded")
	return assets
}

// watchClose disposes the session when the window is asked to close.
func watchClose(surface *scene.GLSurface, sess *session.Session, logger zerolog.Logger) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if surface.ShouldClose() {
			logger.Info().Msg("Window closed")
			sess.Dispose()
			return
		}
	}
}

// speakDemo feeds one synthetic utterance so the pipeline can be exercised
// without an upstream speech service.
func speakDemo(sess *session.Session, cfg *config.Config, logger zerolog.Logger) {
	time.Sleep(time.Second)

	words := []string{"hello", "there", "how", "are", "you"}
	starts := []float64{0.0, 0.4, 0.85, 1.1, 1.35}
	durs := []float64{0.35, 0.4, 0.2, 0.2, 0.4}

	// 1.8s of silence at the configured sample rate stands in for TTS audio.
	samples := make([]byte, int(1.8*float64(cfg.Audio.SampleRate))*2)

	err := sess.StreamAudio(session.SpeechChunk{
		Samples:        samples,
		Encoding:       audio.EncodingPCM16,
		Words:          words,
		WordStartTimes: starts,
		WordDurations:  durs,
		Mood:           "happy",
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Demo utterance rejected")
		return
	}
	logger.Info().Int("words", len(words)).Msg("Demo utterance scheduled")
}
