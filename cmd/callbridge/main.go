// callbridge: bridges Twilio phone calls to speech recognition and synthesis
// backends, with barge-in.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-callbridge/internal/config"
	"github.com/teslashibe/go-callbridge/internal/log"
	"github.com/teslashibe/go-callbridge/pkg/callstate"
	"github.com/teslashibe/go-callbridge/pkg/responder"
	"github.com/teslashibe/go-callbridge/pkg/server"
	"github.com/teslashibe/go-callbridge/pkg/session"
	"github.com/teslashibe/go-callbridge/pkg/stt"
	"github.com/teslashibe/go-callbridge/pkg/tts"
)

var (
	version = "1.0.0"
	port    = flag.Int("port", 0, "HTTP server port (overrides PORT)")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, loadErr := config.Load()
	if *port != 0 {
		cfg.Port = *port
	}
	if *debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	log.Init(cfg.LogLevel)
	logger := log.L()
	if loadErr != nil {
		logger.Warn("config", "error", loadErr)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config", "warning", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.L()

	registry := callstate.New(
		callstate.WithIdleTimeout(cfg.SessionIdleTimeout),
		callstate.WithGracePeriod(cfg.SessionGrace),
		callstate.WithLogger(logger),
	)
	go registry.Run(ctx)

	newSTT, err := stt.NewFactory(cfg.STTProvider, stt.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}

	ttsOpts := []tts.Option{
		tts.WithRegion(cfg.AWSRegion),
		tts.WithTimeout(cfg.SynthTimeout),
		tts.WithCredentials(cfg.Credential),
		tts.WithLogger(logger),
	}
	switch cfg.TTSProvider {
	case "elevenlabs":
		if cfg.ElevenLabsVoiceID != "" {
			ttsOpts = append(ttsOpts, tts.WithVoice(cfg.ElevenLabsVoiceID))
		}
	case "polly":
		ttsOpts = append(ttsOpts, tts.WithVoice(cfg.PollyVoice))
	case "azure":
		ttsOpts = append(ttsOpts, tts.WithRegion(cfg.AzureRegion))
		if cfg.AzureVoice != "" {
			ttsOpts = append(ttsOpts, tts.WithVoice(cfg.AzureVoice))
		}
	}
	newTTS, err := tts.NewFactory(cfg.TTSProvider, ttsOpts...)
	if err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}

	handler, err := newResponder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("responder: %w", err)
	}

	pipeline := session.NewPipeline(registry, newSTT, newTTS, handler,
		session.WithSynthTimeout(cfg.SynthTimeout),
		session.WithGracePeriod(cfg.SessionGrace),
		session.WithCredentials(cfg.Credential),
		session.WithLogger(logger),
	)

	srv := server.New(pipeline,
		server.WithPublicHost(cfg.PublicHost),
		server.WithAuthToken(cfg.TwilioAuthToken),
		server.WithVersion(version),
		server.WithDebug(cfg.Debug),
		server.WithLogger(logger),
	)
	app := srv.NewApp()

	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("callbridge starting",
			"version", version,
			"addr", addr,
			"stt", cfg.STTProvider,
			"tts", cfg.TTSProvider,
			"responder", cfg.Responder,
		)
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	return nil
}

func newResponder(ctx context.Context, cfg config.Config) (session.TextHandler, error) {
	opts := []responder.Option{
		responder.WithLogger(log.L()),
	}
	if cfg.SystemPrompt != "" {
		opts = append(opts, responder.WithSystemPrompt(cfg.SystemPrompt))
	}

	switch cfg.Responder {
	case "echo", "":
		return responder.NewEcho(log.L()), nil
	case "chat":
		opts = append(opts,
			responder.WithBaseURL(cfg.LLMBaseURL),
			responder.WithAPIKey(cfg.LLMAPIKey),
			responder.WithModel(cfg.LLMModel),
		)
		return responder.NewChat(opts...)
	case "gemini":
		opts = append(opts, responder.WithAPIKey(cfg.GeminiKey))
		return responder.NewGemini(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown responder %q", cfg.Responder)
	}
}
