// Package server is the bridge's network edge: the Twilio voice webhook,
// the media stream WebSocket and the operational endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	twclient "github.com/twilio/twilio-go/client"

	"github.com/teslashibe/go-callbridge/pkg/callstate"
	"github.com/teslashibe/go-callbridge/pkg/session"
)

// Config holds server settings.
type Config struct {
	// PublicHost is the host placed in the TwiML stream URL. Empty uses the
	// webhook request's Host header.
	PublicHost string

	// AuthToken enables X-Twilio-Signature validation on the webhook.
	AuthToken string

	Version string
	Debug   bool
	Logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Config)

// WithPublicHost sets the host used in the stream URL.
func WithPublicHost(host string) Option {
	return func(c *Config) { c.PublicHost = host }
}

// WithAuthToken enables webhook signature validation.
func WithAuthToken(token string) Option {
	return func(c *Config) { c.AuthToken = token }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(c *Config) { c.Version = v }
}

// WithDebug enables request logging.
func WithDebug(debug bool) Option {
	return func(c *Config) { c.Debug = debug }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Server routes transport connections into the call pipeline.
type Server struct {
	cfg      Config
	pipeline *session.Pipeline
	validate func(url string, params map[string]string, signature string) bool
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	conns map[string]*connection

	connectionsTotal atomic.Uint64
	messagesReceived atomic.Uint64
	closedSent       atomic.Uint64
	malformedEvents  atomic.Uint64
	webhooks         atomic.Uint64
	rejectedWebhooks atomic.Uint64
}

// New creates a server for pipeline.
func New(pipeline *session.Pipeline, opts ...Option) *Server {
	cfg := Config{
		Version: "dev",
		Logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   cfg.Logger.With("component", "server"),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]*connection),
	}
	if cfg.AuthToken != "" {
		v := twclient.NewRequestValidator(cfg.AuthToken)
		s.validate = v.Validate
	}
	return s
}

// NewApp builds a Fiber app with the server's routes and middleware.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "callbridge",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if s.cfg.Debug {
		app.Use(logger.New())
	}

	s.RegisterRoutes(app)
	s.RegisterAPIRoutes(app.Group("/api"))
	return app
}

// RegisterRoutes registers the webhook, media socket and health routes.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Post("/", s.handleVoice)
	app.Post("/twilio/voice", s.handleVoice)

	app.Use("/media", s.requireUpgrade)
	app.Get("/media", s.mediaHandler())

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)
}

// RegisterAPIRoutes registers read-only call inspection routes.
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	calls := api.Group("/calls")

	calls.Get("/", func(c *fiber.Ctx) error {
		infos := s.CallInfos()
		return c.JSON(fiber.Map{
			"calls": infos,
			"count": len(infos),
		})
	})

	calls.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})

	calls.Get("/:id", func(c *fiber.Ctx) error {
		sess, ok := s.pipeline.Registry().View(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "call not found"})
		}
		return c.JSON(newCallInfo(sess, time.Now()))
	})
}

// Shutdown ends every live call.
func (s *Server) Shutdown() {
	s.cancel()

	s.mu.RLock()
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.ctrl.Close()
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"version":     s.cfg.Version,
		"connections": s.ConnectionCount(),
		"calls":       s.pipeline.Registry().Len(),
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	st := s.GetStats()
	var b strings.Builder
	metric := func(name, kind, help string, v any) {
		fmt.Fprintf(&b, "# HELP callbridge_%s %s\n# TYPE callbridge_%s %s\ncallbridge_%s %v\n\n",
			name, help, name, kind, name, v)
	}

	metric("connections", "gauge", "Open media stream connections", st.Connections)
	metric("connections_total", "counter", "Media stream connections accepted", st.ConnectionsTotal)
	metric("calls_active", "gauge", "Calls in the session registry", st.Registry.Active)
	metric("calls_total", "counter", "Calls started", st.Pipeline.Calls)
	metric("messages_received", "counter", "Transport messages received", st.MessagesReceived)
	metric("messages_sent", "counter", "Transport messages sent", st.MessagesSent)
	metric("malformed_events", "counter", "Transport messages discarded as malformed", st.MalformedEvents+st.Pipeline.MalformedMedia)
	metric("utterances", "counter", "Final utterances recognized", st.Pipeline.Utterances)
	metric("interrupts_sent", "counter", "Barge-in clear messages sent", st.Pipeline.InterruptsSent)
	metric("interrupts_skipped", "counter", "Barge-in requests with no live transport", st.Pipeline.InterruptsSkip)
	metric("synthesis_ok", "counter", "Successful syntheses", st.Pipeline.SynthOK)
	metric("synthesis_failed", "counter", "Failed syntheses", st.Pipeline.SynthFailed)
	metric("relays_suppressed", "counter", "Replies cut short by barge-in", st.Pipeline.RelaysSuppressed)
	metric("webhooks", "counter", "Voice webhooks answered", st.Webhooks)
	metric("webhooks_rejected", "counter", "Voice webhooks with a bad signature", st.RejectedWebhooks)

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(b.String())
}

// Stats contains server statistics.
type Stats struct {
	Connections      int             `json:"connections"`
	ConnectionsTotal uint64          `json:"connections_total"`
	MessagesReceived uint64          `json:"messages_received"`
	MessagesSent     uint64          `json:"messages_sent"`
	MalformedEvents  uint64          `json:"malformed_events"`
	Webhooks         uint64          `json:"webhooks"`
	RejectedWebhooks uint64          `json:"webhooks_rejected"`
	Registry         callstate.Stats `json:"registry"`
	Pipeline         session.Stats   `json:"pipeline"`
}

// GetStats returns server statistics.
func (s *Server) GetStats() Stats {
	s.mu.RLock()
	conns := len(s.conns)
	var sent uint64
	for _, c := range s.conns {
		sent += c.link.Sent()
	}
	s.mu.RUnlock()

	return Stats{
		Connections:      conns,
		ConnectionsTotal: s.connectionsTotal.Load(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     sent + s.closedSent.Load(),
		MalformedEvents:  s.malformedEvents.Load(),
		Webhooks:         s.webhooks.Load(),
		RejectedWebhooks: s.rejectedWebhooks.Load(),
		Registry:         s.pipeline.Registry().GetStats(),
		Pipeline:         s.pipeline.Stats(),
	}
}

// CallInfo describes one call in the registry.
type CallInfo struct {
	CallID       string    `json:"call_id"`
	StreamID     string    `json:"stream_id"`
	State        string    `json:"state"`
	Provider     string    `json:"provider,omitempty"`
	Degraded     bool      `json:"degraded"`
	Started      time.Time `json:"started"`
	LastActivity time.Time `json:"last_activity"`
	AgeSeconds   float64   `json:"age_seconds"`
}

func newCallInfo(s callstate.Session, now time.Time) CallInfo {
	return CallInfo{
		CallID:       s.CallID,
		StreamID:     s.StreamID,
		State:        s.State.String(),
		Provider:     s.Provider.Kind,
		Degraded:     s.Provider.Degraded,
		Started:      s.Started,
		LastActivity: s.LastActivity,
		AgeSeconds:   now.Sub(s.Started).Seconds(),
	}
}

// CallInfos lists the calls in the registry.
func (s *Server) CallInfos() []CallInfo {
	now := time.Now()
	sessions := s.pipeline.Registry().Snapshot()
	infos := make([]CallInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, newCallInfo(sess, now))
	}
	return infos
}
