// Package web serves the monitor's HTTP control surface, MJPEG stream and
// live websocket feeds.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-fallwatch/internal/log"
	"github.com/teslashibe/go-fallwatch/pkg/framebuf"
	"github.com/teslashibe/go-fallwatch/pkg/history"
	"github.com/teslashibe/go-fallwatch/pkg/hub"
	"github.com/teslashibe/go-fallwatch/pkg/metrics"
	"github.com/teslashibe/go-fallwatch/pkg/monitor"
)

// Defaults for streaming.
const (
	DefaultStreamInterval = 50 * time.Millisecond
	DefaultJPEGQuality    = 80
)

// Control is the part of the monitor controller the server drives.
type Control interface {
	Start() bool
	Stop() bool
	Running() bool
	Status() monitor.Status
}

// History is the read side of the event store.
type History interface {
	List(ctx context.Context, limit int) ([]history.Record, error)
	Episode(ctx context.Context, id uuid.UUID) ([]history.Record, error)
	Snapshot(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// Options wires the server.
type Options struct {
	Control        Control
	Buffer         *framebuf.Buffer
	History        History // optional
	Metrics        *metrics.Metrics
	StreamInterval time.Duration
	JPEGQuality    int
	RequestLog     bool
}

// Server is the fiber application plus its websocket hubs.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	events *hub.Hub
	camera *hub.Hub

	mjpegClients atomic.Int32
}

// NewServer builds the routes.
func NewServer(opts Options) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = DefaultStreamInterval
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}

	s := &Server{
		opts:   opts,
		logger: log.With("component", "web"),
		events: hub.New("events"),
		camera: hub.New("camera"),
	}
	s.events.OnCount = func(n int) { opts.Metrics.SetStreamClients("ws_events", n) }
	s.camera.OnCount = func(n int) { opts.Metrics.SetStreamClients("ws_camera", n) }

	app := fiber.New(fiber.Config{
		AppName:               "fallwatch",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	if opts.RequestLog {
		app.Use(logger.New())
	}
	app.Use(cors.New())

	app.Get("/start", s.handleStart)
	app.Post("/start", s.handleStart)
	app.Get("/stop", s.handleStop)
	app.Post("/stop", s.handleStop)
	app.Get("/status", s.handleStatus)
	app.Get("/video_feed", s.handleVideoFeed)
	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))

	api := app.Group("/api")
	api.Get("/history", s.handleHistory)
	api.Get("/history/:episode", s.handleEpisode)
	api.Get("/events/:id/snapshot", s.handleSnapshot)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and the camera pump. It returns when ctx is done.
func (s *Server) Run(ctx context.Context) {
	go s.events.Run(ctx)
	go s.camera.Run(ctx)
	s.pumpCamera(ctx)
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("web server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("web server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for handlers, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Name implements monitor.Handler.
func (s *Server) Name() string { return "websocket" }

// Handle implements monitor.Handler by broadcasting the event as JSON.
func (s *Server) Handle(_ context.Context, ev monitor.Event) error {
	return s.events.BroadcastJSON(ev)
}

func (s *Server) mjpegClientsChanged(delta int32) {
	n := s.mjpegClients.Add(delta)
	s.opts.Metrics.SetStreamClients("mjpeg", int(n))
}

// pumpCamera pushes new frames to camera clients. It does no encoding work
// while nobody is connected.
func (s *Server) pumpCamera(ctx context.Context) {
	ticker := time.NewTicker(s.opts.StreamInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.camera.ClientCount() == 0 {
			continue
		}
		f, v := s.opts.Buffer.Latest()
		if f == nil || v == last {
			continue
		}
		data, err := f.JPEG(s.opts.JPEGQuality)
		if err != nil {
			s.logger.Warn("encode camera frame", "error", err)
			continue
		}
		last = v
		s.camera.BroadcastBinary(data)
	}
}
