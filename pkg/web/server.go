// Package web serves the line-follower viewer: annotated camera frames, loop
// status and events over websockets, plus a small control API.
package web

import (
	"context"
	"image"
	"image/draw"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-linefollow/pkg/annotate"
	"github.com/teslashibe/go-linefollow/pkg/follower"
	"github.com/teslashibe/go-linefollow/pkg/hub"
	"github.com/teslashibe/go-linefollow/pkg/vision"
)

// Runner controls runs; *follower.Session implements it.
type Runner interface {
	Stop() error
	Resume() error
	Halt(ctx context.Context) error
	Running() bool
	Last() (follower.Result, bool)
}

// StatusSource reports loop status; *follower.Loop implements it.
type StatusSource interface {
	Status() follower.Status
}

// Server is the viewer. It is also a follower.ImageSink: the loop publishes
// snapshots into a single-slot mailbox and a render goroutine annotates,
// encodes and broadcasts them.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	runner      Runner
	loop        StatusSource
	tuning      *follower.Tuning
	annotations *annotate.Registry

	// Hubs for websocket broadcast
	cameraHub *hub.Hub
	statusHub *hub.Hub
	eventsHub *hub.Hub

	frames    chan follower.Snapshot
	quit      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
	rendered  atomic.Uint64

	// Owned by the render goroutine.
	lastRun   string
	lastState follower.State
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAnnotations sets the overlay registry used for camera frames.
func WithAnnotations(r *annotate.Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.annotations = r
		}
	}
}

// NewServer creates a viewer listening on addr (host:port).
func NewServer(addr string, runner Runner, loop StatusSource, tuning *follower.Tuning, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		logger:      slog.Default().With("component", "web"),
		runner:      runner,
		loop:        loop,
		tuning:      tuning,
		annotations: annotate.NewRegistry(),
		frames:      make(chan follower.Snapshot, 1),
		quit:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	tuning.OnChange(func(p follower.Params) { s.Event("tuning", p) })

	s.cameraHub = hub.New("camera", s.logger, hub.WithPolicy(hub.Latest))
	s.statusHub = hub.New("status", s.logger, hub.WithPolicy(hub.Latest), hub.WithBuffer(2))
	s.eventsHub = hub.New("events", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "linefollow",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/tuning", s.handleGetTuning)
	api.Put("/tuning", s.handlePutTuning)
	api.Post("/stop", s.handleStop)
	api.Post("/resume", s.handleResume)
	api.Get("/annotations", s.handleListAnnotations)
	api.Put("/annotations/:name", s.handleSetAnnotation)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

func (s *Server) start() {
	s.startOnce.Do(func() {
		go s.cameraHub.Run()
		go s.statusHub.Run()
		go s.eventsHub.Run()

		s.wg.Add(1)
		go s.renderLoop()
	})
}

// Start serves on the configured address until Shutdown.
func (s *Server) Start() error {
	s.start()
	s.logger.Info("viewer listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Listener serves on ln until Shutdown.
func (s *Server) Listener(ln net.Listener) error {
	s.start()
	s.logger.Info("viewer listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops the HTTP server, the hubs and the render goroutine.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.stopOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.cameraHub.Stop()
		s.statusHub.Stop()
		s.eventsHub.Stop()
	})
	return err
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Publish implements follower.Sink. The newest snapshot replaces any that
// has not been rendered yet.
func (s *Server) Publish(snap follower.Snapshot) {
	s.published.Add(1)
	for {
		select {
		case s.frames <- snap:
			return
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
	}
}

// WantsImage implements follower.ImageSink: frames are only converted while
// someone is watching.
func (s *Server) WantsImage() bool {
	return s.cameraHub.ClientCount() > 0
}

// Event broadcasts an event to /ws/events clients.
func (s *Server) Event(typ string, data any) {
	msg, err := hub.NewEnvelope(typ, data)
	if err != nil {
		s.logger.Warn("encode event", "type", typ, "error", err)
		return
	}
	s.eventsHub.Broadcast(msg)
}

// Stats returns snapshot counters.
func (s *Server) Stats() (published, rendered, dropped uint64) {
	return s.published.Load(), s.rendered.Load(), s.dropped.Load()
}

func (s *Server) renderLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case snap := <-s.frames:
			s.handleSnapshot(snap)
		}
	}
}

func (s *Server) handleSnapshot(snap follower.Snapshot) {
	s.statusHub.BroadcastJSON(s.statusPayload())

	if snap.RunID != s.lastRun || snap.State != s.lastState {
		s.Event("state", stateEvent{
			RunID: snap.RunID,
			State: snap.State,
			Kind:  snap.Kind,
			Err:   snap.Err,
			Cycle: snap.Cycle,
		})
		s.lastRun, s.lastState = snap.RunID, snap.State
	}

	if snap.Image == nil || s.cameraHub.ClientCount() == 0 {
		return
	}
	img := toRGBA(snap.Image)
	if err := s.annotations.Render(img, 1, annotationContext(snap)); err != nil {
		s.logger.Debug("annotation failed", "error", err)
	}
	data, err := vision.EncodeJPEG(img)
	if err != nil {
		s.logger.Warn("encode frame", "error", err)
		return
	}
	s.cameraHub.BroadcastBinary(data)
	s.rendered.Add(1)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func annotationContext(snap follower.Snapshot) annotate.Context {
	return annotate.Context{
		Time:         snap.Time,
		BatteryVolts: snap.BatteryVolts,
		HasBattery:   snap.HasBattery,
		State:        snap.State.String(),
		Command:      snap.CommandText,
		ROI:          snap.ROI,
		Centroid:     snap.Centroid,
		Contour:      snap.Contour,
		BandLo:       snap.BandLo,
		BandHi:       snap.BandHi,
	}
}
