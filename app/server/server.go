package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"ragkb/app/agent"
	"ragkb/app/api"
	"ragkb/app/middleware"
	"ragkb/loader"
)

type Options struct {
	BodyLimitMB int
	// Watcher, when set, runs alongside the HTTP server.
	Watcher *loader.Watcher
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
	app        *fiber.App
	watcher    *loader.Watcher
}

func NewServer(addr string, pipeline *agent.Pipeline, converter *loader.Converter, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	bodyLimit := opts.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 16
	}

	var (
		app = fiber.New(fiber.Config{
			ErrorHandler:          api.ErrorHandler,
			BodyLimit:             bodyLimit * 1024 * 1024,
			DisableStartupMessage: true,
		})
		checkHandler   = api.NewCheckHandler(pipeline)
		requestHandler = api.NewRequestHandler(pipeline, logger)
		fileHandler    = api.NewFileHandler(pipeline, converter)
	)

	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLog(logger))
	app.Use(middleware.CORS())

	check := app.Group("/check")
	check.Get("/healthy", checkHandler.HandleHealthy)

	// every route is served both at the root and under /api/v1
	for _, r := range []fiber.Router{app, app.Group("/api/v1")} {
		r.Post("/ingest", requestHandler.HandleIngest)
		r.Post("/ingest/file", fileHandler.HandleIngestFile)
		r.Post("/ask", requestHandler.HandleAsk)
	}

	return &Server{
		listenAddr: addr,
		logger:     logger.With("component", "server"),
		app:        app,
		watcher:    opts.Watcher,
	}
}

// App exposes the fiber application for in-process requests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if s.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.watcher.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", s.listenAddr)
		errCh <- s.app.Listen(s.listenAddr)
	}()

	var err error
	select {
	case err = <-errCh:
		if err != nil {
			s.logger.Error("error to start server", "error", err.Error())
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if serr := s.app.ShutdownWithContext(shutdownCtx); serr != nil && !errors.Is(serr, context.DeadlineExceeded) {
			err = serr
		}
	}

	cancel()
	wg.Wait()
	s.Stop()
	return err
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}
