package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/evaluation"
)

type Options struct {
	Address        string
	Debug          bool
	TestMode       bool
	DisableReqLogs bool
	// RecalculateOnSubmit refreshes the trainee's grade after each grader submission.
	RecalculateOnSubmit bool
}

// NewOptions reads the server options from the app config.
func NewOptions(conf *core.Config) *Options {
	return &Options{
		Address:             conf.Server.Address,
		Debug:               conf.Debug,
		TestMode:            conf.TestMode,
		DisableReqLogs:      conf.TestMode,
		RecalculateOnSubmit: conf.Grading.RecalculateOnSubmit,
	}
}

type Server struct {
	opts     *Options
	app      *echo.Echo
	logger   core.Logger
	svc      *evaluation.Service
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(opts *Options, logger core.Logger, svc *evaluation.Service) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		logger:   logger,
		svc:      svc,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(actorMiddleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.signalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	registerTemplateAPI(v1, s.svc)
	registerScoringAPI(v1, s.svc, s.opts.RecalculateOnSubmit)
	registerGradeAPI(v1, s.svc)
}

// Start listens until the server is shut down; listening errors are sent to Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Gradebook API!")
}
