package server

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/h0rv/kanban/internal/auth"
)

// Server is the mock backend application.
type Server struct {
	cfg    Config
	repo   *Repository
	broker Broker
	log    log.FieldLogger
	echo   *echo.Echo

	failing map[string]bool
	sleep   func(ctx context.Context, d time.Duration)
}

// New builds the echo application and registers every route. A nil logger
// uses the logrus standard logger.
func New(cfg Config, repo *Repository, broker Broker, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = Defaults().Heartbeat
	}
	s := &Server{
		cfg:     cfg,
		repo:    repo,
		broker:  broker,
		log:     logger,
		failing: make(map[string]bool, len(cfg.FailingCardIDs)),
		sleep:   sleepCtx,
	}
	for _, id := range cfg.FailingCardIDs {
		s.failing[strings.ToLower(id)] = true
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderCacheControl},
	}))
	e.Use(s.requestLogger())
	s.echo = e
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	guard := s.requireToken()

	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.GET("/api/users", s.searchUsers)
	e.GET("/api/users/:id", s.getUser)
	e.PATCH("/api/users/:id", s.updateUser, guard)

	e.GET("/api/board/:id", s.getBoard)
	e.GET("/api/board/:id/events", s.streamEvents)
	e.GET("/ws/board/:id", s.streamSocket)

	e.GET("/api/cards/:id", s.getCard)
	e.POST("/api/cards", s.createCard, guard)
	e.PATCH("/api/cards/:id", s.updateCard, guard)
	e.PATCH("/api/cards/:id/move", s.moveCard, guard)
	e.DELETE("/api/cards/:id", s.deleteCard, guard)
}

// Handler returns the HTTP handler, for mounting in tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("addr", s.cfg.Addr).Info("mock API listening")
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdown)
	})
	return g.Wait()
}

// requireToken rejects requests without the configured bearer token. It is a
// no-op when no token is configured.
func (s *Server) requireToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.cfg.Token == "" || auth.BearerMatches(c.Request().Header.Get(echo.HeaderAuthorization), s.cfg.Token) {
				return next(c)
			}
			return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
		}
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := s.log.WithFields(log.Fields{"method": v.Method, "uri": v.URI, "status": v.Status})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request failed")
				return nil
			}
			entry.Debug("request")
			return nil
		},
	})
}

// delay sleeps for d when latency simulation is enabled.
func (s *Server) delay(ctx context.Context, d time.Duration) {
	if s.cfg.Latency {
		s.sleep(ctx, d)
	}
}

// boardDelay is the simulated board query latency: short prefixes of a query
// are slower, so an early keystroke can answer after a later one.
func boardDelay(q string) time.Duration {
	base := 300 * time.Millisecond
	switch {
	case strings.HasPrefix(q, "inst"):
		base = 150 * time.Millisecond
	case strings.HasPrefix(q, "ins"):
		base = 650 * time.Millisecond
	}
	return base + time.Duration(rand.IntN(120))*time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

// sonicSerializer encodes echo responses and binds request bodies with sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body").SetInternal(err)
	}
	return nil
}
