// Package server runs the array store's HTTP face.
package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/flowpool/flowpool/pkg/api/apierr"
	"github.com/flowpool/flowpool/pkg/echoutil"
	"github.com/flowpool/flowpool/pkg/utils/retry"
)

type Endpoint struct {
	Method  string
	Path    string
	Handler echo.HandlerFunc
}

type server struct {
	silent         bool
	apiKey         string
	loglevel       string
	gracefulPeriod time.Duration
}

func defaultServerConfig() server {
	return server{
		loglevel:       "info",
		gracefulPeriod: 30 * time.Second,
	}
}

type Option func(*server) *server

// set graceful period for shutdown.
//
// GracefulPeriod is 30 seconds by default.
func WithGracefulPeriod(d time.Duration) Option {
	return func(s *server) *server {
		s.gracefulPeriod = d
		return s
	}
}

// require X-Api-Key on every request. Empty key means no gate.
func WithAPIKey(key string) Option {
	return func(s *server) *server {
		s.apiKey = key
		return s
	}
}

func WithLogLevel(level string) Option {
	return func(s *server) *server {
		s.loglevel = level
		return s
	}
}

func Silent() Option {
	return func(s *server) *server {
		s.silent = true
		return s
	}
}

type Starter func(*echo.Echo) error

// start server on port number to start server.
func OnPort(p int) Starter {
	return func(e *echo.Echo) error {
		if err := e.Start(fmt.Sprintf(":%d", p)); err != nil {
			return err
		}
		return nil
	}
}

// start server on port number to start server.
//
// listen on localhost only.
func OnLocalPort(p int) Starter {
	return func(e *echo.Echo) error {
		if err := e.Start(fmt.Sprintf("localhost:%d", p)); err != nil {
			return err
		}
		return nil
	}
}

type Server struct {
	Port       int
	ServerStop <-chan error
}

// start server with the given endpoints.
//
// # Params
//
// - ctx context.Context: context to be used for server.
// To stop the server, cancel this context.
//
// - starter Starter: starter to be used for server.
//
// - endpoints []Endpoint: handlers to be registered to server.
//
// - opts ...Option: options to configure server.
func Start(ctx context.Context, starter Starter, endpoints []Endpoint, opts ...Option) Server {
	serverConfig := defaultServerConfig()
	for _, opt := range opts {
		serverConfig = *opt(&serverConfig)
	}

	e := echo.New()
	if serverConfig.silent {
		e.HideBanner = true
		e.HidePort = true
	}
	echoutil.SetLevel(e, serverConfig.loglevel)
	e.Use(echoutil.LogHandlerFunc)

	if key := serverConfig.apiKey; key != "" {
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				given := c.Request().Header.Get("X-Api-Key")
				if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
					return apierr.Unauthorized("api key mismatch", nil)
				}
				return next(c)
			}
		})
	}

	closeServer := func() func() {
		o := sync.Once{}
		return func() {
			o.Do(func() {
				if 0 < serverConfig.gracefulPeriod {
					_ctx, _cancel := context.WithTimeout(context.Background(), serverConfig.gracefulPeriod)
					defer _cancel()
					e.Shutdown(_ctx) // try to shutdown gracefully
				}
				e.Close() // close forcefully
			})
		}
	}()
	go func() {
		<-ctx.Done()
		closeServer()
	}()

	for _, ep := range endpoints {
		e.Add(ep.Method, ep.Path, ep.Handler)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- starter(e)
	}()

	port, _ := retry.Blocking[int](
		ctx, retry.StaticBackoff(100*time.Millisecond),
		func() (int, error) {
			if e.Listener == nil {
				return 0, retry.ErrRetry
			}
			return e.Listener.Addr().(*net.TCPAddr).Port, nil
		},
	)

	return Server{Port: port, ServerStop: ch}
}
