package http

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Server.
type Option func(*Server) error

// WithName sets the name reported in logs.
func WithName(name string) Option {
	return func(s *Server) error {
		s.Name = name
		return nil
	}
}

// WithAddr sets the TCP address to listen on, e.g. ":8080" or
// "127.0.0.1:0".
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithPort listens on every interface at port.
func WithPort(port int) Option {
	return func(s *Server) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("http: port %d out of range", port)
		}
		s.addr = fmt.Sprintf(":%d", port)
		return nil
	}
}

// WithWorkers sets the worker pool capacity.
func WithWorkers(n int) Option {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("http: workers must be positive, got %d", n)
		}
		s.workers = n
		return nil
	}
}

// WithMaxQueued bounds the connections waiting for a worker. Zero keeps
// the queue unbounded so the accept loop never blocks; a limit makes the
// accept loop wait for room instead.
func WithMaxQueued(limit int) Option {
	return func(s *Server) error {
		if limit < 0 {
			return fmt.Errorf("http: queue limit must not be negative, got %d", limit)
		}
		s.queueLimit = limit
		return nil
	}
}

// WithReadTimeout bounds the time spent reading a request. Zero disables
// the deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.readTimeout = d
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) error {
		s.tracerProvider = tp
		return nil
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Server) error {
		s.meterProvider = mp
		return nil
	}
}

// WithPropagator sets how trace context is read from request headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(s *Server) error {
		s.propagator = p
		return nil
	}
}
