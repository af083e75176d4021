package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
	lingerTimeout  = 250 * time.Millisecond
)

// State is a server lifecycle state. Stopped is terminal.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (st State) String() string {
	switch st {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(st))
}

type Server struct {
	Name string

	addr        string
	workers     int
	queueLimit  int
	readTimeout time.Duration
	logger      *slog.Logger

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator

	router   *Router
	pool     atomic.Pointer[WorkerPool]
	inst     *instruments
	listener net.Listener

	// mu serialises Start and Shutdown.
	mu         sync.Mutex
	state      atomic.Int32
	acceptDone chan struct{}
	// released is closed once every handler was released.
	released chan struct{}

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// New creates a server in the Created state. Without options it listens on
// ":8080" with DefaultWorkers workers and reports to the global OpenTelemetry
// providers.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		Name:        "biu",
		addr:        ":8080",
		workers:     DefaultWorkers,
		readTimeout: DefaultReadTimeout,
		logger:      otelslog.NewLogger(instrumentationName),
		router:      NewRouter(),
		conns:       make(map[net.Conn]struct{}),
		released:    make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}
	if s.propagator == nil {
		s.propagator = otel.GetTextMapPropagator()
	}

	inst, err := newInstruments(s.tracerProvider, s.meterProvider, s.propagator, s.PoolStats)
	if err != nil {
		return nil, fmt.Errorf("http: telemetry: %w", err)
	}
	s.inst = inst
	return s, nil
}

func (s *Server) State() State {
	return State(s.state.Load())
}

// Router returns the server's router. Routes may only be added before
// Start.
func (s *Server) Router() *Router {
	return s.router
}

// Handle registers handler for method and every path starting with prefix.
// It fails once the server left the Created state.
func (s *Server) Handle(method, prefix string, handler Handler) error {
	switch s.State() {
	case StateRunning:
		return ErrServerStarted
	case StateStopped:
		return ErrServerClosed
	}
	return s.router.Handle(method, prefix, handler)
}

// Addr returns the bound address while the server is running, nil
// otherwise.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil || s.State() != StateRunning {
		return nil
	}
	return s.listener.Addr()
}

// PoolStats reports the worker pool state. It is zero before Start.
func (s *Server) PoolStats() PoolStats {
	pool := s.pool.Load()
	if pool == nil {
		return PoolStats{}
	}
	return pool.Stats()
}

// Start binds the configured address and starts accepting connections in
// the background. A bind failure is returned as a *BindError and leaves the
// server in the Created state.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStartable(); err != nil {
		return err
	}
	return s.start(func() (net.Listener, error) {
		listener, err := net.Listen("tcp", s.addr)
		if err != nil {
			return nil, &BindError{Addr: s.addr, Err: err}
		}
		return listener, nil
	})
}

// ListenAndServe starts the server and blocks until it stops. It returns
// ErrServerClosed after a shutdown, or the Start error.
func (s *Server) ListenAndServe() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.wait()
}

// Serve accepts connections on listener until the server stops. The server
// takes ownership of listener.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	err := s.checkStartable()
	if err == nil {
		err = s.start(func() (net.Listener, error) { return listener, nil })
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return s.wait()
}

func (s *Server) checkStartable() error {
	switch s.State() {
	case StateRunning:
		return ErrServerStarted
	case StateStopped:
		return ErrServerClosed
	}
	return nil
}

// start must be called with mu held.
func (s *Server) start(listen func() (net.Listener, error)) error {
	listener, err := listen()
	if err != nil {
		return err
	}

	pool := NewWorkerPool(s.workers, WithQueueLimit(s.queueLimit), WithPoolLogger(s.logger))

	s.router.freeze()
	s.pool.Store(pool)
	s.listener = listener
	s.acceptDone = make(chan struct{})
	s.state.Store(int32(StateRunning))

	go s.acceptLoop(listener, pool, s.acceptDone)

	s.logger.Info("server started",
		"name", s.Name,
		"addr", listener.Addr().String(),
		"workers", s.workers,
		"queue_limit", s.queueLimit,
	)
	return nil
}

func (s *Server) wait() error {
	s.mu.Lock()
	done := s.acceptDone
	s.mu.Unlock()

	<-done
	return ErrServerClosed
}

func (s *Server) acceptLoop(listener net.Listener, pool *WorkerPool, done chan struct{}) {
	defer close(done)

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.State() == StateStopped {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				s.logger.Error("listener closed unexpectedly, stopping", "error", err)
				go s.Shutdown(context.Background())
				return
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.logger.Warn("failed to accept connection", "error", err, "retry_in", delay.String())
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.trackConn(conn, true)
		if err := pool.Submit(func() { s.ServeConn(conn) }); err != nil {
			s.trackConn(conn, false)
			conn.Close()
		}
	}
}

// ServeConn answers the single request carried by conn and closes it.
func (s *Server) ServeConn(conn net.Conn) {
	start := time.Now()
	defer func() {
		conn.Close()
		s.trackConn(conn, false)
	}()

	if s.readTimeout > 0 {
		conn.SetReadDeadline(start.Add(s.readTimeout))
	}

	req := &Request{}
	parseErr := req.Parse(bufio.NewReaderSize(conn, DefaultReadBufferSize))
	req.ID = uuid.NewString()
	if addr := conn.RemoteAddr(); addr != nil {
		req.RemoteAddr = addr.String()
	}

	res := newResponse(conn, req.Method == MethodHead, req.ID)
	logger := s.logger.With("request_id", req.ID, "remote", req.RemoteAddr)

	if parseErr != nil {
		logger.Warn("malformed request", "error", parseErr)
		res.WithStatus(StatusBadRequest).WithText(StatusMessage(StatusBadRequest))
		if err := res.flush(); err != nil {
			logger.Debug("failed to write response", "error", err)
		}
		s.inst.record(context.Background(), "_OTHER", StatusBadRequest, start)
		drainConn(conn)
		return
	}

	route, found := s.router.Resolve(req.Method, req.Path)
	handler := route.Handler
	spanName := req.Method
	if found {
		spanName += " " + route.Prefix
	} else {
		handler = NotFoundHandler
	}

	inst := s.inst
	ctx := inst.propagator.Extract(context.Background(), req.Headers)
	ctx, span := inst.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.String("http.route", route.Prefix),
			attribute.String("client.address", req.RemoteAddr),
			attribute.String("biu.request_id", req.ID),
		),
	)
	defer span.End()
	req.WithContext(ctx)

	if herr := invoke(handler, route.Prefix, req, res); herr != nil {
		span.RecordError(herr)
		span.SetStatus(codes.Error, herr.Error())
		args := []any{"method", req.Method, "path", req.Path, "error", herr}
		if herr.Stack != "" {
			args = append(args, "stack", herr.Stack)
		}
		logger.ErrorContext(ctx, "handler failed", args...)

		if !res.Written() {
			res.reset()
			res.WithStatus(StatusInternalServerError).WithText(StatusMessage(StatusInternalServerError))
		}
	}

	if err := res.flush(); err != nil {
		logger.DebugContext(ctx, "failed to write response", "error", err)
	}

	status := res.StatusCode()
	span.SetAttributes(attribute.Int("http.response.status_code", int(status)))
	if status >= 500 {
		span.SetStatus(codes.Error, StatusMessage(status))
	}
	inst.record(ctx, req.Method, status, start)

	logger.InfoContext(ctx, "request served",
		"method", req.Method,
		"path", req.Path,
		"status", status,
		"duration", time.Since(start).String(),
	)
}

func invoke(handler Handler, prefix string, req *Request, res *Response) (herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &HandlerError{Prefix: prefix, Panic: r, Stack: string(debug.Stack())}
		}
	}()

	if err := handler.ServeHTTP(req, res); err != nil {
		return &HandlerError{Prefix: prefix, Err: err}
	}
	return nil
}

// Shutdown stops the server. It closes the listener, lets queued and
// running connections finish until ctx is done and closes whatever
// connections remain after that. Every registered handler is then released
// once, in registration order, but never while one of its requests is still
// running: when ctx ends first, Shutdown returns ctx.Err() right away and
// the handlers are released in the background as soon as the last worker
// returned. Release failures do not stop the sequence; they are logged and,
// for a release that ran within Shutdown, returned joined.
//
// Shutdown is idempotent and may be called on a server that never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := State(s.state.Swap(int32(StateStopped)))
	if prev == StateStopped {
		return nil
	}
	s.router.freeze()

	if prev == StateRunning {
		pool := s.pool.Load()
		s.listener.Close()
		// wakes an accept loop blocked on a full queue
		pool.close()
		<-s.acceptDone

		if err := pool.Shutdown(ctx); err != nil {
			n := s.closeConns()
			s.logger.Warn("shutdown deadline reached, closed connections", "count", n, "error", err)
			go func() {
				<-pool.Done()
				s.releaseHandlers()
			}()
			return err
		}
	}
	return s.releaseHandlers()
}

// releaseHandlers must run once, after the last request finished.
func (s *Server) releaseHandlers() error {
	defer close(s.released)

	if err := s.inst.close(); err != nil {
		s.logger.Debug("failed to unregister instruments", "error", err)
	}

	var errs []error
	for _, handler := range s.router.Handlers() {
		if err := release(handler); err != nil {
			s.logger.Error("handler release failed", "error", err)
			errs = append(errs, err)
		}
	}

	s.logger.Info("server stopped", "name", s.Name)
	return errors.Join(errs...)
}

// Close is Shutdown without a deadline.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

func release(handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("http: release panicked: %v", r)
		}
	}()
	return handler.Release()
}

// drainConn reads what the client still sends after an early response so
// that closing the socket does not reset the connection before the client
// read the response.
func drainConn(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.Copy(io.Discard, io.LimitReader(conn, MaxBodySize))
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeConns() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	n := len(s.conns)
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
	return n
}
