package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	nethttp "net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freekieb7/biu/test"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type releaseLog struct {
	mu    sync.Mutex
	names []string
}

func (l *releaseLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *releaseLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

// trackedHandler answers with its name unless serve is set and counts its
// releases.
type trackedHandler struct {
	name       string
	serve      HandlerFunc
	log        *releaseLog
	releaseErr error
	releases   atomic.Int32
}

func (h *trackedHandler) ServeHTTP(req *Request, res *Response) error {
	if h.serve != nil {
		return h.serve(req, res)
	}
	res.WithText(h.name)
	return nil
}

func (h *trackedHandler) Release() error {
	h.releases.Add(1)
	if h.log != nil {
		h.log.add(h.name)
	}
	return h.releaseErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	opts = append([]Option{
		WithAddr("127.0.0.1:0"),
		WithLogger(discardLogger()),
	}, opts...)
	srv, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func startServer(t *testing.T, srv *Server) string {
	t.Helper()

	require.NoError(t, srv.Start())
	addr := srv.Addr()
	require.NotNil(t, addr)
	return addr.String()
}

func TestServerRouting(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/api", named("api")))
	require.NoError(t, srv.Handle(MethodGet, "/api/x", named("api-x")))
	require.NoError(t, srv.Handle(MethodPost, "/api", named("api-post")))
	addr := startServer(t, srv)

	cases := []struct {
		method, target string
		status         int
		body           string
	}{
		{MethodGet, "/api", 200, "api"},
		{MethodGet, "/api/users?id=1", 200, "api"},
		{MethodGet, "/api/x", 200, "api-x"},
		{MethodGet, "/api/x/deeper", 200, "api-x"},
		{MethodPost, "/api/x", 200, "api-post"},
		{MethodGet, "/other", 404, "Not Found"},
		{MethodDelete, "/api", 404, "Not Found"},
	}
	for _, c := range cases {
		res := test.ParseResponse(t, test.Get(t, addr, c.method, c.target))
		assert.Equal(t, c.status, res.Status, "%s %s", c.method, c.target)
		assert.Equal(t, c.body, res.Body, "%s %s", c.method, c.target)
		assert.Equal(t, "close", res.Headers["connection"])
	}
}

func TestServerRequestBody(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodPost, "/echo", HandlerFunc(func(req *Request, res *Response) error {
		res.WithBytes(req.Headers.Get("content-type"), req.Body)
		return nil
	})))
	addr := startServer(t, srv)

	raw := test.Exchange(t, addr, "POST /echo HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: 13\r\n\r\n{\"ping\":true}")
	res := test.ParseResponse(t, raw)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "application/json", res.Headers["content-type"])
	assert.Equal(t, `{"ping":true}`, res.Body)
}

func TestServerRequestID(t *testing.T) {
	var seen atomic.Value
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/", HandlerFunc(func(req *Request, res *Response) error {
		seen.Store(req.ID)
		assert.NotEmpty(t, req.RemoteAddr)
		return nil
	})))
	addr := startServer(t, srv)

	res := test.ParseResponse(t, test.Get(t, addr, MethodGet, "/"))
	id := res.Headers["x-request-id"]
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, seen.Load())

	other := test.ParseResponse(t, test.Get(t, addr, MethodGet, "/"))
	assert.NotEqual(t, id, other.Headers["x-request-id"])
}

func TestServerHead(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodHead, "/", named("hello")))
	addr := startServer(t, srv)

	raw := test.Get(t, addr, MethodHead, "/")
	res := test.ParseResponse(t, raw)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "5", res.Headers["content-length"])
	assert.Empty(t, res.Body)
}

func TestServerMalformedRequests(t *testing.T) {
	var called atomic.Bool
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/", HandlerFunc(func(req *Request, res *Response) error {
		called.Store(true)
		return nil
	})))
	addr := startServer(t, srv)

	for _, raw := range []string{
		"GET / HTTP/1.1\r\nHost: x\r\n",
		"GET / HTTP/1.1\r\nHost x\r\n\r\n",
		"BREW /pot HTTP/1.1\r\n\r\n",
		"GET /\r\n\r\n",
		"POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc",
		"",
	} {
		out := test.Exchange(t, addr, raw)
		test.AssertStatus(t, out, 400)
		assert.Equal(t, "Bad Request", test.ParseResponse(t, out).Body)
	}
	assert.False(t, called.Load())
}

func TestServerReadTimeout(t *testing.T) {
	srv := newTestServer(t, WithReadTimeout(50*time.Millisecond))
	require.NoError(t, srv.Handle(MethodGet, "/", named("never")))
	addr := startServer(t, srv)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	// the header block is never finished
	_, err = io.WriteString(conn, "GET / HTTP/1.1\r\n")
	require.NoError(t, err)

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	test.AssertStatus(t, string(out), 400)
}

func TestServerHandlerError(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/fail", HandlerFunc(func(req *Request, res *Response) error {
		res.WithStatus(StatusCreated).WithText("half done")
		return errors.New("database unavailable")
	})))
	require.NoError(t, srv.Handle(MethodGet, "/panic", HandlerFunc(func(req *Request, res *Response) error {
		panic("boom")
	})))
	require.NoError(t, srv.Handle(MethodGet, "/raw-then-fail", HandlerFunc(func(req *Request, res *Response) error {
		io.WriteString(res, "HTTP/1.1 202 Accepted\r\nContent-Length: 2\r\n\r\nok")
		res.Flush()
		return errors.New("late failure")
	})))
	require.NoError(t, srv.Handle(MethodGet, "/raw-then-panic", HandlerFunc(func(req *Request, res *Response) error {
		io.WriteString(res, "HTTP/1.1 202 Accepted\r\nContent-Length: 2\r\n\r\nok")
		res.Flush()
		panic("late panic")
	})))
	require.NoError(t, srv.Handle(MethodGet, "/partial-then-fail", HandlerFunc(func(req *Request, res *Response) error {
		io.WriteString(res, "HTTP/1.1 2")
		return errors.New("gave up mid status line")
	})))
	require.NoError(t, srv.Handle(MethodGet, "/ok", named("ok")))
	addr := startServer(t, srv)

	res := test.ParseResponse(t, test.Get(t, addr, MethodGet, "/fail"))
	assert.Equal(t, 500, res.Status)
	assert.Equal(t, "Internal Server Error", res.Body)

	res = test.ParseResponse(t, test.Get(t, addr, MethodGet, "/panic"))
	assert.Equal(t, 500, res.Status)

	// buffered raw bytes are dropped in favour of the error response
	res = test.ParseResponse(t, test.Get(t, addr, MethodGet, "/partial-then-fail"))
	assert.Equal(t, 500, res.Status)
	assert.Equal(t, "Internal Server Error", res.Body)

	for _, target := range []string{"/raw-then-fail", "/raw-then-panic"} {
		out := test.Get(t, addr, MethodGet, target)
		assert.Equal(t, "HTTP/1.1 202 Accepted\r\nContent-Length: 2\r\n\r\nok", out, target)
	}

	// the server keeps serving after a panic
	res = test.ParseResponse(t, test.Get(t, addr, MethodGet, "/ok"))
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "ok", res.Body)
}

func TestServerRawResponse(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/raw", HandlerFunc(func(req *Request, res *Response) error {
		_, err := io.WriteString(res, "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nraw")
		return err
	})))
	addr := startServer(t, srv)

	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nraw", test.Get(t, addr, MethodGet, "/raw"))
}

func TestServerSingleWorker(t *testing.T) {
	srv := newTestServer(t, WithWorkers(1))
	require.NoError(t, srv.Handle(MethodGet, "/", named("one")))
	addr := startServer(t, srv)

	for range 20 {
		res := test.ParseResponse(t, test.Get(t, addr, MethodGet, "/"))
		require.Equal(t, 200, res.Status)
	}

	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			out, err := test.Do(addr, "GET / HTTP/1.1\r\n\r\n")
			if err != nil {
				return err
			}
			if !strings.HasPrefix(out, "HTTP/1.1 200 ") {
				return errors.New("unexpected response: " + out)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestServerConcurrentRequests(t *testing.T) {
	const workers = 4

	var running, peak atomic.Int32
	srv := newTestServer(t, WithWorkers(workers), WithMaxQueued(8))
	require.NoError(t, srv.Handle(MethodGet, "/", HandlerFunc(func(req *Request, res *Response) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		res.WithText(req.Query.Get("n"))
		return nil
	})))
	addr := startServer(t, srv)

	var g errgroup.Group
	for i := range 64 {
		g.Go(func() error {
			n := uuid.NewString()
			out, err := test.Do(addr, "GET /?n="+n+" HTTP/1.1\r\n\r\n")
			if err != nil {
				return err
			}
			if !strings.HasSuffix(out, "\r\n\r\n"+n) {
				return fmt.Errorf("request %d: unexpected response %q", i, out)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestServerLifecycle(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, StateCreated, srv.State())
	assert.Nil(t, srv.Addr())

	require.NoError(t, srv.Handle(MethodGet, "/", named("root")))
	require.NoError(t, srv.Start())
	assert.Equal(t, StateRunning, srv.State())

	assert.ErrorIs(t, srv.Start(), ErrServerStarted)
	assert.ErrorIs(t, srv.Handle(MethodGet, "/late", named("late")), ErrServerStarted)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, srv.State())
	assert.Nil(t, srv.Addr())

	assert.ErrorIs(t, srv.Start(), ErrServerClosed)
	assert.ErrorIs(t, srv.Handle(MethodGet, "/late", named("late")), ErrServerClosed)
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerShutdownNeverStarted(t *testing.T) {
	log := &releaseLog{}
	h := &trackedHandler{name: "h", log: log}

	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/", h))
	require.NoError(t, srv.Close())

	assert.Equal(t, StateStopped, srv.State())
	assert.Equal(t, []string{"h"}, log.get())
}

func TestServerShutdownReleasesHandlersOnce(t *testing.T) {
	log := &releaseLog{}
	a := &trackedHandler{name: "a", log: log}
	b := &trackedHandler{name: "b", log: log}
	c := &trackedHandler{name: "c", log: log}
	d := &trackedHandler{name: "d", log: log}

	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/a", a))
	require.NoError(t, srv.Handle(MethodGet, "/b", b))
	require.NoError(t, srv.Handle(MethodPost, "/a", a))
	require.NoError(t, srv.Handle(MethodGet, "/c", c))
	require.NoError(t, srv.Handle(MethodGet, "/c", d))
	addr := startServer(t, srv)

	res := test.ParseResponse(t, test.Get(t, addr, MethodGet, "/c"))
	assert.Equal(t, "d", res.Body)
	assert.Empty(t, log.get())

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))

	assert.Equal(t, []string{"a", "b", "c", "d"}, log.get())
	for _, h := range []*trackedHandler{a, b, c, d} {
		assert.Equal(t, int32(1), h.releases.Load(), h.name)
	}
}

func TestServerShutdownReleaseErrors(t *testing.T) {
	errFlush := errors.New("flush failed")
	log := &releaseLog{}
	failing := &trackedHandler{name: "failing", log: log, releaseErr: errFlush}
	after := &trackedHandler{name: "after", log: log}

	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/f", failing))
	require.NoError(t, srv.Handle(MethodGet, "/a", after))
	startServer(t, srv)

	err := srv.Shutdown(context.Background())
	require.ErrorIs(t, err, errFlush)
	assert.Equal(t, []string{"failing", "after"}, log.get())
}

func TestServerGracefulShutdown(t *testing.T) {
	entered := make(chan struct{})
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/slow", HandlerFunc(func(req *Request, res *Response) error {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		res.WithText("done")
		return nil
	})))
	addr := startServer(t, srv)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := test.Do(addr, "GET /slow HTTP/1.1\r\n\r\n")
		done <- result{out, err}
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	r := <-done
	require.NoError(t, r.err)
	res := test.ParseResponse(t, r.out)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "done", res.Body)

	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
}

func TestServerShutdownDeadline(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var unblockOnce sync.Once
	finish := func() { unblockOnce.Do(func() { close(unblock) }) }

	h := &trackedHandler{name: "stuck", serve: func(req *Request, res *Response) error {
		close(entered)
		<-unblock
		return nil
	}}
	srv := newTestServer(t)
	t.Cleanup(finish)
	require.NoError(t, srv.Handle(MethodGet, "/", h))
	addr := startServer(t, srv)

	done := make(chan struct{})
	go func() {
		defer close(done)
		test.Do(addr, "GET / HTTP/1.1\r\n\r\n")
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, srv.Shutdown(ctx), context.DeadlineExceeded)

	// the stuck connection was closed under the client
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("client connection was not closed")
	}

	// the handler is still serving, so it keeps its resources
	select {
	case <-srv.released:
		t.Fatal("handler released while its request was running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(0), h.releases.Load())

	finish()
	select {
	case <-srv.released:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not released after its request returned")
	}
	assert.Equal(t, int32(1), h.releases.Load())
}

func TestServerShutdownFullQueue(t *testing.T) {
	entered := make(chan struct{}, 3)
	unblock := make(chan struct{})
	var unblockOnce sync.Once
	finish := func() { unblockOnce.Do(func() { close(unblock) }) }

	srv := newTestServer(t, WithWorkers(1), WithMaxQueued(1))
	t.Cleanup(finish)
	require.NoError(t, srv.Handle(MethodGet, "/", &trackedHandler{name: "stuck", serve: func(req *Request, res *Response) error {
		entered <- struct{}{}
		<-unblock
		return nil
	}}))
	addr := startServer(t, srv)

	var clients sync.WaitGroup
	for range 3 {
		clients.Add(1)
		go func() {
			defer clients.Done()
			test.Do(addr, "GET / HTTP/1.1\r\n\r\n")
		}()
	}

	// one request runs, one waits in the queue and the accept loop waits
	// for room to submit the third
	<-entered
	require.Eventually(t, func() bool {
		return srv.PoolStats().Queued == 1
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- srv.Shutdown(ctx) }()

	select {
	case err := <-shutdownErr:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return after its deadline")
	}

	clientsDone := make(chan struct{})
	go func() {
		clients.Wait()
		close(clientsDone)
	}()
	select {
	case <-clientsDone:
	case <-time.After(5 * time.Second):
		t.Fatal("client connections were not closed")
	}

	finish()
	select {
	case <-srv.released:
	case <-time.After(5 * time.Second):
		t.Fatal("handlers not released after the pool drained")
	}
}

func TestServerBindFailure(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer blocker.Close()

	srv := newTestServer(t, WithAddr(blocker.Addr().String()))
	err = srv.Start()
	require.ErrorIs(t, err, ErrBind)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, blocker.Addr().String(), bindErr.Addr)

	assert.Equal(t, StateCreated, srv.State())
	assert.NoError(t, srv.Handle(MethodGet, "/", named("still open")))
}

func TestServerServe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/", named("served")))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(listener) }()
	require.Eventually(t, func() bool { return srv.State() == StateRunning }, 5*time.Second, time.Millisecond)

	res := test.ParseResponse(t, test.Get(t, listener.Addr().String(), MethodGet, "/"))
	assert.Equal(t, "served", res.Body)

	require.NoError(t, srv.Close())
	assert.ErrorIs(t, <-served, ErrServerClosed)
}

func TestServerListenerClosedUnexpectedly(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := &trackedHandler{name: "h"}
	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/", h))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(listener) }()
	require.Eventually(t, func() bool { return srv.State() == StateRunning }, 5*time.Second, time.Millisecond)

	listener.Close()
	assert.ErrorIs(t, <-served, ErrServerClosed)
	require.Eventually(t, func() bool { return h.releases.Load() == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, StateStopped, srv.State())
}

func TestServerTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prop := propagation.TraceContext{}

	srv := newTestServer(t, WithTracerProvider(tp), WithPropagator(prop))
	require.NoError(t, srv.Handle(MethodGet, "/api", HandlerFunc(func(req *Request, res *Response) error {
		sc := trace.SpanContextFromContext(req.Context())
		res.WithText(sc.TraceID().String())
		return nil
	})))
	addr := startServer(t, srv)

	client := &nethttp.Client{
		Transport: otelhttp.NewTransport(nethttp.DefaultTransport,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithPropagators(prop),
		),
		Timeout: 10 * time.Second,
	}
	resp, err := client.Get("http://" + addr + "/api/users")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 200, resp.StatusCode)

	var clientSpan, serverSpan sdktrace.ReadOnlySpan
	require.Eventually(t, func() bool {
		clientSpan, serverSpan = nil, nil
		for _, span := range recorder.Ended() {
			switch span.SpanKind() {
			case trace.SpanKindClient:
				clientSpan = span
			case trace.SpanKindServer:
				serverSpan = span
			}
		}
		return clientSpan != nil && serverSpan != nil
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, "GET /api", serverSpan.Name())
	assert.Equal(t, clientSpan.SpanContext().TraceID(), serverSpan.SpanContext().TraceID())
	assert.Equal(t, clientSpan.SpanContext().SpanID(), serverSpan.Parent().SpanID())
	assert.Equal(t, serverSpan.SpanContext().TraceID().String(), string(body))

	attrs := attribute.NewSet(serverSpan.Attributes()...)
	status, ok := attrs.Value("http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(200), status.AsInt64())
	route, ok := attrs.Value("http.route")
	require.True(t, ok)
	assert.Equal(t, "/api", route.AsString())
}

func TestServerMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	srv := newTestServer(t, WithMeterProvider(mp))
	require.NoError(t, srv.Handle(MethodGet, "/", named("ok")))
	addr := startServer(t, srv)

	test.Get(t, addr, MethodGet, "/")
	test.Get(t, addr, MethodGet, "/")
	test.Exchange(t, addr, "nonsense\r\n\r\n")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}

	requests, ok := byName["http.server.requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := make(map[int64]int64)
	for _, dp := range requests.DataPoints {
		status, _ := dp.Attributes.Value("http.response.status_code")
		counts[status.AsInt64()] += dp.Value
	}
	assert.Equal(t, int64(2), counts[200])
	assert.Equal(t, int64(1), counts[400])

	_, ok = byName["http.server.request.duration"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)

	busy, ok := byName["biu.pool.busy"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, busy.DataPoints, 1)
	assert.Equal(t, int64(0), busy.DataPoints[0].Value)
	assert.Contains(t, byName, "biu.pool.queued")
}

func TestServerOptions(t *testing.T) {
	_, err := New(WithWorkers(0))
	assert.Error(t, err)
	_, err = New(WithPort(70000))
	assert.Error(t, err)
	_, err = New(WithMaxQueued(-1))
	assert.Error(t, err)

	srv, err := New(WithPort(9090), WithName("api"), WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.Equal(t, "api", srv.Name)
	assert.Equal(t, ":9090", srv.addr)
}

func BenchmarkServeConn(b *testing.B) {
	srv, err := New(WithLogger(discardLogger()))
	if err != nil {
		b.Fatal(err)
	}
	srv.Handle(MethodGet, "/", named("hello"))

	reqMsg := []byte("GET /?a=1 HTTP/1.1\r\nHost: localhost\r\nAccept: text/plain\r\n\r\n")

	for b.Loop() {
		client, server := net.Pipe()
		go func() {
			client.Write(reqMsg)
			io.Copy(io.Discard, client)
			client.Close()
		}()
		srv.ServeConn(server)
	}
}
