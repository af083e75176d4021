package http

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/freekieb7/biu/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next Handler) Handler {
			return Wrap(next, func(req *Request, res *Response) error {
				order = append(order, name)
				return next.ServeHTTP(req, res)
			})
		}
	}

	h := Chain(named("inner"), trace("a"), trace("b"), trace("c"))
	res := newResponse(io.Discard, false, "")
	require.NoError(t, h.ServeHTTP(&Request{}, res))

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []byte("inner"), res.Body)
}

func TestChainReleasesInner(t *testing.T) {
	inner := &trackedHandler{name: "inner", releaseErr: errors.New("boom")}
	h := Chain(inner, DefaultHeaders(nil), AccessLog(discardLogger()))

	assert.EqualError(t, h.Release(), "boom")
	assert.Equal(t, int32(1), inner.releases.Load())
}

func TestDefaultHeaders(t *testing.T) {
	h := Chain(HandlerFunc(func(req *Request, res *Response) error {
		res.SetHeader("cache-control", "no-store")
		res.WithText("ok")
		return nil
	}), DefaultHeaders(map[string]string{
		"Server":        "biu",
		"Cache-Control": "max-age=60",
	}))

	res := newResponse(io.Discard, false, "")
	require.NoError(t, h.ServeHTTP(&Request{}, res))
	assert.Equal(t, "biu", res.Headers.Get("server"))
	assert.Equal(t, "no-store", res.Headers.Get("cache-control"))
}

// lockedBuffer is written by workers and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAccessLog(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	srv := newTestServer(t)
	require.NoError(t, srv.Handle(MethodGet, "/ok", Chain(named("ok"), AccessLog(logger))))
	require.NoError(t, srv.Handle(MethodGet, "/fail", Chain(HandlerFunc(func(req *Request, res *Response) error {
		return errors.New("database down")
	}), AccessLog(logger))))
	addr := startServer(t, srv)

	res := test.ParseResponse(t, test.Get(t, addr, MethodGet, "/ok"))
	assert.Equal(t, 200, res.Status)
	res = test.ParseResponse(t, test.Get(t, addr, MethodGet, "/fail"))
	assert.Equal(t, 500, res.Status)

	logs := buf.String()
	assert.Contains(t, logs, "msg=request ")
	assert.Contains(t, logs, "path=/ok status=200")
	assert.Contains(t, logs, "msg=\"request failed\"")
	assert.Contains(t, logs, "path=/fail status=500")
	assert.Contains(t, logs, "error=\"database down\"")
}
