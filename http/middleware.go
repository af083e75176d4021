package http

import (
	"log/slog"
	"time"
)

// Middleware decorates a Handler.
type Middleware func(next Handler) Handler

// Chain wraps h so that the first middleware runs outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type wrappedHandler struct {
	next  Handler
	serve HandlerFunc
}

func (w *wrappedHandler) ServeHTTP(req *Request, res *Response) error {
	return w.serve(req, res)
}

// Release releases the wrapped handler.
func (w *wrappedHandler) Release() error {
	return w.next.Release()
}

// Wrap returns a Handler that serves with serve and releases next.
func Wrap(next Handler, serve HandlerFunc) Handler {
	return &wrappedHandler{next: next, serve: serve}
}

// AccessLog logs one line per request once the handler returned.
func AccessLog(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return Wrap(next, func(req *Request, res *Response) error {
			start := time.Now()
			err := next.ServeHTTP(req, res)

			status := res.StatusCode()
			if err != nil && !res.Written() {
				status = StatusInternalServerError
			}

			attrs := []any{
				"id", req.ID,
				"method", req.Method,
				"path", req.Path,
				"status", status,
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Warn("request failed", append(attrs, "error", err)...)
				return err
			}
			logger.Info("request", attrs...)
			return nil
		})
	}
}

// DefaultHeaders sets headers on every response before the handler runs,
// so the handler can still override them.
func DefaultHeaders(headers map[string]string) Middleware {
	return func(next Handler) Handler {
		return Wrap(next, func(req *Request, res *Response) error {
			for key, value := range headers {
				res.SetHeader(key, value)
			}
			return next.ServeHTTP(req, res)
		})
	}
}
