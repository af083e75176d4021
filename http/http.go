// Package http is a small embeddable HTTP/1.x server built directly on TCP.
//
// Every connection carries exactly one request: the server parses it,
// resolves a handler by longest-prefix match on the request path among the
// routes registered for the request method, runs the handler on a bounded
// worker pool and closes the connection.
//
//	srv, err := http.New(http.WithAddr(":8080"), http.WithWorkers(8))
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv.Handle(http.MethodGet, "/api", apiHandler)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Close()
package http

import (
	"math"
	"time"
)

const (
	DefaultReadBufferSize  = 4096 // 4kB
	DefaultWriteBufferSize = 4096 // 4kB
	DefaultWorkers         = 16
	DefaultReadTimeout     = 30 * time.Second

	MaxLineSize       = 8 * 1024        // 8kB
	MaxBodySize       = 2 * 1024 * 1024 // 2MB
	MaxRequestHeaders = math.MaxUint8
)

const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodConnect = "CONNECT"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
)

// ValidMethod reports whether method is one of the verbs the server routes.
func ValidMethod(method string) bool {
	switch method {
	case MethodGet, MethodHead, MethodPost, MethodPut, MethodPatch,
		MethodDelete, MethodConnect, MethodOptions, MethodTrace:
		return true
	}
	return false
}

// Handler serves one request. It writes its answer to res and returns a
// non-nil error when it failed; the server then answers 500 if nothing was
// written yet. Release is called once when the server shuts down.
type Handler interface {
	ServeHTTP(req *Request, res *Response) error
	Release() error
}

// HandlerFunc adapts a function to a Handler with nothing to release.
type HandlerFunc func(req *Request, res *Response) error

func (f HandlerFunc) ServeHTTP(req *Request, res *Response) error {
	return f(req, res)
}

func (f HandlerFunc) Release() error {
	return nil
}
