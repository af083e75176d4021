package http

import (
	"fmt"
	"reflect"
	"strings"
)

// Router maps (method, prefix) pairs to handlers and resolves a request
// path to the registered prefix that matches the most of it.
//
// A Router is not safe for concurrent mutation. The server stops accepting
// registrations once it starts, after which the Router is only read.
type Router struct {
	routes map[string][]Route
	order  []Route
	frozen bool
}

func NewRouter() *Router {
	return &Router{
		routes: make(map[string][]Route),
	}
}

func (router *Router) GET(prefix string, handler Handler) error {
	return router.Handle(MethodGet, prefix, handler)
}

func (router *Router) HEAD(prefix string, handler Handler) error {
	return router.Handle(MethodHead, prefix, handler)
}

func (router *Router) POST(prefix string, handler Handler) error {
	return router.Handle(MethodPost, prefix, handler)
}

func (router *Router) PUT(prefix string, handler Handler) error {
	return router.Handle(MethodPut, prefix, handler)
}

func (router *Router) PATCH(prefix string, handler Handler) error {
	return router.Handle(MethodPatch, prefix, handler)
}

func (router *Router) DELETE(prefix string, handler Handler) error {
	return router.Handle(MethodDelete, prefix, handler)
}

func (router *Router) OPTIONS(prefix string, handler Handler) error {
	return router.Handle(MethodOptions, prefix, handler)
}

// Any registers handler for each of methods under prefix.
func (router *Router) Any(methods []string, prefix string, handler Handler) error {
	for _, method := range methods {
		if err := router.Handle(method, prefix, handler); err != nil {
			return err
		}
	}
	return nil
}

// Handle registers handler for method and prefix, replacing the handler
// previously registered for the same pair.
func (router *Router) Handle(method, prefix string, handler Handler) error {
	if router.frozen {
		return ErrServerStarted
	}
	if !ValidMethod(method) {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidRoute, method)
	}
	if prefix == "" {
		return fmt.Errorf("%w: empty prefix", ErrInvalidRoute)
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s %s", ErrInvalidRoute, method, prefix)
	}

	route := Route{Method: method, Prefix: prefix, Handler: handler}
	router.order = append(router.order, route)

	routes := router.routes[method]
	for i := range routes {
		if routes[i].Prefix == prefix {
			routes[i] = route
			return nil
		}
	}
	router.routes[method] = append(routes, route)
	return nil
}

// Group registers the routes added by groupFunc under path.
func (router *Router) Group(path string, groupFunc func(group *Router) error) error {
	group := NewRouter()
	if err := groupFunc(group); err != nil {
		return err
	}

	for _, route := range group.order {
		if err := router.Handle(route.Method, path+route.Prefix, route.Handler); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the route for method whose prefix is the longest prefix
// of path. It reports false when no route of that method matches.
func (router *Router) Resolve(method, path string) (Route, bool) {
	var (
		best  Route
		found bool
	)
	for _, route := range router.routes[method] {
		if len(route.Prefix) > len(best.Prefix) && strings.HasPrefix(path, route.Prefix) {
			best = route
			found = true
		}
	}
	return best, found
}

// Routes returns the active routes of method in registration order.
func (router *Router) Routes(method string) []Route {
	out := make([]Route, len(router.routes[method]))
	copy(out, router.routes[method])
	return out
}

// Handlers returns every handler ever registered, replaced ones included,
// in registration order. A handler registered more than once through the
// same pointer appears once.
func (router *Router) Handlers() []Handler {
	seen := make(map[Handler]struct{})
	handlers := make([]Handler, 0, len(router.order))
	for _, route := range router.order {
		if reflect.ValueOf(route.Handler).Kind() == reflect.Pointer {
			if _, ok := seen[route.Handler]; ok {
				continue
			}
			seen[route.Handler] = struct{}{}
		}
		handlers = append(handlers, route.Handler)
	}
	return handlers
}

func (router *Router) freeze() {
	router.frozen = true
}
