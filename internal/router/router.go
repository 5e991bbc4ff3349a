package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"example.com/kawaii/v2/internal/config"
	"example.com/kawaii/v2/internal/handlers/staticfile"
	"example.com/kawaii/v2/internal/header"
	"example.com/kawaii/v2/internal/logger"
)

// Handler produces a response for a request whose path is relative to the mount point.
type Handler interface {
	Handle(req *header.Request) *staticfile.Response
}

// HandlerFactory builds the handler for one route.
type HandlerFactory func(route config.Route, lg *logger.Logger) (Handler, error)

// StaticHandlerFactory mounts a staticfile.Handler on the route's static settings.
func StaticHandlerFactory(route config.Route, lg *logger.Logger) (Handler, error) {
	h, err := staticfile.New(route.Static, lg)
	if err != nil {
		return nil, err
	}
	return h, nil
}

type mountedRoute struct {
	route   config.Route
	handler Handler
}

// Router dispatches requests to the handler of the matching route.
// Exact routes take precedence over prefix routes; among prefix routes the
// longest pattern wins.
type Router struct {
	exactRoutes  map[string]mountedRoute
	prefixRoutes []mountedRoute
	serverName   string
	log          *logger.Logger
}

// NewRouter instantiates one handler per route using factory.
func NewRouter(routes []config.Route, factory HandlerFactory, lg *logger.Logger) (*Router, error) {
	if factory == nil {
		return nil, fmt.Errorf("handler factory cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	r := &Router{
		exactRoutes: make(map[string]mountedRoute),
		serverName:  config.DefaultServerName,
		log:         lg,
	}
	for _, route := range routes {
		h, err := factory(route, lg)
		if err != nil {
			return nil, fmt.Errorf("failed to create handler for route %q: %w", route.PathPattern, err)
		}
		m := mountedRoute{route: route, handler: h}
		switch route.MatchType {
		case config.MatchTypeExact:
			r.exactRoutes[route.PathPattern] = m
		case config.MatchTypePrefix:
			r.prefixRoutes = append(r.prefixRoutes, m)
		default:
			return nil, fmt.Errorf("route %q has unknown match type %q", route.PathPattern, route.MatchType)
		}
	}
	sort.SliceStable(r.prefixRoutes, func(i, j int) bool {
		return len(r.prefixRoutes[i].route.PathPattern) > len(r.prefixRoutes[j].route.PathPattern)
	})
	return r, nil
}

// Match is the outcome of a successful route lookup.
type Match struct {
	Route   config.Route
	Handler Handler
	// Path is the request path as seen by the handler: unchanged for exact
	// routes, with the mount prefix removed for prefix routes.
	Path string
}

// FindRoute looks up the route serving path.
func (r *Router) FindRoute(path string) (*Match, bool) {
	if m, ok := r.exactRoutes[path]; ok {
		return &Match{Route: m.route, Handler: m.handler, Path: path}, true
	}
	for _, m := range r.prefixRoutes {
		if rest, ok := stripPrefix(path, m.route.PathPattern); ok {
			return &Match{Route: m.route, Handler: m.handler, Path: rest}, true
		}
	}
	return nil, false
}

// stripPrefix matches on whole path segments: "/assets" matches "/assets" and
// "/assets/x" but not "/assetsx".
func stripPrefix(path, pattern string) (string, bool) {
	if !strings.HasPrefix(path, pattern) {
		return "", false
	}
	rest := path[len(pattern):]
	if !strings.HasSuffix(pattern, "/") && rest != "" && rest[0] != '/' {
		return "", false
	}
	return "/" + strings.TrimPrefix(rest, "/"), true
}

// Handle routes a transport-independent request.
func (r *Router) Handle(req *header.Request) *staticfile.Response {
	m, ok := r.FindRoute(req.Path)
	if !ok {
		r.log.Info("No route matched for request", logger.LogFields{"path": req.Path, "method": req.Method})
		return staticfile.BuildError(r.serverName, http.StatusNotFound, staticfile.ErrNotFound)
	}
	routed := *req
	routed.Path = m.Path
	return m.Handler.Handle(&routed)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	staticfile.WriteResponse(w, r.Handle(header.FromHTTP(req)))
}
