// Package adminapi exposes machine definitions and running instances over
// a small fasthttp-based HTTP surface with its own path-parameter router.
package adminapi

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
)

// RequestContext wraps a fasthttp.RequestCtx with path params and a small
// JSON helper.
type RequestContext struct {
	*fasthttp.RequestCtx
	Params map[string]string
}

// JSON writes status and v (marshaled) as the response body.
func (c *RequestContext) JSON(status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		c.SetStatusCode(fasthttp.StatusInternalServerError)
		_, _ = c.WriteString(`{"error":"failed to marshal response"}`)
		return nil
	}
	c.SetStatusCode(status)
	c.SetContentType("application/json")
	_, _ = c.Write(body)
	return nil
}

// Handler handles one matched request.
type Handler func(c *RequestContext) error

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

type route struct {
	method  string
	path    string
	handler Handler
}

// Router is a minimal path-parameter router (":id" segments) dispatching
// fasthttp requests.
type Router struct {
	mu         sync.RWMutex
	routes     []*route
	middleware []Middleware
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{}
}

// Use registers global middleware, applied outermost-first in registration order.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

func (r *Router) add(method, path string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, &route{method: method, path: path, handler: handler})
}

func (r *Router) GET(path string, h Handler)  { r.add(fasthttp.MethodGet, path, h) }
func (r *Router) POST(path string, h Handler) { r.add(fasthttp.MethodPost, path, h) }

// Serve implements fasthttp.RequestHandler.
func (r *Router) Serve(ctx *fasthttp.RequestCtx) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	method := string(ctx.Method())
	path := string(ctx.Path())

	for _, rt := range r.routes {
		if rt.method != method {
			continue
		}
		params, ok := match(rt.path, path)
		if !ok {
			continue
		}
		rc := &RequestContext{RequestCtx: ctx, Params: params}
		handler := rt.handler
		for i := len(r.middleware) - 1; i >= 0; i-- {
			handler = r.middleware[i](handler)
		}
		if err := handler(rc); err != nil {
			ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		}
		return
	}
	ctx.Error("not found", fasthttp.StatusNotFound)
}

func match(pattern, path string) (map[string]string, bool) {
	pp := strings.Split(strings.Trim(pattern, "/"), "/")
	sp := strings.Split(strings.Trim(path, "/"), "/")
	if len(pp) != len(sp) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pp {
		if strings.HasPrefix(seg, ":") {
			params[strings.TrimPrefix(seg, ":")] = sp[i]
			continue
		}
		if seg != sp[i] {
			return nil, false
		}
	}
	return params, true
}
