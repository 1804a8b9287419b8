package adminapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/statecraftio/statecraft/pkg/statecraft"
)

// Inspector is the subset of archive.Service the admin surface exposes for
// manual operator-triggered archive/restore.
type Inspector interface {
	ArchiveMachine(ctx context.Context, rootEventID, machineID string, level *int) (*statecraft.MachineEventArchive, error)
	RestoreMachine(ctx context.Context, rootEventID string, keepArchive bool) ([]statecraft.MachineEvent, error)
}

// Config configures Server.
type Config struct {
	Addr      string
	WSAddr    string // live transition feed; empty disables it
	JWTSecret string // empty disables auth — only safe for loopback/dev use
}

// Server is a small fasthttp admin/inspection surface over a Machine:
// health, machine definition stats, manual event send, and manual
// archive/restore.
type Server struct {
	cfg     Config
	machine *statecraft.Machine
	viz     *statecraft.Visualizer
	inspect Inspector
	hub     *Hub
	router  *Router
}

// NewServer wires routes for machine, using viz for the /definition
// endpoint and inspect (may be nil) for manual archive/restore.
func NewServer(cfg Config, machine *statecraft.Machine, viz *statecraft.Visualizer, inspect Inspector) *Server {
	s := &Server{
		cfg:     cfg,
		machine: machine,
		viz:     viz,
		inspect: inspect,
		hub:     NewHub(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *Router {
	r := NewRouter()
	if s.cfg.JWTSecret != "" {
		r.Use(JWTMiddleware(JWTConfig{Secret: s.cfg.JWTSecret, SkipPaths: []string{"/health"}}))
	}

	r.GET("/health", func(c *RequestContext) error {
		return c.JSON(fasthttp.StatusOK, map[string]any{"status": "UP"})
	})

	r.GET("/definition", func(c *RequestContext) error {
		return c.JSON(fasthttp.StatusOK, map[string]any{
			"stats":   s.viz.GetStats(),
			"issues":  s.viz.Validate(),
			"mermaid": s.viz.ToMermaid(),
		})
	})

	r.POST("/machines/:id/events", func(c *RequestContext) error {
		rootEventID := c.Params["id"]
		var req struct {
			Type          string         `json:"type"`
			Payload       map[string]any `json:"payload"`
			Transactional bool           `json:"transactional"`
		}
		if err := json.Unmarshal(c.PostBody(), &req); err != nil {
			return c.JSON(fasthttp.StatusBadRequest, map[string]any{"error": "invalid request body"})
		}
		state, err := s.machine.Send(c, rootEventID, statecraft.Event{
			Type: req.Type, Payload: req.Payload, Source: statecraft.External, Transactional: req.Transactional,
		})
		if err != nil {
			return s.sendErr(c, err)
		}
		s.hub.Broadcast(rootEventID, state.Value)
		return c.JSON(fasthttp.StatusOK, map[string]any{
			"machineId": rootEventID,
			"value":     state.Value,
		})
	})

	if s.inspect != nil {
		r.POST("/machines/:id/archive", func(c *RequestContext) error {
			rootEventID := c.Params["id"]
			archived, err := s.inspect.ArchiveMachine(c, rootEventID, s.machine.Def.ID, nil)
			if err != nil {
				return s.sendErr(c, err)
			}
			if archived == nil {
				return c.JSON(fasthttp.StatusOK, map[string]any{"archived": false})
			}
			return c.JSON(fasthttp.StatusOK, map[string]any{"archived": true, "eventCount": archived.EventCount})
		})

		r.POST("/machines/:id/restore", func(c *RequestContext) error {
			rootEventID := c.Params["id"]
			events, err := s.inspect.RestoreMachine(c, rootEventID, true)
			if err != nil {
				return s.sendErr(c, err)
			}
			return c.JSON(fasthttp.StatusOK, map[string]any{"restoredEvents": len(events)})
		})
	}

	return r
}

func (s *Server) sendErr(c *RequestContext, err error) error {
	status := fasthttp.StatusInternalServerError
	switch err.(type) {
	case *statecraft.ValidationError:
		status = fasthttp.StatusUnprocessableEntity
	case *statecraft.NoTransition, *statecraft.BehaviorNotFound, *statecraft.MissingContext:
		status = fasthttp.StatusBadRequest
	case *statecraft.AlreadyRunning:
		status = fasthttp.StatusConflict
	}
	return c.JSON(status, map[string]any{"error": err.Error()})
}

// Start runs the fasthttp REST listener and, if cfg.WSAddr is set, the
// gorilla/websocket live-feed listener (a separate net/http server, since
// fasthttp has no native WebSocket upgrade path). Start blocks on the REST
// listener; the websocket listener runs in its own goroutine.
func (s *Server) Start() error {
	if s.cfg.WSAddr != "" {
		go func() {
			_ = StartWatchServer(s.cfg.WSAddr, s.hub)
		}()
	}
	return fasthttp.ListenAndServe(s.cfg.Addr, s.router.Serve)
}

// Addr returns the configured listen address, for logging at startup.
func (s *Server) Addr() string {
	return fmt.Sprintf("http://%s", s.cfg.Addr)
}
