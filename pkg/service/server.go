package service

// Server exposes the job manager over HTTP: job submission, per-task
// SSE streams, cancellation and Prometheus metrics. It is the reference
// backend every client component in this repo is written against.

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/graphmind/taskstream/pkg/errors"
	"github.com/graphmind/taskstream/pkg/service/sse"
)

type Server struct {
	app     *fiber.App
	manager *Manager
	broker  *sse.Broker
}

/*
NewServer wires a fiber app around the given manager and its broker.
*/
func NewServer(manager *Manager, broker *sse.Broker) *Server {
	srv := &Server{
		app: fiber.New(fiber.Config{
			AppName:           "taskstream-jobd",
			ServerHeader:      "Taskstream-Job-Server",
			StreamRequestBody: true,
		}),
		manager: manager,
		broker:  broker,
	}
	srv.routes()
	return srv
}

/*
NewDefaultServer returns a server with the built-in runners registered,
ready to serve demos and smoke tests.
*/
func NewDefaultServer() *Server {
	broker := sse.NewBroker()
	manager := NewManager(broker)
	manager.Register(&CommunityRebuildRunner{})
	manager.Register(&MemoryIngestRunner{})
	return NewServer(manager, broker)
}

func (srv *Server) routes() {
	srv.app.Use(logger.New(logger.Config{
		// Skip logging for the stream endpoint to reduce noise
		Next: func(c fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/events")
		},
	}), healthcheck.NewHealthChecker())

	srv.app.Post("/jobs/:kind", srv.handleSubmit)
	srv.app.Get("/tasks/:id", srv.handleGetTask)
	srv.app.Get("/tasks/:id/events", srv.handleEvents)
	srv.app.Post("/tasks/:id/cancel", srv.handleCancel)
	srv.app.Get("/metrics", srv.handleMetrics)
}

// Listen serves on the given address until the listener fails.
func (srv *Server) Listen(addr string) error {
	return srv.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Serve serves on an existing listener, which is what the tests use to
// bind an ephemeral port.
func (srv *Server) Serve(ln net.Listener) error {
	return srv.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown gracefully stops the server and disconnects all streams.
func (srv *Server) Shutdown() error {
	srv.broker.Close()
	return srv.app.Shutdown()
}

func (srv *Server) handleSubmit(ctx fiber.Ctx) error {
	kind := ctx.Params("kind")
	background := ctx.Query("background") == "true"

	payload := json.RawMessage(ctx.Body())
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	taskID, result, err := srv.manager.Submit(ctx.Context(), kind, payload, background)
	if err != nil {
		status := fiber.StatusBadRequest
		if errors.ErrUnknownKind.Is(err) {
			status = fiber.StatusNotFound
		}
		return ctx.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	if taskID != "" {
		return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": taskID})
	}
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"result": result})
}

func (srv *Server) handleGetTask(ctx fiber.Ctx) error {
	rec, ok := srv.manager.Get(ctx.Params("id"))
	if !ok {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "task not found"})
	}
	return ctx.Status(fiber.StatusOK).JSON(rec)
}

func (srv *Server) handleEvents(ctx fiber.Ctx) error {
	taskID := ctx.Params("id")
	handler := func(w http.ResponseWriter, r *http.Request) {
		srv.manager.ServeStream(taskID, w, r)
	}
	return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(ctx)
}

func (srv *Server) handleCancel(ctx fiber.Ctx) error {
	if err := srv.manager.Cancel(ctx.Params("id")); err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cancelling"})
}

func (srv *Server) handleMetrics(ctx fiber.Ctx) error {
	return fiberadaptor.HTTPHandler(promhttp.Handler())(ctx)
}
