// File: internal/server/handlers.go
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/examples"
	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

// Handlers serves the REST control surface of one session.
type Handlers struct {
	log            *zap.Logger
	controller     *Controller
	maxUploadBytes int64
}

func NewHandlers(logger *zap.Logger, controller *Controller, maxUploadBytes int64) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 1 << 20
	}
	return &Handlers{
		log:            logger.Named("handlers"),
		controller:     controller,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes mounts the health check, the control API and the bundled
// example files.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", h.control(CommandState))
		r.Post("/load", h.HandleLoad)
		r.Post("/example", h.control(CommandExample))
		r.Post("/start", h.control(CommandStart))
		r.Post("/next", h.control(CommandNext))
		r.Post("/prev", h.control(CommandPrev))
		r.Post("/reset", h.control(CommandReset))
	})

	r.Handle("/examples/*", http.StripPrefix("/examples/", http.FileServer(http.FS(examples.FS()))))
}

func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleLoad reads a raw step collection from the body. The format comes from
// the "format" query parameter or, failing that, the Content-Type.
func (h *Handlers) HandleLoad(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("collection exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = r.Header.Get("Content-Type")
	}
	h.run(w, r, CommandData{Command: CommandLoad, Contents: string(body), Format: format})
}

func (h *Handlers) control(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.run(w, r, CommandData{Command: command})
	}
}

func (h *Handlers) run(w http.ResponseWriter, r *http.Request, cmd CommandData) {
	result, err := h.controller.Do(r.Context(), cmd)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error("Control operation failed.", zap.String("command", cmd.Command), zap.Error(err))
		}
		h.respondWithError(w, status, err.Error())
		return
	}
	h.respondWithSuccess(w, http.StatusOK, result)
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, walkthrough.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, walkthrough.ErrMalformedCollection):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, Response{Status: "error", Error: message})
}

func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	h.respond(w, statusCode, Response{Status: "success", Data: data})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
