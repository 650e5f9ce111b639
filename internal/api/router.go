package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dlizzz/catspaw/internal/power"
)

// healthCheckTimeout bounds each dependency check of GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Open endpoints for monitoring
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Host power; GET /poweroff is kept for existing clients.
			r.Get("/poweroff", s.handlePowerOff)
			r.Post("/system/power", s.handleSystemPower)

			r.Route("/avr", func(r chi.Router) {
				r.Use(sourceMiddleware)

				r.Get("/state", s.handleAVRState)
				r.Get("/power", s.handleAVRPowerStatus)
				r.Post("/power/{state}", s.handleAVRPower)
				r.Get("/volume", s.handleAVRVolumeGet)
				r.Post("/volume/{direction}", s.handleAVRVolume)
				r.Get("/mute", s.handleAVRMuteStatus)
				r.Post("/mute", s.handleAVRMute)
				r.Post("/refresh", s.handleAVRRefresh)
				r.Get("/history", s.handleAVRHistory)
			})
		})
	})

	return r
}

// handleHealth reports the server and its dependencies.
// Any failing dependency turns the status to "degraded" with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"checks":     checks,
		"ws_clients": s.hub.ClientCount(),
	})
}

// handleVersion returns build and API versions.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.version,
		"api":     s.cfg.Version,
		"go":      runtime.Version(),
	})
}

// handlePowerOff schedules a host suspend and answers before it happens.
func (s *Server) handlePowerOff(w http.ResponseWriter, _ *http.Request) {
	if s.power == nil {
		writeUnavailable(w, "power management is disabled")
		return
	}

	// The request context ends with this reply; the suspend must outlive it.
	err := s.power.Suspend(s.srvCtx)
	switch {
	case errors.Is(err, power.ErrSuspendPending):
		writeError(w, http.StatusConflict, ErrCodeConflict, "suspend already pending")
		return
	case errors.Is(err, power.ErrNoSuspendCommand):
		writeUnavailable(w, "no suspend command configured")
		return
	case err != nil:
		s.logger.Error("scheduling suspend failed", "error", err)
		writeInternalError(w, "failed to schedule suspend")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":      true,
		"message": "System is going to sleep",
	})
}

type systemPowerRequest struct {
	Event string `json:"event"`
}

// handleSystemPower applies a suspend or resume event to the TV and
// receiver.
func (s *Server) handleSystemPower(w http.ResponseWriter, r *http.Request) {
	if s.power == nil {
		writeUnavailable(w, "power management is disabled")
		return
	}

	var req systemPowerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	ev, err := power.ParseEvent(req.Event)
	if err != nil {
		writeBadRequest(w, `event must be "suspend" or "resume"`)
		return
	}

	res, err := s.power.Handle(r.Context(), ev)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
