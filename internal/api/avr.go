package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/history"
)

// AVRResponse is the body of every /avr command route.
type AVRResponse struct {
	OK      bool      `json:"ok"`
	Message string    `json:"message"`
	Kind    string    `json:"error_kind,omitempty"`
	Power   string    `json:"power,omitempty"`
	State   avr.State `json:"state"`
}

// writeOutcome answers with the outcome. Receiver faults are a normal
// response with ok=false, never a 5xx.
func writeOutcome(w http.ResponseWriter, out avr.Outcome) {
	resp := AVRResponse{
		OK:      out.OK,
		Message: out.Message,
		State:   out.State,
	}
	if !out.OK {
		resp.Kind = out.Kind.String()
	}
	if out.Command == avr.PowerStatus || out.Command == avr.Refresh {
		resp.Power = out.Power.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAVRState returns the current snapshot without touching the device.
func (s *Server) handleAVRState(w http.ResponseWriter, _ *http.Request) {
	st := s.controller.State()
	writeJSON(w, http.StatusOK, AVRResponse{
		OK:      true,
		Message: "Volume: " + st.Volume,
		Power:   st.Power.String(),
		State:   st,
	})
}

func (s *Server) handleAVRPowerStatus(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.controller.QueryPower(r.Context()))
}

func (s *Server) handleAVRPower(w http.ResponseWriter, r *http.Request) {
	switch strings.ToLower(chi.URLParam(r, "state")) {
	case "on":
		writeOutcome(w, s.controller.PowerOn(r.Context()))
	case "off":
		writeOutcome(w, s.controller.PowerOff(r.Context()))
	default:
		writeBadRequest(w, `power state must be "on" or "off"`)
	}
}

func (s *Server) handleAVRVolumeGet(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.controller.VolumeGet(r.Context()))
}

// handleAVRVolume applies a relative change.
//
// Query parameters:
//   - amount: dB, or percent with ratio; absent or 0 is one native step
//   - ratio: true to read amount as a percentage of the current level
func (s *Server) handleAVRVolume(w http.ResponseWriter, r *http.Request) {
	dir, err := avr.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		writeBadRequest(w, `direction must be "up" or "down"`)
		return
	}

	adj, msg := parseAdjustment(r, dir)
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}
	writeOutcome(w, s.controller.VolumeSet(r.Context(), adj))
}

func parseAdjustment(r *http.Request, dir avr.Direction) (avr.Adjustment, string) {
	adj := avr.Adjustment{Direction: dir}
	q := r.URL.Query()

	if v := q.Get("amount"); v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil || amount < 0 {
			return adj, "amount must be a non-negative number"
		}
		adj.Amount = amount
	}
	if v := q.Get("ratio"); v != "" {
		ratio, err := strconv.ParseBool(v)
		if err != nil {
			return adj, "ratio must be true or false"
		}
		adj.Ratio = ratio
	}
	return adj, ""
}

func (s *Server) handleAVRMuteStatus(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.controller.MuteStatus(r.Context()))
}

func (s *Server) handleAVRMute(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.controller.MuteToggle(r.Context()))
}

func (s *Server) handleAVRRefresh(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.controller.Refresh(r.Context()))
}

// handleAVRHistory lists recorded commands, newest first.
//
// Query parameters: command, source, ok (bool), since (RFC3339),
// limit, offset.
func (s *Server) handleAVRHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "command history is disabled")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		Command: q.Get("command"),
		Source:  q.Get("source"),
	}
	if filter.Command != "" {
		if _, ok := avr.ParseCommandID(filter.Command); !ok {
			writeBadRequest(w, "unknown command "+strconv.Quote(filter.Command))
			return
		}
	}
	if v := q.Get("ok"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "ok must be true or false")
			return
		}
		filter.OK = &ok
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = since
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	res, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command history failed", "error", err)
		writeInternalError(w, "failed to list command history")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
