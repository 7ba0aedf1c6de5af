package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/langswap/internal/bridge"
	"github.com/MrWong99/langswap/internal/lesson"
	"github.com/MrWong99/langswap/internal/speech"
	"github.com/MrWong99/langswap/internal/translator"
	"github.com/MrWong99/langswap/pkg/provider/capture"
	"github.com/MrWong99/langswap/pkg/provider/synth"
)

// maxUIBody bounds a POST /api/ui request body.
const maxUIBody = 16 << 10

// uiResponse is the body of a POST /api/ui response.
type uiResponse struct {
	State bridge.State `json:"state"`
	Error string       `json:"error,omitempty"`
}

// handleUI applies one UI event to the device pipeline and answers with the
// resulting state. Failures that also raised a notice still carry the state.
func (a *App) handleUI(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUIBody)
	var ev bridge.UIEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ui event: " + err.Error()})
		return
	}

	t := a.device.Target()
	err := bridge.Dispatch(r.Context(), t, ev)
	resp := uiResponse{State: bridge.StateOf(t)}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

// handleState answers with the device pipeline state.
func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, bridge.StateOf(a.device.Target()))
}

// handleSessions lists the live pipelines.
func (a *App) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": a.sessions.List()})
}

// statusFor maps a Dispatch error to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, bridge.ErrUnknownAction), errors.Is(err, bridge.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, translator.ErrUnknownEntry):
		return http.StatusNotFound
	case errors.Is(err, translator.ErrBusy), errors.Is(err, capture.ErrAlreadyCapturing):
		return http.StatusConflict
	case errors.Is(err, translator.ErrClosed):
		return http.StatusGone
	case errors.Is(err, capture.ErrNotAvailable), errors.Is(err, synth.ErrNotSupported):
		return http.StatusServiceUnavailable
	case errors.Is(err, translator.ErrEmptyInput), errors.Is(err, speech.ErrEmptyText),
		errors.Is(err, lesson.ErrEmptyAnswer):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
