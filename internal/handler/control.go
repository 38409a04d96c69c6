package handler

import (
	"net/http"

	"wastesort/internal/control"
	"wastesort/internal/dto"
	"wastesort/internal/logger"
)

// ControlStateHandler handles GET /api/control and returns the control state.
func ControlStateHandler(cell *control.Cell, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, logger, http.StatusOK, cell.Read())
	}
}

// ControlModeHandler handles POST /api/control/mode with {"mode":"paused"}.
func ControlModeHandler(cell *control.Cell, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req dto.ModeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request body")
			return
		}
		mode, err := control.ParseMode(req.Mode)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}

		state := cell.SetMode(mode)
		logger.Info("Mode set to %s over HTTP", mode)
		writeJSON(w, logger, http.StatusOK, state)
	}
}

// ControlRecordHandler handles POST /api/control/record with {"enabled":true}
// or {"toggle":true}.
func ControlRecordHandler(cell *control.Cell, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req dto.RecordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request body")
			return
		}

		var state control.State
		switch {
		case req.Toggle:
			state = cell.ToggleRecording()
		case req.Enabled != nil:
			state = cell.SetRecording(*req.Enabled)
		default:
			writeError(w, logger, http.StatusBadRequest, "either enabled or toggle is required")
			return
		}

		logger.Info("Recording %s over HTTP", onOff(state.RecordingEnabled))
		writeJSON(w, logger, http.StatusOK, state)
	}
}

// ControlDestinationHandler handles POST /api/control/destination with
// {"path":"/data/out"}. An empty path clears the destination.
func ControlDestinationHandler(cell *control.Cell, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req dto.DestinationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid request body")
			return
		}

		state := cell.SetDestination(req.Path)
		logger.Info("Recording destination set to %q over HTTP", state.Destination)
		writeJSON(w, logger, http.StatusOK, state)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
