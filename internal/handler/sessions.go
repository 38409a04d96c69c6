package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wastesort/internal/config"
	"wastesort/internal/dto"
	"wastesort/internal/logger"
	"wastesort/internal/repository"
	"wastesort/internal/service/pipeline"
)

const stopTimeout = 10 * time.Second

// SessionController starts and stops detection sessions.
type SessionController interface {
	Start(spec string) (string, error)
	Stop(ctx context.Context) error
	Status() pipeline.SessionStatus
}

// SessionsHandler handles GET /api/sessions (recent sessions) and
// POST /api/sessions (start a session on {"source": ...}).
func SessionsHandler(sessions SessionController, repo repository.SessionRepository, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			limit := atoiDefault(r.URL.Query().Get("limit"), 20)
			list, err := repo.GetRecent(limit)
			if err != nil {
				logger.Error("Error querying sessions: %v", err)
				writeError(w, logger, http.StatusInternalServerError, "failed to list sessions")
				return
			}
			writeJSON(w, logger, http.StatusOK, list)

		case http.MethodPost:
			var req dto.StartSessionRequest
			if r.ContentLength != 0 {
				if err := decodeJSON(w, r, &req); err != nil {
					writeError(w, logger, http.StatusBadRequest, "invalid request body")
					return
				}
			}
			if req.Source == "" {
				req.Source = cfg.Source
			}

			id, err := sessions.Start(req.Source)
			if errors.Is(err, pipeline.ErrSessionRunning) {
				writeError(w, logger, http.StatusConflict, err.Error())
				return
			}
			if err != nil {
				logger.Error("Failed to start session on %s: %v", req.Source, err)
				writeError(w, logger, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, logger, http.StatusCreated, dto.StartSessionResponse{ID: id})

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// StopSessionHandler handles POST /api/sessions/stop. It sets Exiting and
// waits for the running session to end.
func StopSessionHandler(sessions SessionController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
		defer cancel()

		if err := sessions.Stop(ctx); err != nil {
			logger.Warning("Session did not stop in time: %v", err)
			writeError(w, logger, http.StatusGatewayTimeout, "session is still stopping")
			return
		}
		writeJSON(w, logger, http.StatusOK, sessions.Status())
	}
}

// StatusHandler handles GET /api/status with the session status, live
// counters and control state.
func StatusHandler(sessions SessionController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, logger, http.StatusOK, sessions.Status())
	}
}
