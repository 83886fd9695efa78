package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"backupd/internal/archive"
	"backupd/internal/backup"
	"backupd/internal/config"
	"backupd/internal/scheduler"

	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}

// writeError maps the error taxonomy onto HTTP statuses: not-found → 404,
// validation and config-mode violations → 400, everything else → 500 with
// the message redacted in production.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backup.ErrBackupNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, config.ErrConfigurationMissing),
		errors.Is(err, config.ErrInvalidModeOperation),
		errors.Is(err, scheduler.ErrInvalidCronExpression),
		errors.Is(err, archive.ErrRemoteNotConfigured):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Msg("request failed")
		msg := err.Error()
		if s.production {
			msg = "internal server error"
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format string `json:"format"`
	}
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}
	if req.Format == "" {
		req.Format = r.URL.Query().Get("format")
	}
	if req.Format != "" {
		if _, err := archive.ParseFormat(req.Format); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	art, err := s.engine.CreateBackup(r.Context(), req.Format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, art)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ListAll(r.Context()))
}

func (s *Server) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.DeleteBackup(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RestoreBackup(r.Context(), chi.URLParam(r, "filename")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (s *Server) handleApplyRetention(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.engine.ApplyRetention(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"deletedCount": deleted})
}

func (s *Server) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"mode": string(s.store.Mode())})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.SetMode(config.Mode(req.Mode)); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"mode": string(s.store.Mode())})
}

func (s *Server) handleResetRuntime(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.ResetRuntime(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleGetDatabase(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.store.DatabaseConfig()
	if err != nil {
		s.writeError(w, err)
		return
	}
	cfg.Password = redacted
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetDatabase(w http.ResponseWriter, r *http.Request) {
	var cfg config.DatabaseConfig
	if !s.decode(w, r, &cfg) {
		return
	}
	if err := s.store.SetDatabaseConfig(cfg); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleTestDatabase(w http.ResponseWriter, r *http.Request) {
	if err := s.store.TestConnection(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.BackupPolicy())
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var policy config.BackupPolicy
	if !s.decode(w, r, &policy) {
		return
	}
	if policy.Schedule != "" {
		if err := scheduler.ValidateSpec(policy.Schedule); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if err := s.store.SetBackupPolicy(policy); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.BackupPolicy())
}

func (s *Server) handleGetStorage(w http.ResponseWriter, _ *http.Request) {
	cfg := s.store.RemoteStorage()
	if cfg.SecretAccessKey != "" {
		cfg.SecretAccessKey = redacted
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetStorage(w http.ResponseWriter, r *http.Request) {
	var settings config.RemoteStorageSettings
	if !s.decode(w, r, &settings) {
		return
	}
	if err := s.store.SetRemoteStorage(settings); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleStartScheduler(w http.ResponseWriter, _ *http.Request) {
	policy := s.store.BackupPolicy()
	if err := s.sched.Start(policy.Schedule); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleStopScheduler(w http.ResponseWriter, _ *http.Request) {
	s.sched.Stop()
	s.writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sched.Status())
}

const redacted = "********"
