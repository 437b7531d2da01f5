package server

import (
	"errors"
	"net/http"

	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/health"
	interrors "github.com/jrsteele09/go-integrations/internal/errors"
	"github.com/rs/zerolog/log"
)

func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// credentialKey builds the key from the caller, the {provider} path segment
// and the optional scope query parameter.
func credentialKey(r *http.Request) credentials.Key {
	return credentials.Key{
		UserID:   UserID(r.Context()),
		Provider: credentials.Provider(r.PathValue("provider")),
		ScopeKey: r.URL.Query().Get(queryScope),
	}
}

// DescribeStatus reports connected / needs_attention / not_connected.
func (s *Server) DescribeStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := credentialKey(r)
		status, err := s.integrations.DescribeStatus(r.Context(), key)
		if err != nil {
			writeServiceError(w, key, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) ListConnections() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := credentialKey(r)
		statuses, err := s.integrations.ListConnections(r.Context(), key.UserID, key.Provider)
		if err != nil {
			writeServiceError(w, key, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]health.Status{"connections": statuses})
	}
}

// CheckHealth refreshes and probes the connection now. A transient failure is
// a 503 so the dashboard can offer a retry without suggesting a reconnect.
func (s *Server) CheckHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := credentialKey(r)
		status, err := s.integrations.CheckHealth(r.Context(), key)
		if err != nil {
			if errors.Is(err, interrors.ErrInvalidKey) {
				writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
				return
			}
			log.Warn().Err(err).Str("credential", key.String()).Msg("health check deferred")
			writeJSONError(w, "transient", "the provider could not be reached, try again later", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// Disconnect deletes the credential immediately.
func (s *Server) Disconnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := credentialKey(r)
		if err := s.integrations.Disconnect(r.Context(), key); err != nil {
			writeServiceError(w, key, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeServiceError(w http.ResponseWriter, key credentials.Key, err error) {
	if errors.Is(err, interrors.ErrInvalidKey) {
		writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	log.Error().Err(err).Str("credential", key.String()).Msg("integration request failed")
	writeJSONError(w, "internal_error", "integration store unavailable", http.StatusInternalServerError)
}
