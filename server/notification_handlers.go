package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-integrations/destinations"
	"github.com/jrsteele09/go-integrations/integrations"
	"github.com/jrsteele09/go-integrations/providers"
)

const maxNotificationBody = 64 << 10

type notificationRequest struct {
	Category destinations.Category     `json:"category"`
	Payload  providers.Payload         `json:"payload"`
	Explicit *destinations.Destination `json:"explicit,omitempty"`
	ScopeKey string                    `json:"scope_key,omitempty"`
}

type notificationResponse struct {
	integrations.DeliveryResult
	Error string `json:"error,omitempty"`
}

var deliveryStatusCodes = map[integrations.Status]int{
	integrations.StatusDelivered:      http.StatusOK,
	integrations.StatusUnresolved:     http.StatusUnprocessableEntity,
	integrations.StatusNotConnected:   http.StatusConflict,
	integrations.StatusNeedsReconnect: http.StatusConflict,
	integrations.StatusTransient:      http.StatusServiceUnavailable,
	integrations.StatusFailed:         http.StatusBadGateway,
}

// Deliver sends a notification for the calling user. The body status always
// carries the delivery outcome; the HTTP code mirrors it.
func (s *Server) Deliver() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notificationRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "malformed notification: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Category == "" && req.Explicit == nil {
			writeJSONError(w, "invalid_request", "category or explicit destination is required", http.StatusBadRequest)
			return
		}

		result := s.integrations.Deliver(r.Context(), integrations.DeliveryRequest{
			UserID:   UserID(r.Context()),
			Category: req.Category,
			Payload:  req.Payload,
			Explicit: req.Explicit,
			ScopeKey: req.ScopeKey,
		})

		code, ok := deliveryStatusCodes[result.Status]
		if !ok {
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, notificationResponse{DeliveryResult: result, Error: result.ErrorMessage()})
	}
}
