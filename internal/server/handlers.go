package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/reliefline/reliefline/internal/db/sqlite"
	"github.com/reliefline/reliefline/internal/notify"
	"github.com/reliefline/reliefline/internal/security"
	"github.com/reliefline/reliefline/internal/ussd"
	"github.com/reliefline/reliefline/pkg/models"
)

func (s *Service) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleUSSDCallback is the gateway contract: form-encoded sessionId,
// phoneNumber and cumulative text in; plain-text CON/END reply out.
func (s *Service) handleUSSDCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.ussdReply(w, http.StatusBadRequest, "END Service temporarily unavailable")
		return
	}

	sessionID := r.PostFormValue("sessionId")
	phone := r.PostFormValue("phoneNumber")
	text := r.PostFormValue("text")

	if !security.ValidSessionID(sessionID) {
		s.ussdReply(w, http.StatusBadRequest, "END Invalid session.")
		return
	}
	if !security.ValidPhoneNumber(phone) {
		s.ussdReply(w, http.StatusBadRequest, "END Invalid phone number.")
		return
	}

	reply := s.ussd.Handle(r.Context(), ussd.Input{
		SessionID:   sessionID,
		PhoneNumber: phone,
		Text:        text,
	})
	s.ussdReply(w, http.StatusOK, reply)
}

func (s *Service) ussdReply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// handleSessionCleanup drops expired sessions. Backends with native
// expiry report zero.
func (s *Service) handleSessionCleanup(w http.ResponseWriter, r *http.Request) {
	var removed int64
	if sw, ok := s.sessions.(sweeper); ok {
		n, err := sw.DeleteExpired(r.Context(), time.Now())
		if err != nil {
			s.logger.Error().Err(err).Msg("session cleanup")
			s.writeError(w, http.StatusInternalServerError, "cleanup failed")
			return
		}
		removed = n
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"version":        s.cfg.Version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Service) handleListResources(w http.ResponseWriter, r *http.Request) {
	f := sqlite.ListFilter{
		Location: r.URL.Query().Get("location"),
	}
	if t := r.URL.Query().Get("type"); t != "" {
		rt := models.ResourceType(t)
		if !rt.Valid() {
			s.writeError(w, http.StatusBadRequest, "invalid resource type")
			return
		}
		f.Type = rt
	}
	if v := r.URL.Query().Get("available"); v == "true" || v == "1" {
		f.AvailableOnly = true
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	resources, err := s.resources.ListActive(r.Context(), f)
	if err != nil {
		s.logger.Error().Err(err).Msg("list resources")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if resources == nil {
		resources = []*models.Resource{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resources": resources,
		"count":     len(resources),
	})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	utilization, err := s.resources.UtilizationStats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("utilization stats")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	statuses, err := s.requests.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("status counts")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource_utilization": utilization,
		"status_breakdown":     statuses,
	})
}

func (s *Service) handleAutoMatch(w http.ResponseWriter, r *http.Request) {
	sum, err := s.scheduler.RunOnce(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("auto-match trigger")
		s.writeError(w, http.StatusInternalServerError, "auto-match failed")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

// loadRequest resolves the path reference, writing the error response
// itself when the request cannot be used.
func (s *Service) loadRequest(w http.ResponseWriter, r *http.Request) *models.EmergencyRequest {
	ref := chi.URLParam(r, "reference")
	req, err := s.requests.GetByReference(r.Context(), ref)
	if err != nil {
		s.logger.Error().Err(err).Str("reference", ref).Msg("load request")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return nil
	}
	if req == nil {
		s.writeError(w, http.StatusNotFound, "request not found")
		return nil
	}
	return req
}

func (s *Service) handleConfirmRequest(w http.ResponseWriter, r *http.Request) {
	req := s.loadRequest(w, r)
	if req == nil {
		return
	}
	if req.Status != models.RequestStatusMatched {
		s.writeError(w, http.StatusConflict, "request must be in matched status to confirm")
		return
	}

	if err := s.requests.Confirm(r.Context(), req.ID, time.Now()); err != nil {
		s.logger.Error().Err(err).Int64("request_id", req.ID).Msg("confirm request")
		s.writeError(w, http.StatusConflict, "request changed state")
		return
	}
	s.recordAPICall(r, req.CallerID)

	if req.ResourceID.Valid {
		if resource, err := s.resources.GetByID(r.Context(), req.ResourceID.Int64); err == nil && resource != nil {
			notify.Dispatch(s.notifier, notify.Event{
				Type:      notify.EventCompletion,
				Reference: req.ReferenceNumber,
				Provider:  resource.Name,
			})
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"reference": req.ReferenceNumber,
		"status":    string(models.RequestStatusConfirmed),
	})
}

func (s *Service) handleCompleteRequest(w http.ResponseWriter, r *http.Request) {
	req := s.loadRequest(w, r)
	if req == nil {
		return
	}
	if req.Status != models.RequestStatusConfirmed {
		s.writeError(w, http.StatusConflict, "request must be in confirmed status to complete")
		return
	}

	if err := s.requests.Complete(r.Context(), req.ID, time.Now()); err != nil {
		s.logger.Error().Err(err).Int64("request_id", req.ID).Msg("complete request")
		s.writeError(w, http.StatusConflict, "request changed state")
		return
	}
	s.recordAPICall(r, req.CallerID)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"reference": req.ReferenceNumber,
		"status":    string(models.RequestStatusCompleted),
	})
}

// handleCancelRequest cancels any non-terminal request. Capacity held by
// a matched or confirmed request goes back to the resource.
func (s *Service) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	req := s.loadRequest(w, r)
	if req == nil {
		return
	}
	if req.Status.Terminal() {
		s.writeError(w, http.StatusConflict, "request already finalized")
		return
	}

	prior, err := s.requests.Cancel(r.Context(), req.ID, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Int64("request_id", req.ID).Msg("cancel request")
		s.writeError(w, http.StatusConflict, "request changed state")
		return
	}
	s.recordAPICall(r, req.CallerID)

	if prior.ResourceID.Valid && holdsCapacity(prior.Status) {
		if err := s.resources.Release(r.Context(), prior.ResourceID.Int64, prior.Quantity); err != nil {
			s.logger.Error().Err(err).
				Int64("resource_id", prior.ResourceID.Int64).
				Msg("release capacity on cancel")
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"reference": req.ReferenceNumber,
		"status":    string(models.RequestStatusCancelled),
	})
}

// holdsCapacity reports whether a request in the given status has a
// reserved unit that cancellation must hand back.
func holdsCapacity(status models.RequestStatus) bool {
	return status == models.RequestStatusMatched || status == models.RequestStatusConfirmed
}

func (s *Service) recordAPICall(r *http.Request, callerID int64) {
	if err := s.activity.Record(r.Context(), callerID, sqlite.ActionAPICall, ""); err != nil {
		s.logger.Error().Err(err).Msg("record api call")
	}
}
