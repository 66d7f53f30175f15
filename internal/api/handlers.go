package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mproulx/herald/internal/campaign"
	"github.com/mproulx/herald/internal/catalog"
	"github.com/mproulx/herald/internal/request"
	"github.com/mproulx/herald/internal/session"
	"github.com/mproulx/herald/internal/target"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.requests.CountByStatus(r.Context(), request.StatusQueued)
	if err != nil {
		s.logger.Error("failed to compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}

	functions, err := s.catalog.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list catalog", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list catalog")
		return
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:      depth,
		FunctionsLoaded: len(functions),
	})
}

// handleEnqueueRequest handles POST /v1/requests.
func (s *Server) handleEnqueueRequest(w http.ResponseWriter, r *http.Request) {
	var body EnqueueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.FunctionCode == "" || body.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "function_code and user_id are required")
		return
	}

	id, err := s.requests.Enqueue(r.Context(), request.EnqueueRequest{
		FunctionCode: body.FunctionCode,
		UserID:       body.UserID,
		Payload:      body.Payload,
	})
	if err != nil {
		s.logger.Error("failed to enqueue request", "function_code", body.FunctionCode, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue request")
		return
	}

	s.events.Publish("request.enqueued", map[string]any{
		"request_id":    id,
		"function_code": body.FunctionCode,
		"submitted_by":  "api",
	})
	s.logger.Info("request enqueued via API", "request_id", id, "function_code", body.FunctionCode)

	respondJSON(w, http.StatusAccepted, EnqueueResponse{
		RequestID: id,
		Status:    string(request.StatusQueued),
	})
}

// handleInvokeRequest handles POST /v1/requests/{requestID}/invoke.
// Runs the request synchronously and returns its terminal state.
func (s *Server) handleInvokeRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	if err := s.invoker.Invoke(r.Context(), requestID); err != nil {
		s.logger.Error("failed to invoke request", "request_id", requestID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to invoke request")
		return
	}

	// Invoke treats a vanished id as a no-op; the reload is what tells the
	// caller the id never existed.
	req, err := s.requests.Get(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "request not found")
			return
		}
		s.logger.Error("failed to retrieve request", "request_id", requestID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve request")
		return
	}
	respondJSON(w, http.StatusOK, requestResponse(req))
}

// handleGetRequest handles GET /v1/requests/{requestID}.
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	req, err := s.requests.Get(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "request not found")
			return
		}
		s.logger.Error("failed to retrieve request", "request_id", requestID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve request")
		return
	}
	respondJSON(w, http.StatusOK, requestResponse(req))
}

// handleGetAudit handles GET /v1/requests/{requestID}/audit.
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	if _, err := s.requests.Get(r.Context(), requestID); err != nil {
		if errors.Is(err, request.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "request not found")
			return
		}
		s.logger.Error("failed to retrieve request", "request_id", requestID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve request")
		return
	}

	entries, err := s.audit.ListByRequest(r.Context(), requestID)
	if err != nil {
		s.logger.Error("failed to list audit entries", "request_id", requestID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	resp := AuditTrailResponse{RequestID: requestID, Entries: make([]AuditEntryData, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, AuditEntryData{
			LogID:     e.LogID,
			ActorID:   e.ActorID,
			Action:    e.Action,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCreateCampaign handles POST /v1/campaigns.
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body CampaignBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.campaigns.Create(r.Context(), campaign.CreateRequest{
		UserID:          body.UserID,
		Name:            body.Name,
		TargetListID:    body.TargetListID,
		Message:         body.Message,
		DelayMinSeconds: body.DelayMinSeconds,
		DelayMaxSeconds: body.DelayMaxSeconds,
		SessionTag:      body.SessionTag,
		ScheduledAt:     body.ScheduledAt,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load created campaign", "campaign_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}

	s.events.Publish("campaign.created", map[string]any{"campaign_id": id})
	respondJSON(w, http.StatusCreated, campaignResponse(c))
}

// handleGetCampaign handles GET /v1/campaigns/{campaignID}.
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	c, err := s.campaigns.Get(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		s.logger.Error("failed to retrieve campaign", "campaign_id", campaignID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve campaign")
		return
	}
	respondJSON(w, http.StatusOK, campaignResponse(c))
}

// handleScheduleCampaign handles POST /v1/campaigns/{campaignID}/schedule.
func (s *Server) handleScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	var body ScheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ScheduledAt.IsZero() {
		s.writeError(w, http.StatusBadRequest, "scheduled_at is required")
		return
	}

	if err := s.campaigns.Schedule(r.Context(), campaignID, body.ScheduledAt); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	c, err := s.campaigns.Get(r.Context(), campaignID)
	if err != nil {
		s.logger.Error("failed to load scheduled campaign", "campaign_id", campaignID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	respondJSON(w, http.StatusOK, campaignResponse(c))
}

// handleImportTargets handles POST /v1/targets. The body is the raw target
// list, one target per line; user_id and name come from query parameters.
func (s *Server) handleImportTargets(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	name := r.URL.Query().Get("name")
	if userID == "" || name == "" {
		s.writeError(w, http.StatusBadRequest, "user_id and name query parameters are required")
		return
	}

	list, err := s.targets.Import(r.Context(), userID, name, r.Body)
	if err != nil {
		s.logger.Error("failed to import target list", "name", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to import target list")
		return
	}

	s.logger.Info("target list imported via API", "list_id", list.ID, "total", list.TotalCount)
	respondJSON(w, http.StatusCreated, TargetImportResponse{
		ListID:      list.ID,
		TotalCount:  list.TotalCount,
		Fingerprint: list.Fingerprint,
	})
}

// handleGetTargetList handles GET /v1/targets/{targetListID}.
func (s *Server) handleGetTargetList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "targetListID")

	list, err := s.targets.Get(r.Context(), listID)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "target list not found")
			return
		}
		s.logger.Error("failed to retrieve target list", "list_id", listID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve target list")
		return
	}

	respondJSON(w, http.StatusOK, TargetListResponse{
		ListID:      list.ID,
		UserID:      list.UserID,
		Name:        list.Name,
		TotalCount:  list.TotalCount,
		Fingerprint: list.Fingerprint,
		CreatedAt:   list.CreatedAt,
	})
}

// handleRegisterSession handles POST /v1/sessions.
func (s *Server) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	var body SessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.sessions.Register(r.Context(), body.UserID, body.Phone, body.Locator, body.Tag)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load registered session", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse(sess))
}

// handleSetSessionStatus handles POST /v1/sessions/{sessionID}/status.
func (s *Server) handleSetSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body SessionStatusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.sessions.SetStatus(r.Context(), sessionID, session.Status(body.Status)); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(sess))
}

// handleListFunctions handles GET /v1/functions.
func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	functions, err := s.catalog.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list catalog", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list catalog")
		return
	}

	out := make([]FunctionSummary, 0, len(functions))
	for _, d := range functions {
		out = append(out, FunctionSummary{
			FunctionCode:   d.FunctionCode,
			FunctionName:   d.FunctionName,
			TimeoutSeconds: d.TimeoutSeconds,
			Category:       d.Category,
			Active:         d.Active,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleUpsertFunction handles POST /v1/functions. Registering a catalog
// row does not bind a handler; locators resolve against the in-process
// registry at invoke time.
func (s *Server) handleUpsertFunction(w http.ResponseWriter, r *http.Request) {
	var body FunctionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	active := true
	if body.Active != nil {
		active = *body.Active
	}
	if body.TimeoutSeconds <= 0 {
		body.TimeoutSeconds = 60
	}
	desc := catalog.Descriptor{
		FunctionCode:   body.FunctionCode,
		FunctionName:   body.FunctionName,
		HandlerLocator: body.HandlerLocator,
		TimeoutSeconds: body.TimeoutSeconds,
		Category:       body.Category,
		Active:         active,
	}
	if err := s.catalog.Upsert(r.Context(), desc); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("function descriptor upserted via API", "function_code", body.FunctionCode)
	respondJSON(w, http.StatusCreated, FunctionSummary{
		FunctionCode:   desc.FunctionCode,
		FunctionName:   desc.FunctionName,
		TimeoutSeconds: desc.TimeoutSeconds,
		Category:       desc.Category,
		Active:         desc.Active,
	})
}

// handleForceTick handles POST /v1/scheduler/tick.
func (s *Server) handleForceTick(w http.ResponseWriter, r *http.Request) {
	s.ticker.ForceTick(r.Context())
	s.logger.Info("scheduler tick forced via API")
	respondJSON(w, http.StatusOK, TickResponse{Status: "ok"})
}

func requestResponse(req *request.Request) RequestStatusResponse {
	return RequestStatusResponse{
		RequestID:       req.ID,
		FunctionCode:    req.FunctionCode,
		UserID:          req.UserID,
		Status:          string(req.Status),
		Result:          req.Result,
		ExecutionTimeMS: req.ExecutionTimeMS,
		CampaignID:      req.CampaignID,
		CreatedAt:       req.CreatedAt,
		StartedAt:       req.StartedAt,
		CompletedAt:     req.CompletedAt,
	}
}

func campaignResponse(c *campaign.Campaign) CampaignResponse {
	return CampaignResponse{
		CampaignID:   c.ID,
		UserID:       c.UserID,
		Name:         c.Name,
		Status:       string(c.Status),
		TargetListID: c.TargetListID,
		ScheduledAt:  c.ScheduledAt,
		StartedAt:    c.StartedAt,
		EndedAt:      c.EndedAt,
		TotalTargets: c.TotalTargets,
		SentCount:    c.SentCount,
		FailCount:    c.FailCount,
	}
}

func sessionResponse(sess *session.Session) SessionResponse {
	return SessionResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Phone:     sess.Phone,
		Tag:       sess.Tag,
		Status:    string(sess.Status),
	}
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
