package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/usecase"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20
)

type Handler struct {
	admission  *usecase.AdmissionService
	controller *usecase.AccessController
	settings   *usecase.SettingsService
	audit      *usecase.AuditService

	metricsHandler http.Handler
	adminTokenHash string
}

// NewHandler builds the HTTP surface. adminToken guards the admin group;
// when empty, admin endpoints are disabled rather than left open.
func NewHandler(admission *usecase.AdmissionService, controller *usecase.AccessController, settings *usecase.SettingsService, audit *usecase.AuditService, metricsHandler http.Handler, adminToken string) *Handler {
	h := &Handler{
		admission:      admission,
		controller:     controller,
		settings:       settings,
		audit:          audit,
		metricsHandler: metricsHandler,
	}
	if adminToken != "" {
		h.adminTokenHash = hashToken(adminToken)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", h.metricsHandler)

	// The decision endpoint is the transport layer's hook; it is called on
	// every inbound event and stays outside the admin group.
	r.Post("/v1/decisions", h.decide)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAdminToken)
		pr.Get("/v1/workspaces/{workspaceID}/settings", h.getSettings)
		pr.Put("/v1/workspaces/{workspaceID}/settings", h.updateSettings)
		pr.Get("/v1/grants", h.listGrants)
		pr.Put("/v1/grants/{subjectID}", h.grant)
		pr.Delete("/v1/grants/{subjectID}", h.revoke)
		pr.Get("/v1/audit", h.listAudit)
	})

	return r
}

type decideRequest struct {
	WorkspaceID string `json:"workspace_id"`
	SubjectID   string `json:"subject_id"`
	RawText     string `json:"raw_text"`
	Timestamp   string `json:"timestamp"`
}

type decisionResponse struct {
	Prefix         string `json:"prefix"`
	BypassesPrefix bool   `json:"bypasses_prefix"`
	RateLimited    bool   `json:"rate_limited"`
	RetryAfterMS   int64  `json:"retry_after_ms,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
}

type grantRequest struct {
	GrantedBy string `json:"granted_by"`
	Duration  string `json:"duration"`
}

type grantResponse struct {
	SubjectID string `json:"subject_id"`
	GrantedBy string `json:"granted_by"`
	GrantedAt string `json:"granted_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Duration  string `json:"duration"`
}

type settingsResponse struct {
	WorkspaceID   string                     `json:"workspace_id"`
	Prefix        string                     `json:"prefix"`
	Features      map[string]json.RawMessage `json:"features"`
	SchemaVersion int                        `json:"schema_version"`
	UpdatedAt     string                     `json:"updated_at,omitempty"`
}

type auditResponse struct {
	ID       int64  `json:"id"`
	EventID  string `json:"event_id"`
	Action   string `json:"action"`
	ActorID  string `json:"actor_id"`
	TargetID string `json:"target_id"`
	Details  string `json:"details,omitempty"`
	At       string `json:"at"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

	var req decideRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	event := domain.InboundEvent{
		WorkspaceID: req.WorkspaceID,
		SubjectID:   req.SubjectID,
		RawText:     req.RawText,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "timestamp must be RFC 3339")
			return
		}
		event.Timestamp = ts
	}

	decision, err := h.admission.Decide(r.Context(), event)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decisionResponse{
		Prefix:         decision.Prefix,
		BypassesPrefix: decision.BypassesPrefix,
		RateLimited:    decision.RateLimited,
		RetryAfterMS:   decision.RetryAfter.Milliseconds(),
		Degraded:       decision.Degraded,
	})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	settings, err := h.settings.Get(r.Context(), workspaceID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

	patch, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	settings, err := h.settings.Update(r.Context(), workspaceID, patch)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

	var req grantRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	grant, err := h.controller.Grant(r.Context(), subjectID, req.GrantedBy, req.Duration)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantResponse(grant))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	// The audit trail must name a real actor, so an anonymous revoke is
	// rejected rather than attributed to a placeholder.
	actorID := r.URL.Query().Get("actor")
	if actorID == "" {
		writeError(w, http.StatusBadRequest, "actor query parameter is required")
		return
	}

	removed, err := h.controller.Revoke(r.Context(), subjectID, actorID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.controller.ListGrants(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	items := make([]grantResponse, 0, len(grants))
	for _, grant := range grants {
		items = append(items, toGrantResponse(grant))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	beforeID := int64(0)
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be integer")
			return
		}
		beforeID = parsed
	}

	records, err := h.audit.List(r.Context(), domain.AuditFilter{
		Action:   r.URL.Query().Get("action"),
		TargetID: r.URL.Query().Get("target"),
		BeforeID: beforeID,
		Limit:    limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	items := make([]auditResponse, 0, len(records))
	for _, record := range records {
		items = append(items, auditResponse{
			ID:       record.ID,
			EventID:  record.EventID,
			Action:   record.Action,
			ActorID:  record.ActorID,
			TargetID: record.TargetID,
			Details:  record.Details,
			At:       record.At.UTC().Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminTokenHash == "" {
			writeError(w, http.StatusForbidden, "admin surface disabled")
			return
		}

		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}
		if token == "" || !hmac.Equal([]byte(hashToken(token)), []byte(h.adminTokenHash)) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func hashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

func toGrantResponse(grant domain.AccessGrant) grantResponse {
	resp := grantResponse{
		SubjectID: grant.SubjectID,
		GrantedBy: grant.GrantedBy,
		GrantedAt: grant.GrantedAt.UTC().Format(timeFormat),
		Duration:  grant.DurationToken,
	}
	if grant.ExpiresAt != nil {
		resp.ExpiresAt = grant.ExpiresAt.UTC().Format(timeFormat)
	}
	return resp
}

func toSettingsResponse(settings domain.WorkspaceSettings) settingsResponse {
	resp := settingsResponse{
		WorkspaceID:   settings.WorkspaceID,
		Prefix:        settings.EffectivePrefix(),
		Features:      settings.Features,
		SchemaVersion: settings.SchemaVersion,
	}
	if !settings.UpdatedAt.IsZero() {
		resp.UpdatedAt = settings.UpdatedAt.UTC().Format(timeFormat)
	}
	return resp
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func ensureEOF(decoder *json.Decoder) error {
	if decoder.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("encode json response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	var violation *domain.ErrSettingsViolation
	switch {
	case errors.Is(err, domain.ErrInvalidWorkspaceID),
		errors.Is(err, domain.ErrInvalidSubjectID),
		errors.Is(err, domain.ErrInvalidDurationToken),
		errors.Is(err, domain.ErrInvalidAuditAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &violation):
		writeError(w, http.StatusBadRequest, violation.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "settings store unavailable")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
