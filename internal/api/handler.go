// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package api is the thin operator-surface HTTP mount: Discovery Queue
review (link/promote/dismiss/undo), audit history, manual Identity
Bridge creation, threshold get/set, an on-demand re-evaluation trigger,
CSV/M3U export, and a RecordingResolver preview endpoint. It only
exposes operations every other module already implements; there is no
product API surface here.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/airwave/radio-identity/internal/catalogerr"
	"github.com/airwave/radio-identity/internal/database"
	"github.com/airwave/radio-identity/internal/export"
	"github.com/airwave/radio-identity/internal/ingest"
	"github.com/airwave/radio-identity/internal/logging"
	"github.com/airwave/radio-identity/internal/models"
	"github.com/airwave/radio-identity/internal/reevaluator"
	"github.com/airwave/radio-identity/internal/recording"
	"github.com/airwave/radio-identity/internal/thresholdstore"
	"github.com/airwave/radio-identity/internal/validation"
	"github.com/airwave/radio-identity/internal/verification"
)

// auditStore is the subset of *database.DB the handler queries directly
// for operations verification.Service's store interface doesn't cover.
type auditStore interface {
	ListAudit(ctx context.Context, filter database.AuditFilter, limit int) ([]models.VerificationAudit, error)
	CreateBridge(ctx context.Context, signature, referenceArtist, referenceTitle string, workID uuid.UUID, confidence float64) (*models.IdentityBridge, error)
}

// reevalTrigger is the subset of *services.ReevaluatorService the
// handler needs to request an out-of-band pass after a threshold
// update, without importing internal/supervisor/services
// and its suture dependency into this package.
type reevalTrigger interface {
	Trigger()
}

// Handler wires every operator-surface operation to its implementing
// package.
type Handler struct {
	verify     *verification.Service
	db         auditStore
	thresholds *thresholdstore.Store
	reeval     *reevaluator.Reevaluator
	reevalSvc  reevalTrigger
	resolver   *recording.Resolver
	exporter   *export.Exporter
	ingester   *ingest.Ingester
}

// New constructs a Handler over the services the composition root
// (cmd/airwave-server) builds. reevalSvc is the supervised
// ReevaluatorService whose Trigger a threshold update notifies; it may
// be nil in tests that don't exercise SetThresholds.
func New(
	verify *verification.Service,
	db auditStore,
	thresholds *thresholdstore.Store,
	reeval *reevaluator.Reevaluator,
	reevalSvc reevalTrigger,
	resolver *recording.Resolver,
	exporter *export.Exporter,
	ingester *ingest.Ingester,
) *Handler {
	return &Handler{
		verify:     verify,
		db:         db,
		thresholds: thresholds,
		reeval:     reeval,
		reevalSvc:  reevalSvc,
		resolver:   resolver,
		exporter:   exporter,
		ingester:   ingester,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeServiceError maps the catalogerr sentinel taxonomy
// onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	log := logging.WithComponent("api")
	switch {
	case errors.Is(err, catalogerr.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, catalogerr.ErrSignatureMismatch):
		writeError(w, http.StatusConflict, "SIGNATURE_MISMATCH", err.Error())
	case errors.Is(err, catalogerr.ErrBridgeConflict), errors.Is(err, catalogerr.ErrBridgeExists):
		writeError(w, http.StatusConflict, "BRIDGE_CONFLICT", err.Error())
	default:
		log.Error().Str("op", op).Err(err).Msg("operator surface request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func decodeJSON(r *http.Request, dst interface{}) *validation.APIError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &validation.APIError{Code: "MALFORMED_BODY", Message: "request body is not valid JSON"}
	}
	return nil
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListQueue handles GET /queue.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.verify.ListQueue(r.Context(), queryLimit(r, 100))
	if err != nil {
		writeServiceError(w, "list_queue", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Link handles POST /queue/link.
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	workID, err := uuid.Parse(req.WorkID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UUID", "work_id is not a valid UUID")
		return
	}
	audit, err := h.verify.Link(r.Context(), req.Signature, workID, req.PerformedBy)
	if err != nil {
		writeServiceError(w, "link", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(audit))
}

// Promote handles POST /queue/promote.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	result, err := h.verify.Promote(r.Context(), req.Signature, req.PerformedBy)
	if err != nil {
		writeServiceError(w, "promote", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"audit":        toAuditResponse(result.Audit),
		"work_id":      result.WorkID,
		"recording_id": result.RecordingID,
	})
}

// Dismiss handles POST /queue/dismiss.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	audit, err := h.verify.Dismiss(r.Context(), req.Signature, req.PerformedBy)
	if err != nil {
		writeServiceError(w, "dismiss", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(audit))
}

// Undo handles POST /queue/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	var req undoRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	auditID, err := uuid.Parse(req.AuditID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UUID", "audit_id is not a valid UUID")
		return
	}
	audit, err := h.verify.Undo(r.Context(), auditID, req.PerformedBy)
	if err != nil {
		writeServiceError(w, "undo", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(audit))
}

// ListAudit handles GET /audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	start, err := queryTime(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", "start is not RFC3339")
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", "end is not RFC3339")
		return
	}
	filter := database.AuditFilter{
		StartDate: start,
		EndDate:   end,
		Signature: r.URL.Query().Get("signature"),
	}
	if action := r.URL.Query().Get("action_type"); action != "" {
		filter.ActionTypes = []string{action}
	}

	rows, err := h.db.ListAudit(r.Context(), filter, queryLimit(r, 100))
	if err != nil {
		writeServiceError(w, "list_audit", err)
		return
	}
	out := make([]auditResponse, len(rows))
	for i := range rows {
		out[i] = toAuditResponse(&rows[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateBridge handles POST /bridges.
func (h *Handler) CreateBridge(w http.ResponseWriter, r *http.Request) {
	var req createBridgeRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	workID, err := uuid.Parse(req.WorkID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UUID", "work_id is not a valid UUID")
		return
	}
	bridge, err := h.db.CreateBridge(r.Context(), req.Signature, req.ReferenceArtist, req.ReferenceTitle, workID, req.Confidence)
	if err != nil {
		writeServiceError(w, "create_bridge", err)
		return
	}
	writeJSON(w, http.StatusCreated, bridge)
}

// GetThresholds handles GET /thresholds.
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.thresholds.Current())
}

// SetThresholds handles PUT /thresholds. A successful threshold update
// immediately triggers a Re-evaluator pass rather than waiting for the
// periodic ticker.
func (h *Handler) SetThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdUpdateRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	next := req.toConfig()
	if err := h.thresholds.Update(r.Context(), next); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_THRESHOLDS", err.Error())
		return
	}

	if h.reevalSvc != nil {
		h.reevalSvc.Trigger()
	}

	writeJSON(w, http.StatusOK, h.thresholds.Current())
}

// Reevaluate handles POST /reevaluate.
func (h *Handler) Reevaluate(w http.ResponseWriter, r *http.Request) {
	result, err := h.reeval.Run(r.Context())
	if err != nil {
		writeServiceError(w, "reevaluate", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RebuildDiscovery handles POST /discovery/rebuild: reconstruct the
// Discovery Queue from every currently-unmatched BroadcastLog so the
// verification surface reflects the full unmatched backlog.
func (h *Handler) RebuildDiscovery(w http.ResponseWriter, r *http.Request) {
	result, err := h.reeval.RebuildDiscovery(r.Context())
	if err != nil {
		writeServiceError(w, "rebuild discovery", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResolveRecording handles POST /recordings/resolve, exposing the
// RecordingResolver ladder for operator tooling.
func (h *Handler) ResolveRecording(w http.ResponseWriter, r *http.Request) {
	var req resolveRecordingRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeJSON(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	workID, err := uuid.Parse(req.WorkID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UUID", "work_id is not a valid UUID")
		return
	}
	resolveReq := recording.Request{WorkID: workID, FormatCode: req.FormatCode}
	if req.StationID != nil {
		stationID, err := uuid.Parse(*req.StationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_UUID", "station_id is not a valid UUID")
			return
		}
		resolveReq.StationID = &stationID
	}
	rec, err := h.resolver.Resolve(r.Context(), resolveReq)
	if err != nil {
		writeServiceError(w, "resolve_recording", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ExportCSV handles GET /export/csv.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.exportFilter(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="broadcast_log.csv"`)
	if _, err := h.exporter.WriteCSV(r.Context(), w, filter); err != nil {
		logging.WithComponent("api").Error().Err(err).Msg("csv export failed")
	}
}

// ExportM3U handles GET /export/m3u.
func (h *Handler) ExportM3U(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.exportFilter(w, r)
	if !ok {
		return
	}
	result, err := h.exporter.WriteM3U(r.Context(), w, filter, time.Now())
	if err != nil {
		logging.WithComponent("api").Error().Err(err).Msg("m3u export failed")
		return
	}
	w.Header().Set("X-Export-Included", strconv.Itoa(result.Included))
	w.Header().Set("X-Export-Skipped", strconv.Itoa(result.Skipped))
}

func (h *Handler) exportFilter(w http.ResponseWriter, r *http.Request) (export.Filter, bool) {
	start, err := queryTime(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", "start is not RFC3339")
		return export.Filter{}, false
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DATE", "end is not RFC3339")
		return export.Filter{}, false
	}
	return export.Filter{StartDate: start, EndDate: end}, true
}

// Ingest handles POST /ingest: the request body is a CSV
// play log, passed as a reader straight to the Ingester, which parses
// every row into memory before classifying them.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	result, err := h.ingester.Run(r.Context(), r.Body)
	if err != nil {
		writeServiceError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
