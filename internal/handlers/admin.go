package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reportsink/internal/admin"
	"reportsink/internal/auth"
	"reportsink/internal/export"
	"reportsink/internal/logger"
	"reportsink/internal/metrics"
	"reportsink/internal/store"
)

// AdminHandler serves the administrative query/export surface and the
// envelope lifecycle operations. Lifecycle mutations go through the store's
// serialized write path, the same discipline the worker's inserts follow.
type AdminHandler struct {
	gate           *auth.Gate
	store          *store.Store
	bounds         admin.Bounds
	maxExportItems int
}

// AdminConfig holds configuration for the admin handler
type AdminConfig struct {
	Gate           *auth.Gate
	Store          *store.Store
	Bounds         admin.Bounds
	MaxExportItems int
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	return &AdminHandler{
		gate:           cfg.Gate,
		store:          cfg.Store,
		bounds:         cfg.Bounds,
		maxExportItems: cfg.MaxExportItems,
	}
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if err := h.gate.Authorize(r.Header.Get("Authorization"), auth.RealmAdmin); err != nil {
		log := logger.WithComponent("admin")
		log.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("path", r.URL.Path).
			Msg("admin request rejected")
		writeUnauthorized(w)
		return false
	}
	return true
}

// List handles GET /api/admin/envelopes.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	req, errs := parseListRequest(r)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}

	q, errs := admin.NewQuery(req, h.bounds)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}

	total, envs, err := h.store.List(q)
	if err != nil {
		log := logger.WithComponent("admin")
		log.Error().Err(err).Msg("list query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	summaries := make([]admin.Summary, len(envs))
	for i := range envs {
		summaries[i] = admin.NewSummary(&envs[i], q.Archived)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalCount": total,
		"page":       q.Page,
		"pageSize":   q.PageSize,
		"envelopes":  summaries,
	})
}

// Detail handles GET /api/admin/envelopes/{id}.
func (h *AdminHandler) Detail(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	env, archived, err := h.store.Get(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "envelope not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, admin.NewDetail(env, archived))
}

// Acknowledge handles POST /api/admin/envelopes/{id}/acknowledge.
func (h *AdminHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "acknowledge", func(id string) error {
		return h.store.Acknowledge(id, time.Now().UTC())
	})
}

// Archive handles POST /api/admin/envelopes/{id}/archive.
func (h *AdminHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "archive", func(id string) error {
		return h.store.Archive(id, time.Now().UTC())
	})
}

// Delete handles DELETE /api/admin/envelopes/{id} (soft delete).
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "delete", func(id string) error {
		return h.store.SoftDelete(id, time.Now().UTC())
	})
}

func (h *AdminHandler) lifecycle(w http.ResponseWriter, r *http.Request, op string, fn func(id string) error) {
	if !h.authorize(w, r) {
		return
	}

	id := r.PathValue("id")
	err := fn(id)
	switch {
	case err == nil:
		log := logger.WithComponent("admin")
		log.Info().
			Str("envelope_id", id).
			Str("operation", op).
			Msg("lifecycle operation applied")
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "envelope not found")
	case errors.Is(err, store.ErrArchived):
		writeError(w, http.StatusConflict, "envelope is archived")
	default:
		log := logger.WithComponent("admin")
		log.Error().Err(err).Str("operation", op).Msg("lifecycle operation failed")
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// Export handles GET /api/admin/export.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeFieldErrors(w, admin.FieldErrors{"format": "format must be json or csv"})
		return
	}

	req, errs := parseListRequest(r)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}

	q, errs := admin.NewQuery(req, h.bounds)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}

	envs, truncated, err := h.store.ListDetails(q, h.maxExportItems)
	if err != nil {
		log := logger.WithComponent("admin")
		log.Error().Err(err).Msg("export query failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	details := make([]admin.Detail, len(envs))
	for i := range envs {
		details[i] = admin.NewDetail(&envs[i], q.Archived)
	}

	payload, err := export.Render(details, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export rendering failed")
		return
	}
	metrics.ExportBytesTotal.WithLabelValues(format.String()).Add(float64(len(payload)))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=envelopes-%s.%s", time.Now().UTC().Format("20060102-150405"), format))
	if truncated {
		w.Header().Set("X-Export-Truncated", "true")
	}

	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		if compressed, gzErr := export.Gzip(payload); gzErr == nil {
			w.Header().Set("Content-Encoding", "gzip")
			payload = compressed
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// parseListRequest extracts the raw filter parameters, reporting field
// errors for values that cannot be parsed at all. Range and bound checks
// happen later in admin.NewQuery.
func parseListRequest(r *http.Request) (admin.Request, admin.FieldErrors) {
	vals := r.URL.Query()
	errs := admin.FieldErrors{}

	req := admin.Request{
		Host:              vals.Get("host"),
		Service:           vals.Get("service"),
		Environment:       vals.Get("environment"),
		SeverityThreshold: vals.Get("severityThreshold"),
		Search:            vals.Get("search"),
		// Default view: acknowledged rows stay visible, deleted rows do not.
		IncludeAcknowledged: true,
		IncludeDeleted:      false,
	}

	req.Page = parseIntParam(vals.Get("page"), "page", errs)
	req.PageSize = parseIntParam(vals.Get("pageSize"), "pageSize", errs)

	req.FromUTC = parseTimeParam(vals.Get("fromUtc"), "fromUtc", errs)
	req.ToUTC = parseTimeParam(vals.Get("toUtc"), "toUtc", errs)

	req.Acknowledged = parseBoolParam(vals.Get("acknowledged"), "acknowledged", errs)
	req.Deleted = parseBoolParam(vals.Get("deleted"), "deleted", errs)

	if v := parseBoolParam(vals.Get("includeAcknowledged"), "includeAcknowledged", errs); v != nil {
		req.IncludeAcknowledged = *v
	}
	if v := parseBoolParam(vals.Get("includeDeleted"), "includeDeleted", errs); v != nil {
		req.IncludeDeleted = *v
	}
	if v := parseBoolParam(vals.Get("archived"), "archived", errs); v != nil {
		req.Archived = *v
	}

	if len(errs) > 0 {
		return admin.Request{}, errs
	}
	return req, nil
}

func parseIntParam(raw, field string, errs admin.FieldErrors) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errs[field] = field + " must be an integer"
		return 0
	}
	return n
}

func parseTimeParam(raw, field string, errs admin.FieldErrors) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		errs[field] = field + " must be an RFC3339 timestamp"
		return nil
	}
	utc := t.UTC()
	return &utc
}

func parseBoolParam(raw, field string, errs admin.FieldErrors) *bool {
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		errs[field] = field + " must be true or false"
		return nil
	}
	return &b
}
