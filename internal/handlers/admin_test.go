package handlers

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"reportsink/internal/admin"
	"reportsink/internal/auth"
	"reportsink/internal/models"
	"reportsink/internal/store"
)

func newAdminMux(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := NewAdminHandler(AdminConfig{
		Gate:           auth.NewGate(testIngestKey, testAdminKey),
		Store:          st,
		Bounds:         admin.Bounds{DefaultPageSize: 50, MaxPageSize: 200},
		MaxExportItems: 100,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/admin/envelopes", h.List)
	mux.HandleFunc("GET /api/admin/envelopes/{id}", h.Detail)
	mux.HandleFunc("POST /api/admin/envelopes/{id}/acknowledge", h.Acknowledge)
	mux.HandleFunc("POST /api/admin/envelopes/{id}/archive", h.Archive)
	mux.HandleFunc("DELETE /api/admin/envelopes/{id}", h.Delete)
	mux.HandleFunc("GET /api/admin/export", h.Export)
	return mux, st
}

func adminDo(mux http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func seedEnvelope(t *testing.T, st *store.Store, service string) *models.Envelope {
	t.Helper()
	env := models.NewEnvelope("web-01", "prod", service, models.LevelWarning, 5, 100,
		[]models.Item{{Level: models.LevelError, Message: "boom, with comma", Timestamp: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)}})
	if err := st.Insert(env); err != nil {
		t.Fatal(err)
	}
	return env
}

type listResponse struct {
	TotalCount int             `json:"totalCount"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	Envelopes  []admin.Summary `json:"envelopes"`
}

func TestAdmin_RequiresAdminKey(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/envelopes", nil)
	req.Header.Set("Authorization", "Bearer "+testIngestKey)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ingest key must not open the admin surface, got %d", rec.Code)
	}
}

func TestAdmin_ListDefaults(t *testing.T) {
	mux, st := newAdminMux(t)
	seedEnvelope(t, st, "billing")

	rec := adminDo(mux, http.MethodGet, "/api/admin/envelopes")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalCount != 1 || len(resp.Envelopes) != 1 {
		t.Fatalf("expected one summary, got %+v", resp)
	}
	s := resp.Envelopes[0]
	if s.ItemCount != 1 || s.IsAcknowledged || s.IsDeleted {
		t.Errorf("unexpected summary: %+v", s)
	}
	if resp.Page != 1 || resp.PageSize != 50 {
		t.Errorf("expected default paging, got page=%d pageSize=%d", resp.Page, resp.PageSize)
	}
}

func TestAdmin_ListValidation(t *testing.T) {
	mux, _ := newAdminMux(t)

	rec := adminDo(mux, http.MethodGet, "/api/admin/envelopes?pageSize=9999")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for pageSize over max, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "200") {
		t.Errorf("error should name the maximum: %s", rec.Body.String())
	}

	rec = adminDo(mux, http.MethodGet, "/api/admin/envelopes?fromUtc=not-a-time")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamp, got %d", rec.Code)
	}

	rec = adminDo(mux, http.MethodGet,
		"/api/admin/envelopes?fromUtc=2026-08-24T12:00:00Z&toUtc=2026-08-24T10:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}
}

func TestAdmin_DetailAndNotFound(t *testing.T) {
	mux, st := newAdminMux(t)
	env := seedEnvelope(t, st, "billing")

	rec := adminDo(mux, http.MethodGet, "/api/admin/envelopes/"+env.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var detail admin.Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.ID != env.ID || len(detail.Items) != 1 {
		t.Errorf("unexpected detail: %+v", detail)
	}

	rec = adminDo(mux, http.MethodGet, "/api/admin/envelopes/no-such-id")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdmin_LifecycleFlow(t *testing.T) {
	mux, st := newAdminMux(t)
	env := seedEnvelope(t, st, "billing")

	if rec := adminDo(mux, http.MethodPost, "/api/admin/envelopes/"+env.ID+"/acknowledge"); rec.Code != http.StatusNoContent {
		t.Fatalf("acknowledge: expected 204, got %d", rec.Code)
	}

	// Acknowledged envelopes stay in the default view.
	rec := adminDo(mux, http.MethodGet, "/api/admin/envelopes")
	var resp listResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.TotalCount != 1 || !resp.Envelopes[0].IsAcknowledged {
		t.Fatalf("acknowledged envelope should stay listed: %+v", resp)
	}

	if rec := adminDo(mux, http.MethodPost, "/api/admin/envelopes/"+env.ID+"/archive"); rec.Code != http.StatusNoContent {
		t.Fatalf("archive: expected 204, got %d", rec.Code)
	}

	// Gone from the active view, present in the archived one.
	rec = adminDo(mux, http.MethodGet, "/api/admin/envelopes")
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.TotalCount != 0 {
		t.Fatalf("archived envelope should leave the active view: %+v", resp)
	}

	// No explicit deleted toggle: the archived view must surface its rows
	// on its own, despite the archived-at stamp living in deleted_at.
	rec = adminDo(mux, http.MethodGet, "/api/admin/envelopes?archived=true")
	resp = listResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.TotalCount != 1 || !resp.Envelopes[0].IsArchived {
		t.Fatalf("archived view should hold the envelope: %+v", resp)
	}

	// Lifecycle mutations on an archived envelope are conflicts.
	if rec := adminDo(mux, http.MethodPost, "/api/admin/envelopes/"+env.ID+"/acknowledge"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on archived mutation, got %d", rec.Code)
	}
}

func TestAdmin_ExportCSV(t *testing.T) {
	mux, st := newAdminMux(t)
	seedEnvelope(t, st, "billing")

	rec := adminDo(mux, http.MethodGet, "/api/admin/export?format=csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected content type %q", ct)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "EnvelopeId,") {
		t.Errorf("missing CSV header: %q", body)
	}
	if !strings.Contains(body, "billing") {
		t.Errorf("row missing: %q", body)
	}
}

func TestAdmin_ExportUnknownFormat(t *testing.T) {
	mux, _ := newAdminMux(t)

	rec := adminDo(mux, http.MethodGet, "/api/admin/export?format=xml")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdmin_ExportJSONDefaultAndNotFoundIsEmpty(t *testing.T) {
	mux, _ := newAdminMux(t)

	// NotFound taxonomy: an export matching nothing is an empty result, not
	// an error.
	rec := adminDo(mux, http.MethodGet, "/api/admin/export?service=nothing-here")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", rec.Body.String())
	}
}
