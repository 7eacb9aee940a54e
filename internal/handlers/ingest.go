package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"reportsink/internal/admin"
	"reportsink/internal/auth"
	"reportsink/internal/logger"
	"reportsink/internal/metrics"
	"reportsink/internal/models"
	"reportsink/internal/queue"
)

// IngestHandler accepts envelope submissions and admits them into the
// ingestion queue. Authentication failures and malformed submissions never
// reach the queue.
type IngestHandler struct {
	gate           *auth.Gate
	queue          *queue.Queue
	enqueueTimeout time.Duration
	maxBodySize    int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Gate           *auth.Gate
	Queue          *queue.Queue
	EnqueueTimeout time.Duration
	MaxBodySize    int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 2 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 10 * 1024 * 1024
	}
	return &IngestHandler{
		gate:           cfg.Gate,
		queue:          cfg.Queue,
		enqueueTimeout: cfg.EnqueueTimeout,
		maxBodySize:    cfg.MaxBodySize,
	}
}

// submission is the inbound envelope payload.
type submission struct {
	Host              string          `json:"host"`
	Environment       string          `json:"environment"`
	Service           string          `json:"service"`
	SeverityThreshold string          `json:"severityThreshold"`
	WindowMinutes     int             `json:"windowMinutes"`
	MaxItems          int             `json:"maxItems"`
	Items             []submittedItem `json:"items"`
}

type submittedItem struct {
	Kind          string    `json:"kind"`
	TimestampUtc  time.Time `json:"timestampUtc"`
	Level         string    `json:"level"`
	Message       string    `json:"message"`
	TemplateHash  string    `json:"templateHash"`
	Exception     string    `json:"exception"`
	Service       string    `json:"service"`
	Environment   string    `json:"environment"`
	TenantHash    string    `json:"tenantHash"`
	CorrelationID string    `json:"correlationId"`
	TraceID       string    `json:"traceId"`
	SpanID        string    `json:"spanId"`
	Category      string    `json:"category"`
	EventID       int       `json:"eventId"`
	Count         int       `json:"count"`
	Properties    string    `json:"properties"`
}

// ServeHTTP handles one envelope submission.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("ingest")

	if err := h.gate.Authorize(r.Header.Get("Authorization"), auth.RealmIngest); err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("submission rejected")
		metrics.IngestRejectedTotal.WithLabelValues("unauthorized").Inc()
		writeUnauthorized(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var sub submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		metrics.IngestRejectedTotal.WithLabelValues("validation").Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	env, errs := buildEnvelope(&sub)
	if len(errs) > 0 {
		metrics.IngestRejectedTotal.WithLabelValues("validation").Inc()
		writeFieldErrors(w, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.enqueueTimeout)
	defer cancel()

	if err := h.queue.Enqueue(ctx, models.NewWorkItem(env)); err != nil {
		switch {
		case errors.Is(err, queue.ErrClosed):
			metrics.IngestRejectedTotal.WithLabelValues("shutdown").Inc()
			writeError(w, http.StatusServiceUnavailable, "shutting down")
		case errors.Is(err, context.Canceled):
			// The client went away while waiting for a slot. Not an
			// overload; the queue stayed intact.
			metrics.IngestRejectedTotal.WithLabelValues("canceled").Inc()
			log.Debug().Str("service", env.Service).Msg("submission cancelled by client")
			writeError(w, http.StatusServiceUnavailable, "request cancelled")
		default:
			// The admission timeout fired while the queue stayed full: an
			// overload, retriable after backoff. Nothing was accepted,
			// nothing is lost.
			metrics.IngestRejectedTotal.WithLabelValues("overload").Inc()
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, "ingestion queue full, retry later")
		}
		return
	}

	metrics.IngestAcceptedTotal.Inc()
	metrics.IngestItemsPerEnvelope.Observe(float64(env.ItemCount))
	log.Debug().
		Str("envelope_id", env.ID).
		Str("service", env.Service).
		Int("item_count", env.ItemCount).
		Msg("envelope accepted")

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// buildEnvelope validates a submission and converts it into a persistable
// envelope, collecting field-keyed validation errors.
func buildEnvelope(sub *submission) (*models.Envelope, admin.FieldErrors) {
	errs := admin.FieldErrors{}

	host := strings.TrimSpace(sub.Host)
	service := strings.TrimSpace(sub.Service)
	environment := strings.TrimSpace(sub.Environment)

	if host == "" {
		errs["host"] = "host is required"
	}
	if service == "" {
		errs["service"] = "service is required"
	}
	if sub.WindowMinutes <= 0 {
		errs["windowMinutes"] = "windowMinutes must be positive"
	}
	if sub.MaxItems <= 0 {
		errs["maxItems"] = "maxItems must be positive"
	}

	threshold, ok := models.ParseLevel(sub.SeverityThreshold)
	if !ok {
		errs["severityThreshold"] = "unknown severity level"
	}

	if len(sub.Items) == 0 {
		errs["items"] = "at least one item is required"
	} else if sub.MaxItems > 0 && len(sub.Items) > sub.MaxItems {
		errs["items"] = fmt.Sprintf("item list exceeds maxItems (%d)", sub.MaxItems)
	}

	items := make([]models.Item, 0, len(sub.Items))
	for i, in := range sub.Items {
		level, ok := models.ParseLevel(in.Level)
		if !ok {
			errs[fmt.Sprintf("items[%d].level", i)] = "unknown severity level"
			continue
		}
		if strings.TrimSpace(in.Message) == "" {
			errs[fmt.Sprintf("items[%d].message", i)] = "message is required"
			continue
		}
		if in.TimestampUtc.IsZero() {
			errs[fmt.Sprintf("items[%d].timestampUtc", i)] = "timestampUtc is required"
			continue
		}
		items = append(items, models.Item{
			Kind:          in.Kind,
			Timestamp:     in.TimestampUtc.UTC(),
			Level:         level,
			Message:       in.Message,
			TemplateHash:  in.TemplateHash,
			Exception:     in.Exception,
			Service:       in.Service,
			Environment:   in.Environment,
			TenantHash:    in.TenantHash,
			CorrelationID: in.CorrelationID,
			TraceID:       in.TraceID,
			SpanID:        in.SpanID,
			Category:      in.Category,
			EventID:       in.EventID,
			Count:         in.Count,
			Properties:    in.Properties,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return models.NewEnvelope(host, environment, service, threshold, sub.WindowMinutes, sub.MaxItems, items), nil
}
