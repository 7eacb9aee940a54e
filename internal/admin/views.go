package admin

import (
	"time"

	"reportsink/internal/models"
)

// Summary is the envelope list row. It never carries items.
type Summary struct {
	ID                string       `json:"id"`
	ReceivedAtUtc     time.Time    `json:"receivedAtUtc"`
	Host              string       `json:"host"`
	Environment       string       `json:"environment"`
	Service           string       `json:"service"`
	SeverityThreshold models.Level `json:"severityThreshold"`
	ItemCount         int          `json:"itemCount"`
	IsAcknowledged    bool         `json:"isAcknowledged"`
	IsDeleted         bool         `json:"isDeleted"`
	IsArchived        bool         `json:"isArchived"`
}

// ItemView is one log record inside a detail view.
type ItemView struct {
	Kind          string       `json:"kind"`
	TimestampUtc  time.Time    `json:"timestampUtc"`
	Level         models.Level `json:"level"`
	Message       string       `json:"message"`
	TemplateHash  string       `json:"templateHash"`
	Exception     string       `json:"exception,omitempty"`
	Service       string       `json:"service,omitempty"`
	Environment   string       `json:"environment,omitempty"`
	TenantHash    string       `json:"tenantHash,omitempty"`
	CorrelationID string       `json:"correlationId,omitempty"`
	TraceID       string       `json:"traceId,omitempty"`
	SpanID        string       `json:"spanId,omitempty"`
	Category      string       `json:"category,omitempty"`
	EventID       int          `json:"eventId,omitempty"`
	Count         int          `json:"count"`
	Properties    string       `json:"properties,omitempty"`
}

// Detail is the full envelope view. It always carries every item in the
// envelope's original order; pagination applies at the envelope level only.
type Detail struct {
	Summary
	WindowMinutes     int        `json:"windowMinutes"`
	MaxItems          int        `json:"maxItems"`
	AcknowledgedAtUtc *time.Time `json:"acknowledgedAtUtc,omitempty"`
	DeletedAtUtc      *time.Time `json:"deletedAtUtc,omitempty"`
	Items             []ItemView `json:"items"`
}

// NewSummary maps a stored envelope to its list row.
func NewSummary(env *models.Envelope, archived bool) Summary {
	return Summary{
		ID:                env.ID,
		ReceivedAtUtc:     env.ReceivedAt,
		Host:              env.Host,
		Environment:       env.Environment,
		Service:           env.Service,
		SeverityThreshold: env.SeverityThreshold,
		ItemCount:         env.ItemCount,
		IsAcknowledged:    env.AcknowledgedAt != nil,
		IsDeleted:         env.DeletedAt != nil,
		IsArchived:        archived,
	}
}

// NewDetail maps a stored envelope plus its loaded items to the full view.
func NewDetail(env *models.Envelope, archived bool) Detail {
	items := make([]ItemView, len(env.Items))
	for i := range env.Items {
		items[i] = newItemView(&env.Items[i])
	}
	return Detail{
		Summary:           NewSummary(env, archived),
		WindowMinutes:     env.WindowMinutes,
		MaxItems:          env.MaxItems,
		AcknowledgedAtUtc: env.AcknowledgedAt,
		DeletedAtUtc:      env.DeletedAt,
		Items:             items,
	}
}

func newItemView(it *models.Item) ItemView {
	return ItemView{
		Kind:          it.Kind,
		TimestampUtc:  it.Timestamp,
		Level:         it.Level,
		Message:       it.Message,
		TemplateHash:  it.TemplateHash,
		Exception:     it.Exception,
		Service:       it.Service,
		Environment:   it.Environment,
		TenantHash:    it.TenantHash,
		CorrelationID: it.CorrelationID,
		TraceID:       it.TraceID,
		SpanID:        it.SpanID,
		Category:      it.Category,
		EventID:       it.EventID,
		Count:         it.Count,
		Properties:    it.Properties,
	}
}
