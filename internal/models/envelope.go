package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level represents log severity levels as reported by client instances.
type Level string

const (
	LevelTrace       Level = "Trace"
	LevelDebug       Level = "Debug"
	LevelInformation Level = "Information"
	LevelWarning     Level = "Warning"
	LevelError       Level = "Error"
	LevelCritical    Level = "Critical"
)

// ParseLevel maps a client-supplied level string onto a canonical Level,
// accepting the common short aliases case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch {
	case equalFold(s, "trace"):
		return LevelTrace, true
	case equalFold(s, "debug"):
		return LevelDebug, true
	case equalFold(s, "information"), equalFold(s, "info"):
		return LevelInformation, true
	case equalFold(s, "warning"), equalFold(s, "warn"):
		return LevelWarning, true
	case equalFold(s, "error"):
		return LevelError, true
	case equalFold(s, "critical"), equalFold(s, "fatal"):
		return LevelCritical, true
	default:
		return "", false
	}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), b)
}

// IsValid checks if the level is one of the known severities.
func (l Level) IsValid() bool {
	switch l {
	case LevelTrace, LevelDebug, LevelInformation, LevelWarning, LevelError, LevelCritical:
		return true
	default:
		return false
	}
}

// Envelope is one ingested batch of diagnostic items pushed by a remote
// service instance. It is immutable once persisted, except for the two
// lifecycle timestamps (AcknowledgedAt, DeletedAt).
//
// The same struct backs both the active and the archived table; the store
// routes it to a named table explicitly instead of relying on the default
// model-name mapping.
type Envelope struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	ReceivedAt        time.Time  `gorm:"index" json:"receivedAtUtc"`
	Host              string     `gorm:"index;size:256" json:"host"`
	Environment       string     `gorm:"index;size:128" json:"environment"`
	Service           string     `gorm:"index;size:256" json:"service"`
	SeverityThreshold Level      `gorm:"index;size:16" json:"severityThreshold"`
	WindowMinutes     int        `json:"windowMinutes"`
	MaxItems          int        `json:"maxItems"`
	ItemCount         int        `json:"itemCount"`
	AcknowledgedAt    *time.Time `gorm:"index" json:"acknowledgedAtUtc,omitempty"`
	DeletedAt         *time.Time `gorm:"index" json:"deletedAtUtc,omitempty"`

	// Items are loaded and written explicitly by the store so that the
	// active/archived table split stays under its control.
	Items []Item `gorm:"-" json:"items,omitempty"`
}

// Item is one log record inside an envelope. Items belong to exactly one
// envelope and only ever move or disappear together with it.
type Item struct {
	RowID         uint      `gorm:"primaryKey" json:"-"`
	EnvelopeID    string    `gorm:"index;size:36" json:"-"`
	Seq           int       `gorm:"index" json:"-"`
	Kind          string    `gorm:"size:64" json:"kind"`
	Timestamp     time.Time `gorm:"index" json:"timestampUtc"`
	Level         Level     `gorm:"index;size:16" json:"level"`
	Message       string    `gorm:"type:text" json:"message"`
	TemplateHash  string    `gorm:"index;size:64" json:"templateHash"`
	Exception     string    `gorm:"type:text" json:"exception,omitempty"`
	Service       string    `gorm:"size:256" json:"service,omitempty"`
	Environment   string    `gorm:"size:128" json:"environment,omitempty"`
	TenantHash    string    `gorm:"size:64" json:"tenantHash,omitempty"`
	CorrelationID string    `gorm:"size:64" json:"correlationId,omitempty"`
	TraceID       string    `gorm:"size:64" json:"traceId,omitempty"`
	SpanID        string    `gorm:"size:32" json:"spanId,omitempty"`
	Category      string    `gorm:"size:256" json:"category,omitempty"`
	EventID       int       `json:"eventId,omitempty"`
	Count         int       `json:"count"`
	Properties    string    `gorm:"type:text" json:"properties,omitempty"`
}

// Validation errors
var (
	ErrEmptyService      = errors.New("service cannot be empty")
	ErrEmptyHost         = errors.New("host cannot be empty")
	ErrInvalidWindow     = errors.New("window minutes must be positive")
	ErrInvalidMaxItems   = errors.New("max items must be positive")
	ErrNoItems           = errors.New("envelope has no items")
	ErrTooManyItems      = errors.New("item list exceeds the envelope's max items")
	ErrItemCountMismatch = errors.New("item count does not match the number of items")
	ErrInvalidLevel      = errors.New("invalid severity level")
	ErrEmptyMessage      = errors.New("item message cannot be empty")
	ErrZeroTimestamp     = errors.New("item timestamp cannot be zero")
)

// NewEnvelope stamps identity and arrival time onto a submitted batch and
// fixes ItemCount to the number of owned items.
func NewEnvelope(host, environment, service string, threshold Level, windowMinutes, maxItems int, items []Item) *Envelope {
	env := &Envelope{
		ID:                uuid.New().String(),
		ReceivedAt:        time.Now().UTC(),
		Host:              host,
		Environment:       environment,
		Service:           service,
		SeverityThreshold: threshold,
		WindowMinutes:     windowMinutes,
		MaxItems:          maxItems,
		ItemCount:         len(items),
		Items:             items,
	}
	for i := range env.Items {
		env.Items[i].EnvelopeID = env.ID
		env.Items[i].Seq = i
		if env.Items[i].Count < 1 {
			env.Items[i].Count = 1
		}
	}
	return env
}

// Validate checks the envelope's persistence invariants.
func (e *Envelope) Validate() error {
	if e.Service == "" {
		return ErrEmptyService
	}
	if e.Host == "" {
		return ErrEmptyHost
	}
	if e.WindowMinutes <= 0 {
		return ErrInvalidWindow
	}
	if e.MaxItems <= 0 {
		return ErrInvalidMaxItems
	}
	if len(e.Items) == 0 {
		return ErrNoItems
	}
	if len(e.Items) > e.MaxItems {
		return ErrTooManyItems
	}
	if e.ItemCount != len(e.Items) {
		return ErrItemCountMismatch
	}
	if !e.SeverityThreshold.IsValid() {
		return ErrInvalidLevel
	}
	for i := range e.Items {
		if err := e.Items[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single item's required fields.
func (it *Item) Validate() error {
	if !it.Level.IsValid() {
		return ErrInvalidLevel
	}
	if it.Message == "" {
		return ErrEmptyMessage
	}
	if it.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}
