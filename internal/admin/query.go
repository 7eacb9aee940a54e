// Package admin implements the administrative query engine: request
// normalization against configured bounds, and mapping of stored envelopes
// into the two public view shapes (summary and detail).
package admin

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Bounds are the configured paging limits.
type Bounds struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Request carries the raw, untrusted list/filter parameters.
type Request struct {
	Page     int
	PageSize int

	Host              string
	Service           string
	Environment       string
	SeverityThreshold string
	Search            string

	FromUTC *time.Time
	ToUTC   *time.Time

	// Tri-state filters: nil means "not filtered".
	Acknowledged *bool
	Deleted      *bool

	// View toggles. An explicit Acknowledged/Deleted filter forces the
	// corresponding include flag on, so filtering by a state always surfaces
	// matching rows.
	IncludeAcknowledged bool
	IncludeDeleted      bool

	// Archived selects the cold collection instead of the active one.
	Archived bool
}

// Query is a validated, clamped request ready for the store.
type Query struct {
	Page     int
	PageSize int
	Skip     int

	Host              string
	Service           string
	Environment       string
	SeverityThreshold string
	Search            string

	FromUTC *time.Time
	ToUTC   *time.Time

	Acknowledged *bool
	Deleted      *bool

	IncludeAcknowledged bool
	IncludeDeleted      bool

	Archived bool
}

// FieldErrors maps request field names to validation messages.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

// NewQuery normalizes a raw request into a Query, or reports a field-keyed
// set of validation errors. A request that fails validation never reaches
// the store.
func NewQuery(req Request, bounds Bounds) (Query, FieldErrors) {
	errs := FieldErrors{}

	page := req.Page
	if page <= 0 {
		page = 1
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = bounds.DefaultPageSize
	}
	if bounds.MaxPageSize > 0 && pageSize > bounds.MaxPageSize {
		errs["pageSize"] = fmt.Sprintf("pageSize cannot exceed %d", bounds.MaxPageSize)
	}

	if req.FromUTC != nil && req.ToUTC != nil && req.FromUTC.After(*req.ToUTC) {
		errs["fromUtc"] = "fromUtc must not be later than toUtc"
	}

	if len(errs) > 0 {
		return Query{}, errs
	}

	q := Query{
		Page:                page,
		PageSize:            pageSize,
		Host:                normalize(req.Host),
		Service:             normalize(req.Service),
		Environment:         normalize(req.Environment),
		SeverityThreshold:   normalize(req.SeverityThreshold),
		Search:              normalize(req.Search),
		FromUTC:             req.FromUTC,
		ToUTC:               req.ToUTC,
		Acknowledged:        req.Acknowledged,
		Deleted:             req.Deleted,
		IncludeAcknowledged: req.IncludeAcknowledged,
		IncludeDeleted:      req.IncludeDeleted,
		Archived:            req.Archived,
	}

	// Filtering by an explicit state always surfaces matching rows, even if
	// the default view would exclude them.
	if q.Acknowledged != nil {
		q.IncludeAcknowledged = true
	}
	if q.Deleted != nil {
		q.IncludeDeleted = true
	}

	// Archiving stamps deleted_at as the archived-at marker, so the default
	// deleted exclusion would hide every archived row.
	if q.Archived {
		q.IncludeDeleted = true
	}

	// Defensive floors before computing the offset.
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 1
	}
	q.Skip = (q.Page - 1) * q.PageSize

	return q, nil
}

// normalize trims a string filter; whitespace-only values become absent.
func normalize(s string) string {
	return strings.TrimSpace(s)
}
