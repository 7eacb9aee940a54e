// Package export renders filtered envelope detail sets for offline
// analysis, as pretty-printed JSON or as CSV.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"reportsink/internal/admin"
)

// Format is the export output variant.
type Format int

const (
	FormatJSON Format = iota
	FormatCSV
)

// ErrUnknownFormat is returned for format strings other than json/csv.
var ErrUnknownFormat = fmt.Errorf("unknown export format")

// ParseFormat maps a request parameter to a Format. Empty defaults to JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return FormatJSON, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

func (f Format) String() string {
	if f == FormatCSV {
		return "csv"
	}
	return "json"
}

// csvHeader is the fixed CSV header row.
const csvHeader = "EnvelopeId,ReceivedAtUtc,Service,Environment,Host,SeverityThreshold,ItemCount,Acknowledged,Archived,FirstEventUtc,LastEventUtc"

// timeLayout renders timestamps as e.g. "2026-08-24 13:05:09 UTC".
const timeLayout = "2006-01-02 15:04:05 UTC"

// Render serializes the detail list in the selected format and returns the
// payload.
func Render(details []admin.Detail, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		return renderCSV(details), nil
	default:
		return renderJSON(details)
	}
}

// renderJSON emits the full detail list verbatim, indented.
func renderJSON(details []admin.Detail) ([]byte, error) {
	if details == nil {
		details = []admin.Detail{}
	}
	return json.MarshalIndent(details, "", "  ")
}

// renderCSV emits one row per envelope. FirstEventUtc/LastEventUtc are the
// min/max item timestamps within the envelope, empty for zero items.
func renderCSV(details []admin.Detail) []byte {
	var b strings.Builder
	b.WriteString(csvHeader)
	b.WriteByte('\n')

	for i := range details {
		d := &details[i]
		first, last := eventBounds(d)

		fields := []string{
			d.ID,
			d.ReceivedAtUtc.UTC().Format(timeLayout),
			d.Service,
			d.Environment,
			d.Host,
			string(d.SeverityThreshold),
			strconv.Itoa(d.ItemCount),
			strconv.FormatBool(d.IsAcknowledged),
			strconv.FormatBool(d.IsArchived),
			first,
			last,
		}
		for j, f := range fields {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(csvField(f))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func eventBounds(d *admin.Detail) (string, string) {
	if len(d.Items) == 0 {
		return "", ""
	}
	min, max := d.Items[0].TimestampUtc, d.Items[0].TimestampUtc
	for _, it := range d.Items[1:] {
		if it.TimestampUtc.Before(min) {
			min = it.TimestampUtc
		}
		if it.TimestampUtc.After(max) {
			max = it.TimestampUtc
		}
	}
	return min.UTC().Format(timeLayout), max.UTC().Format(timeLayout)
}

// csvField quotes a field when it contains a comma, double quote, or
// newline; internal quotes are doubled. Everything else passes through
// unescaped.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Gzip compresses an export payload for clients that accept it.
func Gzip(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
