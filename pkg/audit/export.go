package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportFormat selects the encoding of an event export
type ExportFormat string

const (
	ExportJSON   ExportFormat = "json"
	ExportNDJSON ExportFormat = "ndjson"
	ExportCSV    ExportFormat = "csv"
)

// ContentType returns the media type of the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportNDJSON:
		return "application/x-ndjson"
	case ExportCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// ParseExportFormat accepts json, ndjson and csv. Empty means json.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case "":
		return ExportJSON, nil
	case ExportJSON, ExportNDJSON, ExportCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", s)
	}
}

// Export writes events to w in the given format
func Export(w io.Writer, events []*Event, format ExportFormat) error {
	switch format {
	case ExportJSON:
		if events == nil {
			events = []*Event{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case ExportNDJSON:
		return exportNDJSON(w, events)
	case ExportCSV:
		return exportCSV(w, events)
	default:
		return fmt.Errorf("unsupported export format: %q", format)
	}
}

func exportNDJSON(w io.Writer, events []*Event) error {
	enc := json.NewEncoder(w)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{
	"id", "timestamp", "tenant_id", "event_type", "status", "actor_id",
	"resource_type", "resource_id", "request_id", "message", "metadata",
}

func exportCSV(w io.Writer, events []*Event) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		actor := ""
		if event.ActorID != nil {
			actor = event.ActorID.String()
		}
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		row := []string{
			event.ID.String(),
			event.Timestamp.UTC().Format(time.RFC3339),
			event.TenantID.String(),
			string(event.EventType),
			string(event.Status),
			actor,
			string(event.ResourceType),
			event.ResourceID,
			event.RequestID,
			event.Message,
			string(metadata),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}
