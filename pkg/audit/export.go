package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportMetadata describes how a bundle was produced.
type ExportMetadata struct {
	// GeneratedAt is when the export ran.
	GeneratedAt time.Time `json:"generated_at"`

	// TotalEntries is the number of entries in the bundle.
	TotalEntries int `json:"total_entries"`

	// Filters echoes the filter the bundle was produced under.
	Filters map[string]string `json:"filters,omitempty"`

	// IntegrityVerified reports whether the chain verified clean at
	// export time.
	IntegrityVerified bool `json:"integrity_verified"`
}

// ExportBundle is a self-describing audit export: the filtered entries
// plus the integrity report for the whole chain they came from.
type ExportBundle struct {
	Metadata  ExportMetadata  `json:"export_metadata"`
	Integrity IntegrityReport `json:"integrity_report"`
	Entries   []*Entry        `json:"entries"`
}

// Export produces a bundle of entries matching the filter, alongside a
// fresh integrity report over the full chain.
func (t *Trail) Export(filter QueryFilter) *ExportBundle {
	report := t.VerifyIntegrity()
	entries := t.Query(filter)

	filters := make(map[string]string)
	if filter.EventType != "" {
		filters["event_type"] = string(filter.EventType)
	}
	if filter.RequestID != "" {
		filters["request_id"] = filter.RequestID
	}
	if filter.AgentID != "" {
		filters["agent_id"] = filter.AgentID
	}
	if filter.ActorID != "" {
		filters["actor_id"] = filter.ActorID
	}
	if !filter.Since.IsZero() {
		filters["since"] = filter.Since.UTC().Format(time.RFC3339Nano)
	}
	if !filter.Until.IsZero() {
		filters["until"] = filter.Until.UTC().Format(time.RFC3339Nano)
	}
	if len(filters) == 0 {
		filters = nil
	}

	return &ExportBundle{
		Metadata: ExportMetadata{
			GeneratedAt:       t.clock.Now().UTC(),
			TotalEntries:      len(entries),
			Filters:           filters,
			IntegrityVerified: report.Valid,
		},
		Integrity: report,
		Entries:   entries,
	}
}

// WriteJSON serializes the bundle to w, optionally pretty-printed.
func (b *ExportBundle) WriteJSON(w io.Writer, pretty bool) error {
	var data []byte
	var err error

	if pretty {
		data, err = json.MarshalIndent(b, "", "  ")
	} else {
		data, err = json.Marshal(b)
	}
	if err != nil {
		return fmt.Errorf("serialize export bundle: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write export bundle: %w", err)
	}
	return nil
}
