package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format represents command output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates format values. Empty selects table.
func ParseFormat(v string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(v))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", v)
	}
}

// Envelope is the machine-output payload.
type Envelope struct {
	Meta  map[string]any `json:"meta" yaml:"meta"`
	Data  any            `json:"data,omitempty" yaml:"data,omitempty"`
	Error map[string]any `json:"error,omitempty" yaml:"error,omitempty"`
}

func buildEnvelope(command string, data any, errPayload map[string]any, now time.Time) Envelope {
	return Envelope{
		Meta: map[string]any{
			"command":      command,
			"generated_at": now.UTC().Truncate(time.Second).Format(time.RFC3339),
		},
		Data:  data,
		Error: errPayload,
	}
}

// renderPayload renders an envelope as indented JSON or YAML.
func renderPayload(payload Envelope, format Format) (string, error) {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal json: %w", err)
		}
		return string(b), nil
	case FormatYAML:
		b, err := yaml.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshal yaml: %w", err)
		}
		return strings.TrimRight(string(b), "\n"), nil
	default:
		return "", fmt.Errorf("render payload only supports json/yaml")
	}
}

// renderTable renders a tab separated plain text table.
func renderTable(title string, headers []string, rows [][]string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteByte('\n')
	}
	if len(headers) > 0 {
		b.WriteString(strings.Join(headers, "\t"))
		b.WriteByte('\n')
	}
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeLine(w io.Writer, text string) error {
	if _, err := fmt.Fprintln(w, text); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
