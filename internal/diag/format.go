package diag

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat specifies how to format the capture list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated messages
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete captures as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// FormatCapturesTable writes captures as a formatted table to the provided
// writer. Returns the number of captures formatted.
func FormatCapturesTable(w io.Writer, captures []Capture, jobKey string) int {
	if len(captures) == 0 {
		fmt.Fprintf(w, "No failure captures found for job '%s'\n", jobKey)
		return 0
	}

	fmt.Fprintf(w, "Failure captures for job '%s':\n\n", jobKey)

	fmt.Fprintf(w, "%-20s %-10s %s\n", "CAPTURED", "SIZE", "MESSAGE")
	fmt.Fprintf(w, "%-20s %-10s %s\n", "--------------------", "----------", "----------------------------------------")

	for _, c := range captures {
		fmt.Fprintf(w, "%-20s %-10s %s\n",
			c.ModTime.Format("2006-01-02 15:04:05"),
			formatSize(c.Size),
			truncate(c.Message, 60),
		)
	}

	countMsg := "capture"
	if len(captures) != 1 {
		countMsg = "captures"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(captures), countMsg)

	return len(captures)
}

// FormatCapturesJSONL writes captures as line-delimited JSON (JSONL) to the
// provided writer. Each capture is written as a single JSON object on its
// own line, ideal for processing with tools like jq.
func FormatCapturesJSONL(w io.Writer, captures []Capture) error {
	for _, c := range captures {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal capture: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write capture: %w", err)
		}
	}
	return nil
}

func formatSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%dB", size)
	}
}

// truncate limits a string to maxLen characters, appending "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
