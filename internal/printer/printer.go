// Package printer provides colored console output for the kiln CLI and the
// console metrics sink.
package printer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Color definitions
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Printf("✓ %s", msg)
	} else {
		green.Print(msg)
	}
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		yellow.Printf("⚠️  %s", msg)
	} else {
		yellow.Print(msg)
	}
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Error creates a formatted error message with title, explanation, and suggestions
// Prints the formatted error to stderr with colors and returns a simple error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	// Print title in red to stderr
	red.Fprintf(os.Stderr, "%s\n\n", title)

	// Print explanation
	fmt.Fprintf(os.Stderr, "%s\n", explanation)

	// Print suggestions
	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

// MetricsLines renders a metrics map as aligned "name | value" lines.
// Names are sorted by length first and alphabetically on ties, and each name
// is left-justified to the longest name's width so the separators line up.
// Values render with four decimal places.
func MetricsLines(metrics map[string]float64) []string {
	if len(metrics) == 0 {
		return nil
	}

	names := make([]string, 0, len(metrics))
	maxLength := 0
	for name := range metrics {
		names = append(names, name)
		if len(name) > maxLength {
			maxLength = len(name)
		}
	}
	// Sort by length to make it prettier
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%-*s | %.4f", maxLength, name, metrics[name]))
	}
	return lines
}

// Metrics prints a titled block of aligned metric lines to stdout.
func Metrics(title string, metrics map[string]float64) {
	Info("%s\n", title)
	for _, line := range MetricsLines(metrics) {
		Info("%s\n", line)
	}
}

// DescribeMetrics renders a one-line progress description of a metrics map,
// with loss first when present: "loss: 1.2345, acc: 98.7000 ||".
func DescribeMetrics(metrics map[string]float64) string {
	parts := make([]string, 0, len(metrics))
	if loss, ok := metrics["loss"]; ok {
		parts = append(parts, fmt.Sprintf("loss: %.4f", loss))
	}

	rest := make([]string, 0, len(metrics))
	for name := range metrics {
		if name == "loss" {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		parts = append(parts, fmt.Sprintf("%s: %.4f", name, metrics[name]))
	}

	return strings.Join(parts, ", ") + " ||"
}
