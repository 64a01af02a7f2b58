// Package export writes transcript exports to disk.
package export

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/duetlabs/persona-duet/internal/ledger"
)

// Format selects the export serialization.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// ParseFormat validates a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or md)", s)
	}
}

// Filename generates the auto-export filename for a timestamp:
// ai-conversation-<ISO8601 with colons and dots replaced by dashes>.<ext>.
func Filename(t time.Time, format Format) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.ReplaceAll(stamp, ":", "-")
	stamp = strings.ReplaceAll(stamp, ".", "-")
	return fmt.Sprintf("ai-conversation-%s.%s", stamp, format)
}

// Write serializes the ledger in the given format to path. An empty path
// auto-generates a filename in the working directory. Returns the path
// written.
func Write(led *ledger.Ledger, format Format, path string) (string, error) {
	var content string
	switch format {
	case FormatJSON:
		out, err := led.ExportJSON()
		if err != nil {
			return "", err
		}
		content = out
	case FormatMarkdown:
		content = led.ExportMarkdown()
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}

	if path == "" {
		path = Filename(time.Now(), format)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
