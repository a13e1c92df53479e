package logtail

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ComponentFieldName is the logger field rendered in brackets after the level.
const ComponentFieldName = "component"

const displayTimeFormat = "2006-01-02 15:04:05"

// consoleWriter renders application log lines without colour; the UI colours
// the result itself.
func consoleWriter(out *bytes.Buffer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:     out,
		NoColor: true,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			ComponentFieldName,
			zerolog.MessageFieldName,
		},
		FieldsExclude:   []string{ComponentFieldName},
		FormatTimestamp: formatTimestamp,
		FormatFieldValue: func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("%s", i)
		},
		FormatPrepare: func(evt map[string]any) error {
			if _, ok := evt[zerolog.LevelFieldName]; !ok {
				evt[zerolog.LevelFieldName] = zerolog.InfoLevel.String()
			}
			if c, ok := evt[ComponentFieldName].(string); ok && c != "" {
				evt[ComponentFieldName] = "[" + c + "]"
			} else {
				delete(evt, ComponentFieldName)
			}
			return nil
		},
	}
}

func formatTimestamp(i any) string {
	s, ok := i.(string)
	if !ok || s == "" {
		return ""
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return ts.In(time.Local).Format(displayTimeFormat)
}

// Format renders a log line for display:
//
//	2026-10-16 09:14:02 INF [gateway] gateway connection opened conn_id=...
//
// Lines that are not JSON objects are returned unchanged.
func Format(line string) string {
	if !strings.HasPrefix(strings.TrimSpace(line), "{") {
		return line
	}
	var buf bytes.Buffer
	w := consoleWriter(&buf)
	if _, err := w.Write([]byte(line)); err != nil {
		return line
	}
	return strings.TrimRight(buf.String(), "\n")
}

// FormatLines applies Format to each line.
func FormatLines(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Format(line)
	}
	return out
}
