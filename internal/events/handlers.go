package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LogConfig configures the logging handler
type LogConfig struct {
	// Writer is where logs are written (default: os.Stderr)
	Writer io.Writer

	// IncludePayload includes event payload in log output
	IncludePayload bool

	// TimeFormat is the timestamp format (default: RFC3339)
	TimeFormat string
}

// LogHandler returns a handler that logs events to the configured writer
// Format: [event.type] target instance=NAME status=N
func LogHandler(cfg LogConfig) Handler {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	return func(e Event) {
		var buf strings.Builder
		buf.WriteString(e.Time.Format(cfg.TimeFormat))
		buf.WriteString(" [")
		buf.WriteString(string(e.Type))
		buf.WriteString("]")

		if e.Target != "" {
			buf.WriteString(" ")
			buf.WriteString(e.Target)
		}
		if e.Instance != "" {
			fmt.Fprintf(&buf, " instance=%s", e.Instance)
		}
		if e.Status != nil {
			fmt.Fprintf(&buf, " status=%d", *e.Status)
		}
		if e.Error != "" {
			fmt.Fprintf(&buf, " error=%q", e.Error)
		}
		if cfg.IncludePayload && e.Payload != nil {
			fmt.Fprintf(&buf, " payload=%v", e.Payload)
		}
		buf.WriteString("\n")

		fmt.Fprint(cfg.Writer, buf.String())
	}
}
