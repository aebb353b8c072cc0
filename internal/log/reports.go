package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ReportLogger records every report the host receives, one line each.
type ReportLogger interface {
	Log(handle uint16, data []byte)
}

type reportLogger struct {
	w   io.Writer
	now func() time.Time
	mu  sync.Mutex
}

// NewReportLogger writes report lines to w. A nil w discards them.
func NewReportLogger(w io.Writer) ReportLogger {
	return &reportLogger{w: w, now: time.Now}
}

// Log emits a timestamped hex dump of data sent on handle.
func (r *reportLogger) Log(handle uint16, data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}

	const hexdigits = "0123456789abcdef"
	hex := make([]byte, 0, len(data)*3)
	for i, b := range data {
		if i > 0 {
			hex = append(hex, ' ')
		}
		hex = append(hex, hexdigits[b>>4], hexdigits[b&0x0f])
	}
	line := fmt.Sprintf("%s 0x%04X %d bytes: %s\n", r.now().Format("2006/01/02 15:04:05.000"), handle, len(data), hex)

	r.mu.Lock()
	_, _ = io.WriteString(r.w, line)
	r.mu.Unlock()
}
