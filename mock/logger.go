package mock

import (
	"fmt"
	"strings"
	"sync"
)

// RecordingLogger keeps every formatted log line.
type RecordingLogger struct {
	mu    sync.Mutex
	lines []string
	debug []string
}

// Printf implements dumpkit.Logger.
func (r *RecordingLogger) Printf(format string, v ...interface{}) {
	r.mu.Lock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
	r.mu.Unlock()
}

// Debugf implements dumpkit.Logger.
func (r *RecordingLogger) Debugf(format string, v ...interface{}) {
	r.mu.Lock()
	r.debug = append(r.debug, fmt.Sprintf(format, v...))
	r.mu.Unlock()
}

// Lines returns the lines logged with Printf.
func (r *RecordingLogger) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// WithPrefix returns the Printf lines which start with prefix, such as
// "warning: " or "error: ".
func (r *RecordingLogger) WithPrefix(prefix string) []string {
	var out []string
	for _, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}
