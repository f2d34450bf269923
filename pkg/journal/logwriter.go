package journal

import (
	"fmt"
	"os"
	"sync"

	"github.com/cuemby/sitekeeper/pkg/model"
)

// logWriter serializes concurrent appenders to each per-stage log file,
// per §4.4's "protected by a per-file writer that serializes concurrent
// appenders (master-side logger + inbound slave logs)".
type logWriter struct {
	mu    sync.Mutex
	files map[string]*os.File
}

func newLogWriter() logWriter {
	return logWriter{files: make(map[string]*os.File)}
}

func (w *logWriter) appendLine(path string, entry model.LogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[path]
	if !ok {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("journal: open log %s: %w", path, err)
		}
		w.files[path] = f
	}

	line := fmt.Sprintf("%s [%s] %s\n", entry.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"), entry.Level, entry.Message)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("journal: append log %s: %w", path, err)
	}
	return nil
}

func (w *logWriter) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.files {
		f.Close()
	}
	w.files = make(map[string]*os.File)
}
