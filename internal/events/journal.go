package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Journal appends events to a JSONL file, one envelope per line.
type Journal struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

type journalEnvelope struct {
	Event      string `json:"event"`
	RecordedAt string `json:"recorded_at"`
	Data       Event  `json:"data"`
}

func NewJournal(path string, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{path: path, logger: logger}
}

// Emit appends the event. Write failures are logged, not surfaced: the journal
// is an audit trail, not part of the operation's outcome.
func (j *Journal) Emit(e Event) {
	if err := j.append(e); err != nil {
		j.logger.Warn("journal write failed", zap.String("event", e.Name()), zap.Error(err))
	}
}

func (j *Journal) append(e Event) error {
	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(journalEnvelope{
		Event:      e.Name(),
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
		Data:       e,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return writer.Flush()
}
