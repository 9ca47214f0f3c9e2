package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/snowbind/snowbind/internal/core"
)

// FileTrail appends entries to a JSON-lines file, one object per line, so a
// trail can be tailed during a run and grepped by run ID afterwards.
type FileTrail struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

var _ core.Auditor = (*FileTrail)(nil)

func NewFileTrail(path string) (*FileTrail, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit trail %s: %w", path, err)
	}
	buf := bufio.NewWriter(file)
	return &FileTrail{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (t *FileTrail) Log(entry core.AuditEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.enc.Encode(entry); err != nil {
		return fmt.Errorf("writing audit trail entry: %w", err)
	}
	// one run writes few entries, so flush per entry and keep the trail
	// current even if the process dies mid-run
	return t.buf.Flush()
}

func (t *FileTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.buf.Flush(); err != nil {
		_ = t.file.Close()
		return err
	}
	return t.file.Close()
}
