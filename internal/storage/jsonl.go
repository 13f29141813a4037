package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dablocksplug-source/theblock-sub000/internal/model"
)

// JsonlArchive appends ingested events to a JSONL file, one event per line.
// The file is opened on first write and kept open until Close.
type JsonlArchive struct {
	path string

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

func NewJsonlArchive(path string) *JsonlArchive {
	return &JsonlArchive{path: path}
}

func (a *JsonlArchive) open() error {
	if a.file != nil {
		return nil
	}
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
	}
	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	a.file = file
	a.buf = bufio.NewWriter(file)
	return nil
}

// PutEventBatch writes events and flushes them before returning.
func (a *JsonlArchive) PutEventBatch(events []model.ChainEvent) error {
	if len(events) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.open(); err != nil {
		return err
	}

	enc := json.NewEncoder(a.buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("write event %s:%d: %w", event.TxHash, event.LogIndex, err)
		}
	}
	if err := a.buf.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return nil
}

// Close flushes and closes the archive file.
func (a *JsonlArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return nil
	}
	flushErr := a.buf.Flush()
	closeErr := a.file.Close()
	a.file, a.buf = nil, nil
	if flushErr != nil {
		return fmt.Errorf("flush archive: %w", flushErr)
	}
	return closeErr
}
