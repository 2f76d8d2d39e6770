package parsing

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// UnrecognizedSink receives phrases that matched neither fee table.
// Record must not fail the caller.
type UnrecognizedSink interface {
	Record(date, plate, phrase string)
}

// UnrecognizedPhrase is one line of the unrecognized services log
type UnrecognizedPhrase struct {
	Date   string `json:"date"`
	Plate  string `json:"plate"`
	Phrase string `json:"phrase"`
}

// NopSink discards everything
type NopSink struct{}

// Record implements UnrecognizedSink
func (NopSink) Record(date, plate, phrase string) {}

// FileSink appends "date, plate, phrase" lines to a text file. Appends from
// concurrent parses are serialized.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a FileSink writing to path. The file is created on the
// first record.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Record implements UnrecognizedSink. Write failures are logged and dropped.
func (s *FileSink) Record(date, plate, phrase string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("Failed to open unrecognized services log", "path", s.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s, %s, %s\n", date, plate, phrase); err != nil {
		slog.Warn("Failed to record unrecognized service", "path", s.path, "phrase", phrase, "error", err)
	}
}

// Records reads the log back. A log that does not exist yet is empty.
func (s *FileSink) Records() ([]UnrecognizedPhrase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []UnrecognizedPhrase{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening unrecognized services log: %w", err)
	}
	defer f.Close()

	records := make([]UnrecognizedPhrase, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ", ", 3)
		if len(parts) != 3 {
			continue
		}
		records = append(records, UnrecognizedPhrase{Date: parts[0], Plate: parts[1], Phrase: parts[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading unrecognized services log: %w", err)
	}
	return records, nil
}
