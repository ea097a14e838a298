package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// JournalImage is the image metadata kept in a journal record.
type JournalImage struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// JournalRecord is one line of the post journal.
type JournalRecord struct {
	Time  time.Time    `json:"time"`
	Tags  []string     `json:"tags"`
	Image JournalImage `json:"image"`
}

// Journal appends one JSON record per line to a file.
type Journal struct {
	path string
	mu   sync.Mutex
}

// NewJournal creates a journal writing to path. The file is created on first append.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Append writes rec as a single line.
func (j *Journal) Append(rec JournalRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write journal: %w", err)
	}
	return f.Close()
}
