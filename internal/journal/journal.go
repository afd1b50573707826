// Package journal provides an append-only record of debit outcomes.
//
// Every debit against the ledger (granted or refused) is recorded as a line
// of JSON. Lines are appended in the order requests finish, which can differ
// from the order the ledger applied them; sort by seq to replay. The journal
// is an audit trail only; the ledger itself is never restored from it.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benaskins/joule/internal/energy"
)

// Entry is a single journal line.
type Entry struct {
	Seq        uint64    `json:"seq"`
	Timestamp  time.Time `json:"ts"`
	Joules     float64   `json:"joules"`
	OK         bool      `json:"ok"`
	RemainingJ float64   `json:"remaining_j"`
	Remote     string    `json:"remote,omitempty"`
}

// Journal appends debit outcomes to a file.
type Journal struct {
	mu  sync.Mutex
	enc *json.Encoder
	f   *os.File
	now func() time.Time
}

// Open creates or opens the journal at path for appending.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{enc: json.NewEncoder(f), f: f, now: time.Now}, nil
}

// Record appends the outcome of debiting joules on behalf of remote.
func (j *Journal) Record(remote string, joules float64, res energy.TakeResult) error {
	entry := Entry{
		Seq:        res.Seq,
		Timestamp:  j.now().UTC(),
		Joules:     joules,
		OK:         res.OK,
		RemainingJ: res.RemainingJ,
		Remote:     remote,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(entry); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.f.Close()
}
