package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/spottrader/ledger"
)

// stateVersion is bumped whenever the persisted layout changes shape.
const stateVersion = 1

var ErrStateMismatch = errors.New("live: persisted state belongs to another symbol")

// persisted is the on-disk document.
type persisted struct {
	Version int             `json:"version"`
	Symbol  string          `json:"symbol"`
	SavedAt time.Time       `json:"saved_at"`
	Ledger  ledger.Snapshot `json:"ledger"`
}

// StateStore keeps one engine's ledger in a JSON file. Writes go to a
// temporary file in the same directory and are renamed over the target,
// so a crash leaves either the old or the new document, never a torn one.
type StateStore struct {
	path   string
	symbol string
}

func NewStateStore(path, symbol string) *StateStore {
	return &StateStore{path: path, symbol: symbol}
}

func (s *StateStore) Path() string { return s.path }

// Load returns the persisted snapshot. ok is false when no file exists.
func (s *StateStore) Load() (snap ledger.Snapshot, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return ledger.Snapshot{}, false, nil
	}
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("load state: %w", err)
	}

	var doc persisted
	if err := json.Unmarshal(data, &doc); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("load state %s: %w", s.path, err)
	}
	if doc.Version != stateVersion {
		return ledger.Snapshot{}, false, fmt.Errorf("load state %s: unsupported version %d", s.path, doc.Version)
	}
	if s.symbol != "" && doc.Symbol != "" && doc.Symbol != s.symbol {
		return ledger.Snapshot{}, false, fmt.Errorf("%w: file has %s, engine trades %s", ErrStateMismatch, doc.Symbol, s.symbol)
	}
	return doc.Ledger, true, nil
}

func (s *StateStore) Save(snap ledger.Snapshot) error {
	doc := persisted{
		Version: stateVersion,
		Symbol:  s.symbol,
		SavedAt: time.Now().UTC(),
		Ledger:  snap,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Delete removes the file. A missing file is not an error.
func (s *StateStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}
