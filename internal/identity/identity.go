// Package identity stores the per-unit numeric identity that selects the
// provisioned LAN address of the link radio.
package identity

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/persist"
)

// Bounds of a valid identity.
const (
	Min = 1
	Max = 255
)

// ID is a unit identity in [Min, Max].
type ID int

// Validate checks the identity bounds.
func (id ID) Validate() error {
	if id < Min || id > Max {
		return adapter.Errorf(adapter.ErrValidation, "identity must be between %d and %d, got %d", Min, Max, int(id))
	}
	return nil
}

func (id ID) String() string {
	return strconv.Itoa(int(id))
}

// Parse reads a decimal identity and validates it.
func Parse(s string) (ID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, adapter.Wrap(adapter.ErrValidation, fmt.Errorf("identity %q is not a number", s), nil)
	}
	id := ID(n)
	if err := id.Validate(); err != nil {
		return 0, err
	}
	return id, nil
}

// Store persists the identity as a single integer in a file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored identity. found is false when nothing was saved yet.
func (s *Store) Load() (id ID, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := persist.ReadFile(s.path)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read identity: %w", err)
	}
	if b == nil || strings.TrimSpace(string(b)) == "" {
		return 0, false, nil
	}
	id, err = Parse(string(b))
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Save validates and writes id. Writing the same value again is a no-op.
func (s *Store) Save(id ID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := id.String() + "\n"
	if b, err := persist.ReadFile(s.path); err == nil && string(b) == want {
		return nil
	}
	if err := persist.WriteFile(s.path, []byte(want), 0o644); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	return nil
}
