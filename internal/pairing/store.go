package pairing

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/persist"
)

// StatusStore persists the single pairing record of the device.
type StatusStore interface {
	// Begin writes InProgress(0,total) unless an attempt is already in
	// progress, in which case it returns CONFLICT and changes nothing.
	Begin(total int) error
	// Update replaces the record. Progress is never written over a terminal
	// record.
	Update(Status) error
	// Load returns the record, NotStarted when there is none.
	Load() (Status, error)
}

// FileStore keeps the record in a text file. Begin holds an in-process
// mutex and an flock on path+".lock" across the check and the write, so two
// processes cannot both start an attempt.
type FileStore struct {
	path       string
	lockPath   string
	staleAfter time.Duration
	logger     *zap.Logger

	mu sync.Mutex
}

// NewFileStore creates a store at path. An InProgress record older than
// staleAfter is treated as abandoned by a crashed process; zero disables
// the check.
func NewFileStore(path string, staleAfter time.Duration) *FileStore {
	return &FileStore{path: path, lockPath: path + ".lock", staleAfter: staleAfter, logger: zap.NewNop()}
}

// SetLogger sets the logger used to report unreadable records.
func (s *FileStore) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Path returns the record file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) lock() (*persist.FileLock, error) {
	s.mu.Lock()
	l, err := persist.Lock(s.lockPath)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return l, nil
}

func (s *FileStore) unlock(l *persist.FileLock) {
	_ = l.Unlock()
	s.mu.Unlock()
}

// Begin implements StatusStore.
func (s *FileStore) Begin(total int) error {
	l, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock(l)

	current, modified, err := s.read()
	if err != nil {
		return err
	}
	if current.Phase == InProgress && !s.stale(modified) {
		return adapter.Wrap(adapter.ErrConflict, fmt.Errorf("pairing already in progress (%s)", current), current)
	}
	return s.write(Status{Phase: InProgress, Total: total})
}

// Update implements StatusStore.
func (s *FileStore) Update(st Status) error {
	l, err := s.lock()
	if err != nil {
		return err
	}
	defer s.unlock(l)

	if st.Phase == InProgress {
		current, _, err := s.read()
		if err != nil {
			return err
		}
		if current.Phase.Terminal() || current.Phase == NotStarted {
			return fmt.Errorf("refusing progress %s over %s record", st, current.Phase)
		}
	}
	return s.write(st)
}

// Load implements StatusStore.
func (s *FileStore) Load() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _, err := s.read()
	return st, err
}

func (s *FileStore) read() (Status, time.Time, error) {
	b, err := persist.ReadFile(s.path)
	if err != nil {
		return Status{}, time.Time{}, fmt.Errorf("failed to read pairing status: %w", err)
	}
	if b == nil {
		return Status{Phase: NotStarted}, time.Time{}, nil
	}

	var modified time.Time
	if info, err := os.Stat(s.path); err == nil {
		modified = info.ModTime()
	}
	// An unrecognized record would otherwise block pairing until removed.
	st, err := ParseStatus(string(b))
	if err != nil {
		s.logger.Warn("ignoring unrecognized pairing status",
			zap.String("path", s.path), zap.Error(err))
		return Status{Phase: NotStarted}, modified, nil
	}
	return st, modified, nil
}

func (s *FileStore) write(st Status) error {
	st.Detail = singleLine(st.Detail)
	if err := persist.WriteFile(s.path, []byte(st.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write pairing status: %w", err)
	}
	return nil
}

func (s *FileStore) stale(modified time.Time) bool {
	return s.staleAfter > 0 && !modified.IsZero() && time.Since(modified) > s.staleAfter
}
