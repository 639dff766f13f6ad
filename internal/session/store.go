package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	recordExt    = ".json"
	lockFileName = ".lock"
	dirPerm      = 0o750
	filePerm     = 0o600
)

// Store persists sessions as one JSON file per id inside a directory.
//
// Writes go to a temporary file in the same directory followed by an atomic
// rename, so a concurrent Get or List never observes a half-written record.
type Store struct {
	dir    string
	mu     sync.RWMutex
	flk    *flock.Flock
	logger *slog.Logger
}

// NewStore opens (creating if needed) the store directory and takes the
// directory lock. A second process holding the lock is a hard startup error
// rather than a source of silent write races.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	flk := flock.New(filepath.Join(dir, lockFileName))
	locked, err := flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking store directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("store directory %s is locked by another process", dir)
	}

	return &Store{dir: dir, flk: flk, logger: logger}, nil
}

// Close releases the store directory lock.
func (s *Store) Close() error {
	if err := s.flk.Unlock(); err != nil {
		return fmt.Errorf("unlocking store directory: %w", err)
	}
	return nil
}

// Save writes the full record, replacing any prior record with the same id.
// A missing id is generated, a missing title derived, a zero timestamp
// stamped. Returns the resolved id and title.
func (s *Store) Save(ctx context.Context, sess Session) (id, title string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	if sess.ID == "" {
		sess.ID = uuid.New().String()
	} else if _, err := uuid.Parse(sess.ID); err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrInvalidID, sess.ID, err)
	}
	if sess.Title == "" {
		sess.Title = DeriveTitle(sess.Turns)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshaling session %s: %w", sess.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(sess.ID, data); err != nil {
		return "", "", err
	}

	s.logger.Debug("saved session", "id", sess.ID, "turns", len(sess.Turns))
	return sess.ID, sess.Title, nil
}

// writeAtomic publishes data under <id>.json via temp file + rename.
func (s *Store) writeAtomic(id string, data []byte) error {
	final := s.recordPath(id)
	tmp, err := os.CreateTemp(s.dir, id+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing session %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing temp record: %w", err)
	}
	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("setting record permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("publishing session %s: %w", id, err)
	}
	return nil
}

// Get returns a fresh copy of the session with the given id.
// Returns ErrNotFound when no record exists and a wrapped ErrCorruptRecord
// when the record cannot be parsed.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}

	return &sess, nil
}

// List returns summaries of all sessions ordered by creation time, most
// recent first. Records that fail to parse are skipped with a warning rather
// than aborting the listing.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading store directory: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable session record", "file", e.Name(), "error", err)
			continue
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			// Corrupt records hide here on purpose: listing favors
			// availability. The warn log is what distinguishes this
			// from the record not existing at all.
			s.logger.Warn("skipping corrupt session record", "file", e.Name(), "error", err)
			continue
		}

		summaries = append(summaries, Summary{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			Model:     sess.Model,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}

// Delete removes the record for id. Returns ErrNotFound when absent, so a
// second delete of the same id fails.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.recordPath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting session %s: %w", id, err)
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}
