// Package logfile is an append-only, log based account store. Every write
// appends a checksummed record; reads replay the log and keep the last record
// for the requested service.
package logfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mindtastic/authuser"
	"github.com/mindtastic/authuser/log"
)

// Ensure that Store implements the authuser.ReadWriteStore interface
var _ authuser.ReadWriteStore = (*Store)(nil)

const (
	logFileName = "accounts.log"
	// Accounts are short identifiers; anything larger is a misuse.
	defaultMaxRecordSize = 4 << 10
)

// Store represents a persistent, append only log based account store
type Store struct {
	// Path of the underlying logfile
	storagePath string
	// Maximum allowed size for a single record
	maxRecordSize int
	// Set the sync flag to actually write to disk (using sync systemcall) after each write.
	sync bool

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithSync makes every write wait for the file to reach stable storage.
func WithSync() Option {
	return func(s *Store) { s.sync = true }
}

// NewStore opens (creating if necessary) the log in storeDir.
func NewStore(storeDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating store dir %s: %w", storeDir, err)
	}
	p := filepath.Join(storeDir, logFileName)

	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("error opening db file %s: %w", p, err)
	}
	f.Close()

	s := &Store{
		storagePath:   p,
		maxRecordSize: defaultMaxRecordSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Get returns the account last written for svc, or an error wrapping
// authuser.ErrNotFound if none was written or it was deleted. A corrupt log
// is reported as an error, not as a missing account.
func (s *Store) Get(ctx context.Context, svc authuser.Service) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.storagePath)
	if err != nil {
		return "", fmt.Errorf("failed to open db file %v: %w", s.storagePath, err)
	}
	defer f.Close()

	key := svc.Key()
	var found *record
	sc := newScanner(f, s.maxRecordSize)
	for sc.Scan() {
		if r := sc.record(); r.key == key {
			found = r
		}
	}

	if err := sc.Err(); err != nil {
		log.Errorf("error encountered on reading db: %v", err)
		return "", fmt.Errorf("failed to read db file %v: %w", s.storagePath, err)
	}

	if found == nil || found.isTombstone() {
		return "", fmt.Errorf("no account for %s: %w", svc, authuser.ErrNotFound)
	}

	return found.account, nil
}

// Set appends a record making account the default for svc.
func (s *Store) Set(ctx context.Context, svc authuser.Service, account string) error {
	return s.append(ctx, newValue(svc.Key(), account))
}

// Delete appends a tombstone for svc.
func (s *Store) Delete(ctx context.Context, svc authuser.Service) error {
	return s.append(ctx, newTombstone(svc.Key()))
}

func (s *Store) append(ctx context.Context, r *record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.size() > s.maxRecordSize {
		return NewBadRequestError(fmt.Sprintf("value too big. max. allowed size is: %v (got: %v)", s.maxRecordSize, r.size()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.storagePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open db file %v for writing: %w", s.storagePath, err)
	}
	defer f.Close()

	n, err := r.writeTo(f)
	if err != nil {
		return fmt.Errorf("failed to write record to file %v: %w", s.storagePath, err)
	}
	log.Debugf("wrote record of %d bytes for %s", n, r.key)

	if s.sync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync file %v: %w", s.storagePath, err)
		}
	}

	return f.Close()
}
