package localfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mindtastic/authuser"
	"github.com/mindtastic/authuser/log"
)

// Ensure that LocalFileStore implements the authuser.ReadWriteStore interface
var _ authuser.ReadWriteStore = (*LocalFileStore)(nil)

const defaultFlushInterval = 10 * time.Second

var ErrStoreClosed = errors.New("store is closed")

// LocalFileStore keeps default accounts in memory and persists them to a JSON
// file at regular intervals. The file maps service keys to accounts, e.g.
// {"Meet":"1","Mail":"2"}.
// It is safe for concurrent access.
type LocalFileStore struct {
	mu            sync.RWMutex
	accounts      map[string]string
	flushInterval time.Duration
	stopped       bool
	shutdown      sync.Once
	stop          chan struct{}
	dbPath        string // Only set if persistence is enabled
}

// New creates a new LocalFileStore.
// After creating a new LocalFileStore lfs, InitializePersistence should be called to load any existing data or create a new
// store on disk. Not doing so will cause lfs to keep data only in memory and not persist it to disk.
func New() *LocalFileStore {
	return &LocalFileStore{
		accounts:      make(map[string]string),
		flushInterval: defaultFlushInterval,
		stop:          make(chan struct{}),
	}
}

// InitializePersistence initializes the persistence layer of LocalFileStore.
// dbpath denotes the path to a data file which will be loaded.
// If it does not exist, it will be created.
// If dbpath is empty, LocalFileStore will not be initialized with persistence and all data is stored in memory only.
func (l *LocalFileStore) InitializePersistence(dbpath string) error {
	if dbpath == "" {
		return nil
	}
	dbFile, err := os.Open(dbpath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("error opening file: %w", err)
		}
		// Ensure path
		p := filepath.Dir(dbpath)
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("error creating path %s: %w", p, err)
		}
		f, err := os.Create(dbpath)
		if err != nil {
			return fmt.Errorf("error creating file %s: %w", dbpath, err)
		}
		dbFile = f
	}
	defer dbFile.Close()

	loaded := make(map[string]string)
	if err := json.NewDecoder(dbFile).Decode(&loaded); err != nil && err != io.EOF {
		return fmt.Errorf("error decoding existing database file %s: %w", dbpath, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range loaded {
		if _, err := authuser.ParseService(k); err != nil {
			log.Warnf("ignoring account for unknown service %q in %s", k, dbpath)
			continue
		}
		l.accounts[k] = v
	}
	l.dbPath = dbpath
	go l.flushAtInterval(l.flushInterval)
	return nil
}

func (l *LocalFileStore) flushAtInterval(i time.Duration) {
	t := time.NewTicker(i)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := l.flush(); err != nil {
				log.Errorf("error flushing accounts: %v", err)
			}
		case <-l.stop:
			return
		}
	}
}

// flush writes the current state to disk. Writers are blocked while it runs.
func (l *LocalFileStore) flush() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.dbPath == "" { // Persistence not enabled.
		return nil
	}
	dd, err := json.Marshal(l.accounts)
	if err != nil {
		return fmt.Errorf("error encoding data in store: %w", err)
	}
	if err := os.WriteFile(l.dbPath, dd, 0o600); err != nil {
		return fmt.Errorf("error writing data file %s: %w", l.dbPath, err)
	}
	return nil
}

// Shutdown gracefully stops the LocalFileStore, ensuring that data is persisted to disk one last time.
// After Shutdown is called, Get, Set and Delete immediately return ErrStoreClosed.
// A Closed Store cannot be reused.
func (l *LocalFileStore) Shutdown() error {
	var err error
	l.shutdown.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		close(l.stop)
		err = l.flush()
	})
	return err
}

// Set stores the default account for svc in memory. It will be flushed to disk on the next interval.
func (l *LocalFileStore) Set(_ context.Context, svc authuser.Service, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrStoreClosed
	}
	l.accounts[svc.Key()] = account
	return nil
}

// Delete removes the default account for svc. Deleting an absent account is not an error.
func (l *LocalFileStore) Delete(_ context.Context, svc authuser.Service) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrStoreClosed
	}
	delete(l.accounts, svc.Key())
	return nil
}

// Get retrieves the default account for svc. It returns authuser.ErrNotFound if none is set.
func (l *LocalFileStore) Get(_ context.Context, svc authuser.Service) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return "", ErrStoreClosed
	}
	a, ok := l.accounts[svc.Key()]
	if !ok {
		return "", fmt.Errorf("could not get account for %s: %w", svc, authuser.ErrNotFound)
	}
	return a, nil
}
