package session

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"
	"sort"
	"sync"
	"time"
)

var (
	// ErrCompleted is returned when a session is used after Commit or Rollback started
	ErrCompleted = errors.New("session already committed or rolled back")
	// ErrConcurrency is returned by Commit when a staged key was changed by someone else
	ErrConcurrency = errors.New("concurrent modification detected")
	// ErrCommitLockTimeout is returned by Commit when a commit lock could not be acquired in time
	ErrCommitLockTimeout = errors.New("commit lock not acquired")

	log = logger.GetLogger("session")
)

const (
	keyPrefix        = "uow/"
	versionSuffix    = ":version"
	commitLockSuffix = ":commit"
)

// dataKey is the store key of the committed data of key
func dataKey(key string) string {
	return keyPrefix + key
}

// Callback is run after the session committed or failed to commit
type Callback func(ctx context.Context) error

// Options configures a session
type Options struct {
	LockTimeout    time.Duration // Max time to wait for a commit lock (default 10s)
	LockExpiration time.Duration // Max time a commit lock is held (default 10s)
}

// DefaultOptions returns the default session options
func DefaultOptions() Options {
	return Options{
		LockTimeout:    10 * time.Second,
		LockExpiration: 10 * time.Second,
	}
}

type state uint8

const (
	stateOpen state = iota
	stateCommitting
	stateCommitted
	stateFailed
	stateRolledBack
)

type stagedWrite struct {
	data             []byte
	version          string // version written on commit
	expectedVersion  string // committed version seen when the key was staged first
	checkConcurrency bool
}

type registration struct {
	key string
	fn  Callback
}

// Session is a unit of work: writes are staged in memory and applied to the store on Commit.
// Callbacks registered with AfterCommitSuccess run once after a successful commit.
type Session struct {
	id    string
	store store.IStore
	lock  lockmgr.IDistributedLock
	opts  Options

	items *xsync.MapOf[string, any]

	mu        sync.Mutex
	state     state
	staged    map[string]*stagedWrite
	onSuccess []registration
	onFailure []registration
	seen      map[string]struct{} // keys with a success registration
	seenFail  map[string]struct{} // keys with a failure registration
}

// New creates a new open session on the given store. Commit locks are taken with lock.
func New(s store.IStore, lock lockmgr.IDistributedLock, opts Options) *Session {
	def := DefaultOptions()
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = def.LockTimeout
	}
	if opts.LockExpiration <= 0 {
		opts.LockExpiration = def.LockExpiration
	}
	return &Session{
		id:       uuid.NewString(),
		store:    s,
		lock:     lock,
		opts:     opts,
		items:    xsync.NewMapOf[string, any](),
		staged:   make(map[string]*stagedWrite),
		seen:     make(map[string]struct{}),
		seenFail: make(map[string]struct{}),
	}
}

// ID returns the unique id of the session
func (s *Session) ID() string {
	return s.id
}

// Item returns the value stored for key in the session item bag, calling create if there is none.
func (s *Session) Item(key string, create func() any) any {
	v, _ := s.items.LoadOrCompute(key, create)
	return v
}

// --------------------------------------------------------------------------
// Staged data
// --------------------------------------------------------------------------

// Load returns the data and version for key. Staged writes of this session are visible.
func (s *Session) Load(key string) ([]byte, string, bool, error) {
	s.mu.Lock()
	w, ok := s.staged[key]
	s.mu.Unlock()
	if ok {
		return w.data, w.version, true, nil
	}
	return LoadCommitted(s.store, key)
}

// Reader reads committed data outside of a session
type Reader struct {
	store store.IStore
}

// NewReader creates a reader for the data committed by sessions on st
func NewReader(st store.IStore) *Reader {
	return &Reader{store: st}
}

// Load returns the committed data and version for key
func (r *Reader) Load(key string) ([]byte, string, bool, error) {
	return LoadCommitted(r.store, key)
}

// LoadCommitted reads the committed data and version for key from st
func LoadCommitted(st store.IStore, key string) ([]byte, string, bool, error) {
	data, ok, err := st.Get(dataKey(key))
	if err != nil || !ok {
		return nil, "", false, err
	}
	version, _, err := st.Get(dataKey(key) + versionSuffix)
	if err != nil {
		return nil, "", false, err
	}
	return data, string(version), true, nil
}

// Save stages data for key and returns the version it will have once committed.
// With checkConcurrency, Commit fails if the committed version of key is no longer
// expectedVersion. Saving a key twice keeps the expected version of the first call.
func (s *Session) Save(key string, data []byte, expectedVersion string, checkConcurrency bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return "", ErrCompleted
	}

	version := xid.New().String()
	if w, ok := s.staged[key]; ok {
		w.data = data
		w.version = version
		w.checkConcurrency = w.checkConcurrency || checkConcurrency
		return version, nil
	}

	s.staged[key] = &stagedWrite{
		data:             data,
		version:          version,
		expectedVersion:  expectedVersion,
		checkConcurrency: checkConcurrency,
	}
	return version, nil
}

// --------------------------------------------------------------------------
// Callbacks
// --------------------------------------------------------------------------

// AfterCommitSuccess registers fn to run after a successful commit. Only the first
// registration per key is kept. Callbacks run in registration order.
func (s *Session) AfterCommitSuccess(key string, fn Callback) error {
	return s.register(key, fn, s.seen, &s.onSuccess)
}

// AfterCommitFailure registers fn to run if the commit fails. Only the first
// registration per key is kept.
func (s *Session) AfterCommitFailure(key string, fn Callback) error {
	return s.register(key, fn, s.seenFail, &s.onFailure)
}

func (s *Session) register(key string, fn Callback, seen map[string]struct{}, list *[]registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return ErrCompleted
	}
	if _, ok := seen[key]; ok {
		return nil
	}
	seen[key] = struct{}{}
	*list = append(*list, registration{key: key, fn: fn})
	return nil
}

// --------------------------------------------------------------------------
// Commit and Rollback
// --------------------------------------------------------------------------

// Commit writes all staged data and runs the success callbacks.
//
// The commit locks of all staged keys are taken in sorted order, then the versions are
// verified and the data is written. If a write fails, the keys written so far are set back
// to their committed state, the failure callbacks run and the error is returned. Otherwise the success callbacks run in order and the first error stops
// the chain; the data stays committed in that case.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return ErrCompleted
	}
	s.state = stateCommitting
	staged := s.staged
	s.mu.Unlock()

	if err := s.write(ctx, staged); err != nil {
		s.finish(stateFailed)
		log.Warningf("session %s: commit failed: %v", s.id, err)
		for _, r := range s.onFailure {
			if cbErr := r.fn(ctx); cbErr != nil {
				log.Errorf("session %s: failure callback for %q: %v", s.id, r.key, cbErr)
			}
		}
		return err
	}
	s.finish(stateCommitted)

	for _, r := range s.onSuccess {
		if err := r.fn(ctx); err != nil {
			return fmt.Errorf("after commit callback for %q: %w", r.key, err)
		}
	}
	return nil
}

// Rollback discards all staged data. No callback runs.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return ErrCompleted
	}
	s.state = stateRolledBack
	s.staged = nil
	return nil
}

func (s *Session) finish(st state) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// write applies the staged data under the commit locks
func (s *Session) write(ctx context.Context, staged map[string]*stagedWrite) error {
	if len(staged) == 0 {
		return nil
	}

	keys := make([]string, 0, len(staged))
	for k := range staged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lockers := make([]*lockmgr.Locker, 0, len(keys))
	defer func() {
		for i := len(lockers) - 1; i >= 0; i-- {
			if err := lockers[i].Release(context.WithoutCancel(ctx)); err != nil {
				log.Warningf("session %s: release commit lock %q: %v", s.id, lockers[i].Name(), err)
			}
		}
	}()

	for _, k := range keys {
		locker, ok, err := s.lock.TryAcquireLock(ctx, dataKey(k)+commitLockSuffix, s.opts.LockTimeout, s.opts.LockExpiration)
		if err != nil {
			return fmt.Errorf("commit lock %q: %w", k, err)
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrCommitLockTimeout, k)
		}
		lockers = append(lockers, locker)
	}

	prior := make([]committed, len(keys))
	for i, k := range keys {
		c, err := s.readCommitted(k)
		if err != nil {
			return fmt.Errorf("read %q: %w", k, err)
		}
		prior[i] = c

		w := staged[k]
		if w.checkConcurrency && string(c.version) != w.expectedVersion {
			return fmt.Errorf("%w: %q is at version %q, expected %q", ErrConcurrency, k, c.version, w.expectedVersion)
		}
	}

	for i, k := range keys {
		w := staged[k]
		err := s.store.Set(dataKey(k), w.data)
		if err == nil {
			err = s.store.Set(dataKey(k)+versionSuffix, []byte(w.version))
		}
		if err != nil {
			// keys[:i+1] may be written, put the committed state back
			s.restore(keys[:i+1], prior[:i+1])
			return fmt.Errorf("write %q: %w", k, err)
		}
	}
	return nil
}

// committed is the state of a key before the commit
type committed struct {
	data         []byte
	dataFound    bool
	version      []byte
	versionFound bool
}

func (s *Session) readCommitted(key string) (committed, error) {
	var c committed
	var err error
	if c.data, c.dataFound, err = s.store.Get(dataKey(key)); err != nil {
		return c, err
	}
	c.version, c.versionFound, err = s.store.Get(dataKey(key) + versionSuffix)
	return c, err
}

// restore writes the state captured before the commit back. Keys that can not be
// restored are logged, they keep whatever the failed commit left.
func (s *Session) restore(keys []string, prior []committed) {
	put := func(key string, value []byte, found bool) error {
		if found {
			return s.store.Set(key, value)
		}
		return s.store.Delete(key)
	}
	for i, k := range keys {
		if err := put(dataKey(k), prior[i].data, prior[i].dataFound); err != nil {
			log.Errorf("session %s: restore %q: %v", s.id, k, err)
			continue
		}
		if err := put(dataKey(k)+versionSuffix, prior[i].version, prior[i].versionFound); err != nil {
			log.Errorf("session %s: restore version of %q: %v", s.id, k, err)
		}
	}
}
