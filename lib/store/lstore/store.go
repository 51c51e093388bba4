package lstore

import (
	"github.com/ValentinKolb/dDoc/lib/clock"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/store"
	"time"
)

type storeImpl struct {
	db    db.KVDB
	clock clock.Clock
}

// Option configures the local store
type Option func(*storeImpl)

// WithClock sets the clock used to stamp operations (default clock.Real)
func WithClock(c clock.Clock) Option {
	return func(s *storeImpl) {
		s.clock = clock.OrReal(c)
	}
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// This works by using the maple engine from the db package directly.
func NewLocalStore(factory store.DBFactory, opts ...Option) store.IStore {
	s := &storeImpl{
		db:    factory(),
		clock: clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now returns the current time of the store clock in unix nanoseconds
func (s *storeImpl) now() int64 {
	return s.clock.Now().UnixNano()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	s.db.Set(key, value, s.now())
	return nil
}

func (s *storeImpl) SetE(key string, value []byte, deleteIn time.Duration) error {
	s.db.SetE(key, value, s.now(), int64(deleteIn))
	return nil
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, deleteIn time.Duration) (bool, error) {
	return s.db.SetEIfUnset(key, value, s.now(), int64(deleteIn)), nil
}

func (s *storeImpl) Delete(key string) error {
	s.db.Delete(key, s.now())
	return nil
}

func (s *storeImpl) DeleteIfValue(key string, value []byte) (bool, error) {
	return s.db.DeleteIfValue(key, value, s.now()), nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	val, ok := s.db.Get(key, s.now())
	return val, ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	return s.db.Has(key, s.now()), nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
