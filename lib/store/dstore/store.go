package dstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/clock"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the RemoteStore interface.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
	clock   clock.Clock
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes. Commands are stamped with the time of c (nil = wall clock).
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration, c clock.Clock) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
		clock:   clock.OrReal(c),
	}
}

func (s *storeImpl) now() int64 {
	return s.clock.Now().UnixNano()
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns the result data of the state machine, or a *store.Error.
func (s *storeImpl) write(cmd internal.Command) ([]byte, error) {
	cmd.Now = s.now()
	data := cmd.Serialize()

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, data)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return nil, store.NewError(store.RetCUnavailable, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return nil, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, store.NewError(store.RetCUnavailable, "timeout")
}

// writeConditional sends a conditional command and reports whether the state machine applied it
func (s *storeImpl) writeConditional(cmd internal.Command) (bool, error) {
	data, err := s.write(cmd)
	if err != nil {
		return false, err
	}
	return bytes.Equal(data, internal.ResultApplied), nil
}

// read is a generic helper function queries the statemachine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragenboat) by default to Query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// Is the read operation fails due to a system busy error, the function retries up to 5 times.
//
// It returns the response of type R and a error (nil on success).
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	q.Now = r.now()
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the standmaschine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var rse *store.Error
			if errors.As(err, &rse) {
				return zero, rse
			}
			return zero, store.NewError(store.RetCUnavailable, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCUnavailable, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	_, err := s.write(internal.Command{
		Type:  internal.CommandTSet,
		Key:   key,
		Value: value,
	})
	return err
}

func (s *storeImpl) SetE(key string, value []byte, deleteIn time.Duration) error {
	_, err := s.write(internal.Command{
		Type:     internal.CommandTSetE,
		Key:      key,
		Value:    value,
		DeleteIn: int64(deleteIn),
	})
	return err
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, deleteIn time.Duration) (bool, error) {
	return s.writeConditional(internal.Command{
		Type:     internal.CommandTSetIfUnset,
		Key:      key,
		Value:    value,
		DeleteIn: int64(deleteIn),
	})
}

func (s *storeImpl) Delete(key string) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTDelete,
		Key:  key,
	})
	return err
}

func (s *storeImpl) DeleteIfValue(key string, value []byte) (bool, error) {
	return s.writeConditional(internal.Command{
		Type:  internal.CommandTDeleteIfValue,
		Key:   key,
		Value: value,
	})
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type: internal.QueryTGet,
		Key:  key,
	}, false)
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	return read[bool](s, internal.Query{
		Type: internal.QueryTHas,
		Key:  key,
	}, false)
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return read[db.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}
