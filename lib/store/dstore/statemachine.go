package dstore

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMaschineFactory returns a function that can be used by dragenboat to create a new standmaschine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMaschineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding KVDB method.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		val, ok := fsm.database.Get(q.Key, q.Now)
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTHas:
		return fsm.database.Has(q.Key, q.Now), nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the KVDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	cmd := internal.Command{}
	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}
		entries[idx].Result = fsm.apply(&cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("Statemashine took long to update. Batch updated %d entries, took %.2fms:", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes a single command on the database
func (fsm *KVStateMachine) apply(cmd *internal.Command) sm.Result {
	applied := func(ok bool) sm.Result {
		if ok {
			return sm.Result{Value: uint64(store.RetCSuccess), Data: internal.ResultApplied}
		}
		return sm.Result{Value: uint64(store.RetCSuccess), Data: internal.ResultNotApplied}
	}

	switch cmd.Type {
	case internal.CommandTSet:
		fsm.database.Set(cmd.Key, cmd.Value, cmd.Now)
		return sm.Result{Value: uint64(store.RetCSuccess), Data: []byte(fmt.Sprintf("set: key=%s", cmd.Key))}
	case internal.CommandTSetE:
		fsm.database.SetE(cmd.Key, cmd.Value, cmd.Now, cmd.DeleteIn)
		return sm.Result{Value: uint64(store.RetCSuccess), Data: []byte(fmt.Sprintf("set: key=%s", cmd.Key))}
	case internal.CommandTSetIfUnset:
		return applied(fsm.database.SetEIfUnset(cmd.Key, cmd.Value, cmd.Now, cmd.DeleteIn))
	case internal.CommandTDelete:
		fsm.database.Delete(cmd.Key, cmd.Now)
		return sm.Result{Value: uint64(store.RetCSuccess), Data: []byte(fmt.Sprintf("deleted key=%s", cmd.Key))}
	case internal.CommandTDeleteIfValue:
		return applied(fsm.database.DeleteIfValue(cmd.Key, cmd.Value, cmd.Now))
	default:
		return sm.Result{
			Value: uint64(store.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy db snapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot restores the database from a snapshot.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
