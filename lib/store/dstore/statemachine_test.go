package dstore

import (
	"bytes"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"testing"
	"time"
)

func newTestStateMachine(t *testing.T) *KVStateMachine {
	t.Helper()
	factory := CreateStateMaschineFactory(func() db.KVDB { return maple.NewMapleDB(nil) })
	fsm := factory(1, 1).(*KVStateMachine)
	t.Cleanup(func() { _ = fsm.Close() })
	return fsm
}

func propose(t *testing.T, fsm *KVStateMachine, cmds ...internal.Command) []sm.Entry {
	t.Helper()
	entries := make([]sm.Entry, len(cmds))
	for i, c := range cmds {
		entries[i] = sm.Entry{Index: uint64(i + 1), Cmd: c.Serialize()}
	}
	res, err := fsm.Update(entries)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return res
}

func lookupGet(t *testing.T, fsm *KVStateMachine, key string, now int64) internal.QueryResult {
	t.Helper()
	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Key: key, Now: now})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return res.(internal.QueryResult)
}

func TestStateMachineConditionalCommands(t *testing.T) {
	fsm := newTestStateMachine(t)
	lease := int64(time.Second)

	res := propose(t, fsm,
		internal.Command{Type: internal.CommandTSetIfUnset, Key: "lock", Now: 0, DeleteIn: lease, Value: []byte("a")},
		internal.Command{Type: internal.CommandTSetIfUnset, Key: "lock", Now: 1, DeleteIn: lease, Value: []byte("b")},
		internal.Command{Type: internal.CommandTDeleteIfValue, Key: "lock", Now: 2, Value: []byte("b")},
		internal.Command{Type: internal.CommandTDeleteIfValue, Key: "lock", Now: 3, Value: []byte("a")},
	)

	want := [][]byte{internal.ResultApplied, internal.ResultNotApplied, internal.ResultNotApplied, internal.ResultApplied}
	for i, w := range want {
		if res[i].Result.Value != uint64(store.RetCSuccess) {
			t.Errorf("entry %d: unexpected code %d", i, res[i].Result.Value)
		}
		if !bytes.Equal(res[i].Result.Data, w) {
			t.Errorf("entry %d: got %v, want %v", i, res[i].Result.Data, w)
		}
	}
}

func TestStateMachineDeadlinesUseProposerTime(t *testing.T) {
	fsm := newTestStateMachine(t)

	propose(t, fsm, internal.Command{Type: internal.CommandTSetE, Key: "k", Now: 1000, DeleteIn: 500, Value: []byte("v")})

	if r := lookupGet(t, fsm, "k", 1499); !r.Ok || string(r.Value) != "v" {
		t.Fatalf("expected value before deadline, got %+v", r)
	}
	if r := lookupGet(t, fsm, "k", 1500); r.Ok {
		t.Fatalf("expected value to be gone at deadline, got %+v", r)
	}
}

func TestStateMachineInvalidInput(t *testing.T) {
	fsm := newTestStateMachine(t)

	entries := []sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1, 2}},
		{Index: 3, Cmd: (&internal.Command{Type: internal.CommandType(99), Key: "k"}).Serialize()},
	}
	res, err := fsm.Update(entries)
	if err != nil {
		t.Fatal(err)
	}

	wantCodes := []store.RetCode{store.RetCInvalidOperation, store.RetCInternalError, store.RetCInvalidOperation}
	for i, code := range wantCodes {
		if store.RetCode(res[i].Result.Value) != code {
			t.Errorf("entry %d: got code %s, want %s", i, store.RetCode(res[i].Result.Value), code)
		}
	}

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("expected error for invalid query type")
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	src := newTestStateMachine(t)
	propose(t, src, internal.Command{Type: internal.CommandTSet, Key: "k", Now: 1, Value: []byte("v")})

	var buf bytes.Buffer
	if err := src.SaveSnapshot(nil, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	dst := newTestStateMachine(t)
	if err := dst.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot: %v", err)
	}
	if r := lookupGet(t, dst, "k", 1); !r.Ok || string(r.Value) != "v" {
		t.Fatalf("expected restored value, got %+v", r)
	}
}
