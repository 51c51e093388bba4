package common

import (
	"errors"
	"github.com/ValentinKolb/dDoc/lib/store"
	"testing"
	"time"
)

func TestMillis(t *testing.T) {
	testCases := []struct {
		name string
		in   time.Duration
		want uint64
	}{
		{"zero", 0, 0},
		{"negative", -time.Second, 0},
		{"sub millisecond rounds up", 10 * time.Microsecond, 1},
		{"seconds", 3 * time.Second, 3000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToMillis(tc.in); got != tc.want {
				t.Errorf("ToMillis(%s) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}

	if got := FromMillis(1500); got != 1500*time.Millisecond {
		t.Errorf("FromMillis(1500) = %s", got)
	}
}

func TestResponseErrors(t *testing.T) {
	t.Run("no error", func(t *testing.T) {
		if err := NewSetResponse(nil).Error(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("store error keeps its code", func(t *testing.T) {
		resp := NewGetResponse(nil, false, store.NewError(store.RetCInvalidOperation, "bad key"))
		var storeErr *store.Error
		if err := resp.Error(); !errors.As(err, &storeErr) {
			t.Fatalf("expected *store.Error, got %v", err)
		}
		if storeErr.Code != store.RetCInvalidOperation || storeErr.Msg != "bad key" {
			t.Errorf("unexpected error %+v", storeErr)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		err := NewReleaseResponse(false, errors.New("boom")).Error()
		var storeErr *store.Error
		if err == nil || errors.As(err, &storeErr) || err.Error() != "boom" {
			t.Errorf("expected plain error, got %v", err)
		}
	})

	t.Run("error response is unavailable", func(t *testing.T) {
		var storeErr *store.Error
		if err := NewErrorResponse("shard not found").Error(); !errors.As(err, &storeErr) || storeErr.Code != store.RetCUnavailable {
			t.Errorf("expected unavailable store error, got %v", err)
		}
	})
}

func TestMessageTypeJSON(t *testing.T) {
	for msgType := MsgTSuccess; msgType <= MsgTLCKIsLocked; msgType++ {
		b, err := msgType.MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		var got MessageType
		if err := got.UnmarshalJSON(b); err != nil {
			t.Fatalf("%s: %v", msgType, err)
		}
		if got != msgType {
			t.Errorf("expected %s, got %s", msgType, got)
		}
	}
}

func TestParseShardType(t *testing.T) {
	for name, want := range map[string]ServerShardType{
		"lstore":           ShardTypeLocalIStore,
		"dstore":           ShardTypeRemoteIStore,
		"lockmgr(lstore)":  ShardTypeLocalILockManager,
		" lockmgr(dstore)": ShardTypeRemoteILockManager,
	} {
		got, err := ParseShardType(name)
		if err != nil || got != want {
			t.Errorf("ParseShardType(%q) = %q, %v", name, got, err)
		}
	}
	if _, err := ParseShardType("redis"); err == nil {
		t.Error("expected an error for an unknown shard type")
	}
}
