package server

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/rpc/common"
)

// NewLockManagerServerAdapter creates an adapter that serves lock requests from locks
func NewLockManagerServerAdapter(locks lockmgr.ILockManager) IRPCServerAdapter {
	return &lockMgrServerAdapter{locks: locks}
}

type lockMgrServerAdapter struct {
	locks lockmgr.ILockManager
}

func (adapter *lockMgrServerAdapter) Handle(req *common.Message) *common.Message {
	if adapter.locks == nil {
		return common.NewErrorResponse("handler: lock manager is nil")
	}

	switch req.MsgType {
	case common.MsgTLCKAcquire:
		ok, ownerID, err := adapter.locks.AcquireLock(req.Key, common.FromMillis(req.DeleteIn))
		return common.NewAcquireResponse(ok, ownerID, err)
	case common.MsgTLCKRelease:
		ok, err := adapter.locks.ReleaseLock(req.Key, req.Value)
		return common.NewReleaseResponse(ok, err)
	case common.MsgTLCKIsLocked:
		locked, err := adapter.locks.IsLocked(req.Key)
		return common.NewIsLockedResponse(locked, err)
	default:
		return common.NewErrorResponse(fmt.Sprintf("RPC LockManagerAdapter - Unsupported message type: %s", req.MsgType))
	}
}
