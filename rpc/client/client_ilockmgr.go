package client

import (
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"time"
)

// NewRPCLockMgr creates a lockmgr.ILockManager that forwards every call to the given shard of a server.
// The transport is connected with config before the lock manager is returned.
func NewRPCLockMgr(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (lockmgr.ILockManager, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcLockMgr{
		rpcClientAdapter{
			shardId:    shardId,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcLockMgr struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the lockmgr package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcLockMgr) AcquireLock(key string, expiration time.Duration) (bool, []byte, error) {
	resp, err := i.invoke(common.NewAcquireRequest(key, expiration))
	if err != nil {
		return false, nil, err
	}
	return resp.Ok, resp.Value, nil
}

func (i *rpcLockMgr) ReleaseLock(key string, ownerID []byte) (bool, error) {
	resp, err := i.invoke(common.NewReleaseRequest(key, ownerID))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcLockMgr) IsLocked(key string) (bool, error) {
	resp, err := i.invoke(common.NewIsLockedRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}
