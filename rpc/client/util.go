package client

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation if an RPC client
// Used by the RPCStore and RPCLockMgr with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends a request and returns the response.
// Transport failures are returned as *store.Error with code RetCUnavailable, errors reported
// by the server keep the code they were sent with (see common.Message.Error).
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("rpc %s: failed to serialize request: %w", req.MsgType, err)
	}

	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		Logger.Debugf("rpc %s on shard %d failed: %v", req.MsgType, a.shardId, err)
		return nil, unavailable(req.MsgType, err)
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("rpc %s: failed to deserialize response: %w", req.MsgType, err)
	}

	if err := resp.Error(); err != nil {
		return nil, err
	}

	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("rpc %s: unexpected response type %s", req.MsgType, resp.MsgType)
	}

	return resp, nil
}
