package server

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/common"
)

// NewIStoreServerAdapter creates an adapter that serves store requests from s
func NewIStoreServerAdapter(s store.IStore) IRPCServerAdapter {
	return &iStoreServerAdapterImpl{store: s}
}

type iStoreServerAdapterImpl struct {
	store store.IStore
}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message) *common.Message {
	if adapter.store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}
	s := adapter.store

	switch req.MsgType {
	case common.MsgTKVSet:
		return common.NewSetResponse(s.Set(req.Key, req.Value))
	case common.MsgTKVSetE:
		return common.NewSetEResponse(s.SetE(req.Key, req.Value, common.FromMillis(req.DeleteIn)))
	case common.MsgTKVSetEIfUnset:
		stored, err := s.SetEIfUnset(req.Key, req.Value, common.FromMillis(req.DeleteIn))
		return common.NewSetEIfUnsetResponse(stored, err)
	case common.MsgTKVDelete:
		return common.NewDeleteResponse(s.Delete(req.Key))
	case common.MsgTKVDeleteIfValue:
		deleted, err := s.DeleteIfValue(req.Key, req.Value)
		return common.NewDeleteIfValueResponse(deleted, err)
	case common.MsgTKVGet:
		val, ok, err := s.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVHas:
		ok, err := s.Has(req.Key)
		return common.NewHasResponse(ok, err)
	case common.MsgTKVGetDBInfo:
		info, err := s.GetDBInfo()
		if err != nil {
			return common.NewGetDBInfoResponse(nil, err)
		}
		b, err := json.Marshal(info)
		return common.NewGetDBInfoResponse(b, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
