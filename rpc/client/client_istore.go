package client

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"time"
)

// NewRPCStore creates a store.IStore that forwards every call to the given shard of a server.
// The transport is connected with config before the store is returned.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Set(key string, value []byte) error {
	_, err := i.invoke(common.NewSetRequest(key, value))
	return err
}

func (i *rpcStore) SetE(key string, value []byte, deleteIn time.Duration) error {
	_, err := i.invoke(common.NewSetERequest(key, value, deleteIn))
	return err
}

func (i *rpcStore) SetEIfUnset(key string, value []byte, deleteIn time.Duration) (bool, error) {
	resp, err := i.invoke(common.NewSetEIfUnsetRequest(key, value, deleteIn))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) Delete(key string) error {
	_, err := i.invoke(common.NewDeleteRequest(key))
	return err
}

func (i *rpcStore) DeleteIfValue(key string, value []byte) (bool, error) {
	resp, err := i.invoke(common.NewDeleteIfValueRequest(key, value))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) Get(key string) ([]byte, bool, error) {
	resp, err := i.invoke(common.NewGetRequest(key))
	if err != nil {
		return nil, false, err
	}
	if resp.Ok && resp.Value == nil {
		// empty values may arrive as nil (json)
		return []byte{}, true, nil
	}
	return resp.Value, resp.Ok, nil
}

func (i *rpcStore) Has(key string) (bool, error) {
	resp, err := i.invoke(common.NewHasRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) GetDBInfo() (db.DatabaseInfo, error) {
	resp, err := i.invoke(common.NewGetDBInfoRequest())
	if err != nil {
		return db.DatabaseInfo{}, err
	}

	var info db.DatabaseInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("rpc %s: invalid db info: %w", resp.MsgType, err)
	}
	return info, nil
}

// unavailable wraps a transport failure into a store error
func unavailable(msgType common.MessageType, err error) error {
	return store.NewError(store.RetCUnavailable, fmt.Sprintf("rpc %s: %v", msgType, err))
}
