// Package client implements store.IStore and lockmgr.ILockManager on top of the
// RPC transport, so several processes can share one cache and lock backend
// served by the server package.
//
// Transport failures surface as *store.Error with code RetCUnavailable, errors
// raised by the server side store keep their original code. The document layer
// relies on this to fall back to the durable store when the cache is down.
//
// Usage:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:8080"},
//	    RetryCount: 3,
//	  },
//	}
//
//	st, err := client.NewRPCStore(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	locks, err := client.NewRPCLockMgr(200, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//
// Every client needs its own transport instance. All clients are safe for
// concurrent use.
package client
