package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/db"
	"github.com/ValentinKolb/dDoc/lib/db/engines/maple"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/store/dstore"
	"github.com/ValentinKolb/dDoc/lib/store/lstore"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the adapter that handles requests for the shard's backend
type serverShard struct {
	Type    common.ServerShardType
	Adapter IRPCServerAdapter
}

// RPCServer serves stores and lock managers over an RPC transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	mu       sync.Mutex
	nodeHost *dragonboat.NodeHost
	dbs      []db.KVDB
	metrics  *http.Server
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

// handle decodes a request, lets the shard's adapter answer it and encodes the response
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	if shard, ok := s.shards.Load(shardId); !ok {
		resp = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		resp = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		metrics.GetOrCreateCounter(fmt.Sprintf(`ddoc_rpc_requests_total{type=%q}`, msg.MsgType)).Inc()
		resp = shard.Adapter.Handle(&msg)
	}

	if resp.MsgType == common.MsgTError {
		metrics.GetOrCreateCounter(`ddoc_rpc_errors_total`).Inc()
	}

	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// newLocalStore creates a store backed by a fresh maple instance that is closed with the server
func (s *RPCServer) newLocalStore() store.IStore {
	return lstore.NewLocalStore(func() db.KVDB {
		d := maple.NewMapleDB(nil)
		s.mu.Lock()
		s.dbs = append(s.dbs, d)
		s.mu.Unlock()
		return d
	})
}

func (s *RPCServer) init() error {
	if s.config.LogLevel != "" {
		if err := common.InitLoggers(s.config.LogLevel); err != nil {
			return err
		}
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", s.config.String())

	// Only create the NodeHost if we have remote shards
	if s.config.HasRemoteShard() {
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.mu.Lock()
		s.nodeHost = nodeHost
		s.mu.Unlock()
	}

	timeout := time.Duration(s.config.TimeoutSecond) * time.Second
	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }

	// A single server can have any number of remote and local shards, each serving a store or a lock manager
	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("duplicate shard id %d", shardConfig.ShardID)
		}

		var backend store.IStore
		switch shardConfig.Type {
		case common.ShardTypeLocalIStore, common.ShardTypeLocalILockManager:
			backend = s.newLocalStore()
		case common.ShardTypeRemoteIStore, common.ShardTypeRemoteILockManager:
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMaschineFactory(dbFactory), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}
			backend = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout, nil)
		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}

		var adapter IRPCServerAdapter
		if shardConfig.Type == common.ShardTypeLocalILockManager || shardConfig.Type == common.ShardTypeRemoteILockManager {
			adapter = NewLockManagerServerAdapter(lockmgr.NewLockManager(backend))
		} else {
			adapter = NewIStoreServerAdapter(backend)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{Type: shardConfig.Type, Adapter: adapter})
		Logger.Infof("created %s for shard %d", shardConfig.Type, shardConfig.ShardID)
	}

	if s.config.MetricsEndpoint != "" {
		s.startMetricsEndpoint()
	}

	s.transport.RegisterHandler(s.handle)

	Logger.Infof("dDoc setup completed successfully")
	return nil
}

// startMetricsEndpoint serves all VictoriaMetrics metrics of the process in prometheus format
func (s *RPCServer) startMetricsEndpoint() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	srv := &http.Server{
		Addr:              s.config.MetricsEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.metrics = srv
	s.mu.Unlock()

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
}

// Serve initializes the shards and serves requests until Close is called
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		s.Close()
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport, the metrics endpoint and all shards
func (s *RPCServer) Close() {
	if err := s.transport.Close(); err != nil {
		Logger.Warningf("failed to close transport: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.metrics.Shutdown(ctx)
		cancel()
		s.metrics = nil
	}

	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}

	for _, d := range s.dbs {
		_ = d.Close()
	}
	s.dbs = nil
}
