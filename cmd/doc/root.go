package doc

import (
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/cache"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore store.IStore
	rpcLock  lockmgr.IDistributedLock

	// DocumentCommands represents the document command group
	DocumentCommands = &cobra.Command{
		Use:               "doc",
		Short:             "Read and update documents",
		PersistentPreRunE: setupDocClients,
	}
)

func init() {
	// Add common RPC flags and the document options to the doc command
	util.SetupRPCClientFlags(DocumentCommands)
	util.SetupDocumentFlags(DocumentCommands)

	// Add subcommands
	DocumentCommands.AddCommand(getCmd)
	DocumentCommands.AddCommand(updateCmd)
	DocumentCommands.AddCommand(benchCmd)
}

// setupDocClients connects to the store shard and to the lock shard.
// Each client gets its own transport.
func setupDocClients(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	storeTransport, err := util.GetClientTransport()
	if err != nil {
		return err
	}
	if rpcStore, err = client.NewRPCStore(util.GetStoreShardID(), *config, storeTransport, s); err != nil {
		return err
	}

	lockTransport, err := util.GetClientTransport()
	if err != nil {
		return err
	}
	locks, err := client.NewRPCLockMgr(util.GetLockShardID(), *config, lockTransport, s)
	if err != nil {
		return err
	}
	rpcLock = lockmgr.NewDistributedLock(locks)

	return nil
}

// newUnitOfWork starts a session on the remote store
func newUnitOfWork() *session.Session {
	return session.New(rpcStore, rpcLock, session.DefaultOptions())
}

// newVolatileManager creates a manager for a volatile document kept in the remote cache
func newVolatileManager[T document.Document](opts document.Options, factory func() T) (*document.VolatileManager[T], error) {
	return document.NewVolatileManager(opts, factory,
		cache.NewDistributedCache(rpcStore), cache.NewMemoryCache[T](nil), rpcLock)
}

// newDurableManager creates a manager for a durable document, st provides the committed copy
func newDurableManager[T document.Document](opts document.Options, factory func() T, st document.Store) (*document.Manager[T], error) {
	return document.NewManager(opts, factory,
		cache.NewDistributedCache(rpcStore), cache.NewMemoryCache[T](nil), st)
}
