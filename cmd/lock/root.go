package lock

import (
	"encoding/hex"
	"fmt"
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/lockmgr"
	"github.com/ValentinKolb/dDoc/rpc/client"
	"github.com/spf13/cobra"
	"time"
)

var (
	rpcLockMgr        lockmgr.ILockManager
	acquireExpiration uint64

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations",
		PersistentPreRunE: setupLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [key]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [key] [ownerID]",
		Short: "Release a previously acquired lock",
		Long:  "Release a lock using the key and owner ID. The owner ID is the hex string returned by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}

	// isLockedCmd represents the is-locked command
	isLockedCmd = &cobra.Command{
		Use:   "is-locked [key]",
		Short: "Check whether a lock is held",
		Args:  cobra.ExactArgs(1),
		RunE:  runIsLocked,
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)
	LockCommands.AddCommand(isLockedCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	LockCommands.PersistentFlags().Int("shard", 200, util.WrapString("ID of the lock manager shard to connect to"))

	// Add flags specific to acquire
	acquireCmd.Flags().Uint64Var(&acquireExpiration, "expiration", 30, "Lock expiration in seconds (0 for no expiration)")
}

// setupLockClient initializes the lock manager client
func setupLockClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcLockMgr, err = client.NewRPCLockMgr(
		util.GetShardID(),
		*config,
		t,
		s,
	)

	return err
}

// runAcquire handles the acquire lock command
func runAcquire(_ *cobra.Command, args []string) error {
	key := args[0]

	acquired, ownerID, err := rpcLockMgr.AcquireLock(key, time.Duration(acquireExpiration)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %v", err)
	}

	if !acquired {
		fmt.Printf("acquired=false\n")
		return nil
	}

	// Convert owner ID to hex string for display
	fmt.Printf("acquired=true, ownerId=%s\n", hex.EncodeToString(ownerID))
	return nil
}

// runRelease handles the release lock command
func runRelease(_ *cobra.Command, args []string) error {
	key := args[0]

	ownerID, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid owner ID format: %v", err)
	}

	released, err := rpcLockMgr.ReleaseLock(key, ownerID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %v", err)
	}

	fmt.Printf("released=%v\n", released)
	return nil
}

// runIsLocked handles the is-locked command
func runIsLocked(_ *cobra.Command, args []string) error {
	locked, err := rpcLockMgr.IsLocked(args[0])
	if err != nil {
		return fmt.Errorf("failed to check lock: %v", err)
	}

	fmt.Printf("locked=%v\n", locked)
	return nil
}
