package util

import (
	"fmt"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/serializer"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/ValentinKolb/dDoc/rpc/transport/tcp"
	"github.com/ValentinKolb/dDoc/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
	"sync"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. DDOC_TIMEOUT)
	EnvPrefix = "ddoc"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

var initOnce sync.Once

// InitConfig loads .env and .env.local and binds environment variables with the DDOC_ prefix.
// It is safe to call multiple times.
func InitConfig() {
	initOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(".env.local")

		viper.SetEnvPrefix(EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
	})
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// RPC client
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the dDoc server. Multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds, 0 disables keepalive (tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time in seconds, negative keeps the OS default (tcp only)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			RetryCount:             viper.GetInt("transport-retries"),
			Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.New(viper.GetString("serializer"))
}

// GetClientTransport creates a client transport based on configuration.
// Every RPC client needs its own transport.
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected tcp or unix)", viper.GetString("transport"))
	}
}

// GetServerTransport creates a server transport based on configuration
func GetServerTransport(bufferSize int) (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPServerTransport(bufferSize), nil
	case "unix":
		return unix.NewUnixServerTransport(bufferSize), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected tcp or unix)", viper.GetString("transport"))
	}
}

// --------------------------------------------------------------------------
// Document options
// --------------------------------------------------------------------------

// SetupDocumentFlags adds the document.Options flags to a command
func SetupDocumentFlags(cmd *cobra.Command) {
	defaults := document.DefaultOptions("default")

	cmd.PersistentFlags().Int("store-shard", 100, WrapString("ID of the store shard holding the distributed cache (and the durable copy)"))
	cmd.PersistentFlags().Int("lock-shard", 200, WrapString("ID of the lock manager shard"))
	cmd.PersistentFlags().String("cache-id-key", "", WrapString("Key of the version token (default ID_<cache-key>)"))
	cmd.PersistentFlags().Duration("lock-timeout", defaults.LockTimeout, WrapString("How long an update waits for the document lock"))
	cmd.PersistentFlags().Duration("lock-expiration", defaults.LockExpiration, WrapString("How long the document lock is held at most"))
	cmd.PersistentFlags().Duration("absolute-expiration", 0, WrapString("Lifetime of cache entries (0 = unlimited)"))
	cmd.PersistentFlags().Duration("sliding-expiration", 0, WrapString("Idle lifetime of memory cache entries (0 = unlimited)"))
	cmd.PersistentFlags().Bool("check-concurrency", false, WrapString("Fail durable commits if the document was changed concurrently"))
	cmd.PersistentFlags().Int("compress-threshold", defaults.CompressThreshold, WrapString("Compress snapshots from this size in bytes (0 = never)"))
	cmd.PersistentFlags().Bool("volatile", true, WrapString("Treat the document as volatile (cache only, updated under a distributed lock). If false, the durable copy is kept in the store shard"))
}

// GetDocumentOptions reads the document options for cacheKey from viper
func GetDocumentOptions(cacheKey string) (document.Options, error) {
	opts := document.Options{
		CacheKey:                        cacheKey,
		CacheIdKey:                      viper.GetString("cache-id-key"),
		LockTimeout:                     viper.GetDuration("lock-timeout"),
		LockExpiration:                  viper.GetDuration("lock-expiration"),
		AbsoluteExpirationRelativeToNow: viper.GetDuration("absolute-expiration"),
		SlidingExpiration:               viper.GetDuration("sliding-expiration"),
		CheckConcurrency:                viper.GetBool("check-concurrency"),
		CompressThreshold:               viper.GetInt("compress-threshold"),
		Volatile:                        viper.GetBool("volatile"),
	}.WithDefaults()

	return opts, opts.Validate()
}

// GetStoreShardID retrieves the configured store shard ID
func GetStoreShardID() uint64 {
	return uint64(viper.GetInt("store-shard"))
}

// GetLockShardID retrieves the configured lock shard ID
func GetLockShardID() uint64 {
	return uint64(viper.GetInt("lock-shard"))
}

// GetShardID retrieves the shard ID of single shard commands
func GetShardID() uint64 {
	return uint64(viper.GetInt("shard"))
}
