// Package tcp implements the TCP flavour of the framed RPC transport. It only
// provides the connectors (dialing, listening and socket options from
// common.TCPConf and common.SocketConf); framing, pooling and retries come
// from the base package.
//
// The default server buffer size is 512 KB.
package tcp
