// Package unix implements the Unix domain socket flavour of the framed RPC
// transport, for clients on the same machine as the server. Framing, pooling
// and retries come from the base package.
//
// The default server buffer size is 64 KB.
package unix
