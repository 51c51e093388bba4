// Package base implements the framed RPC transport independent of the network
// (TCP, Unix sockets). Protocol specific parts are plugged in through
// IClientConnector and IServerConnector.
//
// Every message travels in a frame of
//
//	[shardID:8][requestID:8][length:4][payload:length]
//
// so that many requests can be in flight on one connection and responses can
// arrive out of order.
//
// Client:
//
//   - Multiple connections per endpoint, chosen round robin.
//   - Responses are correlated to waiting requests by request id.
//   - Failed requests are retried with exponential backoff (RetryCount).
//   - A broken connection fails its pending requests and reconnects in the
//     background.
//
// Server:
//
//   - One goroutine per connection reads frames into pooled buffers.
//   - Requests are handled concurrently by at most WorkersPerConn workers per
//     connection, responses are written back under a per connection mutex.
//   - Close stops the accept loop and closes all open connections.
package base
