package server

import (
	"github.com/ValentinKolb/dDoc/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters.
// An adapter translates request messages to calls on the backend it was created for.
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response.
	// If an error occurs, it is set in the response.
	Handle(req *common.Message) (resp *common.Message)
}
