// Package serializer converts common.Message values to bytes and back for the
// RPC transports.
//
// Key Components:
//
//   - IRPCSerializer: interface every serializer implements.
//
//   - binarySerializerImpl: compact format with a flag byte marking which fields
//     are present, so only those are encoded. It keeps the difference between a
//     nil and an empty Value and is the recommended choice for production.
//
//   - jsonSerializerImpl: human-readable encoding, useful for debugging. Empty
//     byte slices decode as nil.
//
// All serializers are stateless and safe for concurrent use. Deserialize never
// retains the input slice, so transports may reuse their read buffers.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewGetRequest("settings"))
//	// ... send data ...
//	var resp common.Message
//	err = s.Deserialize(received, &resp)
package serializer
