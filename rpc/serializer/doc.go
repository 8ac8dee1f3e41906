// Package serializer encodes the request and response messages exchanged between
// lock clients and the server (see common.Message). All implementations satisfy
// IRPCSerializer, client and server of a connection must use the same one.
//
// Implementations:
//
//   - Binary (NewBinarySerializer): one byte message type, one flag byte that
//     marks which of key, count, timeout, error and ok are present, followed by
//     the present fields. A plain Lock request for a short name fits in a few
//     bytes. This is the default of the CLI.
//
//   - JSON (NewJSONSerializer): readable payloads, useful while debugging a
//     client in another language.
//
//   - GOB (NewGOBSerializer): encoding/gob with a fresh encoder per message. Slower
//     and larger than the others, kept for comparison in the benchmarks.
//
// Errors travel as text plus the numeric primitives.RetCode (ErrCode), so that
// errors.Is(err, primitives.ErrNotOwner) and friends work on the client side with
// every format.
//
// Serializers hold no state and can be shared between goroutines:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewRequest(common.MsgTMtxLock, "jobs"))
//	...
//	var resp common.Message
//	err = s.Deserialize(data, &resp)
package serializer
