package serializer

import "github.com/ValentinKolb/dSync/rpc/common"

// IRPCSerializer turns lock requests and their responses into frame payloads and
// back. Implementations are stateless.
type IRPCSerializer interface {
	// Serialize encodes msg. Fields at their zero value may be left out.
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg. Every field of msg is overwritten, so a
	// Message can be reused for the next frame of a connection.
	Deserialize(b []byte, msg *common.Message) error
}
