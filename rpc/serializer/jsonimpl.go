package serializer

import (
	"encoding/json"
	"github.com/ValentinKolb/dSync/rpc/common"
)

// NewJSONSerializer creates a serializer that writes one JSON object per message,
// using the field names of common.Message (msg_type, key, count, ...).
// Handy when watching the traffic of a connection.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// omitempty fields missing from b must not survive from the previous message
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}
