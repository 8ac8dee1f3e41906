package serializer

import (
	"bytes"
	"encoding/gob"
	"github.com/ValentinKolb/dSync/rpc/common"
)

// NewGOBSerializer creates a serializer using encoding/gob. Each payload is
// decoded on its own and carries the full type description, which makes it the
// largest of the three formats.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

type gobSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob does not transmit zero values, a reused message would keep e.g. Ok or ErrCode
	*msg = common.Message{}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(msg)
}
