package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey     byte = 1 << 0
	hasCount   byte = 1 << 1
	hasTimeout byte = 1 << 2
	hasOk      byte = 1 << 3
	hasErr     byte = 1 << 4
	hasErrCode byte = 1 << 5
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		pos = putString(result, pos, msg.Key)
	}

	// Handle Count (two's complement, negative counts survive the round trip)
	if msg.Count != 0 {
		flags |= hasCount
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.Count))
		pos += 8
	}

	// Handle Timeout
	if msg.Timeout > 0 {
		flags |= hasTimeout
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Timeout)
		pos += 8
	}

	// Handle Ok, the flag alone carries the value
	if msg.Ok {
		flags |= hasOk
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		pos = putString(result, pos, msg.Err)
	}

	// Handle ErrCode
	if msg.ErrCode != 0 {
		flags |= hasErrCode
		result[pos] = msg.ErrCode
		pos += 1
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2
	var err error

	// Read Key if present
	msg.Key = ""
	if flags&hasKey != 0 {
		if msg.Key, pos, err = readString(data, pos, "key"); err != nil {
			return err
		}
	}

	// Read Count if present
	msg.Count = 0
	if flags&hasCount != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for count")
		}
		msg.Count = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
	}

	// Read Timeout if present
	msg.Timeout = 0
	if flags&hasTimeout != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for timeout")
		}
		msg.Timeout = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}

	msg.Ok = flags&hasOk != 0

	// Read Err if present
	msg.Err = ""
	if flags&hasErr != 0 {
		if msg.Err, pos, err = readString(data, pos, "error"); err != nil {
			return err
		}
	}

	// Read ErrCode if present
	msg.ErrCode = 0
	if flags&hasErrCode != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for error code")
		}
		msg.ErrCode = data[pos]
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Key != "" {
		size += 4 + len(msg.Key) // 4 bytes for length + key string
	}
	if msg.Count != 0 {
		size += 8 // int64
	}
	if msg.Timeout > 0 {
		size += 8 // uint64
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err) // 4 bytes for length + error string
	}
	if msg.ErrCode != 0 {
		size += 1
	}

	return size
}

// putString writes a length prefixed string at pos and returns the next position
func putString(buf []byte, pos int, s string) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(s)))
	pos += 4
	copy(buf[pos:pos+len(s)], s)
	return pos + len(s)
}

// readString reads a length prefixed string at pos
func readString(data []byte, pos int, field string) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(data) {
		return "", pos, fmt.Errorf("data too short for %s data", field)
	}
	return string(data[pos : pos+n]), pos + n, nil
}
