package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/gridRPC/rpc/common"
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
	hasCbID    byte = 1 << 0
	hasTid     byte = 1 << 1
	hasServant byte = 1 << 2
	hasMethod  byte = 1 << 3
	isErr      byte = 1 << 4
	hasErrMsg  byte = 1 << 5
	hasPayload byte = 1 << 6
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

// Serialize writes the layout:
//
//	flags(1) | signalLen(4) signal | [cbId(8)] [tid(8)] [servant] [method] [errMsg] [payload]
//
// where every string/byte field is length prefixed with a big endian uint32.
func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	var flags byte = 0
	pos := 1 // start after flags

	pos = putBytes(result, pos, []byte(msg.Signal))

	if msg.CbID > 0 {
		flags |= hasCbID
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.CbID)
		pos += 8
	}

	if msg.Tid > 0 {
		flags |= hasTid
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Tid)
		pos += 8
	}

	if msg.Servant != "" {
		flags |= hasServant
		pos = putBytes(result, pos, []byte(msg.Servant))
	}

	if msg.Method != "" {
		flags |= hasMethod
		pos = putBytes(result, pos, []byte(msg.Method))
	}

	if msg.Err {
		flags |= isErr
	}

	if msg.ErrMsg != "" {
		flags |= hasErrMsg
		pos = putBytes(result, pos, []byte(msg.ErrMsg))
	}

	// nil and empty payloads are distinguished
	if msg.Payload != nil {
		flags |= hasPayload
		pos = putBytes(result, pos, msg.Payload)
	}

	result[0] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// flags + signal length
	if len(data) < 5 {
		return fmt.Errorf("data too short for message header")
	}

	flags := data[0]
	pos := 1

	signal, pos, err := readBytes(data, pos, "signal")
	if err != nil {
		return err
	}
	if len(signal) == 0 {
		return fmt.Errorf("message without signal")
	}
	msg.Signal = string(signal)

	msg.CbID = 0
	if flags&hasCbID != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for cbId")
		}
		msg.CbID = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}

	msg.Tid = 0
	if flags&hasTid != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for tid")
		}
		msg.Tid = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}

	msg.Servant = ""
	if flags&hasServant != 0 {
		var v []byte
		if v, pos, err = readBytes(data, pos, "servant"); err != nil {
			return err
		}
		msg.Servant = string(v)
	}

	msg.Method = ""
	if flags&hasMethod != 0 {
		var v []byte
		if v, pos, err = readBytes(data, pos, "method"); err != nil {
			return err
		}
		msg.Method = string(v)
	}

	msg.Err = flags&isErr != 0

	msg.ErrMsg = ""
	if flags&hasErrMsg != 0 {
		var v []byte
		if v, pos, err = readBytes(data, pos, "errMsg"); err != nil {
			return err
		}
		msg.ErrMsg = string(v)
	}

	msg.Payload = nil
	if flags&hasPayload != 0 {
		var v []byte
		if v, pos, err = readBytes(data, pos, "payload"); err != nil {
			return err
		}
		// copy, the frame buffer may be reused by the transport
		msg.Payload = make([]byte, len(v))
		copy(msg.Payload, v)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for flags + length prefixed signal
	size := 1 + 4 + len(msg.Signal)

	if msg.CbID > 0 {
		size += 8
	}
	if msg.Tid > 0 {
		size += 8
	}
	if msg.Servant != "" {
		size += 4 + len(msg.Servant)
	}
	if msg.Method != "" {
		size += 4 + len(msg.Method)
	}
	if msg.ErrMsg != "" {
		size += 4 + len(msg.ErrMsg)
	}
	if msg.Payload != nil {
		size += 4 + len(msg.Payload)
	}

	return size
}

// putBytes writes a length prefixed field and returns the new position
func putBytes(dst []byte, pos int, v []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(v)))
	pos += 4
	copy(dst[pos:pos+len(v)], v)
	return pos + len(v)
}

// readBytes reads a length prefixed field. The returned slice aliases data.
func readBytes(data []byte, pos int, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(data) {
		return nil, pos, fmt.Errorf("data too short for %s data", field)
	}
	return data[pos : pos+n], pos + n, nil
}
