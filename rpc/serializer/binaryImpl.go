package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dMX/rpc/common"
)

// NewBinarySerializer creates a serializer using a compact fixed header
// followed by the optional fields that are present
func NewBinarySerializer() IRPCSerializer {
	return binarySerializerImpl{}
}

type binarySerializerImpl struct{}

// Layout of the fixed header:
//
//	[0]      MsgType
//	[1]      flags
//	[2:6]    Owner  (int32, big endian)
//	[6:10]   Target (int32, big endian)
//	[10:18]  Clock  (uint64, big endian)
//
// followed by length prefixed Err and Meta if their flag is set.
const headerSize = 18

// Bit flags to indicate which optional fields are present
const (
	hasErr  byte = 1 << 0
	hasMeta byte = 1 << 1
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	result[0] = byte(msg.MsgType)
	binary.BigEndian.PutUint32(result[2:6], uint32(msg.Owner))
	binary.BigEndian.PutUint32(result[6:10], uint32(msg.Target))
	binary.BigEndian.PutUint64(result[10:18], msg.Clock)

	var flags byte
	pos := headerSize

	if msg.Err != "" {
		flags |= hasErr
		pos = putBytes(result, pos, []byte(msg.Err))
	}

	if msg.Meta != nil {
		flags |= hasMeta
		pos = putBytes(result, pos, msg.Meta)
	}

	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header (%d bytes)", len(data))
	}

	msg.MsgType = common.MessageType(data[0])
	flags := data[1]
	msg.Owner = int32(binary.BigEndian.Uint32(data[2:6]))
	msg.Target = int32(binary.BigEndian.Uint32(data[6:10]))
	msg.Clock = binary.BigEndian.Uint64(data[10:18])

	pos := headerSize

	msg.Err = ""
	if flags&hasErr != 0 {
		field, next, err := readBytes(data, pos, "err")
		if err != nil {
			return err
		}
		msg.Err = string(field)
		pos = next
	}

	msg.Meta = nil
	if flags&hasMeta != 0 {
		field, next, err := readBytes(data, pos, "meta")
		if err != nil {
			return err
		}
		// copy, data belongs to a pooled transport buffer
		msg.Meta = append(make([]byte, 0, len(field)), field...)
		pos = next
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}
	return size
}

// putBytes writes a length prefixed field at pos and returns the next position
func putBytes(dst []byte, pos int, field []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(field)))
	pos += 4
	copy(dst[pos:pos+len(field)], field)
	return pos + len(field)
}

// readBytes reads a length prefixed field at pos
func readBytes(data []byte, pos int, name string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s length", name)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+n > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s data", name)
	}
	return data[pos : pos+n], pos + n, nil
}
