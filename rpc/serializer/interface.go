package serializer

import (
	"fmt"
	"github.com/ValentinKolb/dMX/rpc/common"
)

// IRPCSerializer converts wire messages to bytes and back
type IRPCSerializer interface {
	// Serialize encodes msg
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg, overwriting every field of msg
	Deserialize(b []byte, msg *common.Message) error
}

// ByName returns the serializer registered under name (json, gob or binary)
func ByName(name string) (IRPCSerializer, error) {
	switch name {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected json, gob or binary)", name)
	}
}
