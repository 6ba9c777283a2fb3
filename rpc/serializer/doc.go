// Package serializer converts common.Message values to bytes and back for
// the RPC layer of dMX. All implementations satisfy IRPCSerializer and are
// stateless, so one instance can be shared by every goroutine.
//
// Implementations:
//
//   - binarySerializerImpl: Fixed 18 byte header (type, flags, owner, target,
//     clock) followed by the optional length prefixed Err and Meta fields.
//     Protocol messages never carry optional fields, so every REQUEST, ACK and
//     RELEASE is exactly one header long. Recommended for production use.
//
//   - jsonSerializerImpl: Human readable frames, useful when debugging with
//     the http transport.
//
//   - gobSerializerImpl: Go's gob encoding. Larger and slower than binary,
//     kept for compatibility.
//
// ByName resolves the value of the --serializer flag.
package serializer
