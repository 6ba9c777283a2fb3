package client

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/ValentinKolb/dMX/rpc/serializer"
	"github.com/ValentinKolb/dMX/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// ErrRejected wraps error responses of the remote process. Retrying a
// rejected request does not help.
var ErrRejected = errors.New("rpc: request rejected")

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	groupID    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used by all RPC clients to send requests.
// It serializes req, sends it for groupID and decodes the response. Error
// responses are returned as ErrRejected, responses of another type than expect
// as plain errors.
func invokeRPCRequest(groupID uint64, req *common.Message, expect common.MessageType, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := transport.Send(groupID, reqBytes)
	if err != nil {
		return nil, err
	}

	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC client - invalid response: %w", err)
	}

	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Err)
	}

	if resp.MsgType != expect {
		return nil, fmt.Errorf("RPC client - unexpected message type: %s, expected %s", resp.MsgType, expect)
	}

	return resp, nil
}
