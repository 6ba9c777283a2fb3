package client

import (
	"fmt"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/ValentinKolb/dMX/rpc/serializer"
	"github.com/ValentinKolb/dMX/rpc/transport"
)

// NewRPCPeer connects to the process target.
// The config must contain the endpoint of target only (see ClientConfig.ForPeer).
func NewRPCPeer(
	target int,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCPeer, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RPCPeer{
		rpcClientAdapter: rpcClientAdapter{
			groupID:    config.GroupID,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		target: target,
	}, nil
}

// RPCPeer is the client side of one remote process
type RPCPeer struct {
	rpcClientAdapter
	target int
}

// Target returns the id of the remote process
func (p *RPCPeer) Target() int {
	return p.target
}

// Deliver sends a protocol message and returns once the remote process
// accepted it into its inbox
func (p *RPCPeer) Deliver(msg mutex.Message) error {
	req, err := common.NewProtocolMessage(msg, p.target)
	if err != nil {
		return err
	}

	resp, err := invokeRPCRequest(p.groupID, req, common.MsgTSuccess, p.transport, p.serializer)
	if err != nil {
		return err
	}

	if int(resp.Owner) != p.target {
		return fmt.Errorf("%w: delivery confirmed by process %d instead of %d", ErrRejected, resp.Owner, p.target)
	}
	return nil
}

// Status queries the engine snapshot of the remote process
func (p *RPCPeer) Status() (mutex.Snapshot, error) {
	resp, err := invokeRPCRequest(p.groupID, common.NewStatusRequest(), common.MsgTStatus, p.transport, p.serializer)
	if err != nil {
		return mutex.Snapshot{}, err
	}
	return resp.Snapshot()
}

// Close closes the connection
func (p *RPCPeer) Close() error {
	return p.transport.Close()
}
