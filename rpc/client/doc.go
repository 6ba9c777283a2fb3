// Package client implements the sending side of the RPC layer of dMX.
//
// An RPCPeer represents one remote process. Deliver sends a REQUEST, ACK or
// RELEASE and returns once the remote server pushed the message into the
// inbox of its process. The call is synchronous, so messages of one sender
// to one receiver arrive in send order. Status fetches the engine snapshot
// of the remote process (used by the status command).
//
// Error responses of the remote side are returned wrapped in ErrRejected;
// all other errors come from the transport and may succeed on a retry.
//
// Usage Example:
//
//	config := common.ClientConfig{
//		GroupID:       1,
//		TimeoutSecond: 5,
//		Transport:     common.ClientTransportConfig{RetryCount: 3},
//	}
//
//	peer, err := client.NewRPCPeer(2, config.ForPeer("localhost:7002"),
//		tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//		return err
//	}
//	defer peer.Close()
//
//	snapshot, err := peer.Status()
package client
