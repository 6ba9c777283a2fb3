package server

import (
	"fmt"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/ValentinKolb/dMX/rpc/serializer"
	"github.com/ValentinKolb/dMX/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"os/signal"
	"runtime"
	"syscall"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server for the process config.NodeID.
// Protocol messages are pushed into inbox, status queries are answered with
// the snapshot returned by status.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//		inbox,
//		process.Engine().Snapshot,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	inbox *util.Mailbox[mutex.Message],
	status func() mutex.Snapshot,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server for process %d", config.NodeID)
	Logger.Debugf("%s", config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		protocol:   NewProtocolServerAdapter(config.NodeID, len(config.Peers), inbox),
		status:     NewStatusServerAdapter(config.NodeID, status),
	}
}

// RPCServer receives the messages of the peers of one process
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	protocol   IRPCServerAdapter
	status     IRPCServerAdapter
}

// Serve registers the request handler and listens until Close is called.
// After Close it returns transport.ErrServerClosed.
func (s *RPCServer) Serve() error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	s.transport.RegisterHandler(s.handle)
	return s.transport.Listen(s.config)
}

// Close stops the transport
func (s *RPCServer) Close() error {
	return s.transport.Close()
}

// handle decodes a request, dispatches it to the matching adapter and
// encodes the response
func (s *RPCServer) handle(groupID uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	if groupID != s.config.GroupID {
		respMsg = common.NewErrorResponse(fmt.Sprintf("group %d not served (serving group %d)", groupID, s.config.GroupID))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		switch {
		case msg.IsProtocol():
			respMsg = s.protocol.Handle(&msg)
		case msg.MsgType == common.MsgTStatus:
			respMsg = s.status.Handle(&msg)
		default:
			respMsg = common.NewErrorResponse(fmt.Sprintf("unsupported message type: %s", msg.MsgType))
		}
	}

	if respMsg.MsgType == common.MsgTError {
		Logger.Warningf("Rejected request (group %d): %s", groupID, respMsg.Err)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("Failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}
