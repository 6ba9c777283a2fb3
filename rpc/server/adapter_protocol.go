package server

import (
	"fmt"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/ValentinKolb/dMX/rpc/common"
)

// NewProtocolServerAdapter creates the adapter for REQUEST, ACK and RELEASE
// messages addressed to process self in a group of peers. Accepted messages
// are pushed into inbox; the adapter never touches the engine itself.
func NewProtocolServerAdapter(self, peers int, inbox *util.Mailbox[mutex.Message]) IRPCServerAdapter {
	return &protocolServerAdapter{
		self:  self,
		peers: peers,
		inbox: inbox,
	}
}

type protocolServerAdapter struct {
	self  int
	peers int
	inbox *util.Mailbox[mutex.Message]
}

func (adapter *protocolServerAdapter) Handle(req *common.Message) (resp *common.Message) {
	if int(req.Target) != adapter.self {
		return common.NewErrorResponse(fmt.Sprintf("message for process %d delivered to process %d", req.Target, adapter.self))
	}

	owner := int(req.Owner)
	if owner < 0 || owner >= adapter.peers || owner == adapter.self {
		return common.NewErrorResponse(fmt.Sprintf("%s: %d", mutex.ErrUnknownPeer, owner))
	}

	msg, err := req.Protocol()
	if err != nil {
		return common.NewErrorResponse(err.Error())
	}

	if !adapter.inbox.Push(msg) {
		return common.NewErrorResponse("process is shutting down")
	}
	return common.NewDeliveredResponse(adapter.self)
}
