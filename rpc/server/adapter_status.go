package server

import (
	"fmt"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/rpc/common"
)

// NewStatusServerAdapter creates the adapter answering status queries with
// the snapshot returned by status
func NewStatusServerAdapter(self int, status func() mutex.Snapshot) IRPCServerAdapter {
	return &statusServerAdapter{
		self:   self,
		status: status,
	}
}

type statusServerAdapter struct {
	self   int
	status func() mutex.Snapshot
}

func (adapter *statusServerAdapter) Handle(req *common.Message) (resp *common.Message) {
	if req.MsgType != common.MsgTStatus {
		return common.NewErrorResponse(fmt.Sprintf("RPC StatusAdapter - Unsupported message type: %s", req.MsgType))
	}
	if adapter.status == nil {
		return common.NewErrorResponse("status not available")
	}
	return common.NewStatusResponse(adapter.self, adapter.status())
}
