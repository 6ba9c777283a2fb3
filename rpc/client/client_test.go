package client

import (
	"errors"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/ValentinKolb/dMX/rpc/serializer"
	"testing"
)

// fakeTransport answers every request with reply(req)
type fakeTransport struct {
	ser       serializer.IRPCSerializer
	reply     func(req common.Message) common.Message
	lastGroup uint64
	sendErr   error
}

func (f *fakeTransport) Connect(config common.ClientConfig) error { return nil }
func (f *fakeTransport) Close() error                            { return nil }

func (f *fakeTransport) Send(groupID uint64, req []byte) ([]byte, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.lastGroup = groupID
	var msg common.Message
	if err := f.ser.Deserialize(req, &msg); err != nil {
		return nil, err
	}
	return f.ser.Serialize(f.reply(msg))
}

func newPeer(t *testing.T, reply func(common.Message) common.Message) (*RPCPeer, *fakeTransport) {
	t.Helper()
	ser := serializer.NewJSONSerializer()
	tr := &fakeTransport{ser: ser, reply: reply}
	peer, err := NewRPCPeer(2, common.ClientConfig{GroupID: 5}, tr, ser)
	if err != nil {
		t.Fatal(err)
	}
	return peer, tr
}

func TestDeliver(t *testing.T) {
	var got common.Message
	peer, tr := newPeer(t, func(req common.Message) common.Message {
		got = req
		return *common.NewDeliveredResponse(int(req.Target))
	})

	if err := peer.Deliver(mutex.NewAck(lclock.Clock{Owner: 0, Value: 4})); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if tr.lastGroup != 5 {
		t.Fatalf("sent to group %d", tr.lastGroup)
	}
	if got.MsgType != common.MsgTAck || got.Owner != 0 || got.Target != 2 || got.Clock != 4 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestDeliverRejected(t *testing.T) {
	peer, _ := newPeer(t, func(req common.Message) common.Message {
		return *common.NewErrorResponse("nope")
	})
	err := peer.Deliver(mutex.NewRelease(lclock.Clock{Owner: 0, Value: 1}))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestDeliverWrongResponder(t *testing.T) {
	peer, _ := newPeer(t, func(req common.Message) common.Message {
		return *common.NewDeliveredResponse(3)
	})
	if err := peer.Deliver(mutex.NewRequest(lclock.Clock{Owner: 0, Value: 1})); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestTransportErrorIsNotRejection(t *testing.T) {
	peer, tr := newPeer(t, nil)
	tr.sendErr = errors.New("connection refused")
	err := peer.Deliver(mutex.NewRequest(lclock.Clock{Owner: 0, Value: 1}))
	if err == nil || errors.Is(err, ErrRejected) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	peer, _ := newPeer(t, func(req common.Message) common.Message {
		if req.MsgType != common.MsgTStatus {
			return *common.NewErrorResponse("expected status")
		}
		return *common.NewStatusResponse(2, mutex.Snapshot{Process: 2, State: "HELD"})
	})
	snapshot, err := peer.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snapshot.Process != 2 || snapshot.State != "HELD" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestUnexpectedResponseType(t *testing.T) {
	peer, _ := newPeer(t, func(req common.Message) common.Message {
		return *common.NewDeliveredResponse(2)
	})
	if _, err := peer.Status(); err == nil {
		t.Fatal("expected error for mismatching response type")
	}
}
