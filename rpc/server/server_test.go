package server

import (
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/lib/util"
	"github.com/ValentinKolb/dMX/rpc/common"
	"github.com/ValentinKolb/dMX/rpc/serializer"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) (*RPCServer, *util.Mailbox[mutex.Message]) {
	t.Helper()
	inbox := util.NewMailbox[mutex.Message]()
	config := common.ServerConfig{
		NodeID:    1,
		Peers:     []string{"a", "b", "c"},
		GroupID:   42,
		Transport: common.ServerTransportConfig{Endpoint: "b"},
	}
	status := func() mutex.Snapshot {
		return mutex.Snapshot{Process: 1, Clock: lclock.Clock{Owner: 1, Value: 7}, State: "IDLE"}
	}
	return NewRPCServer(config, nil, serializer.NewBinarySerializer(), inbox, status), inbox
}

func roundTrip(t *testing.T, s *RPCServer, groupID uint64, req *common.Message) *common.Message {
	t.Helper()
	data, err := s.serializer.Serialize(*req)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	var resp common.Message
	if err := s.serializer.Deserialize(s.handle(groupID, data), &resp); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	return &resp
}

func TestProtocolMessageIsDelivered(t *testing.T) {
	s, inbox := newTestServer(t)

	req, err := common.NewProtocolMessage(mutex.NewRequest(lclock.Clock{Owner: 2, Value: 5}), 1)
	if err != nil {
		t.Fatal(err)
	}
	resp := roundTrip(t, s, 42, req)
	if resp.MsgType != common.MsgTSuccess || resp.Owner != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}

	msg, ok := inbox.TryPop()
	if !ok {
		t.Fatal("inbox is empty")
	}
	want := mutex.NewRequest(lclock.Clock{Owner: 2, Value: 5})
	if msg != want {
		t.Fatalf("got %v, want %v", msg, want)
	}
}

func TestRejectedRequests(t *testing.T) {
	tests := []struct {
		name    string
		groupID uint64
		req     *common.Message
		errPart string
	}{
		{"wrong group", 7, &common.Message{MsgType: common.MsgTAck, Owner: 0, Target: 1}, "group 7"},
		{"wrong target", 42, &common.Message{MsgType: common.MsgTAck, Owner: 0, Target: 2}, "delivered to process 1"},
		{"sender is self", 42, &common.Message{MsgType: common.MsgTAck, Owner: 1, Target: 1}, "unknown peer"},
		{"sender out of range", 42, &common.Message{MsgType: common.MsgTRelease, Owner: 3, Target: 1}, "unknown peer"},
		{"negative sender", 42, &common.Message{MsgType: common.MsgTRelease, Owner: -1, Target: 1}, "unknown peer"},
		{"unsupported type", 42, &common.Message{MsgType: common.MsgTSuccess, Target: 1}, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, inbox := newTestServer(t)
			resp := roundTrip(t, s, tt.groupID, tt.req)
			if resp.MsgType != common.MsgTError {
				t.Fatalf("expected error response, got %s", resp.MsgType)
			}
			if !strings.Contains(resp.Err, tt.errPart) {
				t.Fatalf("error %q does not contain %q", resp.Err, tt.errPart)
			}
			if inbox.Len() != 0 {
				t.Fatal("rejected message reached the inbox")
			}
		})
	}
}

func TestInvalidPayload(t *testing.T) {
	s, _ := newTestServer(t)
	var resp common.Message
	if err := s.serializer.Deserialize(s.handle(42, []byte{1, 2}), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.MsgType != common.MsgTError || !strings.Contains(resp.Err, "deserialize") {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestClosedInbox(t *testing.T) {
	s, inbox := newTestServer(t)
	inbox.Close()
	resp := roundTrip(t, s, 42, &common.Message{MsgType: common.MsgTRelease, Owner: 0, Target: 1, Clock: 3})
	if resp.MsgType != common.MsgTError {
		t.Fatalf("expected error response, got %s", resp.MsgType)
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)
	resp := roundTrip(t, s, 42, common.NewStatusRequest())
	snapshot, err := resp.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Process != 1 || snapshot.Clock.Value != 7 || snapshot.State != "IDLE" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}
