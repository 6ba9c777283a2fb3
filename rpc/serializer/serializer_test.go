package serializer

import (
	"bytes"
	"github.com/ValentinKolb/dMX/lib/lclock"
	"github.com/ValentinKolb/dMX/lib/mutex"
	"github.com/ValentinKolb/dMX/rpc/common"
	"reflect"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates the messages exchanged between processes
func testMessages(t *testing.T) []common.Message {
	t.Helper()

	request, err := common.NewProtocolMessage(mutex.NewRequest(lclock.Clock{Owner: 2, Value: 7}), 0)
	if err != nil {
		t.Fatal(err)
	}
	release, err := common.NewProtocolMessage(mutex.NewRelease(lclock.Clock{Owner: 0, Value: 1 << 40}), 4)
	if err != nil {
		t.Fatal(err)
	}

	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Protocol messages
		*request,
		*release,

		// Error response
		*common.NewErrorResponse("group 3 not served"),

		// Status response with snapshot
		{
			MsgType: common.MsgTStatus,
			Owner:   1,
			Meta:    []byte(`{"process":1}`),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages(t)

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// start from a dirty message to catch fields that are not reset
				result := common.Message{Err: "stale", Clock: 99, Meta: []byte("stale")}
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTStatus; msgType++ {
				msg := common.Message{MsgType: msgType, Owner: 3, Target: 1, Clock: 12}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType, err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType, err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s", msgType, result.MsgType)
				}
			}
		})
	}
}

func TestProtocolConversion(t *testing.T) {
	for _, original := range []mutex.Message{
		mutex.NewRequest(lclock.Clock{Owner: 0, Value: 0}),
		mutex.NewAck(lclock.Clock{Owner: 3, Value: 8}),
		mutex.NewRelease(lclock.Clock{Owner: 1, Value: 42}),
	} {
		wire, err := common.NewProtocolMessage(original, 2)
		if err != nil {
			t.Fatalf("NewProtocolMessage(%s) failed: %v", original, err)
		}
		if !wire.IsProtocol() || wire.Target != 2 {
			t.Errorf("Expected protocol message for 2, got %+v", wire)
		}

		data, err := NewBinarySerializer().Serialize(*wire)
		if err != nil {
			t.Fatal(err)
		}
		var decoded common.Message
		if err := NewBinarySerializer().Deserialize(data, &decoded); err != nil {
			t.Fatal(err)
		}

		got, err := decoded.Protocol()
		if err != nil {
			t.Fatalf("Protocol() failed: %v", err)
		}
		if got != original {
			t.Errorf("Expected %s, got %s", original, got)
		}
	}

	if _, err := common.NewProtocolMessage(mutex.Message{Action: mutex.Action(7)}, 0); err == nil {
		t.Errorf("Expected error for unknown action")
	}
	if _, err := common.NewStatusRequest().Protocol(); err == nil {
		t.Errorf("Expected error for status message")
	}
}

// TestBinarySerializerSpecific tests edge cases of the binary layout
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{"Empty message", common.Message{}},
		{"Negative target", common.Message{MsgType: common.MsgTStatus, Target: -1}},
		{"Maximum clock", common.Message{MsgType: common.MsgTAck, Owner: 1, Clock: ^uint64(0)}},
		{"Empty meta slice but not nil", common.Message{MsgType: common.MsgTStatus, Meta: []byte{}}},
		{"Error and meta", common.Message{MsgType: common.MsgTError, Err: "boom", Meta: []byte{1, 2, 3}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if tc.msg.MsgType != result.MsgType || tc.msg.Owner != result.Owner ||
				tc.msg.Target != result.Target || tc.msg.Clock != result.Clock || tc.msg.Err != result.Err {
				t.Errorf("Mismatch: expected %+v, got %+v", tc.msg, result)
			}

			if (tc.msg.Meta == nil) != (result.Meta == nil) {
				t.Errorf("Meta nil/non-nil mismatch: expected %v, got %v", tc.msg.Meta, result.Meta)
			} else if !bytes.Equal(tc.msg.Meta, result.Meta) {
				t.Errorf("Meta mismatch: expected %v, got %v", tc.msg.Meta, result.Meta)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()
	header := make([]byte, headerSize)
	header[0] = byte(common.MsgTAck)

	withFlags := func(flags byte, tail ...byte) []byte {
		data := append([]byte(nil), header...)
		data[1] = flags
		return append(data, tail...)
	}

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{"Empty data", []byte{}, true},
		{"Too short header", header[:headerSize-1], true},
		{"Valid header only", header, false},
		{"Invalid length for err", withFlags(hasErr, 0, 0, 0, 5, 'a', 'b', 'c'), true},
		{"Invalid length for meta", withFlags(hasMeta, 0, 0, 0, 10), true},
		{"Missing meta length", withFlags(hasMeta, 0, 0), true},
		{"Trailing bytes", withFlags(0, 1, 2), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "gob", "binary"} {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%s) failed: %v", name, err)
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Errorf("Expected error for unknown serializer")
	}
}
