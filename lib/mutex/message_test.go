package mutex

import (
	"encoding/json"
	"testing"
)

func TestActionJSON(t *testing.T) {
	msg := NewAck(clk(2, 9))

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"clock":{"owner":2,"value":9},"action":"ACK"}` {
		t.Errorf("Unexpected encoding %s", data)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded != msg {
		t.Errorf("Expected %s, got %s", msg, decoded)
	}

	if err := json.Unmarshal([]byte(`{"action":"DEFER"}`), &decoded); err == nil {
		t.Error("Expected error for unknown action name")
	}
}

func TestActionValid(t *testing.T) {
	for _, a := range []Action{ActionRequest, ActionAck, ActionRelease} {
		if !a.Valid() {
			t.Errorf("%s should be valid", a)
		}
	}
	if ActionNone.Valid() || Action(9).Valid() {
		t.Error("none and out of range actions must be invalid")
	}
}

func TestMessageString(t *testing.T) {
	if s := NewRequest(clk(4, 7)).String(); s != "REQUEST@(4,7)" {
		t.Errorf("Unexpected string %s", s)
	}
	if s := Action(9).String(); s != "unknown(9)" {
		t.Errorf("Unexpected string %s", s)
	}
}
