package ocpp

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestUnmarshalCall(t *testing.T) {
	raw := []byte(`[2,"m-1","BootNotification",{"chargePointVendor":"V","chargePointModel":"M"}]`)

	frame, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if frame.Type != MessageTypeCall {
		t.Errorf("expected CALL, got %d", frame.Type)
	}
	if frame.MessageID != "m-1" {
		t.Errorf("expected messageId m-1, got %s", frame.MessageID)
	}
	if frame.Action != "BootNotification" {
		t.Errorf("expected action BootNotification, got %s", frame.Action)
	}
}

func TestUnmarshalCallResult(t *testing.T) {
	raw := []byte(`[3,"m-2",{"status":"Accepted"}]`)

	frame, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if frame.Type != MessageTypeCallResult {
		t.Errorf("expected CALLRESULT, got %d", frame.Type)
	}

	var payload map[string]string
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["status"] != "Accepted" {
		t.Errorf("expected Accepted, got %s", payload["status"])
	}
}

func TestUnmarshalCallError(t *testing.T) {
	raw := []byte(`[4,"m-3","InternalError","store write failed",{}]`)

	frame, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if frame.Type != MessageTypeCallError {
		t.Errorf("expected CALLERROR, got %d", frame.Type)
	}
	if frame.ErrorCode != ErrInternalError {
		t.Errorf("expected InternalError, got %s", frame.ErrorCode)
	}
	if frame.ErrorDescription != "store write failed" {
		t.Errorf("unexpected description %q", frame.ErrorDescription)
	}
}

func TestUnmarshalRejectsMalformedFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not an array", `{"action":"Heartbeat"}`},
		{"too few elements", `[2,"m-1"]`},
		{"call missing payload", `[2,"m-1","Heartbeat"]`},
		{"unknown message type", `[7,"m-1",{}]`},
		{"numeric messageId", `[2,42,"Heartbeat",{}]`},
		{"empty messageId", `[2,"","Heartbeat",{}]`},
		{"oversized messageId", `[2,"` + strings.Repeat("x", 37) + `","Heartbeat",{}]`},
		{"call payload not object", `[2,"m-1","Heartbeat",[1,2]]`},
		{"callerror too short", `[4,"m-1","GenericError"]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tc.raw)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestUnmarshalRejectsBinaryPayload(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x02, 0x00}

	if _, err := Unmarshal(raw); err == nil {
		t.Error("expected error for non-UTF-8 frame")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	frames := []*Frame{
		NewCall("m-10", ActionHeartbeat, json.RawMessage(`{}`)),
		NewCall("m-11", ActionStartTransaction, json.RawMessage(`{"connectorId":1,"idTag":"T1","meterStart":1000,"timestamp":"2025-01-01T00:00:00Z"}`)),
		NewCallResult("m-12", json.RawMessage(`{"transactionId":7,"idTagInfo":{"status":"Accepted"}}`)),
		NewCallErrorFrame("m-13", NewCallError(ErrProtocolError, "bad frame")),
	}

	for _, original := range frames {
		data, err := Marshal(original)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}

		decoded, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal after Marshal: %v", err)
		}

		if decoded.Type != original.Type {
			t.Errorf("type changed: %d != %d", decoded.Type, original.Type)
		}
		if decoded.MessageID != original.MessageID {
			t.Errorf("messageId changed: %s != %s", decoded.MessageID, original.MessageID)
		}
		if decoded.Action != original.Action {
			t.Errorf("action changed: %s != %s", decoded.Action, original.Action)
		}
		if original.Type != MessageTypeCallError && !jsonEqual(t, decoded.Payload, original.Payload) {
			t.Errorf("payload changed: %s != %s", decoded.Payload, original.Payload)
		}
	}
}

func TestMarshalEmptyPayloadBecomesObject(t *testing.T) {
	data, err := Marshal(NewCallResult("m-20", nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if !bytes.Contains(data, []byte(`{}`)) {
		t.Errorf("expected empty object payload, got %s", data)
	}
}

func jsonEqual(t *testing.T, a, b json.RawMessage) bool {
	t.Helper()

	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		t.Fatalf("jsonEqual: %v", err)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		t.Fatalf("jsonEqual: %v", err)
	}

	aj, _ := json.Marshal(av)
	bj, _ := json.Marshal(bv)
	return bytes.Equal(aj, bj)
}
