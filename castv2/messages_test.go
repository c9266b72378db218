package castv2

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestDecodeControlMessageKnownTypes(t *testing.T) {
	cases := []struct {
		raw  string
		want controlMessage
	}{
		{`{"responseType":"PING"}`, &pingMessage{}},
		{`{"responseType":"PONG"}`, &pongMessage{}},
		{`{"responseType":"RECEIVER_STATUS","status":{}}`, &receiverStatusResponse{}},
		{`{"responseType":"LAUNCH_ERROR","reason":"NOT_FOUND"}`, &launchErrorResponse{Reason: "NOT_FOUND"}},
		{`{"responseType":"INVALID_REQUEST","reason":"bad"}`, &invalidRequestResponse{Reason: "bad"}},
		{`{"responseType":"LOAD_FAILED"}`, &loadFailedResponse{}},
		{`{"responseType":"MEDIA_STATUS","status":[]}`, &mediaStatusResponse{}},
	}

	for _, tc := range cases {
		got, err := decodeControlMessage(json.RawMessage(tc.raw))
		if err != nil {
			t.Errorf("decodeControlMessage(%s): %v", tc.raw, err)
			continue
		}
		if gotType, wantType := fmt.Sprintf("%T", got), fmt.Sprintf("%T", tc.want); gotType != wantType {
			t.Errorf("decodeControlMessage(%s) returned %s, want %s", tc.raw, gotType, wantType)
		}
	}
}

func TestDecodeControlMessageUnknownTypeFallsBackToUnknownResponse(t *testing.T) {
	raw := json.RawMessage(`{"responseType":"SOMETHING_NEW","requestId":7}`)
	got, err := decodeControlMessage(raw)
	if err != nil {
		t.Fatalf("decodeControlMessage: %v", err)
	}
	ur, ok := got.(*unknownResponse)
	if !ok {
		t.Fatalf("got %T, want *unknownResponse", got)
	}
	if ur.RequestID != 7 {
		t.Fatalf("RequestID = %d, want 7", ur.RequestID)
	}
}

func TestDecodeControlMessageRejectsMalformedJSON(t *testing.T) {
	if _, err := decodeControlMessage(json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestPeekRequestIDAndResponseType(t *testing.T) {
	raw := json.RawMessage(`{"responseType":"RECEIVER_STATUS","requestId":42}`)
	if id := peekRequestID(raw); id != 42 {
		t.Errorf("peekRequestID = %d, want 42", id)
	}
	if rt := peekResponseType(raw); rt != "RECEIVER_STATUS" {
		t.Errorf("peekResponseType = %q, want RECEIVER_STATUS", rt)
	}
}

func TestPeekRequestIDAbsentIsZero(t *testing.T) {
	raw := json.RawMessage(`{"responseType":"PING"}`)
	if id := peekRequestID(raw); id != 0 {
		t.Errorf("peekRequestID = %d, want 0", id)
	}
}

func TestRequestHeaderRoundTripsRequestID(t *testing.T) {
	req := newGetStatusRequest()
	req.SetRequestID(99)
	if req.GetRequestID() != 99 {
		t.Fatalf("GetRequestID = %d, want 99", req.GetRequestID())
	}

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["type"] != "GET_STATUS" {
		t.Fatalf(`decoded["type"] = %v, want "GET_STATUS"`, decoded["type"])
	}
	if decoded["requestId"].(float64) != 99 {
		t.Fatalf(`decoded["requestId"] = %v, want 99`, decoded["requestId"])
	}
}

func TestAppAvailabilityHelpers(t *testing.T) {
	req := newGetAppAvailabilityRequest("ABCD1234")
	if len(req.AppID) != 1 || req.AppID[0] != "ABCD1234" {
		t.Fatalf("AppID = %v, want [ABCD1234]", req.AppID)
	}

	resp := &appAvailabilityResponse{Availability: map[string]string{"ABCD1234": AppAvailable}}
	if resp.Availability["ABCD1234"] != AppAvailable {
		t.Fatal("expected availability to round-trip")
	}
}
