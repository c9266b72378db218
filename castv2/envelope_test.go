package castv2

import (
	"errors"
	"testing"
)

func TestEnvelopeMarshalDecodeRoundTripString(t *testing.T) {
	env := &Envelope{
		ProtocolVersion: CastV2_1_0,
		SourceID:        "sender-0",
		DestinationID:   ReceiverDestination,
		Namespace:       NamespaceReceiver,
		PayloadType:     PayloadTypeString,
		PayloadUTF8:     `{"type":"GET_STATUS","requestId":1}`,
	}

	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if got.SourceID != env.SourceID || got.DestinationID != env.DestinationID {
		t.Fatalf("ids mismatch: got %+v", got)
	}
	if got.Namespace != env.Namespace || got.PayloadUTF8 != env.PayloadUTF8 {
		t.Fatalf("payload mismatch: got %+v", got)
	}
	if got.PayloadType != PayloadTypeString {
		t.Fatalf("PayloadType = %v, want PayloadTypeString", got.PayloadType)
	}
}

func TestEnvelopeMarshalDecodeRoundTripBinary(t *testing.T) {
	env := &Envelope{
		ProtocolVersion: CastV2_1_0,
		SourceID:        "sender-0",
		DestinationID:   ReceiverDestination,
		Namespace:       NamespaceDeviceAuth,
		PayloadType:     PayloadTypeBinary,
		PayloadBinary:   []byte{0x01, 0x02, 0x03},
	}

	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if string(got.PayloadBinary) != string(env.PayloadBinary) {
		t.Fatalf("PayloadBinary = %v, want %v", got.PayloadBinary, env.PayloadBinary)
	}
}

func TestEnvelopeValidateRejectsBlankFields(t *testing.T) {
	cases := []*Envelope{
		{DestinationID: "x", Namespace: "ns", PayloadType: PayloadTypeString},
		{SourceID: "x", Namespace: "ns", PayloadType: PayloadTypeString},
		{SourceID: "x", DestinationID: "y", PayloadType: PayloadTypeString},
		{SourceID: "x", DestinationID: "y", Namespace: "ns", PayloadType: 7},
	}
	for i, env := range cases {
		if _, err := env.Marshal(); !errors.Is(err, ErrProtocol) {
			t.Errorf("case %d: Marshal error = %v, want ErrProtocol", i, err)
		}
	}
}

func TestDecodeEnvelopeSkipsUnknownFields(t *testing.T) {
	env := &Envelope{
		ProtocolVersion: CastV2_1_0,
		SourceID:        "sender-0",
		DestinationID:   ReceiverDestination,
		Namespace:       NamespaceReceiver,
		PayloadType:     PayloadTypeString,
		PayloadUTF8:     "{}",
	}
	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Append a well-formed but unrecognized field (number 9, varint type).
	data = append(data, 0x48, 0x01)

	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope with trailing unknown field: %v", err)
	}
	if got.Namespace != NamespaceReceiver {
		t.Fatalf("Namespace = %q, want %q", got.Namespace, NamespaceReceiver)
	}
}

func TestDecodeEnvelopeRejectsTruncatedTag(t *testing.T) {
	_, err := DecodeEnvelope([]byte{0xFF})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("DecodeEnvelope error = %v, want ErrProtocol", err)
	}
}
