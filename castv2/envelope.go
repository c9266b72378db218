package castv2

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PayloadType discriminates the two kinds of envelope payload.
type PayloadType int32

const (
	// PayloadTypeString carries a JSON-encoded control message.
	PayloadTypeString PayloadType = 0
	// PayloadTypeBinary carries an opaque, application-defined byte
	// string (or the device-auth handshake payload).
	PayloadTypeBinary PayloadType = 1
)

// ProtocolVersion identifies the envelope wire-format revision. Only one
// value is in use by any known receiver.
type ProtocolVersion int32

// CastV2_1_0 is the single protocol_version value devices speak today.
const CastV2_1_0 ProtocolVersion = 0

// Field numbers for the envelope, matching the protobuf schema the
// device side speaks (see SPEC_FULL.md §3).
const (
	fieldProtocolVersion protowire.Number = 1
	fieldSourceID        protowire.Number = 2
	fieldDestinationID   protowire.Number = 3
	fieldNamespace       protowire.Number = 4
	fieldPayloadType     protowire.Number = 5
	fieldPayloadUTF8     protowire.Number = 6
	fieldPayloadBinary   protowire.Number = 7
)

// Envelope is the protocol envelope described in SPEC_FULL.md §3: every
// frame on the wire carries exactly one of these, serialized with the
// protobuf wire format.
type Envelope struct {
	ProtocolVersion ProtocolVersion
	SourceID        string
	DestinationID   string
	Namespace       string
	PayloadType     PayloadType

	// Exactly one of these is populated, selected by PayloadType.
	PayloadUTF8   string
	PayloadBinary []byte
}

// ReceiverDestination is the well-known destination id for the platform
// receiver (as opposed to an application's own transport id).
const ReceiverDestination = "receiver-0"

// Validate checks the envelope invariants from SPEC_FULL.md §3.
func (e *Envelope) Validate() error {
	if e.SourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrProtocol)
	}
	if e.DestinationID == "" {
		return fmt.Errorf("%w: empty destination id", ErrProtocol)
	}
	if e.Namespace == "" {
		return fmt.Errorf("%w: empty namespace", ErrProtocol)
	}
	switch e.PayloadType {
	case PayloadTypeString, PayloadTypeBinary:
	default:
		return fmt.Errorf("%w: unknown payload type %d", ErrProtocol, e.PayloadType)
	}
	return nil
}

// Marshal serializes the envelope using the protobuf wire format. Only
// fields appropriate to PayloadType are emitted, matching a real
// CastMessage encoder that never writes both payload variants.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var b []byte
	b = protowire.AppendTag(b, fieldProtocolVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.ProtocolVersion))

	b = protowire.AppendTag(b, fieldSourceID, protowire.BytesType)
	b = protowire.AppendString(b, e.SourceID)

	b = protowire.AppendTag(b, fieldDestinationID, protowire.BytesType)
	b = protowire.AppendString(b, e.DestinationID)

	b = protowire.AppendTag(b, fieldNamespace, protowire.BytesType)
	b = protowire.AppendString(b, e.Namespace)

	b = protowire.AppendTag(b, fieldPayloadType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.PayloadType))

	switch e.PayloadType {
	case PayloadTypeString:
		b = protowire.AppendTag(b, fieldPayloadUTF8, protowire.BytesType)
		b = protowire.AppendString(b, e.PayloadUTF8)
	case PayloadTypeBinary:
		b = protowire.AppendTag(b, fieldPayloadBinary, protowire.BytesType)
		b = protowire.AppendBytes(b, e.PayloadBinary)
	}

	return b, nil
}

// DecodeEnvelope parses a protobuf wire-encoded envelope. Unknown fields
// (a future protocol_version variant, for instance) are skipped rather
// than rejected, per protobuf's forward-compatibility contract.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	e := &Envelope{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed envelope tag: %v", ErrProtocol, protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldProtocolVersion:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed protocol_version", ErrProtocol)
			}
			e.ProtocolVersion = ProtocolVersion(v)
			data = data[n:]

		case fieldSourceID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed source_id", ErrProtocol)
			}
			e.SourceID = v
			data = data[n:]

		case fieldDestinationID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed destination_id", ErrProtocol)
			}
			e.DestinationID = v
			data = data[n:]

		case fieldNamespace:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed namespace", ErrProtocol)
			}
			e.Namespace = v
			data = data[n:]

		case fieldPayloadType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed payload_type", ErrProtocol)
			}
			e.PayloadType = PayloadType(v)
			data = data[n:]

		case fieldPayloadUTF8:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed payload_utf8", ErrProtocol)
			}
			e.PayloadUTF8 = v
			data = data[n:]

		case fieldPayloadBinary:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed payload_binary", ErrProtocol)
			}
			e.PayloadBinary = append([]byte(nil), v...)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed unknown field %d", ErrProtocol, num)
			}
			data = data[n:]
		}
	}

	return e, nil
}
