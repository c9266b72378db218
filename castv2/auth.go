package castv2

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for DeviceAuthMessage and its embedded AuthError, per
// SPEC_FULL.md §3. An incoming AuthChallenge is only noted as present
// and an AuthResponse is kept as opaque bytes: this client only ever
// sends an empty challenge and only ever inspects a failure's error
// field, so the fuller AuthResponse structure (signature algorithms,
// certificate chains) is not modeled field-by-field.
const (
	authFieldChallenge protowire.Number = 1
	authFieldResponse  protowire.Number = 2
	authFieldError     protowire.Number = 3

	authErrorFieldType protowire.Number = 1
)

// deviceAuthMessage is the BINARY payload exchanged during connect().
type deviceAuthMessage struct {
	challengeSet bool
	response     []byte // opaque, present only on a successful reply
	errorType    *int32 // present only on a failure
}

// marshalAuthChallenge builds the outbound handshake request: an empty
// AuthChallenge sub-message.
func marshalAuthChallenge() []byte {
	var b []byte
	b = protowire.AppendTag(b, authFieldChallenge, protowire.BytesType)
	b = protowire.AppendBytes(b, nil) // empty AuthChallenge{}
	return b
}

// decodeDeviceAuthMessage parses a DeviceAuthMessage's wire bytes,
// extracting only the fields this client inspects.
func decodeDeviceAuthMessage(data []byte) (*deviceAuthMessage, error) {
	m := &deviceAuthMessage{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: malformed device auth tag", ErrProtocol)
		}
		data = data[n:]

		switch num {
		case authFieldChallenge:
			_, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed auth challenge", ErrProtocol)
			}
			m.challengeSet = true
			data = data[n:]

		case authFieldResponse:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed auth response", ErrProtocol)
			}
			m.response = append([]byte(nil), v...)
			data = data[n:]

		case authFieldError:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed auth error", ErrProtocol)
			}
			errType, err := decodeAuthError(v)
			if err != nil {
				return nil, err
			}
			m.errorType = &errType
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: malformed unknown auth field %d", ErrProtocol, num)
			}
			data = data[n:]
		}
	}

	return m, nil
}

// decodeAuthError reads the error_type varint field of an AuthError
// sub-message.
func decodeAuthError(data []byte) (int32, error) {
	var errType int32
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, fmt.Errorf("%w: malformed auth error tag", ErrProtocol)
		}
		data = data[n:]

		if num == authErrorFieldType {
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, fmt.Errorf("%w: malformed auth error_type", ErrProtocol)
			}
			errType = int32(v)
			data = data[n:]
			continue
		}

		n := protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return 0, fmt.Errorf("%w: malformed unknown auth-error field %d", ErrProtocol, num)
		}
		data = data[n:]
	}
	return errType, nil
}
