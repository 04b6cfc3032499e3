// Package devicestate defines the protobuf wire envelope the device-identity
// collaborator persists. It is deliberately distinct from the core's opaque
// "./anisette/adi.pb" file: this package gives the device package's JSON
// sidecar data a typed, versioned wire format of its own, encoded by hand
// against protowire rather than generated by protoc.
package devicestate

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the DeviceState message.
const (
	fieldIdentifier                = 1
	fieldLocalUserUUID             = 2
	fieldServerFriendlyDescription = 3
	fieldUniqueDeviceIdentifier    = 4
)

// DeviceState mirrors device.Data in a wire-stable envelope.
type DeviceState struct {
	Identifier                string
	LocalUserUUID             string
	ServerFriendlyDescription string
	UniqueDeviceIdentifier    string
}

// Marshal encodes s as a protobuf message.
func (s DeviceState) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldIdentifier, protowire.BytesType)
	buf = protowire.AppendString(buf, s.Identifier)
	buf = protowire.AppendTag(buf, fieldLocalUserUUID, protowire.BytesType)
	buf = protowire.AppendString(buf, s.LocalUserUUID)
	buf = protowire.AppendTag(buf, fieldServerFriendlyDescription, protowire.BytesType)
	buf = protowire.AppendString(buf, s.ServerFriendlyDescription)
	buf = protowire.AppendTag(buf, fieldUniqueDeviceIdentifier, protowire.BytesType)
	buf = protowire.AppendString(buf, s.UniqueDeviceIdentifier)
	return buf
}

// Unmarshal decodes a DeviceState from wire bytes, tolerating unknown
// fields and out-of-order tags the way protobuf parsers must.
func Unmarshal(data []byte) (DeviceState, error) {
	var s DeviceState
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return s, fmt.Errorf("devicestate: invalid tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return s, fmt.Errorf("devicestate: invalid field value: %w", protowire.ParseError(m))
			}
			data = data[m:]
			continue
		}

		val, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return s, fmt.Errorf("devicestate: invalid bytes field: %w", protowire.ParseError(m))
		}
		data = data[m:]

		switch num {
		case fieldIdentifier:
			s.Identifier = string(val)
		case fieldLocalUserUUID:
			s.LocalUserUUID = string(val)
		case fieldServerFriendlyDescription:
			s.ServerFriendlyDescription = string(val)
		case fieldUniqueDeviceIdentifier:
			s.UniqueDeviceIdentifier = string(val)
		}
	}
	return s, nil
}
