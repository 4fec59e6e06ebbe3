// Package rtde implements the Real-Time Data Exchange protocol spoken on
// controller port 30004: packet framing, recipe negotiation, the session
// state machine, and the streamed robot state snapshot.
//
// Wire format: every packet is [u16 total_length][u8 type][payload], big
// endian, where total_length counts the type byte and payload. Primitive
// values are big-endian two's-complement integers and IEEE-754 doubles;
// vector types are flat sequences with no extra framing.
package rtde

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"urdriver/shared"
)

const MAX_PACKET_SIZE = 65535

// RTDE packet types. Setup requests use the output/input letter coding;
// streamed data packages reuse the same letters once the session is started.
const (
	RTDE_REQUEST_PROTOCOL_VERSION = 86  // 'V'
	RTDE_GET_URCONTROL_VERSION    = 118 // 'v'
	RTDE_TEXT_MESSAGE             = 85  // 'U'
	RTDE_DATA_PACKAGE_OUTPUT      = 79  // 'O', output recipe setup and streamed output frames
	RTDE_DATA_PACKAGE_INPUT       = 73  // 'I', input recipe setup and input frames
	RTDE_CONTROL_PACKAGE_START    = 83  // 'S'
	RTDE_CONTROL_PACKAGE_PAUSE    = 80  // 'P'
)

// PROTOCOL_VERSION is the preferred protocol revision. Negotiation falls
// back to version 1 when the controller declines.
const PROTOCOL_VERSION = 2

// EncodePacket frames a payload into a length-prefixed RTDE packet.
func EncodePacket(typ byte, payload []byte) ([]byte, error) {
	size := len(payload) + 3
	if size > MAX_PACKET_SIZE {
		return nil, fmt.Errorf("%w: packet size %d exceeds %d", shared.ErrCorruptFrame, size, MAX_PACKET_SIZE)
	}
	packet := make([]byte, size)
	binary.BigEndian.PutUint16(packet[0:2], uint16(size))
	packet[2] = typ
	copy(packet[3:], payload)
	return packet, nil
}

// ReadPacket consumes exactly one packet from r and returns its type and
// payload. A declared length below the 3-byte header minimum, or a body
// shorter than declared, surfaces as ErrCorruptFrame.
func ReadPacket(r io.Reader) (byte, []byte, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	size := int(binary.BigEndian.Uint16(header[0:2]))
	typ := header[2]
	if size < 3 {
		return 0, nil, fmt.Errorf("%w: declared size %d below header minimum", shared.ErrCorruptFrame, size)
	}
	payload := make([]byte, size-3)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("%w: short body for type %d: %v", shared.ErrCorruptFrame, typ, err)
	}
	return typ, payload, nil
}

// EncodeValues serializes values against an ordered field list. Fields the
// caller did not set are written as zero.
func EncodeValues(fields []Field, values map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range fields {
		if err := encodeValue(&buf, f, values[f.Name]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, f Field, value interface{}) error {
	var err error
	switch f.Type {
	case TYPE_BOOL:
		b, cerr := asBool(value)
		if cerr != nil {
			return fmt.Errorf("field %s: %w", f.Name, cerr)
		}
		var raw uint8
		if b {
			raw = 1
		}
		err = binary.Write(buf, binary.BigEndian, raw)
	case TYPE_UINT8:
		var v uint8
		if v, err = asUint8(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	case TYPE_UINT32:
		var v uint32
		if v, err = asUint32(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	case TYPE_UINT64:
		var v uint64
		if v, err = asUint64(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	case TYPE_INT32:
		var v int32
		if v, err = asInt32(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	case TYPE_DOUBLE:
		var v float64
		if v, err = asFloat64(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	case TYPE_VECTOR3D:
		var v shared.Vector3
		if v, err = asVector3(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	case TYPE_VECTOR6D:
		var v shared.Vector6
		if v, err = asVector6(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	case TYPE_VECTOR6INT32:
		var v [6]int32
		if v, err = asVector6Int32(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	case TYPE_VECTOR6UINT32:
		var v [6]uint32
		if v, err = asVector6Uint32(value); err == nil {
			err = binary.Write(buf, binary.BigEndian, v)
		}
	default:
		return fmt.Errorf("%w: cannot encode type %s", shared.ErrUnknownPacket, f.Type)
	}
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	return nil
}

// DecodeValues deserializes a payload against an ordered field list,
// returning values keyed by field name. A payload shorter or longer than
// the recipe demands surfaces as ErrCorruptFrame.
func DecodeValues(fields []Field, payload []byte) (map[string]interface{}, error) {
	r := bytes.NewReader(payload)
	values := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v, err := decodeValue(r, f)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after recipe fields", shared.ErrCorruptFrame, r.Len())
	}
	return values, nil
}

func decodeValue(r *bytes.Reader, f Field) (interface{}, error) {
	var value interface{}
	var err error
	switch f.Type {
	case TYPE_BOOL:
		var raw uint8
		if err = binary.Read(r, binary.BigEndian, &raw); err == nil {
			value = raw != 0
		}
	case TYPE_UINT8:
		var v uint8
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	case TYPE_UINT32:
		var v uint32
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	case TYPE_UINT64:
		var v uint64
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	case TYPE_INT32:
		var v int32
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	case TYPE_DOUBLE:
		var v float64
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	case TYPE_VECTOR3D:
		var v shared.Vector3
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	case TYPE_VECTOR6D:
		var v shared.Vector6
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	case TYPE_VECTOR6INT32:
		var v [6]int32
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	case TYPE_VECTOR6UINT32:
		var v [6]uint32
		if err = binary.Read(r, binary.BigEndian, &v); err == nil {
			value = v
		}
	default:
		return nil, fmt.Errorf("%w: cannot decode type %s", shared.ErrUnknownPacket, f.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", shared.ErrCorruptFrame, f.Name, err)
	}
	return value, nil
}
