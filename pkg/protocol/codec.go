package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decode parses a complete datagram into a Frame. It requires the whole
// frame in one buffer; there is no reassembly of partial frames.
func Decode(data []byte) (Frame, error) {
	if len(data) < MinFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(data), MinFrameSize)
	}
	if len(data) > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes exceeds max %d", ErrMalformed, len(data), MaxFrameSize)
	}

	h := Header{
		Version:   data[0],
		Type:      Type(data[1]),
		Sequence:  binary.BigEndian.Uint32(data[2:6]),
		Timestamp: binary.BigEndian.Uint64(data[6:14]),
		Length:    binary.BigEndian.Uint16(data[14:16]),
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedVersion, h.Version)
	}
	if int(h.Length) != len(data)-MinFrameSize {
		return Frame{}, fmt.Errorf("%w: declared payload length %d, %d bytes remain",
			ErrMalformed, h.Length, len(data)-MinFrameSize)
	}

	body := data[HeaderSize : HeaderSize+int(h.Length)]
	payload, err := decodePayload(h.Type, body)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{Header: h, Payload: payload}
	trailer := data[HeaderSize+int(h.Length):]
	f.Checksum = binary.BigEndian.Uint32(trailer[:ChecksumSize])
	copy(f.AuthTag[:], trailer[ChecksumSize:])
	return f, nil
}

// Encode serialises a frame back to wire bytes. It is the total inverse of
// Decode for valid frames and is used by simulation and test paths only.
func Encode(f Frame) ([]byte, error) {
	if f.Payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformed)
	}
	if f.Header.Version != Version {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedVersion, f.Header.Version)
	}
	if f.Header.Type != f.Payload.Type() {
		return nil, fmt.Errorf("%w: header type %s does not match payload %s",
			ErrMalformed, f.Header.Type, f.Payload.Type())
	}
	size := f.Payload.size()
	if size > MaxFrameSize-MinFrameSize {
		return nil, fmt.Errorf("%w: payload size %d", ErrMalformed, size)
	}

	buf := make([]byte, MinFrameSize+size)
	buf[0] = f.Header.Version
	buf[1] = byte(f.Header.Type)
	binary.BigEndian.PutUint32(buf[2:6], f.Header.Sequence)
	binary.BigEndian.PutUint64(buf[6:14], f.Header.Timestamp)
	binary.BigEndian.PutUint16(buf[14:16], uint16(size))
	f.Payload.encodeTo(buf[HeaderSize : HeaderSize+size])

	trailer := buf[HeaderSize+size:]
	binary.BigEndian.PutUint32(trailer[:ChecksumSize], f.Checksum)
	copy(trailer[ChecksumSize:], f.AuthTag[:])
	return buf, nil
}

func decodePayload(t Type, body []byte) (Payload, error) {
	switch t {
	case TypeImu3Acc:
		var p Imu3AccPayload
		if err := wantSize(t, body, p.size()); err != nil {
			return nil, err
		}
		p.AccX, p.AccY, p.AccZ = f32(body, 0), f32(body, 4), f32(body, 8)
		return p, nil
	case TypeImu3Gyr:
		var p Imu3GyrPayload
		if err := wantSize(t, body, p.size()); err != nil {
			return nil, err
		}
		p.GyrX, p.GyrY, p.GyrZ = f32(body, 0), f32(body, 4), f32(body, 8)
		return p, nil
	case TypeImu3Mag:
		var p Imu3MagPayload
		if err := wantSize(t, body, p.size()); err != nil {
			return nil, err
		}
		p.MagX, p.MagY, p.MagZ = f32(body, 0), f32(body, 4), f32(body, 8)
		return p, nil
	case TypeImu6:
		var p Imu6Payload
		if err := wantSize(t, body, p.size()); err != nil {
			return nil, err
		}
		p.AccX, p.AccY, p.AccZ = f32(body, 0), f32(body, 4), f32(body, 8)
		p.GyrX, p.GyrY, p.GyrZ = f32(body, 12), f32(body, 16), f32(body, 20)
		return p, nil
	case TypeImu9:
		var p Imu9Payload
		if err := wantSize(t, body, p.size()); err != nil {
			return nil, err
		}
		p.AccX, p.AccY, p.AccZ = f32(body, 0), f32(body, 4), f32(body, 8)
		p.GyrX, p.GyrY, p.GyrZ = f32(body, 12), f32(body, 16), f32(body, 20)
		p.MagX, p.MagY, p.MagZ = f32(body, 24), f32(body, 28), f32(body, 32)
		return p, nil
	case TypeImu10:
		var p Imu10Payload
		if err := wantSize(t, body, p.size()); err != nil {
			return nil, err
		}
		p.AccX, p.AccY, p.AccZ = f32(body, 0), f32(body, 4), f32(body, 8)
		p.GyrX, p.GyrY, p.GyrZ = f32(body, 12), f32(body, 16), f32(body, 20)
		p.MagX, p.MagY, p.MagZ = f32(body, 24), f32(body, 28), f32(body, 32)
		p.Pressure = f32(body, 36)
		return p, nil
	case TypeImuQuat:
		var p ImuQuatPayload
		if err := wantSize(t, body, p.size()); err != nil {
			return nil, err
		}
		p.W, p.X, p.Y, p.Z = f32(body, 0), f32(body, 4), f32(body, 8), f32(body, 12)
		return p, nil
	case TypeDiag:
		if len(body) < 2 {
			return nil, fmt.Errorf("%w: diag payload %d bytes", ErrMalformed, len(body))
		}
		return DiagPayload{
			Code:    binary.BigEndian.Uint16(body[:2]),
			Message: string(body[2:]),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload type 0x%02x", ErrMalformed, uint8(t))
	}
}

func wantSize(t Type, body []byte, n int) error {
	if len(body) != n {
		return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrMalformed, t, len(body), n)
	}
	return nil
}

func f32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
}

func putF32(b []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(b[off:off+4], math.Float32bits(v))
}

func (p Imu3AccPayload) encodeTo(b []byte) {
	putF32(b, 0, p.AccX)
	putF32(b, 4, p.AccY)
	putF32(b, 8, p.AccZ)
}

func (p Imu3GyrPayload) encodeTo(b []byte) {
	putF32(b, 0, p.GyrX)
	putF32(b, 4, p.GyrY)
	putF32(b, 8, p.GyrZ)
}

func (p Imu3MagPayload) encodeTo(b []byte) {
	putF32(b, 0, p.MagX)
	putF32(b, 4, p.MagY)
	putF32(b, 8, p.MagZ)
}

func (p Imu6Payload) encodeTo(b []byte) {
	putF32(b, 0, p.AccX)
	putF32(b, 4, p.AccY)
	putF32(b, 8, p.AccZ)
	putF32(b, 12, p.GyrX)
	putF32(b, 16, p.GyrY)
	putF32(b, 20, p.GyrZ)
}

func (p Imu9Payload) encodeTo(b []byte) {
	putF32(b, 0, p.AccX)
	putF32(b, 4, p.AccY)
	putF32(b, 8, p.AccZ)
	putF32(b, 12, p.GyrX)
	putF32(b, 16, p.GyrY)
	putF32(b, 20, p.GyrZ)
	putF32(b, 24, p.MagX)
	putF32(b, 28, p.MagY)
	putF32(b, 32, p.MagZ)
}

func (p Imu10Payload) encodeTo(b []byte) {
	putF32(b, 0, p.AccX)
	putF32(b, 4, p.AccY)
	putF32(b, 8, p.AccZ)
	putF32(b, 12, p.GyrX)
	putF32(b, 16, p.GyrY)
	putF32(b, 20, p.GyrZ)
	putF32(b, 24, p.MagX)
	putF32(b, 28, p.MagY)
	putF32(b, 32, p.MagZ)
	putF32(b, 36, p.Pressure)
}

func (p ImuQuatPayload) encodeTo(b []byte) {
	putF32(b, 0, p.W)
	putF32(b, 4, p.X)
	putF32(b, 8, p.Y)
	putF32(b, 12, p.Z)
}

func (p DiagPayload) encodeTo(b []byte) {
	binary.BigEndian.PutUint16(b[:2], p.Code)
	copy(b[2:], p.Message)
}
