package protocol_test

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"ahrsmon/pkg/protocol"
)

func validFrames() []protocol.Frame {
	payloads := []protocol.Payload{
		protocol.Imu3AccPayload{AccX: 0.12, AccY: -9.81, AccZ: 0.02},
		protocol.Imu3GyrPayload{GyrX: 0.5, GyrY: -0.25, GyrZ: 1.5},
		protocol.Imu3MagPayload{MagX: 0.3, MagY: 0.1, MagZ: -0.4},
		protocol.Imu6Payload{AccZ: -9.81, GyrX: 0.01},
		protocol.Imu9Payload{AccZ: -9.81, GyrY: 0.2, MagX: 0.25},
		protocol.Imu10Payload{AccZ: -9.81, Pressure: 1013.25},
		protocol.ImuQuatPayload{W: 1},
		protocol.DiagPayload{Code: 0x0102, Message: "gyro saturated"},
	}

	frames := make([]protocol.Frame, 0, len(payloads))
	for i, p := range payloads {
		f := protocol.Frame{
			Header: protocol.Header{
				Version:   protocol.Version,
				Type:      p.Type(),
				Sequence:  uint32(100 + i),
				Timestamp: uint64(1_000_000 * (i + 1)),
			},
			Payload:  p,
			Checksum: 0xDEADBEEF,
		}
		for j := range f.AuthTag {
			f.AuthTag[j] = byte(j + i)
		}
		frames = append(frames, f)
	}
	return frames
}

func TestRoundTripAllVariants(t *testing.T) {
	for _, f := range validFrames() {
		wire, err := protocol.Encode(f)
		require.NoError(t, err, "encode %s", f.Header.Type)

		f.Header.Length = uint16(len(wire) - protocol.MinFrameSize)
		got, err := protocol.Decode(wire)
		require.NoError(t, err, "decode %s", f.Header.Type)

		if diff := cmp.Diff(f, got); diff != "" {
			t.Fatalf("round trip mismatch for %s (-want +got):\n%s", f.Header.Type, diff)
		}
	}
}

func TestDecodeTooShort(t *testing.T) {
	_, err := protocol.Decode(make([]byte, protocol.MinFrameSize-1))
	require.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	wire, err := protocol.Encode(protocol.Frame{
		Header:  protocol.Header{Version: protocol.Version, Type: protocol.TypeImuQuat},
		Payload: protocol.ImuQuatPayload{W: 1},
	})
	require.NoError(t, err)

	wire[0] = 0x7F
	_, err = protocol.Decode(wire)
	require.ErrorIs(t, err, protocol.ErrUnsupportedVersion)
}

func TestDecodeLengthMismatch(t *testing.T) {
	wire, err := protocol.Encode(protocol.Frame{
		Header:  protocol.Header{Version: protocol.Version, Type: protocol.TypeImu6},
		Payload: protocol.Imu6Payload{AccZ: -9.81},
	})
	require.NoError(t, err)

	// Declare more payload bytes than the datagram actually carries.
	binary.BigEndian.PutUint16(wire[14:16], 200)
	_, err = protocol.Decode(wire)
	require.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestDecodeUnknownType(t *testing.T) {
	wire, err := protocol.Encode(protocol.Frame{
		Header:  protocol.Header{Version: protocol.Version, Type: protocol.TypeImu6},
		Payload: protocol.Imu6Payload{},
	})
	require.NoError(t, err)

	wire[1] = 0x7E
	_, err = protocol.Decode(wire)
	require.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestDecodePayloadSizeMismatch(t *testing.T) {
	wire, err := protocol.Encode(protocol.Frame{
		Header:  protocol.Header{Version: protocol.Version, Type: protocol.TypeImuQuat},
		Payload: protocol.ImuQuatPayload{W: 1},
	})
	require.NoError(t, err)

	// Retag the quat frame as imu6; the 16-byte body no longer fits.
	wire[1] = byte(protocol.TypeImu6)
	_, err = protocol.Decode(wire)
	require.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestEncodeRejectsTypeMismatch(t *testing.T) {
	_, err := protocol.Encode(protocol.Frame{
		Header:  protocol.Header{Version: protocol.Version, Type: protocol.TypeImu9},
		Payload: protocol.Imu6Payload{},
	})
	require.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestDecodeDiagTooShort(t *testing.T) {
	wire, err := protocol.Encode(protocol.Frame{
		Header:  protocol.Header{Version: protocol.Version, Type: protocol.TypeDiag},
		Payload: protocol.DiagPayload{Code: 1, Message: "x"},
	})
	require.NoError(t, err)

	// Shrink the payload below the 2-byte diag code.
	short := append([]byte(nil), wire[:protocol.HeaderSize+1]...)
	short = append(short, wire[len(wire)-protocol.TrailerSize:]...)
	binary.BigEndian.PutUint16(short[14:16], 1)
	_, err = protocol.Decode(short)
	require.ErrorIs(t, err, protocol.ErrMalformed)
}
