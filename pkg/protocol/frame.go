package protocol

// Version is the only wire protocol revision this codec understands.
// Any layout change is a breaking bump of this byte.
const Version uint8 = 0x01

// Fixed section sizes of the wire layout:
// [version:1][type:1][sequence:4][timestamp:8][length:2][payload][checksum:4][auth_tag:32]
const (
	HeaderSize   = 16
	ChecksumSize = 4
	TagSize      = 32
	TrailerSize  = ChecksumSize + TagSize

	// MinFrameSize is a header plus trailer with an empty payload.
	MinFrameSize = HeaderSize + TrailerSize

	// MaxFrameSize bounds a datagram; anything longer is malformed.
	MaxFrameSize = 1024
)

// Type tags the payload variant carried by a frame.
type Type uint8

const (
	TypeImu3Acc Type = 0x00
	TypeImu3Gyr Type = 0x01
	TypeImu3Mag Type = 0x02
	TypeImu6    Type = 0x03
	TypeImu9    Type = 0x04
	TypeImu10   Type = 0x05
	TypeImuQuat Type = 0x06
	TypeDiag    Type = 0x07
)

func (t Type) String() string {
	switch t {
	case TypeImu3Acc:
		return "imu3-acc"
	case TypeImu3Gyr:
		return "imu3-gyr"
	case TypeImu3Mag:
		return "imu3-mag"
	case TypeImu6:
		return "imu6"
	case TypeImu9:
		return "imu9"
	case TypeImu10:
		return "imu10"
	case TypeImuQuat:
		return "imu-quat"
	case TypeDiag:
		return "diag"
	default:
		return "unknown"
	}
}

// Header is the fixed-width frame header. Timestamp is a hardware tick
// counter in microseconds and may wrap.
type Header struct {
	Version   uint8
	Type      Type
	Sequence  uint32
	Timestamp uint64
	Length    uint16
}

// Frame is one decoded unit of the wire protocol. Checksum and AuthTag
// cover the exact header+payload serialization.
type Frame struct {
	Header   Header
	Payload  Payload
	Checksum uint32
	AuthTag  [TagSize]byte
}

// Payload is one variant of the closed payload set.
type Payload interface {
	Type() Type
	size() int
	encodeTo(b []byte)
}

// Imu3AccPayload carries accelerometer projections in m/s^2.
type Imu3AccPayload struct {
	AccX float32 `json:"acc_x"`
	AccY float32 `json:"acc_y"`
	AccZ float32 `json:"acc_z"`
}

// Imu3GyrPayload carries angular velocities in rad/s.
type Imu3GyrPayload struct {
	GyrX float32 `json:"gyr_x"`
	GyrY float32 `json:"gyr_y"`
	GyrZ float32 `json:"gyr_z"`
}

// Imu3MagPayload carries magnetometer readings in Gauss.
type Imu3MagPayload struct {
	MagX float32 `json:"mag_x"`
	MagY float32 `json:"mag_y"`
	MagZ float32 `json:"mag_z"`
}

// Imu6Payload is the 6-axis sample (accelerometer + gyroscope).
type Imu6Payload struct {
	AccX float32 `json:"acc_x"`
	AccY float32 `json:"acc_y"`
	AccZ float32 `json:"acc_z"`
	GyrX float32 `json:"gyr_x"`
	GyrY float32 `json:"gyr_y"`
	GyrZ float32 `json:"gyr_z"`
}

// Imu9Payload is the 9-axis MARG sample.
type Imu9Payload struct {
	AccX float32 `json:"acc_x"`
	AccY float32 `json:"acc_y"`
	AccZ float32 `json:"acc_z"`
	GyrX float32 `json:"gyr_x"`
	GyrY float32 `json:"gyr_y"`
	GyrZ float32 `json:"gyr_z"`
	MagX float32 `json:"mag_x"`
	MagY float32 `json:"mag_y"`
	MagZ float32 `json:"mag_z"`
}

// Imu10Payload adds a barometric pressure reading to the MARG sample.
type Imu10Payload struct {
	AccX     float32 `json:"acc_x"`
	AccY     float32 `json:"acc_y"`
	AccZ     float32 `json:"acc_z"`
	GyrX     float32 `json:"gyr_x"`
	GyrY     float32 `json:"gyr_y"`
	GyrZ     float32 `json:"gyr_z"`
	MagX     float32 `json:"mag_x"`
	MagY     float32 `json:"mag_y"`
	MagZ     float32 `json:"mag_z"`
	Pressure float32 `json:"pressure"`
}

// ImuQuatPayload is an attitude quaternion computed on the sensor.
type ImuQuatPayload struct {
	W float32 `json:"w"`
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// DiagPayload is a vendor diagnostic record: a code and a free-form message.
type DiagPayload struct {
	Code    uint16 `json:"code"`
	Message string `json:"message"`
}

func (Imu3AccPayload) Type() Type { return TypeImu3Acc }
func (Imu3GyrPayload) Type() Type { return TypeImu3Gyr }
func (Imu3MagPayload) Type() Type { return TypeImu3Mag }
func (Imu6Payload) Type() Type    { return TypeImu6 }
func (Imu9Payload) Type() Type    { return TypeImu9 }
func (Imu10Payload) Type() Type   { return TypeImu10 }
func (ImuQuatPayload) Type() Type { return TypeImuQuat }
func (DiagPayload) Type() Type    { return TypeDiag }

func (Imu3AccPayload) size() int { return 12 }
func (Imu3GyrPayload) size() int { return 12 }
func (Imu3MagPayload) size() int { return 12 }
func (Imu6Payload) size() int    { return 24 }
func (Imu9Payload) size() int    { return 36 }
func (Imu10Payload) size() int   { return 40 }
func (ImuQuatPayload) size() int { return 16 }
func (p DiagPayload) size() int  { return 2 + len(p.Message) }
