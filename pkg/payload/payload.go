// Package payload defines the fixed-layout IMU sample carried on the link
// and its wire codec.
//
// A sample is exactly Size bytes with no padding and no envelope: one
// message on the socket is one sample. Fields are written in declaration
// order using ByteOrder.
package payload

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/billm/imulink/pkg/types"
)

// Size is the encoded length of a Sample in bytes
const Size = 52

// ByteOrder is the byte order used for every multi-byte field
var ByteOrder binary.ByteOrder = binary.LittleEndian

// ErrFraming is returned by Decode for a message whose length is not Size.
// Match it with errors.Is.
var ErrFraming = types.NewError(types.ErrCodeFraming, "message length does not match sample size")

// Sample is a single inertial measurement.
// Accelerations are in mg, angular rates in mdeg/s, magnetic field in
// mGauss and timestamps in milliseconds.
type Sample struct {
	AccX          float32 `json:"acc_x" yaml:"acc_x"`
	AccY          float32 `json:"acc_y" yaml:"acc_y"`
	AccZ          float32 `json:"acc_z" yaml:"acc_z"`
	AccTimestamp  uint32  `json:"acc_timestamp" yaml:"acc_timestamp"`
	GyroX         int32   `json:"gyro_x" yaml:"gyro_x"`
	GyroY         int32   `json:"gyro_y" yaml:"gyro_y"`
	GyroZ         int32   `json:"gyro_z" yaml:"gyro_z"`
	GyroTimestamp uint32  `json:"gyro_timestamp" yaml:"gyro_timestamp"`
	MagX          float32 `json:"mag_x" yaml:"mag_x"`
	MagY          float32 `json:"mag_y" yaml:"mag_y"`
	MagZ          float32 `json:"mag_z" yaml:"mag_z"`
	MagTimestamp  uint32  `json:"mag_timestamp" yaml:"mag_timestamp"`
}

// Field offsets within an encoded sample
const (
	offAccX          = 0
	offAccY          = 4
	offAccZ          = 8
	offAccTimestamp  = 12
	offGyroX         = 16
	offGyroY         = 20
	offGyroZ         = 24
	offGyroTimestamp = 28
	offMagX          = 32
	offMagY          = 36
	offMagZ          = 40
	offMagTimestamp  = 44
)

// Encode returns the wire form of s. It always returns exactly Size bytes.
func Encode(s Sample) []byte {
	b := make([]byte, Size)
	s.put(b)
	return b
}

// AppendEncode appends the wire form of s to dst and returns the extended
// slice. It does not allocate when dst has Size bytes of spare capacity.
func AppendEncode(dst []byte, s Sample) []byte {
	n := len(dst)
	if cap(dst)-n < Size {
		grown := make([]byte, n, n+Size)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:n+Size]
	s.put(dst[n:])
	return dst
}

// Decode parses one message. Any length other than Size is a framing
// violation and yields a zero Sample.
func Decode(b []byte) (Sample, error) {
	if len(b) != Size {
		return Sample{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFraming, len(b), Size)
	}

	return Sample{
		AccX:          getFloat32(b[offAccX:]),
		AccY:          getFloat32(b[offAccY:]),
		AccZ:          getFloat32(b[offAccZ:]),
		AccTimestamp:  ByteOrder.Uint32(b[offAccTimestamp:]),
		GyroX:         int32(ByteOrder.Uint32(b[offGyroX:])),
		GyroY:         int32(ByteOrder.Uint32(b[offGyroY:])),
		GyroZ:         int32(ByteOrder.Uint32(b[offGyroZ:])),
		GyroTimestamp: ByteOrder.Uint32(b[offGyroTimestamp:]),
		MagX:          getFloat32(b[offMagX:]),
		MagY:          getFloat32(b[offMagY:]),
		MagZ:          getFloat32(b[offMagZ:]),
		MagTimestamp:  ByteOrder.Uint32(b[offMagTimestamp:]),
	}, nil
}

// put writes s into b, which must be at least Size bytes
func (s Sample) put(b []byte) {
	_ = b[Size-1]
	putFloat32(b[offAccX:], s.AccX)
	putFloat32(b[offAccY:], s.AccY)
	putFloat32(b[offAccZ:], s.AccZ)
	ByteOrder.PutUint32(b[offAccTimestamp:], s.AccTimestamp)
	ByteOrder.PutUint32(b[offGyroX:], uint32(s.GyroX))
	ByteOrder.PutUint32(b[offGyroY:], uint32(s.GyroY))
	ByteOrder.PutUint32(b[offGyroZ:], uint32(s.GyroZ))
	ByteOrder.PutUint32(b[offGyroTimestamp:], s.GyroTimestamp)
	putFloat32(b[offMagX:], s.MagX)
	putFloat32(b[offMagY:], s.MagY)
	putFloat32(b[offMagZ:], s.MagZ)
	ByteOrder.PutUint32(b[offMagTimestamp:], s.MagTimestamp)
}

func putFloat32(b []byte, f float32) {
	ByteOrder.PutUint32(b, math.Float32bits(f))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(ByteOrder.Uint32(b))
}

// String returns a compact single-line representation for log output
func (s Sample) String() string {
	return fmt.Sprintf("Sample{Acc: [%g %g %g]@%d, Gyro: [%d %d %d]@%d, Mag: [%g %g %g]@%d}",
		s.AccX, s.AccY, s.AccZ, s.AccTimestamp,
		s.GyroX, s.GyroY, s.GyroZ, s.GyroTimestamp,
		s.MagX, s.MagY, s.MagZ, s.MagTimestamp)
}
