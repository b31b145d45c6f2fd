package sensor

import (
	"math/rand"
	"time"

	"github.com/billm/imulink/pkg/payload"
)

// Ranges of the simulated readings
const (
	accRangeMg     = 2000   // ±2 g
	gravityMg      = 1000   // resting Z axis
	gyroRangeMdps  = 250000 // ±250 deg/s
	magRangeMGauss = 600
)

// RandomSource generates plausible random readings. All three timestamps
// are set to the generation time in milliseconds since the source was
// created.
type RandomSource struct {
	rng   *rand.Rand
	epoch time.Time
	now   func() time.Time
}

// NewRandomSource creates a random source. A zero seed picks one from the
// current time.
func NewRandomSource(seed int64) *RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSource{
		rng:   rand.New(rand.NewSource(seed)),
		epoch: time.Now(),
		now:   time.Now,
	}
}

// Next returns a new random sample
func (r *RandomSource) Next() (payload.Sample, error) {
	ts := millisSince(r.epoch, r.now())
	return payload.Sample{
		AccX:          r.symmetric(accRangeMg),
		AccY:          r.symmetric(accRangeMg),
		AccZ:          gravityMg + r.symmetric(accRangeMg/10),
		AccTimestamp:  ts,
		GyroX:         r.symmetricInt(gyroRangeMdps),
		GyroY:         r.symmetricInt(gyroRangeMdps),
		GyroZ:         r.symmetricInt(gyroRangeMdps),
		GyroTimestamp: ts,
		MagX:          r.symmetric(magRangeMGauss),
		MagY:          r.symmetric(magRangeMGauss),
		MagZ:          r.symmetric(magRangeMGauss),
		MagTimestamp:  ts,
	}, nil
}

// symmetric returns a value in [-limit, limit)
func (r *RandomSource) symmetric(limit float32) float32 {
	return (r.rng.Float32()*2 - 1) * limit
}

// symmetricInt returns a value in [-limit, limit]
func (r *RandomSource) symmetricInt(limit int32) int32 {
	return r.rng.Int31n(2*limit+1) - limit
}
