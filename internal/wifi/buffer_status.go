package wifi

import "math"

// BufferStatus is the 8-bit queue size a station reports in response to a
// buffer status poll.
type BufferStatus uint8

const (
	BufferStatusEmpty     BufferStatus = 0
	BufferStatusUnbounded BufferStatus = 254
	BufferStatusUnknown   BufferStatus = 255

	// BufferStatusUnit is the number of bytes represented by one step of a quantized report.
	BufferStatusUnit = 256
	// MaxQuantizedBytes is the largest byte count a quantized report can express.
	MaxQuantizedBytes = 253 * BufferStatusUnit
)

// Demand is the uplink payload a station is expected to send.
type Demand struct {
	Bytes uint32
	// Unbounded is set for a report of 254; Bytes is zero in that case.
	Unbounded bool
	// Estimated is set for a report of 255, where Bytes holds the configured default.
	Estimated bool
}

// Decode interprets the report. defaultSize is used for 255.
func (b BufferStatus) Decode(defaultSize uint32) Demand {
	switch b {
	case BufferStatusEmpty:
		return Demand{}
	case BufferStatusUnbounded:
		return Demand{Unbounded: true}
	case BufferStatusUnknown:
		return Demand{Bytes: defaultSize, Estimated: true}
	}
	return Demand{Bytes: uint32(b) * BufferStatusUnit}
}

func (d Demand) IsZero() bool {
	return !d.Unbounded && d.Bytes == 0
}

// Size returns the byte count to plan for; unbounded demand saturates.
func (d Demand) Size() uint32 {
	if d.Unbounded {
		return math.MaxUint32
	}
	return d.Bytes
}

// Weight returns the demand as an allocation weight. Unbounded demand weighs
// as the largest quantized report so it cannot swamp the other stations.
func (d Demand) Weight() uint64 {
	if d.Unbounded {
		return MaxQuantizedBytes
	}
	return uint64(d.Bytes)
}

// QuantizeBufferStatus builds the report a station with the given backlog sends.
func QuantizeBufferStatus(backlog uint64) BufferStatus {
	if backlog == 0 {
		return BufferStatusEmpty
	}
	if backlog > MaxQuantizedBytes {
		return BufferStatusUnbounded
	}
	return BufferStatus((backlog + BufferStatusUnit - 1) / BufferStatusUnit)
}
