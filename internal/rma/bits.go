package rma

import "math"

// toBits packs a scalar T into the 64-bit wire value used by P and the
// set/add family of AMOs, the same way the wire.Request record always
// carries a fixed-width BsizeOrValue regardless of the element's
// native width.
func toBits[T Number](v T) uint64 {
	switch x := any(v).(type) {
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case int8:
		return uint64(x)
	case int16:
		return uint64(x)
	case int32:
		return uint64(x)
	case int64:
		return uint64(x)
	case float32:
		return uint64(math.Float32bits(x))
	case float64:
		return math.Float64bits(x)
	default:
		return 0
	}
}

// fromBits is toBits' inverse, used to decode G and fetch-AMO results.
func fromBits[T Number](bits uint64) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return any(uint8(bits)).(T)
	case uint16:
		return any(uint16(bits)).(T)
	case uint32:
		return any(uint32(bits)).(T)
	case uint64:
		return any(bits).(T)
	case int8:
		return any(int8(bits)).(T)
	case int16:
		return any(int16(bits)).(T)
	case int32:
		return any(int32(bits)).(T)
	case int64:
		return any(int64(bits)).(T)
	case float32:
		return any(math.Float32frombits(uint32(bits))).(T)
	case float64:
		return any(math.Float64frombits(bits)).(T)
	default:
		return zero
	}
}
