package event

import "math"

// ToUint8 maps a float64 frame onto uint8 for display and storage:
// min-max normalize, log1p stretch, renormalize, scale to 0..255.
//
// Flat frames (max == min, all-zero detectors included) come back as
// zeros rather than dividing by zero.
func ToUint8(frame []float64) []uint8 {
	out := make([]uint8, len(frame))
	if len(frame) == 0 {
		return out
	}

	lo, hi := frame[0], frame[0]
	for _, v := range frame[1:] {
		if v < lo {
			lo = v
		}
		if hi < v {
			hi = v
		}
	}
	if hi == lo {
		return out
	}

	scale := math.Log1p(1)
	for i, v := range frame {
		n := (v - lo) / (hi - lo)
		out[i] = uint8(math.Round(math.Log1p(n) / scale * 255))
	}
	return out
}
