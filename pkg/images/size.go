package images

import "math"

const (
	// TilingFactor is the divisor both dimensions must satisfy for the
	// latent downsampling stages of the diffusion model.
	TilingFactor = 8
	// MinDimension is the smallest edge handed to the model.
	MinDimension = 384
	// MaxOversize bounds how far past the ceiling the long edge may grow
	// while lifting the short edge to MinDimension.
	MaxOversize = 2
)

// TargetSize computes the model input size for a w x h source and a resolution
// ceiling. The long edge is scaled to the ceiling; if the short edge would fall
// under MinDimension the scale is raised instead so the aspect ratio survives,
// with the long edge capped at MaxOversize*ceiling. Both results are multiples
// of TilingFactor and never below MinDimension.
func TargetSize(w, h, ceiling int) (int, int) {
	if w <= 0 || h <= 0 {
		return MinDimension, MinDimension
	}
	if ceiling < MinDimension {
		ceiling = MinDimension
	}

	long, short := float64(max(w, h)), float64(min(w, h))

	scale := float64(ceiling) / long
	if short*scale < MinDimension {
		scale = MinDimension / short
	}
	if maxLong := float64(ceiling * MaxOversize); long*scale > maxLong {
		scale = maxLong / long
	}

	return fitDimension(float64(w) * scale), fitDimension(float64(h) * scale)
}

func fitDimension(v float64) int {
	// the epsilon absorbs float error on exact multiples (383.99999 -> 384)
	d := int(math.Floor(v+1e-6)) / TilingFactor * TilingFactor
	return max(d, MinDimension)
}
