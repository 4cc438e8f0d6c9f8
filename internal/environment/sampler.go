package environment

import "github.com/mradl/mradl/internal/geo"

// Score counts sampled route points that have a feature within the
// threshold. Only every Stride-th point is sampled, starting with the first.
func Score(route, features []geo.Coordinate, p Params) int {
	stride := max(p.Stride, 1)
	covered := 0
	for i := 0; i < len(route); i += stride {
		for _, f := range features {
			if geo.WithinPlanar(route[i], f, p.Threshold) {
				covered++
				break
			}
		}
	}
	return covered
}

// SampleCount returns how many points Score inspects for a route of n points.
func SampleCount(n int, p Params) int {
	stride := max(p.Stride, 1)
	if n <= 0 {
		return 0
	}
	return (n + stride - 1) / stride
}
