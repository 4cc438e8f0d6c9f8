package geo

import "math"

// gridEpsilon absorbs floating point noise when snapping to a grid, so that a
// value already on a grid line is not pushed to the next one.
const gridEpsilon = 1e-9

func floorTo(v, step float64) float64 { return math.Floor(v/step+gridEpsilon) * step }

func ceilTo(v, step float64) float64 { return math.Ceil(v/step-gridEpsilon) * step }

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
