package overpass

import (
	"fmt"
	"strings"
	"time"

	"github.com/mradl/mradl/internal/environment"
	"github.com/mradl/mradl/internal/geo"
)

// Tag predicates per feature kind.
var selectors = map[environment.Kind][]string{
	environment.KindLight: {
		`node["highway"="street_lamp"]`,
		`way["lit"="yes"]`,
	},
	environment.KindShade: {
		`node["natural"="tree"]`,
		`way["natural"="tree_row"]`,
		`way["leisure"="park"]`,
		`way["landuse"="forest"]`,
		`way["natural"="wood"]`,
	},
}

// BuildQuery renders the Overpass QL for kind inside bbox.
func BuildQuery(kind environment.Kind, bbox geo.BoundingBox, timeout time.Duration) (string, error) {
	preds, ok := selectors[kind]
	if !ok {
		return "", environment.ErrUnknownKind
	}

	box := fmt.Sprintf("(%.6f,%.6f,%.6f,%.6f)", bbox.South, bbox.West, bbox.North, bbox.East)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", max(int(timeout.Seconds()), 1))
	for _, p := range preds {
		b.WriteString("  ")
		b.WriteString(p)
		b.WriteString(box)
		b.WriteString(";\n")
	}
	b.WriteString(");\nout center;")
	return b.String(), nil
}
