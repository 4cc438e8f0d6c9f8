package graphhopper

// routeResponse is the body of a successful /route call with points_encoded=false.
type routeResponse struct {
	Paths []path `json:"paths"`
	Info  struct {
		Took int `json:"took"`
	} `json:"info"`
}

type path struct {
	Distance float64 `json:"distance"` // meters
	Time     float64 `json:"time"`     // milliseconds
	Points   struct {
		Type        string      `json:"type"`
		Coordinates [][]float64 `json:"coordinates"` // [lng, lat]
	} `json:"points"`
	BBox []float64 `json:"bbox,omitempty"`
}

// errorResponse is the GraphHopper error body.
type errorResponse struct {
	Message string `json:"message"`
	Hints   []struct {
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"hints"`
}

// Exception classes GraphHopper reports when no route can exist.
const (
	detailPointNotFound      = "com.graphhopper.util.exceptions.PointNotFoundException"
	detailConnectionNotFound = "com.graphhopper.util.exceptions.ConnectionNotFoundException"
	detailPointOutOfBounds   = "com.graphhopper.util.exceptions.PointOutOfBoundsException"
)

func (e errorResponse) noRoute() bool {
	for _, h := range e.Hints {
		switch h.Details {
		case detailPointNotFound, detailConnectionNotFound, detailPointOutOfBounds:
			return true
		}
	}
	return false
}
