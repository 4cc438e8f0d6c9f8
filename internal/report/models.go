// Package report handles crowd-submitted map reports and keeps a live
// registry of danger zones built from theft reports.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/mradl/mradl/internal/geo"
)

// Report errors.
var (
	// ErrPersistence wraps any failure to write to or read from the report store.
	ErrPersistence = errors.New("report persistence failed")
	// ErrUnknownCategory is returned for a category outside the supported set.
	ErrUnknownCategory = errors.New("unknown report category")
	// ErrUnknownCollection is returned when listing a collection that does not exist.
	ErrUnknownCollection = errors.New("unknown report collection")
	// ErrInvalidSubmission is returned when a submission fails validation.
	ErrInvalidSubmission = errors.New("invalid report submission")
)

// Category is the kind of report a rider submits from the map.
type Category string

const (
	CategoryTheft  Category = "report_theft"
	CategoryRack   Category = "add_rack"
	CategoryRepair Category = "repair"
)

// Collection is where reports of a category are stored.
type Collection string

const (
	CollectionTheft  Collection = "theft_reports"
	CollectionRacks  Collection = "bike_racks"
	CollectionRepair Collection = "repair_stations"
)

// Collections lists every report collection.
var Collections = []Collection{CollectionTheft, CollectionRacks, CollectionRepair}

var categoryCollections = map[Category]Collection{
	CategoryTheft:  CollectionTheft,
	CategoryRack:   CollectionRacks,
	CategoryRepair: CollectionRepair,
}

// CollectionFor returns the collection a category is stored in.
func CollectionFor(c Category) (Collection, error) {
	col, ok := categoryCollections[c]
	if !ok {
		return "", ErrUnknownCategory
	}
	return col, nil
}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	for _, c := range Collections {
		if string(c) == s {
			return c, nil
		}
	}
	return "", ErrUnknownCollection
}

// Report is a stored report. Reports are never modified after creation.
type Report struct {
	ID         string     `json:"id"`
	Collection Collection `json:"collection"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	ReportedAt time.Time  `json:"reportedAt"`
	Reporter   string     `json:"reporter"`
}

// Coordinate returns the report position.
func (r Report) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: r.Lat, Lng: r.Lng}
}

// Submission is a report as entered by a rider.
type Submission struct {
	Category Category `validate:"required,oneof=report_theft add_rack repair"`
	Lat      float64  `validate:"latitude"`
	Lng      float64  `validate:"longitude"`
	Reporter string   `validate:"required,max=128"`
}

// Store persists reports. Insert assigns the id and the server timestamp.
type Store interface {
	Insert(ctx context.Context, collection Collection, lat, lng float64, reporter string) (Report, error)
	List(ctx context.Context, collection Collection) ([]Report, error)
}

// Subscriber delivers the full contents of a collection whenever it
// changes. The returned function cancels the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, collection Collection, onChange func([]Report)) (unsubscribe func(), err error)
}
