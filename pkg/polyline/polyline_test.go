package polyline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/pkg/polyline"
)

// Reference values from the format documentation.
var googleExample = []geo.Coordinate{
	{Lat: 38.5, Lng: -120.2},
	{Lat: 40.7, Lng: -120.95},
	{Lat: 43.252, Lng: -126.453},
}

const googleEncoded = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func assertCoords(t *testing.T, want, got []geo.Coordinate, tolerance float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i].Lat, got[i].Lat, tolerance, "lat %d", i)
		assert.InDelta(t, want[i].Lng, got[i].Lng, tolerance, "lng %d", i)
	}
}

func TestEncode_Reference(t *testing.T) {
	assert.Equal(t, googleEncoded, polyline.Encode(googleExample))
	assert.Equal(t, "_p~iF~ps|U", polyline.Encode(googleExample[:1]))
	assert.Empty(t, polyline.Encode(nil))
}

func TestDecode_Reference(t *testing.T) {
	got, err := polyline.Decode(googleEncoded)
	require.NoError(t, err)
	assertCoords(t, googleExample, got, 1e-9)

	got, err = polyline.Decode("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecode_Truncated(t *testing.T) {
	for _, s := range []string{"_p~iF", "_p~iF~ps|", "_"} {
		_, err := polyline.Decode(s)
		assert.ErrorIs(t, err, polyline.ErrTruncated, s)
	}
}

func TestRoundTrip_MunichRide(t *testing.T) {
	// Marienplatz, Isartor, Deutsches Museum.
	ride := []geo.Coordinate{
		{Lat: 48.137430, Lng: 11.575490},
		{Lat: 48.135120, Lng: 11.581940},
		{Lat: 48.129870, Lng: 11.583460},
	}

	for _, p := range []polyline.Precision{polyline.Precision5, polyline.Precision6} {
		got, err := p.Decode(p.Encode(ride))
		require.NoError(t, err)
		assertCoords(t, ride, got, 1/float64(p))
	}
}

func TestPrecision6_DiffersFromPrecision5(t *testing.T) {
	pt := []geo.Coordinate{{Lat: 48.1374301, Lng: 11.5754912}}

	got5, err := polyline.Precision5.Decode(polyline.Precision5.Encode(pt))
	require.NoError(t, err)
	got6, err := polyline.Precision6.Decode(polyline.Precision6.Encode(pt))
	require.NoError(t, err)

	assert.InDelta(t, 48.13743, got5[0].Lat, 1e-9)
	assert.InDelta(t, 48.137430, got6[0].Lat, 1e-9)
	assert.InDelta(t, 11.575491, got6[0].Lng, 1e-9)
}

func BenchmarkEncode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = polyline.Encode(googleExample)
	}
}
