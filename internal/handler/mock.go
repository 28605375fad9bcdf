package handler

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const mockDeviceID = "car01"

// mockRoute is a short drive through downtown San Francisco in [lon, lat]
var mockRoute = orb.LineString{
	{-122.4194, 37.7749},
	{-122.4180, 37.7750},
	{-122.4170, 37.7755},
	{-122.4160, 37.7760},
	{-122.4150, 37.7765},
	{-122.4140, 37.7770},
	{-122.4130, 37.7775},
	{-122.4120, 37.7780},
	{-122.4110, 37.7785},
	{-122.4100, 37.7790},
}

var mockStart = time.Date(2025, time.January, 13, 13, 0, 0, 0, time.UTC)

// mockPayload is served whenever upstream data is unavailable or demo data
// was requested.
var mockPayload = buildMockPayload()

func buildMockPayload() []byte {
	timestamps := make([]string, len(mockRoute))
	for i := range mockRoute {
		timestamps[i] = mockStart.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
	}

	f := geojson.NewFeature(mockRoute)
	f.Properties["device_id"] = mockDeviceID
	f.Properties["timestamps"] = timestamps

	fc := geojson.NewFeatureCollection()
	fc.Append(f)

	data, err := json.Marshal(fc)
	if err != nil {
		panic("handler: cannot encode mock payload: " + err.Error())
	}
	return data
}
