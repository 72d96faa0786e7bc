package router

import (
	"strings"

	"github.com/triggerr/core/internal/app/domain/weather"
)

// airportCoordinates maps IATA codes to field coordinates for the airports the
// coverage footprint serves. Codes missing from the table are skipped by the
// router and get no weather lookup.
var airportCoordinates = map[string]weather.Coordinates{
	"ATL": {Lat: 33.6407, Lon: -84.4277},
	"AMS": {Lat: 52.3105, Lon: 4.7683},
	"BCN": {Lat: 41.2974, Lon: 2.0833},
	"BOS": {Lat: 42.3656, Lon: -71.0096},
	"CDG": {Lat: 49.0097, Lon: 2.5479},
	"CLT": {Lat: 35.2140, Lon: -80.9431},
	"DEN": {Lat: 39.8561, Lon: -104.6737},
	"DFW": {Lat: 32.8998, Lon: -97.0403},
	"DUB": {Lat: 53.4264, Lon: -6.2499},
	"DXB": {Lat: 25.2532, Lon: 55.3657},
	"EWR": {Lat: 40.6895, Lon: -74.1745},
	"FCO": {Lat: 41.8003, Lon: 12.2389},
	"FRA": {Lat: 50.0379, Lon: 8.5622},
	"GRU": {Lat: -23.4356, Lon: -46.4731},
	"HKG": {Lat: 22.3080, Lon: 113.9185},
	"HND": {Lat: 35.5494, Lon: 139.7798},
	"IAD": {Lat: 38.9531, Lon: -77.4565},
	"IAH": {Lat: 29.9902, Lon: -95.3368},
	"ICN": {Lat: 37.4602, Lon: 126.4407},
	"IST": {Lat: 41.2753, Lon: 28.7519},
	"JFK": {Lat: 40.6413, Lon: -73.7781},
	"LAS": {Lat: 36.0840, Lon: -115.1537},
	"LAX": {Lat: 33.9416, Lon: -118.4085},
	"LGA": {Lat: 40.7769, Lon: -73.8740},
	"LHR": {Lat: 51.4700, Lon: -0.4543},
	"MAD": {Lat: 40.4983, Lon: -3.5676},
	"MEX": {Lat: 19.4363, Lon: -99.0721},
	"MIA": {Lat: 25.7959, Lon: -80.2870},
	"MSP": {Lat: 44.8848, Lon: -93.2223},
	"MUC": {Lat: 48.3538, Lon: 11.7861},
	"NRT": {Lat: 35.7720, Lon: 140.3929},
	"ORD": {Lat: 41.9742, Lon: -87.9073},
	"PEK": {Lat: 40.0799, Lon: 116.6031},
	"PHX": {Lat: 33.4373, Lon: -112.0078},
	"SEA": {Lat: 47.4502, Lon: -122.3088},
	"SFO": {Lat: 37.6213, Lon: -122.3790},
	"SIN": {Lat: 1.3644, Lon: 103.9915},
	"SLC": {Lat: 40.7899, Lon: -111.9791},
	"SYD": {Lat: -33.9399, Lon: 151.1753},
	"YYZ": {Lat: 43.6777, Lon: -79.6248},
	"ZRH": {Lat: 47.4582, Lon: 8.5555},
}

// AirportCoordinates resolves an IATA code to coordinates.
func AirportCoordinates(iata string) (weather.Coordinates, bool) {
	coords, ok := airportCoordinates[strings.ToUpper(strings.TrimSpace(iata))]
	return coords, ok
}
