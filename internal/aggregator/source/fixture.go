package source

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/triggerr/core/internal/app/domain/flight"
	"github.com/triggerr/core/internal/app/domain/weather"
)

// Fixture adapters back the aggregators when real providers are disabled.
// Responses are deterministic functions of the key so repeated lookups agree
// across processes and test runs; the one exception is the weather
// observation timestamp, which is the current time.

func fixtureHash(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// FlightFixture is a deterministic in-process flight source.
type FlightFixture struct {
	name        string
	priority    int
	reliability float64
	// delaySkewMinutes perturbs the reported delay so multiple fixtures
	// exercise the resolver's numeric merge.
	delaySkewMinutes int
}

// NewFlightFixture constructs a fixture flight source.
func NewFlightFixture(name string, priority int, reliability float64, delaySkewMinutes int) *FlightFixture {
	return &FlightFixture{name: name, priority: priority, reliability: reliability, delaySkewMinutes: delaySkewMinutes}
}

func (f *FlightFixture) Name() string                          { return f.name }
func (f *FlightFixture) Priority() int                         { return f.priority }
func (f *FlightFixture) Reliability() float64                  { return f.reliability }
func (f *FlightFixture) IsAvailable(_ context.Context) bool    { return true }

// FetchFlight synthesizes a plausible record for the key.
func (f *FlightFixture) FetchFlight(_ context.Context, flightNumber, date string) (*flight.Canonical, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, err
	}
	h := fixtureHash("flight", flightNumber, date)
	scheduled := day.Add(time.Duration(6+h%12) * time.Hour).UTC()

	record := flight.Canonical{
		FlightNumber:       flightNumber,
		ScheduledDeparture: scheduled,
		OriginIATA:         fixtureAirports[h%uint64(len(fixtureAirports))],
		DestinationIATA:    fixtureAirports[(h>>8)%uint64(len(fixtureAirports))],
	}
	if record.OriginIATA == record.DestinationIATA {
		next := (h%uint64(len(fixtureAirports)) + 1) % uint64(len(fixtureAirports))
		record.DestinationIATA = fixtureAirports[next]
	}

	switch h % 10 {
	case 0: // cancelled
		record.Status = flight.StatusCancelled
	case 1, 2: // delayed
		record.Status = flight.StatusDelayed
		delay := int(20+h%90) + f.delaySkewMinutes
		if delay < 1 {
			delay = 1
		}
		record.DepartureDelayMinutes = &delay
		actual := scheduled.Add(time.Duration(delay) * time.Minute)
		record.ActualDeparture = &actual
	case 3: // landed
		record.Status = flight.StatusLanded
		actual := scheduled
		arrival := scheduled.Add(2 * time.Hour)
		record.ActualDeparture = &actual
		record.ActualArrival = &arrival
	default:
		record.Status = flight.StatusOnTime
		actual := scheduled
		record.ActualDeparture = &actual
	}
	return &record, nil
}

var fixtureAirports = []string{"JFK", "LAX", "ORD", "LHR", "CDG", "FRA", "SIN", "NRT", "SFO", "ATL"}

// WeatherFixture is a deterministic in-process weather source.
type WeatherFixture struct {
	name        string
	priority    int
	reliability float64
	tempSkew    float64
}

// NewWeatherFixture constructs a fixture weather source.
func NewWeatherFixture(name string, priority int, reliability float64, tempSkew float64) *WeatherFixture {
	return &WeatherFixture{name: name, priority: priority, reliability: reliability, tempSkew: tempSkew}
}

func (f *WeatherFixture) Name() string                       { return f.name }
func (f *WeatherFixture) Priority() int                      { return f.priority }
func (f *WeatherFixture) Reliability() float64               { return f.reliability }
func (f *WeatherFixture) IsAvailable(_ context.Context) bool { return true }

var fixtureConditions = []weather.Condition{
	weather.ConditionClear,
	weather.ConditionPartlyCloudy,
	weather.ConditionCloudy,
	weather.ConditionLightRain,
	weather.ConditionModerateRain,
	weather.ConditionClear,
	weather.ConditionHeavyRain,
	weather.ConditionThunderstorm,
	weather.ConditionSnow,
	weather.ConditionFog,
}

// FetchWeather synthesizes a plausible observation for the location.
func (f *WeatherFixture) FetchWeather(_ context.Context, coords weather.Coordinates, date string) (*weather.Canonical, error) {
	h := fixtureHash("weather", coords.GridKey(4), date)
	condition := fixtureConditions[h%uint64(len(fixtureConditions))]

	temp := -10 + float64(h%40) + f.tempSkew
	if temp > 45 {
		temp = 45
	}
	wind := float64(h % 70)
	if condition == weather.ConditionThunderstorm || condition == weather.ConditionHeavyRain {
		wind += 30
	}
	precip := float64(h%100) / 100
	if condition.Severe() {
		precip = 0.8 + float64(h%20)/100
	}
	if precip > 1 {
		precip = 1
	}

	return &weather.Canonical{
		Coordinates:              coords,
		ObservationTimestamp:     time.Now().UTC().Truncate(time.Minute),
		TemperatureCelsius:       temp,
		WindSpeedKmh:             wind,
		PrecipitationProbability: precip,
		Condition:                condition,
	}, nil
}
