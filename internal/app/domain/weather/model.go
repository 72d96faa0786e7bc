package weather

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/triggerr/core/internal/app/domain/flight"
)

// Condition enumerates canonical weather conditions.
type Condition string

const (
	ConditionClear        Condition = "CLEAR"
	ConditionPartlyCloudy Condition = "PARTLY_CLOUDY"
	ConditionCloudy       Condition = "CLOUDY"
	ConditionLightRain    Condition = "LIGHT_RAIN"
	ConditionModerateRain Condition = "MODERATE_RAIN"
	ConditionHeavyRain    Condition = "HEAVY_RAIN"
	ConditionThunderstorm Condition = "THUNDERSTORM"
	ConditionSnow         Condition = "SNOW"
	ConditionFog          Condition = "FOG"
	ConditionMist         Condition = "MIST"
	ConditionUnknown      Condition = "UNKNOWN"
)

// ParseCondition maps a provider condition string to a canonical Condition.
// Unrecognized values map to ConditionUnknown rather than being dropped.
func ParseCondition(raw string) Condition {
	normalized := Condition(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")))
	switch normalized {
	case ConditionClear, ConditionPartlyCloudy, ConditionCloudy, ConditionLightRain,
		ConditionModerateRain, ConditionHeavyRain, ConditionThunderstorm,
		ConditionSnow, ConditionFog, ConditionMist:
		return normalized
	default:
		return ConditionUnknown
	}
}

// Severe reports whether the condition alone is disruptive enough to trigger
// weather coverage.
func (c Condition) Severe() bool {
	switch c {
	case ConditionThunderstorm, ConditionSnow, ConditionHeavyRain:
		return true
	default:
		return false
	}
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Validate checks coordinate bounds.
func (c Coordinates) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range", c.Lon)
	}
	return nil
}

// GridKey rounds the point to the configured grid so near-identical lookups
// share one cache entry.
func (c Coordinates) GridKey(decimals int) string {
	scale := math.Pow10(decimals)
	lat := math.Round(c.Lat*scale) / scale
	lon := math.Round(c.Lon*scale) / scale
	return fmt.Sprintf("%.*f:%.*f", decimals, lat, decimals, lon)
}

// Canonical is the merged weather observation for one location.
type Canonical struct {
	Coordinates          Coordinates
	AirportIATA          string
	ObservationTimestamp time.Time

	TemperatureCelsius       float64
	WindSpeedKmh             float64
	PrecipitationProbability float64
	Condition                Condition

	SourceContributions []flight.SourceContribution
	DataQualityScore    float64
	LastUpdated         time.Time
}

// Validate enforces the measurement invariants.
func (c Canonical) Validate() error {
	if err := c.Coordinates.Validate(); err != nil {
		return err
	}
	if c.TemperatureCelsius < -60 || c.TemperatureCelsius > 60 {
		return fmt.Errorf("temperature %f out of range", c.TemperatureCelsius)
	}
	if c.PrecipitationProbability < 0 || c.PrecipitationProbability > 1 {
		return fmt.Errorf("precipitation probability %f out of range", c.PrecipitationProbability)
	}
	if c.WindSpeedKmh < 0 {
		return fmt.Errorf("wind speed must be non-negative")
	}
	if c.DataQualityScore < 0 || c.DataQualityScore > 1 {
		return fmt.Errorf("data quality score %f out of range", c.DataQualityScore)
	}
	return nil
}
