package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/triggerr/core/internal/app/domain/weather"
	"github.com/triggerr/core/pkg/logger"
)

// --- Google Weather -----------------------------------------------------------

// GoogleWeatherClient adapts the Google Weather currentConditions API.
type GoogleWeatherClient struct {
	httpAdapter
}

// NewGoogleWeatherClient constructs a Google Weather adapter.
func NewGoogleWeatherClient(endpoint, apiKey string, client *http.Client, log *logger.Logger) (*GoogleWeatherClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google weather api key is required")
	}
	base, err := newHTTPAdapter("google-weather", 100, 0.92, endpoint, apiKey, client, log)
	if err != nil {
		return nil, err
	}
	return &GoogleWeatherClient{httpAdapter: base}, nil
}

// FetchWeather looks up current conditions for one coordinate.
func (c *GoogleWeatherClient) FetchWeather(ctx context.Context, coords weather.Coordinates, date string) (*weather.Canonical, error) {
	_ = date // the current-conditions endpoint has no historical mode
	reqURL := *c.endpoint
	q := reqURL.Query()
	q.Set("key", c.apiKey)
	q.Set("location.latitude", fmt.Sprintf("%f", coords.Lat))
	q.Set("location.longitude", fmt.Sprintf("%f", coords.Lon))
	reqURL.RawQuery = q.Encode()

	body, err := c.get(ctx, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)
	if !root.Get("weatherCondition").Exists() && !root.Get("temperature").Exists() {
		return nil, nil
	}

	record := weather.Canonical{
		Coordinates:              coords,
		TemperatureCelsius:       root.Get("temperature.degrees").Float(),
		WindSpeedKmh:             root.Get("wind.speed.value").Float(),
		PrecipitationProbability: root.Get("precipitation.probability.percent").Float() / 100,
		Condition:                mapGoogleCondition(root.Get("weatherCondition.type").String()),
	}
	record.ObservationTimestamp = parseRFC3339(root.Get("currentTime").String())
	return &record, nil
}

func mapGoogleCondition(raw string) weather.Condition {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CLEAR", "MOSTLY_CLEAR":
		return weather.ConditionClear
	case "PARTLY_CLOUDY", "MOSTLY_CLOUDY":
		return weather.ConditionPartlyCloudy
	case "CLOUDY", "OVERCAST":
		return weather.ConditionCloudy
	case "LIGHT_RAIN", "DRIZZLE", "RAIN_SHOWERS":
		return weather.ConditionLightRain
	case "RAIN", "MODERATE_RAIN":
		return weather.ConditionModerateRain
	case "HEAVY_RAIN", "RAIN_PERIODICALLY_HEAVY":
		return weather.ConditionHeavyRain
	case "THUNDERSTORM", "THUNDERSHOWER":
		return weather.ConditionThunderstorm
	case "SNOW", "LIGHT_SNOW", "HEAVY_SNOW", "SNOW_SHOWERS":
		return weather.ConditionSnow
	case "FOG":
		return weather.ConditionFog
	case "MIST", "HAZE":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}

// --- OpenWeather --------------------------------------------------------------

// OpenWeatherClient adapts the OpenWeather current weather API.
type OpenWeatherClient struct {
	httpAdapter
}

// NewOpenWeatherClient constructs an OpenWeather adapter.
func NewOpenWeatherClient(endpoint, apiKey string, client *http.Client, log *logger.Logger) (*OpenWeatherClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openweather api key is required")
	}
	base, err := newHTTPAdapter("openweather", 70, 0.85, endpoint, apiKey, client, log)
	if err != nil {
		return nil, err
	}
	return &OpenWeatherClient{httpAdapter: base}, nil
}

// FetchWeather looks up current conditions for one coordinate.
func (c *OpenWeatherClient) FetchWeather(ctx context.Context, coords weather.Coordinates, date string) (*weather.Canonical, error) {
	_ = date
	reqURL := *c.endpoint
	q := reqURL.Query()
	q.Set("appid", c.apiKey)
	q.Set("lat", fmt.Sprintf("%f", coords.Lat))
	q.Set("lon", fmt.Sprintf("%f", coords.Lon))
	q.Set("units", "metric")
	reqURL.RawQuery = q.Encode()

	body, err := c.get(ctx, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)
	if !root.Get("main").Exists() {
		return nil, nil
	}

	condition := mapOpenWeatherCondition(root.Get("weather.0.main").String(), root.Get("weather.0.id").Int())
	record := weather.Canonical{
		Coordinates:        coords,
		TemperatureCelsius: root.Get("main.temp").Float(),
		// OpenWeather reports wind in m/s under metric units.
		WindSpeedKmh:             root.Get("wind.speed").Float() * 3.6,
		PrecipitationProbability: openWeatherPrecipProbability(root, condition),
		Condition:                condition,
	}
	if v := root.Get("dt"); v.Exists() && v.Int() > 0 {
		record.ObservationTimestamp = timeUnix(v.Int())
	}
	return &record, nil
}

func mapOpenWeatherCondition(main string, id int64) weather.Condition {
	switch strings.ToLower(strings.TrimSpace(main)) {
	case "clear":
		return weather.ConditionClear
	case "clouds":
		if id == 801 || id == 802 {
			return weather.ConditionPartlyCloudy
		}
		return weather.ConditionCloudy
	case "drizzle":
		return weather.ConditionLightRain
	case "rain":
		switch {
		case id >= 502: // heavy intensity and above
			return weather.ConditionHeavyRain
		case id == 500:
			return weather.ConditionLightRain
		default:
			return weather.ConditionModerateRain
		}
	case "thunderstorm":
		return weather.ConditionThunderstorm
	case "snow":
		return weather.ConditionSnow
	case "fog":
		return weather.ConditionFog
	case "mist", "haze":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}

func timeUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// openWeatherPrecipProbability approximates a probability from the forecast
// `pop` field when present, falling back to a condition-derived prior.
func openWeatherPrecipProbability(root gjson.Result, condition weather.Condition) float64 {
	if v := root.Get("pop"); v.Exists() {
		p := v.Float()
		if p >= 0 && p <= 1 {
			return p
		}
	}
	switch condition {
	case weather.ConditionThunderstorm, weather.ConditionHeavyRain:
		return 0.9
	case weather.ConditionModerateRain, weather.ConditionSnow:
		return 0.7
	case weather.ConditionLightRain:
		return 0.5
	case weather.ConditionCloudy:
		return 0.2
	default:
		return 0.05
	}
}
