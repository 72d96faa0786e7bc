package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/triggerr/core/internal/app/domain/flight"
	"github.com/triggerr/core/pkg/logger"
)

const (
	defaultFetchBodyLimit = int64(1 << 20) // 1 MiB
	defaultRateLimit      = rate.Limit(5)  // requests per second per provider
	defaultRateBurst      = 10
)

// httpAdapter carries the shared plumbing of every HTTP provider adapter.
type httpAdapter struct {
	name        string
	priority    int
	reliability float64
	endpoint    *url.URL
	apiKey      string
	client      *http.Client
	limiter     *rate.Limiter
	bodyLimit   int64
	log         *logger.Logger
}

func newHTTPAdapter(name string, priority int, reliability float64, endpoint, apiKey string, client *http.Client, log *logger.Logger) (httpAdapter, error) {
	if strings.TrimSpace(endpoint) == "" {
		return httpAdapter{}, fmt.Errorf("%s endpoint is required", name)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return httpAdapter{}, fmt.Errorf("parse %s endpoint: %w", name, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault(name)
	}
	return httpAdapter{
		name:        name,
		priority:    priority,
		reliability: reliability,
		endpoint:    u,
		apiKey:      strings.TrimSpace(apiKey),
		client:      client,
		limiter:     rate.NewLimiter(defaultRateLimit, defaultRateBurst),
		bodyLimit:   defaultFetchBodyLimit,
		log:         log,
	}, nil
}

func (a *httpAdapter) Name() string        { return a.name }
func (a *httpAdapter) Priority() int       { return a.priority }
func (a *httpAdapter) Reliability() float64 { return a.reliability }

// IsAvailable reports whether the adapter is configured. Transport-level
// health is tracked by the source router, not probed here.
func (a *httpAdapter) IsAvailable(ctx context.Context) bool {
	_ = ctx
	return a.endpoint != nil
}

// get executes a rate-limited GET and returns the body, distinguishing
// retryable upstream statuses from terminal ones.
func (a *httpAdapter) get(ctx context.Context, requestURL string, header http.Header) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.bodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// --- FlightAware AeroAPI ------------------------------------------------------

// FlightAwareClient adapts the FlightAware AeroAPI to the flight contract.
type FlightAwareClient struct {
	httpAdapter
}

// NewFlightAwareClient constructs a FlightAware adapter.
func NewFlightAwareClient(endpoint, apiKey string, client *http.Client, log *logger.Logger) (*FlightAwareClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("flightaware api key is required")
	}
	base, err := newHTTPAdapter("flightaware", 100, 0.95, endpoint, apiKey, client, log)
	if err != nil {
		return nil, err
	}
	return &FlightAwareClient{httpAdapter: base}, nil
}

// FetchFlight queries /flights/{ident} filtered to the requested date.
func (c *FlightAwareClient) FetchFlight(ctx context.Context, flightNumber, date string) (*flight.Canonical, error) {
	reqURL := *c.endpoint
	reqURL.Path = strings.TrimRight(reqURL.Path, "/") + "/flights/" + url.PathEscape(flightNumber)
	q := reqURL.Query()
	q.Set("start", date)
	reqURL.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("x-apikey", c.apiKey)
	body, err := c.get(ctx, reqURL.String(), header)
	if err != nil {
		return nil, err
	}

	first := gjson.GetBytes(body, "flights.0")
	if !first.Exists() {
		return nil, nil
	}

	record := flight.Canonical{
		FlightNumber:    strings.ToUpper(flightNumber),
		OriginIATA:      first.Get("origin.code_iata").String(),
		DestinationIATA: first.Get("destination.code_iata").String(),
		Status:          mapFlightAwareStatus(first),
	}
	record.ScheduledDeparture = parseRFC3339(first.Get("scheduled_out").String())
	record.ActualDeparture = parseOptionalTime(first.Get("actual_out").String())
	record.ActualArrival = parseOptionalTime(first.Get("actual_in").String())
	// AeroAPI reports delays in seconds.
	if v := first.Get("departure_delay"); v.Exists() {
		record.DepartureDelayMinutes = minutesFromSeconds(v.Int())
	}
	if v := first.Get("arrival_delay"); v.Exists() {
		record.ArrivalDelayMinutes = minutesFromSeconds(v.Int())
	}
	normalizeDelayConsistency(&record)
	return &record, nil
}

func mapFlightAwareStatus(first gjson.Result) flight.Status {
	if first.Get("cancelled").Bool() {
		return flight.StatusCancelled
	}
	if first.Get("diverted").Bool() {
		return flight.StatusDiverted
	}
	status := strings.ToLower(first.Get("status").String())
	switch {
	case strings.Contains(status, "arrived"), strings.Contains(status, "landed"):
		return flight.StatusLanded
	case strings.Contains(status, "delayed"):
		return flight.StatusDelayed
	case strings.Contains(status, "scheduled"):
		return flight.StatusScheduled
	case strings.Contains(status, "en route"), strings.Contains(status, "on time"):
		if first.Get("departure_delay").Int() >= 900 {
			return flight.StatusDelayed
		}
		return flight.StatusOnTime
	default:
		return flight.StatusUnknown
	}
}

// --- AviationStack ------------------------------------------------------------

// AviationStackClient adapts the AviationStack flights API.
type AviationStackClient struct {
	httpAdapter
}

// NewAviationStackClient constructs an AviationStack adapter.
func NewAviationStackClient(endpoint, apiKey string, client *http.Client, log *logger.Logger) (*AviationStackClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("aviationstack api key is required")
	}
	base, err := newHTTPAdapter("aviationstack", 80, 0.88, endpoint, apiKey, client, log)
	if err != nil {
		return nil, err
	}
	return &AviationStackClient{httpAdapter: base}, nil
}

// FetchFlight queries /v1/flights for one IATA flight code on one date.
func (c *AviationStackClient) FetchFlight(ctx context.Context, flightNumber, date string) (*flight.Canonical, error) {
	reqURL := *c.endpoint
	q := reqURL.Query()
	q.Set("access_key", c.apiKey)
	q.Set("flight_iata", flightNumber)
	q.Set("flight_date", date)
	reqURL.RawQuery = q.Encode()

	body, err := c.get(ctx, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}

	first := gjson.GetBytes(body, "data.0")
	if !first.Exists() {
		return nil, nil
	}

	record := flight.Canonical{
		FlightNumber:    strings.ToUpper(flightNumber),
		OriginIATA:      first.Get("departure.iata").String(),
		DestinationIATA: first.Get("arrival.iata").String(),
		Status:          mapAviationStackStatus(first.Get("flight_status").String(), first.Get("departure.delay").Int()),
	}
	record.ScheduledDeparture = parseRFC3339(first.Get("departure.scheduled").String())
	record.ActualDeparture = parseOptionalTime(first.Get("departure.actual").String())
	record.ActualArrival = parseOptionalTime(first.Get("arrival.actual").String())
	if v := first.Get("departure.delay"); v.Exists() && v.Type != gjson.Null {
		d := int(v.Int())
		record.DepartureDelayMinutes = &d
	}
	if v := first.Get("arrival.delay"); v.Exists() && v.Type != gjson.Null {
		d := int(v.Int())
		record.ArrivalDelayMinutes = &d
	}
	normalizeDelayConsistency(&record)
	return &record, nil
}

func mapAviationStackStatus(raw string, delayMinutes int64) flight.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "scheduled":
		if delayMinutes > 0 {
			return flight.StatusDelayed
		}
		return flight.StatusScheduled
	case "active":
		if delayMinutes >= 15 {
			return flight.StatusDelayed
		}
		return flight.StatusOnTime
	case "landed":
		return flight.StatusLanded
	case "cancelled":
		return flight.StatusCancelled
	case "diverted":
		return flight.StatusDiverted
	default:
		return flight.StatusUnknown
	}
}

// --- OpenSky ------------------------------------------------------------------

// OpenSkyClient adapts the OpenSky network API. It carries no schedule data,
// so it contributes actual movement times with low reliability.
type OpenSkyClient struct {
	httpAdapter
}

// NewOpenSkyClient constructs an OpenSky adapter. No API key is required.
func NewOpenSkyClient(endpoint string, client *http.Client, log *logger.Logger) (*OpenSkyClient, error) {
	base, err := newHTTPAdapter("opensky", 40, 0.70, endpoint, "", client, log)
	if err != nil {
		return nil, err
	}
	return &OpenSkyClient{httpAdapter: base}, nil
}

// FetchFlight queries flight records for the callsign on the requested day.
func (c *OpenSkyClient) FetchFlight(ctx context.Context, flightNumber, date string) (*flight.Canonical, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	reqURL := *c.endpoint
	q := reqURL.Query()
	q.Set("callsign", flightNumber)
	q.Set("begin", fmt.Sprintf("%d", day.Unix()))
	q.Set("end", fmt.Sprintf("%d", day.Add(24*time.Hour).Unix()))
	reqURL.RawQuery = q.Encode()

	body, err := c.get(ctx, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}

	first := gjson.GetBytes(body, "0")
	if !first.Exists() {
		return nil, nil
	}

	record := flight.Canonical{
		FlightNumber:    strings.ToUpper(flightNumber),
		OriginIATA:      first.Get("estDepartureAirport").String(),
		DestinationIATA: first.Get("estArrivalAirport").String(),
		Status:          flight.StatusUnknown,
	}
	if v := first.Get("firstSeen"); v.Exists() && v.Int() > 0 {
		t := time.Unix(v.Int(), 0).UTC()
		record.ActualDeparture = &t
		record.ScheduledDeparture = t
	}
	if v := first.Get("lastSeen"); v.Exists() && v.Int() > 0 {
		t := time.Unix(v.Int(), 0).UTC()
		record.ActualArrival = &t
	}
	return &record, nil
}

// --- shared helpers -----------------------------------------------------------

func parseRFC3339(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseOptionalTime(raw string) *time.Time {
	t := parseRFC3339(raw)
	if t.IsZero() {
		return nil
	}
	return &t
}

func minutesFromSeconds(seconds int64) *int {
	m := int(seconds / 60)
	if m < 0 {
		m = 0
	}
	return &m
}

// normalizeDelayConsistency enforces the punctual-status invariant on records
// built from provider payloads.
func normalizeDelayConsistency(record *flight.Canonical) {
	if record.Status == flight.StatusOnTime || record.Status == flight.StatusLanded {
		record.DepartureDelayMinutes = nil
		record.ArrivalDelayMinutes = nil
	}
}
