package flight

import (
	"fmt"
	"strings"
	"time"
)

// Status enumerates the canonical flight states shared by every provider
// adapter. Unknown provider values must map to StatusUnknown, never be dropped.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusOnTime    Status = "ON_TIME"
	StatusDelayed   Status = "DELAYED"
	StatusCancelled Status = "CANCELLED"
	StatusDiverted  Status = "DIVERTED"
	StatusLanded    Status = "LANDED"
	StatusUnknown   Status = "UNKNOWN"
)

// ParseStatus normalizes a provider status string to a canonical Status.
func ParseStatus(raw string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusScheduled, StatusOnTime, StatusDelayed, StatusCancelled, StatusDiverted, StatusLanded:
		return Status(strings.ToUpper(strings.TrimSpace(raw)))
	default:
		return StatusUnknown
	}
}

// SourceContribution records which provider supplied which fields, with what
// confidence, at what time.
type SourceContribution struct {
	SourceName        string
	Confidence        float64
	FieldsContributed []string
	ObservedAt        time.Time
}

// Canonical is the source-agnostic merged flight record consumed by the rest
// of the system. Instances returned to callers are treated as immutable values.
type Canonical struct {
	FlightNumber       string
	ScheduledDeparture time.Time
	OriginIATA         string
	DestinationIATA    string

	Status                Status
	DepartureDelayMinutes *int
	ArrivalDelayMinutes   *int
	ActualDeparture       *time.Time
	ActualArrival         *time.Time

	SourceContributions []SourceContribution
	DataQualityScore    float64
	LastUpdated         time.Time
}

// Validate enforces the canonical record invariants.
func (c Canonical) Validate() error {
	if strings.TrimSpace(c.FlightNumber) == "" {
		return fmt.Errorf("flight number is required")
	}
	if c.ScheduledDeparture.IsZero() {
		return fmt.Errorf("scheduled departure is required")
	}
	if strings.TrimSpace(c.OriginIATA) == "" || strings.TrimSpace(c.DestinationIATA) == "" {
		return fmt.Errorf("origin and destination airports are required")
	}
	if c.Status == StatusOnTime || c.Status == StatusLanded {
		if c.DepartureDelayMinutes != nil && *c.DepartureDelayMinutes != 0 {
			return fmt.Errorf("status %s is inconsistent with departure delay %d", c.Status, *c.DepartureDelayMinutes)
		}
		if c.ArrivalDelayMinutes != nil && *c.ArrivalDelayMinutes != 0 {
			return fmt.Errorf("status %s is inconsistent with arrival delay %d", c.Status, *c.ArrivalDelayMinutes)
		}
	}
	if c.DepartureDelayMinutes != nil && *c.DepartureDelayMinutes < 0 {
		return fmt.Errorf("departure delay must be non-negative")
	}
	if c.ArrivalDelayMinutes != nil && *c.ArrivalDelayMinutes < 0 {
		return fmt.Errorf("arrival delay must be non-negative")
	}
	if c.DataQualityScore < 0 || c.DataQualityScore > 1 {
		return fmt.Errorf("data quality score %f out of range", c.DataQualityScore)
	}
	return nil
}

// DelayMinutes returns the departure delay, treating absence as zero.
func (c Canonical) DelayMinutes() int {
	if c.DepartureDelayMinutes == nil {
		return 0
	}
	return *c.DepartureDelayMinutes
}

// Key identifies one flight for caching and aggregation purposes.
func Key(flightNumber, date string) (string, string, error) {
	flightNumber = strings.ToUpper(strings.TrimSpace(flightNumber))
	date = strings.TrimSpace(date)
	if flightNumber == "" {
		return "", "", fmt.Errorf("flight number is required")
	}
	if date == "" {
		return "", "", fmt.Errorf("date is required")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return flightNumber, date, nil
}
