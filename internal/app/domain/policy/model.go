package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CoverageType enumerates supported parametric coverage products.
type CoverageType string

const (
	CoverageFlightDelay        CoverageType = "FLIGHT_DELAY"
	CoverageFlightCancellation CoverageType = "FLIGHT_CANCELLATION"
	CoverageWeatherDisruption  CoverageType = "WEATHER_DISRUPTION"
)

// Status enumerates policy lifecycle states. The sequence of observed statuses
// for any policy is a prefix of PENDING, ACTIVE, {CLAIMED | EXPIRED | CANCELLED};
// CLAIMED is terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusClaimed   Status = "CLAIMED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusExpired || next == StatusCancelled
	case StatusActive:
		return next == StatusClaimed || next == StatusExpired || next == StatusCancelled
	default:
		return false
	}
}

// Terms carries coverage-specific parameters. Stored as jsonb on the policy row.
type Terms struct {
	DelayThresholdMinutes int `json:"delayThresholdMinutes,omitempty"`
}

// Policy is consumed by this pipeline but owned by the quoting layer. The
// payout engine is the sole mutator of Status through this path.
type Policy struct {
	ID                 string
	PolicyNumber       string
	UserID             string
	AnonymousSessionID string
	ProviderID         string
	FlightID           string

	CoverageType   CoverageType
	CoverageAmount string
	Premium        string
	PayoutAmount   string

	Status    Status
	ExpiresAt time.Time
	Terms     Terms

	FlightNumber  string
	FlightDate    string
	OriginIATA    string
	DestinationIATA string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DelayThreshold returns the delay threshold in minutes, applying the supplied
// default when the policy terms do not set one.
func (p Policy) DelayThreshold(defaultMinutes int) int {
	if p.Terms.DelayThresholdMinutes > 0 {
		return p.Terms.DelayThresholdMinutes
	}
	return defaultMinutes
}

// Validate checks the fields the pipeline depends on.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("policy id is required")
	}
	switch p.CoverageType {
	case CoverageFlightDelay, CoverageFlightCancellation, CoverageWeatherDisruption:
	default:
		return fmt.Errorf("unsupported coverage type %q", p.CoverageType)
	}
	if strings.TrimSpace(p.FlightNumber) == "" {
		return fmt.Errorf("policy %s has no associated flight", p.ID)
	}
	return nil
}

// MarshalTerms serializes terms for the jsonb column.
func (p Policy) MarshalTerms() ([]byte, error) {
	return json.Marshal(p.Terms)
}

// UnmarshalTerms populates terms from a jsonb column value.
func (p *Policy) UnmarshalTerms(data []byte) error {
	if len(data) == 0 {
		p.Terms = Terms{}
		return nil
	}
	return json.Unmarshal(data, &p.Terms)
}
