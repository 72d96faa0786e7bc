package flight

import (
	"testing"
	"time"
)

func validCanonical() Canonical {
	return Canonical{
		FlightNumber:       "UA456",
		ScheduledDeparture: time.Date(2025, 12, 15, 14, 0, 0, 0, time.UTC),
		OriginIATA:         "SFO",
		DestinationIATA:    "ORD",
		Status:             StatusScheduled,
		DataQualityScore:   0.8,
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"delayed":   StatusDelayed,
		"CANCELLED": StatusCancelled,
		" landed ":  StatusLanded,
		"en-route":  StatusUnknown,
		"":          StatusUnknown,
	}
	for raw, want := range cases {
		if got := ParseStatus(raw); got != want {
			t.Fatalf("ParseStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestValidateIdentityRequired(t *testing.T) {
	c := validCanonical()
	if err := c.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	broken := validCanonical()
	broken.FlightNumber = " "
	if err := broken.Validate(); err == nil {
		t.Fatalf("empty flight number must fail")
	}
	broken = validCanonical()
	broken.OriginIATA = ""
	if err := broken.Validate(); err == nil {
		t.Fatalf("empty origin must fail")
	}
	broken = validCanonical()
	broken.ScheduledDeparture = time.Time{}
	if err := broken.Validate(); err == nil {
		t.Fatalf("zero schedule must fail")
	}
}

func TestValidatePunctualStatusRejectsDelay(t *testing.T) {
	delay := 20
	c := validCanonical()
	c.Status = StatusOnTime
	c.DepartureDelayMinutes = &delay
	if err := c.Validate(); err == nil {
		t.Fatalf("ON_TIME with delay must fail")
	}

	zero := 0
	c.DepartureDelayMinutes = &zero
	if err := c.Validate(); err != nil {
		t.Fatalf("ON_TIME with zero delay is fine: %v", err)
	}
}

func TestKeyNormalization(t *testing.T) {
	number, date, err := Key(" ua456 ", "2025-12-15")
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if number != "UA456" || date != "2025-12-15" {
		t.Fatalf("unexpected key parts: %s %s", number, date)
	}
	if _, _, err := Key("UA456", "15/12/2025"); err == nil {
		t.Fatalf("malformed date must fail")
	}
	if _, _, err := Key("", "2025-12-15"); err == nil {
		t.Fatalf("empty number must fail")
	}
}
