package weather

import "testing"

func TestParseCondition(t *testing.T) {
	cases := map[string]Condition{
		"clear":         ConditionClear,
		"Partly Cloudy": ConditionPartlyCloudy,
		"HEAVY_RAIN":    ConditionHeavyRain,
		"hailstorm":     ConditionUnknown,
		"":              ConditionUnknown,
	}
	for raw, want := range cases {
		if got := ParseCondition(raw); got != want {
			t.Fatalf("ParseCondition(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestConditionSevere(t *testing.T) {
	severe := []Condition{ConditionThunderstorm, ConditionSnow, ConditionHeavyRain}
	for _, c := range severe {
		if !c.Severe() {
			t.Fatalf("%s must be severe", c)
		}
	}
	if ConditionLightRain.Severe() || ConditionClear.Severe() {
		t.Fatalf("mild conditions must not be severe")
	}
}

func TestCoordinatesValidate(t *testing.T) {
	if err := (Coordinates{Lat: 40.6, Lon: -73.7}).Validate(); err != nil {
		t.Fatalf("valid coordinates rejected: %v", err)
	}
	if err := (Coordinates{Lat: 91, Lon: 0}).Validate(); err == nil {
		t.Fatalf("latitude out of range must fail")
	}
	if err := (Coordinates{Lat: 0, Lon: -181}).Validate(); err == nil {
		t.Fatalf("longitude out of range must fail")
	}
}

func TestGridKeyRounding(t *testing.T) {
	a := Coordinates{Lat: 40.64131, Lon: -73.77809}
	b := Coordinates{Lat: 40.64132, Lon: -73.77811}
	if a.GridKey(4) != b.GridKey(4) {
		t.Fatalf("nearby points must share a 4-decimal grid cell: %s vs %s", a.GridKey(4), b.GridKey(4))
	}
	if a.GridKey(4) == (Coordinates{Lat: 40.65, Lon: -73.77809}).GridKey(4) {
		t.Fatalf("distinct points must not collide")
	}
}

func TestCanonicalValidateBounds(t *testing.T) {
	obs := Canonical{
		Coordinates:              Coordinates{Lat: 40, Lon: -73},
		TemperatureCelsius:       15,
		WindSpeedKmh:             20,
		PrecipitationProbability: 0.3,
		Condition:                ConditionClear,
		DataQualityScore:         0.9,
	}
	if err := obs.Validate(); err != nil {
		t.Fatalf("valid observation rejected: %v", err)
	}

	hot := obs
	hot.TemperatureCelsius = 75
	if err := hot.Validate(); err == nil {
		t.Fatalf("temperature out of range must fail")
	}
	wet := obs
	wet.PrecipitationProbability = 1.4
	if err := wet.Validate(); err == nil {
		t.Fatalf("probability above 1 must fail")
	}
}
