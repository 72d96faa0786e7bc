package resolve

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/triggerr/core/internal/app/domain/flight"
)

// Flights merges per-source flight records for the same key into one canonical
// record. inputs must be non-empty.
func Flights(inputs []Input[flight.Canonical], opts Options) (Outcome[flight.Canonical], error) {
	if len(inputs) == 0 {
		return Outcome[flight.Canonical]{}, fmt.Errorf("resolve flights: no inputs")
	}
	opts = opts.normalized()

	weights := make([]float64, len(inputs))
	reliabilities := make([]float64, len(inputs))
	for i, in := range inputs {
		weights[i] = opts.weight(in.Reliability, in.ObservedAt)
		reliabilities[i] = in.Reliability
	}

	var conflicts []Conflict
	lead := highestWeight(inputs, weights)
	resolved := inputs[lead].Record

	// Identity fields must agree up to tolerance; on disagreement the
	// highest-confidence value wins and the conflict is recorded.
	identityString := func(field string, get func(flight.Canonical) string) {
		lead := strings.ToUpper(strings.TrimSpace(get(resolved)))
		for _, in := range inputs {
			if strings.ToUpper(strings.TrimSpace(get(in.Record))) != lead {
				conflicts = append(conflicts, Conflict{
					Field:  field,
					Winner: inputs[highestWeight(inputs, weights)].Source,
					Values: renderValues(inputs, get),
				})
				return
			}
		}
	}
	identityString("flightNumber", func(c flight.Canonical) string { return c.FlightNumber })
	identityString("originIATA", func(c flight.Canonical) string { return c.OriginIATA })
	identityString("destinationIATA", func(c flight.Canonical) string { return c.DestinationIATA })

	for _, in := range inputs {
		delta := in.Record.ScheduledDeparture.Sub(resolved.ScheduledDeparture)
		if delta < 0 {
			delta = -delta
		}
		if delta > opts.TimestampTolerance {
			conflicts = append(conflicts, Conflict{
				Field:  "scheduledDeparture",
				Winner: inputs[lead].Source,
				Values: renderValues(inputs, func(c flight.Canonical) string { return renderTime(c.ScheduledDeparture) }),
			})
			break
		}
	}

	// Status by weighted vote. Sources reporting UNKNOWN abstain when any
	// source knows better.
	var votes []weightedValue
	for i, in := range inputs {
		if in.Record.Status == flight.StatusUnknown {
			continue
		}
		votes = append(votes, weightedValue{
			source:   in.Source,
			priority: in.Priority,
			value:    string(in.Record.Status),
			weight:   weights[i],
		})
	}
	if len(votes) == 0 {
		resolved.Status = flight.StatusUnknown
	} else {
		winner, winnerSource, unanimous := voteString(votes)
		resolved.Status = flight.Status(winner)
		if !unanimous {
			conflicts = append(conflicts, Conflict{
				Field:  "flightStatus",
				Winner: winnerSource,
				Values: renderValues(inputs, func(c flight.Canonical) string { return string(c.Status) }),
			})
		}
	}

	resolved.DepartureDelayMinutes = mergeDelay(inputs, weights, opts,
		func(c flight.Canonical) *int { return c.DepartureDelayMinutes })
	resolved.ArrivalDelayMinutes = mergeDelay(inputs, weights, opts,
		func(c flight.Canonical) *int { return c.ArrivalDelayMinutes })

	// A status that asserts punctuality wins over stale delay figures.
	if resolved.Status == flight.StatusOnTime || resolved.Status == flight.StatusLanded {
		resolved.DepartureDelayMinutes = nil
		resolved.ArrivalDelayMinutes = nil
	}

	resolved.ActualDeparture = pickTime(inputs, weights, func(c flight.Canonical) *time.Time { return c.ActualDeparture })
	resolved.ActualArrival = pickTime(inputs, weights, func(c flight.Canonical) *time.Time { return c.ActualArrival })

	resolved.SourceContributions = mergeFlightContributions(inputs)
	resolved.LastUpdated = latestUpdate(inputs)
	resolved.DataQualityScore = opts.qualityScore(reliabilities, len(conflicts))

	return Outcome[flight.Canonical]{
		Record:    resolved,
		Conflicts: conflicts,
		Quality:   resolved.DataQualityScore,
	}, nil
}

func mergeDelay(inputs []Input[flight.Canonical], weights []float64, opts Options, get func(flight.Canonical) *int) *int {
	var values []weightedNumber
	for i, in := range inputs {
		if d := get(in.Record); d != nil {
			values = append(values, weightedNumber{source: in.Source, value: float64(*d), weight: weights[i]})
		}
	}
	mean, ok := weightedMean(values, opts.OutlierSigma)
	if !ok {
		return nil
	}
	rounded := int(math.Round(mean))
	if rounded < 0 {
		rounded = 0
	}
	return &rounded
}

func pickTime(inputs []Input[flight.Canonical], weights []float64, get func(flight.Canonical) *time.Time) *time.Time {
	bestIdx := -1
	for i, in := range inputs {
		if get(in.Record) == nil {
			continue
		}
		if bestIdx < 0 || weights[i] > weights[bestIdx] {
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil
	}
	t := *get(inputs[bestIdx].Record)
	return &t
}

func mergeFlightContributions(inputs []Input[flight.Canonical]) []flight.SourceContribution {
	merged := make(map[string]*flight.SourceContribution)
	var order []string
	for _, in := range inputs {
		contributions := in.Record.SourceContributions
		if len(contributions) == 0 {
			contributions = []flight.SourceContribution{{
				SourceName:        in.Source,
				Confidence:        in.Reliability,
				FieldsContributed: flightFields(in.Record),
				ObservedAt:        in.ObservedAt,
			}}
		}
		for _, c := range contributions {
			existing, ok := merged[c.SourceName]
			if !ok {
				clone := c
				merged[c.SourceName] = &clone
				order = append(order, c.SourceName)
				continue
			}
			existing.FieldsContributed = dedupeStrings(append(existing.FieldsContributed, c.FieldsContributed...))
			if c.ObservedAt.After(existing.ObservedAt) {
				existing.ObservedAt = c.ObservedAt
			}
			if c.Confidence > existing.Confidence {
				existing.Confidence = c.Confidence
			}
		}
	}
	out := make([]flight.SourceContribution, 0, len(order))
	for _, name := range order {
		c := *merged[name]
		c.FieldsContributed = dedupeStrings(c.FieldsContributed)
		out = append(out, c)
	}
	return out
}

func flightFields(c flight.Canonical) []string {
	fields := []string{"flightNumber", "scheduledDeparture", "originIATA", "destinationIATA"}
	if c.Status != flight.StatusUnknown {
		fields = append(fields, "flightStatus")
	}
	if c.DepartureDelayMinutes != nil {
		fields = append(fields, "departureDelayMinutes")
	}
	if c.ArrivalDelayMinutes != nil {
		fields = append(fields, "arrivalDelayMinutes")
	}
	if c.ActualDeparture != nil {
		fields = append(fields, "actualDeparture")
	}
	if c.ActualArrival != nil {
		fields = append(fields, "actualArrival")
	}
	return fields
}

func latestUpdate[T any](inputs []Input[T]) time.Time {
	times := make([]time.Time, 0, len(inputs))
	for _, in := range inputs {
		times = append(times, in.ObservedAt)
	}
	return maxTime(times)
}
