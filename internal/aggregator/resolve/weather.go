package resolve

import (
	"fmt"
	"math"

	"github.com/triggerr/core/internal/app/domain/flight"
	"github.com/triggerr/core/internal/app/domain/weather"
)

// Weather merges per-source observations for the same location into one
// canonical observation. inputs must be non-empty.
func Weather(inputs []Input[weather.Canonical], opts Options) (Outcome[weather.Canonical], error) {
	if len(inputs) == 0 {
		return Outcome[weather.Canonical]{}, fmt.Errorf("resolve weather: no inputs")
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

	for _, in := range inputs {
		if math.Abs(in.Record.Coordinates.Lat-resolved.Coordinates.Lat) > opts.CoordinateTolerance ||
			math.Abs(in.Record.Coordinates.Lon-resolved.Coordinates.Lon) > opts.CoordinateTolerance {
			conflicts = append(conflicts, Conflict{
				Field:  "coordinates",
				Winner: inputs[lead].Source,
				Values: renderValues(inputs, func(c weather.Canonical) string {
					return fmt.Sprintf("%f,%f", c.Coordinates.Lat, c.Coordinates.Lon)
				}),
			})
			break
		}
	}

	var votes []weightedValue
	for i, in := range inputs {
		if in.Record.Condition == weather.ConditionUnknown {
			continue
		}
		votes = append(votes, weightedValue{
			source:   in.Source,
			priority: in.Priority,
			value:    string(in.Record.Condition),
			weight:   weights[i],
		})
	}
	if len(votes) == 0 {
		resolved.Condition = weather.ConditionUnknown
	} else {
		winner, winnerSource, unanimous := voteString(votes)
		resolved.Condition = weather.Condition(winner)
		if !unanimous {
			conflicts = append(conflicts, Conflict{
				Field:  "weatherCondition",
				Winner: winnerSource,
				Values: renderValues(inputs, func(c weather.Canonical) string { return string(c.Condition) }),
			})
		}
	}

	resolved.TemperatureCelsius = mergeMeasurement(inputs, weights, opts,
		func(c weather.Canonical) float64 { return c.TemperatureCelsius })
	resolved.WindSpeedKmh = mergeMeasurement(inputs, weights, opts,
		func(c weather.Canonical) float64 { return c.WindSpeedKmh })
	resolved.PrecipitationProbability = clamp01(mergeMeasurement(inputs, weights, opts,
		func(c weather.Canonical) float64 { return c.PrecipitationProbability }))

	resolved.ObservationTimestamp = inputs[lead].Record.ObservationTimestamp
	resolved.SourceContributions = mergeWeatherContributions(inputs)
	resolved.LastUpdated = latestUpdate(inputs)
	resolved.DataQualityScore = opts.qualityScore(reliabilities, len(conflicts))

	return Outcome[weather.Canonical]{
		Record:    resolved,
		Conflicts: conflicts,
		Quality:   resolved.DataQualityScore,
	}, nil
}

func mergeMeasurement(inputs []Input[weather.Canonical], weights []float64, opts Options, get func(weather.Canonical) float64) float64 {
	values := make([]weightedNumber, 0, len(inputs))
	for i, in := range inputs {
		values = append(values, weightedNumber{source: in.Source, value: get(in.Record), weight: weights[i]})
	}
	mean, _ := weightedMean(values, opts.OutlierSigma)
	return mean
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mergeWeatherContributions(inputs []Input[weather.Canonical]) []flight.SourceContribution {
	merged := make(map[string]*flight.SourceContribution)
	var order []string
	for _, in := range inputs {
		contributions := in.Record.SourceContributions
		if len(contributions) == 0 {
			contributions = []flight.SourceContribution{{
				SourceName:        in.Source,
				Confidence:        in.Reliability,
				FieldsContributed: weatherFields(in.Record),
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

func weatherFields(c weather.Canonical) []string {
	fields := []string{"coordinates", "observationTimestamp", "temperatureCelsius", "windSpeedKmh", "precipitationProbability"}
	if c.Condition != weather.ConditionUnknown {
		fields = append(fields, "weatherCondition")
	}
	return fields
}
