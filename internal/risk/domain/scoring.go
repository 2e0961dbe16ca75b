package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Thresholds hold the tunable constants behind the five sub-scores.
type Thresholds struct {
	// Velocity: absolute hourly counts.
	VelocityWarnCount  int
	VelocityHighCount  int
	BaselineMultiplier float64

	// Behavioral deviation.
	AmountDeviationFactor float64
	RareOpFrequency       float64

	// Pattern detection.
	RapidWindow    time.Duration
	RapidCount     int
	RepeatWindow   time.Duration
	RepeatCount    int
	RoundUnit      decimal.Decimal
	RoundMinAmount decimal.Decimal

	// Origin/client signatures treated as hostile, matched
	// case-insensitively as substrings of the origin identifier.
	SuspiciousOriginMarkers []string

	// Per-currency amount bands. Keys are upper-case ISO codes.
	HighAmount      map[string]decimal.Decimal
	MicroAmount     map[string]decimal.Decimal
	ReportingAmount map[string]decimal.Decimal

	// Timing.
	NightStartHour int
	NightEndHour   int

	NewUserAddend int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		VelocityWarnCount:     10,
		VelocityHighCount:     20,
		BaselineMultiplier:    3,
		AmountDeviationFactor: 3,
		RareOpFrequency:       0.05,
		RapidWindow:           5 * time.Minute,
		RapidCount:            3,
		RepeatWindow:          24 * time.Hour,
		RepeatCount:           3,
		RoundUnit:             decimal.NewFromInt(1000),
		RoundMinAmount:        decimal.NewFromInt(10_000),
		SuspiciousOriginMarkers: []string{
			"curl", "python", "bot", "headless", "scanner", "tor",
		},
		HighAmount: map[string]decimal.Decimal{
			"NGN": decimal.NewFromInt(1_000_000),
			"USD": decimal.NewFromInt(2_000),
		},
		MicroAmount: map[string]decimal.Decimal{
			"NGN": decimal.NewFromInt(100),
			"USD": decimal.NewFromInt(1),
		},
		ReportingAmount: map[string]decimal.Decimal{
			"NGN": decimal.NewFromInt(10_000_000),
			"USD": decimal.NewFromInt(10_000),
		},
		NightStartHour: 0,
		NightEndHour:   5,
		NewUserAddend:  15,
	}
}

// SubScore is one weighted contribution with its supporting flags.
type SubScore struct {
	Name   string
	Points int
	Flags  []string
}

// Scorer computes the five sub-scores. It is stateless; all history and
// baseline inputs are passed in.
type Scorer struct {
	t Thresholds
}

func NewScorer(t Thresholds) *Scorer {
	return &Scorer{t: t}
}

const (
	velocityCap   = 30
	behavioralCap = 30
	patternCap    = 35
	amountCap     = 35
	timingCap     = 15
)

func capPoints(points, limit int) int {
	if points > limit {
		return limit
	}
	return points
}

// Velocity scores hourly operation counts against absolute thresholds and,
// when a baseline exists, against the subject's own average rate.
func (s *Scorer) Velocity(input Input, history []HistoryEntry, baseline *Baseline) SubScore {
	sub := SubScore{Name: "velocity"}

	hourAgo := input.At.Add(-time.Hour)
	count := 0
	for _, e := range history {
		if !e.At.Before(hourAgo) {
			count++
		}
	}

	switch {
	case count >= s.t.VelocityHighCount:
		sub.Points += 25
		sub.Flags = append(sub.Flags, "very_high_velocity")
	case count >= s.t.VelocityWarnCount:
		sub.Points += 15
		sub.Flags = append(sub.Flags, "high_velocity")
	}

	// A single transaction never trips the baseline test, whatever the
	// subject's average; two or more in the hour is a measurable rate.
	if baseline != nil && baseline.AvgPerHour > 0 && count >= 2 {
		if float64(count) >= s.t.BaselineMultiplier*baseline.AvgPerHour {
			sub.Points += 20
			sub.Flags = append(sub.Flags, "velocity_above_baseline")
		}
	}

	sub.Points = capPoints(sub.Points, velocityCap)
	return sub
}

// Behavioral scores deviation from the subject's baseline. Without a
// baseline it contributes nothing; the engine adds the new-user addend
// separately.
func (s *Scorer) Behavioral(input Input, baseline *Baseline) SubScore {
	sub := SubScore{Name: "behavioral"}
	if baseline == nil || baseline.SampleCount == 0 {
		return sub
	}

	if baseline.AvgAmount.IsPositive() {
		ratio, _ := input.Amount.Div(baseline.AvgAmount).Float64()
		switch {
		case ratio >= 10:
			sub.Points += 30
			sub.Flags = append(sub.Flags, "extreme_amount_deviation")
		case ratio >= s.t.AmountDeviationFactor:
			sub.Points += 20
			sub.Flags = append(sub.Flags, "amount_deviation")
		}
	}

	if freq, ok := baseline.OpTypeFreq[input.OperationType]; (!ok || freq < s.t.RareOpFrequency) && input.Amount.GreaterThan(baseline.AvgAmount) {
		sub.Points += 15
		sub.Flags = append(sub.Flags, "rare_operation_type")
	}

	if len(baseline.ActiveHours) > 0 && !baseline.ActiveHours[input.At.Hour()] {
		sub.Points += 10
		sub.Flags = append(sub.Flags, "off_hours_for_subject")
	}

	sub.Points = capPoints(sub.Points, behavioralCap)
	return sub
}

// Pattern scores structural tells: bursts, round numbers, repeated amounts,
// hostile origin signatures and prior suspicious entries for the subject.
func (s *Scorer) Pattern(input Input, history []HistoryEntry, priorSuspicious int) SubScore {
	sub := SubScore{Name: "pattern"}

	rapidSince := input.At.Add(-s.t.RapidWindow)
	rapid := 0
	for _, e := range history {
		if !e.At.Before(rapidSince) {
			rapid++
		}
	}
	if rapid+1 >= s.t.RapidCount {
		sub.Points += 20
		sub.Flags = append(sub.Flags, "rapid_succession")
	}

	if input.Amount.GreaterThanOrEqual(s.t.RoundMinAmount) && input.Amount.Mod(s.t.RoundUnit).IsZero() {
		sub.Points += 5
		sub.Flags = append(sub.Flags, "round_amount")
	}

	repeatSince := input.At.Add(-s.t.RepeatWindow)
	identical := 1
	for _, e := range history {
		if !e.At.Before(repeatSince) && e.Amount.Equal(input.Amount) {
			identical++
		}
	}
	if identical >= s.t.RepeatCount {
		sub.Points += 15
		sub.Flags = append(sub.Flags, fmt.Sprintf("repeated_amount_x%d", identical))
	}

	if origin := strings.ToLower(input.OriginID); origin != "" {
		for _, marker := range s.t.SuspiciousOriginMarkers {
			if marker != "" && strings.Contains(origin, marker) {
				sub.Points += 15
				sub.Flags = append(sub.Flags, "suspicious_origin")
				break
			}
		}
	}

	if priorSuspicious > 0 {
		sub.Points += 10
		sub.Flags = append(sub.Flags, "prior_suspicious_activity")
	}

	sub.Points = capPoints(sub.Points, patternCap)
	return sub
}

// Amount scores absolute size per currency, micro-transactions and amounts
// parked just under a reporting threshold.
func (s *Scorer) Amount(input Input) SubScore {
	sub := SubScore{Name: "amount"}
	currency := input.Currency

	if high, ok := s.t.HighAmount[currency]; ok && high.IsPositive() {
		switch {
		case input.Amount.GreaterThanOrEqual(high.Mul(decimal.NewFromInt(5))):
			sub.Points += 35
			sub.Flags = append(sub.Flags, "very_high_amount")
		case input.Amount.GreaterThanOrEqual(high):
			sub.Points += 20
			sub.Flags = append(sub.Flags, "high_amount")
		}
	}

	if micro, ok := s.t.MicroAmount[currency]; ok && input.Amount.IsPositive() && input.Amount.LessThan(micro) {
		sub.Points += 5
		sub.Flags = append(sub.Flags, "micro_amount")
	}

	if reporting, ok := s.t.ReportingAmount[currency]; ok && reporting.IsPositive() {
		floor := reporting.Mul(decimal.NewFromFloat(0.9))
		if input.Amount.GreaterThanOrEqual(floor) && input.Amount.LessThan(reporting) {
			sub.Points += 25
			sub.Flags = append(sub.Flags, "possible_structuring")
		}
	}

	sub.Points = capPoints(sub.Points, amountCap)
	return sub
}

// Timing scores night-hours and weekend activity.
func (s *Scorer) Timing(input Input) SubScore {
	sub := SubScore{Name: "timing"}

	hour := input.At.Hour()
	if hour >= s.t.NightStartHour && hour <= s.t.NightEndHour {
		sub.Points += 10
		sub.Flags = append(sub.Flags, "night_hours")
	}

	switch input.At.Weekday() {
	case time.Saturday, time.Sunday:
		sub.Points += 5
		sub.Flags = append(sub.Flags, "weekend")
	}

	sub.Points = capPoints(sub.Points, timingCap)
	return sub
}

// NewUserAddend is the flat contribution for subjects without a baseline.
func (s *Scorer) NewUserAddend() int {
	return s.t.NewUserAddend
}
