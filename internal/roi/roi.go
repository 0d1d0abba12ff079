// Package roi projects the dollar value of the hours a principal hands to an
// executive assistant.
package roi

import (
	"math"
	"strings"
)

const (
	// DefaultHourlyRate applies to unknown or empty revenue brackets.
	DefaultHourlyRate = 100.0
	// EAInvestment is the annual cost of a full-time assistant.
	EAInvestment = 33000.0
	// WeeksPerMonth is a nominal month, not a calendar-accurate one.
	WeeksPerMonth = 4
	// WeeksPerYear is used for every annual figure.
	WeeksPerYear = 52
)

// Bracket is one enumerated revenue range and the hourly value of the
// principal's time within it.
type Bracket struct {
	Label      string
	HourlyRate float64
	Midpoint   float64
}

// Brackets is the funnel's revenue table in ascending order.
var Brackets = []Bracket{
	{Label: "Under $100k", HourlyRate: 25, Midpoint: 50000},
	{Label: "$100k to $250k", HourlyRate: 88, Midpoint: 175000},
	{Label: "$250K to $500k", HourlyRate: 188, Midpoint: 375000},
	{Label: "$500k to $1M", HourlyRate: 375, Midpoint: 750000},
	{Label: "$1M to $3M", HourlyRate: 1000, Midpoint: 2000000},
	{Label: "$3M to $10M", HourlyRate: 3250, Midpoint: 6500000},
	{Label: "$10M to $30M", HourlyRate: 10000, Midpoint: 20000000},
	{Label: "$30 Million+", HourlyRate: 25000, Midpoint: 50000000},
}

var bracketIndex = func() map[string]Bracket {
	m := make(map[string]Bracket, len(Brackets))
	for _, b := range Brackets {
		m[normalizeBracket(b.Label)] = b
	}
	return m
}()

// normalizeBracket folds the spellings the forms have used over time
// ("$500k to $1M", "$500k-$1M", "$500K - $1m") onto one key.
func normalizeBracket(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " to ", "-")
	s = strings.ReplaceAll(s, "–", "-")
	return strings.Join(strings.Fields(s), "")
}

// LookupBracket finds the bracket for a revenue range label.
func LookupBracket(revenueRange string) (Bracket, bool) {
	b, ok := bracketIndex[normalizeBracket(revenueRange)]
	return b, ok
}

// HourlyRate returns the rate for revenueRange, falling back to DefaultHourlyRate.
func HourlyRate(revenueRange string) float64 {
	if b, ok := LookupBracket(revenueRange); ok {
		return b.HourlyRate
	}
	return DefaultHourlyRate
}

// TaskHours is the weekly hours handed off per category.
type TaskHours struct {
	Email             float64 `json:"email"`
	PersonalLife      float64 `json:"personalLife"`
	Calendar          float64 `json:"calendar"`
	BusinessProcesses float64 `json:"businessProcesses"`
}

// Total sums the categories after clamping.
func (h TaskHours) Total() float64 {
	c := h.clamped()
	return c.Email + c.PersonalLife + c.Calendar + c.BusinessProcesses
}

func (h TaskHours) clamped() TaskHours {
	return TaskHours{
		Email:             nonNegative(h.Email),
		PersonalLife:      nonNegative(h.PersonalLife),
		Calendar:          nonNegative(h.Calendar),
		BusinessProcesses: nonNegative(h.BusinessProcesses),
	}
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// CategoryROI is the per-category slice of the projection.
type CategoryROI struct {
	Category              string  `json:"category"`
	Label                 string  `json:"label"`
	WeeklyHours           float64 `json:"weeklyHours"`
	MonthlyHours          float64 `json:"monthlyHours"`
	AnnualHours           float64 `json:"annualHours"`
	AnnualRevenueUnlocked float64 `json:"annualRevenueUnlocked"`
}

// Calculation is the full projection. It is derived and never persisted.
type Calculation struct {
	RevenueRange           string        `json:"revenueRange"`
	HourlyRate             float64       `json:"ceoHourlyRate"`
	WeeklyHoursDelegated   float64       `json:"weeklyHoursDelegated"`
	MonthlyHoursUnlocked   float64       `json:"monthlyHoursUnlocked"`
	AnnualHoursUnlocked    float64       `json:"annualHoursUnlocked"`
	WeeklyRevenueUnlocked  float64       `json:"weeklyRevenueUnlocked"`
	MonthlyRevenueUnlocked float64       `json:"monthlyRevenueUnlocked"`
	AnnualRevenueUnlocked  float64       `json:"annualRevenueUnlocked"`
	EAInvestment           float64       `json:"eaInvestment"`
	NetReturn              float64       `json:"netReturn"`
	ROIMultiplier          float64       `json:"roiMultiplier"`
	Breakdown              []CategoryROI `json:"categoryBreakdown"`
}

// Calculate projects hours into dollars. It never fails: unknown brackets
// use DefaultHourlyRate and invalid hour values count as zero.
func Calculate(hours TaskHours, revenueRange string) Calculation {
	rate := HourlyRate(revenueRange)
	h := hours.clamped()
	weekly := h.Total()
	annual := weekly * WeeksPerYear * rate

	return Calculation{
		RevenueRange:           revenueRange,
		HourlyRate:             rate,
		WeeklyHoursDelegated:   weekly,
		MonthlyHoursUnlocked:   weekly * WeeksPerMonth,
		AnnualHoursUnlocked:    weekly * WeeksPerYear,
		WeeklyRevenueUnlocked:  weekly * rate,
		MonthlyRevenueUnlocked: weekly * WeeksPerMonth * rate,
		AnnualRevenueUnlocked:  annual,
		EAInvestment:           EAInvestment,
		NetReturn:              annual - EAInvestment,
		ROIMultiplier:          annual / EAInvestment,
		Breakdown: []CategoryROI{
			category("email", "Managing Email", h.Email, rate),
			category("personalLife", "Personal Life", h.PersonalLife, rate),
			category("calendar", "Calendar & Booking", h.Calendar, rate),
			category("businessProcesses", "Business Processes", h.BusinessProcesses, rate),
		},
	}
}

func category(key, label string, weekly, rate float64) CategoryROI {
	return CategoryROI{
		Category:              key,
		Label:                 label,
		WeeklyHours:           weekly,
		MonthlyHours:          weekly * WeeksPerMonth,
		AnnualHours:           weekly * WeeksPerYear,
		AnnualRevenueUnlocked: weekly * WeeksPerYear * rate,
	}
}
