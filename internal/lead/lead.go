package lead

import (
	"encoding/json"
	"time"
)

// Type identifies which funnel variant captured the lead.
type Type string

const (
	TypeMain     Type = "main"
	TypeStandard Type = "standard"
	TypeSimple   Type = "simple"
)

// Types lists the accepted funnel variants in display order.
var Types = []Type{TypeMain, TypeStandard, TypeSimple}

// Lead is one visitor's submitted profile. It is built once from the form
// submission and passed by value through the pipeline.
type Lead struct {
	LeadType       Type      `json:"leadType" validate:"required,oneof=main standard simple"`
	Email          string    `json:"email" validate:"required,email"`
	FirstName      string    `json:"firstName,omitempty"`
	LastName       string    `json:"lastName,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Title          string    `json:"title,omitempty"`
	Website        string    `json:"website,omitempty"`
	BusinessType   string    `json:"businessType,omitempty"`
	RevenueRange   string    `json:"revenueRange,omitempty"`
	EmployeeCount  string    `json:"employeeCount,omitempty"`
	Challenges     string    `json:"challenges,omitempty"`
	PainPoints     string    `json:"painPoints,omitempty"`
	TimeBottleneck string    `json:"timeBottleneck,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}

// UnmarshalJSON accepts the form's legacy "revenue" key as an alias for
// revenueRange.
func (l *Lead) UnmarshalJSON(data []byte) error {
	type plain Lead
	aux := struct {
		*plain
		Revenue string `json:"revenue,omitempty"`
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if l.RevenueRange == "" {
		l.RevenueRange = aux.Revenue
	}
	return nil
}

// FullName joins first and last name, tolerating either being empty.
func (l Lead) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	default:
		return l.FirstName + " " + l.LastName
	}
}

// Streamlined reports whether the lead should get the shorter prompt.
func (l Lead) Streamlined() bool {
	return l.LeadType != TypeMain
}
