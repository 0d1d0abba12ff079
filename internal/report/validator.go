package report

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Error message prefixes. The fixer matches on these, so changing the
// wording of a rule means changing both sides.
const (
	msgMissingBucket = "Missing %s tasks: bucket is empty"
	msgEAFloor       = "EA percentage too low"
	msgTotalMismatch = "total_task_count mismatch"
	msgEAMismatch    = "ea_task_count mismatch"
	msgPctMismatch   = "ea_task_percent mismatch"
)

// Rules are the business thresholds the validator enforces.
type Rules struct {
	MinEAPercent   int
	TasksPerBucket int
}

// DefaultRules returns the funnel's standing thresholds.
func DefaultRules() Rules {
	return Rules{MinEAPercent: 40, TasksPerBucket: 10}
}

// ValidationResult is the itemized audit of one report.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ReportAnalysis is the recomputed shape of a report.
type ReportAnalysis struct {
	BucketCounts  map[Bucket]int        `json:"bucketCounts"`
	TotalTasks    int                   `json:"totalTasks"`
	EATasks       int                   `json:"eaTasks"`
	EAPercent     int                   `json:"eaPercent"`
	CoreTaskTypes map[CoreTaskType]bool `json:"coreTaskTypes"`
}

// Analyze recomputes counts and core-task coverage without judging them.
func Analyze(r Result) ReportAnalysis {
	a := ReportAnalysis{
		BucketCounts:  make(map[Bucket]int, len(Buckets)),
		CoreTaskTypes: make(map[CoreTaskType]bool, len(AllCoreTaskTypes)),
	}
	a.TotalTasks, a.EATasks, a.EAPercent = Counts(r)
	for _, b := range Buckets {
		a.BucketCounts[b] = len(r.Tasks.Get(b))
	}
	for _, s := range coreSpecs {
		a.CoreTaskTypes[s.kind] = hasCoreTask(r.Tasks.Get(s.bucket), s.kind)
	}
	return a
}

// Validate audits r against the rules. It never mutates r.
func Validate(r Result, rules Rules) ValidationResult {
	a := Analyze(r)
	var errs, warns []string

	for _, b := range Buckets {
		n := a.BucketCounts[b]
		switch {
		case n == 0:
			errs = append(errs, fmt.Sprintf(msgMissingBucket, b))
		case rules.TasksPerBucket > 0 && n != rules.TasksPerBucket:
			warns = append(warns, fmt.Sprintf("Expected %d %s tasks, got %d", rules.TasksPerBucket, b, n))
		}
	}

	if a.EAPercent < rules.MinEAPercent {
		errs = append(errs, fmt.Sprintf("%s: %d%% (minimum %d%%)", msgEAFloor, a.EAPercent, rules.MinEAPercent))
	}

	if r.TotalTaskCount != a.TotalTasks {
		errs = append(errs, fmt.Sprintf("%s: reported %d, actual %d", msgTotalMismatch, r.TotalTaskCount, a.TotalTasks))
	}
	if r.EATaskCount != a.EATasks {
		errs = append(errs, fmt.Sprintf("%s: reported %d, actual %d", msgEAMismatch, r.EATaskCount, a.EATasks))
	}
	if r.EATaskPercent != a.EAPercent {
		errs = append(errs, fmt.Sprintf("%s: reported %d, actual %d", msgPctMismatch, r.EATaskPercent, a.EAPercent))
	}

	for _, b := range Buckets {
		for i, t := range r.Tasks.Get(b) {
			warns = append(warns, taskWarnings(b, i, t)...)
		}
	}

	for _, ct := range AllCoreTaskTypes {
		if !a.CoreTaskTypes[ct] {
			warns = append(warns, fmt.Sprintf("Missing core EA task: %s", ct))
		}
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func taskWarnings(b Bucket, i int, t Task) []string {
	var out []string
	ref := fmt.Sprintf("Task %s[%d]", b, i)

	switch t.Owner {
	case OwnerEA:
		if !t.IsEA {
			out = append(out, ref+": Owner is EA but isEA is false")
		}
	case OwnerYou:
		if t.IsEA {
			out = append(out, ref+": Owner is You but isEA is true")
		}
	default:
		out = append(out, fmt.Sprintf("%s: invalid owner %q", ref, t.Owner))
	}

	if n := utf8.RuneCountInString(strings.TrimSpace(t.Title)); n < 3 || n > 60 {
		out = append(out, fmt.Sprintf("%s: title length %d outside 3-60", ref, n))
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(t.Description)); n < 20 {
		out = append(out, fmt.Sprintf("%s: description too short (%d chars)", ref, n))
	}
	return out
}
