package report

import (
	"fmt"
	"strings"
)

// delegableKeywords mark tasks that are natural hand-offs to an assistant.
var delegableKeywords = []string{
	"schedule", "book", "coordinate", "manage", "organize", "prepare",
	"research", "compile", "update", "maintain", "track", "monitor",
	"draft", "review", "follow up", "arrange", "handle", "process",
}

var fillerTasks = map[Bucket]Task{
	Daily: {
		Title:       "Review daily priorities",
		Description: "Block time each morning to confirm the top priorities and decisions that need your attention today.",
		Category:    "Planning",
	},
	Weekly: {
		Title:       "Plan the week ahead",
		Description: "Review commitments, deadlines, and open loops for the coming week and decide what to delegate.",
		Category:    "Planning",
	},
	Monthly: {
		Title:       "Review monthly goals",
		Description: "Compare results against the monthly plan and adjust goals, budget, and priorities for next month.",
		Category:    "Strategy",
	},
}

type issues struct {
	emptyBuckets []Bucket
	eaFloor      int
	hasEAFloor   bool
}

func parseIssues(errs []string, rules Rules) issues {
	var is issues
	for _, e := range errs {
		switch {
		case strings.HasPrefix(e, "Missing "):
			var name string
			if _, err := fmt.Sscanf(e, "Missing %s tasks:", &name); err == nil {
				is.emptyBuckets = append(is.emptyBuckets, Bucket(name))
			}
		case strings.HasPrefix(e, msgEAFloor):
			is.hasEAFloor = true
			is.eaFloor = rules.MinEAPercent
			var got, floor int
			if _, err := fmt.Sscanf(e, msgEAFloor+": %d%% (minimum %d%%)", &got, &floor); err == nil && floor > is.eaFloor {
				is.eaFloor = floor
			}
		}
	}
	return is
}

// FixReportIssues applies targeted repairs for the validator errors in errs
// and returns a new result with recomputed counters. Repairs run in a fixed
// order regardless of error order: empty buckets are padded with founder
// tasks, owners are normalized to agree with isEA, then tasks are relabeled
// to the assistant until the EA floor is met. The floor is enforced whenever
// padding ran, even without a floor error in errs. Relabeling never adds or
// removes tasks. Counter mismatches need no dedicated repair since every
// path ends in a recount.
func FixReportIssues(r Result, errs []string, rules Rules) Result {
	is := parseIssues(errs, rules)
	out := r.Clone()

	padded := false
	for _, b := range is.emptyBuckets {
		if len(out.Tasks.Get(b)) == 0 {
			out.Tasks.Set(b, padBucket(b, rules.TasksPerBucket))
			padded = true
		}
	}

	out = normalizeOwners(out)

	// Padding adds founder tasks and can sink the EA share below the floor.
	floor := is.eaFloor
	if !is.hasEAFloor {
		floor = rules.MinEAPercent
	}
	if is.hasEAFloor || padded {
		raiseEAShare(&out, floor)
	}

	return Recount(out)
}

func padBucket(b Bucket, n int) []Task {
	if n <= 0 {
		n = 1
	}
	base, ok := fillerTasks[b]
	if !ok {
		return nil
	}
	out := make([]Task, n)
	for i := range out {
		t := base
		if i > 0 {
			t.Title = fmt.Sprintf("%s (%d)", base.Title, i+1)
		}
		t.Owner = OwnerYou
		t.Frequency = string(b)
		out[i] = t
	}
	return out
}

// normalizeOwners makes owner agree with isEA, which is authoritative.
func normalizeOwners(r Result) Result {
	for _, b := range Buckets {
		tasks := r.Tasks.Get(b)
		for i := range tasks {
			if tasks[i].IsEA {
				tasks[i].Owner = OwnerEA
			} else {
				tasks[i].Owner = OwnerYou
			}
		}
	}
	return r
}

// raiseEAShare relabels founder tasks until round(100*ea/total) >= floor.
// The first pass takes tasks that read as delegable, the second takes the
// rest; both scan daily, weekly, monthly in array order.
func raiseEAShare(r *Result, floor int) {
	total, ea, _ := Counts(*r)
	if total == 0 {
		return
	}
	for pass := 0; pass < 2; pass++ {
		for _, b := range Buckets {
			tasks := r.Tasks.Get(b)
			for i := range tasks {
				if Percent(ea, total) >= floor {
					return
				}
				if tasks[i].Delegable() || (pass == 0 && !looksDelegable(tasks[i])) {
					continue
				}
				tasks[i].Owner = OwnerEA
				tasks[i].IsEA = true
				ea++
			}
		}
	}
}

func looksDelegable(t Task) bool {
	text := strings.ToLower(t.Title + " " + t.Description)
	for _, kw := range delegableKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
