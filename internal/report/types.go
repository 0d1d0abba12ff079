// Package report holds the generated task report and the pure rules that
// audit and repair it.
package report

import "math"

// Owner is who performs a task: the executive assistant or the principal.
type Owner string

const (
	OwnerEA  Owner = "EA"
	OwnerYou Owner = "You"
)

// Bucket names a frequency bucket.
type Bucket string

const (
	Daily   Bucket = "daily"
	Weekly  Bucket = "weekly"
	Monthly Bucket = "monthly"
)

// Buckets lists the frequency buckets in presentation order.
var Buckets = []Bucket{Daily, Weekly, Monthly}

// Task is one candidate delegable activity.
type Task struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Owner        Owner  `json:"owner"`
	IsEA         bool   `json:"isEA"`
	Category     string `json:"category"`
	Frequency    string `json:"frequency,omitempty"`
	Priority     string `json:"priority,omitempty"`
	IsCoreEATask bool   `json:"isCoreEATask,omitempty"`
	CoreTaskType string `json:"coreTaskType,omitempty"`
}

// Delegable reports whether both ownership signals agree on the assistant.
func (t Task) Delegable() bool {
	return t.IsEA && t.Owner == OwnerEA
}

// TasksByFrequency holds the three ordered buckets.
type TasksByFrequency struct {
	Daily   []Task `json:"daily"`
	Weekly  []Task `json:"weekly"`
	Monthly []Task `json:"monthly"`
}

// Get returns the tasks in bucket b.
func (t *TasksByFrequency) Get(b Bucket) []Task {
	switch b {
	case Daily:
		return t.Daily
	case Weekly:
		return t.Weekly
	case Monthly:
		return t.Monthly
	}
	return nil
}

// Set replaces the tasks in bucket b.
func (t *TasksByFrequency) Set(b Bucket, tasks []Task) {
	switch b {
	case Daily:
		t.Daily = tasks
	case Weekly:
		t.Weekly = tasks
	case Monthly:
		t.Monthly = tasks
	}
}

// Len is the total number of tasks across buckets.
func (t *TasksByFrequency) Len() int {
	return len(t.Daily) + len(t.Weekly) + len(t.Monthly)
}

// Result is the pipeline's output unit.
type Result struct {
	Tasks          TasksByFrequency `json:"tasks"`
	TotalTaskCount int              `json:"total_task_count"`
	EATaskCount    int              `json:"ea_task_count"`
	EATaskPercent  int              `json:"ea_task_percent"`
	Summary        string           `json:"summary"`
}

// Clone deep-copies the task slices so repairs never alias the caller's data.
func (r Result) Clone() Result {
	out := r
	for _, b := range Buckets {
		src := r.Tasks.Get(b)
		if src == nil {
			continue
		}
		dst := make([]Task, len(src))
		copy(dst, src)
		out.Tasks.Set(b, dst)
	}
	return out
}

// Percent rounds part/total to a whole percentage; an empty report is 0%.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

// Counts recomputes the derived fields from the task arrays.
func Counts(r Result) (total, ea, percent int) {
	for _, b := range Buckets {
		for _, t := range r.Tasks.Get(b) {
			total++
			if t.Delegable() {
				ea++
			}
		}
	}
	return total, ea, Percent(ea, total)
}

// Recount overwrites the derived counters with values computed from the arrays.
func Recount(r Result) Result {
	r.TotalTaskCount, r.EATaskCount, r.EATaskPercent = Counts(r)
	return r
}
