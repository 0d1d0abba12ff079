package report

import "strings"

// CoreTaskType tags the business-mandated delegate tasks.
type CoreTaskType string

const (
	CoreEmail    CoreTaskType = "email"
	CoreCalendar CoreTaskType = "calendar"
	CorePersonal CoreTaskType = "personal"
	CoreBusiness CoreTaskType = "business"
)

// AllCoreTaskTypes lists every core type the validator reports coverage for.
var AllCoreTaskTypes = []CoreTaskType{CoreEmail, CoreCalendar, CorePersonal, CoreBusiness}

type coreSpec struct {
	kind     CoreTaskType
	bucket   Bucket
	required bool
	keywords []string
	task     Task
}

// Only required specs are injected; the rest are reported as warnings.
var coreSpecs = []coreSpec{
	{
		kind:     CoreEmail,
		bucket:   Daily,
		required: true,
		keywords: []string{"email", "inbox", "correspondence"},
		task: Task{
			Title:       "Complete Email Management",
			Description: "Your assistant manages your entire inbox, responses, filtering, and email workflows so you never have to check email directly.",
			Category:    "Communication",
			Priority:    "high",
		},
	},
	{
		kind:     CoreCalendar,
		bucket:   Daily,
		required: true,
		keywords: []string{"calendar", "schedule", "scheduling", "appointment", "meeting"},
		task: Task{
			Title:       "Calendar and Schedule Management",
			Description: "Your assistant owns your calendar, booking and rescheduling appointments, confirming meetings, and protecting your focus time.",
			Category:    "Time Management",
			Priority:    "high",
		},
	},
	{
		kind:     CorePersonal,
		bucket:   Weekly,
		keywords: []string{"personal", "travel", "booking", "reservation", "vendor", "family"},
		task: Task{
			Title:       "Personal Life Coordination",
			Description: "Your assistant handles travel, reservations, vendors, and family logistics so your personal life runs without your attention.",
			Category:    "Personal",
			Priority:    "high",
		},
	},
	{
		kind:     CoreBusiness,
		bucket:   Monthly,
		keywords: []string{"process", "recurring", "workflow", "system", "procedure", "automation"},
		task: Task{
			Title:       "Recurring Business Process Management",
			Description: "Your assistant documents and runs recurring workflows, procedures, and systems that keep the business moving each month.",
			Category:    "Operations",
			Priority:    "high",
		},
	},
}

// RequiredCoreTaskTypes lists the types EnsureCoreEATasks guarantees.
func RequiredCoreTaskTypes() []CoreTaskType {
	var out []CoreTaskType
	for _, s := range coreSpecs {
		if s.required {
			out = append(out, s.kind)
		}
	}
	return out
}

// CanonicalCoreTask returns the task injected when kind is missing.
func CanonicalCoreTask(kind CoreTaskType) (Task, bool) {
	for _, s := range coreSpecs {
		if s.kind == kind {
			return s.canonical(), true
		}
	}
	return Task{}, false
}

func (s coreSpec) canonical() Task {
	t := s.task
	t.Owner = OwnerEA
	t.IsEA = true
	t.Frequency = string(s.bucket)
	t.IsCoreEATask = true
	t.CoreTaskType = string(s.kind)
	return t
}

func (s coreSpec) matches(t Task) bool {
	if t.CoreTaskType == string(s.kind) {
		return true
	}
	text := strings.ToLower(t.Title + " " + t.Description)
	for _, kw := range s.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func specFor(kind CoreTaskType) coreSpec {
	for _, s := range coreSpecs {
		if s.kind == kind {
			return s
		}
	}
	return coreSpec{kind: kind}
}

func hasCoreTask(tasks []Task, kind CoreTaskType) bool {
	s := specFor(kind)
	for _, t := range tasks {
		if t.Delegable() && s.matches(t) {
			return true
		}
	}
	return false
}

// protected tasks satisfy a required core slot and are never evicted.
func protected(t Task) bool {
	if t.IsCoreEATask {
		return true
	}
	if !t.Delegable() {
		return false
	}
	for _, s := range coreSpecs {
		if s.required && s.matches(t) {
			return true
		}
	}
	return false
}

// EnsureCoreEATasks guarantees every required core task is present in its
// bucket and owned by the assistant. A missing task is appended while the
// bucket is below rules.TasksPerBucket; otherwise it replaces, scanning from
// the end, the last unprotected founder task, then the last unprotected EA
// task, and is appended only when nothing can be replaced. The total task
// count and the EA count never decrease. The result always leaves with
// normalized owners and recomputed counters.
func EnsureCoreEATasks(r Result, rules Rules) Result {
	out, _ := InjectCoreEATasks(r, rules)
	return out
}

// InjectCoreEATasks is EnsureCoreEATasks that also reports how many core
// tasks it inserted. Tasks that only needed their owner normalized are not
// counted.
func InjectCoreEATasks(r Result, rules Rules) (Result, int) {
	out := normalizeOwners(r.Clone())
	injected := 0
	for _, s := range coreSpecs {
		if !s.required {
			continue
		}
		tasks := out.Tasks.Get(s.bucket)
		if hasCoreTask(tasks, s.kind) {
			continue
		}
		out.Tasks.Set(s.bucket, insertCore(tasks, s.canonical(), rules.TasksPerBucket))
		injected++
	}
	return Recount(out), injected
}

func insertCore(tasks []Task, core Task, capacity int) []Task {
	if capacity <= 0 || len(tasks) < capacity {
		return append(tasks, core)
	}
	if i := lastEvictable(tasks, false); i >= 0 {
		tasks[i] = core
		return tasks
	}
	if i := lastEvictable(tasks, true); i >= 0 {
		tasks[i] = core
		return tasks
	}
	return append(tasks, core)
}

func lastEvictable(tasks []Task, delegable bool) int {
	for i := len(tasks) - 1; i >= 0; i-- {
		if tasks[i].Delegable() == delegable && !protected(tasks[i]) {
			return i
		}
	}
	return -1
}
