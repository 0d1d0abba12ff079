package report

import "fmt"

// buildResult returns a consistent report with size tasks per bucket, the
// first ea[i] of bucket i owned by the assistant.
func buildResult(size int, ea [3]int) Result {
	var r Result
	for bi, b := range Buckets {
		tasks := make([]Task, size)
		for i := range tasks {
			tasks[i] = Task{
				Title:       fmt.Sprintf("Prepare %s item %d", b, i+1),
				Description: "A reasonably detailed description of the recurring work involved.",
				Owner:       OwnerYou,
				Category:    "Operations",
			}
			if i < ea[bi] {
				tasks[i].Owner = OwnerEA
				tasks[i].IsEA = true
			}
		}
		r.Tasks.Set(b, tasks)
	}
	r.Summary = "Test report"
	return Recount(r)
}

func founderTask(title string) Task {
	return Task{Title: title, Description: "Founder-only work that needs personal judgement.", Owner: OwnerYou, Category: "Strategy"}
}
