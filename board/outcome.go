package board

import "taskboard/domain"

// Status tags the result of a board operation.
type Status int

const (
	// NoOp means the call changed nothing and issued no request.
	NoOp Status = iota
	// Applied means the local change was confirmed by the store.
	Applied
	// RolledBack means the store rejected the request and the local change was undone.
	RolledBack
	// Rejected means the call failed validation before any local change or request.
	Rejected
	// Failed means the request failed and there was no local change to undo.
	Failed
	// Discarded means the response arrived after the board or session was torn down.
	Discarded
)

func (s Status) String() string {
	switch s {
	case NoOp:
		return "noop"
	case Applied:
		return "applied"
	case RolledBack:
		return "rolled-back"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Outcome is returned by every board operation.
type Outcome struct {
	Status Status
	// Task is the task the operation acted on, as the board holds it afterwards.
	Task domain.Task
	// Reason is set for RolledBack, Rejected and Failed outcomes.
	Reason error
}

func (o Outcome) OK() bool {
	return o.Status == Applied || o.Status == NoOp
}

// Snapshot is a copy of the board's buckets keyed by category.
type Snapshot map[domain.Category][]domain.Task

// Len returns the number of tasks across all buckets.
func (s Snapshot) Len() int {
	n := 0
	for _, tasks := range s {
		n += len(tasks)
	}
	return n
}

// Find returns the task with the given key and the bucket holding it.
func (s Snapshot) Find(key string) (domain.Task, domain.Category, bool) {
	for _, c := range domain.Categories {
		for _, t := range s[c] {
			if t.Key() == key {
				return t, c, true
			}
		}
	}
	return domain.Task{}, "", false
}
