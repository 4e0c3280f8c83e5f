package models

// Status is the implementation state of a function.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusBlocked}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }
