package status

import "fmt"

// Status is the lifecycle state of a recorded download.
type Status int32

const (
	Pending Status = iota
	Active
	Completed
	Failed
	Cancelled
)

var names = [...]string{
	Pending:   "pending",
	Active:    "active",
	Completed: "completed",
	Failed:    "failed",
	Cancelled: "cancelled",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(names) {
		return nil, fmt.Errorf("invalid status %d", int32(s))
	}
	return []byte(names[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range names {
		if n == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}
