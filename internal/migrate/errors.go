package migrate

import "fmt"

// Error reports the state a migration run failed in. A run failing after
// provisioning leaves the new collection in place; rerunning resumes from
// the decision step.
type Error struct {
	Alias string
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("migrate %q failed while %s: %v", e.Alias, e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
