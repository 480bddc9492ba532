package jobs

import (
	"errors"
	"fmt"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
)

// Sentinel errors surfaced to callers as typed business outcomes. Guard
// failures never come back as generic errors; the HTTP layer and the UI
// match on these.
var (
	// ErrNotFound reports a job lookup miss.
	ErrNotFound = errors.New("job not found")

	// ErrConflict reports a lost claim race: the job was claimed by someone
	// else between read and commit.
	ErrConflict = errors.New("job already claimed")
)

// ValidationError reports bad input to a creation or transition call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func validationErr(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a state-machine guard failure. It carries
// the job id, the current status and the attempted status so the UI can
// render a specific message. No state is mutated when it is returned.
type InvalidTransitionError struct {
	JobID string
	From  job.Status
	To    job.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s: invalid transition %s -> %s", e.JobID, e.From, e.To)
}

func transitionErr(id string, from, to job.Status) error {
	return &InvalidTransitionError{JobID: id, From: from, To: to}
}
