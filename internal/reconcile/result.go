package reconcile

import (
	"errors"
	"fmt"
	"time"
)

// State is the terminal state of a run's state machine.
type State int

const (
	StateConsistent State = iota
	StateInconsistent
	StatePartiallyFailed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConsistent:
		return "Consistent"
	case StateInconsistent:
		return "Inconsistent"
	case StatePartiallyFailed:
		return "PartiallyFailed"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome summarises what a run did to the remote document.
type Outcome int

const (
	OutcomeAlreadyConsistent Outcome = iota
	OutcomeBootstrapped
	OutcomeRepaired
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyConsistent:
		return "AlreadyConsistent"
	case OutcomeBootstrapped:
		return "Bootstrapped"
	case OutcomeRepaired:
		return "Repaired"
	case OutcomeFailed:
		return "Failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Step names one remote call in the provisioning sequence of a sheet.
type Step string

const (
	StepRenameWorksheet Step = "rename worksheet"
	StepCreateWorksheet Step = "create worksheet"
	StepCreateTable     Step = "create table"
	StepRenameTable     Step = "rename table"
	StepSetHeaderRow    Step = "set header row"
	StepNotAttempted    Step = "not attempted"
)

// ErrNotAttempted marks sheets skipped after a fail-fast stop.
var ErrNotAttempted = errors.New("not attempted after an earlier failure")

// Failure records the table whose provisioning did not complete and the
// step that failed. Earlier steps for the same table may have succeeded and
// are not rolled back.
type Failure struct {
	Table string
	Step  Step
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Table, f.Step, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// IntegrityWarning reports an expected table that the remote document does
// not resolve. It is never repaired automatically.
type IntegrityWarning struct {
	Table   string
	Message string
}

func (w IntegrityWarning) String() string {
	if w.Message == "" {
		return "table " + w.Table + " could not be resolved"
	}
	return "table " + w.Table + ": " + w.Message
}

// WorkbookState is what a single run observed of the remote document.
// Tables only holds the tables that were actually probed.
type WorkbookState struct {
	Exists bool
	Tables map[string]bool
}

// Result describes one reconciliation run. Err is set only when the run
// ended in StateFailed.
type Result struct {
	RunID      string
	Document   string
	State      State
	Outcome    Outcome
	Template   bool
	Observed   WorkbookState
	Failures   []Failure
	Warnings   []IntegrityWarning
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// FailedTables lists the tables in Failures, in manifest order.
func (r *Result) FailedTables() []string {
	names := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		names = append(names, f.Table)
	}
	return names
}

func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
