package onchain

import (
	"errors"
	"fmt"
	"sync"
)

// StepStatus is the progress status of a workflow step
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepSuccess    StepStatus = "success"
	StepError      StepStatus = "error"
)

var ErrInvalidStepTransition = errors.New("invalid step transition")

// Step is one user visible step of a workflow
type Step struct {
	ID      string
	Name    string
	Status  StepStatus
	Message string
}

// StepDefinition names a step before it is tracked
type StepDefinition struct {
	ID   string
	Name string
}

// ProgressFunc receives a copy of all steps after every change
type ProgressFunc func(steps []Step)

// Step ids used by the orchestrated actions
const (
	StepIDPayFee   = "pay-fee"
	StepIDSubmit   = "submit"
	StepIDConfirm  = "confirm"
	StepIDFinalize = "finalize"
)

// StepTracker tracks the progress of an ordered list of steps.
//
// At most one step is processing, every step before it succeeded, and once a
// step failed no later step can start.
type StepTracker struct {
	mu       sync.Mutex
	steps    []Step
	current  int
	complete bool
	err      string
	onChange ProgressFunc
}

// NewStepTracker creates an empty tracker. onChange may be nil.
func NewStepTracker(onChange ProgressFunc) *StepTracker {
	return &StepTracker{onChange: onChange}
}

// Init replaces the tracked steps with defs, all pending
func (t *StepTracker) Init(defs []StepDefinition) []Step {
	t.mu.Lock()
	t.steps = make([]Step, len(defs))
	for i, def := range defs {
		t.steps[i] = Step{ID: def.ID, Name: def.Name, Status: StepPending}
	}
	t.current = 0
	t.complete = false
	t.err = ""
	steps := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(steps)
	return steps
}

// Start marks step i as processing
func (t *StepTracker) Start(i int) error {
	t.mu.Lock()
	if err := t.checkIndexLocked(i); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.err != "" {
		t.mu.Unlock()
		return fmt.Errorf("%w: workflow already failed", ErrInvalidStepTransition)
	}
	if t.steps[i].Status != StepPending {
		t.mu.Unlock()
		return fmt.Errorf("%w: step %s is %s", ErrInvalidStepTransition, t.steps[i].ID, t.steps[i].Status)
	}
	for j := 0; j < i; j++ {
		if t.steps[j].Status != StepSuccess {
			t.mu.Unlock()
			return fmt.Errorf("%w: step %s is %s", ErrInvalidStepTransition, t.steps[j].ID, t.steps[j].Status)
		}
	}
	t.steps[i].Status = StepProcessing
	t.current = i
	steps := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(steps)
	return nil
}

// Complete marks the processing step i as successful
func (t *StepTracker) Complete(i int, message string) error {
	t.mu.Lock()
	if err := t.checkIndexLocked(i); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.steps[i].Status != StepProcessing {
		t.mu.Unlock()
		return fmt.Errorf("%w: step %s is %s", ErrInvalidStepTransition, t.steps[i].ID, t.steps[i].Status)
	}
	t.steps[i].Status = StepSuccess
	t.steps[i].Message = message
	if i < len(t.steps)-1 {
		t.current = i + 1
	} else {
		t.complete = true
	}
	steps := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(steps)
	return nil
}

// Fail marks step i as failed and halts the workflow
func (t *StepTracker) Fail(i int, message string) error {
	t.mu.Lock()
	if err := t.checkIndexLocked(i); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.steps[i].Status == StepSuccess {
		t.mu.Unlock()
		return fmt.Errorf("%w: step %s already succeeded", ErrInvalidStepTransition, t.steps[i].ID)
	}
	t.steps[i].Status = StepError
	t.steps[i].Message = message
	t.current = i
	t.err = message
	steps := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(steps)
	return nil
}

// Reset drops all steps
func (t *StepTracker) Reset() {
	t.mu.Lock()
	t.steps = nil
	t.current = 0
	t.complete = false
	t.err = ""
	t.mu.Unlock()

	t.notify(nil)
}

// Steps returns a copy of the tracked steps
func (t *StepTracker) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Current returns the index of the active step
func (t *StepTracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// IsComplete reports whether the last step succeeded
func (t *StepTracker) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.complete
}

// Err returns the failure message, empty when nothing failed
func (t *StepTracker) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Index returns the position of the step with the given id, -1 if untracked
func (t *StepTracker) Index(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (t *StepTracker) checkIndexLocked(i int) error {
	if i < 0 || i >= len(t.steps) {
		return fmt.Errorf("%w: no step at index %d", ErrInvalidStepTransition, i)
	}
	return nil
}

func (t *StepTracker) snapshotLocked() []Step {
	if t.steps == nil {
		return nil
	}
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

func (t *StepTracker) notify(steps []Step) {
	if t.onChange != nil {
		t.onChange(steps)
	}
}
