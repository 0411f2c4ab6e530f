package onchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStepDefs = []StepDefinition{
	{ID: StepIDPayFee, Name: "Pay fee"},
	{ID: StepIDSubmit, Name: "Submit transaction"},
	{ID: StepIDConfirm, Name: "Confirm on-chain"},
}

func TestStepTracker_HappyPath(t *testing.T) {
	var updates [][]Step
	tracker := NewStepTracker(func(steps []Step) { updates = append(updates, steps) })

	steps := tracker.Init(testStepDefs)
	require.Len(t, steps, 3)
	for _, s := range steps {
		assert.Equal(t, StepPending, s.Status)
	}

	for i := range testStepDefs {
		require.NoError(t, tracker.Start(i))
		assert.Equal(t, i, tracker.Current())
		assert.Equal(t, StepProcessing, tracker.Steps()[i].Status)
		require.NoError(t, tracker.Complete(i, "ok"))
	}

	assert.True(t, tracker.IsComplete())
	assert.Empty(t, tracker.Err())
	for _, s := range tracker.Steps() {
		assert.Equal(t, StepSuccess, s.Status)
		assert.Equal(t, "ok", s.Message)
	}
	// init plus a start and a complete per step
	assert.Len(t, updates, 1+2*len(testStepDefs))
}

func TestStepTracker_StartOutOfOrder(t *testing.T) {
	tracker := NewStepTracker(nil)
	tracker.Init(testStepDefs)

	assert.ErrorIs(t, tracker.Start(1), ErrInvalidStepTransition)

	require.NoError(t, tracker.Start(0))
	assert.ErrorIs(t, tracker.Start(0), ErrInvalidStepTransition)
	assert.ErrorIs(t, tracker.Start(1), ErrInvalidStepTransition)
}

func TestStepTracker_CompleteRequiresProcessing(t *testing.T) {
	tracker := NewStepTracker(nil)
	tracker.Init(testStepDefs)

	assert.ErrorIs(t, tracker.Complete(0, "x"), ErrInvalidStepTransition)
	assert.ErrorIs(t, tracker.Complete(5, "x"), ErrInvalidStepTransition)
	assert.ErrorIs(t, tracker.Start(-1), ErrInvalidStepTransition)
}

func TestStepTracker_FailHaltsWorkflow(t *testing.T) {
	tracker := NewStepTracker(nil)
	tracker.Init(testStepDefs)

	require.NoError(t, tracker.Start(0))
	require.NoError(t, tracker.Complete(0, "paid"))
	require.NoError(t, tracker.Start(1))
	require.NoError(t, tracker.Fail(1, "Request was rejected in the wallet."))

	assert.Equal(t, "Request was rejected in the wallet.", tracker.Err())
	assert.Equal(t, 1, tracker.Current())
	assert.False(t, tracker.IsComplete())

	steps := tracker.Steps()
	assert.Equal(t, StepSuccess, steps[0].Status)
	assert.Equal(t, StepError, steps[1].Status)
	assert.Equal(t, StepPending, steps[2].Status)

	// no later step can start, a successful step can't fail
	assert.ErrorIs(t, tracker.Start(2), ErrInvalidStepTransition)
	assert.ErrorIs(t, tracker.Fail(0, "late"), ErrInvalidStepTransition)
}

func TestStepTracker_FailPendingStep(t *testing.T) {
	tracker := NewStepTracker(nil)
	tracker.Init(testStepDefs)

	require.NoError(t, tracker.Fail(0, "boom"))
	assert.Equal(t, StepError, tracker.Steps()[0].Status)
}

func TestStepTracker_ResetAndReinit(t *testing.T) {
	tracker := NewStepTracker(nil)
	tracker.Init(testStepDefs)
	require.NoError(t, tracker.Fail(0, "boom"))

	tracker.Reset()
	assert.Nil(t, tracker.Steps())
	assert.Empty(t, tracker.Err())

	tracker.Init(testStepDefs)
	require.NoError(t, tracker.Start(0))
}

func TestStepTracker_Index(t *testing.T) {
	tracker := NewStepTracker(nil)
	tracker.Init(testStepDefs)

	assert.Equal(t, 0, tracker.Index(StepIDPayFee))
	assert.Equal(t, 2, tracker.Index(StepIDConfirm))
	assert.Equal(t, -1, tracker.Index(StepIDFinalize))
}

func TestStepTracker_StepsIsCopy(t *testing.T) {
	tracker := NewStepTracker(nil)
	tracker.Init(testStepDefs)

	steps := tracker.Steps()
	steps[0].Status = StepSuccess

	assert.Equal(t, StepPending, tracker.Steps()[0].Status)
}
