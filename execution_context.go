package onchain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WorkflowState is the state of a mint/save workflow
type WorkflowState string

const (
	StateIdle               WorkflowState = "idle"
	StatePayingFee          WorkflowState = "paying_fee"
	StateWaitingFeeReceipt  WorkflowState = "waiting_fee_receipt"
	StateBuildingCall       WorkflowState = "building_call"
	StateSubmittingCall     WorkflowState = "submitting_call"
	StateWaitingCallReceipt WorkflowState = "waiting_call_receipt"
	StateExtractingResult   WorkflowState = "extracting_result"
	StateDone               WorkflowState = "done"
	StateFailed             WorkflowState = "failed"
)

var ErrInvalidStateTransition = errors.New("invalid workflow state transition")

// Terminal reports whether no further transition can happen
func (s WorkflowState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var nextStates = map[WorkflowState][]WorkflowState{
	// a zero fee skips the payment
	StateIdle:               {StatePayingFee, StateBuildingCall},
	StatePayingFee:          {StateWaitingFeeReceipt},
	StateWaitingFeeReceipt:  {StateBuildingCall},
	StateBuildingCall:       {StateSubmittingCall},
	StateSubmittingCall:     {StateWaitingCallReceipt},
	StateWaitingCallReceipt: {StateExtractingResult},
	StateExtractingResult:   {StateDone},
}

// CanTransition reports whether from -> to is allowed. Every non terminal state
// can go to Failed.
func CanTransition(from, to WorkflowState) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	for _, next := range nextStates[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActionKind identifies an orchestrated action
type ActionKind string

const (
	ActionSaveNote        ActionKind = "save_note"
	ActionMintNote        ActionKind = "mint_note"
	ActionSaveTodos       ActionKind = "save_todos"
	ActionSaveInvestments ActionKind = "save_investments"
)

// WorkflowContext holds the state of one running action.
// All fields are public to allow for testing and inspection from hooks.
type WorkflowContext struct {
	ID     string
	Kind   ActionKind
	ItemID string
	From   common.Address

	FeeFiat      decimal.Decimal
	FeeRecipient common.Address
	Target       common.Address

	State WorkflowState
	FeeTx *TxRecord
	// FeeConfirmed is set once the fee transfer is mined successfully. A failed
	// workflow with FeeConfirmed paid for a call that never landed.
	FeeConfirmed bool
	CallTx       *TxRecord
	TokenID      *big.Int
	Err          error

	StartedAt time.Time
	UpdatedAt time.Time
}

// NewWorkflowContext creates an idle workflow with a fresh id
func NewWorkflowContext(kind ActionKind, itemID string, from common.Address, now time.Time) *WorkflowContext {
	return &WorkflowContext{
		ID:        uuid.NewString(),
		Kind:      kind,
		ItemID:    itemID,
		From:      from,
		FeeFiat:   decimal.Zero,
		State:     StateIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the workflow to `to`
func (w *WorkflowContext) Transition(to WorkflowState, now time.Time) error {
	if !CanTransition(w.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, w.State, to)
	}
	w.State = to
	w.UpdatedAt = now
	return nil
}

// Fail moves the workflow to Failed keeping err. Failing a terminal workflow
// is a no-op.
func (w *WorkflowContext) Fail(err error, now time.Time) {
	if w.State.Terminal() {
		return
	}
	w.State = StateFailed
	w.Err = err
	w.UpdatedAt = now
}
