package onchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/core/types"
)

var errInterrupted = errors.New("workflow interrupted")

// RecoveryOptions configures Recover
type RecoveryOptions struct {
	// OnUnfulfilled is called for every record whose fee was paid but whose
	// contract call never confirmed
	OnUnfulfilled func(record *ActionRecord)
	// OnCompleted is called for interrupted records whose call turns out to be mined
	OnCompleted func(record *ActionRecord, receipt *types.Receipt)
}

// RecoveryResult summarises a Recover run
type RecoveryResult struct {
	Checked      int
	Completed    int
	Failed       int
	StillPending int
	Unfulfilled  []*ActionRecord
	Errors       []error
}

// RecoveryHandler reconciles persisted action records with the chain after a
// restart
type RecoveryHandler struct {
	o *Orchestrator
}

func newRecoveryHandler(o *Orchestrator) *RecoveryHandler {
	return &RecoveryHandler{o: o}
}

// Recover looks at every persisted action record. Interrupted workflows are
// checked once against the chain (no waiting, no resubmission) and settled as
// done or failed. Records that paid a fee without a confirmed call are
// reported; they are never refunded.
//
// This method should be called once during application startup, before new
// actions run.
func (o *Orchestrator) Recover(ctx context.Context, opts RecoveryOptions) (*RecoveryResult, error) {
	return newRecoveryHandler(o).Recover(ctx, opts)
}

func (rh *RecoveryHandler) Recover(ctx context.Context, opts RecoveryOptions) (*RecoveryResult, error) {
	records, err := rh.o.actions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't list action records: %w", err)
	}

	result := &RecoveryResult{}
	for _, record := range records {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		result.Checked++
		if !record.State.Terminal() {
			if err := rh.settle(ctx, record, opts, result); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("record %s: %w", record.ID, err))
				continue
			}
		}
		if record.Unfulfilled() {
			result.Unfulfilled = append(result.Unfulfilled, record)
			if opts.OnUnfulfilled != nil {
				opts.OnUnfulfilled(record)
			}
		}
	}

	logger.WithFields(logger.Fields{
		"checked":       result.Checked,
		"completed":     result.Completed,
		"failed":        result.Failed,
		"still_pending": result.StillPending,
		"unfulfilled":   len(result.Unfulfilled),
		"errors":        len(result.Errors),
	}).Info("Action recovery finished")
	return result, nil
}

// settle decides the final state of an interrupted record
func (rh *RecoveryHandler) settle(ctx context.Context, record *ActionRecord, opts RecoveryOptions, result *RecoveryResult) error {
	if record.CallTxHash != nil {
		receipt, err := rh.o.waiter.fetchReceipt(ctx, *record.CallTxHash)
		if err != nil {
			return err
		}
		if receipt == nil {
			result.StillPending++
			return nil
		}
		if receipt.Status == types.ReceiptStatusFailed {
			return rh.markFailed(ctx, record, errors.Join(ErrTxReverted, fmt.Errorf("tx %s", record.CallTxHash.Hex())), result)
		}
		if record.Kind == ActionMintNote {
			record.TokenID = ExtractMintedTokenID(receipt, NoteNFTABI)
		}
		record.State = StateDone
		record.UpdatedAt = rh.o.now()
		if err := rh.o.actions.Save(ctx, record); err != nil {
			return err
		}
		result.Completed++
		if opts.OnCompleted != nil {
			opts.OnCompleted(record, receipt)
		}
		return nil
	}

	if record.FeeTxHash != nil && !record.FeeConfirmed {
		receipt, err := rh.o.waiter.fetchReceipt(ctx, *record.FeeTxHash)
		if err != nil {
			return err
		}
		if receipt == nil {
			result.StillPending++
			return nil
		}
		record.FeeConfirmed = receipt.Status == types.ReceiptStatusSuccessful
	}

	return rh.markFailed(ctx, record, errInterrupted, result)
}

func (rh *RecoveryHandler) markFailed(ctx context.Context, record *ActionRecord, cause error, result *RecoveryResult) error {
	record.State = StateFailed
	record.Error = cause.Error()
	record.UpdatedAt = rh.o.now()
	if err := rh.o.actions.Save(ctx, record); err != nil {
		return err
	}
	result.Failed++
	return nil
}
