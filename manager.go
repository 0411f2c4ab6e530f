package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/basenote/onchain/inflight"
)

// Orchestrator sequences the components of the core into the user facing
// actions (save note, mint note, save todos, save investments):
//  1. check the wallet and the connected session, resolve the target contract
//  2. mark the item in flight so the same action can't run twice at once
//  3. pay the fiat fee and wait for its receipt
//  4. submit the contract call and wait for its receipt
//  5. extract the result and update local state, only after confirmation
//
// A failing step halts the workflow. Nothing is retried and a paid fee is not
// refunded when the call fails; the action record keeps FeeConfirmed so the
// gap can be found afterwards.
type Orchestrator struct {
	cfg       Config
	transport WalletTransport
	session   *Session
	network   *NetworkDescriptor

	rates     ExchangeRateSource
	guard     inflight.Guard
	actions   ActionStore
	local     LocalStore
	progress  ProgressFunc
	errorABIs []abi.ABI
	now       func() time.Time

	pollInterval   time.Duration
	receiptTimeout time.Duration

	chain     *ChainSessionManager
	converter *ValueConverter
	submitter *TxSubmitter
	waiter    *ReceiptWaiter
}

// NewOrchestrator creates an orchestrator talking to the wallet through
// transport. A nil transport means no wallet is installed: every action then
// fails with ErrNoWallet.
func NewOrchestrator(transport WalletTransport, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cfg:       DefaultConfig(),
		transport: transport,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.session == nil {
		o.session = NewSession(transport)
	}
	if o.network == nil {
		network := o.cfg.Network()
		o.network = &network
	}
	if o.rates == nil {
		o.rates = NewPriceOracle(WithPriceAPIURL(o.cfg.PriceAPIURL))
	}
	if o.guard == nil {
		o.guard = inflight.NewMemoryGuard(0)
	}
	if o.actions == nil {
		o.actions = NewMemoryActionStore()
	}
	if o.local == nil {
		o.local = NewMemoryLocalStore()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.pollInterval <= 0 {
		o.pollInterval = o.cfg.ReceiptPollInterval
	}
	if o.receiptTimeout <= 0 {
		o.receiptTimeout = o.cfg.ReceiptTimeout
	}

	o.chain = NewChainSessionManager(transport, *o.network)
	o.converter = NewValueConverter(o.rates)
	o.submitter = NewTxSubmitter(transport, o.chain, o.converter,
		NewErrorDecoder(append([]abi.ABI{NoteNFTABI, NoteStorageABI}, o.errorABIs...)...))
	o.submitter.now = o.now
	o.waiter = NewReceiptWaiter(transport,
		WithPollInterval(o.pollInterval),
		WithDefaultTimeout(o.receiptTimeout),
	)
	return o
}

// Session returns the wallet session the orchestrator reads
func (o *Orchestrator) Session() *Session { return o.session }

// Config returns the configuration in use
func (o *Orchestrator) Config() Config { return o.cfg }

// ChainSessionManager returns the network manager
func (o *Orchestrator) ChainSessionManager() *ChainSessionManager { return o.chain }

// Submitter returns the transaction submitter
func (o *Orchestrator) Submitter() *TxSubmitter { return o.submitter }

// ReceiptWaiter returns the receipt waiter
func (o *Orchestrator) ReceiptWaiter() *ReceiptWaiter { return o.waiter }

// ActionStore returns the store holding action records
func (o *Orchestrator) ActionStore() ActionStore { return o.actions }

// LocalStore returns the store holding the user's lists
func (o *Orchestrator) LocalStore() LocalStore { return o.local }

// Connect connects the wallet session, prompting the user if needed
func (o *Orchestrator) Connect(ctx context.Context) error {
	return o.session.Connect(ctx)
}

// ActionResult is the outcome of an orchestrated action
type ActionResult struct {
	WorkflowID string
	FeeTx      *TxRecord
	CallTx     *TxRecord
	Receipt    *types.Receipt
	// TokenID is the minted token id, nil for other actions or when the
	// receipt didn't carry it
	TokenID *big.Int
	Steps   []Step
}

// actionPlan describes one action for execute
type actionPlan struct {
	kind    ActionKind
	itemID  string
	fee     decimal.Decimal
	target  func() (common.Address, error)
	abi     abi.ABI
	fn      string
	args    func(from common.Address) ([]Arg, error)
	extract func(receipt *types.Receipt) *big.Int
	// finalize updates local state once the call is confirmed
	finalize func(ctx context.Context, w *WorkflowContext) error
}

func (p actionPlan) stepDefinitions() []StepDefinition {
	var defs []StepDefinition
	if p.fee.IsPositive() {
		defs = append(defs, StepDefinition{ID: StepIDPayFee, Name: "Pay fee"})
	}
	return append(defs,
		StepDefinition{ID: StepIDSubmit, Name: "Submit transaction"},
		StepDefinition{ID: StepIDConfirm, Name: "Confirm on-chain"},
		StepDefinition{ID: StepIDFinalize, Name: "Update local state"},
	)
}

// workflowRun bundles the mutable state of one execute call
type workflowRun struct {
	o       *Orchestrator
	w       *WorkflowContext
	tracker *StepTracker
	active  int
}

func (r *workflowRun) transition(ctx context.Context, to WorkflowState) error {
	if err := r.w.Transition(to, r.o.now()); err != nil {
		return err
	}
	logger.WithFields(logger.Fields{
		"workflow_id": r.w.ID,
		"action":      r.w.Kind,
		"item_id":     r.w.ItemID,
		"state":       to,
	}).Debug("Workflow state changed")
	r.o.saveRecord(ctx, r.w)
	return nil
}

func (r *workflowRun) startStep(id string) {
	r.active = r.tracker.Index(id)
	if err := r.tracker.Start(r.active); err != nil {
		logger.WithFields(logger.Fields{"workflow_id": r.w.ID, "step": id, "error": err}).Warn("Couldn't start step")
	}
}

func (r *workflowRun) completeStep(message string) {
	if err := r.tracker.Complete(r.active, message); err != nil {
		logger.WithFields(logger.Fields{"workflow_id": r.w.ID, "error": err}).Warn("Couldn't complete step")
	}
}

func (r *workflowRun) fail(ctx context.Context, err error) error {
	r.w.Fail(err, r.o.now())
	if r.active >= 0 {
		if ferr := r.tracker.Fail(r.active, UserMessage(err)); ferr != nil {
			logger.WithFields(logger.Fields{"workflow_id": r.w.ID, "error": ferr}).Warn("Couldn't mark step failed")
		}
	}
	r.o.saveRecord(ctx, r.w)

	logger.WithFields(logger.Fields{
		"workflow_id":   r.w.ID,
		"action":        r.w.Kind,
		"item_id":       r.w.ItemID,
		"fee_confirmed": r.w.FeeConfirmed,
		"error":         err,
	}).Error("Workflow failed")
	return err
}

// abort fails the workflow and returns the partial result
func (r *workflowRun) abort(ctx context.Context, receipt *types.Receipt, err error) (*ActionResult, error) {
	err = r.fail(ctx, err)
	return r.result(receipt), err
}

func (r *workflowRun) result(receipt *types.Receipt) *ActionResult {
	return &ActionResult{
		WorkflowID: r.w.ID,
		FeeTx:      r.w.FeeTx,
		CallTx:     r.w.CallTx,
		Receipt:    receipt,
		TokenID:    r.w.TokenID,
		Steps:      r.tracker.Steps(),
	}
}

// execute runs plan through the workflow state machine.
func (o *Orchestrator) execute(ctx context.Context, plan actionPlan) (*ActionResult, error) {
	if o.transport == nil || !o.session.HasWallet() {
		return nil, ErrNoWallet
	}
	from, connected := o.session.Address()
	if !connected {
		return nil, ErrNotConnected
	}
	target, err := plan.target()
	if err != nil {
		return nil, err
	}
	// the submitter sends from the wallet's current account, a missed
	// accountsChanged event leaves the session behind it
	active, err := o.submitter.connectedAccount(ctx)
	if err != nil {
		return nil, err
	}
	if active != from {
		logger.WithFields(logger.Fields{
			"session": from.Hex(),
			"wallet":  active.Hex(),
		}).Warn("Wallet account differs from the session, following the wallet")
		o.session.setAddress(&active)
		from = active
	}
	args, err := plan.args(from)
	if err != nil {
		return nil, err
	}
	// calldata is validated up front so no fee is paid for a call that can't be built
	if _, err := EncodeCall(plan.abi, plan.fn, args...); err != nil {
		return nil, err
	}

	key := inflight.Key(string(plan.kind), plan.itemID)
	if err := o.guard.Acquire(ctx, key); err != nil {
		if errors.Is(err, inflight.ErrInFlight) {
			return nil, errors.Join(ErrActionInFlight, fmt.Errorf("%s for %s", plan.kind, plan.itemID))
		}
		return nil, fmt.Errorf("couldn't mark %s in flight: %w", key, err)
	}
	defer func() {
		if err := o.guard.Release(context.WithoutCancel(ctx), key); err != nil {
			logger.WithFields(logger.Fields{"key": key, "error": err}).Warn("Couldn't release in-flight marker")
		}
	}()

	w := NewWorkflowContext(plan.kind, plan.itemID, from, o.now())
	w.FeeFiat = plan.fee
	w.FeeRecipient = o.cfg.FeeRecipientAddress()
	w.Target = target
	run := &workflowRun{o: o, w: w, tracker: NewStepTracker(o.progress), active: -1}
	run.tracker.Init(plan.stepDefinitions())
	o.saveRecord(ctx, w)

	logger.WithFields(logger.Fields{
		"workflow_id": w.ID,
		"action":      w.Kind,
		"item_id":     w.ItemID,
		"from":        from.Hex(),
		"target":      target.Hex(),
		"fee":         plan.fee.String(),
	}).Info("Starting workflow")

	if plan.fee.IsPositive() {
		if err := run.transition(ctx, StatePayingFee); err != nil {
			return run.abort(ctx, nil, err)
		}
		run.startStep(StepIDPayFee)
		feeTx, err := o.submitter.SendValueTransfer(ctx, w.FeeRecipient, plan.fee)
		if err != nil {
			return run.abort(ctx, nil, err)
		}
		w.FeeTx = feeTx
		if err := run.transition(ctx, StateWaitingFeeReceipt); err != nil {
			return run.abort(ctx, nil, err)
		}
		if _, err := o.waitConfirmed(ctx, feeTx.Hash); err != nil {
			return run.abort(ctx, nil, err)
		}
		w.FeeConfirmed = true
		run.completeStep(feeTx.Hash.Hex())
	}

	if err := run.transition(ctx, StateBuildingCall); err != nil {
		return run.abort(ctx, nil, err)
	}
	call := ContractCall{To: target, ABI: plan.abi, Function: plan.fn, Args: args}

	if err := run.transition(ctx, StateSubmittingCall); err != nil {
		return run.abort(ctx, nil, err)
	}
	run.startStep(StepIDSubmit)
	callTx, err := o.submitter.SendContractCall(ctx, call)
	if err != nil {
		return run.abort(ctx, nil, err)
	}
	w.CallTx = callTx
	run.completeStep(callTx.Hash.Hex())

	if err := run.transition(ctx, StateWaitingCallReceipt); err != nil {
		return run.abort(ctx, nil, err)
	}
	run.startStep(StepIDConfirm)
	receipt, err := o.waitConfirmed(ctx, callTx.Hash)
	if err != nil {
		return run.abort(ctx, nil, err)
	}
	run.completeStep(fmt.Sprintf("block %s", receipt.BlockNumber))

	if err := run.transition(ctx, StateExtractingResult); err != nil {
		return run.abort(ctx, receipt, err)
	}
	run.startStep(StepIDFinalize)
	if plan.extract != nil {
		w.TokenID = plan.extract(receipt)
		if w.TokenID == nil {
			logger.WithFields(logger.Fields{
				"workflow_id": w.ID,
				"tx_hash":     callTx.Hash.Hex(),
			}).Warn("Result identifier not found in receipt")
		}
	}
	if plan.finalize != nil {
		if err := plan.finalize(ctx, w); err != nil {
			return run.abort(ctx, receipt, fmt.Errorf("confirmed on-chain but couldn't update local state: %w", err))
		}
	}
	message := "done"
	if w.TokenID != nil {
		message = "token " + w.TokenID.String()
	}
	run.completeStep(message)

	if err := run.transition(ctx, StateDone); err != nil {
		return run.abort(ctx, receipt, err)
	}
	logger.WithFields(logger.Fields{
		"workflow_id": w.ID,
		"action":      w.Kind,
		"item_id":     w.ItemID,
		"tx_hash":     callTx.Hash.Hex(),
	}).Info("Workflow done")
	return run.result(receipt), nil
}

// waitConfirmed waits for the receipt of hash and fails if it reverted
func (o *Orchestrator) waitConfirmed(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := o.waiter.WaitForReceipt(ctx, hash, o.receiptTimeout)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, errors.Join(ErrTxReverted, fmt.Errorf("tx %s", hash.Hex()))
	}
	return receipt, nil
}

func (o *Orchestrator) saveRecord(ctx context.Context, w *WorkflowContext) {
	if err := o.actions.Save(context.WithoutCancel(ctx), NewActionRecord(w)); err != nil {
		logger.WithFields(logger.Fields{
			"workflow_id": w.ID,
			"state":       w.State,
			"error":       err,
		}).Warn("Couldn't persist action record")
	}
}
