package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goccy/go-json"
)

// Item ids of the list-wide actions
const (
	TodosItemID       = "todos"
	InvestmentsItemID = "investments"
)

// SaveNote stores note locally and, when onChain is set, also saves it to the
// storage contract. The returned result is nil for a local only save.
func (o *Orchestrator) SaveNote(ctx context.Context, note Note, onChain bool) (*ActionResult, error) {
	if note.ID == "" {
		return nil, errors.New("note without id")
	}
	if note.SavedAt == "" {
		note.SavedAt = o.now().Format("15:04")
	}
	if err := upsertNote(ctx, o.local, note); err != nil {
		return nil, err
	}
	if !onChain {
		return nil, nil
	}
	return o.SaveOnChainNote(ctx, note)
}

// SaveOnChainNote pays the save fee and calls saveNote on the storage contract
func (o *Orchestrator) SaveOnChainNote(ctx context.Context, note Note) (*ActionResult, error) {
	timestamp := o.now().Unix()
	return o.execute(ctx, actionPlan{
		kind:   ActionSaveNote,
		itemID: note.ID,
		fee:    o.cfg.SaveFeeUSD,
		target: o.cfg.Contracts().StorageAddress,
		abi:    NoteStorageABI,
		fn:     FnSaveNote,
		args: func(common.Address) ([]Arg, error) {
			return []Arg{
				StringArg(note.Content),
				StringArg(note.Font),
				StringArg(note.Background),
				UintArg(big.NewInt(timestamp)),
			}, nil
		},
	})
}

// MintNote pays the mint fee and mints note as an NFT. Once the mint is
// confirmed the local note is marked minted, with its token id when the
// receipt carries one.
func (o *Orchestrator) MintNote(ctx context.Context, note Note) (*ActionResult, error) {
	if note.ID == "" {
		return nil, errors.New("note without id")
	}
	return o.execute(ctx, actionPlan{
		kind:   ActionMintNote,
		itemID: note.ID,
		fee:    o.cfg.MintFeeUSD,
		target: o.cfg.Contracts().NFTAddress,
		abi:    NoteNFTABI,
		fn:     FnMintNote,
		args: func(from common.Address) ([]Arg, error) {
			tokenURI, err := NewNoteMetadata(note, from).TokenURI()
			if err != nil {
				return nil, errors.Join(ErrEncoding, fmt.Errorf("note metadata: %w", err))
			}
			return []Arg{
				StringArg(note.Content),
				StringArg(note.Font),
				StringArg(tokenURI),
			}, nil
		},
		extract: func(receipt *types.Receipt) *big.Int {
			return ExtractMintedTokenID(receipt, NoteNFTABI)
		},
		finalize: func(ctx context.Context, w *WorkflowContext) error {
			err := markNoteMinted(ctx, o.local, note.ID, w.TokenID)
			if err == nil {
				return nil
			}
			// minting a note that was never saved locally keeps a copy of it
			logger.WithFields(logger.Fields{"note_id": note.ID, "error": err}).Debug("Minted note not in local store, adding it")
			minted := note
			minted.IsMinted = true
			if w.TokenID != nil {
				minted.TokenID = w.TokenID.String()
			}
			return upsertNote(ctx, o.local, minted)
		},
	})
}

// SaveTodos pays the save fee and stores the todo list as JSON on-chain
func (o *Orchestrator) SaveTodos(ctx context.Context, todos []Todo) (*ActionResult, error) {
	if todos == nil {
		todos = []Todo{}
	}
	payload, err := json.Marshal(todos)
	if err != nil {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("todos: %w", err))
	}
	return o.execute(ctx, actionPlan{
		kind:   ActionSaveTodos,
		itemID: TodosItemID,
		fee:    o.cfg.SaveFeeUSD,
		target: o.cfg.Contracts().StorageAddress,
		abi:    NoteStorageABI,
		fn:     FnSaveTodos,
		args: func(common.Address) ([]Arg, error) {
			return []Arg{StringArg(string(payload))}, nil
		},
		finalize: func(ctx context.Context, _ *WorkflowContext) error {
			return storeList(ctx, o.local, TodosKey, todos)
		},
	})
}

// SaveInvestments pays the save fee and stores the investments as JSON
// on-chain along with their total in cents.
func (o *Orchestrator) SaveInvestments(ctx context.Context, investments []Investment) (*ActionResult, error) {
	if investments == nil {
		investments = []Investment{}
	}
	payload, err := json.Marshal(investments)
	if err != nil {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("investments: %w", err))
	}
	totalCents, err := TotalCents(investments)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, actionPlan{
		kind:   ActionSaveInvestments,
		itemID: InvestmentsItemID,
		fee:    o.cfg.SaveFeeUSD,
		target: o.cfg.Contracts().StorageAddress,
		abi:    NoteStorageABI,
		fn:     FnSaveInvestments,
		args: func(common.Address) ([]Arg, error) {
			return []Arg{StringArg(string(payload)), UintArg(totalCents)}, nil
		},
		finalize: func(ctx context.Context, _ *WorkflowContext) error {
			return storeList(ctx, o.local, InvestmentsKey, investments)
		},
	})
}

// ReadNotes reads the notes the connected account saved on the storage
// contract. No fee is involved.
func (o *Orchestrator) ReadNotes(ctx context.Context) (string, error) {
	if o.transport == nil {
		return "", ErrNoWallet
	}
	target, err := o.cfg.Contracts().StorageAddress()
	if err != nil {
		return "", err
	}
	values, err := o.submitter.Call(ctx, ReadCall{To: target, ABI: NoteStorageABI, Function: FnGetNotes})
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	notes, ok := values[0].(string)
	if !ok {
		return "", errors.Join(ErrDecodingFailure, fmt.Errorf("getNotes returned %T", values[0]))
	}
	return notes, nil
}
