package onchain

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Keys of the user lists in the local store
const (
	NotesKey       = "basenote-notes"
	TodosKey       = "basenote-todos"
	InvestmentsKey = "basenote-investments"
)

// Note is a user note
type Note struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
	SavedAt    string `json:"savedAt,omitempty"`
	IsMinted   bool   `json:"isMinted,omitempty"`
	TokenID    string `json:"tokenId,omitempty"`
	Font       string `json:"font,omitempty"`
	Background string `json:"background,omitempty"`
}

// Todo is a todo list item
type Todo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"dueDate"`
	Completed   bool   `json:"completed"`
}

// Investment is a tracked investment
type Investment struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
	Notes    string          `json:"notes"`
}

// TotalCents sums the investment amounts and returns round(total*100)
func TotalCents(investments []Investment) (*big.Int, error) {
	total := decimal.Zero
	for _, inv := range investments {
		total = total.Add(inv.Amount)
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: investment total %s is negative", ErrInvalidAmount, total)
	}
	return total.Shift(2).Round(0).BigInt(), nil
}

const defaultNoteFont = "Inter"

// NoteMetadata is the ERC-721 metadata document of a minted note
type NoteMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Attributes  []NoteAttribute `json:"attributes"`
	Image       string          `json:"image"`
	Content     string          `json:"content"`
}

type NoteAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// NewNoteMetadata builds the metadata of note minted by creator
func NewNoteMetadata(note Note, creator common.Address) NoteMetadata {
	font := note.Font
	if font == "" {
		font = defaultNoteFont
	}
	return NoteMetadata{
		Name:        "BaseNote - " + note.CreatedAt,
		Description: "Created on " + note.CreatedAt + " via BaseNote",
		Attributes: []NoteAttribute{
			{TraitType: "Creator", Value: creator.Hex()},
			{TraitType: "Date", Value: note.CreatedAt},
			{TraitType: "Content Length", Value: strconv.Itoa(len([]rune(note.Content)))},
			{TraitType: "Font", Value: font},
		},
		Image:   "/canvas-bg.png",
		Content: note.Content,
	}
}

// TokenURI returns the metadata as a base64 JSON data URI
func (m NoteMetadata) TokenURI() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func loadList[T any](ctx context.Context, store LocalStore, key string) ([]T, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("couldn't read %s: %w", key, err)
	}
	if !found || len(raw) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("couldn't decode %s: %w", key, err)
	}
	return items, nil
}

func storeList[T any](ctx context.Context, store LocalStore, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("couldn't encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("couldn't write %s: %w", key, err)
	}
	return nil
}

// LoadNotes returns the notes held in store, newest first
func LoadNotes(ctx context.Context, store LocalStore) ([]Note, error) {
	return loadList[Note](ctx, store, NotesKey)
}

// LoadTodos returns the todos held in store
func LoadTodos(ctx context.Context, store LocalStore) ([]Todo, error) {
	return loadList[Todo](ctx, store, TodosKey)
}

// LoadInvestments returns the investments held in store
func LoadInvestments(ctx context.Context, store LocalStore) ([]Investment, error) {
	return loadList[Investment](ctx, store, InvestmentsKey)
}

// upsertNote puts note at the front of the list, or replaces it in place when
// a note with the same id exists.
func upsertNote(ctx context.Context, store LocalStore, note Note) error {
	notes, err := LoadNotes(ctx, store)
	if err != nil {
		return err
	}
	for i := range notes {
		if notes[i].ID == note.ID {
			notes[i] = note
			return storeList(ctx, store, NotesKey, notes)
		}
	}
	notes = append([]Note{note}, notes...)
	return storeList(ctx, store, NotesKey, notes)
}

// markNoteMinted flags the note with id as minted, recording tokenID when known
func markNoteMinted(ctx context.Context, store LocalStore, id string, tokenID *big.Int) error {
	notes, err := LoadNotes(ctx, store)
	if err != nil {
		return err
	}
	for i := range notes {
		if notes[i].ID != id {
			continue
		}
		notes[i].IsMinted = true
		if tokenID != nil {
			notes[i].TokenID = tokenID.String()
		}
		return storeList(ctx, store, NotesKey, notes)
	}
	return fmt.Errorf("note %s not found in local store", id)
}
