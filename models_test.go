package onchain

import (
	"context"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func investment(amount string) Investment {
	return Investment{ID: amount, Amount: decimal.RequireFromString(amount)}
}

func TestTotalCents(t *testing.T) {
	tests := []struct {
		name    string
		amounts []string
		want    int64
	}{
		{"empty", nil, 0},
		{"whole", []string{"100", "50"}, 15000},
		{"fractional", []string{"100.005", "50.005"}, 15001},
		{"half cent rounds up", []string{"0.125"}, 13},
		{"below half cent", []string{"0.004"}, 0},
		{"mixed signs", []string{"10", "-2.5"}, 750},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var investments []Investment
			for _, a := range tt.amounts {
				investments = append(investments, investment(a))
			}
			got, err := TotalCents(investments)
			require.NoError(t, err)
			assert.Equal(t, big.NewInt(tt.want), got)
		})
	}
}

func TestTotalCents_Negative(t *testing.T) {
	_, err := TotalCents([]Investment{investment("1"), investment("-1.01")})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNewNoteMetadata(t *testing.T) {
	note := Note{ID: "n1", Content: "héllo", CreatedAt: "2024-01-02"}
	meta := NewNoteMetadata(note, testAccount)

	assert.Equal(t, "BaseNote - 2024-01-02", meta.Name)
	assert.Equal(t, "Created on 2024-01-02 via BaseNote", meta.Description)
	assert.Equal(t, "/canvas-bg.png", meta.Image)
	assert.Equal(t, "héllo", meta.Content)
	assert.Equal(t, []NoteAttribute{
		{TraitType: "Creator", Value: testAccount.Hex()},
		{TraitType: "Date", Value: "2024-01-02"},
		{TraitType: "Content Length", Value: "5"},
		{TraitType: "Font", Value: "Inter"},
	}, meta.Attributes)

	note.Font = "Caveat"
	assert.Equal(t, "Caveat", NewNoteMetadata(note, testAccount).Attributes[3].Value)
}

func TestNoteMetadata_TokenURI(t *testing.T) {
	meta := NewNoteMetadata(Note{Content: "gm", CreatedAt: "2024-01-02"}, testAccount)

	uri, err := meta.TokenURI()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:application/json;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:application/json;base64,"))
	require.NoError(t, err)
	var decoded NoteMetadata
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, meta, decoded)
}

func TestUpsertNote(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLocalStore()

	require.NoError(t, upsertNote(ctx, store, Note{ID: "a", Title: "first"}))
	require.NoError(t, upsertNote(ctx, store, Note{ID: "b", Title: "second"}))
	require.NoError(t, upsertNote(ctx, store, Note{ID: "a", Title: "edited"}))

	notes, err := LoadNotes(ctx, store)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "b", notes[0].ID)
	assert.Equal(t, "edited", notes[1].Title)
}

func TestMarkNoteMinted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLocalStore()
	require.NoError(t, upsertNote(ctx, store, Note{ID: "a"}))
	require.NoError(t, upsertNote(ctx, store, Note{ID: "b"}))

	require.NoError(t, markNoteMinted(ctx, store, "a", big.NewInt(42)))
	require.NoError(t, markNoteMinted(ctx, store, "b", nil))
	assert.Error(t, markNoteMinted(ctx, store, "missing", nil))

	notes, err := LoadNotes(ctx, store)
	require.NoError(t, err)
	assert.True(t, notes[1].IsMinted)
	assert.Equal(t, "42", notes[1].TokenID)
	assert.True(t, notes[0].IsMinted)
	assert.Empty(t, notes[0].TokenID)
}

func TestLoadList_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLocalStore()

	todos, err := LoadTodos(ctx, store)
	require.NoError(t, err)
	assert.Nil(t, todos)

	require.NoError(t, store.Set(ctx, InvestmentsKey, []byte(`{not json`)))
	_, err = LoadInvestments(ctx, store)
	assert.ErrorContains(t, err, InvestmentsKey)
}
