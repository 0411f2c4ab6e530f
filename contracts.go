package onchain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	FnMintNote        = "mintNote"
	FnSaveNote        = "saveNote"
	FnSaveTodos       = "saveTodos"
	FnSaveInvestments = "saveInvestments"
	FnGetNotes        = "getNotes"

	EventNoteMinted = "NoteMinted"
	EventTransfer   = "Transfer"
	FieldTokenID    = "tokenId"
)

const noteNFTABIJSON = `[
  {
    "type": "function",
    "name": "mintNote",
    "stateMutability": "payable",
    "inputs": [
      {"name": "content", "type": "string"},
      {"name": "font", "type": "string"},
      {"name": "tokenURI", "type": "string"}
    ],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "event",
    "name": "NoteMinted",
    "anonymous": false,
    "inputs": [
      {"name": "owner", "type": "address", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": true},
      {"name": "tokenURI", "type": "string", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "Transfer",
    "anonymous": false,
    "inputs": [
      {"name": "from", "type": "address", "indexed": true},
      {"name": "to", "type": "address", "indexed": true},
      {"name": "tokenId", "type": "uint256", "indexed": true}
    ]
  }
]`

const noteStorageABIJSON = `[
  {
    "type": "function",
    "name": "saveNote",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "content", "type": "string"},
      {"name": "font", "type": "string"},
      {"name": "background", "type": "string"},
      {"name": "timestamp", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "saveTodos",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "json", "type": "string"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "saveInvestments",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "json", "type": "string"},
      {"name": "totalUsd", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getNotes",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "string"}]
  }
]`

var (
	// NoteNFTABI is the note NFT contract surface, including the ERC-721
	// Transfer event used to find minted token ids.
	NoteNFTABI = mustParseABI(noteNFTABIJSON)
	// NoteStorageABI is the per-sender data storage contract surface
	NoteStorageABI = mustParseABI(noteStorageABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in abi: %v", err))
	}
	return parsed
}

// ContractAddresses holds the configured contract addresses as given
// (unparsed), so a missing address is only reported by the action needing it.
type ContractAddresses struct {
	NFT     string
	Storage string
}

// NFTAddress resolves the note NFT contract address
func (c ContractAddresses) NFTAddress() (common.Address, error) {
	return resolveAddress(c.NFT, "BASENOTE_NFT_ADDRESS", "NFT")
}

// StorageAddress resolves the note storage contract address
func (c ContractAddresses) StorageAddress() (common.Address, error) {
	return resolveAddress(c.Storage, "BASENOTE_STORAGE_ADDRESS", "Storage")
}

func resolveAddress(value, envName, label string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, errors.Join(ErrConfigurationMissing, fmt.Errorf("%s contract address missing. Set %s", label, envName))
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.Join(ErrConfigurationMissing, fmt.Errorf("%s contract address %q in %s is not a valid address", label, value, envName))
	}
	return common.HexToAddress(value), nil
}
