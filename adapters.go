// adapters.go provides WalletTransport implementations backed by go-ethereum's
// JSON-RPC client, for wallets that expose their provider over HTTP or WebSocket
// (e.g. Frame on 127.0.0.1:1248, or a local dev node with unlocked accounts).
package onchain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// rpcTransport wraps a go-ethereum rpc.Client to implement WalletTransport
type rpcTransport struct {
	client *rpc.Client
}

func (t *rpcTransport) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var result json.RawMessage
	if err := t.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, err
	}
	return result, nil
}

// Close closes the underlying rpc client
func (t *rpcTransport) Close() {
	t.client.Close()
}

// NewRPCTransport creates a WalletTransport from a go-ethereum rpc client
func NewRPCTransport(client *rpc.Client) WalletTransport {
	return &rpcTransport{client: client}
}

// DialWallet connects to a wallet provider endpoint and returns a transport for it.
// The returned close function releases the connection.
func DialWallet(ctx context.Context, url string) (WalletTransport, func(), error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't dial wallet at %s: %w", url, err)
	}
	t := &rpcTransport{client: client}
	return t, t.Close, nil
}
