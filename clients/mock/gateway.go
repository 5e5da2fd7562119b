// Package mock provides an in-memory ChainGateway with scriptable failures.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/vitwit/tipsplit/clients"
	"github.com/vitwit/tipsplit/types"
)

// Gateway records every transfer and serves balances, receipts and the head
// block from memory. Safe for concurrent use.
type Gateway struct {
	mu sync.Mutex

	balances   map[string]decimal.Decimal // key: lower(address)|symbol
	receipts   map[string]uint64
	failRead   map[string]int
	head       uint64
	headErr    int
	failAt     int
	mineOnSend bool

	transfers []types.TransferRequest
	hashes    []string
	closed    bool
}

var _ clients.ChainGateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{
		balances: make(map[string]decimal.Decimal),
		receipts: make(map[string]uint64),
		failRead: make(map[string]int),
	}
}

func balanceKey(address, symbol string) string {
	return strings.ToLower(address) + "|" + strings.ToUpper(symbol)
}

// SetBalance sets the balance of address in symbol units.
func (g *Gateway) SetBalance(address, symbol, amount string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[balanceKey(address, symbol)] = decimal.RequireFromString(amount)
}

// FailTransferAt makes the n-th transfer (1-based, counted from now) fail.
// Zero disables the failure.
func (g *Gateway) FailTransferAt(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n == 0 {
		g.failAt = 0
		return
	}
	g.failAt = len(g.transfers) + n
}

// MineOnSend places every submitted transfer in the current head block.
func (g *Gateway) MineOnSend(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mineOnSend = enabled
}

// SetReceipt marks txHash as mined in block.
func (g *Gateway) SetReceipt(txHash string, block uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.receipts[txHash] = block
}

// FailReceipts makes the next n receipt reads for txHash fail.
func (g *Gateway) FailReceipts(txHash string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failRead[txHash] = n
}

// FailHead makes the next n head reads fail.
func (g *Gateway) FailHead(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.headErr = n
}

func (g *Gateway) SetHead(block uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.head = block
}

// AdvanceHead moves the head forward by n blocks and returns the new head.
func (g *Gateway) AdvanceHead(n uint64) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.head += n
	return g.head
}

// Transfers returns a copy of every transfer attempted, including failed ones.
func (g *Gateway) Transfers() []types.TransferRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.TransferRequest, len(g.transfers))
	copy(out, g.transfers)
	return out
}

// Hashes returns the hashes of the accepted transfers in submission order.
func (g *Gateway) Hashes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.hashes))
	copy(out, g.hashes)
	return out
}

func (g *Gateway) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Gateway) SendTransfer(ctx context.Context, req types.TransferRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", clients.ErrTransferFailed, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.transfers = append(g.transfers, req)
	if g.failAt != 0 && len(g.transfers) == g.failAt {
		return "", fmt.Errorf("%w: rejected by node", clients.ErrTransferFailed)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", clients.ErrTransferFailed, err)
	}

	from := balanceKey(req.Sender, req.Currency.Symbol)
	to := balanceKey(req.Recipient, req.Currency.Symbol)
	g.balances[from] = g.balances[from].Sub(amount)
	g.balances[to] = g.balances[to].Add(amount)

	seed := fmt.Sprintf("%s|%s|%s|%s|%d", req.Sender, req.Recipient, req.Amount, req.Currency.Symbol, len(g.transfers))
	hash := crypto.Keccak256Hash([]byte(seed)).Hex()
	g.hashes = append(g.hashes, hash)
	if g.mineOnSend {
		g.receipts[hash] = g.head
	}
	return hash, nil
}

func (g *Gateway) GetBalance(_ context.Context, address string, currency types.Currency) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	bal, ok := g.balances[balanceKey(address, currency.Symbol)]
	if !ok {
		return "0"
	}
	return bal.String()
}

func (g *Gateway) GetReceipt(_ context.Context, txHash string) (*types.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n := g.failRead[txHash]; n > 0 {
		g.failRead[txHash] = n - 1
		return nil, fmt.Errorf("%w: %s: connection reset", clients.ErrReceiptUnavailable, txHash)
	}

	block, ok := g.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s: not found", clients.ErrReceiptUnavailable, txHash)
	}
	return &types.Receipt{TransactionHash: txHash, BlockNumber: block}, nil
}

func (g *Gateway) GetHeadBlockNumber(_ context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.headErr > 0 {
		g.headErr--
		return 0, fmt.Errorf("%w: head unavailable", clients.ErrReadError)
	}
	return g.head, nil
}

func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}
