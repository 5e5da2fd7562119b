package clients

import (
	"context"

	tiptypes "github.com/vitwit/tipsplit/types"
)

// ChainGateway is the on-chain surface a payment needs: submit a transfer,
// read balances, read receipts and the head block.
type ChainGateway interface {
	// SendTransfer submits one transfer and returns its hash as soon as it is
	// accepted by the node. Errors wrap ErrTransferFailed.
	SendTransfer(ctx context.Context, req tiptypes.TransferRequest) (string, error)

	// GetBalance returns the balance of address in currency units. Any read
	// failure yields "0".
	GetBalance(ctx context.Context, address string, currency tiptypes.Currency) string

	// GetReceipt errors wrap ErrReceiptUnavailable, whether the transaction is
	// not mined yet or the read failed.
	GetReceipt(ctx context.Context, txHash string) (*tiptypes.Receipt, error)

	// GetHeadBlockNumber errors wrap ErrReadError.
	GetHeadBlockNumber(ctx context.Context) (uint64, error)

	Close()
}
