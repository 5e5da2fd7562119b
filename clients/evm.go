package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vitwit/tipsplit/logger"
	tiptypes "github.com/vitwit/tipsplit/types"
	"github.com/vitwit/tipsplit/utils"
)

// ethBackend is the subset of the node API the gateway uses. Both
// *ethclient.Client and the simulated backend client satisfy it.
type ethBackend interface {
	ethereum.BlockNumberReader
	ethereum.ChainIDReader
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.PendingStateReader
	ethereum.TransactionReader
	ethereum.TransactionSender
}

// EVMClient is a ChainGateway over a single EVM network.
type EVMClient struct {
	network tiptypes.Network
	eth     ethBackend
	closer  func()
	signer  *ecdsa.PrivateKey // required for SendTransfer
	from    common.Address
	chainID *big.Int
	erc20   abi.ABI
	log     logger.Logger
}

var _ ChainGateway = (*EVMClient)(nil)

// NewEVMClient dials cfg.RPCUrl and loads the signer key from cfg.HexSeed.
// The chain id comes from cfg.ChainID, then the network table, then the node.
func NewEVMClient(ctx context.Context, cfg tiptypes.ClientConfig, log logger.Logger) (*EVMClient, error) {
	if cfg.RPCUrl == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("ethereum rpc dial: %w", err)
	}

	chainID := cfg.Network.ChainID()
	if cfg.ChainID != "" {
		id, ok := new(big.Int).SetString(cfg.ChainID, 10)
		if !ok {
			eth.Close()
			return nil, fmt.Errorf("invalid chain id %q", cfg.ChainID)
		}
		chainID = id
	}

	var signer *ecdsa.PrivateKey
	if cfg.HexSeed != "" {
		signer, err = utils.PrivateKeyFromHex(cfg.HexSeed)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("invalid signer key: %w", err)
		}
	}

	client, err := newEVMClient(ctx, eth, eth.Close, cfg.Network, chainID, signer, log)
	if err != nil {
		eth.Close()
		return nil, err
	}
	return client, nil
}

func newEVMClient(
	ctx context.Context,
	eth ethBackend,
	closer func(),
	network tiptypes.Network,
	chainID *big.Int,
	signer *ecdsa.PrivateKey,
	log logger.Logger,
) (*EVMClient, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if closer == nil {
		closer = func() {}
	}

	if chainID == nil {
		id, err := eth.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: chain id: %v", ErrReadError, err)
		}
		chainID = id
	}

	parsed, err := parseERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	c := &EVMClient{
		network: network,
		eth:     eth,
		closer:  closer,
		signer:  signer,
		chainID: chainID,
		erc20:   parsed,
		log:     log,
	}
	if signer != nil {
		c.from = utils.AddressFromPrivateKey(signer)
	}
	return c, nil
}

// SignerAddress returns the address transfers are sent from, or "" without a signer.
func (c *EVMClient) SignerAddress() string {
	if c.signer == nil {
		return ""
	}
	return c.from.Hex()
}

func (c *EVMClient) GetNetwork() tiptypes.Network { return c.network }
func (c *EVMClient) Close()                       { c.closer() }

func (c *EVMClient) SendTransfer(ctx context.Context, req tiptypes.TransferRequest) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("%w: %v", ErrTransferFailed, ErrNoSigner)
	}
	if !utils.SameAddress(req.Sender, c.from.Hex()) {
		return "", fmt.Errorf("%w: sender %s does not match signer %s", ErrTransferFailed, req.Sender, c.from.Hex())
	}
	if !utils.ValidateAddress(req.Recipient) {
		return "", fmt.Errorf("%w: invalid recipient %q", ErrTransferFailed, req.Recipient)
	}

	value, err := utils.ParseAmountWithDecimals(req.Amount, req.Currency.Decimals)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	recipient := common.HexToAddress(req.Recipient)

	switch req.Currency.Standard {
	case tiptypes.TokenStandardNative:
		return c.buildAndSend(ctx, recipient, value, nil)

	case tiptypes.TokenStandardERC20:
		callData, err := c.erc20.Pack("transfer", recipient, value)
		if err != nil {
			return "", fmt.Errorf("%w: pack call data: %v", ErrTransferFailed, err)
		}
		return c.buildAndSend(ctx, common.HexToAddress(req.Currency.Address), big.NewInt(0), callData)

	default:
		return "", fmt.Errorf("%w: unsupported token standard %q", ErrTransferFailed, req.Currency.Standard)
	}
}

func (c *EVMClient) buildAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("%w: pending nonce: %v", ErrTransferFailed, err)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Value: value, Data: data})
	if err != nil {
		return "", fmt.Errorf("%w: estimate gas: %v", ErrTransferFailed, err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: suggest gas price: %v", ErrTransferFailed, err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.signer)
	if err != nil {
		return "", fmt.Errorf("%w: sign tx: %v", ErrTransferFailed, err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%w: send tx: %v", ErrTransferFailed, err)
	}

	hash := signed.Hash().Hex()
	c.log.Debug("transaction submitted", map[string]any{
		"hash":  hash,
		"to":    utils.ShortAddress(to.Hex()),
		"nonce": nonce,
		"gas":   gasLimit,
	})
	return hash, nil
}

func (c *EVMClient) GetBalance(ctx context.Context, address string, currency tiptypes.Currency) string {
	if !utils.ValidateAddress(address) {
		return "0"
	}
	owner := common.HexToAddress(address)

	switch currency.Standard {
	case tiptypes.TokenStandardNative:
		bal, err := c.eth.BalanceAt(ctx, owner, nil)
		if err != nil {
			c.warnBalance(address, currency, err)
			return "0"
		}
		return utils.FormatAmountFromBigInt(bal, currency.Decimals)

	case tiptypes.TokenStandardERC20:
		bal, err := c.tokenBalance(ctx, common.HexToAddress(currency.Address), owner)
		if err != nil {
			c.warnBalance(address, currency, err)
			return "0"
		}
		return utils.FormatAmountFromBigInt(bal, currency.Decimals)

	default:
		return "0"
	}
}

func (c *EVMClient) tokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	callData, err := c.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return nil, err
	}

	values, err := c.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected balanceOf output length %d", len(values))
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf output type %T", values[0])
	}
	return bal, nil
}

func (c *EVMClient) warnBalance(address string, currency tiptypes.Currency, err error) {
	c.log.Warn("balance read failed, reporting zero", map[string]any{
		"address":  utils.ShortAddress(address),
		"currency": currency.Symbol,
		"error":    err.Error(),
	})
}

func (c *EVMClient) GetReceipt(ctx context.Context, txHash string) (*tiptypes.Receipt, error) {
	if err := utils.ValidateTransactionHash(txHash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReceiptUnavailable, err)
	}

	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReceiptUnavailable, txHash, err)
	}
	if receipt.BlockNumber == nil {
		return nil, fmt.Errorf("%w: %s has no block number", ErrReceiptUnavailable, txHash)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		c.log.Warn("transaction reverted", map[string]any{"hash": txHash, "block": receipt.BlockNumber.Uint64()})
	}

	return &tiptypes.Receipt{
		TransactionHash: txHash,
		BlockNumber:     receipt.BlockNumber.Uint64(),
	}, nil
}

func (c *EVMClient) GetHeadBlockNumber(ctx context.Context) (uint64, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: block number: %v", ErrReadError, err)
	}
	return head, nil
}
