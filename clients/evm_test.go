package clients

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tiptypes "github.com/vitwit/tipsplit/types"
	"github.com/vitwit/tipsplit/utils"
)

const (
	testPrivateKey   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress      = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	recipientAddress = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	simulatedChainID = 1337
)

var eth = tiptypes.Currency{Symbol: "ETH", Name: "Ethereum", Decimals: 18, Address: tiptypes.NativeAssetAddress, Standard: tiptypes.TokenStandardNative}

func newSimulatedClient(t *testing.T, withSigner bool) (*EVMClient, *simulated.Backend) {
	t.Helper()

	key, err := utils.PrivateKeyFromHex(testPrivateKey)
	require.NoError(t, err)

	funds, _ := new(big.Int).SetString("100000000000000000000", 10) // 100 ETH
	backend := simulated.NewBackend(types.GenesisAlloc{
		utils.AddressFromPrivateKey(key): {Balance: funds},
	})
	t.Cleanup(func() { backend.Close() })

	if !withSigner {
		key = nil
	}
	client, err := newEVMClient(context.Background(), backend.Client(), nil, tiptypes.NetworkLocal, big.NewInt(simulatedChainID), key, nil)
	require.NoError(t, err)
	return client, backend
}

func TestEVMClient_NativeTransfer(t *testing.T) {
	client, backend := newSimulatedClient(t, true)
	ctx := context.Background()

	assert.Equal(t, testAddress, client.SignerAddress())
	assert.Equal(t, tiptypes.NetworkLocal, client.GetNetwork())
	assert.Equal(t, "100", client.GetBalance(ctx, testAddress, eth))

	hash, err := client.SendTransfer(ctx, tiptypes.TransferRequest{
		Sender:    testAddress,
		Recipient: recipientAddress,
		Amount:    "0.6",
		Currency:  eth,
	})
	require.NoError(t, err)
	require.NoError(t, utils.ValidateTransactionHash(hash))

	// not mined yet
	_, err = client.GetReceipt(ctx, hash)
	assert.ErrorIs(t, err, ErrReceiptUnavailable)

	backend.Commit()

	receipt, err := client.GetReceipt(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TransactionHash)
	assert.Equal(t, uint64(1), receipt.BlockNumber)

	backend.Commit()
	backend.Commit()

	head, err := client.GetHeadBlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), head)

	assert.Equal(t, "0.6", client.GetBalance(ctx, recipientAddress, eth))
}

func TestEVMClient_SequentialNonces(t *testing.T) {
	client, backend := newSimulatedClient(t, true)
	ctx := context.Background()

	var hashes []string
	for _, amount := range []string{"0.25", "0.75"} {
		hash, err := client.SendTransfer(ctx, tiptypes.TransferRequest{
			Sender: testAddress, Recipient: recipientAddress, Amount: amount, Currency: eth,
		})
		require.NoError(t, err)
		hashes = append(hashes, hash)
	}
	assert.NotEqual(t, hashes[0], hashes[1])

	backend.Commit()
	for _, hash := range hashes {
		receipt, err := client.GetReceipt(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), receipt.BlockNumber)
	}
	assert.Equal(t, "1", client.GetBalance(ctx, recipientAddress, eth))
}

func TestEVMClient_TransferErrors(t *testing.T) {
	ctx := context.Background()
	client, _ := newSimulatedClient(t, true)

	_, err := client.SendTransfer(ctx, tiptypes.TransferRequest{
		Sender: recipientAddress, Recipient: testAddress, Amount: "1", Currency: eth,
	})
	assert.ErrorIs(t, err, ErrTransferFailed, "sender must match the signer")

	_, err = client.SendTransfer(ctx, tiptypes.TransferRequest{
		Sender: testAddress, Recipient: "0xnope", Amount: "1", Currency: eth,
	})
	assert.ErrorIs(t, err, ErrTransferFailed)

	_, err = client.SendTransfer(ctx, tiptypes.TransferRequest{
		Sender: testAddress, Recipient: recipientAddress, Amount: "1000", Currency: eth,
	})
	assert.ErrorIs(t, err, ErrTransferFailed, "more than the funded balance")

	unsigned, _ := newSimulatedClient(t, false)
	_, err = unsigned.SendTransfer(ctx, tiptypes.TransferRequest{
		Sender: testAddress, Recipient: recipientAddress, Amount: "1", Currency: eth,
	})
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorContains(t, err, ErrNoSigner.Error())
}

func TestEVMClient_BalanceFallback(t *testing.T) {
	client, _ := newSimulatedClient(t, false)
	ctx := context.Background()

	// no contract deployed at this address, balanceOf returns no data
	usdc := tiptypes.Currency{
		Symbol: "USDC", Name: "USD Coin", Decimals: 6,
		Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Standard: tiptypes.TokenStandardERC20,
	}
	assert.Equal(t, "0", client.GetBalance(ctx, testAddress, usdc))
	assert.Equal(t, "0", client.GetBalance(ctx, "not-an-address", eth))
	assert.Equal(t, "0", client.GetBalance(ctx, testAddress, tiptypes.Currency{Symbol: "X", Standard: "erc721"}))
}

func TestEVMClient_ReceiptErrors(t *testing.T) {
	client, _ := newSimulatedClient(t, false)
	ctx := context.Background()

	_, err := client.GetReceipt(ctx, "0x"+"11111111111111111111111111111111"+"11111111111111111111111111111111")
	assert.ErrorIs(t, err, ErrReceiptUnavailable)

	_, err = client.GetReceipt(ctx, "0x1234")
	assert.ErrorIs(t, err, ErrReceiptUnavailable)
}

func TestEVMClient_ERC20Calldata(t *testing.T) {
	client, _ := newSimulatedClient(t, false)

	data, err := client.erc20.Pack("transfer", common.HexToAddress(recipientAddress), big.NewInt(600000))
	require.NoError(t, err)
	// transfer(address,uint256) selector
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, data[:4])
	assert.Len(t, data, 4+32+32)
}

func TestNewEVMClient_RequiresRPC(t *testing.T) {
	_, err := NewEVMClient(context.Background(), tiptypes.ClientConfig{Network: tiptypes.NetworkBaseSepolia}, nil)
	assert.Error(t, err)
}
