package tipsplit

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitwit/tipsplit/clients/mock"
	"github.com/vitwit/tipsplit/logger"
	"github.com/vitwit/tipsplit/types"
)

const (
	sender = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	addrA  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	addrB  = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

var (
	eth  = types.DefaultCurrencies(types.NetworkBaseSepolia)[0]
	usdc = types.DefaultCurrencies(types.NetworkBaseSepolia)[1]
)

func collaborators() []types.CollaboratorSplit {
	return []types.CollaboratorSplit{
		{WalletAddress: addrA, DisplayName: "alice", Percentage: 60},
		{WalletAddress: addrB, DisplayName: "bob", Percentage: 40},
	}
}

func newSession(t *testing.T, g *mock.Gateway, mutate func(*types.Config), opts ...Option) *Session {
	t.Helper()

	cfg := types.DefaultConfig(types.NetworkBaseSepolia)
	cfg.Sender = sender
	if mutate != nil {
		mutate(&cfg)
	}

	base := []Option{WithTrackerTiming(time.Millisecond, time.Millisecond)}
	s, err := New(g, &cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func funded() *mock.Gateway {
	g := mock.NewGateway()
	g.SetBalance(sender, "ETH", "10")
	g.SetBalance(sender, "USDC", "100")
	g.SetHead(10)
	g.MineOnSend(true)
	return g
}

// blockingExecutor holds Execute until released.
type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingExecutor) Execute(_ context.Context, req *types.PaymentRequest) *types.PaymentResult {
	close(b.started)
	<-b.release
	return &types.PaymentResult{RequestID: req.ID, Success: true, TransactionHashes: []string{}}
}

func TestSend_SucceedsAndConfirms(t *testing.T) {
	g := funded()
	s := newSession(t, g, nil)

	result, err := s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	require.Len(t, result.TransactionHashes, 2)

	assert.Equal(t, types.SessionSucceeded, s.Status())
	assert.False(t, s.IsProcessing())
	assert.Nil(t, s.LastError())
	assert.Equal(t, result, s.LastResult())
	assert.Equal(t, uint64(1), s.Generation())

	for _, h := range result.TransactionHashes {
		_, ok := s.Confirmation(h)
		assert.True(t, ok, "every hash is seeded before Send returns")
	}

	g.AdvanceHead(3)
	s.Wait()

	confirmations := s.Confirmations()
	require.Len(t, confirmations, 2)
	for _, h := range result.TransactionHashes {
		rec := confirmations[h]
		assert.Equal(t, types.ConfirmationConfirmed, rec.Status)
		assert.Equal(t, uint64(10), rec.BlockNumber)
		assert.Equal(t, uint64(3), rec.Confirmations)
	}

	transfers := g.Transfers()
	assert.Equal(t, "0.6", transfers[0].Amount)
	assert.Equal(t, "0.4", transfers[1].Amount)
}

func TestSend_ValidationFailure(t *testing.T) {
	g := funded()
	s := newSession(t, g, nil)

	splits := collaborators()
	splits[1].Percentage = 41

	result, err := s.Send(context.Background(), "1.0", eth, splits)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.TransactionHashes)
	assert.Empty(t, g.Transfers())

	assert.Equal(t, types.SessionFailed, s.Status())
	require.NotNil(t, s.LastError())
	assert.Equal(t, types.ErrValidation, s.LastError().Code)
	assert.Equal(t, "validation", s.LastError().Stage())
	assert.Empty(t, s.Confirmations())
}

func TestSend_NonFinitePercentage(t *testing.T) {
	for _, pct := range []float64{math.NaN(), math.Inf(1)} {
		g := funded()
		s := newSession(t, g, nil)

		splits := collaborators()
		splits[1].Percentage = pct

		var result *types.PaymentResult
		var err error
		require.NotPanics(t, func() {
			result, err = s.Send(context.Background(), "1.0", eth, splits)
		})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Success)
		assert.Equal(t, types.ErrValidation, result.ErrorCode)
		assert.Empty(t, result.TransactionHashes)
		assert.Empty(t, g.Transfers())
		assert.Equal(t, types.SessionFailed, s.Status())
	}
}

func TestSend_MissingDisplayName(t *testing.T) {
	g := funded()
	s := newSession(t, g, nil)

	splits := collaborators()
	splits[0].DisplayName = ""

	result, err := s.Send(context.Background(), "1.0", eth, splits)
	require.NoError(t, err)
	assert.Equal(t, types.ErrValidation, result.ErrorCode)
	assert.Empty(t, g.Transfers())
}

func TestSend_InsufficientBalance(t *testing.T) {
	g := funded()
	g.SetBalance(sender, "ETH", "0.5")
	s := newSession(t, g, nil)

	result, err := s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)
	assert.Equal(t, types.ErrInsufficientBalance, result.ErrorCode)
	assert.Equal(t, "balance", s.LastError().Stage())
	assert.Empty(t, g.Transfers())
}

func TestSend_WalletNotConnected(t *testing.T) {
	g := funded()
	s := newSession(t, g, func(c *types.Config) { c.Sender = "" })

	result, err := s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)
	assert.Equal(t, types.ErrWalletNotConnected, result.ErrorCode)
	assert.Empty(t, g.Transfers())

	require.Error(t, s.ConnectWallet("nope"))
	require.NoError(t, s.ConnectWallet("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
	assert.Equal(t, sender, s.Sender())

	result, err = s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)
	assert.True(t, result.Success, result.Error)

	s.DisconnectWallet()
	assert.Equal(t, "", s.Sender())
}

func TestSend_PartialFailureIsTracked(t *testing.T) {
	g := funded()
	g.FailTransferAt(2)
	s := newSession(t, g, nil)

	result, err := s.Send(context.Background(), "10", usdc, collaborators())
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.TransactionHashes, 1)
	assert.Equal(t, types.SessionFailed, s.Status())
	assert.Equal(t, types.ErrTransferFailed, s.LastError().Code)

	g.AdvanceHead(3)
	s.Wait()

	rec, ok := s.Confirmation(result.TransactionHashes[0])
	require.True(t, ok)
	assert.Equal(t, types.ConfirmationConfirmed, rec.Status)
}

func TestSend_BusyWhileProcessing(t *testing.T) {
	g := funded()
	blocking := newBlockingExecutor()
	s := newSession(t, g, nil, WithExecutor(blocking))

	done := make(chan *types.PaymentResult)
	go func() {
		result, err := s.Send(context.Background(), "1.0", eth, collaborators())
		assert.NoError(t, err)
		done <- result
	}()
	<-blocking.started

	assert.True(t, s.IsProcessing())
	gen := s.Generation()

	result, err := s.Send(context.Background(), "2.0", eth, collaborators())
	assert.Nil(t, result)
	require.Error(t, err)
	pe, ok := types.AsPaymentError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrBusy, pe.Code)

	// the rejected call left the in-flight payment alone
	assert.True(t, s.IsProcessing())
	assert.Equal(t, gen, s.Generation())
	assert.Nil(t, s.LastResult())

	close(blocking.release)
	first := <-done
	require.NotNil(t, first)
	assert.True(t, first.Success)
	assert.Equal(t, types.SessionSucceeded, s.Status())
}

func TestSend_SupersededTrackersCannotWrite(t *testing.T) {
	g := funded()
	s := newSession(t, g, nil)

	first, err := s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)
	require.Len(t, first.TransactionHashes, 2)
	oldHash := first.TransactionHashes[0]

	second, err := s.Send(context.Background(), "2.0", eth, collaborators())
	require.NoError(t, err)
	require.Len(t, second.TransactionHashes, 2)
	assert.Equal(t, uint64(2), s.Generation())

	// a late write from the first payment's tracker
	s.storeConfirmation(1, types.ConfirmationRecord{TransactionHash: oldHash, Status: types.ConfirmationConfirmed})

	g.AdvanceHead(3)
	s.Wait()

	confirmations := s.Confirmations()
	assert.Len(t, confirmations, 2)
	assert.NotContains(t, confirmations, oldHash)
	for _, h := range second.TransactionHashes {
		assert.Equal(t, types.ConfirmationConfirmed, confirmations[h].Status)
	}
}

func TestSend_TerminalRecordsStay(t *testing.T) {
	g := funded()
	s := newSession(t, g, nil)

	result, err := s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)
	g.AdvanceHead(3)
	s.Wait()

	h := result.TransactionHashes[0]
	s.storeConfirmation(s.Generation(), types.PendingRecord(h))

	rec, _ := s.Confirmation(h)
	assert.Equal(t, types.ConfirmationConfirmed, rec.Status)
}

func TestSend_UnminedTransfersFail(t *testing.T) {
	g := funded()
	g.MineOnSend(false)
	s := newSession(t, g, nil)

	result, err := s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)
	require.True(t, result.Success)

	s.Wait()
	for _, rec := range s.Confirmations() {
		assert.Equal(t, types.ConfirmationFailed, rec.Status)
		assert.Equal(t, uint64(0), rec.BlockNumber)
	}
}

func TestReset_KeepsTrackersByDefault(t *testing.T) {
	g := funded()
	s := newSession(t, g, nil)

	result, err := s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)

	s.Reset()
	assert.Equal(t, types.SessionIdle, s.Status())
	assert.Nil(t, s.LastResult())
	assert.Equal(t, uint64(1), s.Generation())

	g.AdvanceHead(3)
	s.Wait()

	// trackers of the reset payment keep writing into the cleared map
	for _, h := range result.TransactionHashes {
		rec, ok := s.Confirmation(h)
		require.True(t, ok)
		assert.Equal(t, types.ConfirmationConfirmed, rec.Status)
	}
}

func TestReset_CancelsTrackersWhenConfigured(t *testing.T) {
	g := funded()
	s := newSession(t, g, func(c *types.Config) { c.CancelTrackersOnReset = true })

	_, err := s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)

	s.Reset()
	s.Wait()

	assert.Empty(t, s.Confirmations())
	assert.Equal(t, uint64(2), s.Generation())
	assert.Equal(t, types.SessionIdle, s.Status())
}

func TestReset_KeepsProcessingStatus(t *testing.T) {
	g := funded()
	blocking := newBlockingExecutor()
	s := newSession(t, g, nil, WithExecutor(blocking))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Send(context.Background(), "1.0", eth, collaborators())
	}()
	<-blocking.started

	s.Reset()
	assert.True(t, s.IsProcessing())

	close(blocking.release)
	<-done
	assert.Equal(t, types.SessionSucceeded, s.Status())
}

func TestClearError(t *testing.T) {
	g := funded()
	s := newSession(t, g, nil)

	_, err := s.Send(context.Background(), "-1", eth, collaborators())
	require.NoError(t, err)
	require.NotNil(t, s.LastError())

	s.ClearError()
	assert.Nil(t, s.LastError())
	assert.NotNil(t, s.LastResult())
	assert.Equal(t, types.SessionFailed, s.Status())
}

type panickingGateway struct {
	*mock.Gateway
}

func (panickingGateway) GetBalance(context.Context, string, types.Currency) string {
	panic("rpc exploded")
}

func TestCheckBalance(t *testing.T) {
	g := funded()
	s := newSession(t, g, nil)
	ctx := context.Background()

	assert.Equal(t, "10", s.CheckBalance(ctx, eth))
	assert.Equal(t, "100", s.CheckBalance(ctx, usdc))
	assert.Equal(t, "0", s.CheckBalance(ctx, types.Currency{Symbol: "DAI"}))

	s.DisconnectWallet()
	assert.Equal(t, "0", s.CheckBalance(ctx, eth))

	core, logs := observer.New(zapcore.DebugLevel)
	cfg := types.DefaultConfig(types.NetworkBaseSepolia)
	cfg.Sender = sender
	p, err := New(panickingGateway{mock.NewGateway()}, &cfg, WithLogger(logger.NewZapLoggerFrom(zap.New(core))))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "0", p.CheckBalance(ctx, eth))
	assert.Equal(t, 1, logs.FilterMessage("balance check panicked").Len())
}

func TestClose(t *testing.T) {
	g := funded()
	g.MineOnSend(false)
	cfg := types.DefaultConfig(types.NetworkBaseSepolia)
	cfg.Sender = sender
	s, err := New(g, &cfg, WithTrackerTiming(time.Hour, time.Hour))
	require.NoError(t, err)

	_, err = s.Send(context.Background(), "1.0", eth, collaborators())
	require.NoError(t, err)

	// trackers are parked on an hour-long retry delay
	s.Close()
	assert.True(t, g.Closed())

	_, err = s.Send(context.Background(), "1.0", eth, collaborators())
	pe, ok := types.AsPaymentError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrSessionClosed, pe.Code)

	s.Close()
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	s, err := New(mock.NewGateway(), nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, types.NetworkBaseSepolia, s.Config().Network)
	assert.Equal(t, "ETH", s.Currencies()[0].Symbol)
	assert.Equal(t, "", s.Sender())

	cfg := types.DefaultConfig(types.NetworkBase)
	cfg.MinCollaborators = 4
	cfg.MaxCollaborators = 2
	_, err = New(mock.NewGateway(), &cfg)
	assert.Error(t, err)

	_, err = New(mock.NewGateway(), nil, WithSender("0x123"))
	assert.Error(t, err)
}
