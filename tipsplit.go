// Package tipsplit splits a crypto tip among collaborators by percentage,
// submits one transfer per collaborator and tracks each transfer's
// confirmation depth.
package tipsplit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitwit/tipsplit/clients"
	"github.com/vitwit/tipsplit/confirmation"
	"github.com/vitwit/tipsplit/logger"
	"github.com/vitwit/tipsplit/metrics"
	"github.com/vitwit/tipsplit/settlement"
	"github.com/vitwit/tipsplit/types"
	"github.com/vitwit/tipsplit/utils"
)

// Session is the stateful entry point for one user. It runs at most one
// payment at a time and keeps a confirmation map for the latest payment.
//
// Every Send starts a new generation. Trackers are tagged with the
// generation they were started for and their writes are dropped once a newer
// payment has replaced the map.
type Session struct {
	gateway  clients.ChainGateway
	executor settlement.Executor
	tracker  *confirmation.Tracker
	config   types.Config

	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration

	retryDelay   time.Duration
	pollInterval time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc
	trackers   sync.WaitGroup

	mu             sync.RWMutex
	status         types.SessionStatus
	sender         string
	lastError      *types.PaymentError
	lastResult     *types.PaymentResult
	generation     uint64
	confirmations  map[string]types.ConfirmationRecord
	cancelTrackers context.CancelFunc
	closed         bool
}

// New creates a Session over gateway. A nil cfg uses the Base Sepolia defaults.
func New(gateway clients.ChainGateway, cfg *types.Config, opts ...Option) (*Session, error) {
	if gateway == nil {
		return nil, types.NewPaymentError(types.ErrConfigError, "chain gateway is required")
	}

	config := types.DefaultConfig(types.NetworkBaseSepolia)
	if cfg != nil {
		config = cfg.WithDefaults()
	}
	if err := utils.ValidateConfig(&config); err != nil {
		return nil, err
	}

	s := &Session{
		gateway:       gateway,
		config:        config,
		logger:        logger.NoopLogger{},
		metrics:       metrics.NoopRecorder{},
		timeout:       config.DefaultTimeout,
		retryDelay:    config.RetryDelay,
		pollInterval:  config.PollInterval,
		status:        types.SessionIdle,
		sender:        config.Sender,
		confirmations: make(map[string]types.ConfirmationRecord),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.NoopLogger{}
	}
	s.logger = logger.WithFields(s.logger, map[string]any{"network": string(config.Network)})

	if s.metrics == nil {
		s.metrics = metrics.NoopRecorder{}
	}
	if _, ok := s.metrics.(metrics.NoopRecorder); ok && config.EnableMetrics {
		rec, err := metrics.NewPrometheusRecorder(nil)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		s.metrics = rec
	}

	if s.sender != "" && !utils.ValidateAddress(s.sender) {
		return nil, types.NewPaymentError(types.ErrConfigError, "sender %q is not a valid address", s.sender)
	}

	if s.executor == nil {
		s.executor = settlement.NewPaymentExecutor(gateway, config.Currencies,
			settlement.WithLogger(s.logger),
			settlement.WithMetrics(s.metrics),
			settlement.WithNetwork(config.Network),
			settlement.WithCollaboratorBounds(config.MinCollaborators, config.MaxCollaborators),
			settlement.WithTimeout(s.timeout),
		)
	}

	s.tracker = confirmation.NewTracker(gateway,
		confirmation.WithRequiredConfirmations(config.ConfirmationBlocks),
		confirmation.WithRetry(config.MaxRetryAttempts, s.retryDelay),
		confirmation.WithPollInterval(s.pollInterval),
		confirmation.WithLogger(s.logger),
		confirmation.WithMetrics(s.metrics),
		confirmation.WithNetwork(config.Network),
	)

	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	return s, nil
}

// Send pays amount of currency to collaborators and starts tracking every
// submitted transfer.
//
// Validation and transfer failures come back as a result with Success false;
// transfers submitted before a failure are still tracked. The returned error
// is non-nil only when the session refuses the call: another payment is
// processing (BUSY) or the session is closed.
func (s *Session) Send(
	ctx context.Context,
	amount string,
	currency types.Currency,
	collaborators []types.CollaboratorSplit,
) (*types.PaymentResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, types.NewPaymentError(types.ErrSessionClosed, "session is closed")
	}
	if s.status == types.SessionProcessing {
		s.mu.Unlock()
		s.metrics.IncCounter(metrics.EventSessionBusy, map[string]string{"network": string(s.config.Network), "currency": currency.Symbol})
		s.logger.Warn("payment rejected, another payment is processing", map[string]any{"generation": s.Generation()})
		return nil, types.NewPaymentError(types.ErrBusy, "a payment is already processing")
	}

	s.generation++
	gen := s.generation
	if s.cancelTrackers != nil {
		s.cancelTrackers()
		s.cancelTrackers = nil
	}
	s.confirmations = make(map[string]types.ConfirmationRecord)
	s.status = types.SessionProcessing
	s.lastError = nil
	s.lastResult = nil
	sender := s.sender
	s.mu.Unlock()

	completed := false
	defer func() {
		if completed {
			return
		}
		// executor panicked: leave the session usable and let the panic through
		s.mu.Lock()
		s.status = types.SessionFailed
		s.lastError = types.NewPaymentError(types.ErrTransferFailed, "payment aborted unexpectedly")
		s.mu.Unlock()
	}()

	result := s.execute(ctx, sender, amount, currency, collaborators)
	completed = true

	s.mu.Lock()
	s.lastResult = result
	if result.Success {
		s.status = types.SessionSucceeded
		s.lastError = nil
	} else {
		s.status = types.SessionFailed
		s.lastError = &types.PaymentError{Code: result.ErrorCode, Message: result.Error}
	}

	var trackCtx context.Context
	hashes := result.TransactionHashes
	track := len(hashes) > 0 && !s.closed && s.generation == gen
	if track {
		var cancel context.CancelFunc
		trackCtx, cancel = context.WithCancel(s.baseCtx)
		s.cancelTrackers = cancel
		for _, h := range hashes {
			s.confirmations[h] = types.PendingRecord(h)
		}
		s.trackers.Add(len(hashes))
	}
	s.mu.Unlock()

	if track {
		for _, h := range hashes {
			go s.track(trackCtx, gen, h)
		}
	}

	return result, nil
}

func (s *Session) execute(
	ctx context.Context,
	sender, amount string,
	currency types.Currency,
	collaborators []types.CollaboratorSplit,
) *types.PaymentResult {
	if sender == "" {
		return types.Failed(uuid.New(), nil, types.NewPaymentError(types.ErrWalletNotConnected, "Wallet not connected"))
	}

	req := &types.PaymentRequest{
		ID:            uuid.New(),
		Amount:        amount,
		Currency:      currency,
		Splits:        make([]types.PaymentSplit, len(collaborators)),
		SenderAddress: sender,
		CreatedAt:     time.Now(),
	}

	inputs := make([]utils.SplitInput, len(collaborators))
	for i, c := range collaborators {
		req.Splits[i] = types.PaymentSplit{
			CollaboratorAddress: c.WalletAddress,
			DisplayName:         c.DisplayName,
			Percentage:          c.Percentage,
		}
		inputs[i] = utils.SplitInput{Address: c.WalletAddress, Percentage: c.Percentage}
	}
	// the executor re-validates and recomputes; a bad total is reported there
	if amounts, err := utils.ComputeSplits(amount, inputs); err == nil {
		for i, a := range amounts {
			req.Splits[i].Amount = a.Amount
		}
	}

	return s.executor.Execute(ctx, req)
}

func (s *Session) track(ctx context.Context, gen uint64, txHash string) {
	defer s.trackers.Done()

	final, err := s.tracker.Track(ctx, txHash, func(rec types.ConfirmationRecord) {
		s.storeConfirmation(gen, rec)
	})
	if err != nil {
		s.logger.Debug("confirmation tracking stopped", map[string]any{
			"hash":       txHash,
			"generation": gen,
			"error":      err.Error(),
		})
		return
	}

	s.logger.Debug("confirmation tracking finished", map[string]any{
		"hash":   txHash,
		"status": string(final.Status),
	})
}

// storeConfirmation writes rec unless it belongs to a superseded generation.
// Terminal records are never overwritten.
func (s *Session) storeConfirmation(gen uint64, rec types.ConfirmationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	if prev, ok := s.confirmations[rec.TransactionHash]; ok && prev.Status.IsTerminal() {
		return
	}
	s.confirmations[rec.TransactionHash] = rec
}

// CheckBalance returns the connected wallet's balance in currency. It never
// fails: without a wallet, for an unregistered currency or on any gateway
// failure it returns "0".
func (s *Session) CheckBalance(ctx context.Context, currency types.Currency) (balance string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("balance check panicked", map[string]any{"currency": currency.Symbol, "panic": fmt.Sprint(r)})
			balance = "0"
		}
	}()

	sender := s.Sender()
	if sender == "" {
		return "0"
	}

	registered, err := types.FindCurrency(s.config.Currencies, currency.Symbol)
	if err != nil {
		s.logger.Warn("balance requested for unknown currency", map[string]any{"currency": currency.Symbol})
		return "0"
	}

	balance = s.gateway.GetBalance(ctx, sender, registered)
	if balance == "" {
		return "0"
	}
	return balance
}

// ConnectWallet sets the address payments are sent from.
func (s *Session) ConnectWallet(address string) error {
	if !utils.ValidateAddress(address) {
		return types.NewPaymentError(types.ErrValidation, "wallet address %q is invalid", address)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = utils.NormalizeAddress(address)
	return nil
}

// DisconnectWallet forgets the sender; later sends fail with WALLET_NOT_CONNECTED.
func (s *Session) DisconnectWallet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = ""
}

// ClearError drops the last error and leaves everything else untouched.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = nil
}

// Reset clears the last error, result and confirmation map. A payment that is
// still processing keeps its status. Running trackers are cancelled only when
// Config.CancelTrackersOnReset is set; otherwise they keep writing into the
// cleared map.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = nil
	s.lastResult = nil
	s.confirmations = make(map[string]types.ConfirmationRecord)

	if s.config.CancelTrackersOnReset {
		if s.cancelTrackers != nil {
			s.cancelTrackers()
			s.cancelTrackers = nil
		}
		s.generation++
	}

	if s.status != types.SessionProcessing {
		s.status = types.SessionIdle
	}
}

// Wait blocks until every running tracker has returned.
func (s *Session) Wait() {
	s.trackers.Wait()
}

// Close cancels all trackers, waits for them and closes the gateway.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.baseCancel()
	s.mu.Unlock()

	s.trackers.Wait()
	s.gateway.Close()
}

// IsProcessing reports whether a payment is being validated or submitted.
func (s *Session) IsProcessing() bool {
	return s.Status() == types.SessionProcessing
}

// Status returns the state of the latest payment.
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastError returns the error of the last payment, nil if it succeeded or was cleared.
func (s *Session) LastError() *types.PaymentError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastError == nil {
		return nil
	}
	e := *s.lastError
	return &e
}

// LastResult returns the result of the latest payment, nil after Reset.
func (s *Session) LastResult() *types.PaymentResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResult
}

// Confirmations returns a snapshot of the confirmation map.
func (s *Session) Confirmations() map[string]types.ConfirmationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.ConfirmationRecord, len(s.confirmations))
	for k, v := range s.confirmations {
		out[k] = v
	}
	return out
}

// Confirmation returns the record for txHash if it is being tracked.
func (s *Session) Confirmation(txHash string) (types.ConfirmationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.confirmations[txHash]
	return rec, ok
}

// Generation is incremented by every accepted Send.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Currencies returns the configured currencies, native asset first.
func (s *Session) Currencies() []types.Currency {
	out := make([]types.Currency, len(s.config.Currencies))
	copy(out, s.config.Currencies)
	return out
}

// Sender returns the connected wallet address, or "".
func (s *Session) Sender() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sender
}

// Config returns the validated configuration the session was built with.
func (s *Session) Config() types.Config {
	return s.config
}
